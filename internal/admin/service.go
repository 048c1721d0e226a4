// Package admin exposes the operator actions of the mirror over HTTP/JSON
// and Connect.
package admin

import (
	"context"
	"log/slog"
	"time"

	"github.com/kazz187/taskmirror/internal/ledger"
	"github.com/kazz187/taskmirror/internal/reconcile"
	"github.com/kazz187/taskmirror/internal/status"
)

type Engine interface {
	RunOnce(ctx context.Context) (*reconcile.Report, error)
	Reset(ctx context.Context) error
	State() *reconcile.State
}

type LinkTable interface {
	Links() map[string]string
}

type StatusProvider interface {
	Status() *status.Status
}

type RosterInvalidator interface {
	Invalidate()
}

type ExportedState struct {
	ExportedAt time.Time         `json:"exported_at"`
	Ledger     *ledger.Document  `json:"ledger"`
	Links      map[string]string `json:"links"`
}

// Service implements the operator actions shared by both transports.
type Service struct {
	engine Engine
	links  LinkTable
	status StatusProvider
	roster RosterInvalidator
}

func NewService(engine Engine, links LinkTable, status StatusProvider, roster RosterInvalidator) *Service {
	return &Service{engine: engine, links: links, status: status, roster: roster}
}

// Trigger runs a cycle now, waiting for a running one to finish first. The
// cycle is not tied to the caller's connection.
func (s *Service) Trigger(ctx context.Context) (*reconcile.Report, error) {
	slog.InfoContext(ctx, "manual sync triggered")
	return s.engine.RunOnce(context.WithoutCancel(ctx))
}

func (s *Service) Reset(ctx context.Context) error {
	slog.WarnContext(ctx, "state reset requested")
	return s.engine.Reset(context.WithoutCancel(ctx))
}

func (s *Service) Status() *status.Status {
	return s.status.Status()
}

func (s *Service) ExportState() *ExportedState {
	return &ExportedState{
		ExportedAt: time.Now().UTC(),
		Ledger:     s.engine.State().Ledger,
		Links:      s.links.Links(),
	}
}

func (s *Service) InvalidateRoster(ctx context.Context) {
	slog.InfoContext(ctx, "identity roster invalidated")
	s.roster.Invalidate()
}
