package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/kazz187/taskmirror/internal/reconcile"
	"github.com/kazz187/taskmirror/pkg/panicerr"
)

const (
	DefaultInterval   = 30 * time.Second
	DefaultStartDelay = 5 * time.Second
)

type Runner interface {
	RunOnce(ctx context.Context) (*reconcile.Report, error)
}

type Config struct {
	Interval   time.Duration
	StartDelay time.Duration
}

type Scheduler struct {
	runner Runner
	cfg    Config
}

func New(runner Runner, cfg Config) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.StartDelay < 0 {
		cfg.StartDelay = 0
	}
	return &Scheduler{runner: runner, cfg: cfg}
}

// Start runs a cycle, then waits Interval after it returns, until ctx is
// cancelled. A failing or panicking cycle is logged and the loop goes on.
func (s *Scheduler) Start(ctx context.Context) {
	slog.Info("scheduler started", "interval", s.cfg.Interval, "start_delay", s.cfg.StartDelay)
	if !sleep(ctx, s.cfg.StartDelay) {
		slog.Info("scheduler stopped")
		return
	}
	for {
		s.tick(ctx)
		if !sleep(ctx, s.cfg.Interval) {
			slog.Info("scheduler stopped")
			return
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	err := panicerr.SafeContext(func(ctx context.Context) error {
		_, err := s.runner.RunOnce(ctx)
		return err
	})(ctx)
	if err != nil && ctx.Err() == nil {
		slog.ErrorContext(ctx, "scheduled cycle failed", "error", err)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
