// Package dispatcher pushes normalized records to the target, creating the
// ones without a known link and updating the others.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/kazz187/taskmirror/internal/linkcache"
	"github.com/kazz187/taskmirror/internal/target"
	"github.com/kazz187/taskmirror/internal/task"
	"github.com/kazz187/taskmirror/pkg/cerr"
	"github.com/kazz187/taskmirror/pkg/panicerr"
)

const (
	DefaultWorkers        = 4
	DefaultRequestTimeout = 10 * time.Second
)

type Kind int

const (
	KindFailed Kind = iota
	KindCreated
	KindUpdated
)

func (k Kind) String() string {
	switch k {
	case KindCreated:
		return "created"
	case KindUpdated:
		return "updated"
	default:
		return "failed"
	}
}

// Outcome is the result of pushing one record. For KindCreated, TargetID is
// the new link the caller should commit.
type Outcome struct {
	SourceID string
	Kind     Kind
	TargetID string
	Err      error
}

// LinkLookup is the read side of the link table.
type LinkLookup interface {
	Lookup(sourceID string) (string, bool)
}

// Writer creates and updates tasks in the target list.
type Writer interface {
	CreateTask(ctx context.Context, p *target.Payload) (*target.Task, error)
	UpdateTask(ctx context.Context, id string, p *target.Payload) error
}

type Config struct {
	Workers        int
	RequestTimeout time.Duration
}

// Dispatcher pushes records with a bounded number of concurrent workers.
// A failing or panicking record never affects the others.
type Dispatcher struct {
	links  LinkLookup
	writer Writer
	cfg    Config
}

func New(links LinkLookup, writer Writer, cfg Config) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	return &Dispatcher{links: links, writer: writer, cfg: cfg}
}

// Dispatch pushes every record and returns one outcome per record in input
// order. A failing or panicking record does not affect the others.
func (d *Dispatcher) Dispatch(ctx context.Context, records []*task.Normalized) []Outcome {
	outcomes := make([]Outcome, len(records))
	p := pool.New().WithMaxGoroutines(d.cfg.Workers)
	for i, rec := range records {
		p.Go(func() {
			out, err := panicerr.Value(func() Outcome {
				return d.push(ctx, rec)
			})
			if err != nil {
				out = Outcome{
					SourceID: rec.SourceID,
					Kind:     KindFailed,
					Err:      cerr.NewError(cerr.Internal, "record push panicked", err),
				}
			}
			outcomes[i] = out
		})
	}
	p.Wait()
	return outcomes
}

func (d *Dispatcher) push(ctx context.Context, rec *task.Normalized) Outcome {
	out := Outcome{SourceID: rec.SourceID, Kind: KindFailed}
	if err := ctx.Err(); err != nil {
		out.Err = cerr.NewError(cerr.Canceled, "dispatch canceled", err)
		return out
	}

	payload := target.PayloadFrom(rec)
	callCtx, cancel := context.WithTimeout(ctx, d.cfg.RequestTimeout)
	defer cancel()

	if targetID, ok := d.links.Lookup(rec.SourceID); ok {
		if err := d.writer.UpdateTask(callCtx, targetID, payload); err != nil {
			slog.ErrorContext(ctx, "failed to update target task", "source_id", rec.SourceID, "target_id", targetID, "error", err)
			out.Err = err
			return out
		}
		slog.InfoContext(ctx, "updated target task", "source_id", rec.SourceID, "target_id", targetID)
		out.Kind = KindUpdated
		out.TargetID = targetID
		return out
	}

	payload.Description = linkcache.Decorate(rec.SourceID, rec.Description)
	created, err := d.writer.CreateTask(callCtx, payload)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create target task", "source_id", rec.SourceID, "error", err)
		out.Err = err
		return out
	}
	if created == nil || created.ID == "" {
		out.Err = cerr.NewError(cerr.Internal, "target create returned no id", fmt.Errorf("source %s", rec.SourceID))
		return out
	}
	slog.InfoContext(ctx, "created target task", "source_id", rec.SourceID, "target_id", created.ID, "title", rec.Title)
	out.Kind = KindCreated
	out.TargetID = created.ID
	return out
}
