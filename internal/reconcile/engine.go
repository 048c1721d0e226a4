// Package reconcile runs the cycle that mirrors new source records into the
// target exactly once.
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/kazz187/taskmirror/internal/dispatcher"
	"github.com/kazz187/taskmirror/internal/eventbus"
	"github.com/kazz187/taskmirror/internal/ledger"
	"github.com/kazz187/taskmirror/internal/linkcache"
	"github.com/kazz187/taskmirror/internal/source"
	"github.com/kazz187/taskmirror/internal/task"
	"github.com/kazz187/taskmirror/pkg/clog"
	"github.com/kazz187/taskmirror/pkg/panicerr"
)

// Transformer maps a source record to the normalized task pushed to the target.
type Transformer interface {
	Transform(ctx context.Context, rec *source.Record) *task.Normalized
}

// Roster is refreshed before dispatch so workers only read it.
type Roster interface {
	EnsureFresh(ctx context.Context) error
}

// Dispatcher pushes a batch of tasks and reports one outcome per task, in
// input order.
type Dispatcher interface {
	Dispatch(ctx context.Context, records []*task.Normalized) []dispatcher.Outcome
}

type Config struct {
	// RecreateDeleted forgets ledger ids whose target task disappeared, so
	// they are created again on the next cycle.
	RecreateDeleted bool
}

// Engine owns the dedup ledger and the link table and runs reconciliation
// cycles against them, one at a time.
type Engine struct {
	source      source.Lister
	transformer Transformer
	roster      Roster
	links       *linkcache.Cache
	dispatcher  Dispatcher
	ledgerRepo  ledger.Repository
	bus         *eventbus.Bus
	cfg         Config
	now         func() time.Time

	// mu serializes cycles and resets; everything below it is owned by the
	// holder.
	mu     sync.Mutex
	ledger *ledger.Ledger
	loaded bool
	cycles int

	running  atomic.Bool
	snapshot atomic.Pointer[State]
}

// NewEngine wires the cycle. Persisted state is read lazily, by Warm or by
// the first RunOnce. bus may be nil.
func NewEngine(
	src source.Lister,
	transformer Transformer,
	roster Roster,
	links *linkcache.Cache,
	disp Dispatcher,
	ledgerRepo ledger.Repository,
	bus *eventbus.Bus,
	cfg Config,
) *Engine {
	e := &Engine{
		source:      src,
		transformer: transformer,
		roster:      roster,
		links:       links,
		dispatcher:  disp,
		ledgerRepo:  ledgerRepo,
		bus:         bus,
		cfg:         cfg,
		now:         time.Now,
		ledger:      ledger.New(),
	}
	e.publishState()
	return e
}

// Warm loads the persisted ledger and link snapshot and the identity roster.
// Failures are logged; the first cycle retries whatever is missing.
func (e *Engine) Warm(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ensureLoaded(ctx)
	if err := e.roster.EnsureFresh(ctx); err != nil {
		slog.WarnContext(ctx, "identity roster warm-up failed", "error", err)
	}
}

func (e *Engine) ensureLoaded(ctx context.Context) {
	if e.loaded {
		return
	}
	e.ledger = ledger.LoadOrEmpty(ctx, e.ledgerRepo)
	if err := e.links.Load(ctx); err != nil {
		slog.WarnContext(ctx, "failed to load link snapshot", "error", err)
	}
	e.loaded = true
	e.publishState()
	slog.InfoContext(ctx, "reconciliation state loaded",
		"known_tasks", e.ledger.Len(),
		"initialized", e.ledger.Initialized(),
		"links", e.links.Len(),
	)
}

// RunOnce executes one full cycle. Concurrent calls wait for each other.
// A panic inside the cycle is returned as its error. The returned report is
// never nil.
func (e *Engine) RunOnce(ctx context.Context) (*Report, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.running.Store(true)
	defer func() {
		e.running.Store(false)
		e.publishState()
	}()

	e.cycles++
	report := &Report{
		CycleID:   ulid.Make().String(),
		Cycle:     e.cycles,
		StartedAt: e.now(),
	}
	ctx = clog.ContextWithCycle(ctx, report.CycleID)

	err := panicerr.SafeContext(func(ctx context.Context) error {
		return e.run(ctx, report)
	})(ctx)
	report.FinishedAt = e.now()
	report.KnownTasks = e.ledger.Len()
	clog.SetPhase(ctx, string(PhaseIdle))

	if err != nil {
		slog.ErrorContext(ctx, "reconciliation cycle failed", "error", err)
		e.publish(eventbus.CycleFailed, report, err)
		return report, err
	}
	slog.InfoContext(ctx, "reconciliation cycle finished",
		"listed", report.Listed,
		"new", report.New,
		"created", report.Created,
		"updated", report.Updated,
		"failed", report.Failed,
		"skipped", report.Skipped,
		"bootstrapped", report.Bootstrapped,
		"duration", report.FinishedAt.Sub(report.StartedAt),
	)
	e.publish(eventbus.CycleCompleted, report, nil)
	return report, nil
}

func (e *Engine) run(ctx context.Context, report *Report) error {
	e.ensureLoaded(ctx)

	clog.SetPhase(ctx, string(PhaseListing))
	records, err := e.source.ListRecords(ctx)
	if err != nil {
		return err
	}
	report.Listed = len(records)
	if len(records) == 0 {
		slog.WarnContext(ctx, "source returned no records, leaving state untouched")
		report.Skipped = true
		return nil
	}

	if !e.ledger.Initialized() {
		return e.bootstrap(ctx, records, report)
	}

	clog.SetPhase(ctx, string(PhaseDiffing))
	fresh := e.diff(records)
	report.New = len(fresh)

	forgotten := e.prepare(ctx, fresh, report)

	var outcomes []dispatcher.Outcome
	if len(fresh) > 0 {
		clog.SetPhase(ctx, string(PhaseDispatching))
		normalized := make([]*task.Normalized, len(fresh))
		for i, rec := range fresh {
			normalized[i] = e.transformer.Transform(ctx, rec)
		}
		outcomes = e.dispatcher.Dispatch(ctx, normalized)
	}

	if len(outcomes) == 0 && forgotten == 0 {
		return e.saveLinks(ctx)
	}
	clog.SetPhase(ctx, string(PhasePersisting))
	return e.persist(ctx, outcomes, report)
}

func (e *Engine) bootstrap(ctx context.Context, records []*source.Record, report *Report) error {
	clog.SetPhase(ctx, string(PhaseBootstrapping))
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.ID)
	}
	report.Bootstrapped = true
	report.Seeded = e.ledger.Bootstrap(ids, e.now())
	slog.InfoContext(ctx, "first run: recording existing records without pushing them", "records", report.Seeded)

	clog.SetPhase(ctx, string(PhasePersisting))
	return e.ledgerRepo.Save(ctx, e.ledger.Document(e.now()))
}

// diff returns the records not yet in the ledger, in listing order and
// without repeated ids.
func (e *Engine) diff(records []*source.Record) []*source.Record {
	seen := make(map[string]struct{}, len(records))
	var fresh []*source.Record
	for _, rec := range records {
		if rec.ID == "" || e.ledger.Contains(rec.ID) {
			continue
		}
		if _, ok := seen[rec.ID]; ok {
			continue
		}
		seen[rec.ID] = struct{}{}
		fresh = append(fresh, rec)
	}
	return fresh
}

// prepare refreshes the roster and the link table before any worker starts,
// and applies the re-create policy. It returns the number of forgotten ids.
func (e *Engine) prepare(ctx context.Context, fresh []*source.Record, report *Report) int {
	if len(fresh) > 0 {
		if err := e.roster.EnsureFresh(ctx); err != nil {
			slog.WarnContext(ctx, "identity roster unavailable, assignees will be dropped", "error", err)
		}
	}

	missed := false
	for _, rec := range fresh {
		if _, ok := e.links.Lookup(rec.ID); !ok {
			missed = true
			break
		}
	}
	if !e.links.NeedsRefresh(e.now(), report.Cycle, missed) {
		return 0
	}
	if _, err := e.links.Refresh(ctx); err != nil {
		slog.WarnContext(ctx, "link cache refresh failed, using previous table", "error", err)
		return 0
	}
	report.LinksRefreshed = true

	vanished := e.links.TakeVanished()
	if !e.cfg.RecreateDeleted || len(vanished) == 0 {
		return 0
	}
	report.Forgotten = e.ledger.Forget(vanished)
	if report.Forgotten > 0 {
		slog.InfoContext(ctx, "target tasks disappeared, they will be re-created", "source_ids", vanished)
	}
	return report.Forgotten
}

func (e *Engine) persist(ctx context.Context, outcomes []dispatcher.Outcome, report *Report) error {
	for _, o := range outcomes {
		switch o.Kind {
		case dispatcher.KindCreated:
			report.Created++
			e.links.Put(o.SourceID, o.TargetID)
		case dispatcher.KindUpdated:
			report.Updated++
		default:
			report.Failed++
			msg := "unknown error"
			if o.Err != nil {
				msg = o.Err.Error()
			}
			report.Failures = append(report.Failures, Failure{SourceID: o.SourceID, Error: msg})
		}
		// Failed records are recorded too: they are not retried.
		e.ledger.Add(o.SourceID)
	}

	ledgerErr := e.ledgerRepo.Save(ctx, e.ledger.Document(e.now()))
	linksErr := e.saveLinks(ctx)
	return errors.Join(ledgerErr, linksErr)
}

func (e *Engine) saveLinks(ctx context.Context) error {
	if err := e.links.Save(ctx); err != nil {
		// The table is rebuilt from the target anyway.
		slog.WarnContext(ctx, "failed to persist link snapshot", "error", err)
	}
	return nil
}

// Reset forgets everything: the link table first, then the ledger. The next
// cycle bootstraps again.
func (e *Engine) Reset(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	// The ledger is only touched once the link table is gone, so a failed
	// reset never leaves links to ids the ledger no longer knows.
	if err := e.links.Clear(ctx); err != nil {
		slog.ErrorContext(ctx, "state reset aborted, link table kept", "error", err)
		return err
	}
	err := e.ledgerRepo.Delete(ctx)
	e.ledger = ledger.New()
	e.loaded = true
	e.publishState()
	if err != nil {
		slog.ErrorContext(ctx, "state reset incomplete", "error", err)
		return err
	}
	slog.InfoContext(ctx, "reconciliation state reset")
	if e.bus != nil {
		e.bus.PublishNew(eventbus.StateReset, "", nil, nil)
	}
	return nil
}

// State returns the last published snapshot without waiting for a running
// cycle.
func (e *Engine) State() *State {
	s := *e.snapshot.Load()
	s.Running = e.running.Load()
	return &s
}

// publishState must be called with mu held.
func (e *Engine) publishState() {
	e.snapshot.Store(&State{
		Ledger:           e.ledger.Document(e.now()),
		Links:            e.links.Len(),
		LinksRefreshedAt: e.links.RefreshedAt(),
		Cycles:           e.cycles,
	})
}

func (e *Engine) publish(t eventbus.EventType, report *Report, err error) {
	if e.bus == nil {
		return
	}
	var meta map[string]string
	if err != nil {
		meta = map[string]string{"error": err.Error()}
	}
	e.bus.PublishNew(t, report.CycleID, report, meta)
}
