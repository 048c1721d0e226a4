package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/taskmirror/internal/dispatcher"
	"github.com/kazz187/taskmirror/internal/eventbus"
	ledgerrepo "github.com/kazz187/taskmirror/internal/ledger/repositoryimpl"
	"github.com/kazz187/taskmirror/internal/linkcache"
	linkrepo "github.com/kazz187/taskmirror/internal/linkcache/repositoryimpl"
	"github.com/kazz187/taskmirror/internal/source"
	"github.com/kazz187/taskmirror/internal/target"
	"github.com/kazz187/taskmirror/internal/transform"
	"github.com/kazz187/taskmirror/pkg/cerr"
	"github.com/kazz187/taskmirror/pkg/storage"
)

type fakeSource struct {
	mu      sync.Mutex
	records []*source.Record
	err     error
	crash   bool
}

func (f *fakeSource) set(ids ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = nil
	for _, id := range ids {
		f.records = append(f.records, &source.Record{ID: id, Title: "task " + id})
	}
}

func (f *fakeSource) ListRecords(context.Context) ([]*source.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.crash {
		panic("decoder blew up")
	}
	return f.records, f.err
}

// fakeTarget keeps tasks in memory the way the real list would.
type fakeTarget struct {
	mu      sync.Mutex
	tasks   []*target.Task
	creates int
	updates int
	failFor map[string]bool
	listErr error
}

func (f *fakeTarget) ListTasks(context.Context) ([]*target.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]*target.Task, len(f.tasks))
	copy(out, f.tasks)
	return out, nil
}

func (f *fakeTarget) CreateTask(_ context.Context, p *target.Payload) (*target.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[p.Name] {
		return nil, cerr.NewError(cerr.Unavailable, "target down", errors.New("503"))
	}
	f.creates++
	t := &target.Task{ID: fmt.Sprintf("T-%d", f.creates), Name: p.Name, Description: p.Description}
	f.tasks = append(f.tasks, t)
	return t, nil
}

func (f *fakeTarget) UpdateTask(_ context.Context, _ string, _ *target.Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	return nil
}

func (f *fakeTarget) remove(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, t := range f.tasks {
		if t.ID == id {
			f.tasks = append(f.tasks[:i], f.tasks[i+1:]...)
			return
		}
	}
}

type noopRoster struct{}

func (noopRoster) EnsureFresh(context.Context) error { return nil }

type harness struct {
	engine *Engine
	source *fakeSource
	target *fakeTarget
	ledger *ledgerrepo.YAMLRepository
	links  *linkcache.Cache
	store  storage.Storage
	bus    *eventbus.Bus
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return newHarnessWithStore(t, store, &fakeTarget{}, cfg)
}

func newHarnessWithStore(t *testing.T, store storage.Storage, tgt *fakeTarget, cfg Config) *harness {
	t.Helper()
	src := &fakeSource{}
	ledgerRepo := ledgerrepo.NewYAMLRepository(store)
	cache := linkcache.New(tgt, linkrepo.NewYAMLRepository(store), linkcache.Config{TTL: time.Hour, RefreshEvery: 0})
	disp := dispatcher.New(cache, tgt, dispatcher.Config{Workers: 2, RequestTimeout: time.Second})
	bus := eventbus.New()
	return &harness{
		engine: NewEngine(src, transform.New(nil), noopRoster{}, cache, disp, ledgerRepo, bus, cfg),
		source: src,
		target: tgt,
		ledger: ledgerRepo,
		links:  cache,
		store:  store,
		bus:    bus,
	}
}

func (h *harness) run(t *testing.T) *Report {
	t.Helper()
	report, err := h.engine.RunOnce(context.Background())
	require.NoError(t, err)
	require.NotNil(t, report)
	return report
}

func TestEngine_BootstrapIsIdempotent(t *testing.T) {
	for _, k := range []int{1, 3, 25} {
		t.Run(fmt.Sprintf("%d records", k), func(t *testing.T) {
			h := newHarness(t, Config{})
			ids := make([]string, k)
			for i := range ids {
				ids[i] = fmt.Sprintf("p%d", i)
			}
			h.source.set(ids...)

			first := h.run(t)
			assert.True(t, first.Bootstrapped)
			assert.Equal(t, k, first.Seeded)
			assert.Zero(t, h.target.creates)

			second := h.run(t)
			assert.False(t, second.Bootstrapped)
			assert.Zero(t, second.New)
			assert.Zero(t, h.target.creates)
			assert.Zero(t, h.target.updates)

			doc, err := h.ledger.Load(context.Background())
			require.NoError(t, err)
			assert.True(t, doc.Initialized)
			assert.Len(t, doc.TaskIDs, k)
		})
	}
}

func TestEngine_EmptySourceLeavesStateUntouched(t *testing.T) {
	h := newHarness(t, Config{})

	report := h.run(t)
	assert.True(t, report.Skipped)
	assert.False(t, report.Bootstrapped)
	_, err := h.ledger.Load(context.Background())
	assert.True(t, cerr.IsCode(err, cerr.NotFound), "nothing persisted")

	// an empty listing after bootstrap does not wipe the ledger either
	h.source.set("a")
	h.run(t)
	h.source.set()
	report = h.run(t)
	assert.True(t, report.Skipped)
	doc, err := h.ledger.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, doc.TaskIDs)
}

func TestEngine_NewRecordIsCreatedOnce(t *testing.T) {
	h := newHarness(t, Config{})
	h.source.set("b")
	h.run(t)

	h.source.set("a", "b")
	report := h.run(t)
	assert.Equal(t, 1, report.New)
	assert.Equal(t, 1, report.Created)
	assert.Zero(t, report.Updated)
	assert.Equal(t, 1, h.target.creates)
	require.Len(t, h.target.tasks, 1)
	assert.Equal(t, "[SRC:a]", h.target.tasks[0].Description)

	id, ok := h.links.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, "T-1", id)

	report = h.run(t)
	assert.Zero(t, report.New)
	assert.Equal(t, 1, h.target.creates)
	assert.Zero(t, h.target.updates)
}

func TestEngine_FailedRecordIsNotRetried(t *testing.T) {
	h := newHarness(t, Config{})
	h.source.set("old")
	h.run(t)

	h.target.failFor = map[string]bool{"task broken": true}
	h.source.set("broken", "good", "old")
	report := h.run(t)
	assert.Equal(t, 2, report.New)
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "broken", report.Failures[0].SourceID)

	h.target.failFor = nil
	report = h.run(t)
	assert.Zero(t, report.New)
	assert.Equal(t, 1, h.target.creates)
}

func TestEngine_ExistingLinkIsUpdated(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Config{})
	h.source.set("old")
	h.run(t)

	// the target already holds a task for "fresh", e.g. from an earlier
	// install whose ledger was lost
	h.target.tasks = []*target.Task{{ID: "T-77", Description: linkcache.Decorate("fresh", "x")}}
	h.source.set("fresh", "old")
	report := h.run(t)
	assert.True(t, report.LinksRefreshed)
	assert.Equal(t, 1, report.Updated)
	assert.Zero(t, report.Created)
	assert.Zero(t, h.target.creates)

	doc, err := h.ledger.Load(ctx)
	require.NoError(t, err)
	assert.Contains(t, doc.TaskIDs, "fresh")
}

func TestEngine_ListingFailure(t *testing.T) {
	h := newHarness(t, Config{})
	sub, ch := h.bus.Subscribe(4)
	defer h.bus.Unsubscribe(sub)

	h.source.err = cerr.NewError(cerr.Unavailable, "notion unavailable", errors.New("dial"))
	report, err := h.engine.RunOnce(context.Background())
	require.Error(t, err)
	require.NotNil(t, report)
	assert.True(t, cerr.IsTransport(err))

	ev := <-ch
	assert.Equal(t, eventbus.CycleFailed, ev.Type)
	assert.Equal(t, report.CycleID, ev.ResourceID)
}

func TestEngine_RestartKeepsLedger(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	tgt := &fakeTarget{}

	h := newHarnessWithStore(t, store, tgt, Config{})
	h.source.set("a")
	h.run(t)
	h.source.set("b", "a")
	h.run(t)
	require.Equal(t, 1, tgt.creates)

	restarted := newHarnessWithStore(t, store, tgt, Config{})
	restarted.source.set("b", "a")
	report := restarted.run(t)
	assert.False(t, report.Bootstrapped)
	assert.Zero(t, report.New)
	assert.Equal(t, 1, tgt.creates)
	state := restarted.engine.State()
	assert.True(t, state.Ledger.Initialized)
	assert.Equal(t, []string{"a", "b"}, state.Ledger.TaskIDs)
}

func TestEngine_Reset(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Config{})
	sub, ch := h.bus.Subscribe(8)
	defer h.bus.Unsubscribe(sub)

	h.source.set("a")
	h.run(t)
	h.source.set("b", "a")
	h.run(t)
	require.Equal(t, 1, h.links.Len())

	require.NoError(t, h.engine.Reset(ctx))
	assert.Zero(t, h.links.Len())
	_, err := h.ledger.Load(ctx)
	assert.True(t, cerr.IsCode(err, cerr.NotFound))
	assert.False(t, h.engine.State().Ledger.Initialized)

	var types []eventbus.EventType
	for len(ch) > 0 {
		types = append(types, (<-ch).Type)
	}
	assert.Equal(t, []eventbus.EventType{eventbus.CycleCompleted, eventbus.CycleCompleted, eventbus.StateReset}, types)

	// after a reset the next cycle bootstraps instead of pushing everything
	report := h.run(t)
	assert.True(t, report.Bootstrapped)
	assert.Equal(t, 1, h.target.creates)
}

func TestEngine_RecreateDeleted(t *testing.T) {
	tests := []struct {
		name     string
		recreate bool
		creates  int
	}{
		{name: "disabled keeps deleted records deleted", recreate: false, creates: 1},
		{name: "enabled creates them again", recreate: true, creates: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := storage.NewLocalStorage(t.TempDir())
			require.NoError(t, err)
			tgt := &fakeTarget{tasks: []*target.Task{{ID: "T-manual", Description: "not mirrored"}}}
			h := newHarnessWithStore(t, store, tgt, Config{RecreateDeleted: tt.recreate})

			h.source.set("seed")
			h.run(t)
			h.source.set("a", "seed")
			h.run(t)
			require.Equal(t, 1, tgt.creates)

			// someone deletes the mirrored task by hand
			tgt.remove("T-1")
			// past the link TTL so the next miss triggers a refresh
			h.engine.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
			h.source.set("b", "a", "seed")
			report := h.run(t)
			assert.True(t, report.LinksRefreshed)
			if tt.recreate {
				assert.Equal(t, 1, report.Forgotten)
			} else {
				assert.Zero(t, report.Forgotten)
			}

			h.source.set("c", "b", "a", "seed")
			h.run(t)
			// b and c are new; a comes back only when re-creation is on
			assert.Equal(t, tt.creates+2, tgt.creates)
		})
	}
}

// deniedLinkRepo persists normally but refuses to delete the snapshot.
type deniedLinkRepo struct {
	*linkrepo.YAMLRepository
}

func (deniedLinkRepo) Delete(context.Context) error {
	return cerr.NewError(cerr.PermissionDenied, "delete denied", errors.New("s3: access denied"))
}

func TestEngine_ResetKeepsLedgerWhenLinksCannotBeCleared(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	tgt := &fakeTarget{}
	src := &fakeSource{}
	ledgerRepo := ledgerrepo.NewYAMLRepository(store)
	linkRepo := linkrepo.NewYAMLRepository(store)
	cache := linkcache.New(tgt, deniedLinkRepo{linkRepo}, linkcache.Config{TTL: time.Hour})
	disp := dispatcher.New(cache, tgt, dispatcher.Config{Workers: 1, RequestTimeout: time.Second})
	bus := eventbus.New()
	engine := NewEngine(src, transform.New(nil), noopRoster{}, cache, disp, ledgerRepo, bus, Config{})
	sub, ch := bus.Subscribe(8)
	defer bus.Unsubscribe(sub)

	src.set("a")
	_, err = engine.RunOnce(ctx)
	require.NoError(t, err)
	src.set("b", "a")
	_, err = engine.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, cache.Len())

	require.Error(t, engine.Reset(ctx))

	doc, err := ledgerRepo.Load(ctx)
	require.NoError(t, err, "ledger must survive a failed reset")
	assert.True(t, doc.Initialized)
	assert.Equal(t, []string{"a", "b"}, doc.TaskIDs)
	assert.True(t, engine.State().Ledger.Initialized)

	snap, err := linkRepo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"b": "T-1"}, snap.Links)
	id, ok := cache.Lookup("b")
	assert.True(t, ok)
	assert.Equal(t, "T-1", id)

	for len(ch) > 0 {
		assert.NotEqual(t, eventbus.StateReset, (<-ch).Type)
	}

	// nothing was forgotten, so the next cycle neither bootstraps nor re-creates
	report, err := engine.RunOnce(ctx)
	require.NoError(t, err)
	assert.False(t, report.Bootstrapped)
	assert.Zero(t, report.New)
	assert.Equal(t, 1, tgt.creates)
}

func TestEngine_PanicFailsCycle(t *testing.T) {
	h := newHarness(t, Config{})
	sub, ch := h.bus.Subscribe(4)
	defer h.bus.Unsubscribe(sub)

	h.source.crash = true
	report, err := h.engine.RunOnce(context.Background())
	require.Error(t, err)
	require.NotNil(t, report)
	assert.Contains(t, err.Error(), "decoder blew up")
	assert.False(t, h.engine.State().Running)

	ev := <-ch
	assert.Equal(t, eventbus.CycleFailed, ev.Type)
	assert.Equal(t, report.CycleID, ev.ResourceID)
	assert.Contains(t, ev.Metadata["error"], "decoder blew up")

	// the cycle lock was released
	h.source.crash = false
	h.source.set("a")
	assert.True(t, h.run(t).Bootstrapped)
}
