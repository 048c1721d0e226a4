package status

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kazz187/taskmirror/internal/eventbus"
	"github.com/kazz187/taskmirror/internal/reconcile"
)

type StateSource interface {
	State() *reconcile.State
}

// Status is the service summary served by the admin surface.
type Status struct {
	ServiceStarted time.Time         `json:"service_started"`
	LastSync       *time.Time        `json:"last_sync"`
	Running        bool              `json:"running"`
	Cycles         int               `json:"cycles"`
	TotalSynced    int               `json:"total_synced"`
	TotalUpdated   int               `json:"total_updated"`
	TotalFailed    int               `json:"total_failed"`
	Errors         int               `json:"errors"`
	LastError      string            `json:"last_error,omitempty"`
	LastReport     *reconcile.Report `json:"last_report,omitempty"`
	KnownTasks     int               `json:"known_tasks"`
	Initialized    bool              `json:"initialized"`
	Links          int               `json:"links"`
}

// Tracker aggregates cycle events into a Status.
type Tracker struct {
	bus   *eventbus.Bus
	state StateSource
	subID string
	ch    <-chan *eventbus.Event

	mu     sync.RWMutex
	status Status
}

// NewTracker subscribes immediately so that no event published before Start
// is missed.
func NewTracker(bus *eventbus.Bus, state StateSource) *Tracker {
	subID, ch := bus.Subscribe(64)
	return &Tracker{
		bus:    bus,
		state:  state,
		subID:  subID,
		ch:     ch,
		status: Status{ServiceStarted: time.Now()},
	}
}

// Start consumes events until ctx is cancelled.
func (t *Tracker) Start(ctx context.Context) {
	defer t.bus.Unsubscribe(t.subID)
	slog.Info("status tracker started")
	for {
		select {
		case <-ctx.Done():
			slog.Info("status tracker stopped")
			return
		case event, ok := <-t.ch:
			if !ok {
				return
			}
			t.apply(event)
		}
	}
}

func (t *Tracker) apply(event *eventbus.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch event.Type {
	case eventbus.CycleCompleted, eventbus.CycleFailed:
		report, _ := event.Payload.(*reconcile.Report)
		t.status.Cycles++
		if report != nil {
			t.status.LastReport = report
			t.status.TotalSynced += report.Created
			t.status.TotalUpdated += report.Updated
			t.status.TotalFailed += report.Failed
			t.status.Errors += report.Failed
			if len(report.Failures) > 0 {
				t.status.LastError = report.Failures[len(report.Failures)-1].Error
			}
		}
		if event.Type == eventbus.CycleFailed {
			t.status.Errors++
			t.status.LastError = event.Metadata["error"]
			return
		}
		at := event.CreatedAt
		t.status.LastSync = &at
	case eventbus.StateReset:
		t.status.LastReport = nil
	}
}

// Status merges the aggregated counters with the engine's current state.
func (t *Tracker) Status() *Status {
	t.mu.RLock()
	s := t.status
	t.mu.RUnlock()

	if st := t.state.State(); st != nil {
		s.Running = st.Running
		s.Links = st.Links
		if st.Ledger != nil {
			s.KnownTasks = len(st.Ledger.TaskIDs)
			s.Initialized = st.Ledger.Initialized
		}
	}
	return &s
}
