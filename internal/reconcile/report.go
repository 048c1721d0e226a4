package reconcile

import (
	"time"

	"github.com/kazz187/taskmirror/internal/ledger"
)

type Phase string

const (
	PhaseIdle          Phase = "idle"
	PhaseListing       Phase = "listing"
	PhaseBootstrapping Phase = "bootstrapping"
	PhaseDiffing       Phase = "diffing"
	PhaseDispatching   Phase = "dispatching"
	PhasePersisting    Phase = "persisting"
)

type Failure struct {
	SourceID string `json:"source_id"`
	Error    string `json:"error"`
}

// Report summarizes one cycle.
type Report struct {
	CycleID    string    `json:"cycle_id"`
	Cycle      int       `json:"cycle"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Listed int `json:"listed"`
	// Skipped is set when the source returned no records and nothing was
	// touched.
	Skipped      bool `json:"skipped"`
	Bootstrapped bool `json:"bootstrapped"`
	Seeded       int  `json:"seeded"`

	New       int       `json:"new"`
	Created   int       `json:"created"`
	Updated   int       `json:"updated"`
	Failed    int       `json:"failed"`
	Failures  []Failure `json:"failures,omitempty"`
	Forgotten int       `json:"forgotten"`

	LinksRefreshed bool `json:"links_refreshed"`
	KnownTasks     int  `json:"known_tasks"`
}

// State is a read-only snapshot of the engine's durable state.
type State struct {
	Ledger           *ledger.Document `json:"ledger"`
	Links            int              `json:"links"`
	LinksRefreshedAt time.Time        `json:"links_refreshed_at"`
	Cycles           int              `json:"cycles"`
	Running          bool             `json:"running"`
}
