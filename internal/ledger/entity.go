package ledger

import (
	"slices"
	"time"
)

// Document is the persisted form of the ledger.
type Document struct {
	TaskIDs       []string   `yaml:"task_ids"`
	Initialized   bool       `yaml:"initialized"`
	InitializedAt *time.Time `yaml:"initialized_at,omitempty"`
	UpdatedAt     time.Time  `yaml:"updated_at"`
}

// Ledger is the set of source ids that have already been attempted. Once an
// id is in the ledger it is never dispatched again unless it is forgotten
// explicitly.
//
// Ledger is not safe for concurrent use; the reconciliation cycle owns it.
type Ledger struct {
	known         map[string]struct{}
	order         []string
	initialized   bool
	initializedAt *time.Time
}

func New() *Ledger {
	return &Ledger{known: make(map[string]struct{})}
}

func FromDocument(doc *Document) *Ledger {
	l := New()
	if doc == nil {
		return l
	}
	for _, id := range doc.TaskIDs {
		l.Add(id)
	}
	l.initialized = doc.Initialized
	if doc.InitializedAt != nil {
		at := *doc.InitializedAt
		l.initializedAt = &at
	}
	return l
}

// Document returns the persisted form. Ids are sorted so that repeated saves
// of the same set produce identical documents.
func (l *Ledger) Document(now time.Time) *Document {
	ids := slices.Clone(l.order)
	slices.Sort(ids)
	doc := &Document{
		TaskIDs:     ids,
		Initialized: l.initialized,
		UpdatedAt:   now.UTC(),
	}
	if l.initializedAt != nil {
		at := *l.initializedAt
		doc.InitializedAt = &at
	}
	return doc
}

func (l *Ledger) Contains(id string) bool {
	_, ok := l.known[id]
	return ok
}

// Add records id and reports whether it was new.
func (l *Ledger) Add(id string) bool {
	if id == "" || l.Contains(id) {
		return false
	}
	l.known[id] = struct{}{}
	l.order = append(l.order, id)
	return true
}

// Bootstrap seeds the ledger with every id currently in the source and marks
// it initialized. Calling it on an initialized ledger only adds ids.
func (l *Ledger) Bootstrap(ids []string, now time.Time) int {
	added := 0
	for _, id := range ids {
		if l.Add(id) {
			added++
		}
	}
	if !l.initialized {
		l.initialized = true
		at := now.UTC()
		l.initializedAt = &at
	}
	return added
}

// Forget removes ids so that a later cycle treats them as new again.
func (l *Ledger) Forget(ids []string) int {
	removed := 0
	for _, id := range ids {
		if !l.Contains(id) {
			continue
		}
		delete(l.known, id)
		removed++
	}
	if removed > 0 {
		l.order = slices.DeleteFunc(l.order, func(id string) bool {
			return !l.Contains(id)
		})
	}
	return removed
}

func (l *Ledger) Initialized() bool {
	return l.initialized
}

func (l *Ledger) InitializedAt() *time.Time {
	return l.initializedAt
}

func (l *Ledger) Len() int {
	return len(l.known)
}
