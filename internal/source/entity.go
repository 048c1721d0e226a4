package source

import (
	"context"
	"time"
)

// Record is one task row of the source system. Every field besides ID may be
// empty; the transformer applies defaults.
type Record struct {
	ID          string
	CreatedAt   time.Time
	Title       string
	Status      string
	Priority    string
	Due         string
	Description string
	Assignees   []Assignee
}

// Assignee is a person reference on a source record. At least one of the
// fields is set.
type Assignee struct {
	Name  string
	Email string
}

// Lister returns every record currently visible in the source, newest
// first.
type Lister interface {
	ListRecords(ctx context.Context) ([]*Record, error)
}
