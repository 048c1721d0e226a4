package target

import (
	"context"
	"time"

	"github.com/kazz187/taskmirror/internal/task"
)

// Task is a record of the target list as far as the mirror cares about it.
type Task struct {
	ID          string
	Name        string
	Description string
}

// Member is one person of the target workspace roster.
type Member struct {
	ID       task.UserID
	Username string
	Email    string
}

// Payload is the field set written on create or update. Description is only
// sent on create.
type Payload struct {
	Name        string
	Description string
	Status      task.Status
	Priority    task.Priority
	Due         *time.Time
	DueHasTime  bool
	Assignees   []task.UserID
}

// PayloadFrom builds the write payload for a normalized record. The
// description is left for the caller to decorate.
func PayloadFrom(n *task.Normalized) *Payload {
	return &Payload{
		Name:        n.Title,
		Description: n.Description,
		Status:      n.Status,
		Priority:    n.Priority,
		Due:         n.Due,
		DueHasTime:  n.DueHasTime,
		Assignees:   n.AssigneeIDs,
	}
}

type Client interface {
	// ListTasks returns every task of the configured list, closed ones
	// included.
	ListTasks(ctx context.Context) ([]*Task, error)
	CreateTask(ctx context.Context, p *Payload) (*Task, error)
	UpdateTask(ctx context.Context, id string, p *Payload) error
	ListMembers(ctx context.Context) ([]*Member, error)
}
