package task

import (
	"slices"
	"time"
)

type Status int

const (
	StatusToDo Status = iota
	StatusInProgress
	StatusComplete
	StatusClosed
)

// String returns the target-side status name.
func (s Status) String() string {
	switch s {
	case StatusInProgress:
		return "in progress"
	case StatusComplete:
		return "complete"
	case StatusClosed:
		return "closed"
	default:
		return "to do"
	}
}

// Priority values are the target system's numeric priorities.
type Priority int

const (
	PriorityUrgent Priority = 1
	PriorityNormal Priority = 3
	PriorityLow    Priority = 4
)

func (p Priority) String() string {
	switch p {
	case PriorityUrgent:
		return "urgent"
	case PriorityLow:
		return "low"
	default:
		return "normal"
	}
}

// UserID identifies a member of the target workspace.
type UserID int64

// Normalized is the target-shaped payload built from one source record. It is
// produced once per record per cycle and not modified afterwards.
type Normalized struct {
	SourceID    string
	Title       string
	Status      Status
	Priority    Priority
	Due         *time.Time
	DueHasTime  bool
	Description string
	AssigneeIDs []UserID
}

// AddAssignee appends id unless it is already present, keeping first-seen
// order so repeated payloads are identical.
func (n *Normalized) AddAssignee(id UserID) {
	if slices.Contains(n.AssigneeIDs, id) {
		return
	}
	n.AssigneeIDs = append(n.AssigneeIDs, id)
}
