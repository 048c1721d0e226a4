package identity

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kazz187/taskmirror/internal/source"
	"github.com/kazz187/taskmirror/internal/target"
	"github.com/kazz187/taskmirror/internal/task"
)

type MemberLister interface {
	ListMembers(ctx context.Context) ([]*target.Member, error)
}

// Resolver maps source assignees to target user ids using a roster that is
// loaded once and rebuilt only after Invalidate.
type Resolver struct {
	members MemberLister

	mu       sync.RWMutex
	roster   *Roster
	loadedAt time.Time
	stale    bool
}

func NewResolver(members MemberLister) *Resolver {
	return &Resolver{members: members, stale: true}
}

// Load fetches the roster with one remote listing. On failure the previous
// roster, if any, stays in use.
func (r *Resolver) Load(ctx context.Context) error {
	members, err := r.members.ListMembers(ctx)
	if err != nil {
		return err
	}
	roster := BuildRoster(members)

	r.mu.Lock()
	r.roster = roster
	r.loadedAt = time.Now()
	r.stale = false
	r.mu.Unlock()

	slog.InfoContext(ctx, "identity roster loaded", "members", roster.Len())
	return nil
}

// EnsureFresh loads the roster when it was never loaded or was invalidated.
func (r *Resolver) EnsureFresh(ctx context.Context) error {
	r.mu.RLock()
	stale := r.stale
	r.mu.RUnlock()
	if !stale {
		return nil
	}
	return r.Load(ctx)
}

func (r *Resolver) Invalidate() {
	r.mu.Lock()
	r.stale = true
	r.mu.Unlock()
}

// LoadedAt returns the time of the last successful load, zero if none.
func (r *Resolver) LoadedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loadedAt
}

// Resolve returns at most one id per assignee, without duplicates, in the
// order the assignees are given. Without a roster it returns nothing.
func (r *Resolver) Resolve(ctx context.Context, refs []source.Assignee) []task.UserID {
	if len(refs) == 0 {
		return nil
	}
	r.mu.RLock()
	roster := r.roster
	r.mu.RUnlock()
	if roster == nil {
		slog.WarnContext(ctx, "identity roster unavailable, dropping assignees", "assignees", len(refs))
		return nil
	}

	n := &task.Normalized{}
	for _, ref := range refs {
		id, ok := roster.Match(ref.Name, ref.Email)
		if !ok {
			slog.WarnContext(ctx, "assignee not found in roster", "name", ref.Name, "email", ref.Email)
			continue
		}
		n.AddAssignee(id)
	}
	return n.AssigneeIDs
}
