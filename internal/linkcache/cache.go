// Package linkcache keeps the source id to target id table rebuilt from the
// markers embedded in target task descriptions.
package linkcache

import (
	"context"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/kazz187/taskmirror/internal/target"
	"github.com/kazz187/taskmirror/pkg/cerr"
)

const (
	DefaultTTL          = 5 * time.Minute
	DefaultRefreshEvery = 20
)

type TaskLister interface {
	ListTasks(ctx context.Context) ([]*target.Task, error)
}

type Config struct {
	// TTL is the age after which a lookup miss triggers a refresh.
	TTL time.Duration
	// RefreshEvery forces a refresh every N cycles. Zero disables it.
	RefreshEvery int
}

// Cache is safe for concurrent lookups. Refresh, Put and Clear are expected
// to be called by a single owner between dispatch rounds.
type Cache struct {
	lister TaskLister
	repo   Repository
	cfg    Config

	mu          sync.RWMutex
	links       map[string]string
	refreshedAt time.Time
	known       bool
	dirty       bool
	vanished    []string
}

func New(lister TaskLister, repo Repository, cfg Config) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.RefreshEvery < 0 {
		cfg.RefreshEvery = 0
	}
	return &Cache{
		lister: lister,
		repo:   repo,
		cfg:    cfg,
		links:  make(map[string]string),
	}
}

func (c *Cache) Lookup(sourceID string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.links[sourceID]
	return id, ok
}

// Put records a link created during this process lifetime.
func (c *Cache) Put(sourceID, targetID string) {
	if sourceID == "" || targetID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.links[sourceID] == targetID {
		return
	}
	c.links[sourceID] = targetID
	c.dirty = true
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.links)
}

func (c *Cache) RefreshedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.refreshedAt
}

// NeedsRefresh reports whether the table should be rebuilt before the given
// cycle. A cache that was never filled always needs one. Otherwise it is due
// every RefreshEvery cycles, or when a lookup missed and the table is older
// than the TTL.
func (c *Cache) NeedsRefresh(now time.Time, cycle int, missed bool) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.known {
		return true
	}
	if c.cfg.RefreshEvery > 0 && cycle > 0 && cycle%c.cfg.RefreshEvery == 0 {
		return true
	}
	return missed && now.Sub(c.refreshedAt) > c.cfg.TTL
}

// Refresh rebuilds the table from a full listing of the target. On failure
// the previous table stays in place.
func (c *Cache) Refresh(ctx context.Context) (int, error) {
	tasks, err := c.lister.ListTasks(ctx)
	if err != nil {
		return 0, err
	}
	links := make(map[string]string, len(tasks))
	for _, t := range tasks {
		sourceID, ok := ParseMarker(t.Description)
		if !ok {
			continue
		}
		if _, dup := links[sourceID]; dup {
			slog.WarnContext(ctx, "several target tasks carry the same marker", "source_id", sourceID, "target_id", t.ID)
			continue
		}
		links[sourceID] = t.ID
	}

	now := time.Now()
	c.mu.Lock()
	// An empty listing cannot tell deletions apart from an outage of the
	// list, so nothing is reported as vanished then.
	c.vanished = nil
	if c.known && len(tasks) > 0 {
		for id := range c.links {
			if _, ok := links[id]; !ok {
				c.vanished = append(c.vanished, id)
			}
		}
	}
	c.links = links
	c.refreshedAt = now
	c.known = true
	c.dirty = true
	c.mu.Unlock()

	slog.InfoContext(ctx, "link cache refreshed", "tasks", len(tasks), "links", len(links))
	if err := c.Save(ctx); err != nil {
		slog.WarnContext(ctx, "failed to persist link snapshot", "error", err)
	}
	return len(links), nil
}

// TakeVanished returns the source ids whose link disappeared in the last
// refresh and clears the list.
func (c *Cache) TakeVanished() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.vanished
	c.vanished = nil
	return v
}

// Load warms the table from the persisted snapshot. A missing snapshot is
// not an error; an unreadable one is logged and ignored.
func (c *Cache) Load(ctx context.Context) error {
	s, err := c.repo.Load(ctx)
	if err != nil {
		if cerr.IsCode(err, cerr.NotFound) {
			return nil
		}
		if cerr.IsCode(err, cerr.DataLoss) {
			slog.WarnContext(ctx, "link snapshot unreadable, ignoring", "error", err)
			return nil
		}
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.links = make(map[string]string, len(s.Links))
	maps.Copy(c.links, s.Links)
	c.refreshedAt = s.RefreshedAt
	c.known = true
	c.dirty = false
	return nil
}

// Save persists the table when it changed since the last save.
func (c *Cache) Save(ctx context.Context) error {
	c.mu.RLock()
	if !c.dirty {
		c.mu.RUnlock()
		return nil
	}
	s := &Snapshot{
		Links:       maps.Clone(c.links),
		RefreshedAt: c.refreshedAt,
		UpdatedAt:   time.Now().UTC(),
	}
	c.mu.RUnlock()

	if err := c.repo.Save(ctx, s); err != nil {
		return err
	}
	c.mu.Lock()
	c.dirty = false
	c.mu.Unlock()
	return nil
}

// Clear drops the persisted snapshot, then the table. When the snapshot
// cannot be deleted the table is left as it was.
func (c *Cache) Clear(ctx context.Context) error {
	if err := c.repo.Delete(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	c.links = make(map[string]string)
	c.refreshedAt = time.Time{}
	c.known = false
	c.dirty = false
	c.vanished = nil
	c.mu.Unlock()
	return nil
}

// Links returns a copy of the table.
func (c *Cache) Links() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maps.Clone(c.links)
}
