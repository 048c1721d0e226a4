package linkcache

import (
	"context"
	"time"
)

// Snapshot is the persisted form of the cache.
type Snapshot struct {
	Links       map[string]string `yaml:"links"`
	RefreshedAt time.Time         `yaml:"refreshed_at"`
	UpdatedAt   time.Time         `yaml:"updated_at"`
}

type Repository interface {
	// Load returns a NotFound error when no snapshot was saved yet.
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, s *Snapshot) error
	Delete(ctx context.Context) error
}
