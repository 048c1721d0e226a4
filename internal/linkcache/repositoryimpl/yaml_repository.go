package repositoryimpl

import (
	"context"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/kazz187/taskmirror/internal/linkcache"
	"github.com/kazz187/taskmirror/pkg/cerr"
	"github.com/kazz187/taskmirror/pkg/storage"
)

const linksPath = "state/links.yaml"

// YAMLRepository stores the link table as a single YAML document.
type YAMLRepository struct {
	storage storage.Storage
}

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

func (r *YAMLRepository) Load(ctx context.Context) (*linkcache.Snapshot, error) {
	data, err := r.storage.Read(ctx, linksPath)
	if err != nil {
		return nil, cerr.WrapStorageReadError("link snapshot", err)
	}
	var s linkcache.Snapshot
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, cerr.NewError(cerr.DataLoss, "link snapshot corrupt", fmt.Errorf("failed to unmarshal link snapshot: %w", err))
	}
	return &s, nil
}

func (r *YAMLRepository) Save(ctx context.Context, s *linkcache.Snapshot) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal link snapshot: %w", err))
	}
	if err := r.storage.Write(ctx, linksPath, data); err != nil {
		return cerr.WrapStorageWriteError("link snapshot", err)
	}
	return nil
}

func (r *YAMLRepository) Delete(ctx context.Context) error {
	if err := r.storage.Delete(ctx, linksPath); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return cerr.WrapStorageDeleteError("link snapshot", err)
	}
	return nil
}
