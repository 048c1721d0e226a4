package repositoryimpl

import (
	"context"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/kazz187/taskmirror/internal/ledger"
	"github.com/kazz187/taskmirror/pkg/cerr"
	"github.com/kazz187/taskmirror/pkg/storage"
)

const ledgerPath = "state/ledger.yaml"

// YAMLRepository stores the ledger as a single YAML document.
type YAMLRepository struct {
	storage storage.Storage
}

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

func (r *YAMLRepository) Load(ctx context.Context) (*ledger.Document, error) {
	data, err := r.storage.Read(ctx, ledgerPath)
	if err != nil {
		return nil, cerr.WrapStorageReadError("ledger", err)
	}
	var doc ledger.Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, cerr.NewError(cerr.DataLoss, "ledger corrupt", fmt.Errorf("failed to unmarshal ledger: %w", err))
	}
	return &doc, nil
}

func (r *YAMLRepository) Save(ctx context.Context, doc *ledger.Document) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal ledger: %w", err))
	}
	if err := r.storage.Write(ctx, ledgerPath, data); err != nil {
		return cerr.WrapStorageWriteError("ledger", err)
	}
	return nil
}

func (r *YAMLRepository) Delete(ctx context.Context) error {
	if err := r.storage.Delete(ctx, ledgerPath); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return cerr.WrapStorageDeleteError("ledger", err)
	}
	return nil
}
