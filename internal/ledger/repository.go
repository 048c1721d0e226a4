package ledger

import (
	"context"
	"log/slog"

	"github.com/kazz187/taskmirror/pkg/cerr"
)

// Repository persists the ledger document.
type Repository interface {
	// Load returns a NotFound error when no document was saved yet.
	Load(ctx context.Context) (*Document, error)
	Save(ctx context.Context, doc *Document) error
	// Delete succeeds when there is nothing to delete.
	Delete(ctx context.Context) error
}

// LoadOrEmpty reads the persisted ledger. A missing document gives an empty
// ledger; an unreadable one does too, with a warning, because a cycle that
// cannot read its ledger treats everything as a first run.
func LoadOrEmpty(ctx context.Context, repo Repository) *Ledger {
	doc, err := repo.Load(ctx)
	switch {
	case err == nil:
		return FromDocument(doc)
	case cerr.IsCode(err, cerr.NotFound):
		return New()
	default:
		slog.WarnContext(ctx, "ledger unreadable, starting empty", "error", err)
		return New()
	}
}
