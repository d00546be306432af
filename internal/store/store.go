package store

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/rpattn/refql/internal/domain"
)

// Store executes primitive operations against named collections. The query
// rewriter only depends on FindIDs; the rest serves the API surface.
//
// Implementations must support the operator subset the rewriter produces:
// logical conjunction/disjunction, equality, membership and dotted paths.
type Store interface {
	Insert(ctx context.Context, doc domain.Document) (domain.Document, error)
	Find(ctx context.Context, collection string, filter domain.Condition, projection []string) ([]domain.Document, error)
	FindIDs(ctx context.Context, collection string, filter domain.Condition) ([]uuid.UUID, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Document, error)
	Count(ctx context.Context, collection string, filter domain.Condition) (int64, error)
	Distinct(ctx context.Context, collection string, field string, filter domain.Condition) ([]any, error)
}

// project trims a document's properties to the projected paths. An empty
// projection keeps everything. Dotted projections keep their whole
// top-level property.
func project(doc domain.Document, projection []string) domain.Document {
	if len(projection) == 0 {
		return doc
	}

	keep := make(map[string]struct{}, len(projection))
	for _, path := range projection {
		head, _, _ := strings.Cut(path, domain.PathSeparator)
		keep[head] = struct{}{}
	}

	trimmed := make(map[string]any, len(keep))
	for key, value := range doc.Properties {
		if _, ok := keep[key]; ok {
			trimmed[key] = value
		}
	}
	doc.Properties = trimmed
	return doc
}
