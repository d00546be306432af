package docloader

import (
	"context"
	"fmt"
	"time"

	"github.com/rpattn/refql/internal/domain"
	"github.com/rpattn/refql/internal/store"

	"github.com/google/uuid"
	"github.com/graph-gophers/dataloader"
)

// DocumentLoader batches per-request document lookups so that resolving a
// page of membership results issues one GetByIDs instead of one fetch per
// identifier.
type DocumentLoader struct {
	Loader *dataloader.Loader
}

func NewDocumentLoader(st store.Store) *DocumentLoader {
	batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		// Convert keys to []uuid.UUID
		ids := make([]uuid.UUID, len(keys))
		for i, k := range keys {
			id, err := uuid.Parse(k.String())
			if err != nil {
				return []*dataloader.Result{{Error: fmt.Errorf("invalid UUID: %w", err)}}
			}
			ids[i] = id
		}

		// Fetch documents in batch
		docs, err := st.GetByIDs(ctx, ids)
		if err != nil {
			results := make([]*dataloader.Result, len(keys))
			for i := range results {
				results[i] = &dataloader.Result{Error: err}
			}
			return results
		}

		// Map UUID -> document for ordering
		docMap := make(map[uuid.UUID]domain.Document)
		for _, d := range docs {
			docMap[d.ID] = d
		}

		// Build results in the same order as keys
		results := make([]*dataloader.Result, len(keys))
		for i, id := range ids {
			if d, ok := docMap[id]; ok {
				results[i] = &dataloader.Result{Data: d}
			} else {
				results[i] = &dataloader.Result{Data: nil}
			}
		}

		return results
	}

	loader := dataloader.NewBatchedLoader(batchFn, dataloader.WithWait(5*time.Millisecond))

	return &DocumentLoader{Loader: loader}
}

// Load fetches one document through the batch loader.
func (l *DocumentLoader) Load(ctx context.Context, id uuid.UUID) (domain.Document, bool, error) {
	thunk := l.Loader.Load(ctx, dataloader.StringKey(id.String()))
	data, err := thunk()
	if err != nil {
		return domain.Document{}, false, err
	}
	doc, ok := data.(domain.Document)
	if !ok {
		return domain.Document{}, false, nil
	}
	return doc, true, nil
}
