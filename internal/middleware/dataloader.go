package middleware

import (
	"context"
	"net/http"

	"github.com/rpattn/refql/internal/docloader"
	"github.com/rpattn/refql/internal/store"
)

type ctxKey string

const documentLoaderKey ctxKey = "documentLoader"

// DataLoaderMiddleware attaches a per-request document loader to the
// request context so lookups within one request batch together.
func DataLoaderMiddleware(st store.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			loader := docloader.NewDocumentLoader(st)

			ctx := context.WithValue(r.Context(), documentLoaderKey, loader)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// DocumentLoaderFromContext retrieves the document loader from context
func DocumentLoaderFromContext(ctx context.Context) *docloader.DocumentLoader {
	if l, ok := ctx.Value(documentLoaderKey).(*docloader.DocumentLoader); ok {
		return l
	}
	return nil
}
