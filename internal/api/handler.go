package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/rpattn/refql/internal/domain"
	"github.com/rpattn/refql/internal/middleware"
	"github.com/rpattn/refql/internal/query"
	"github.com/rpattn/refql/internal/schema"
	"github.com/rpattn/refql/internal/store"
)

// Handler exposes the query surface over HTTP. Every read filter runs
// through the rewriter before it reaches the store, so clients can filter
// across reference fields with plain dotted paths.
type Handler struct {
	registry *schema.Registry
	store    store.Store
	maxDepth int
}

// New creates the API handler. maxDepth bounds transitive reference
// resolution per query; zero leaves it unbounded.
func New(registry *schema.Registry, st store.Store, maxDepth int) *Handler {
	return &Handler{registry: registry, store: st, maxDepth: maxDepth}
}

// Routes registers the API endpoints on a mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /collections", h.listCollections)
	mux.HandleFunc("POST /collections/{name}/query", h.queryCollection)
	mux.HandleFunc("POST /collections/{name}/count", h.countCollection)
	mux.HandleFunc("POST /collections/{name}/distinct", h.distinctCollection)
	mux.HandleFunc("POST /collections/{name}/documents", h.createDocument)
	mux.HandleFunc("GET /documents/{id}", h.getDocument)
}

type queryRequest struct {
	Filter     domain.Condition `json:"filter"`
	Projection []string         `json:"projection,omitempty"`
}

type distinctRequest struct {
	Field  string           `json:"field"`
	Filter domain.Condition `json:"filter"`
}

type createDocumentRequest struct {
	Properties map[string]any `json:"properties"`
}

func (h *Handler) listCollections(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"collections": h.registry.Collections()})
}

func (h *Handler) queryCollection(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	filter, ok := h.rewriteFilter(w, r, name, req.Filter)
	if !ok {
		return
	}

	docs, err := h.store.Find(r.Context(), name, filter, req.Projection)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs, "total": len(docs)})
}

func (h *Handler) countCollection(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	filter, ok := h.rewriteFilter(w, r, name, req.Filter)
	if !ok {
		return
	}

	count, err := h.store.Count(r.Context(), name, filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": count})
}

func (h *Handler) distinctCollection(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var req distinctRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if strings.TrimSpace(req.Field) == "" {
		writeError(w, http.StatusBadRequest, errors.New("field is required"))
		return
	}

	filter, ok := h.rewriteFilter(w, r, name, req.Filter)
	if !ok {
		return
	}

	values, err := h.store.Distinct(r.Context(), name, req.Field, filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"values": values})
}

func (h *Handler) createDocument(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if _, ok := h.registry.Lookup(name); !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("collection %s is not registered", name))
		return
	}

	var req createDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	doc, err := h.store.Insert(r.Context(), domain.NewDocument(name, req.Properties))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (h *Handler) getDocument(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid document id: %w", err))
		return
	}

	if loader := middleware.DocumentLoaderFromContext(r.Context()); loader != nil {
		doc, found, err := loader.Load(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if !found {
			writeError(w, http.StatusNotFound, fmt.Errorf("document %s not found", id))
			return
		}
		writeJSON(w, http.StatusOK, doc)
		return
	}

	docs, err := h.store.GetByIDs(r.Context(), []uuid.UUID{id})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if len(docs) == 0 {
		writeError(w, http.StatusNotFound, fmt.Errorf("document %s not found", id))
		return
	}
	writeJSON(w, http.StatusOK, docs[0])
}

// rewriteFilter resolves cross-reference paths in the filter. It writes
// the error response itself and reports success through the bool.
func (h *Handler) rewriteFilter(w http.ResponseWriter, r *http.Request, collection string, filter domain.Condition) (domain.Condition, bool) {
	rewriter, err := query.NewRewriter(h.registry, h.store, collection, query.WithMaxDepth(h.maxDepth))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, query.ErrUnknownCollection) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return nil, false
	}

	rewritten, err := rewriter.Rewrite(r.Context(), filter)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, query.ErrMaxDepth) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return nil, false
	}
	if rewritten == nil {
		rewritten = domain.Condition{}
	}
	return rewritten, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
