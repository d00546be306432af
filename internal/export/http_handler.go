package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/rpattn/refql/internal/domain"
)

// Handler exposes export as an HTTP endpoint.
type Handler struct {
	service *Service
}

// NewHTTPHandler wraps the service with a POST endpoint.
func NewHTTPHandler(service *Service) http.Handler {
	return &Handler{service: service}
}

type exportPayload struct {
	Collection string           `json:"collection"`
	Filter     domain.Condition `json:"filter"`
	Format     string           `json:"format"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()

	var payload exportPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(payload.Collection) == "" {
		http.Error(w, "collection is required", http.StatusBadRequest)
		return
	}

	format := Format(strings.ToLower(strings.TrimSpace(payload.Format)))
	if format == "" {
		format = FormatCSV
	}

	// Buffer the file so a failing export still yields a clean error
	// response instead of a truncated download.
	var buf bytes.Buffer
	result, err := h.service.Export(r.Context(), Request{
		Collection: payload.Collection,
		Filter:     payload.Filter,
		Format:     format,
	}, &buf)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	switch format {
	case FormatXLSX:
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	default:
		w.Header().Set("Content-Type", "text/csv")
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.FileName))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
