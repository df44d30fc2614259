package api

import (
	"encoding/json"
	"net/http"

	"github.com/nikicat/mcewatch/internal/mce"
	"github.com/nikicat/mcewatch/internal/monitor"
)

// Handlers provides HTTP handlers for the REST API.
type Handlers struct {
	source StateSource
}

// NewHandlers creates new API handlers.
func NewHandlers(source StateSource) *Handlers {
	return &Handlers{source: source}
}

// HandleStatus handles GET /api/v1/status.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	entities := h.source.Snapshots()
	if entities == nil {
		entities = []monitor.Snapshot{}
	}
	writeJSON(w, StatusResponse{
		Running:  true,
		Valid:    h.source.AllValid(),
		Entities: entities,
	})
}

// HandleKind handles GET /api/v1/status/{kind}.
func (h *Handlers) HandleKind(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	kind, err := mce.ParseKind(r.PathValue("kind"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	snap, ok := h.source.Snapshot(kind)
	if !ok {
		writeError(w, "kind not watched: "+string(kind), http.StatusNotFound)
		return
	}
	writeJSON(w, snap)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}
