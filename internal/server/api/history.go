package api

import (
	"net/http"
	"strconv"

	"github.com/ayusman/handsign/internal/store"
)

// DefaultHistoryLimit is used when the request has no limit parameter.
const DefaultHistoryLimit = 50

// MaxHistoryLimit caps the limit parameter.
const MaxHistoryLimit = 1000

type historyResponse struct {
	Recognitions []*store.Recognition `json:"recognitions"`
	Counts       map[string]int       `json:"counts"`
}

// HistoryHandler serves GET /api/history.
type HistoryHandler struct {
	store *store.Store
}

// NewHistoryHandler creates a new HistoryHandler with the given store.
func NewHistoryHandler(s *store.Store) *HistoryHandler {
	return &HistoryHandler{store: s}
}

// ServeHTTP implements the http.Handler interface.
func (h *HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := DefaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, MaxHistoryLimit)
	}

	recs, err := h.store.Recognitions().Recent(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list recognitions")
		return
	}
	counts, err := h.store.Recognitions().CountByLabel()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count recognitions")
		return
	}

	if recs == nil {
		recs = []*store.Recognition{}
	}
	writeJSON(w, http.StatusOK, historyResponse{Recognitions: recs, Counts: counts})
}
