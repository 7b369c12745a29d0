package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/ternarybob/chomp/internal/common"
	"github.com/ternarybob/chomp/internal/feeder"
)

// StatusHandler serves the health endpoint.
type StatusHandler struct {
	cache *feeder.Cache
}

func NewStatusHandler(cache *feeder.Cache) *StatusHandler {
	return &StatusHandler{cache: cache}
}

// Health handles GET /health
func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":      "ok",
		"version":     common.GetVersion(),
		"active_jobs": h.cache.Len(),
	})
}
