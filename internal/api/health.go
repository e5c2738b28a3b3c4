package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/kenneth/swift-decryption-gateway/internal/cache"
)

// Health serves the service health endpoints.
type Health struct {
	version   string
	infoCache cache.Cache
}

// NewHealth creates the health handler. infoCache may be nil.
func NewHealth(version string, infoCache cache.Cache) *Health {
	return &Health{version: version, infoCache: infoCache}
}

// RegisterRoutes registers the health endpoints.
func (h *Health) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", h.handleHealth).Methods("GET")
	r.HandleFunc("/ready", h.handleReady).Methods("GET")
	r.HandleFunc("/live", h.handleLive).Methods("GET")
}

func (h *Health) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"status":  "healthy",
		"version": h.version,
	}
	if h.infoCache != nil {
		stats := h.infoCache.Stats()
		body["cache"] = map[string]interface{}{
			"items":     stats.Items,
			"hits":      stats.Hits,
			"misses":    stats.Misses,
			"evictions": stats.Evictions,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(body)
}

func (h *Health) handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready"))
}

func (h *Health) handleLive(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("alive"))
}
