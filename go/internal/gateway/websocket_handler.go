package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

type WebSocketHandler struct {
	connectionManager *ConnectionManager
}

func NewWebSocketHandler(cm *ConnectionManager) *WebSocketHandler {
	return &WebSocketHandler{connectionManager: cm}
}

// HandlePlayConnection serves /ws/play?play_id=...&player_id=...
func (h *WebSocketHandler) HandlePlayConnection(w http.ResponseWriter, r *http.Request) {
	playID := r.URL.Query().Get("play_id")
	if playID == "" {
		http.Error(w, "play_id is required", http.StatusBadRequest)
		return
	}
	playerID := r.URL.Query().Get("player_id")

	if err := h.connectionManager.UpgradeConnection(w, r, playID, playerID); err != nil {
		log.Error().
			Err(err).
			Str("play_id", playID).
			Str("player_id", playerID).
			Msg("Failed to open play connection")
	}
}

func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.connectionManager.GetConnectionStats()); err != nil {
		log.Error().Err(err).Msg("Failed to encode connection stats")
	}
}

func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/play", h.HandlePlayConnection)
	mux.HandleFunc("/ws/stats", h.HandleConnectionStats)
}
