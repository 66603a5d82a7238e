package gateway

import (
	"net/http"

	"github.com/rs/zerolog/log"
)

// WebSocketHandler handles WebSocket upgrade requests for view updates
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	views             ViewProvider
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cm *ConnectionManager, views ViewProvider) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		views:             views,
	}
}

// HandleViewConnection upgrades the request and sends the current view
// first, then every broadcast view and notice.
func (h *WebSocketHandler) HandleViewConnection(w http.ResponseWriter, r *http.Request) {
	var initial *Event
	if view, err := h.views.View(r.Context()); err != nil {
		log.Warn().Err(err).Msg("no initial view for presentation connection")
	} else if event, err := NewEvent(EventTypeView, view); err == nil {
		initial = event
	}

	if err := h.connectionManager.UpgradeConnection(w, r, initial); err != nil {
		// Upgrade has already written the HTTP error.
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
	}
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.connectionManager.GetConnectionStats())
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/view", h.HandleViewConnection)
	mux.HandleFunc("/ws/stats", h.HandleConnectionStats)
}
