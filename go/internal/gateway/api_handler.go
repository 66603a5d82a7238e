package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/parthhay/deskroguelikeproto/go/clients"
	"github.com/parthhay/deskroguelikeproto/go/clients/roguelike_client"
	"github.com/parthhay/deskroguelikeproto/go/internal/dispatch"
	"github.com/parthhay/deskroguelikeproto/go/internal/reconcile"
)

// Commands are the user intents the presentation can issue.
type Commands interface {
	Claim(ctx context.Context, name string) error
	StartRun(ctx context.Context) error
	PlayCard(ctx context.Context, card, target string) error
	SelectTarget(ctx context.Context, tag string) (string, error)
}

// ViewProvider exposes read-only client state.
type ViewProvider interface {
	View(ctx context.Context) (reconcile.View, error)
	Lobby(ctx context.Context) (roguelike_client.Lobby, error)
}

type claimRequest struct {
	Name string `json:"name"`
}

type playRequest struct {
	Card   string `json:"card"`
	Target string `json:"target"`
}

type targetRequest struct {
	Target string `json:"target"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// APIHandler serves the presentation REST endpoints
type APIHandler struct {
	commands Commands
	views    ViewProvider
}

// NewAPIHandler creates a new API handler
func NewAPIHandler(commands Commands, views ViewProvider) *APIHandler {
	return &APIHandler{
		commands: commands,
		views:    views,
	}
}

// HandleGetView handles GET /api/view
func (h *APIHandler) HandleGetView(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	view, err := h.views.View(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleGetLobby handles GET /api/lobby
func (h *APIHandler) HandleGetLobby(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	lobby, err := h.views.Lobby(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lobby)
}

// HandleClaim handles POST /api/claim
func (h *APIHandler) HandleClaim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if !decodePost(w, r, &req) {
		return
	}
	h.respond(w, r, h.commands.Claim(r.Context(), req.Name))
}

// HandleStart handles POST /api/start
func (h *APIHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.respond(w, r, h.commands.StartRun(r.Context()))
}

// HandlePlay handles POST /api/play
func (h *APIHandler) HandlePlay(w http.ResponseWriter, r *http.Request) {
	var req playRequest
	if !decodePost(w, r, &req) {
		return
	}
	if req.Card == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "card_required"})
		return
	}
	h.respond(w, r, h.commands.PlayCard(r.Context(), req.Card, req.Target))
}

// HandleTarget handles POST /api/target
func (h *APIHandler) HandleTarget(w http.ResponseWriter, r *http.Request) {
	var req targetRequest
	if !decodePost(w, r, &req) {
		return
	}
	if _, err := h.commands.SelectTarget(r.Context(), req.Target); err != nil {
		writeError(w, err)
		return
	}
	h.respond(w, r, nil)
}

// RegisterRoutes registers the REST routes with an HTTP mux
func (h *APIHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/view", h.HandleGetView)
	mux.HandleFunc("/api/lobby", h.HandleGetLobby)
	mux.HandleFunc("/api/claim", h.HandleClaim)
	mux.HandleFunc("/api/start", h.HandleStart)
	mux.HandleFunc("/api/play", h.HandlePlay)
	mux.HandleFunc("/api/target", h.HandleTarget)
}

// respond answers a command with the resulting view.
func (h *APIHandler) respond(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		writeError(w, err)
		return
	}

	view, err := h.views.View(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func decodePost(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_json"})
		return false
	}
	return true
}

// writeError maps an error to its code and status.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"

	var reqErr *clients.RequestError
	switch {
	case errors.Is(err, dispatch.ErrNotJoined):
		status, code = http.StatusConflict, "not_joined"
	case errors.Is(err, dispatch.ErrRunOver):
		status, code = http.StatusConflict, "run_over"
	case errors.Is(err, dispatch.ErrNoTargetAvailable):
		status, code = http.StatusConflict, "no_target"
	case errors.As(err, &reqErr):
		status, code = http.StatusBadGateway, reqErr.Code
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status, code = http.StatusServiceUnavailable, "unavailable"
	}

	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("code", code).Msg("presentation request failed")
	}
	writeJSON(w, status, errorResponse{Error: code})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
