package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/triviabluff/go/internal/session"
)

// StateProvider returns the raw session document.
type StateProvider interface {
	GetDocument(ctx context.Context, code string) ([]byte, error)
}

// Handler serves the websocket endpoint and its HTTP companions.
type Handler struct {
	connectionManager *ConnectionManager
	stateProvider     StateProvider
}

func NewHandler(cm *ConnectionManager, provider StateProvider) *Handler {
	return &Handler{
		connectionManager: cm,
		stateProvider:     provider,
	}
}

// HandleSessionConnection handles GET /ws/session.
func (h *Handler) HandleSessionConnection(w http.ResponseWriter, r *http.Request) {
	if err := h.connectionManager.UpgradeConnection(w, r); err != nil {
		// the upgrader has already replied to the client
		log.Error().Err(err).Str("remote_addr", r.RemoteAddr).Msg("failed to upgrade websocket connection")
	}
}

// HandleConnectionStats handles GET /ws/stats.
func (h *Handler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.connectionManager.GetConnectionStats())
}

// HandleGetSessionState handles GET /api/sessions/{code}/state.
func (h *Handler) HandleGetSessionState(w http.ResponseWriter, r *http.Request) {
	code := session.NormalizeCode(r.PathValue("code"))
	if !session.ValidCode(code) {
		http.Error(w, "invalid session code", http.StatusBadRequest)
		return
	}

	doc, err := h.stateProvider.GetDocument(r.Context(), code)
	switch {
	case errors.Is(err, session.ErrNotFound):
		http.Error(w, "session not found", http.StatusNotFound)
		return
	case errors.Is(err, session.ErrTimedOut):
		http.Error(w, "session store timed out", http.StatusGatewayTimeout)
		return
	case err != nil:
		log.Error().Err(err).Str("session_code", code).Msg("failed to get session state")
		http.Error(w, "failed to get session state", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(doc); err != nil {
		log.Error().Err(err).Str("session_code", code).Msg("failed to write session state response")
	}
}

// RegisterRoutes registers the gateway routes with an HTTP mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/session", h.HandleSessionConnection)
	mux.HandleFunc("GET /ws/stats", h.HandleConnectionStats)
	mux.HandleFunc("GET /api/sessions/{code}/state", h.HandleGetSessionState)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
