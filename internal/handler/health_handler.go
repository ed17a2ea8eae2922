package handler

import (
	"net/http"

	"go-banking-client/internal/service"
	"go-banking-client/internal/websocket"
)

type HealthHandler struct {
	auth       *service.AuthService
	supervisor *service.SessionSupervisor
	hub        *websocket.Hub
}

func NewHealthHandler(auth *service.AuthService, supervisor *service.SessionSupervisor, hub *websocket.Hub) *HealthHandler {
	return &HealthHandler{auth: auth, supervisor: supervisor, hub: hub}
}

// Health never reveals who is signed in, only whether someone is.
func (h *HealthHandler) Health(w http.ResponseWriter, _ *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]any{
		"status":            "ok",
		"authenticated":     h.auth.IsAuthenticated(),
		"session_state":     h.supervisor.State().String(),
		"websocket_clients": h.hub.ClientCount(),
	}, nil)
}
