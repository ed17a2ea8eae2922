package handler

import (
	"context"
	"net/http"

	"go-banking-client/internal/middleware"
	"go-banking-client/internal/model"
	"go-banking-client/internal/service"
	"go-banking-client/internal/websocket"
)

type WSHandler struct {
	hub        *websocket.Hub
	auth       *service.AuthService
	supervisor *service.SessionSupervisor
	activity   *service.ActivityHub
}

func NewWSHandler(hub *websocket.Hub, auth *service.AuthService, supervisor *service.SessionSupervisor, activity *service.ActivityHub) *WSHandler {
	return &WSHandler{hub: hub, auth: auth, supervisor: supervisor, activity: activity}
}

func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, model.ErrUnauthorized)
		return
	}
	h.hub.ServeWS(w, r, identity.SessionKey(), sessionActions{h: h, credential: identity.AccessToken})
}

// sessionActions routes socket messages to the session. Replies travel back
// as bus events, not as direct answers.
type sessionActions struct {
	h          *WSHandler
	credential string
}

func (a sessionActions) Activity(kind string) bool {
	parsed, ok := service.ParseActivityKind(kind)
	if !ok {
		return false
	}
	return a.h.activity.Emit(parsed) > 0
}

func (a sessionActions) Continue() bool {
	return a.h.supervisor.ResetSession()
}

// Logout from a socket left over from an earlier sign-in is ignored.
func (a sessionActions) Logout() {
	a.h.auth.LogoutIf(context.Background(), a.credential)
}
