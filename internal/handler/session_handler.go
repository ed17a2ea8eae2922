package handler

import (
	"net/http"

	"go-banking-client/internal/model"
	"go-banking-client/internal/service"
	"go-banking-client/pkg/apierror"
)

type SessionHandler struct {
	supervisor *service.SessionSupervisor
	activity   *service.ActivityHub
}

func NewSessionHandler(supervisor *service.SessionSupervisor, activity *service.ActivityHub) *SessionHandler {
	return &SessionHandler{supervisor: supervisor, activity: activity}
}

func (h *SessionHandler) Snapshot(w http.ResponseWriter, _ *http.Request) {
	writeSuccess(w, http.StatusOK, h.supervisor.Snapshot(), nil)
}

// Reset is the "continue session" action of the warning modal.
func (h *SessionHandler) Reset(w http.ResponseWriter, _ *http.Request) {
	if !h.supervisor.ResetSession() {
		writeError(w, model.ErrNoActiveSession)
		return
	}
	writeSuccess(w, http.StatusOK, h.supervisor.Snapshot(), nil)
}

func (h *SessionHandler) Activity(w http.ResponseWriter, r *http.Request) {
	var payload model.ActivityRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	kind, ok := service.ParseActivityKind(payload.Kind)
	if !ok {
		writeError(w, apierror.BadRequest("activity kind must be one of keydown, scroll, touchstart", payload.Kind))
		return
	}

	delivered := h.activity.Emit(kind)
	writeSuccess(w, http.StatusAccepted, map[string]any{
		"kind":      string(kind),
		"delivered": delivered > 0,
		"session":   h.supervisor.Snapshot(),
	}, nil)
}
