package handler

import (
	"net/http"
	"strings"

	"go-banking-client/internal/middleware"
	"go-banking-client/internal/model"
	"go-banking-client/internal/service"
)

type AuditHandler struct {
	service *service.AuditService
}

func NewAuditHandler(service *service.AuditService) *AuditHandler {
	return &AuditHandler{service: service}
}

// List pages through recorded auth, session and transfer events, newest
// first. identity_id=me narrows to the caller.
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	query, err := auditQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}

	items, meta, err := h.service.Query(query)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, model.AuditListData{Items: items}, &meta)
}

func auditQuery(r *http.Request) (model.AuditQuery, error) {
	values := r.URL.Query()

	identityID := strings.TrimSpace(values.Get("identity_id"))
	if identityID == "me" {
		identity, ok := middleware.IdentityFromContext(r.Context())
		if !ok {
			return model.AuditQuery{}, model.ErrUnauthorized
		}
		identityID = identity.ID
	}

	return model.AuditQuery{
		Action:     strings.TrimSpace(values.Get("action")),
		IdentityID: identityID,
		Status:     strings.TrimSpace(values.Get("status")),
		Reason:     strings.TrimSpace(values.Get("reason")),
		From:       strings.TrimSpace(values.Get("from")),
		To:         strings.TrimSpace(values.Get("to")),
		Page:       parseIntOrDefault(values.Get("page"), 1),
		Limit:      parseIntOrDefault(values.Get("limit"), 50),
	}, nil
}
