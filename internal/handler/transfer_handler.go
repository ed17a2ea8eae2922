package handler

import (
	"net/http"

	"go-banking-client/internal/middleware"
	"go-banking-client/internal/model"
	"go-banking-client/internal/service"
)

type TransferHandler struct {
	service *service.BankService
}

func NewTransferHandler(service *service.BankService) *TransferHandler {
	return &TransferHandler{service: service}
}

// Create answers 200 for both outcomes of a well-formed request; the
// status field tells success from a declined transfer.
func (h *TransferHandler) Create(w http.ResponseWriter, r *http.Request) {
	var payload model.TransferRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	identity, _ := middleware.IdentityFromContext(r.Context())

	result, err := h.service.InitiateTransfer(r.Context(), identity.ID, payload)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, result, nil)
}
