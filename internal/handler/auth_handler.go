package handler

import (
	"net/http"
	"strings"

	"go-banking-client/internal/model"
	"go-banking-client/internal/service"
	"go-banking-client/pkg/apierror"
)

type AuthHandler struct {
	service *service.AuthService
}

func NewAuthHandler(service *service.AuthService) *AuthHandler {
	return &AuthHandler{service: service}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var payload model.LoginRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	payload.Email = strings.TrimSpace(payload.Email)
	if payload.Email == "" || payload.Password == "" {
		writeError(w, apierror.BadRequest("email and password are required", ""))
		return
	}

	if !h.service.Login(r.Context(), payload.Email, payload.Password) {
		writeError(w, model.ErrInvalidCredentials)
		return
	}

	// an immediate forced logout may already have cleared it
	identity := h.service.CurrentIdentity()
	if identity == nil {
		writeError(w, model.ErrUnauthorized)
		return
	}

	writeSuccess(w, http.StatusOK, model.LoginResult{
		AccessToken: identity.AccessToken,
		TokenType:   "Bearer",
		Identity:    identity.Public(),
	}, nil)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.service.Logout(r.Context())
	writeSuccess(w, http.StatusOK, map[string]any{"logged_out": true}, nil)
}

func (h *AuthHandler) Me(w http.ResponseWriter, _ *http.Request) {
	writeSuccess(w, http.StatusOK, h.service.Status(), nil)
}
