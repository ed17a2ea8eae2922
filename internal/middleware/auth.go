package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go-banking-client/internal/model"
)

type identityAuthenticator interface {
	Authenticate(token string) (model.Identity, error)
}

type contextKey string

const identityContextKey contextKey = "identity"

type AuthMiddleware struct {
	authenticator identityAuthenticator
}

func NewAuthMiddleware(authenticator identityAuthenticator) *AuthMiddleware {
	return &AuthMiddleware{authenticator: authenticator}
}

// RequireAuth admits requests whose bearer credential matches the current
// identity.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return m.require(next, false)
}

// RequireSocketAuth also accepts the credential in the access_token query
// parameter, since browsers cannot set headers on a websocket handshake.
func (m *AuthMiddleware) RequireSocketAuth(next http.Handler) http.Handler {
	return m.require(next, true)
}

func (m *AuthMiddleware) require(next http.Handler, allowQuery bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" && allowQuery {
			token = strings.TrimSpace(r.URL.Query().Get("access_token"))
		}
		if token == "" {
			writeUnauthorized(w, "missing or invalid authorization header")
			return
		}

		identity, err := m.authenticator.Authenticate(token)
		if err != nil {
			writeUnauthorized(w, "invalid or expired session")
			return
		}

		if info, ok := r.Context().Value(requestInfoKey).(*requestInfo); ok {
			info.identityID = identity.ID
		}

		ctx := context.WithValue(r.Context(), identityContextKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func IdentityFromContext(ctx context.Context) (model.Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(model.Identity)
	return identity, ok
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="banking-client"`)
	w.WriteHeader(http.StatusUnauthorized)

	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: false,
		Error: &model.APIError{
			Code:    "UNAUTHORIZED",
			Message: message,
		},
	})
}
