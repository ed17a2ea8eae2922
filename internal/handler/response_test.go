package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"go-banking-client/internal/model"
	"go-banking-client/pkg/apierror"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "api error", err: apierror.Validation("amount must be greater than 0"), status: http.StatusUnprocessableEntity, code: "VALIDATION_FAILED"},
		{name: "credentials", err: model.ErrInvalidCredentials, status: http.StatusUnauthorized, code: "INVALID_CREDENTIALS"},
		{name: "token", err: model.ErrTokenInvalid, status: http.StatusUnauthorized, code: "UNAUTHORIZED"},
		{name: "no session", err: model.ErrNoActiveSession, status: http.StatusConflict, code: "NO_ACTIVE_SESSION"},
		{name: "wrapped account", err: fmt.Errorf("account %q: %w", "9", model.ErrAccountNotFound), status: http.StatusNotFound, code: "NOT_FOUND"},
		{name: "loan source", err: model.ErrTransferForbidden, status: http.StatusForbidden, code: "FORBIDDEN"},
		{name: "deadline", err: context.DeadlineExceeded, status: http.StatusGatewayTimeout, code: "REQUEST_TIMEOUT"},
		{name: "unknown", err: errors.New("boom"), status: http.StatusInternalServerError, code: "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, tt.err)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Contains(t, rec.Body.String(), `"success":false`)
			assert.Contains(t, rec.Body.String(), `"code":"`+tt.code+`"`)
		})
	}
}

func TestParseIntOrDefault(t *testing.T) {
	assert.Equal(t, 7, parseIntOrDefault("7", 1))
	assert.Equal(t, 1, parseIntOrDefault("", 1))
	assert.Equal(t, 1, parseIntOrDefault("seven", 1))
}
