//go:build integration

package integration

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-banking-client/internal/clock"
)

func TestLoginSurvivesRestart(t *testing.T) {
	stateDir := t.TempDir()
	clk := clock.NewFake(epoch)

	first := startServer(t, stateDir, clk)
	token := first.login(t)

	status, _ := first.call(t, http.MethodGet, "/api/v1/accounts", token, nil)
	require.Equal(t, http.StatusOK, status)

	first.Close()
	first.app.Stop()

	second := startServer(t, stateDir, clk)
	require.False(t, second.app.Auth().Loading())

	var me struct {
		Authenticated bool `json:"authenticated"`
		Identity      struct {
			Email string `json:"email"`
		} `json:"identity"`
	}
	_, env := second.call(t, http.MethodGet, "/api/v1/auth/me", "", nil)
	decodeData(t, env, &me)
	assert.True(t, me.Authenticated)
	assert.Equal(t, demoEmail, me.Identity.Email)

	status, _ = second.call(t, http.MethodGet, "/api/v1/accounts", token, nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestCorruptRecordStartsSignedOut(t *testing.T) {
	stateDir := t.TempDir()
	clk := clock.NewFake(epoch)

	require.NoError(t, os.WriteFile(
		filepath.Join(stateDir, "client-storage.json"),
		[]byte(`{"banking_auth_token":"{not json"}`),
		0o600,
	))

	server := startServer(t, stateDir, clk)
	assert.False(t, server.app.Auth().IsAuthenticated())

	raw, err := os.ReadFile(filepath.Join(stateDir, "client-storage.json"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "banking_auth_token")
}

func TestLogoutClearsPersistedIdentity(t *testing.T) {
	stateDir := t.TempDir()
	clk := clock.NewFake(epoch)

	first := startServer(t, stateDir, clk)
	token := first.login(t)

	status, _ := first.call(t, http.MethodPost, "/api/v1/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, status)

	first.Close()
	first.app.Stop()

	second := startServer(t, stateDir, clk)
	assert.False(t, second.app.Auth().IsAuthenticated())
}

func TestWrongPasswordLeavesNoTrace(t *testing.T) {
	server := startServer(t, t.TempDir(), clock.NewFake(epoch))

	status, env := server.call(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    demoEmail,
		"password": "demo1234",
	})
	assert.Equal(t, http.StatusUnauthorized, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "INVALID_CREDENTIALS", env.Error.Code)
	assert.False(t, server.app.Auth().IsAuthenticated())
}
