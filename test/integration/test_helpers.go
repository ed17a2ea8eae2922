//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go-banking-client/internal/app"
	"go-banking-client/internal/clock"
	"go-banking-client/internal/config"
)

const (
	demoEmail    = "demo@bank.com"
	demoPassword = "demo1235"
)

var epoch = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

type testServer struct {
	*httptest.Server
	app *app.App
	clk *clock.Fake
}

func testConfig(t *testing.T, stateDir string) *config.Config {
	t.Helper()

	return &config.Config{
		ServerPort:           "0",
		RequestTimeout:       10 * time.Second,
		CORSOrigins:          []string{"*"},
		RateLimitRPM:         0,
		AuthRateLimitRPM:     1000,
		LogFormat:            "json",
		LogLevel:             "error",
		AccessTokenSecret:    "integration-secret",
		AccessTokenTTL:       12 * time.Hour,
		IdentityStore:        config.StoreFile,
		IdentityRecordKey:    "banking_auth_token",
		IdentityFile:         filepath.Join(stateDir, "client-storage.json"),
		LoginLatency:         time.Second,
		DemoEmail:            demoEmail,
		DemoPassword:         demoPassword,
		SessionWarningAfter:  4 * time.Minute,
		SessionExpireAfter:   5 * time.Minute,
		SessionCheckInterval: time.Second,
		SessionCountdownSecs: 60,
		SessionMaxAge:        12 * time.Hour,
		AuditLogFile:         filepath.Join(stateDir, "audit.log"),
	}
}

// startServer boots a full application over stateDir. Two servers started on
// the same stateDir behave like a process restart.
func startServer(t *testing.T, stateDir string, clk *clock.Fake) *testServer {
	t.Helper()

	cfg := testConfig(t, stateDir)
	require.NoError(t, cfg.Validate())

	application, err := app.Build(cfg, clk)
	require.NoError(t, err)
	application.Start(context.Background())

	server := httptest.NewServer(application.Handler())
	t.Cleanup(func() {
		server.Close()
		application.Stop()
	})

	return &testServer{Server: server, app: application, clk: clk}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (s *testServer) call(t *testing.T, method string, path string, token string, body any) (int, envelope) {
	t.Helper()

	var reader io.Reader = http.NoBody
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func (s *testServer) login(t *testing.T) string {
	t.Helper()

	status, env := s.call(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    demoEmail,
		"password": demoPassword,
	})
	require.Equal(t, http.StatusOK, status)

	var result struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &result))
	require.NotEmpty(t, result.AccessToken)
	return result.AccessToken
}

func decodeData(t *testing.T, env envelope, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, dst))
}
