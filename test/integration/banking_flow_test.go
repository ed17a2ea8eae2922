//go:build integration

package integration

import (
	"encoding/csv"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-banking-client/internal/clock"
)

func TestTransferShowsUpInHistoryAndExport(t *testing.T) {
	server := startServer(t, t.TempDir(), clock.NewFake(epoch))
	token := server.login(t)

	status, env := server.call(t, http.MethodPost, "/api/v1/transfers", token, map[string]any{
		"source_account_id":   "2",
		"beneficiary_account": "5550001111",
		"amount":              750.25,
		"description":         "Car repair",
	})
	require.Equal(t, http.StatusOK, status)

	var transfer struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	decodeData(t, env, &transfer)
	require.Equal(t, "success", transfer.Status)

	var history []struct {
		ID           string  `json:"id"`
		Description  string  `json:"description"`
		BalanceAfter float64 `json:"balance_after"`
	}
	_, env = server.call(t, http.MethodGet, "/api/v1/accounts/2/transactions?limit=1", token, nil)
	decodeData(t, env, &history)
	require.Len(t, history, 1)
	assert.Equal(t, transfer.ID, history[0].ID)
	assert.InDelta(t, 8000.00, history[0].BalanceAfter, 0.001)

	req, err := http.NewRequest(http.MethodGet, server.URL+"/api/v1/accounts/2/transactions.csv?search=car", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	rows, err := csv.NewReader(resp.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Car repair", rows[1][1])
	_, _ = io.Copy(io.Discard, resp.Body)
}

func TestAuditRecordsTheSession(t *testing.T) {
	clk := clock.NewFake(epoch)
	server := startServer(t, t.TempDir(), clk)
	token := server.login(t)

	status, _ := server.call(t, http.MethodPost, "/api/v1/transfers", token, map[string]any{
		"source_account_id":   "1",
		"beneficiary_account": "5550001111",
		"amount":              1,
		"description":         "Coffee",
	})
	require.Equal(t, http.StatusOK, status)

	var data struct {
		Items []struct {
			Action string `json:"action"`
		} `json:"items"`
	}
	require.Eventually(t, func() bool {
		_, env := server.call(t, http.MethodGet, "/api/v1/audit?action=transfer", token, nil)
		decodeData(t, env, &data)
		return len(data.Items) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "transfer.completed", data.Items[0].Action)
}
