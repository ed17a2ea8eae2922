package handler

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"go-banking-client/internal/model"
	"go-banking-client/internal/service"
)

type AccountHandler struct {
	service *service.BankService
}

func NewAccountHandler(service *service.BankService) *AccountHandler {
	return &AccountHandler{service: service}
}

func (h *AccountHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	accounts, err := h.service.ListAccounts(r.Context(), model.AccountQuery{
		Type:   query.Get("type"),
		SortBy: query.Get("sort_by"),
		Order:  query.Get("order"),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, accounts, nil)
}

func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	account, err := h.service.GetAccount(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, account, nil)
}

func (h *AccountHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	items, meta, err := h.service.ListTransactions(r.Context(), chi.URLParam(r, "id"), transactionQuery(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, items, &meta)
}

// ExportCSV renders into a buffer first so a failure still produces a JSON
// error instead of a truncated download.
func (h *AccountHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	filename, err := h.service.ExportTransactionsCSV(r.Context(), chi.URLParam(r, "id"), transactionQuery(r), &buf)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func transactionQuery(r *http.Request) model.TransactionQuery {
	query := r.URL.Query()
	return model.TransactionQuery{
		Search: strings.TrimSpace(query.Get("search")),
		Type:   strings.TrimSpace(query.Get("type")),
		From:   strings.TrimSpace(query.Get("from")),
		To:     strings.TrimSpace(query.Get("to")),
		Page:   parseIntOrDefault(query.Get("page"), 1),
		Limit:  parseIntOrDefault(query.Get("limit"), 20),
	}
}
