package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"go-banking-client/internal/clock"
	"go-banking-client/internal/event"
	"go-banking-client/internal/model"
	"go-banking-client/internal/util"
	"go-banking-client/pkg/apierror"
)

const (
	fixtureTransactionCount = 50
	maxTransactionPageSize  = 100
	csvDateLayout           = "2006-01-02"
)

var transactionCSVHeader = []string{"Date", "Description", "Type", "Amount", "Balance", "Reference"}

var (
	creditDescriptions = []string{"Salary Credit", "Interest Credit", "Refund", "Transfer In"}
	debitDescriptions  = []string{"ATM Withdrawal", "Online Purchase", "Bill Payment", "Transfer Out"}
)

type BankOptions struct {
	// Latency is slept before every call, standing in for the network.
	Latency time.Duration
	Seed    uint64
}

// BankService is the in-memory banking API the client talks to once signed
// in. Its data is a fixed fixture; transfers mutate it for the life of the
// process.
type BankService struct {
	clock   clock.Clock
	bus     event.Bus
	latency time.Duration

	mu           sync.RWMutex
	accounts     []model.Account
	transactions map[string][]model.Transaction // newest first
}

func NewBankService(clk clock.Clock, bus event.Bus, opts BankOptions) *BankService {
	if bus == nil {
		bus = event.Discard{}
	}

	s := &BankService{
		clock:        clk,
		bus:          bus,
		latency:      opts.Latency,
		accounts:     fixtureAccounts(),
		transactions: map[string][]model.Transaction{},
	}

	for _, account := range s.accounts {
		s.transactions[account.ID] = fixtureTransactions(account, opts.Seed)
	}

	return s
}

func fixtureAccounts() []model.Account {
	return []model.Account{
		{
			ID:                  "1",
			Type:                model.AccountSavings,
			AccountNumber:       "1234567890",
			Balance:             15420.50,
			Currency:            "USD",
			LastTransactionDate: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
			Status:              "Active",
		},
		{
			ID:                  "2",
			Type:                model.AccountCurrent,
			AccountNumber:       "1234567891",
			Balance:             8750.25,
			Currency:            "USD",
			LastTransactionDate: time.Date(2024, 1, 14, 14, 20, 0, 0, time.UTC),
			Status:              "Active",
		},
		{
			ID:                  "3",
			Type:                model.AccountLoan,
			AccountNumber:       "1234567892",
			Balance:             -45000.00,
			Currency:            "USD",
			LastTransactionDate: time.Date(2024, 1, 10, 9, 15, 0, 0, time.UTC),
			Status:              "Active",
		},
	}
}

// fixtureTransactions walks backwards from the current balance one day at a
// time, so the newest entry's balance_after equals the account balance.
func fixtureTransactions(account model.Account, seed uint64) []model.Transaction {
	accountSeed, _ := strconv.ParseUint(account.ID, 10, 64)
	rng := rand.New(rand.NewPCG(seed, accountSeed))

	out := make([]model.Transaction, 0, fixtureTransactionCount)
	balance := account.Balance
	for i := 0; i < fixtureTransactionCount; i++ {
		credit := rng.Float64() > 0.6
		amount := float64(rng.IntN(1000) + 10)

		txn := model.Transaction{
			ID:           fmt.Sprintf("txn-%s-%d", account.ID, i),
			Date:         account.LastTransactionDate.AddDate(0, 0, -i),
			Amount:       amount,
			BalanceAfter: util.RoundCents(balance),
			Reference:    fmt.Sprintf("REF%d%d", account.LastTransactionDate.UnixMilli(), i),
		}
		if credit {
			txn.Type = model.TransactionCredit
			txn.Description = creditDescriptions[rng.IntN(len(creditDescriptions))]
			txn.Category = "Income"
			balance -= amount
		} else {
			txn.Type = model.TransactionDebit
			txn.Description = debitDescriptions[rng.IntN(len(debitDescriptions))]
			txn.Category = "Expense"
			balance += amount
		}

		out = append(out, txn)
	}

	return out
}

func (s *BankService) ListAccounts(ctx context.Context, query model.AccountQuery) ([]model.Account, error) {
	if err := s.clock.Sleep(ctx, s.latency); err != nil {
		return nil, err
	}

	accountType, err := normalizeAccountType(query.Type)
	if err != nil {
		return nil, err
	}

	sortBy := strings.ToLower(strings.TrimSpace(query.SortBy))
	switch sortBy {
	case "", "balance":
		sortBy = "balance"
	case "last_transaction", "lasttransaction", "last_transaction_date":
		sortBy = "last_transaction"
	default:
		return nil, apierror.BadRequest("invalid sort_by", query.SortBy)
	}

	order := strings.ToLower(strings.TrimSpace(query.Order))
	if order == "" {
		order = "desc"
	}
	if order != "asc" && order != "desc" {
		return nil, apierror.BadRequest("invalid order", query.Order)
	}

	s.mu.RLock()
	items := make([]model.Account, 0, len(s.accounts))
	for _, account := range s.accounts {
		if accountType != "" && account.Type != accountType {
			continue
		}
		items = append(items, decorateAccount(account))
	}
	s.mu.RUnlock()

	sortAccounts(items, sortBy, order)
	return items, nil
}

func (s *BankService) GetAccount(ctx context.Context, id string) (model.Account, error) {
	if err := s.clock.Sleep(ctx, s.latency); err != nil {
		return model.Account{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.findLocked(id)
	if !ok {
		return model.Account{}, fmt.Errorf("account %q: %w", id, model.ErrAccountNotFound)
	}
	return decorateAccount(*account), nil
}

// ListTransactions filters the account history and returns one page of it.
func (s *BankService) ListTransactions(ctx context.Context, accountID string, query model.TransactionQuery) ([]model.Transaction, model.Meta, error) {
	if err := s.clock.Sleep(ctx, s.latency); err != nil {
		return nil, model.Meta{}, err
	}

	if query.Page < 1 {
		query.Page = 1
	}
	if query.Limit <= 0 {
		query.Limit = 20
	}
	if query.Limit > maxTransactionPageSize {
		query.Limit = maxTransactionPageSize
	}

	filtered, err := s.filterTransactions(accountID, query)
	if err != nil {
		return nil, model.Meta{}, err
	}

	total := len(filtered)
	start := (query.Page - 1) * query.Limit
	if start > total {
		start = total
	}
	end := start + query.Limit
	if end > total {
		end = total
	}

	totalPages := 0
	if total > 0 {
		totalPages = (total + query.Limit - 1) / query.Limit
	}

	meta := model.Meta{
		Page:       query.Page,
		Limit:      query.Limit,
		Total:      total,
		TotalPages: totalPages,
		HasMore:    end < total,
	}
	return filtered[start:end], meta, nil
}

// ExportTransactionsCSV writes every transaction matching query (ignoring
// pagination) and returns the suggested download file name.
func (s *BankService) ExportTransactionsCSV(ctx context.Context, accountID string, query model.TransactionQuery, w io.Writer) (string, error) {
	if err := s.clock.Sleep(ctx, s.latency); err != nil {
		return "", err
	}

	account, err := s.lookup(accountID)
	if err != nil {
		return "", err
	}

	filtered, err := s.filterTransactions(accountID, query)
	if err != nil {
		return "", err
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(transactionCSVHeader); err != nil {
		return "", err
	}
	for _, txn := range filtered {
		record := []string{
			txn.Date.UTC().Format(csvDateLayout),
			txn.Description,
			string(txn.Type),
			strconv.FormatFloat(txn.Amount, 'f', -1, 64),
			strconv.FormatFloat(txn.BalanceAfter, 'f', -1, 64),
			txn.Reference,
		}
		if err := writer.Write(record); err != nil {
			return "", err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", err
	}

	name := fmt.Sprintf("transactions-%s-%s.csv", account.AccountNumber, s.clock.Now().Format(csvDateLayout))
	return util.SanitizeFilename(name, "transactions.csv"), nil
}

// InitiateTransfer validates the request and moves funds out of the source
// account. A request that is well-formed but cannot be honoured yields a
// failed TransferResponse rather than an error.
func (s *BankService) InitiateTransfer(ctx context.Context, actorID string, req model.TransferRequest) (model.TransferResponse, error) {
	req.SourceAccountID = strings.TrimSpace(req.SourceAccountID)
	req.BeneficiaryAccount = strings.TrimSpace(req.BeneficiaryAccount)
	req.Description = util.SanitizeText(req.Description)
	// validated as it will be booked, so a sub-cent amount cannot pass as zero
	req.Amount = util.RoundCents(req.Amount)

	if err := validate.Struct(req); err != nil {
		return model.TransferResponse{}, apierror.Validation(describeValidation(err))
	}

	if err := s.clock.Sleep(ctx, s.latency); err != nil {
		return model.TransferResponse{}, err
	}

	amount := req.Amount

	s.mu.Lock()
	account, ok := s.findLocked(req.SourceAccountID)
	if !ok {
		s.mu.Unlock()
		return model.TransferResponse{}, fmt.Errorf("account %q: %w", req.SourceAccountID, model.ErrAccountNotFound)
	}
	if account.Type == model.AccountLoan {
		s.mu.Unlock()
		return model.TransferResponse{}, model.ErrTransferForbidden
	}
	if account.AccountNumber == req.BeneficiaryAccount {
		s.mu.Unlock()
		return model.TransferResponse{}, apierror.Validation("beneficiary_account must differ from the source account")
	}

	if account.Balance < amount {
		balance := account.Balance
		s.mu.Unlock()

		resp := model.TransferResponse{Status: model.TransferFailed, Message: "Insufficient funds"}
		s.publishTransfer(event.TypeTransferFailed, actorID, req, resp, balance)
		return resp, nil
	}

	now := s.clock.Now().UTC()
	account.Balance = util.RoundCents(account.Balance - amount)
	account.LastTransactionDate = now

	id := "TXF-" + strings.ToUpper(uuid.NewString())
	txn := model.Transaction{
		ID:           id,
		Date:         now,
		Description:  req.Description,
		Type:         model.TransactionDebit,
		Amount:       amount,
		BalanceAfter: account.Balance,
		Category:     "Transfer",
		Reference:    id,
	}
	s.transactions[account.ID] = append([]model.Transaction{txn}, s.transactions[account.ID]...)
	balance := account.Balance
	s.mu.Unlock()

	resp := model.TransferResponse{ID: id, Status: model.TransferSuccess, Message: "Transfer initiated successfully"}
	s.publishTransfer(event.TypeTransferCompleted, actorID, req, resp, balance)
	return resp, nil
}

func (s *BankService) filterTransactions(accountID string, query model.TransactionQuery) ([]model.Transaction, error) {
	if _, err := s.lookup(accountID); err != nil {
		return nil, err
	}

	from, err := parseDateBound(query.From, false)
	if err != nil {
		return nil, apierror.BadRequest("invalid 'from' date", query.From)
	}
	to, err := parseDateBound(query.To, true)
	if err != nil {
		return nil, apierror.BadRequest("invalid 'to' date", query.To)
	}

	txnType := model.TransactionType(strings.ToLower(strings.TrimSpace(query.Type)))
	switch txnType {
	case "", "all":
		txnType = ""
	case model.TransactionCredit, model.TransactionDebit:
	default:
		return nil, apierror.BadRequest("invalid transaction type", query.Type)
	}

	search := strings.ToLower(strings.TrimSpace(query.Search))

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Transaction, 0, len(s.transactions[accountID]))
	for _, txn := range s.transactions[accountID] {
		if search != "" &&
			!strings.Contains(strings.ToLower(txn.Description), search) &&
			!strings.Contains(strings.ToLower(txn.Reference), search) {
			continue
		}
		if txnType != "" && txn.Type != txnType {
			continue
		}
		if !from.IsZero() && txn.Date.Before(from) {
			continue
		}
		if !to.IsZero() && txn.Date.After(to) {
			continue
		}
		out = append(out, txn)
	}

	return out, nil
}

func (s *BankService) lookup(id string) (model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.findLocked(id)
	if !ok {
		return model.Account{}, fmt.Errorf("account %q: %w", id, model.ErrAccountNotFound)
	}
	return *account, nil
}

func (s *BankService) findLocked(id string) (*model.Account, bool) {
	id = strings.TrimSpace(id)
	for i := range s.accounts {
		if s.accounts[i].ID == id {
			return &s.accounts[i], true
		}
	}
	return nil, false
}

func (s *BankService) publishTransfer(t event.Type, actorID string, req model.TransferRequest, resp model.TransferResponse, balance float64) {
	s.bus.Publish(event.New(t, actorID, map[string]any{
		"transfer_id":    resp.ID,
		"source_account": req.SourceAccountID,
		"beneficiary":    util.MaskAccountNumber(req.BeneficiaryAccount),
		"amount":         util.RoundCents(req.Amount),
		"balance":        balance,
		"message":        resp.Message,
	}, s.clock.Now()))
}

func decorateAccount(account model.Account) model.Account {
	account.MaskedNumber = util.MaskAccountNumber(account.AccountNumber)
	if formatted, err := util.FormatCurrency(account.Balance, account.Currency); err == nil {
		account.FormattedBalance = formatted
	}
	return account
}

func normalizeAccountType(raw string) (model.AccountType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "all":
		return "", nil
	case "savings":
		return model.AccountSavings, nil
	case "current":
		return model.AccountCurrent, nil
	case "loan":
		return model.AccountLoan, nil
	default:
		return "", apierror.BadRequest("invalid account type", raw)
	}
}

func sortAccounts(items []model.Account, sortBy string, order string) {
	desc := order == "desc"

	sort.SliceStable(items, func(i int, j int) bool {
		left, right := items[i], items[j]
		if desc {
			left, right = right, left
		}
		if sortBy == "last_transaction" {
			return left.LastTransactionDate.Before(right.LastTransactionDate)
		}
		return left.Balance < right.Balance
	})
}

// parseDateBound accepts RFC 3339 or a bare date. A bare upper bound covers
// the whole day.
func parseDateBound(raw string, upper bool) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, nil
	}

	if value, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return value.UTC(), nil
	}

	value, err := time.Parse(csvDateLayout, trimmed)
	if err != nil {
		return time.Time{}, err
	}
	if upper {
		value = value.Add(24*time.Hour - time.Nanosecond)
	}
	return value, nil
}
