package model

import "time"

type AccountType string

const (
	AccountSavings AccountType = "Savings"
	AccountCurrent AccountType = "Current"
	AccountLoan    AccountType = "Loan"
)

type Account struct {
	ID                  string      `json:"id"`
	Type                AccountType `json:"type"`
	AccountNumber       string      `json:"account_number"`
	MaskedNumber        string      `json:"masked_number"`
	Balance             float64     `json:"balance"`
	FormattedBalance    string      `json:"formatted_balance"`
	Currency            string      `json:"currency"`
	LastTransactionDate time.Time   `json:"last_transaction_date"`
	Status              string      `json:"status"`
}

type TransactionType string

const (
	TransactionCredit TransactionType = "credit"
	TransactionDebit  TransactionType = "debit"
)

type Transaction struct {
	ID           string          `json:"id"`
	Date         time.Time       `json:"date"`
	Description  string          `json:"description"`
	Type         TransactionType `json:"type"`
	Amount       float64         `json:"amount"`
	BalanceAfter float64         `json:"balance_after"`
	Category     string          `json:"category"`
	Reference    string          `json:"reference"`
}

type AccountQuery struct {
	Type   string
	SortBy string
	Order  string
}

type TransactionQuery struct {
	Search string
	Type   string
	From   string
	To     string
	Page   int
	Limit  int
}

type TransferStatus string

const (
	TransferPending TransferStatus = "pending"
	TransferSuccess TransferStatus = "success"
	TransferFailed  TransferStatus = "failed"
)

type TransferResponse struct {
	ID      string         `json:"id"`
	Status  TransferStatus `json:"status"`
	Message string         `json:"message"`
}
