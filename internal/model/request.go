package model

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ActivityRequest struct {
	Kind string `json:"kind"`
}

type TransferRequest struct {
	SourceAccountID    string  `json:"source_account_id" validate:"required"`
	BeneficiaryAccount string  `json:"beneficiary_account" validate:"required,number,min=10"`
	Amount             float64 `json:"amount" validate:"gt=0,lte=100000"`
	Description        string  `json:"description" validate:"required,max=100"`
}
