package model

import "errors"

var (
	// Auth related errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrTokenInvalid       = errors.New("access token invalid")

	// Client storage errors
	ErrRecordNotFound = errors.New("record not found")

	// Session errors
	ErrNoActiveSession = errors.New("no active session")

	// Banking errors
	ErrAccountNotFound   = errors.New("account not found")
	ErrTransferForbidden = errors.New("account cannot send transfers")
)
