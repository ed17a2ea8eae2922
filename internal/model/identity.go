package model

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Identity is the signed-in principal. It exists only while authenticated.
type Identity struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	AccessToken string    `json:"access_token"`
	IssuedAt    time.Time `json:"issued_at"`
	// ExpiresAt is when AccessToken stops authenticating. Zero when unknown.
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionKey names one sign-in episode without revealing its credential.
func (i Identity) SessionKey() string {
	sum := sha256.Sum256([]byte(i.AccessToken))
	return hex.EncodeToString(sum[:8])
}

// PublicIdentity is what the HTTP surface returns; the credential is only
// handed out once, in the login response.
type PublicIdentity struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Email    string    `json:"email"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (i Identity) Public() PublicIdentity {
	return PublicIdentity{ID: i.ID, Name: i.Name, Email: i.Email, IssuedAt: i.IssuedAt, ExpiresAt: i.ExpiresAt}
}

type AuthStatus struct {
	Authenticated bool            `json:"authenticated"`
	Loading       bool            `json:"loading"`
	Identity      *PublicIdentity `json:"identity,omitempty"`
}

type LoginResult struct {
	AccessToken string         `json:"access_token"`
	TokenType   string         `json:"token_type"`
	Identity    PublicIdentity `json:"identity"`
}
