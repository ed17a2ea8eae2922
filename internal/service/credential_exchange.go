package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"go-banking-client/internal/clock"
	"go-banking-client/internal/model"
)

// CredentialExchanger trades an email/secret pair for a signed-in Identity.
type CredentialExchanger interface {
	Exchange(ctx context.Context, email string, secret string) (model.Identity, error)
}

type accessClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// TokenIssuer mints and checks the access credential handed to the client.
// Each token carries a random jti so no two logins share a credential.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	clock  clock.Clock
}

func NewTokenIssuer(secret string, ttl time.Duration, clk clock.Clock) (*TokenIssuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("token secret is required")
	}
	if ttl <= 0 {
		return nil, errors.New("token ttl must be positive")
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, clock: clk}, nil
}

func (i *TokenIssuer) Issue(subject string, email string) (string, time.Time, error) {
	now := i.clock.Now().UTC()

	claims := accessClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, now, nil
}

// Parse checks signature and expiry and returns the token subject.
func (i *TokenIssuer) Parse(token string) (string, error) {
	claims, err := i.verify(token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// Expiry returns when a still-valid token stops authenticating.
func (i *TokenIssuer) Expiry(token string) (time.Time, error) {
	claims, err := i.verify(token)
	if err != nil {
		return time.Time{}, err
	}
	return claims.ExpiresAt.Time.UTC(), nil
}

func (i *TokenIssuer) verify(token string) (*accessClaims, error) {
	claims := &accessClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.clock.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return nil, model.ErrTokenInvalid
	}
	if claims.Subject == "" {
		return nil, model.ErrTokenInvalid
	}
	return claims, nil
}

type DemoExchangeOptions struct {
	ID       string
	Name     string
	Email    string
	Password string
	Latency  time.Duration
	// BcryptCost defaults to bcrypt.DefaultCost; tests use bcrypt.MinCost.
	BcryptCost int
}

// DemoCredentialExchange stands in for the bank's OAuth endpoint: it accepts
// exactly one email/password pair after a fixed simulated latency.
type DemoCredentialExchange struct {
	id           string
	name         string
	email        string
	passwordHash []byte
	latency      time.Duration
	clock        clock.Clock
	issuer       *TokenIssuer
}

func NewDemoCredentialExchange(opts DemoExchangeOptions, clk clock.Clock, issuer *TokenIssuer) (*DemoCredentialExchange, error) {
	if opts.Email == "" || opts.Password == "" {
		return nil, errors.New("demo email and password are required")
	}
	if opts.ID == "" {
		opts.ID = "1"
	}
	if opts.Name == "" {
		opts.Name = "John Doe"
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(opts.Password), opts.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash demo password: %w", err)
	}

	return &DemoCredentialExchange{
		id:           opts.ID,
		name:         opts.Name,
		email:        opts.Email,
		passwordHash: hash,
		latency:      opts.Latency,
		clock:        clk,
		issuer:       issuer,
	}, nil
}

func (e *DemoCredentialExchange) Exchange(ctx context.Context, email string, secret string) (model.Identity, error) {
	if err := e.clock.Sleep(ctx, e.latency); err != nil {
		return model.Identity{}, err
	}

	emailOK := subtle.ConstantTimeCompare([]byte(email), []byte(e.email)) == 1
	if err := bcrypt.CompareHashAndPassword(e.passwordHash, []byte(secret)); err != nil || !emailOK {
		return model.Identity{}, model.ErrInvalidCredentials
	}

	token, issuedAt, err := e.issuer.Issue(e.id, e.email)
	if err != nil {
		return model.Identity{}, err
	}
	expiresAt, err := e.issuer.Expiry(token)
	if err != nil {
		return model.Identity{}, err
	}

	return model.Identity{
		ID:          e.id,
		Name:        e.name,
		Email:       e.email,
		AccessToken: token,
		IssuedAt:    issuedAt,
		ExpiresAt:   expiresAt,
	}, nil
}
