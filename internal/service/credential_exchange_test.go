package service

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"go-banking-client/internal/clock"
	"go-banking-client/internal/model"
)

var testEpoch = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

func newTestExchange(t *testing.T, clk clock.Clock) *DemoCredentialExchange {
	t.Helper()

	issuer, err := NewTokenIssuer("test-secret", 24*time.Hour, clk)
	require.NoError(t, err)

	exchange, err := NewDemoCredentialExchange(DemoExchangeOptions{
		Email:      "demo@bank.com",
		Password:   "demo1235",
		Latency:    time.Second,
		BcryptCost: bcrypt.MinCost,
	}, clk, issuer)
	require.NoError(t, err)
	return exchange
}

func TestDemoCredentialExchange(t *testing.T) {
	clk := clock.NewFake(testEpoch)
	exchange := newTestExchange(t, clk)

	t.Run("accepts the demo pair after the simulated latency", func(t *testing.T) {
		before := clk.Slept()
		identity, err := exchange.Exchange(context.Background(), "demo@bank.com", "demo1235")
		require.NoError(t, err)

		assert.Equal(t, "1", identity.ID)
		assert.Equal(t, "John Doe", identity.Name)
		assert.Equal(t, "demo@bank.com", identity.Email)
		assert.NotEmpty(t, identity.AccessToken)
		assert.Equal(t, time.Second, clk.Slept()-before)
	})

	t.Run("rejects other pairs", func(t *testing.T) {
		for _, pair := range [][2]string{
			{"demo@bank.com", "wrong"},
			{"Demo@bank.com", "demo1235"},
			{"other@bank.com", "demo1235"},
			{"", ""},
		} {
			_, err := exchange.Exchange(context.Background(), pair[0], pair[1])
			assert.ErrorIs(t, err, model.ErrInvalidCredentials, pair[0])
		}
	})

	t.Run("stops when the context is cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := exchange.Exchange(ctx, "demo@bank.com", "demo1235")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestTokenIssuer(t *testing.T) {
	clk := clock.NewFake(testEpoch)
	issuer, err := NewTokenIssuer("test-secret", time.Hour, clk)
	require.NoError(t, err)

	first, issuedAt, err := issuer.Issue("1", "demo@bank.com")
	require.NoError(t, err)
	second, _, err := issuer.Issue("1", "demo@bank.com")
	require.NoError(t, err)

	assert.Equal(t, testEpoch, issuedAt)
	assert.NotEqual(t, first, second)

	subject, err := issuer.Parse(first)
	require.NoError(t, err)
	assert.Equal(t, "1", subject)

	other, err := NewTokenIssuer("another-secret", time.Hour, clk)
	require.NoError(t, err)
	_, err = other.Parse(first)
	assert.ErrorIs(t, err, model.ErrTokenInvalid)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "1"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = issuer.Parse(unsigned)
	assert.ErrorIs(t, err, model.ErrTokenInvalid)

	clk.Advance(time.Hour + time.Second)
	_, err = issuer.Parse(first)
	assert.ErrorIs(t, err, model.ErrTokenInvalid)
}

func TestNewTokenIssuer_Validates(t *testing.T) {
	_, err := NewTokenIssuer(" ", time.Hour, clock.System{})
	assert.Error(t, err)

	_, err = NewTokenIssuer("secret", 0, clock.System{})
	assert.Error(t, err)
}
