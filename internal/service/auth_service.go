package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go-banking-client/internal/clock"
	"go-banking-client/internal/event"
	"go-banking-client/internal/model"
	"go-banking-client/internal/repository"
)

const DefaultIdentityRecordKey = "banking_auth_token"

type AuthOptions struct {
	RecordKey string
	// MaxAge bounds how old a restored record may be. Zero disables the check.
	MaxAge time.Duration
}

// AuthService owns the signed-in Identity. It is the only writer of both the
// in-memory identity and its persisted record.
//
// Public operations never return raw storage or exchange errors; they degrade
// to "unauthenticated" and log what happened.
type AuthService struct {
	store     repository.RecordStore
	exchanger CredentialExchanger
	tokens    *TokenIssuer
	clock     clock.Clock
	bus       event.Bus
	recordKey string
	maxAge    time.Duration

	// transition serializes identity changes together with their listener
	// notifications, so listeners observe transitions in order.
	transition sync.Mutex

	mu        sync.RWMutex
	identity  *model.Identity
	inflight  int
	nextSubID int
	listeners map[int]func(*model.Identity)
}

func NewAuthService(store repository.RecordStore, exchanger CredentialExchanger, tokens *TokenIssuer, clk clock.Clock, bus event.Bus, opts AuthOptions) *AuthService {
	if opts.RecordKey == "" {
		opts.RecordKey = DefaultIdentityRecordKey
	}
	if bus == nil {
		bus = event.Discard{}
	}

	return &AuthService{
		store:     store,
		exchanger: exchanger,
		tokens:    tokens,
		clock:     clk,
		bus:       bus,
		recordKey: opts.RecordKey,
		maxAge:    opts.MaxAge,
		listeners: map[int]func(*model.Identity){},
	}
}

// Restore re-establishes a previously persisted identity without contacting
// the credential exchange. A corrupt or stale record is deleted.
func (s *AuthService) Restore(ctx context.Context) {
	release := s.beginLoading()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("identity restore panicked", "panic", r)
		}
		release()
	}()

	raw, err := s.store.Get(ctx, s.recordKey)
	if errors.Is(err, model.ErrRecordNotFound) {
		slog.Debug("no identity record to restore")
		return
	}
	if err != nil {
		slog.Warn("identity record unreadable, starting signed out", "error", err)
		return
	}

	parsed := ParseIdentityRecord(raw)
	switch parsed.Status {
	case RecordAbsent:
		return
	case RecordCorrupt:
		s.discardRecord(ctx, parsed.Reason)
		return
	}

	identity := parsed.Identity
	if s.maxAge > 0 && s.clock.Now().Sub(identity.IssuedAt) >= s.maxAge {
		s.discardRecord(ctx, "max age exceeded")
		return
	}
	if s.tokens != nil {
		expiresAt, err := s.tokens.Expiry(identity.AccessToken)
		if err != nil {
			s.discardRecord(ctx, "access credential rejected")
			return
		}
		identity.ExpiresAt = expiresAt
	}

	s.transition.Lock()
	defer s.transition.Unlock()

	s.setIdentity(&identity)
	slog.Info("identity restored", "identity_id", identity.ID)
	s.bus.Publish(event.New(event.TypeIdentityRestored, identity.ID, map[string]any{
		"email": identity.Email,
	}, s.clock.Now()))
}

// Login exchanges credentials, persists the new identity and makes it
// current. Nothing is changed unless every step succeeds.
func (s *AuthService) Login(ctx context.Context, email string, secret string) (ok bool) {
	release := s.beginLoading()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("login panicked", "panic", r)
			ok = false
		}
		release()
	}()

	identity, err := s.exchanger.Exchange(ctx, email, secret)
	if err != nil {
		reason := "exchange_failed"
		if errors.Is(err, model.ErrInvalidCredentials) {
			reason = "invalid_credentials"
		}
		slog.Info("login rejected", "email", email, "reason", reason)
		s.publishLoginFailed(email, reason)
		return false
	}
	if s.tokens != nil {
		expiresAt, err := s.tokens.Expiry(identity.AccessToken)
		if err != nil {
			slog.Error("exchange returned an unusable credential", "error", err)
			s.publishLoginFailed(email, "exchange_failed")
			return false
		}
		identity.ExpiresAt = expiresAt
	}

	raw, err := encodeIdentityRecord(identity)
	if err != nil {
		slog.Error("encode identity record", "error", err)
		s.publishLoginFailed(email, "persist_failed")
		return false
	}

	s.transition.Lock()
	defer s.transition.Unlock()

	if err := s.store.Put(ctx, s.recordKey, raw); err != nil {
		slog.Error("persist identity record", "error", err)
		s.publishLoginFailed(email, "persist_failed")
		return false
	}

	s.setIdentity(&identity)
	slog.Info("login succeeded", "identity_id", identity.ID)
	s.bus.Publish(event.New(event.TypeLoginSucceeded, identity.ID, map[string]any{
		"email": identity.Email,
	}, s.clock.Now()))

	return true
}

// Logout removes the persisted record and clears the identity. Calling it
// while signed out is a no-op apart from the record delete.
func (s *AuthService) Logout(ctx context.Context) {
	s.logout(ctx, func(*model.Identity) bool { return true })
}

// LogoutIf signs out only while the current identity still holds
// accessToken. A later sign-in is left untouched.
func (s *AuthService) LogoutIf(ctx context.Context, accessToken string) bool {
	return s.logout(ctx, func(current *model.Identity) bool {
		return current != nil && current.AccessToken == accessToken
	})
}

func (s *AuthService) logout(ctx context.Context, matches func(*model.Identity) bool) (done bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("logout panicked", "panic", r)
		}
	}()

	s.transition.Lock()
	defer s.transition.Unlock()

	s.mu.RLock()
	previous := copyIdentity(s.identity)
	s.mu.RUnlock()
	if !matches(previous) {
		return false
	}

	// the record must go even if the caller has already given up
	if err := s.store.Delete(context.WithoutCancel(ctx), s.recordKey); err != nil {
		slog.Warn("delete identity record", "error", err)
	}
	if previous == nil {
		return true
	}

	s.setIdentity(nil)
	slog.Info("logged out", "identity_id", previous.ID)
	s.bus.Publish(event.New(event.TypeLoggedOut, previous.ID, map[string]any{
		"email":   previous.Email,
		"session": previous.SessionKey(),
	}, s.clock.Now()))
	return true
}

func (s *AuthService) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity != nil
}

// CurrentIdentity returns a copy of the identity, or nil when signed out.
func (s *AuthService) CurrentIdentity() *model.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyIdentity(s.identity)
}

// Loading is true only while Restore or Login is in flight.
func (s *AuthService) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inflight > 0
}

func (s *AuthService) Status() model.AuthStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := model.AuthStatus{Authenticated: s.identity != nil, Loading: s.inflight > 0}
	if s.identity != nil {
		public := s.identity.Public()
		status.Identity = &public
	}
	return status
}

// Subscribe registers fn for identity transitions and immediately delivers
// the current value. fn must not call Login or Logout synchronously.
func (s *AuthService) Subscribe(fn func(*model.Identity)) func() {
	s.transition.Lock()
	defer s.transition.Unlock()

	s.mu.Lock()
	s.nextSubID++
	id := s.nextSubID
	s.listeners[id] = fn
	current := copyIdentity(s.identity)
	s.mu.Unlock()

	fn(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// Authenticate resolves a bearer credential to the current identity.
func (s *AuthService) Authenticate(token string) (model.Identity, error) {
	s.mu.RLock()
	current := copyIdentity(s.identity)
	s.mu.RUnlock()

	if current == nil {
		return model.Identity{}, model.ErrUnauthorized
	}
	if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(current.AccessToken)) != 1 {
		return model.Identity{}, model.ErrTokenInvalid
	}
	if s.tokens != nil {
		if _, err := s.tokens.Parse(token); err != nil {
			return model.Identity{}, model.ErrTokenInvalid
		}
	}

	return *current, nil
}

// setIdentity must be called with s.transition held.
func (s *AuthService) setIdentity(identity *model.Identity) {
	s.mu.Lock()
	s.identity = copyIdentity(identity)
	listeners := make([]func(*model.Identity), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(copyIdentity(identity))
	}
}

func (s *AuthService) discardRecord(ctx context.Context, reason string) {
	slog.Warn("discarding identity record", "reason", reason)
	if err := s.store.Delete(context.WithoutCancel(ctx), s.recordKey); err != nil {
		slog.Warn("delete identity record", "error", err)
	}
	s.bus.Publish(event.New(event.TypeRecordDiscarded, "", map[string]any{
		"reason": reason,
	}, s.clock.Now()))
}

func (s *AuthService) publishLoginFailed(email string, reason string) {
	s.bus.Publish(event.New(event.TypeLoginFailed, "", map[string]any{
		"email":  email,
		"reason": reason,
	}, s.clock.Now()))
}

func (s *AuthService) beginLoading() func() {
	s.mu.Lock()
	s.inflight++
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.inflight--
			s.mu.Unlock()
		})
	}
}

func copyIdentity(identity *model.Identity) *model.Identity {
	if identity == nil {
		return nil
	}
	clone := *identity
	return &clone
}
