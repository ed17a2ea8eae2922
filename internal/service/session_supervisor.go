package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go-banking-client/internal/clock"
	"go-banking-client/internal/event"
	"go-banking-client/internal/model"
)

type SessionState int

const (
	SessionDormant SessionState = iota
	SessionActive
	SessionWarning
)

func (s SessionState) String() string {
	switch s {
	case SessionDormant:
		return "dormant"
	case SessionActive:
		return "active"
	case SessionWarning:
		return "warning"
	default:
		return "unknown"
	}
}

const (
	ExpiryIdleTimeout = "idle_timeout"
	ExpiryCountdown   = "countdown_elapsed"
	ExpiryMaxAge      = "max_age"
	ExpiryCredential  = "credential_expired"
)

type SupervisorConfig struct {
	WarningAfter      time.Duration
	ExpireAfter       time.Duration
	CheckInterval     time.Duration
	CountdownSeconds  int
	CountdownInterval time.Duration
	// MaxAge ends the session once the identity is this old, regardless of
	// activity. Zero disables it.
	MaxAge time.Duration
}

func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		WarningAfter:      4 * time.Minute,
		ExpireAfter:       5 * time.Minute,
		CheckInterval:     time.Second,
		CountdownSeconds:  60,
		CountdownInterval: time.Second,
	}
}

// IdentitySource is the part of the auth lifecycle the supervisor depends on.
type IdentitySource interface {
	Subscribe(fn func(*model.Identity)) (unsubscribe func())
	// LogoutIf signs out only while accessToken is still the current
	// credential.
	LogoutIf(ctx context.Context, accessToken string) bool
}

// SessionSupervisor tracks idle time while an identity exists, shows a
// warning countdown, and forces logout once the idle budget is spent or the
// access credential lapses.
//
// Every scheduled callback captures the generation it was armed under and
// does nothing if the generation has moved on, so a timer that fires after
// teardown can never act on a later session.
type SessionSupervisor struct {
	cfg      SupervisorConfig
	auth     IdentitySource
	clock    clock.Clock
	activity ActivitySource
	bus      event.Bus

	mu            sync.Mutex
	state         SessionState
	identityID    string
	issuedAt      time.Time
	expiresAt     time.Time
	credential    string
	lastActivity  time.Time
	countdown     int
	generation    uint64
	episode       uint64
	expiring      bool
	detach        func()
	stopCheck     func()
	stopCountdown func()

	startOnce   sync.Once
	unsubscribe func()
}

func NewSessionSupervisor(cfg SupervisorConfig, auth IdentitySource, clk clock.Clock, activity ActivitySource, bus event.Bus) (*SessionSupervisor, error) {
	if cfg.CountdownInterval == 0 {
		cfg.CountdownInterval = time.Second
	}
	if cfg.WarningAfter <= 0 || cfg.ExpireAfter <= 0 || cfg.CheckInterval <= 0 || cfg.CountdownInterval <= 0 {
		return nil, errors.New("session durations must be positive")
	}
	if cfg.WarningAfter >= cfg.ExpireAfter {
		return nil, errors.New("warning threshold must be less than expiry threshold")
	}
	if cfg.CountdownSeconds <= 0 {
		return nil, errors.New("countdown seconds must be positive")
	}
	if auth == nil || clk == nil || activity == nil {
		return nil, errors.New("auth, clock and activity source are required")
	}
	if bus == nil {
		bus = event.Discard{}
	}

	return &SessionSupervisor{
		cfg:      cfg,
		auth:     auth,
		clock:    clk,
		activity: activity,
		bus:      bus,
	}, nil
}

// Start follows the identity source. If an identity already exists the
// session arms immediately.
func (s *SessionSupervisor) Start() {
	s.startOnce.Do(func() {
		unsubscribe := s.auth.Subscribe(s.onIdentity)
		s.mu.Lock()
		s.unsubscribe = unsubscribe
		s.mu.Unlock()
	})
}

// Close stops following the identity source and releases every timer and
// listener. It does not log the user out.
func (s *SessionSupervisor) Close() {
	s.mu.Lock()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}

	s.mu.Lock()
	s.teardownLocked()
	s.state = SessionDormant
	s.countdown = 0
	s.expiring = false
	s.mu.Unlock()
}

func (s *SessionSupervisor) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *SessionSupervisor) WarningVisible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == SessionWarning
}

func (s *SessionSupervisor) CountdownRemaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != SessionWarning {
		return 0
	}
	return s.countdown
}

func (s *SessionSupervisor) Snapshot() model.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := model.SessionSnapshot{State: s.state.String(), WarningVisible: s.state == SessionWarning}
	if s.state == SessionDormant {
		return snap
	}

	snap.IdentityID = s.identityID
	snap.LastActivity = s.lastActivity.UTC()
	snap.IdleSeconds = int(s.clock.Now().Sub(s.lastActivity) / time.Second)
	if s.state == SessionWarning {
		snap.CountdownSeconds = s.countdown
	}
	return snap
}

// ResetSession restarts the idle window and dismisses a visible warning.
// It reports false when no session is being supervised.
func (s *SessionSupervisor) ResetSession() bool {
	s.mu.Lock()
	if s.state == SessionDormant || s.expiring {
		s.mu.Unlock()
		return false
	}
	cleared := s.resetLocked()
	id := s.identityID
	s.mu.Unlock()

	slog.Debug("session reset", "identity_id", id, "warning_cleared", cleared)
	s.publish(event.TypeSessionReset, id, map[string]any{"warning_cleared": cleared})
	return true
}

func (s *SessionSupervisor) onIdentity(identity *model.Identity) {
	s.mu.Lock()

	if identity == nil {
		// forced expiry finishes its own teardown after Logout returns
		if s.state == SessionDormant || s.expiring {
			s.mu.Unlock()
			return
		}
		id := s.identityID
		s.teardownLocked()
		s.state = SessionDormant
		s.countdown = 0
		s.mu.Unlock()

		slog.Info("session ended", "identity_id", id, "reason", "logout")
		s.publish(event.TypeSessionEnded, id, map[string]any{"reason": "logout"})
		return
	}

	if s.state != SessionDormant && !s.expiring && s.credential == identity.AccessToken {
		s.mu.Unlock()
		return
	}

	s.teardownLocked()
	s.armLocked(identity)
	s.mu.Unlock()

	slog.Info("session started", "identity_id", identity.ID)
	s.publish(event.TypeSessionStarted, identity.ID, nil)
}

func (s *SessionSupervisor) armLocked(identity *model.Identity) {
	s.generation++
	gen := s.generation

	s.identityID = identity.ID
	s.issuedAt = identity.IssuedAt
	s.expiresAt = identity.ExpiresAt
	s.credential = identity.AccessToken
	s.state = SessionActive
	s.countdown = 0
	s.expiring = false

	s.detach = s.activity.Subscribe(QualifyingActivity, func(kind ActivityKind) {
		s.recordActivity(gen, kind)
	})
	s.stopCheck = s.clock.Every(s.cfg.CheckInterval, func() {
		s.checkIdle(gen)
	})
	s.lastActivity = s.clock.Now()
}

func (s *SessionSupervisor) recordActivity(gen uint64, kind ActivityKind) {
	s.mu.Lock()
	if !s.liveLocked(gen) {
		s.mu.Unlock()
		return
	}
	cleared := s.resetLocked()
	id := s.identityID
	s.mu.Unlock()

	s.publish(event.TypeSessionActivity, id, map[string]any{
		"kind":            string(kind),
		"warning_cleared": cleared,
	})
}

func (s *SessionSupervisor) checkIdle(gen uint64) {
	s.mu.Lock()
	if !s.liveLocked(gen) {
		s.mu.Unlock()
		return
	}

	now := s.clock.Now()
	idle := now.Sub(s.lastActivity)

	switch {
	case s.cfg.MaxAge > 0 && !s.issuedAt.IsZero() && now.Sub(s.issuedAt) >= s.cfg.MaxAge:
		s.expire(ExpiryMaxAge)
	case !s.expiresAt.IsZero() && !now.Before(s.expiresAt):
		s.expire(ExpiryCredential)
	case idle >= s.cfg.ExpireAfter:
		s.expire(ExpiryIdleTimeout)
	case idle >= s.cfg.WarningAfter && s.state == SessionActive:
		s.enterWarningLocked(gen)
		id, remaining := s.identityID, s.countdown
		s.mu.Unlock()

		slog.Info("session warning shown", "identity_id", id, "countdown", remaining, "idle", idle)
		s.publish(event.TypeSessionWarning, id, map[string]any{"countdown_seconds": remaining})
	default:
		s.mu.Unlock()
	}
}

func (s *SessionSupervisor) enterWarningLocked(gen uint64) {
	s.state = SessionWarning
	s.countdown = s.cfg.CountdownSeconds
	s.episode++
	ep := s.episode

	s.stopCountdown = s.clock.Every(s.cfg.CountdownInterval, func() {
		s.countdownTick(gen, ep)
	})
}

func (s *SessionSupervisor) countdownTick(gen uint64, ep uint64) {
	s.mu.Lock()
	if !s.liveLocked(gen) || ep != s.episode || s.state != SessionWarning {
		s.mu.Unlock()
		return
	}

	s.countdown--
	if s.countdown <= 0 {
		s.expire(ExpiryCountdown)
		return
	}

	id, remaining := s.identityID, s.countdown
	s.mu.Unlock()

	s.publish(event.TypeSessionCountdown, id, map[string]any{"countdown_seconds": remaining})
}

// expire is entered with s.mu held and returns with it released. Listeners
// and timers are gone before Logout runs; the warning clears last.
func (s *SessionSupervisor) expire(reason string) {
	id, credential := s.identityID, s.credential
	s.teardownLocked()
	s.expiring = true
	gen := s.generation
	s.mu.Unlock()

	// announced before Logout so listeners that follow auth.logout still
	// learn the reason
	slog.Info("session expired", "identity_id", id, "reason", reason)
	s.publish(event.TypeSessionExpired, id, map[string]any{"reason": reason})
	if !s.auth.LogoutIf(context.Background(), credential) {
		slog.Info("identity changed before forced logout, keeping it", "identity_id", id)
	}

	s.mu.Lock()
	if s.generation == gen {
		s.state = SessionDormant
		s.countdown = 0
		s.expiring = false
	}
	s.mu.Unlock()
}

// resetLocked reports whether a warning was dismissed.
func (s *SessionSupervisor) resetLocked() bool {
	s.lastActivity = s.clock.Now()
	if s.state != SessionWarning {
		return false
	}

	if s.stopCountdown != nil {
		s.stopCountdown()
		s.stopCountdown = nil
	}
	s.episode++
	s.state = SessionActive
	s.countdown = 0
	return true
}

// teardownLocked detaches listeners and cancels both timers. It leaves the
// state untouched so callers decide when the warning clears.
func (s *SessionSupervisor) teardownLocked() {
	if s.detach != nil {
		s.detach()
		s.detach = nil
	}
	if s.stopCheck != nil {
		s.stopCheck()
		s.stopCheck = nil
	}
	if s.stopCountdown != nil {
		s.stopCountdown()
		s.stopCountdown = nil
	}
	s.generation++
	s.episode++
}

func (s *SessionSupervisor) liveLocked(gen uint64) bool {
	return gen == s.generation && s.state != SessionDormant && !s.expiring
}

func (s *SessionSupervisor) publish(t event.Type, actorID string, payload any) {
	s.bus.Publish(event.New(t, actorID, payload, s.clock.Now()))
}
