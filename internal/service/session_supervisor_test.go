package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"go-banking-client/internal/clock"
	"go-banking-client/internal/event"
	"go-banking-client/internal/model"
	"go-banking-client/internal/repository"
)

type countingIdentitySource struct {
	*AuthService
	logouts atomic.Int32
}

func (c *countingIdentitySource) LogoutIf(ctx context.Context, accessToken string) bool {
	c.logouts.Add(1)
	return c.AuthService.LogoutIf(ctx, accessToken)
}

// signInRacingSource completes a fresh sign-in just before the first forced
// logout reaches the auth service.
type signInRacingSource struct {
	*AuthService
	t       *testing.T
	signins int
}

func (r *signInRacingSource) LogoutIf(ctx context.Context, accessToken string) bool {
	if r.signins == 0 {
		r.signins++
		require.True(r.t, r.AuthService.Login(ctx, "demo@bank.com", "demo1235"))
	}
	return r.AuthService.LogoutIf(ctx, accessToken)
}

type supervisorFixture struct {
	*authFixture
	hub    *ActivityHub
	source *countingIdentitySource
	sup    *SessionSupervisor
}

func newSupervisorFixture(t *testing.T, cfg SupervisorConfig) *supervisorFixture {
	t.Helper()

	f := &supervisorFixture{authFixture: newAuthFixture(t, AuthOptions{}), hub: NewActivityHub()}
	f.source = &countingIdentitySource{AuthService: f.auth}

	sup, err := NewSessionSupervisor(cfg, f.source, f.clk, f.hub, f.bus)
	require.NoError(t, err)
	f.sup = sup
	sup.Start()
	t.Cleanup(sup.Close)

	require.True(t, f.auth.Login(context.Background(), "demo@bank.com", "demo1235"))
	require.Equal(t, SessionActive, sup.State())
	return f
}

func TestSessionSupervisor_DormantUntilSignedIn(t *testing.T) {
	f := newAuthFixture(t, AuthOptions{})
	hub := NewActivityHub()
	sup, err := NewSessionSupervisor(DefaultSupervisorConfig(), f.auth, f.clk, hub, nil)
	require.NoError(t, err)
	sup.Start()
	defer sup.Close()

	assert.Equal(t, SessionDormant, sup.State())
	assert.False(t, sup.ResetSession())
	assert.Zero(t, f.clk.Pending())
	assert.Zero(t, hub.ListenerCount())

	require.True(t, f.auth.Login(context.Background(), "demo@bank.com", "demo1235"))

	assert.Equal(t, SessionActive, sup.State())
	assert.Equal(t, 1, f.clk.Pending())
	assert.Equal(t, 1, hub.ListenerCount())
}

func TestSessionSupervisor_WarningAtFourMinutes(t *testing.T) {
	f := newSupervisorFixture(t, DefaultSupervisorConfig())

	f.clk.Advance(239 * time.Second)
	assert.Equal(t, SessionActive, f.sup.State())
	assert.False(t, f.sup.WarningVisible())

	f.clk.Advance(time.Second)
	assert.Equal(t, SessionWarning, f.sup.State())
	assert.True(t, f.sup.WarningVisible())
	assert.Equal(t, 60, f.sup.CountdownRemaining())

	f.clk.Advance(10 * time.Second)
	assert.True(t, f.sup.WarningVisible())
	assert.Equal(t, 50, f.sup.CountdownRemaining())
}

func TestSessionSupervisor_ExpiresOnceAtFiveMinutes(t *testing.T) {
	f := newSupervisorFixture(t, DefaultSupervisorConfig())

	f.clk.Advance(299 * time.Second)
	require.True(t, f.auth.IsAuthenticated())
	assert.Equal(t, 1, f.sup.CountdownRemaining())

	f.clk.Advance(time.Second)

	assert.False(t, f.auth.IsAuthenticated())
	assert.Equal(t, SessionDormant, f.sup.State())
	assert.False(t, f.sup.WarningVisible())
	assert.Equal(t, int32(1), f.source.logouts.Load())
	assert.Zero(t, f.clk.Pending())
	assert.Zero(t, f.hub.ListenerCount())
	assert.False(t, f.store.Has(DefaultIdentityRecordKey))

	f.clk.Advance(30 * time.Minute)
	f.hub.Emit(ActivityKeyDown)

	assert.Equal(t, int32(1), f.source.logouts.Load())
	assert.Equal(t, SessionDormant, f.sup.State())
}

func TestSessionSupervisor_ActivityKeepsSessionAlive(t *testing.T) {
	f := newSupervisorFixture(t, DefaultSupervisorConfig())
	kinds := []ActivityKind{ActivityKeyDown, ActivityScroll, ActivityTouchStart}

	for i := 0; i < 30; i++ {
		f.clk.Advance(239 * time.Second)
		require.Equal(t, 1, f.hub.Emit(kinds[i%len(kinds)]))
		require.Equal(t, SessionActive, f.sup.State())
	}

	assert.True(t, f.auth.IsAuthenticated())
	assert.Zero(t, f.source.logouts.Load())
}

func TestSessionSupervisor_NonQualifyingActivityIgnored(t *testing.T) {
	f := newSupervisorFixture(t, DefaultSupervisorConfig())

	f.clk.Advance(200 * time.Second)
	assert.Zero(t, f.hub.Emit(ActivityKind("mousemove")))
	f.clk.Advance(40 * time.Second)

	assert.True(t, f.sup.WarningVisible())
}

func TestSessionSupervisor_ResetDuringWarning(t *testing.T) {
	f := newSupervisorFixture(t, DefaultSupervisorConfig())

	f.clk.Advance(250 * time.Second)
	require.True(t, f.sup.WarningVisible())

	assert.True(t, f.sup.ResetSession())
	assert.False(t, f.sup.WarningVisible())
	assert.Equal(t, SessionActive, f.sup.State())
	assert.Zero(t, f.sup.CountdownRemaining())
	assert.Equal(t, 1, f.clk.Pending())

	f.clk.Advance(239 * time.Second)
	assert.False(t, f.sup.WarningVisible())

	f.clk.Advance(time.Second)
	assert.True(t, f.sup.WarningVisible())
	assert.Equal(t, 60, f.sup.CountdownRemaining())
}

func TestSessionSupervisor_ActivityDuringWarningRestartsWindow(t *testing.T) {
	f := newSupervisorFixture(t, DefaultSupervisorConfig())

	f.clk.Advance(290 * time.Second)
	require.True(t, f.sup.WarningVisible())

	f.hub.Emit(ActivityTouchStart)
	assert.False(t, f.sup.WarningVisible())

	// the old countdown would have hit zero here
	f.clk.Advance(60 * time.Second)
	assert.True(t, f.auth.IsAuthenticated())
	assert.Equal(t, SessionActive, f.sup.State())
}

func TestSessionSupervisor_UserLogoutTearsDownWithoutSecondLogout(t *testing.T) {
	f := newSupervisorFixture(t, DefaultSupervisorConfig())
	f.clk.Advance(250 * time.Second)
	require.True(t, f.sup.WarningVisible())

	f.auth.Logout(context.Background())

	assert.Equal(t, SessionDormant, f.sup.State())
	assert.False(t, f.sup.WarningVisible())
	assert.Zero(t, f.clk.Pending())
	assert.Zero(t, f.hub.ListenerCount())
	assert.Zero(t, f.source.logouts.Load())

	f.clk.Advance(10 * time.Minute)
	assert.Zero(t, f.source.logouts.Load())
}

func TestSessionSupervisor_CountdownAndCheckRaceExpireOnce(t *testing.T) {
	t.Run("countdown first", func(t *testing.T) {
		f := newSupervisorFixture(t, DefaultSupervisorConfig())
		f.clk.Advance(299 * time.Second)
		require.Equal(t, 1, f.sup.CountdownRemaining())

		f.sup.mu.Lock()
		gen, ep := f.sup.generation, f.sup.episode
		f.sup.mu.Unlock()

		f.sup.countdownTick(gen, ep)
		f.sup.checkIdle(gen)
		f.sup.countdownTick(gen, ep)

		assert.Equal(t, int32(1), f.source.logouts.Load())
		assert.Equal(t, SessionDormant, f.sup.State())
	})

	t.Run("concurrent", func(t *testing.T) {
		f := newSupervisorFixture(t, DefaultSupervisorConfig())
		f.clk.Advance(299 * time.Second)

		f.sup.mu.Lock()
		gen, ep := f.sup.generation, f.sup.episode
		f.sup.mu.Unlock()

		// idle reaches the expiry threshold on the same tick the countdown hits zero
		f.sup.mu.Lock()
		f.sup.lastActivity = f.sup.lastActivity.Add(-time.Second)
		f.sup.mu.Unlock()

		start := make(chan struct{})
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				<-start
				f.sup.checkIdle(gen)
			}()
			go func() {
				defer wg.Done()
				<-start
				f.sup.countdownTick(gen, ep)
			}()
		}
		close(start)
		wg.Wait()

		assert.Equal(t, int32(1), f.source.logouts.Load())
		assert.False(t, f.auth.IsAuthenticated())
		assert.Zero(t, f.clk.Pending())
		assert.Zero(t, f.hub.ListenerCount())
	})
}

func TestSessionSupervisor_MaxAge(t *testing.T) {
	cfg := DefaultSupervisorConfig()
	cfg.MaxAge = 10 * time.Minute
	f := newSupervisorFixture(t, cfg)
	events, unsubscribe := f.bus.Subscribe()
	defer unsubscribe()

	for i := 0; i < 12; i++ {
		f.clk.Advance(time.Minute)
		f.hub.Emit(ActivityScroll)
	}

	assert.False(t, f.auth.IsAuthenticated())
	assert.Equal(t, int32(1), f.source.logouts.Load())

	reason := ""
	for len(events) > 0 {
		e := <-events
		if e.Type == event.TypeSessionExpired {
			reason = e.Payload.(map[string]any)["reason"].(string)
		}
	}
	assert.Equal(t, ExpiryMaxAge, reason)
}

func TestSessionSupervisor_LogsOutWhenCredentialLapses(t *testing.T) {
	clk := clock.NewFake(testEpoch)
	tokens, err := NewTokenIssuer("test-secret", time.Hour, clk)
	require.NoError(t, err)
	exchange, err := NewDemoCredentialExchange(DemoExchangeOptions{
		Email:      "demo@bank.com",
		Password:   "demo1235",
		BcryptCost: bcrypt.MinCost,
	}, clk, tokens)
	require.NoError(t, err)

	bus := event.NewBusWithBuffer(256)
	auth := NewAuthService(repository.NewMemoryRecordStore(), exchange, tokens, clk, bus, AuthOptions{})
	source := &countingIdentitySource{AuthService: auth}
	hub := NewActivityHub()

	sup, err := NewSessionSupervisor(DefaultSupervisorConfig(), source, clk, hub, bus)
	require.NoError(t, err)
	sup.Start()
	defer sup.Close()

	events, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	require.True(t, auth.Login(context.Background(), "demo@bank.com", "demo1235"))
	token := auth.CurrentIdentity().AccessToken
	require.Equal(t, testEpoch.Add(time.Hour), auth.CurrentIdentity().ExpiresAt)

	// a steadily active user never goes idle
	for elapsed := 3 * time.Minute; elapsed < time.Hour; elapsed += 3 * time.Minute {
		clk.Advance(3 * time.Minute)
		hub.Emit(ActivityKeyDown)
	}
	_, err = auth.Authenticate(token)
	require.NoError(t, err)
	require.Equal(t, SessionActive, sup.State())

	clk.Advance(3 * time.Minute)

	assert.False(t, auth.IsAuthenticated())
	assert.Equal(t, SessionDormant, sup.State())
	assert.Equal(t, int32(1), source.logouts.Load())
	assert.Zero(t, clk.Pending())

	reason := ""
	for len(events) > 0 {
		e := <-events
		if e.Type == event.TypeSessionExpired {
			reason = e.Payload.(map[string]any)["reason"].(string)
		}
	}
	assert.Equal(t, ExpiryCredential, reason)
}

func TestSessionSupervisor_ForcedLogoutSparesNewerSignIn(t *testing.T) {
	f := newAuthFixture(t, AuthOptions{})
	hub := NewActivityHub()
	source := &signInRacingSource{AuthService: f.auth, t: t}

	sup, err := NewSessionSupervisor(DefaultSupervisorConfig(), source, f.clk, hub, f.bus)
	require.NoError(t, err)
	sup.Start()
	defer sup.Close()

	require.True(t, f.auth.Login(context.Background(), "demo@bank.com", "demo1235"))
	expired := f.auth.CurrentIdentity().AccessToken

	f.clk.Advance(5 * time.Minute)

	require.Equal(t, 1, source.signins)
	current := f.auth.CurrentIdentity()
	require.NotNil(t, current)
	assert.NotEqual(t, expired, current.AccessToken)
	assert.True(t, f.store.Has(DefaultIdentityRecordKey))
	assert.Equal(t, SessionActive, sup.State())
	assert.Equal(t, 1, f.clk.Pending())
	assert.Equal(t, 1, hub.ListenerCount())
}

func TestSessionSupervisor_ArmsForRestoredIdentity(t *testing.T) {
	f := newAuthFixture(t, AuthOptions{})
	require.True(t, f.auth.Login(context.Background(), "demo@bank.com", "demo1235"))

	restarted := f.newAuth(AuthOptions{})
	restarted.Restore(context.Background())

	sup, err := NewSessionSupervisor(DefaultSupervisorConfig(), restarted, f.clk, NewActivityHub(), nil)
	require.NoError(t, err)
	sup.Start()
	defer sup.Close()

	assert.Equal(t, SessionActive, sup.State())

	f.clk.Advance(5 * time.Minute)
	assert.False(t, restarted.IsAuthenticated())
}

func TestSessionSupervisor_Snapshot(t *testing.T) {
	f := newSupervisorFixture(t, DefaultSupervisorConfig())

	f.clk.Advance(245 * time.Second)
	snap := f.sup.Snapshot()

	assert.Equal(t, model.SessionSnapshot{
		State:            "warning",
		WarningVisible:   true,
		CountdownSeconds: 55,
		IdleSeconds:      245,
		LastActivity:     testEpoch,
		IdentityID:       "1",
	}, snap)

	f.auth.Logout(context.Background())
	assert.Equal(t, model.SessionSnapshot{State: "dormant"}, f.sup.Snapshot())
}

func TestSessionSupervisor_CloseReleasesEverything(t *testing.T) {
	f := newSupervisorFixture(t, DefaultSupervisorConfig())

	f.sup.Close()

	assert.Zero(t, f.clk.Pending())
	assert.Zero(t, f.hub.ListenerCount())
	assert.True(t, f.auth.IsAuthenticated())

	require.True(t, f.auth.Login(context.Background(), "demo@bank.com", "demo1235"))
	assert.Equal(t, SessionDormant, f.sup.State())
}

func TestNewSessionSupervisor_Validates(t *testing.T) {
	f := newAuthFixture(t, AuthOptions{})
	hub := NewActivityHub()

	tests := []struct {
		name   string
		mutate func(*SupervisorConfig)
	}{
		{name: "warning equals expiry", mutate: func(c *SupervisorConfig) { c.WarningAfter = c.ExpireAfter }},
		{name: "zero check interval", mutate: func(c *SupervisorConfig) { c.CheckInterval = 0 }},
		{name: "zero countdown", mutate: func(c *SupervisorConfig) { c.CountdownSeconds = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultSupervisorConfig()
			tt.mutate(&cfg)
			_, err := NewSessionSupervisor(cfg, f.auth, clock.NewFake(testEpoch), hub, nil)
			assert.Error(t, err)
		})
	}
}
