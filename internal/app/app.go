package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go-banking-client/internal/clock"
	"go-banking-client/internal/config"
	"go-banking-client/internal/database"
	"go-banking-client/internal/event"
	"go-banking-client/internal/handler"
	"go-banking-client/internal/metrics"
	"go-banking-client/internal/middleware"
	"go-banking-client/internal/repository"
	"go-banking-client/internal/router"
	"go-banking-client/internal/service"
	"go-banking-client/internal/websocket"
)

// consumers is the number of bus subscribers Start launches.
const consumers = 3

type App struct {
	server     *http.Server
	handler    http.Handler
	bus        *event.InMemoryBus
	auth       *service.AuthService
	supervisor *service.SessionSupervisor
	audit      *service.AuditService
	collector  *metrics.Collector
	hub        *websocket.Hub

	cancel       context.CancelFunc
	wg           sync.WaitGroup
	cleanupFuncs []func()
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return Build(cfg, clock.System{})
}

// Build wires every component from cfg without starting anything. Tests pass
// a fake clock and the memory store.
func Build(cfg *config.Config, clk clock.Clock) (*App, error) {
	a := &App{}

	store, err := a.openStore(cfg)
	if err != nil {
		a.cleanup()
		return nil, err
	}

	tokens, err := service.NewTokenIssuer(cfg.AccessTokenSecret, cfg.AccessTokenTTL, clk)
	if err != nil {
		a.cleanup()
		return nil, fmt.Errorf("failed to initialize token issuer: %w", err)
	}

	exchanger, err := service.NewDemoCredentialExchange(service.DemoExchangeOptions{
		Email:    cfg.DemoEmail,
		Password: cfg.DemoPassword,
		Latency:  cfg.LoginLatency,
	}, clk, tokens)
	if err != nil {
		a.cleanup()
		return nil, fmt.Errorf("failed to initialize credential exchange: %w", err)
	}

	a.bus = event.NewBus()
	a.auth = service.NewAuthService(store, exchanger, tokens, clk, a.bus, service.AuthOptions{
		RecordKey: cfg.IdentityRecordKey,
		MaxAge:    cfg.SessionMaxAge,
	})

	activity := service.NewActivityHub()
	a.supervisor, err = service.NewSessionSupervisor(service.SupervisorConfig{
		WarningAfter:      cfg.SessionWarningAfter,
		ExpireAfter:       cfg.SessionExpireAfter,
		CheckInterval:     cfg.SessionCheckInterval,
		CountdownSeconds:  cfg.SessionCountdownSecs,
		CountdownInterval: time.Second,
		MaxAge:            cfg.SessionMaxAge,
	}, a.auth, clk, activity, a.bus)
	if err != nil {
		a.cleanup()
		return nil, fmt.Errorf("failed to initialize session supervisor: %w", err)
	}

	a.audit, err = service.NewAuditService(cfg.AuditLogFile)
	if err != nil {
		a.cleanup()
		return nil, fmt.Errorf("failed to initialize audit service: %w", err)
	}

	bank := service.NewBankService(clk, a.bus, service.BankOptions{Latency: cfg.BankAPILatency})
	a.collector = metrics.New()
	a.hub = websocket.NewHub(a.bus, cfg.CORSOrigins)

	a.handler = router.New(cfg, middleware.NewAuthMiddleware(a.auth), router.Handlers{
		Health:   handler.NewHealthHandler(a.auth, a.supervisor, a.hub),
		Auth:     handler.NewAuthHandler(a.auth),
		Session:  handler.NewSessionHandler(a.supervisor, activity),
		Account:  handler.NewAccountHandler(bank),
		Transfer: handler.NewTransferHandler(bank),
		Audit:    handler.NewAuditHandler(a.audit),
		WS:       handler.NewWSHandler(a.hub, a.auth, a.supervisor, activity),
	}, a.collector)

	a.server = &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           a.handler,
		ReadHeaderTimeout: cfg.ServerReadHeaderTimeout,
		WriteTimeout:      cfg.ServerWriteTimeout,
		IdleTimeout:       cfg.ServerIdleTimeout,
	}

	return a, nil
}

func (a *App) openStore(cfg *config.Config) (repository.RecordStore, error) {
	var (
		store repository.RecordStore
		err   error
	)

	switch cfg.IdentityStore {
	case config.StoreMemory:
		store = repository.NewMemoryRecordStore()
	case config.StoreSQLite:
		store, err = repository.NewSQLiteRecordStore(cfg.SQLitePath)
	case config.StorePostgres:
		slog.Info("connecting to PostgreSQL")
		var db *database.DB
		db, err = database.New(context.Background(), database.Options{
			URL:      cfg.DatabaseURL,
			MaxConns: cfg.DBMaxConns,
			MinConns: cfg.DBMinConns,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		a.cleanupFuncs = append(a.cleanupFuncs, db.Close)

		if err := db.EnsureSchema(context.Background()); err != nil {
			return nil, fmt.Errorf("failed to ensure database schema: %w", err)
		}
		store = repository.NewPostgresRecordStore(db.Pool)
		slog.Info("database ready")
	default:
		store, err = repository.NewFileRecordStore(cfg.IdentityFile)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open identity store: %w", err)
	}

	a.cleanupFuncs = append(a.cleanupFuncs, func() {
		if err := store.Close(); err != nil {
			slog.Warn("close identity store", "error", err)
		}
	})
	slog.Info("identity store ready", "backend", cfg.IdentityStore)

	return store, nil
}

// Handler exposes the routed HTTP surface, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.handler
}

func (a *App) Auth() *service.AuthService {
	return a.auth
}

func (a *App) Supervisor() *service.SessionSupervisor {
	return a.supervisor
}

// Start launches the bus consumers, restores any persisted identity and
// begins supervising it.
func (a *App) Start(ctx context.Context) {
	ctx, a.cancel = context.WithCancel(ctx)

	a.goRun(func() { a.audit.Run(ctx, a.bus) })
	a.goRun(func() { a.collector.Run(ctx, a.bus) })
	a.goRun(func() { a.hub.Run(ctx) })
	a.awaitConsumers(time.Second)

	a.auth.Restore(ctx)
	a.supervisor.Start()
}

// Stop ends supervision without logging anyone out, then releases resources.
func (a *App) Stop() {
	a.supervisor.Close()
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
	a.cleanup()
}

func (a *App) Run() error {
	a.Start(context.Background())

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", a.server.Addr)
		if serveErr := a.server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errCh <- serveErr
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
	case err := <-errCh:
		a.Stop()
		return fmt.Errorf("server failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	shutdownErr := a.server.Shutdown(ctx)
	a.Stop()
	if shutdownErr != nil {
		return fmt.Errorf("graceful shutdown failed: %w", shutdownErr)
	}

	slog.Info("server stopped")
	return nil
}

func (a *App) goRun(fn func()) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn()
	}()
}

// awaitConsumers gives the consumers a moment to subscribe so the restore
// event is not lost.
func (a *App) awaitConsumers(limit time.Duration) {
	deadline := time.Now().Add(limit)
	for a.bus.SubscriberCount() < consumers && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
}

func (a *App) cleanup() {
	for i := len(a.cleanupFuncs) - 1; i >= 0; i-- {
		a.cleanupFuncs[i]()
	}
	a.cleanupFuncs = nil
}
