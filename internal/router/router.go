package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"go-banking-client/internal/config"
	"go-banking-client/internal/handler"
	"go-banking-client/internal/metrics"
	"go-banking-client/internal/middleware"
)

type Handlers struct {
	Health   *handler.HealthHandler
	Auth     *handler.AuthHandler
	Session  *handler.SessionHandler
	Account  *handler.AccountHandler
	Transfer *handler.TransferHandler
	Audit    *handler.AuditHandler
	WS       *handler.WSHandler
}

func New(cfg *config.Config, authMiddleware *middleware.AuthMiddleware, h Handlers, collector *metrics.Collector) http.Handler {
	r := chi.NewRouter()
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(cfg.RateLimitRPM, cfg.AuthRateLimitRPM)

	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(collector.InstrumentHandler)
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.SecurityHeaders)
	r.Use(rateLimitMiddleware.Handler)

	r.Get("/health", h.Health.Health)
	r.Handle("/metrics", collector.Handler())
	r.With(authMiddleware.RequireSocketAuth).Get("/ws", h.WS.Serve)

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(middleware.Timeout(cfg.RequestTimeout))

		api.Route("/auth", func(auth chi.Router) {
			auth.Post("/login", h.Auth.Login)
			auth.With(authMiddleware.RequireAuth).Post("/logout", h.Auth.Logout)
			auth.Get("/me", h.Auth.Me)
		})

		api.Group(func(private chi.Router) {
			private.Use(authMiddleware.RequireAuth)

			private.Get("/session", h.Session.Snapshot)
			private.Post("/session/reset", h.Session.Reset)
			private.Post("/session/activity", h.Session.Activity)

			private.Get("/accounts", h.Account.List)
			private.Get("/accounts/{id}", h.Account.Get)
			private.Get("/accounts/{id}/transactions", h.Account.Transactions)
			private.Get("/accounts/{id}/transactions.csv", h.Account.ExportCSV)

			private.Post("/transfers", h.Transfer.Create)
			private.Get("/audit", h.Audit.List)
		})
	})

	return r
}
