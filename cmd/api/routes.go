package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/josh-kwaku/mobile-money/internal/handler"
	"github.com/josh-kwaku/mobile-money/internal/metrics"
	"github.com/josh-kwaku/mobile-money/internal/middleware"
	"github.com/josh-kwaku/mobile-money/internal/repository"
)

type routes struct {
	jwtSecret   string
	metrics     *metrics.Metrics
	idempotency *repository.IdempotencyRepository

	health      *handler.HealthHandler
	auth        *handler.AuthHandler
	accounts    *handler.AccountHandler
	transfers   *handler.TransferHandler
	withdrawals *handler.WithdrawalHandler
	deposits    *handler.DepositHandler
	commissions *handler.CommissionHandler
}

func newRouter(rt routes) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Tracing)
	r.Use(middleware.Logging)
	r.Use(middleware.Recovery)
	r.Use(rt.metrics.Middleware)

	r.Get("/health", rt.health.Liveness)
	r.Get("/ready", rt.health.Readiness)
	r.Method(http.MethodGet, "/metrics", rt.metrics.Handler())
	r.Get("/docs", handler.ServeDocs())
	r.Get("/docs/openapi.yaml", handler.ServeSpec())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", rt.auth.Login)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(rt.jwtSecret))
			r.Use(middleware.Idempotency(rt.idempotency))

			r.Get("/accounts/me", rt.accounts.Me)
			r.Get("/accounts/me/history", rt.accounts.History)

			r.Route("/transfers", func(r chi.Router) {
				r.Get("/", rt.transfers.List)
				r.Post("/", rt.transfers.Create)
				r.Get("/quote", rt.transfers.Quote)
				r.Post("/claim", rt.transfers.Claim)
				r.Get("/{id}", rt.transfers.Get)
				r.Delete("/{id}", rt.transfers.Delete)
			})

			r.Route("/withdrawals", func(r chi.Router) {
				r.Get("/", rt.withdrawals.List)
				r.Post("/", rt.withdrawals.Create)
				r.Post("/agent", rt.withdrawals.CreateForClient)
				r.Post("/redeem", rt.withdrawals.Redeem)
				r.Get("/{id}", rt.withdrawals.Get)
			})

			r.Post("/deposits", rt.deposits.Create)
			r.Post("/deposits/batch", rt.deposits.Batch)

			r.Get("/commissions", rt.commissions.Report)
		})
	})

	return r
}
