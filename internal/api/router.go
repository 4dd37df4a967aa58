package api

import (
	"net/http"

	"github.com/ayo6706/payment-bridge/internal/api/handler"
	"github.com/ayo6706/payment-bridge/internal/api/middleware"
	"github.com/ayo6706/payment-bridge/internal/api/spec"
	"github.com/ayo6706/payment-bridge/internal/config"
	"github.com/ayo6706/payment-bridge/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
)

type Router struct {
	cfg          *config.Config
	logger       *zap.Logger
	transactions *service.TransactionService
	webhooks     *service.WebhookService
	idempotency  middleware.IdempotencyStore
	health       *handler.HealthHandler
}

// NewRouter wires handlers and middleware. idem may be nil to disable
// Idempotency-Key replay; health may be nil for a bare liveness handler.
func NewRouter(cfg *config.Config, logger *zap.Logger, transactions *service.TransactionService, webhooks *service.WebhookService, idem middleware.IdempotencyStore, health *handler.HealthHandler) *Router {
	if health == nil {
		health = handler.NewHealthHandler()
	}
	return &Router{
		cfg:          cfg,
		logger:       logger,
		transactions: transactions,
		webhooks:     webhooks,
		idempotency:  idem,
		health:       health,
	}
}

func (api *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.RecoverMiddleware(api.logger))
	r.Use(middleware.LoggingMiddleware(api.logger))
	r.Use(middleware.MetricsMiddleware)

	txHandler := handler.NewTransactionHandler(api.transactions)
	webhookHandler := handler.NewWebhookHandler(api.webhooks)

	// Ops
	r.Get("/health/live", api.health.Live)
	r.Get("/health/ready", api.health.Ready)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/openapi.yaml", spec.OpenAPIHandler())
	swagger := httpSwagger.Handler(httpSwagger.URL("/openapi.yaml"))
	r.Get("/swagger/*", swagger)
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/swagger/index.html", http.StatusMovedPermanently)
	})

	// Merchant API
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.PublicRateLimiter(api.cfg.PublicRateLimitRPS))
		if api.cfg.JWTSecret != "" {
			r.Use(middleware.AuthMiddleware(middleware.AuthConfig{
				Secret:   []byte(api.cfg.JWTSecret),
				Issuer:   api.cfg.JWTIssuer,
				Audience: api.cfg.JWTAudience,
			}))
		}

		idem := middleware.IdempotencyMiddleware(api.idempotency, api.logger)
		r.With(idem).Post("/payout/create", txHandler.CreatePayout)
		r.With(idem).Post("/payin/create", txHandler.CreatePayin)

		r.Get("/transactions", txHandler.ListTransactions)
		r.Get("/transactions/{id}", txHandler.GetTransaction)
		r.Get("/payouts", txHandler.ListPayouts)
	})

	// Gateway callbacks
	r.Route("/webhook", func(r chi.Router) {
		r.Use(middleware.WebhookRateLimiter(api.cfg.WebhookRateLimitRPS))
		r.Post("/payout", webhookHandler.HandlePayout)
		r.Post("/payraizen", webhookHandler.HandlePayout)
		r.Post("/payin", webhookHandler.HandlePayin)
	})

	return r
}
