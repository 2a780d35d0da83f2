package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"licensehub/internal/config"
	"licensehub/internal/middleware"
)

// Dependencies collects everything the router needs.
type Dependencies struct {
	Brand   *BrandHandler
	Product *ProductHandler
	Health  *HealthHandler

	APIKeys     middleware.APIKeyStore
	LicenseKeys middleware.LicenseKeyStore
	Limiter     middleware.RateLimiter
	Idempotency middleware.IdempotencyStore

	Logger *slog.Logger
}

// NewRouter assembles the full HTTP surface:
//
//	/health*, /ready, /metrics  unauthenticated
//	/api/v1/brand/*             X-API-Key auth, rate limit, idempotency
//	/api/v1/product/*           X-License-Key auth
func NewRouter(cfg *config.Config, deps Dependencies) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Correlation)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.StripSlashes)
	r.Use(middleware.StructuredLogger(deps.Logger))
	r.Use(middleware.Recoverer(deps.Logger))
	r.Use(middleware.Metrics)

	if cfg.Security.EnableCORS {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.Security.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-API-Key", "X-License-Key", "X-Correlation-ID", "Idempotency-Key"},
			ExposedHeaders:   []string{"X-Trace-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	// Unauthenticated edge gets a coarse per-IP limit.
	r.Group(func(r chi.Router) {
		if cfg.Security.EdgeRateLimit > 0 {
			r.Use(httprate.LimitByIP(cfg.Security.EdgeRateLimit, time.Minute))
		}
		r.Mount("/", deps.Health.Routes())
		r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.BrandAuth(deps.APIKeys))
			if cfg.RateLimit.Enabled && deps.Limiter != nil {
				r.Use(middleware.RateLimit(deps.Limiter, cfg.RateLimit.Limit))
			}
			if cfg.Idempotency.Enabled && deps.Idempotency != nil {
				r.Use(middleware.Idempotency(deps.Idempotency, cfg.Idempotency.TTL))
			}
			r.Mount("/brand", deps.Brand.Routes(middleware.RequireWriteScope))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.ProductAuth(deps.LicenseKeys))
			r.Mount("/product", deps.Product.Routes())
		})
	})

	return r
}
