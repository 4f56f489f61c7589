// Package httpapi wires the HTTP transport (Gin) to the delivery pipeline,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, delivery-id validation, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/erauner/autodoist-events/internal/config"
	"github.com/erauner/autodoist-events/internal/domain"
	"github.com/erauner/autodoist-events/internal/http/handlers"
	"github.com/erauner/autodoist-events/internal/http/middleware"
	"github.com/erauner/autodoist-events/internal/repo"
	"github.com/erauner/autodoist-events/internal/services"
	"github.com/erauner/autodoist-events/internal/todoist"
)

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), delivery-id
// validation and rate limiting, CORS and security headers, health and metrics
// endpoints, and then mounts the webhook, admin, OAuth, and internal routes.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with credential scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Rate limiter (per IP; webhook replays bypass it)
//  8. CORS and Security headers
//
// The delivery-id validator is mounted on the webhook group only, so admin
// and operator routes never require Todoist headers.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction (the signature header is masked
	// by default; the admin and internal tokens ride in Authorization, which
	// is masked as well)
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB; Todoist envelopes are tiny)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Token-bucket rate limiter per client IP. Redeliveries of processed
	// ids bypass it (flag set by the webhook group's RequireDeliveryID).
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByClientIP())
	r.Use(rl.Handler())

	// 8) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderDeliveryID, handlers.HeaderSignature},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderDeliveryID, handlers.HeaderSignature},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound)
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed)
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })

	// Swagger UI (spec registered by the docs package in main)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Dependency injection: services ← repo/db/client
	client := todoist.NewClient(todoist.ClientConfig{
		Token:   cfg.APIToken,
		Timeout: cfg.OutboundTimeout,
	})
	pipeline := services.NewPipelineService(db, &cfg, client)
	trigger := services.NewTriggerService(db, &cfg, client)
	h := handlers.New(pipeline, trigger, client, db, cfg)

	// Webhook ingestion: delivery id required; redeliveries of processed ids
	// are flagged so the rate limiter lets them through.
	hooks := r.Group("/hooks")
	hooks.Use(middleware.RequireDeliveryID(
		middleware.DeliveryIDOptions{},
		func(ctx context.Context, deliveryID string) (bool, error) {
			rec, err := repo.GetReceipt(ctx, db, deliveryID)
			if err != nil || rec == nil {
				return false, nil
			}
			return rec.Status == domain.StatusProcessed, nil
		},
	))
	hooks.POST("/todoist", h.HandleTodoistWebhook)

	// Admin reads over the receipt ledger (compressed; lists can be chunky)
	api := r.Group("/api", gzip.Gzip(gzip.DefaultCompression))
	{
		api.GET("/events", h.ListEvents)
		api.GET("/events/:delivery_id", h.GetEvent)
	}

	// OAuth installation callback
	r.GET("/oauth/callback", h.OAuthCallback)

	// Operator-only policy trigger
	r.POST("/internal/trigger", h.InternalTrigger)
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
