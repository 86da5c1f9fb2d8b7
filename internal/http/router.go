// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, idempotency, and rate limiting.
//
// Design goals:
//   - Observability first (OTel + Prometheus)
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
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/jkimaro/pledges-backend/internal/config"
	"github.com/jkimaro/pledges-backend/internal/http/handlers"
	"github.com/jkimaro/pledges-backend/internal/http/middleware"
	"github.com/jkimaro/pledges-backend/internal/invite"
	"github.com/jkimaro/pledges-backend/internal/repo"
	"github.com/jkimaro/pledges-backend/internal/services"
	"github.com/jkimaro/pledges-backend/internal/worker"
)

// Deps carries the externally constructed dependencies the router injects
// into services. main builds these from configuration so tests can substitute
// fakes for the provider clients and queues.
type Deps struct {
	SMSSender      services.SMSSender
	WhatsAppSender services.WhatsAppSender
	Invites        *invite.Generator
	SMSQueue       *worker.Queue
	WhatsAppQueue  *worker.Queue
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine: observability (tracing, metrics), idempotency and rate limiting,
// CORS and security headers, health and metrics endpoints, static invitation
// assets, and the versioned public API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Gzip compression
//  6. Metrics
//  7. Idempotency validator (before rate limiter to allow bypass on replay)
//  8. Rate limiter (per user/IP, bypass on replay)
//  9. CORS and security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction. Guest phone numbers routinely
	// appear in search queries, so the scrubber stays on everywhere.
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-API-Key"},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Compress JSON responses
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Idempotency validation (before rate limiting)
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			MaxLen: 200,
		},
		func(ctx context.Context, userID, recordID, key string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, db, userID, recordID, key, now)
			if err != nil || rec == nil {
				return false, nil
			}
			return true, nil
		},
	))

	// 8) Token-bucket rate limiter per user/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	// 9) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header.
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID", middleware.HeaderIdempotencyKey},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist.
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
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID", middleware.HeaderIdempotencyKey},
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
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Rendered invitation images are served directly from the output dir so
	// the WhatsApp provider can fetch the header image by URL.
	if deps.Invites != nil && deps.Invites.OutputDir != "" {
		r.Static("/static/invitations", deps.Invites.OutputDir)
	}

	// Dependency injection: services ← repo/db/clients/queues
	pledgeSvc := services.NewPledgeService(db)
	uploadSvc := services.NewUploadService(db, pledgeSvc)
	smsSvc := services.NewSMSService(db, deps.SMSSender, cfg.SMS.DefaultTemplate, deps.SMSQueue)
	waSvc := services.NewWhatsAppService(db, deps.WhatsAppSender, deps.Invites, deps.WhatsAppQueue)
	h := handlers.New(pledgeSvc, uploadSvc, smsSvc, waSvc)

	// Public API. JSON endpoints get a tight body cap; the spreadsheet upload
	// route is registered on a sibling group with the configured upload cap.
	apiBase := cfg.APIBasePath // e.g. "/api/v1"
	api := groupWithPrefix(r, apiBase)
	api.Use(limitBody(1 << 20))
	{
		// Pledge records
		api.POST("/pledges", h.CreatePledge)
		api.GET("/pledges", h.ListPledges)
		api.GET("/pledges/:id", h.GetPledge)
		api.PUT("/pledges/:id", h.UpdatePledge)
		api.DELETE("/pledges/:id", h.DeletePledge)
		api.GET("/pledges/:id/messages", h.ListRecordMessages)

		// SMS
		api.POST("/pledges/:id/sms", h.SendSMS)
		api.POST("/pledges/:id/sms/forward", h.ForwardSMS)
		api.POST("/sms/bulk", h.SendSMSBulk)
		api.POST("/sms/send-all", h.SendAllSMS)

		// WhatsApp
		api.POST("/pledges/:id/whatsapp", h.SendWhatsApp)
		api.POST("/whatsapp/bulk", h.SendWhatsAppBulk)
		api.POST("/whatsapp/send-all", h.SendAllWhatsApp)

		// Upload history
		api.GET("/uploads", h.ListUploads)
	}

	uploads := groupWithPrefix(r, apiBase)
	uploads.Use(limitBody(cfg.MaxUploadBytes))
	uploads.POST("/uploads", h.UploadPledges)
}

// limitBody returns a Gin middleware that caps the request body size using
// http.MaxBytesReader. Requests exceeding the cap cause downstream body reads
// to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
