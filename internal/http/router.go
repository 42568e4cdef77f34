// Package httpapi wires the HTTP transport (Gin) to the intake pipeline,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, and edge rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - One intake handler; each POST route differs only in its backend set
package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-contact-intake/docs"
	"github.com/tbourn/go-contact-intake/internal/analytics"
	"github.com/tbourn/go-contact-intake/internal/config"
	"github.com/tbourn/go-contact-intake/internal/delivery"
	"github.com/tbourn/go-contact-intake/internal/http/handlers"
	"github.com/tbourn/go-contact-intake/internal/http/middleware"
	"github.com/tbourn/go-contact-intake/internal/limiter"
	"github.com/tbourn/go-contact-intake/internal/services"
)

// Deps are the runtime dependencies of the router. Every field is optional.
type Deps struct {
	DB       *gorm.DB              // nil: the "db" store reports not configured
	Redis    redis.UniversalClient // nil: the "kv" store reports not configured
	Limiter  limiter.Limiter       // nil: built from cfg.RateLimit
	Events   handlers.EventForwarder
	Observer services.Observer // nil: a NotificationLog on the global logger
	Registry delivery.Registry // nil: delivery.NewRegistry(cfg, DB, Redis)
}

// route is one intake endpoint and the backends it delivers to. Store, when
// set, also serves GET on the same path.
type route struct {
	path     string
	backends []string
	store    string
}

// variantRoutes are the single-purpose endpoints kept alongside the
// configurable /submit-contact.
var variantRoutes = []route{
	{path: "/contact", backends: []string{config.BackendSMTP}},
	{path: "/contact-kv", backends: []string{config.BackendKV}, store: config.BackendKV},
	{path: "/contact-db", backends: []string{config.BackendDB}, store: config.BackendDB},
	{path: "/contact-resend", backends: []string{config.BackendResend}},
	{path: "/contact-unified", backends: []string{config.BackendKV, config.BackendResend}, store: config.BackendKV},
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Metrics
//  6. Edge rate limiter (token bucket per client, /health and /metrics exempt)
//  7. CORS and Security headers
//
// The hourly per-client submission quota is not middleware: it belongs to the
// intake pipeline so that invalid payloads never consume it.
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) error {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics("/metrics"))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 6) Token-bucket limiter per client
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByClient()).
		Exempt("/health", "/metrics")
	r.Use(rl.Handler())

	// 7) CORS posture (safe defaults: allow all if none configured)
	allowHeaders := []string{"Origin", "Content-Type", "Accept", middleware.HeaderAdminToken}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeBadRequest, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: pipelines ← registry ← db/redis
	reg := deps.Registry
	if reg == nil {
		var kv redis.Cmdable
		if deps.Redis != nil {
			kv = deps.Redis
		}
		reg = delivery.NewRegistry(cfg, deps.DB, kv)
	}
	lim := deps.Limiter
	if lim == nil {
		var sc redis.Scripter
		if deps.Redis != nil {
			sc = deps.Redis
		}
		lim = limiter.FromConfig(cfg.RateLimit, sc)
	}
	obs := deps.Observer
	if obs == nil {
		obs = delivery.NewNotificationLog(nil)
	}
	events := deps.Events
	if events == nil {
		events = analytics.NewRelay(cfg.Analytics, nil)
	}

	// One limiter for every route: a client's hourly quota is shared.
	pipeline := func(names []string) (*services.IntakeService, error) {
		backends, err := reg.Select(names...)
		if err != nil {
			return nil, err
		}
		return &services.IntakeService{Limiter: lim, Backends: backends, Observer: obs}, nil
	}

	h := handlers.New(handlers.Options{
		SchedulingURL: cfg.SchedulingURL,
		MaxBodyBytes:  cfg.MaxBodyBytes,
		Events:        events,
	})

	api := groupWithPrefix(r, cfg.APIBasePath)

	// Retrieval: admin guard, never cached, gzip for large listings
	guard := middleware.AdminToken(cfg.AdminToken)
	noStore := middleware.NoStore()
	compress := gzip.Gzip(gzip.DefaultCompression)
	list := func(path, store string) error {
		s, err := reg.Store(store)
		if err != nil {
			return fmt.Errorf("route %s: %w", path, err)
		}
		api.GET(path, guard, noStore, compress, h.ListSubmissions(s))
		return nil
	}

	primary, err := pipeline(cfg.ContactBackends)
	if err != nil {
		return fmt.Errorf("route /submit-contact: %w", err)
	}
	api.POST("/submit-contact", h.Submit(primary))
	if err := list("/submissions", cfg.RecordStore); err != nil {
		return err
	}

	for _, rt := range variantRoutes {
		svc, err := pipeline(rt.backends)
		if err != nil {
			return fmt.Errorf("route %s: %w", rt.path, err)
		}
		api.POST(rt.path, h.Submit(svc))
		if rt.store != "" {
			if err := list(rt.path, rt.store); err != nil {
				return err
			}
		}
	}

	api.POST("/analytics", h.TrackEvent)
	return nil
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
