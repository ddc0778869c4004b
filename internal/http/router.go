// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, replay detection, and rate limiting.
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

	"github.com/tbourn/go-tower-backend/internal/config"
	"github.com/tbourn/go-tower-backend/internal/domain"
	"github.com/tbourn/go-tower-backend/internal/http/handlers"
	"github.com/tbourn/go-tower-backend/internal/http/middleware"
	"github.com/tbourn/go-tower-backend/internal/repo"
	"github.com/tbourn/go-tower-backend/internal/services"
)

// roomStoreShim adapts the repository free functions to the
// services.RoomStore interface expected by the registry and room service.
// This keeps services decoupled from the concrete repo package while reusing
// existing functions.
type roomStoreShim struct{}

// SaveRoom proxies repo.SaveRoom.
func (roomStoreShim) SaveRoom(ctx context.Context, db *gorm.DB, state *domain.RoomState) error {
	return repo.SaveRoom(ctx, db, state)
}

// LoadRoom proxies repo.LoadRoom.
func (roomStoreShim) LoadRoom(ctx context.Context, db *gorm.DB, roomID int64) (*domain.RoomState, error) {
	return repo.LoadRoom(ctx, db, roomID)
}

// DeleteRoom proxies repo.DeleteRoom.
func (roomStoreShim) DeleteRoom(ctx context.Context, db *gorm.DB, roomID int64) error {
	return repo.DeleteRoom(ctx, db, roomID)
}

// TrackRoom proxies repo.TrackRoom.
func (roomStoreShim) TrackRoom(ctx context.Context, db *gorm.DB, roomID int64) error {
	return repo.TrackRoom(ctx, db, roomID)
}

// ListTrackedRooms proxies repo.ListTrackedRooms.
func (roomStoreShim) ListTrackedRooms(ctx context.Context, db *gorm.DB) ([]int64, error) {
	return repo.ListTrackedRooms(ctx, db)
}

// ClearTrackedRooms proxies repo.ClearTrackedRooms.
func (roomStoreShim) ClearTrackedRooms(ctx context.Context, db *gorm.DB) error {
	return repo.ClearTrackedRooms(ctx, db)
}

// NewRoomStore returns the production RoomStore backed by the repo package.
func NewRoomStore() services.RoomStore { return roomStoreShim{} }

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), replay detection
// and rate limiting, CORS and security headers, health and metrics endpoints,
// and then mounts the versioned public API under /api/v*.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with credential scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Gzip compression for listing payloads
//  7. Metrics
//  8. Replay detector (before rate limiter to allow bypass on redelivery)
//  9. Rate limiter (per room/IP, bypass on redelivery)
//  10. CORS and Security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, h *handlers.Handlers, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{
			"X-Bot-Token", // platform credential forwarded by some webhook proxies
		},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Compress responses; webhook acknowledgements are tiny but room
	// listings grow with the fleet.
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	// 7) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 8) Replay detection (before rate limiting)
	r.Use(middleware.ReplayDetector(
		func(ctx context.Context, roomID, messageID, updateID int64, kind string, now time.Time) (bool, error) {
			return repo.SeenUpdate(ctx, db, roomID, messageID, updateID, kind, now)
		},
	))

	// 9) Token-bucket rate limiter per room/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByRoomOrIP())
	r.Use(rl.Handler())

	// 10) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
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
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
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

	// API docs (opt-in; useful in dev, off in production by default)
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Public API
	apiBase := cfg.APIBasePath // e.g. "/api/v1"
	api := groupWithPrefix(r, apiBase)
	{
		// Events
		api.POST("/events", h.PostEvent)

		// Rooms
		api.GET("/rooms", h.ListRooms)
		api.POST("/rooms/:id/enable", h.EnableRoom)
		api.POST("/rooms/:id/disable", h.DisableRoom)
	}
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

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
