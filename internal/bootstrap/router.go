package bootstrap

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-connectly/connectly/internal/config"
	"github.com/go-connectly/connectly/internal/core"
	"github.com/go-connectly/connectly/internal/middleware"
	"github.com/go-connectly/connectly/internal/store"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// setupRouter configures the Gin router with all routes and middleware
func setupRouter(
	cfg *config.Config,
	db *store.Store,
	stateLedger core.Cache[bool],
	h handlerSet,
	recorder core.Recorder,
) *gin.Engine {
	setupGinMode()
	r := gin.New()

	r.Use(gin.Logger(), gin.Recovery())

	setupSessionMiddleware(r, cfg)

	// Health check endpoint
	r.GET("/health", createHealthCheckHandler(db, stateLedger))

	setupMetricsEndpoint(r, cfg)

	rateLimiter := setupRateLimiting(cfg, recorder)

	// Browser-facing authorization flow
	r.GET("/connect/:provider", rateLimiter, h.Connect.StartConnect)
	r.GET("/callback/:provider", rateLimiter, h.Connect.Callback)

	// JSON API
	api := r.Group("/api")
	{
		api.GET("/status/:provider", h.API.Status)
		api.GET("/connections", h.API.ListConnections)
		api.POST("/disconnect/:provider", h.API.Disconnect)

		admin := api.Group("/admin")
		admin.Use(middleware.RequireAdminToken(cfg.AdminToken))
		{
			admin.POST("/apps/:provider", h.Admin.ConfigureApp)
		}
	}

	logServerStartup(cfg)

	return r
}

// setupGinMode configures the Gin runtime mode; GIN_MODE still wins
func setupGinMode() {
	if os.Getenv(gin.EnvGinMode) == "" {
		gin.SetMode(gin.ReleaseMode)
	}
}

// setupSessionMiddleware configures the cookie session that binds the state
// parameter to the initiating browser.
func setupSessionMiddleware(r *gin.Engine, cfg *config.Config) {
	sessionStore := cookie.NewStore([]byte(cfg.SessionSecret))
	sessionStore.Options(sessions.Options{
		Path:     "/",
		MaxAge:   int(cfg.StateTokenTTL / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions("connectly_session", sessionStore))
}

// setupMetricsEndpoint configures the Prometheus metrics endpoint
func setupMetricsEndpoint(r *gin.Engine, cfg *config.Config) {
	if !cfg.MetricsEnabled {
		log.Printf("Prometheus metrics disabled")
		return
	}
	log.Printf("Prometheus metrics enabled at /metrics")
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// setupRateLimiting configures rate limiting for the public OAuth endpoints
func setupRateLimiting(cfg *config.Config, recorder core.Recorder) gin.HandlerFunc {
	if !cfg.RateLimitEnabled {
		return func(c *gin.Context) { c.Next() }
	}

	log.Printf("Rate limiting enabled (store: %s, %d req/min)", cfg.RateLimitStore, cfg.RateLimitRequests)

	var limiter gin.HandlerFunc
	var err error
	if cfg.RateLimitStore == config.RateLimitStoreRedis {
		limiter, err = middleware.NewRedisRateLimiter(
			cfg.RateLimitRequests,
			cfg.RateLimitRedis,
			"",
			0,
			recorder,
		)
	} else {
		limiter, err = middleware.NewMemoryRateLimiter(cfg.RateLimitRequests, recorder)
	}
	if err != nil {
		log.Fatalf("Failed to create rate limiter: %v", err)
	}
	return limiter
}

// createHealthCheckHandler creates the health check endpoint handler
func createHealthCheckHandler(db *store.Store, stateLedger core.Cache[bool]) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := gin.H{"status": "healthy", "database": "connected", "state_ledger": "connected"}
		code := http.StatusOK

		if err := db.Health(); err != nil {
			log.Printf("Health check failed: database error: %v", err)
			status["status"] = "unhealthy"
			status["database"] = "disconnected"
			code = http.StatusServiceUnavailable
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := stateLedger.Health(ctx); err != nil {
			log.Printf("Health check failed: state ledger error: %v", err)
			status["status"] = "unhealthy"
			status["state_ledger"] = "disconnected"
			code = http.StatusServiceUnavailable
		}

		c.JSON(code, status)
	}
}

// logServerStartup logs server startup information
func logServerStartup(cfg *config.Config) {
	log.Printf("Server starting on %s (base URL: %s)", cfg.ServerAddr, cfg.BaseURL)
}
