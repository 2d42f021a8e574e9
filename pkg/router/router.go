package router

import (
	"context"
	"time"

	"whatsmoney/backend/messaging/api"
	"whatsmoney/backend/pkg/config"
	"whatsmoney/backend/pkg/di"
	"whatsmoney/backend/pkg/errors"
	"whatsmoney/backend/pkg/health"
	"whatsmoney/backend/pkg/logger"
	"whatsmoney/backend/pkg/middleware"
	"whatsmoney/backend/shared/observability"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Router is the main router for the application
type Router struct {
	Engine    *gin.Engine
	Container *di.Container
	Logger    *logger.Logger
	Config    *config.Config
	Health    *health.Checker
}

// New creates a new router with the given container
func New(container *di.Container) *Router {
	logger.SetGlobal(container.Logger)

	cfg := config.Get()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	// Logger first so every request gets a scoped logger
	engine.Use(logger.Middleware(container.Logger))
	engine.Use(errors.ErrorHandler())
	engine.Use(errors.RecoveryWithLogger())

	rateLimiter := middleware.NewRateLimiter(container.Logger, middleware.RateLimiterOptions{
		Limit:          rate.Limit(cfg.Security.RateLimit),
		Burst:          cfg.Security.RateLimitBurst,
		ExpiryDuration: middleware.DefaultRateLimiterOptions().ExpiryDuration,
		KeyFunc:        middleware.DefaultRateLimiterOptions().KeyFunc,
	})
	engine.Use(rateLimiter.Middleware())

	checker := health.NewChecker(container.Logger)
	checker.RegisterCheck("database", func() (health.Status, string, error) {
		if err := config.TestConnection(container.DB); err != nil {
			return health.StatusDown, "database unreachable", err
		}
		return health.StatusUp, "database reachable", nil
	})
	if container.Redis != nil {
		checker.RegisterCheck("redis", func() (health.Status, string, error) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := container.Redis.Ping(ctx); err != nil {
				// Directory lookups degrade to the database, so redis
				// being down does not take the service down
				return health.StatusDegraded, "redis unreachable", err
			}
			return health.StatusUp, "redis reachable", nil
		})
	}

	return &Router{
		Engine:    engine,
		Container: container,
		Logger:    container.Logger,
		Config:    cfg,
		Health:    checker,
	}
}

// SetupRoutes registers all application routes
func (r *Router) SetupRoutes() {
	r.Engine.Use(corsMiddleware())

	handler := api.NewChatHandler(
		r.Container.MessageService,
		r.Container.ReadTracker,
		r.Container.Channel,
	)

	v1 := r.Engine.Group("/api/v1")

	r.setupHealthRoutes()
	r.setupMetricsRoute()

	api.RegisterChatRoutes(v1, handler, r.Container.JWTService)
}

// setupMetricsRoute exposes Prometheus metrics on the main listener
func (r *Router) setupMetricsRoute() {
	metricsHandler, _ := observability.SetupMetrics(r.Logger)
	r.Engine.GET("/metrics", gin.WrapH(metricsHandler))
}

// corsMiddleware allows browser clients, including SSE and WebSocket
// upgrades, to reach the API
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}
		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization, Cache-Control, Upgrade, Connection")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Upgrade, Connection")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
