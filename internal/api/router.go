// Package api exposes the scheduler's operational HTTP surface: health,
// schedule stats, and Prometheus metrics.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/content-scheduler/internal/config"
	"github.com/jonesrussell/content-scheduler/internal/database"
	"github.com/jonesrussell/content-scheduler/internal/logger"
)

const (
	healthCheckTimeout   = 2 * time.Second
	healthStatusHealthy  = "healthy"
	healthStatusDegraded = "degraded"
)

// Router holds the API dependencies.
type Router struct {
	schedules   *database.ScheduleRepository
	redisClient redis.UniversalClient
	registry    *prometheus.Registry
	cfg         *config.Config
	logger      logger.Logger
	ping        func(ctx context.Context) error
}

// NewRouter creates a new API router. The ping func checks database
// connectivity for the health endpoint.
func NewRouter(
	schedules *database.ScheduleRepository,
	redisClient redis.UniversalClient,
	registry *prometheus.Registry,
	cfg *config.Config,
	ping func(ctx context.Context) error,
	log logger.Logger,
) *Router {
	return &Router{
		schedules:   schedules,
		redisClient: redisClient,
		registry:    registry,
		cfg:         cfg,
		logger:      log,
		ping:        ping,
	}
}

// NewServer builds the HTTP server with all routes registered.
func (r *Router) NewServer() *http.Server {
	if !r.cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/health", r.getHealth)
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})))
	engine.GET("/api/v1/stats", r.getStats)

	return &http.Server{
		Addr:         r.cfg.Server.Address,
		Handler:      engine,
		ReadTimeout:  r.cfg.Server.ReadTimeout,
		WriteTimeout: r.cfg.Server.WriteTimeout,
	}
}

// getHealth reports database and redis connectivity.
func (r *Router) getHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	status := healthStatusHealthy
	checks := gin.H{"database": "ok", "redis": "ok"}

	if err := r.ping(ctx); err != nil {
		status = healthStatusDegraded
		checks["database"] = err.Error()
	}
	if err := r.redisClient.Ping(ctx).Err(); err != nil {
		status = healthStatusDegraded
		checks["redis"] = err.Error()
	}

	code := http.StatusOK
	if status != healthStatusHealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": status, "checks": checks})
}

// getStats returns schedule counts.
// GET /api/v1/stats
func (r *Router) getStats(c *gin.Context) {
	stats, err := r.schedules.GetStats(c.Request.Context())
	if err != nil {
		r.logger.Error("failed to get schedule stats", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get stats"})
		return
	}

	c.JSON(http.StatusOK, stats)
}
