// Package api exposes the operational HTTP surface: health, worker
// statistics, and Prometheus metrics. The publish workflow itself has no
// HTTP API; it is driven entirely by objects appearing in storage.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/URBREATH/geoserver-publisher/internal/config"
	"github.com/URBREATH/geoserver-publisher/internal/storage"
	"github.com/URBREATH/geoserver-publisher/internal/telemetry"
)

const (
	healthStatusHealthy  = "healthy"
	healthStatusDegraded = "degraded"
	healthCheckTimeout   = 2 * time.Second
	serviceVersion       = "1.0.0"
)

// StatsProvider exposes worker statistics for the stats endpoint.
type StatsProvider interface {
	GetStats() map[string]any
}

// Router holds the API dependencies.
type Router struct {
	store storage.ObjectStore
	stats StatsProvider
	cfg   *config.Config
}

// NewRouter creates a new API router.
func NewRouter(store storage.ObjectStore, stats StatsProvider, cfg *config.Config) *Router {
	return &Router{
		store: store,
		stats: stats,
		cfg:   cfg,
	}
}

// SetupRoutes builds the gin engine with all routes registered.
func (r *Router) SetupRoutes() *gin.Engine {
	if !r.cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	// Health check (public, no auth)
	router.GET("/health", r.healthCheck)
	router.GET("/metrics", gin.WrapH(telemetry.Handler()))

	v1 := router.Group("/api/v1")
	v1.GET("/stats", r.getStats)

	return router
}

// healthCheck reports service health and object storage connectivity.
func (r *Router) healthCheck(c *gin.Context) {
	health := gin.H{
		"status":  healthStatusHealthy,
		"service": "geoserver-publisher",
		"version": serviceVersion,
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	storageConnected := true
	if err := r.store.Ping(ctx); err != nil {
		storageConnected = false
		health["status"] = healthStatusDegraded
	}
	health["storage"] = gin.H{
		"connected": storageConnected,
		"bucket":    r.cfg.Storage.Bucket,
	}

	c.JSON(http.StatusOK, health)
}

// getStats returns worker cycle statistics.
// GET /api/v1/stats
func (r *Router) getStats(c *gin.Context) {
	c.JSON(http.StatusOK, r.stats.GetStats())
}
