// Package api assembles the storefront HTTP surface.
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/StorefrontProvenance/internal/api/handler"
)

// Registrar mounts a group of routes under /api/v1.
type Registrar interface {
	Register(rg *gin.RouterGroup)
}

// WriteLimited is implemented by registrars whose write routes take a
// per-actor rate limit.
type WriteLimited interface {
	SetWriteLimit(mw gin.HandlerFunc)
}

// Config holds router configuration.
type Config struct {
	CORSOrigins  []string
	RateLimitRPS int // 0 disables rate limiting
}

// NewRouter returns a gin engine with the standard middleware stack, the
// public health and metrics endpoints, and each registrar mounted under /api/v1.
// Background work started for the router, such as limiter eviction, ends when
// ctx is done.
func NewRouter(ctx context.Context, cfg Config, logger *zap.Logger, public map[string]gin.HandlerFunc, registrars ...Registrar) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if len(cfg.CORSOrigins) > 0 {
		router.Use(handler.CORS(cfg.CORSOrigins))
	}
	router.Use(handler.SecurityHeaders())
	router.Use(handler.BodyLimit())
	var writes *handler.RateLimiter
	if cfg.RateLimitRPS > 0 {
		router.Use(handler.NewRateLimiter(ctx, cfg.RateLimitRPS, cfg.RateLimitRPS*2).Middleware())
		writes = handler.NewRateLimiter(ctx, cfg.RateLimitRPS, cfg.RateLimitRPS*2)
	}
	router.Use(handler.PrometheusMiddleware())
	router.Use(handler.RequestLogger(logger))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", handler.MetricsHandler())
	for path, h := range public {
		router.GET(path, h)
	}

	v1 := router.Group("/api/v1")
	for _, r := range registrars {
		if wl, ok := r.(WriteLimited); ok && writes != nil {
			wl.SetWriteLimit(writes.Middleware())
		}
		r.Register(v1)
	}
	return router
}
