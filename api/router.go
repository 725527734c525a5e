// Package api exposes crawl sessions over HTTP.
package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/sitecheck/api/handler"
	"github.com/use-agent/sitecheck/api/middleware"
	"github.com/use-agent/sitecheck/config"
	"github.com/use-agent/sitecheck/metrics"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health and metrics stay outside auth so probes and scrapers always work.
func NewRouter(cfg *config.Config, sessions *handler.Sessions, limiter *middleware.Limiter, m *metrics.Metrics, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	if m != nil {
		r.GET("/metrics", gin.WrapH(m.Handler()))
	}

	v1 := r.Group("/api/v1")
	v1.GET("/health", handler.Health(sessions, startTime))

	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(limiter.Handler())

	protected.POST("/sessions", sessions.Create())
	protected.GET("/sessions/:id", sessions.Get())
	protected.GET("/sessions/:id/report", sessions.Report())
	protected.DELETE("/sessions/:id", sessions.Delete())

	return r
}
