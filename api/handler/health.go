package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/sitecheck/models"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// Health returns a handler for GET /api/v1/health.
//
// Status degrades once every crawl slot is busy.
func Health(sessions *Sessions, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		active := sessions.Active()
		status := "healthy"
		if active >= sessions.MaxSessions() {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:         status,
			Uptime:         time.Since(startTime).Round(time.Second).String(),
			ActiveSessions: active,
			MaxSessions:    sessions.MaxSessions(),
			Version:        Version,
		})
	}
}
