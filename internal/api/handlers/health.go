package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

var startTime = time.Now()

const (
	version = "1.0.0"

	healthCheckTimeout = 2 * time.Second
)

// HealthChecks are the dependencies checked by the health endpoint, by name
type HealthChecks map[string]func(ctx context.Context) error

// HealthCheck returns server health status. A failing dependency turns the
// response into a 503.
func HealthCheck(checks HealthChecks) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
		defer cancel()

		status, code := "ok", http.StatusOK
		deps := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				log.Printf("[API] Health check %s failed: %v", name, err)
				deps[name] = "down"
				status, code = "degraded", http.StatusServiceUnavailable
				continue
			}
			deps[name] = "up"
		}

		c.JSON(code, gin.H{
			"status":       status,
			"service":      "rallylog-ratings",
			"version":      version,
			"uptime":       time.Since(startTime).String(),
			"dependencies": deps,
		})
	}
}
