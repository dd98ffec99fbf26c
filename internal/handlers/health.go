// Package handlers wires the HTTP surface: chat streaming, source search,
// billing, and usage reporting.
package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/researchai/research-bridge/internal/config"
)

var startTime = time.Now()

// HealthCheck returns the unauthenticated liveness probe. Minimal response,
// no system details.
func HealthCheck() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "healthy",
		})
	}
}

// HealthCheckDetailed returns service status for authenticated callers.
func HealthCheckDetailed(envCfg *config.EnvConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":    "healthy",
			"timestamp": time.Now().Format(time.RFC3339),
			"uptime":    time.Since(startTime).Seconds(),
			"mode":      envCfg.Env,
		})
	}
}
