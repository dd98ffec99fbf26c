package middleware

import (
	"crypto/subtle"
	"log"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/researchai/research-bridge/internal/config"
)

// secureCompare performs a constant-time comparison of two strings
// to prevent timing attacks
func secureCompare(a, b string) bool {
	// Both strings must be non-empty and equal length for constant-time comparison
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// getAccessKey extracts the access key from the request headers.
func getAccessKey(c *gin.Context) string {
	if key := c.GetHeader("x-api-key"); key != "" {
		return key
	}
	if auth := c.GetHeader("Authorization"); auth != "" {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// AccessKeyMiddleware guards the API surface with the shared access key. The
// health endpoint stays open for probes and the billing webhook is exempt
// because it authenticates with its own HMAC signature.
func AccessKeyMiddleware(envCfg *config.EnvConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path

		if path == envCfg.HealthCheckPath || path == "/api/billing/webhook" {
			c.Next()
			return
		}

		if secureCompare(getAccessKey(c), envCfg.AccessKey) {
			c.Next()
			return
		}

		log.Printf("🔒 [Auth] Access key rejected - IP: %s | Path: %s", c.ClientIP(), path)
		c.JSON(401, gin.H{
			"error": "Invalid or missing access key",
		})
		c.Abort()
	}
}
