package handlers

import (
	"log"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/researchai/research-bridge/internal/usagelog"
)

// UsageHandler serves GET /api/usage: the provider-side summary plus
// day-bucketed analytics from the local mirror.
func UsageHandler(usage UsageReader, usageLog *usagelog.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Query("userId")
		if userID == "" {
			c.JSON(400, gin.H{
				"error": "userId is required",
				"code":  "MISSING_USER_ID",
			})
			return
		}

		days := 30
		if v := c.Query("days"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed <= 365 {
				days = parsed
			}
		}

		summary := usage.GetUserUsage(c.Request.Context(), userID)

		buckets, err := usageLog.Analytics(userID, days)
		if err != nil {
			log.Printf("⚠️ [Usage] Analytics query failed: %v", err)
			buckets = []usagelog.DayBucket{}
		}
		if buckets == nil {
			buckets = []usagelog.DayBucket{}
		}

		c.JSON(200, gin.H{
			"summary":   summary,
			"analytics": buckets,
			"days":      days,
		})
	}
}
