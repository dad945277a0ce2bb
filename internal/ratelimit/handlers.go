package ratelimit

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HandleRateLimitStatus reports the limits that apply to the requesting IP
func (rl *RateLimiter) HandleRateLimitStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"ip": c.ClientIP(),
			"limits": gin.H{
				"api_per_minute":  rl.config.IPLimit,
				"fund_per_minute": rl.config.FundLimit,
			},
			"redis_enabled": rl.redisClient.IsEnabled(),
			"timestamp":     time.Now().Format(time.RFC3339),
		})
	}
}
