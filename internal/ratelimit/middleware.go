package ratelimit

import (
	"log/slog"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ZanzyTHEbar/research-token/internal/errors"
)

func setHeaders(c *gin.Context, prefix string, result *Result) {
	c.Header(prefix+"-Limit", strconv.Itoa(result.Limit))
	c.Header(prefix+"-Remaining", strconv.Itoa(result.Remaining))
	c.Header(prefix+"-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

func reject(c *gin.Context, result *Result) {
	seconds := int(result.RetryAfter.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	retryAfter := strconv.Itoa(seconds)
	c.Header("Retry-After", retryAfter)

	appErr := errors.NewRateLimitError(retryAfter)
	c.AbortWithStatusJSON(appErr.HTTPStatus, appErr)
}

// IPRateLimitMiddleware creates middleware for IP-based rate limiting
func (rl *RateLimiter) IPRateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()

		result, err := rl.AllowIP(c.Request.Context(), ip)
		if err != nil {
			// fail open
			slog.Error("Rate limit check failed", "ip", ip, "error", err)
			c.Next()
			return
		}

		setHeaders(c, "X-RateLimit", result)

		if !result.Allowed {
			if rl.metrics != nil {
				rl.metrics.IncrementRateLimitIPBlock()
			}
			reject(c, result)
			return
		}

		c.Next()
	}
}

// EndpointRateLimitMiddleware limits one endpoint to limit requests per
// minute per IP
func (rl *RateLimiter) EndpointRateLimitMiddleware(endpoint string, limit int) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()

		result, err := rl.AllowEndpoint(c.Request.Context(), endpoint, ip, limit)
		if err != nil {
			slog.Error("Endpoint rate limit check failed", "endpoint", endpoint, "ip", ip, "error", err)
			c.Next()
			return
		}

		setHeaders(c, "X-RateLimit-Endpoint", result)

		if !result.Allowed {
			if rl.metrics != nil {
				rl.metrics.IncrementRateLimitEndpoint(endpoint)
			}
			reject(c, result)
			return
		}

		c.Next()
	}
}
