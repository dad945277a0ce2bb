package monitoring

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// maxFundBodyBytes flags oversized funding requests
const maxFundBodyBytes = 10_000

// MonitoringMiddleware creates Gin middleware for request monitoring
func MonitoringMiddleware(metrics *Metrics, logger *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		metrics.IncrementRequest()

		ip := c.ClientIP()
		userAgent := c.GetHeader("User-Agent")
		method := c.Request.Method
		path := c.Request.URL.Path

		prom := metrics.Prometheus()
		if prom != nil {
			prom.httpInFlight.Inc()
			defer prom.httpInFlight.Dec()
		}

		c.Next()

		duration := time.Since(start)
		statusCode := c.Writer.Status()

		metrics.RecordResponseTime(duration)
		metrics.RecordRequestByStatus(statusCode)

		if statusCode >= 400 {
			metrics.IncrementError()
		}

		if prom != nil {
			route := c.FullPath()
			if route == "" {
				route = "unmatched"
			}
			prom.httpRequests.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
			prom.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
		}

		logger.RequestLogger(method, path, ip, userAgent, statusCode, duration)

		for _, err := range c.Errors {
			logger.APIErrorLogger(err.Err, method, path, ip, statusCode)
		}

		if statusCode >= 500 {
			logger.SystemLogger("server_error", fmt.Sprintf("Status %d for %s %s", statusCode, method, path))
		}
	}
}

// SecurityMonitoringMiddleware logs suspicious requests. It never blocks.
func SecurityMonitoringMiddleware(logger *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userAgent := c.GetHeader("User-Agent")
		details := make(map[string]interface{})

		if containsSQLInjectionPatterns(c.Request.URL.RawQuery) {
			details["type"] = "potential_sql_injection"
			details["query"] = c.Request.URL.RawQuery
		}

		if c.Request.Method == http.MethodPost && c.Request.URL.Path == "/api/fund" &&
			c.Request.ContentLength > maxFundBodyBytes {
			details["type"] = "large_request_body"
			details["size_bytes"] = c.Request.ContentLength
		}

		if containsSuspiciousUserAgent(userAgent) {
			details["type"] = "suspicious_user_agent"
			details["user_agent"] = userAgent
		}

		if len(details) > 0 {
			logger.SecurityLogger("suspicious_activity_detected", c.ClientIP(), userAgent, details)
		}

		c.Next()
	}
}

var sqlInjectionPatterns = []string{
	"union select",
	"union all",
	"select * from",
	"drop table",
	"delete from",
	"';--",
	"/*",
	"*/",
	" xp_",
	" sp_",
}

func containsSQLInjectionPatterns(query string) bool {
	return containsAny(query, sqlInjectionPatterns)
}

var suspiciousAgents = []string{
	"sqlmap",
	"nmap",
	"masscan",
	"zmap",
	"dirbuster",
	"gobuster",
	"nikto",
	"acunetix",
	"nessus",
}

func containsSuspiciousUserAgent(userAgent string) bool {
	return containsAny(userAgent, suspiciousAgents)
}

func containsAny(s string, lowerPatterns []string) bool {
	if s == "" {
		return false
	}
	s = strings.ToLower(s)
	for _, p := range lowerPatterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
