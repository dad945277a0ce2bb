// Package security holds the HTTP hardening middleware: headers, CORS,
// content-type and body checks, search-query validation and request
// timeouts.
package security

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/ZanzyTHEbar/research-token/internal/errors"
)

// SecurityConfig holds security configuration
type SecurityConfig struct {
	MaxQueryLength int           `json:"max_query_length"`
	MaxBodyBytes   int64         `json:"max_body_bytes"`
	AllowedOrigins []string      `json:"allowed_origins"`
	RequestTimeout time.Duration `json:"request_timeout"`
	EnableHSTS     bool          `json:"enable_hsts"`
}

// DefaultSecurityConfig returns secure defaults
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		MaxQueryLength: 200,
		MaxBodyBytes:   1 << 20,
		AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173", "https://js.stripe.com", "https://checkout.stripe.com"},
		RequestTimeout: 30 * time.Second,
	}
}

// SecurityMiddleware provides the security middleware
type SecurityMiddleware struct {
	config SecurityConfig
}

// NewSecurityMiddleware creates a new security middleware instance
func NewSecurityMiddleware(config SecurityConfig) *SecurityMiddleware {
	return &SecurityMiddleware{config: config}
}

var (
	suspiciousPatterns = []string{
		`<script`, `</script>`, `javascript:`,
		`union select`, `drop table`, `alter table`, `delete from`,
		`;--`, `/*`, `*/`,
	}
	eventHandlerPattern = regexp.MustCompile(`(?i)\bon[a-z]+\s*=`)
	scriptPattern       = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	htmlTagPattern      = regexp.MustCompile(`<[^>]+>`)
	whitespacePattern   = regexp.MustCompile(`\s+`)
)

// ValidateQuery checks a catalog search query
func (sm *SecurityMiddleware) ValidateQuery(query string) error {
	if len(query) > sm.config.MaxQueryLength {
		return fmt.Errorf("query exceeds maximum length of %d characters", sm.config.MaxQueryLength)
	}

	if strings.Contains(query, "\x00") {
		return fmt.Errorf("query contains invalid characters")
	}

	if !utf8.ValidString(query) {
		return fmt.Errorf("query contains invalid UTF-8 encoding")
	}

	lower := strings.ToLower(query)
	for _, pattern := range suspiciousPatterns {
		if strings.Contains(lower, pattern) {
			return fmt.Errorf("query contains suspicious patterns")
		}
	}
	if eventHandlerPattern.MatchString(query) {
		return fmt.Errorf("query contains suspicious patterns")
	}

	return nil
}

// SanitizeInput strips markup and collapses whitespace
func (sm *SecurityMiddleware) SanitizeInput(input string) string {
	input = strings.TrimSpace(input)
	input = scriptPattern.ReplaceAllString(input, "")
	input = htmlTagPattern.ReplaceAllString(input, "")
	input = whitespacePattern.ReplaceAllString(input, " ")
	return input
}

// ValidateSearchQuery rejects search requests whose q parameter fails
// ValidateQuery
func (sm *SecurityMiddleware) ValidateSearchQuery(c *gin.Context) {
	if err := sm.ValidateQuery(c.Query("q")); err != nil {
		appErr := errors.NewValidationError("Invalid search query", err.Error())
		c.AbortWithStatusJSON(appErr.HTTPStatus, appErr)
		return
	}
	c.Next()
}

// SecurityHeaders adds security headers to responses
func (sm *SecurityMiddleware) SecurityHeaders(c *gin.Context) {
	c.Header("X-Content-Type-Options", "nosniff")

	// SAMEORIGIN so the swagger UI and Stripe checkout still frame
	c.Header("X-Frame-Options", "SAMEORIGIN")
	c.Header("X-XSS-Protection", "1; mode=block")

	if sm.config.EnableHSTS || c.Request.TLS != nil {
		c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	}

	c.Header("Content-Security-Policy", "default-src 'self'; script-src 'self' 'unsafe-inline' https://js.stripe.com https://checkout.stripe.com; style-src 'self' 'unsafe-inline'; img-src 'self' data: https:; connect-src 'self' https://api.stripe.com; frame-src https://checkout.stripe.com https://js.stripe.com")
	c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
	c.Header("Permissions-Policy", "geolocation=(), camera=(), microphone=()")

	c.Next()
}

// ValidateContentType rejects bodies that are not JSON or form encoded
func (sm *SecurityMiddleware) ValidateContentType(c *gin.Context) {
	contentType := strings.ToLower(c.GetHeader("Content-Type"))
	if contentType == "" {
		c.Next()
		return
	}

	for _, allowed := range []string{"application/json", "application/x-www-form-urlencoded", "multipart/form-data"} {
		if strings.Contains(contentType, allowed) {
			c.Next()
			return
		}
	}

	c.AbortWithStatusJSON(http.StatusUnsupportedMediaType, gin.H{
		"error": "unsupported content type",
	})
}

// LimitBody caps the request body size
func (sm *SecurityMiddleware) LimitBody(c *gin.Context) {
	if c.Request.Body != nil && sm.config.MaxBodyBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, sm.config.MaxBodyBytes)
	}
	c.Next()
}

// RequestTimeout bounds the request context
func (sm *SecurityMiddleware) RequestTimeout(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), sm.config.RequestTimeout)
	defer cancel()

	c.Request = c.Request.WithContext(ctx)
	c.Header("X-Timeout", strconv.Itoa(int(sm.config.RequestTimeout.Seconds())))

	c.Next()
}

// CORS returns the CORS middleware for the configured origins
func (sm *SecurityMiddleware) CORS() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:     sm.config.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Content-Length", "Accept", "Authorization", "X-Requested-With", "Stripe-Signature"},
		ExposeHeaders:    []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After", "X-Cache"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}
