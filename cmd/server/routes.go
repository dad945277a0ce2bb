package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/ZanzyTHEbar/research-token/docs"
	"github.com/ZanzyTHEbar/research-token/internal/errors"
	"github.com/ZanzyTHEbar/research-token/internal/monitoring"
)

func newRouter(a *app) *gin.Engine {
	r := gin.New()

	// Monitoring first so every request is counted
	r.Use(monitoring.MonitoringMiddleware(a.metrics, a.logger))
	r.Use(monitoring.SecurityMonitoringMiddleware(a.logger))
	r.Use(a.compress.Handler())

	r.Use(errors.ErrorHandler())
	r.Use(errors.RecoveryHandler())

	r.Use(a.security.CORS())
	r.Use(a.security.SecurityHeaders)
	r.Use(a.security.RequestTimeout)
	r.Use(a.security.ValidateContentType)
	r.Use(a.security.LimitBody)

	r.Use(a.cache.Middleware(a.metrics, a.logger, searchPath, leaderboardPath))

	r.GET("/health", a.handleHealth)
	r.GET("/metrics", a.handleMetrics)
	r.GET("/metrics/prometheus", gin.WrapH(a.metrics.Prometheus().Handler()))
	r.GET("/cache/stats", a.handleCacheStats)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Stripe calls the webhook from its own addresses, so it sits outside the
	// per-IP limit.
	r.POST("/api/payments/webhook", a.handleWebhook)

	api := r.Group("/api", a.limiter.IPRateLimitMiddleware())
	{
		api.GET("/publications/search", a.security.ValidateSearchQuery, a.handleSearch)
		api.GET("/publications/:id", a.handlePublication)
		api.GET("/publications/:id/analysis", a.handleAnalysis)
		api.GET("/publications/:id/fundings", a.handleFundings)

		api.POST("/score", a.handleScore)
		api.POST("/tokens/estimate", a.handleEstimate)

		api.POST("/session", a.handleCreateSession)
		api.GET("/wallet", a.requireSession, a.handleWallet)
		api.POST("/wallet/connect", a.requireSession, a.handleConnect)
		api.POST("/wallet/disconnect", a.requireSession, a.handleDisconnect)
		api.DELETE("/toasts/:id", a.requireSession, a.handleDismissToast)

		api.POST("/fund", a.limiter.EndpointRateLimitMiddleware("fund", a.cfg.RateLimit.FundPerMinute), a.optionalSession, a.handleFund)
		api.GET("/accounts/:address", a.handleAccount)
		api.POST("/accounts/:address/status", a.handleAccountStatus)

		api.GET("/leaderboard", a.handleLeaderboard)
		api.GET("/leaderboard/:id", a.handleLeaderboardRank)
		api.GET("/ratelimit", a.limiter.HandleRateLimitStatus())

		api.POST("/payments/checkout", a.optionalSession, a.handleCheckout)
	}

	return r
}
