package http

import (
	"github.com/gin-gonic/gin"

	"github.com/cartcost/backend/config"
	"github.com/cartcost/backend/internal/infrastructure/metrics"
	"github.com/cartcost/backend/internal/obs"
)

// SetupRouter creates and configures the Gin router. A nil metrics disables /metrics.
func SetupRouter(cfg *config.Config, handler *Handler, m *metrics.Metrics) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	logger := obs.Component("http")
	router.Use(RecoveryMiddleware(logger))
	router.Use(LoggerMiddleware(logger))
	router.Use(CORSMiddleware(cfg.Server.AllowedOrigins))
	if m != nil {
		router.Use(m.GinMiddleware())
		path := cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		router.GET(path, gin.WrapH(m.Handler()))
	}

	// Health check endpoint
	router.GET("/health", handler.HealthCheck)

	// API v1 routes
	v1 := router.Group("/api/v1")
	v1.Use(RateLimitMiddleware(cfg.RateLimit.PerIP))
	{
		prices := v1.Group("/prices")
		{
			prices.GET("/resolve", handler.ResolvePrice)
			prices.POST("/refresh", handler.RefreshPrices)
		}

		stores := v1.Group("/stores")
		{
			stores.GET("/multiplier", handler.StoreMultiplier)
			stores.GET("/coverage", handler.StoreCoverage)
		}

		v1.GET("/units/convert", handler.ConvertUnits)
	}

	return router
}
