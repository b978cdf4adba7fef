package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// RegisterRoutes configures all API routes, middleware, and error handlers
func RegisterRoutes(e *echo.Echo, h *Handlers, cfg ServerConfig) {
	// Set custom error handler for consistent JSON responses
	e.HTTPErrorHandler = NotFoundJSON()

	// Apply global middleware
	e.Use(SetJSONContentType) // Ensure all responses are JSON
	e.Use(SetNoCacheHeaders)  // Prevent caching of API responses

	// Optional API key authentication
	if cfg.APIKey != "" {
		e.Use(middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
			KeyLookup: "header:X-API-Key", // Look for API key in X-API-Key header
			Validator: func(key string, c echo.Context) (bool, error) {
				return key == cfg.APIKey, nil // Simple string comparison
			},
		}))
	}

	if h.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(h.Metrics, promhttp.HandlerOpts{})))
	}

	// API v1 routes
	v1 := e.Group("/v1")
	v1.GET("/health", h.Health) // Health check endpoint
	v1.POST("/echo", h.Echo)    // Echo endpoint for testing

	v1.GET("/tokens", h.TokensList)
	v1.GET("/tokens/:id", h.TokenGet)
	v1.GET("/pools", h.PoolsStatus)
	v1.GET("/pools/:id", h.PoolGet)
	v1.GET("/prices", h.PricesList)
	v1.GET("/prices/:token", h.Price)

	// Quoting and planning hit the chain, so they are rate limited per client
	limiter := middleware.RateLimiter(middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(cfg.rateLimit()),
		Burst:     cfg.rateBurst(),
		ExpiresIn: 3 * time.Minute,
	}))

	v1.POST("/quote", h.Quote, limiter)

	swaps := v1.Group("/swaps")
	swaps.GET("/recent", h.RecentSwaps)           // Recently settled swaps
	swaps.GET("/history/:account", h.SwapHistory) // Settled swaps of one account
	swaps.POST("/plan", h.SwapPlan, limiter)      // Build a swap plan
	swaps.GET("/:plan", h.SwapStatus)             // Lifecycle of a plan
	swaps.POST("/:plan/outcome", h.SwapOutcome)   // Report signer outcome

	liquidity := v1.Group("/liquidity")
	liquidity.GET("/preview", h.LiquidityPreview)
	liquidity.POST("/add", h.AddLiquidity, limiter)
	liquidity.POST("/remove", h.RemoveLiquidity, limiter)

	// Feature flags CRUD endpoints
	flagGroup := v1.Group("/flags")
	flagGroup.GET("", h.FlagsList)           // List all flags
	flagGroup.POST("", h.FlagsUpsert)        // Create new flag
	flagGroup.GET("/:key", h.FlagsGet)       // Get specific flag
	flagGroup.PUT("/:key", h.FlagsUpdate)    // Update existing flag
	flagGroup.DELETE("/:key", h.FlagsDelete) // Delete flag

	// Catch-all route for 404 responses
	e.RouteNotFound("/*", func(c echo.Context) error {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found", Code: http.StatusNotFound})
	})
}
