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
	e.Use(RecordMetrics)     // Request counters and latency
	e.Use(SetNoCacheHeaders) // Prevent caching of API responses

	// Prometheus scrape endpoint, outside auth
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Optional API key authentication
	if cfg.APIKey != "" {
		e.Use(middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
			KeyLookup: "header:X-API-Key", // Look for API key in X-API-Key header
			Skipper: func(c echo.Context) bool {
				return c.Path() == "/metrics" || c.Path() == "/v1/health"
			},
			Validator: func(key string, c echo.Context) (bool, error) {
				return key == cfg.APIKey, nil // Simple string comparison
			},
		}))
	}

	// Settlement-triggering endpoints share one limiter
	limited := middleware.RateLimiter(middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(cfg.RateLimitRPS),
		Burst:     cfg.RateLimitBurst,
		ExpiresIn: 2 * time.Minute,
	}))

	// API v1 routes
	v1 := e.Group("/v1")
	v1.GET("/health", h.Health)
	v1.GET("/quote", h.Quote)
	v1.GET("/route", h.Route)
	v1.GET("/convert", h.Convert)
	v1.POST("/paths/encode", h.PathEncode)
	v1.POST("/paths/decode", h.PathDecode)

	// Portfolio endpoints
	pg := v1.Group("/portfolios")
	pg.GET("", h.PortfoliosList)
	pg.POST("", h.PortfoliosCreate)
	pg.GET("/:name", h.PortfoliosGet)
	pg.GET("/:name/basket", h.BasketGet)
	pg.PUT("/:name/basket", h.BasketReplace)
	pg.POST("/:name/basket", h.BasketAppend)
	pg.POST("/:name/deposit", h.Deposit)
	pg.POST("/:name/withdraw", h.Withdraw)
	pg.GET("/:name/plan", h.PlanPreview)
	pg.POST("/:name/rebalance", h.Rebalance, limited)
	pg.GET("/:name/fees", h.FeesGet)
	pg.POST("/:name/fees/withdraw", h.FeesWithdraw, limited)
	pg.PUT("/:name/slippage", h.SlippageSet)
	pg.POST("/:name/pause", h.Pause)
	pg.POST("/:name/unpause", h.Unpause)
	pg.POST("/:name/whitelist", h.WhitelistAdd)
	pg.DELETE("/:name/whitelist/:address", h.WhitelistRemove)
	pg.POST("/:name/sync", h.SyncBalances, limited)

	// Catch-all route for 404 responses
	e.RouteNotFound("/*", func(c echo.Context) error {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found", Code: http.StatusNotFound})
	})
}
