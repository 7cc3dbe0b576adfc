// Package main provides the API server entry point.
package main

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/orderflow/orderflow/internal/infrastructure/httpserver"
	"github.com/orderflow/orderflow/internal/middleware"
)

// SetupRoutes configures all API routes and middleware chains.
func SetupRoutes(c *Container) *httpserver.Router {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.Logger = c.Logger

	recoveryConfig := middleware.DefaultRecoveryConfig()
	recoveryConfig.Logger = c.Logger

	router := httpserver.NewRouter(e, httpserver.RouterConfig{
		Logger:         c.Logger,
		LoggingConfig:  loggingConfig,
		RecoveryConfig: recoveryConfig,
		APIPrefix:      "/api/v1",
	})

	router.RegisterHealthEndpoints(httpserver.NewHealthEndpoints(c.Checkers...))
	router.RegisterMetrics(prometheus.DefaultGatherer)

	c.OrderHandler.RegisterRoutes(router)

	return router
}
