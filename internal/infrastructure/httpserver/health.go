package httpserver

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/orderflow/orderflow/internal/application/appcore"
)

// Health status constants shared by all health endpoints.
const (
	// StatusHealthy indicates the component is fully operational.
	StatusHealthy = "healthy"

	// StatusUnhealthy indicates the component is not operational.
	StatusUnhealthy = "unhealthy"

	// StatusReady indicates the service is ready to accept traffic.
	StatusReady = "ready"

	// StatusNotReady indicates the service is not ready to accept traffic.
	StatusNotReady = "not_ready"
)

// ComponentStatus represents the health status of a single component.
type ComponentStatus struct {
	Name    string         `json:"name"`
	Status  string         `json:"status"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// HealthResponse represents the response for health endpoints.
type HealthResponse struct {
	Status     string            `json:"status"`
	Components []ComponentStatus `json:"components,omitempty"`
}

// HealthEndpoints runs the registered checkers and serves the probe
// endpoints.
type HealthEndpoints struct {
	checkers []appcore.HealthChecker
}

// NewHealthEndpoints creates a new HealthEndpoints instance.
func NewHealthEndpoints(checkers ...appcore.HealthChecker) *HealthEndpoints {
	return &HealthEndpoints{
		checkers: checkers,
	}
}

// Register registers all health endpoints on the Echo instance.
// Endpoints registered:
//   - GET /health - Liveness probe (always returns 200 if app is running)
//   - GET /ready - Readiness probe (returns 200 if ready, 503 if not)
//   - GET /health/details - Detailed health status of all components
func (h *HealthEndpoints) Register(e *echo.Echo) {
	e.GET("/health", h.handleHealth)
	e.GET("/ready", h.handleReady)
	e.GET("/health/details", h.handleHealthDetails)
}

// handleHealth handles the liveness probe endpoint. It always returns 200 OK
// if the application is running.
func (h *HealthEndpoints) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status: StatusHealthy,
	})
}

// handleReady handles the readiness probe endpoint. Returns 200 OK if all
// components are healthy, 503 Service Unavailable otherwise.
func (h *HealthEndpoints) handleReady(c echo.Context) error {
	ctx := c.Request().Context()

	components, allHealthy := h.runCheckers(ctx)
	if allHealthy {
		return c.JSON(http.StatusOK, HealthResponse{
			Status:     StatusReady,
			Components: components,
		})
	}

	return c.JSON(http.StatusServiceUnavailable, HealthResponse{
		Status:     StatusNotReady,
		Components: components,
	})
}

// handleHealthDetails returns the status of each component with details.
func (h *HealthEndpoints) handleHealthDetails(c echo.Context) error {
	ctx := c.Request().Context()

	components, allHealthy := h.runCheckers(ctx)

	overallStatus := StatusHealthy
	statusCode := http.StatusOK
	if !allHealthy {
		overallStatus = StatusUnhealthy
		statusCode = http.StatusServiceUnavailable
	}

	return c.JSON(statusCode, HealthResponse{
		Status:     overallStatus,
		Components: components,
	})
}

// runCheckers runs every registered checker and collects the results.
func (h *HealthEndpoints) runCheckers(ctx context.Context) ([]ComponentStatus, bool) {
	if len(h.checkers) == 0 {
		return nil, true
	}

	components := make([]ComponentStatus, 0, len(h.checkers))
	allHealthy := true

	for _, checker := range h.checkers {
		status := checker.Check(ctx)

		componentStatus := StatusHealthy
		if !status.Healthy {
			componentStatus = StatusUnhealthy
			allHealthy = false
		}

		components = append(components, ComponentStatus{
			Name:    checker.Name(),
			Status:  componentStatus,
			Message: status.Message,
			Details: status.Details,
		})
	}

	return components, allHealthy
}
