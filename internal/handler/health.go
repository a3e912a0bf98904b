package handler

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/deppfellow/tenantflow/internal/middleware"
	"github.com/deppfellow/tenantflow/internal/server"
	"github.com/labstack/echo/v4"
)

// HealthHandler reports liveness plus database and Redis reachability for
// load balancers and uptime monitors.
type HealthHandler struct {
	Handler
}

func NewHealthHandler(s *server.Server) *HealthHandler {
	return &HealthHandler{
		Handler: NewHandler(s),
	}
}

type healthCheck struct {
	name  string
	probe func(ctx context.Context) error
}

// CheckHealth returns 200 when every configured check passes and 503
// otherwise.
func (h *HealthHandler) CheckHealth(c echo.Context) error {
	start := time.Now()

	logger := middleware.GetLogger(c).With().
		Str("operation", "health_check").
		Logger()

	checks := make(map[string]interface{})
	response := map[string]interface{}{
		"status":      "healthy",
		"timestamp":   time.Now().UTC(),
		"environment": h.server.Config.Primary.Env,
		"checks":      checks,
	}
	isHealthy := true

	for _, check := range h.enabledChecks() {
		ctx, cancel := context.WithTimeout(c.Request().Context(), h.checkTimeout())
		checkStart := time.Now()
		err := check.probe(ctx)
		elapsed := time.Since(checkStart)
		cancel()

		if err != nil {
			isHealthy = false
			checks[check.name] = map[string]interface{}{
				"status":        "unhealthy",
				"response_time": elapsed.String(),
				"error":         err.Error(),
			}

			logger.Error().
				Err(err).
				Str("check", check.name).
				Dur("response_time", elapsed).
				Msg("health check failed")

			h.recordEvent(map[string]interface{}{
				"check_type":       check.name,
				"operation":        "health_check",
				"error_type":       check.name + "_unhealthy",
				"response_time_ms": elapsed.Milliseconds(),
				"error_message":    err.Error(),
			})
			continue
		}

		checks[check.name] = map[string]interface{}{
			"status":        "healthy",
			"response_time": elapsed.String(),
		}

		logger.Debug().
			Str("check", check.name).
			Dur("response_time", elapsed).
			Msg("health check passed")
	}

	if !isHealthy {
		response["status"] = "unhealthy"

		logger.Warn().
			Dur("total_duration", time.Since(start)).
			Msg("health check failed")

		h.recordEvent(map[string]interface{}{
			"check_type":        "overall",
			"operation":         "health_check",
			"error_type":        "overall_unhealthy",
			"total_duration_ms": time.Since(start).Milliseconds(),
		})

		return c.JSON(http.StatusServiceUnavailable, response)
	}

	if err := c.JSON(http.StatusOK, response); err != nil {
		logger.Error().Err(err).Msg("failed to write JSON response")
		return fmt.Errorf("failed to write JSON response: %w", err)
	}

	return nil
}

func (h *HealthHandler) enabledChecks() []healthCheck {
	obs := h.server.Config.Observability
	if obs != nil && !obs.HealthChecks.Enabled {
		return nil
	}

	all := []healthCheck{
		{name: "database", probe: func(ctx context.Context) error {
			if h.server.DB == nil {
				return fmt.Errorf("database not configured")
			}
			return h.server.DB.Pool.Ping(ctx)
		}},
		{name: "redis", probe: func(ctx context.Context) error {
			if h.server.Redis == nil {
				return fmt.Errorf("redis not configured")
			}
			return h.server.Redis.Ping(ctx).Err()
		}},
	}

	if obs == nil || len(obs.HealthChecks.Checks) == 0 {
		return all
	}

	var enabled []healthCheck
	for _, check := range all {
		if slices.Contains(obs.HealthChecks.Checks, check.name) {
			enabled = append(enabled, check)
		}
	}
	return enabled
}

func (h *HealthHandler) checkTimeout() time.Duration {
	if obs := h.server.Config.Observability; obs != nil && obs.HealthChecks.Timeout > 0 {
		return obs.HealthChecks.Timeout
	}
	return 5 * time.Second
}

func (h *HealthHandler) recordEvent(params map[string]interface{}) {
	if h.server.LoggerService == nil || h.server.LoggerService.GetApplication() == nil {
		return
	}
	h.server.LoggerService.GetApplication().RecordCustomEvent("HealthCheckError", params)
}
