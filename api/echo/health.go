package echo

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// Pinger checks that a backing store is reachable.
type Pinger func(ctx context.Context) error

// HealthAPI reports the reachability of the gateway's backing stores.
type HealthAPI struct {
	checks map[string]Pinger
}

// NewHealthAPI creates a health endpoint over the named checks.
func NewHealthAPI(checks map[string]Pinger) *HealthAPI {
	return &HealthAPI{checks: checks}
}

// RegisterRoutes registers the health route.
func (h *HealthAPI) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.HealthzHandler)
}

// HealthzHandler runs every check and reports 503 when any store is down.
func (h *HealthAPI) HealthzHandler(c echo.Context) error {
	failed := make([]string, 0)
	for name, check := range h.checks {
		if err := check(c.Request().Context()); err != nil {
			log.Warn().Err(err).Str("check", name).Msg("Health check failed")
			failed = append(failed, name)
		}
	}

	if len(failed) > 0 {
		return c.JSON(http.StatusServiceUnavailable, map[string]any{
			"status": "degraded",
			"failed": failed,
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"status": "ok"})
}
