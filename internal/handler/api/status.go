package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"VolPulse/internal/monitor"
)

// StatusHandler exposes the monitor's latest cycle view.
type StatusHandler struct {
	mon *monitor.Monitor
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(mon *monitor.Monitor) *StatusHandler {
	return &StatusHandler{mon: mon}
}

// RegisterRoutes registers the status routes.
func (h *StatusHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.health)
	e.GET("/status", h.status)
}

func (h *StatusHandler) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *StatusHandler) status(c echo.Context) error {
	return c.JSON(http.StatusOK, h.mon.Status())
}
