// Package handlers implements HTTP handlers for the pricewatch API.
package handlers

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Pinger reports whether the backing database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler provides health and readiness endpoints.
type HealthHandler struct {
	store Pinger
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(s Pinger) *HealthHandler {
	return &HealthHandler{store: s}
}

// Healthz returns 200 if the process is running.
func (*HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, StatusResponse{Status: "ok"})
}

// Readyz returns 200 if the database is reachable, 503 otherwise.
func (h *HealthHandler) Readyz(c echo.Context) error {
	if err := h.store.Ping(c.Request().Context()); err != nil {
		return c.JSON(
			http.StatusServiceUnavailable,
			StatusResponse{Status: "unavailable"},
		)
	}
	return c.JSON(http.StatusOK, StatusResponse{Status: "ready"})
}
