// Package web serves the operator status page: queue backlog, scheduler
// job outcomes, triage items, and the latest alert activity on one
// auto-refreshing HTML page.
package web

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"pricewatch/internal/store"
	"pricewatch/pkg/logger"
	domain "pricewatch/pkg/types"
)

// StatusStore is the read surface the status page needs.
type StatusStore interface {
	Ping(ctx context.Context) error
	QueueStats(ctx context.Context) ([]domain.QueueStats, error)
	ListLatestJobRuns(ctx context.Context) ([]domain.JobRun, error)
	ListTaskFailures(ctx context.Context, unacknowledgedOnly bool, limit int) ([]domain.TaskFailure, error)
	ListProducts(ctx context.Context, opts *store.ProductQuery) ([]domain.Product, int, error)
	ListAlertEvents(ctx context.Context, opts *store.EventQuery) ([]domain.AlertEvent, int, error)
}

// Handler renders the status page.
type Handler struct {
	store   StatusStore
	version string
	log     *slog.Logger
	now     func() time.Time
}

// NewHandler creates a status page handler.
func NewHandler(s StatusStore, version string, log *slog.Logger) *Handler {
	return &Handler{
		store:   s,
		version: version,
		log:     logger.Component(log, "web"),
		now:     time.Now,
	}
}

// Register mounts the page on the Echo instance.
func (h *Handler) Register(e *echo.Echo) {
	e.GET("/status", h.Status)
}

// Status gathers a snapshot and renders it.
func (h *Handler) Status(c echo.Context) error {
	ctx := c.Request().Context()
	data, err := h.gather(ctx)
	if err != nil {
		h.log.Error("gathering status failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "status unavailable")
	}

	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().WriteHeader(http.StatusOK)
	return statusPage(*data).Render(ctx, c.Response())
}

func (h *Handler) gather(ctx context.Context) (*statusData, error) {
	data := &statusData{
		Version:     h.version,
		GeneratedAt: h.now().UTC(),
		Healthy:     h.store.Ping(ctx) == nil,
	}

	queues, err := h.store.QueueStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	data.Queues = queues

	jobs, err := h.store.ListLatestJobRuns(ctx)
	if err != nil {
		return nil, fmt.Errorf("job runs: %w", err)
	}
	data.Jobs = jobs

	failures, err := h.store.ListTaskFailures(ctx, true, 10)
	if err != nil {
		return nil, fmt.Errorf("task failures: %w", err)
	}
	data.Failures = failures

	_, tracked, err := h.store.ListProducts(ctx, &store.ProductQuery{Enabled: boolPtr(true), Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("counting tracked products: %w", err)
	}
	data.Tracked = tracked

	_, stale, err := h.store.ListProducts(ctx, &store.ProductQuery{Stale: boolPtr(true), Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("counting stale products: %w", err)
	}
	data.Stale = stale

	events, _, err := h.store.ListAlertEvents(ctx, &store.EventQuery{Limit: 8})
	if err != nil {
		return nil, fmt.Errorf("recent events: %w", err)
	}
	data.RecentEvents = events

	return data, nil
}

func boolPtr(b bool) *bool { return &b }
