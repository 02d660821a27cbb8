package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"pricewatch/internal/store"
	domain "pricewatch/pkg/types"
)

// AnalyticsProvider defines the analytics service methods the handler exposes.
type AnalyticsProvider interface {
	Volatility(ctx context.Context, productID string, from, to time.Time) (*domain.VolatilitySummary, error)
	Trend(ctx context.Context, productID string, from, to time.Time) (*domain.TrendSummary, error)
	Insight(ctx context.Context, productID string, from, to time.Time) (*domain.InsightSummary, error)
}

// AnalyticsHandler handles derived price analytics endpoints.
type AnalyticsHandler struct {
	svc AnalyticsProvider
}

// NewAnalyticsHandler creates a new AnalyticsHandler.
func NewAnalyticsHandler(svc AnalyticsProvider) *AnalyticsHandler {
	return &AnalyticsHandler{svc: svc}
}

// --- Input/Output types ---

// AnalyticsWindowInput is the shared input for windowed analytics views.
type AnalyticsWindowInput struct {
	ID   string    `path:"id"    doc:"Product UUID"`
	From time.Time `query:"from" doc:"Window start (default 90 days before to)"`
	To   time.Time `query:"to"   doc:"Window end (default now)"`
}

// VolatilityOutput is the response for the volatility view.
type VolatilityOutput struct {
	Body domain.VolatilitySummary
}

// TrendOutput is the response for the trend view.
type TrendOutput struct {
	Body domain.TrendSummary
}

// InsightOutput is the response for the insight view.
type InsightOutput struct {
	Body domain.InsightSummary
}

// --- Handlers ---

// GetVolatility returns per-day price spread statistics for a product.
func (h *AnalyticsHandler) GetVolatility(
	ctx context.Context,
	input *AnalyticsWindowInput,
) (*VolatilityOutput, error) {
	summary, err := h.svc.Volatility(ctx, input.ID, input.From, input.To)
	if err != nil {
		return nil, analyticsError(err)
	}

	return &VolatilityOutput{Body: *summary}, nil
}

// GetTrend returns daily open/close movement for a product.
func (h *AnalyticsHandler) GetTrend(
	ctx context.Context,
	input *AnalyticsWindowInput,
) (*TrendOutput, error) {
	summary, err := h.svc.Trend(ctx, input.ID, input.From, input.To)
	if err != nil {
		return nil, analyticsError(err)
	}

	return &TrendOutput{Body: *summary}, nil
}

// GetInsight returns percentile bands and seasonality for a product.
func (h *AnalyticsHandler) GetInsight(
	ctx context.Context,
	input *AnalyticsWindowInput,
) (*InsightOutput, error) {
	summary, err := h.svc.Insight(ctx, input.ID, input.From, input.To)
	if err != nil {
		return nil, analyticsError(err)
	}

	return &InsightOutput{Body: *summary}, nil
}

func analyticsError(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return huma.Error404NotFound("product not found")
	}
	return huma.Error500InternalServerError("analytics query failed: " + err.Error())
}

// RegisterAnalyticsRoutes registers analytics endpoints with the Huma API.
func RegisterAnalyticsRoutes(api huma.API, h *AnalyticsHandler) {
	huma.Register(api, huma.Operation{
		OperationID: "get-product-volatility",
		Method:      http.MethodGet,
		Path:        "/api/v1/products/{id}/volatility",
		Summary:     "Get price volatility",
		Description: "Returns per-day low/high/average/stddev derived from the daily rollups.",
		Tags:        []string{"analytics"},
		Errors:      []int{http.StatusNotFound, http.StatusInternalServerError},
	}, h.GetVolatility)

	huma.Register(api, huma.Operation{
		OperationID: "get-product-trend",
		Method:      http.MethodGet,
		Path:        "/api/v1/products/{id}/trend",
		Summary:     "Get price trend",
		Description: "Returns daily open/close deltas and the whole-window movement.",
		Tags:        []string{"analytics"},
		Errors:      []int{http.StatusNotFound, http.StatusInternalServerError},
	}, h.GetTrend)

	huma.Register(api, huma.Operation{
		OperationID: "get-product-insight",
		Method:      http.MethodGet,
		Path:        "/api/v1/products/{id}/insight",
		Summary:     "Get buying insight",
		Description: "Returns percentile bands, where the current price sits in them, and the historically cheapest months.",
		Tags:        []string{"analytics"},
		Errors:      []int{http.StatusNotFound, http.StatusInternalServerError},
	}, h.GetInsight)
}
