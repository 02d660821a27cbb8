package client

import (
	"context"
	"fmt"
	"net/url"
	"time"

	domain "pricewatch/pkg/types"
)

func analyticsPath(id, view string, from, to time.Time) string {
	q := url.Values{}
	if !from.IsZero() {
		q.Set("from", from.Format(time.RFC3339))
	}
	if !to.IsZero() {
		q.Set("to", to.Format(time.RFC3339))
	}

	path := fmt.Sprintf("/api/v1/products/%s/%s", id, view)
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	return path
}

// Volatility returns per-day price spread statistics for a product.
func (c *Client) Volatility(ctx context.Context, id string, from, to time.Time) (*domain.VolatilitySummary, error) {
	var s domain.VolatilitySummary
	if err := c.get(ctx, analyticsPath(id, "volatility", from, to), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Trend returns daily open/close movement for a product.
func (c *Client) Trend(ctx context.Context, id string, from, to time.Time) (*domain.TrendSummary, error) {
	var s domain.TrendSummary
	if err := c.get(ctx, analyticsPath(id, "trend", from, to), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Insight returns percentile bands and seasonality for a product.
func (c *Client) Insight(ctx context.Context, id string, from, to time.Time) (*domain.InsightSummary, error) {
	var s domain.InsightSummary
	if err := c.get(ctx, analyticsPath(id, "insight", from, to), &s); err != nil {
		return nil, err
	}
	return &s, nil
}
