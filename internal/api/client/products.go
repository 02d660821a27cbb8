package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	domain "pricewatch/pkg/types"
)

// ProductsResponse wraps a paginated products response.
type ProductsResponse struct {
	Products []domain.Product `json:"products"`
	Total    int              `json:"total"`
}

// ListProductsParams defines query parameters for product queries.
type ListProductsParams struct {
	RetailerID string
	Enabled    *bool
	Stale      *bool
	Available  *bool
	Search     string
	Limit      int
	Offset     int
	OrderBy    string
}

// ListProducts returns tracked products matching the given parameters.
func (c *Client) ListProducts(
	ctx context.Context,
	params *ListProductsParams,
) (*ProductsResponse, error) {
	q := url.Values{}
	if params.RetailerID != "" {
		q.Set("retailer_id", params.RetailerID)
	}
	if params.Enabled != nil {
		q.Set("enabled", strconv.FormatBool(*params.Enabled))
	}
	if params.Stale != nil {
		q.Set("stale", strconv.FormatBool(*params.Stale))
	}
	if params.Available != nil {
		q.Set("available", strconv.FormatBool(*params.Available))
	}
	if params.Search != "" {
		q.Set("search", params.Search)
	}
	if params.Limit > 0 {
		q.Set("limit", strconv.Itoa(params.Limit))
	}
	if params.Offset > 0 {
		q.Set("offset", strconv.Itoa(params.Offset))
	}
	if params.OrderBy != "" {
		q.Set("order_by", params.OrderBy)
	}

	path := "/api/v1/products"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp ProductsResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetProduct returns a single product by ID.
func (c *Client) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	if err := c.get(ctx, "/api/v1/products/"+id, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateProductRequest contains only the fields the API accepts for tracking
// a new product.
type CreateProductRequest struct {
	RetailerID     string `json:"retailer_id"`
	SourceURL      string `json:"source_url"`
	Title          string `json:"title,omitempty"`
	SKU            string `json:"sku,omitempty"`
	Currency       string `json:"currency,omitempty"`
	CadenceSeconds int    `json:"cadence_seconds,omitempty"`
}

// CreateProduct starts tracking a new product URL.
func (c *Client) CreateProduct(ctx context.Context, req CreateProductRequest) (*domain.Product, error) {
	var created domain.Product
	if err := c.post(ctx, "/api/v1/products", req, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateTracking changes a product's scrape cadence and enabled flag.
func (c *Client) UpdateTracking(ctx context.Context, id string, cadenceSeconds int, enabled bool) (*domain.Product, error) {
	body := map[string]any{
		"cadence_seconds": cadenceSeconds,
		"enabled":         enabled,
	}
	var updated domain.Product
	if err := c.patch(ctx, "/api/v1/products/"+id, body, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteProduct stops tracking a product.
func (c *Client) DeleteProduct(ctx context.Context, id string) error {
	return c.del(ctx, "/api/v1/products/"+id, nil)
}

// CheckNow enqueues an immediate scrape for a product.
func (c *Client) CheckNow(ctx context.Context, id string) error {
	return c.post(ctx, fmt.Sprintf("/api/v1/products/%s/check", id), nil, nil)
}

// PriceHistoryResponse wraps a product's raw price points within a window.
type PriceHistoryResponse struct {
	ProductID string              `json:"product_id"`
	From      time.Time           `json:"from"`
	To        time.Time           `json:"to"`
	Points    []domain.PricePoint `json:"points"`
}

// PriceHistory returns observed price points for a product. Zero times are
// omitted and the server applies its default window.
func (c *Client) PriceHistory(ctx context.Context, id string, from, to time.Time, limit int) (*PriceHistoryResponse, error) {
	q := url.Values{}
	if !from.IsZero() {
		q.Set("from", from.Format(time.RFC3339))
	}
	if !to.IsZero() {
		q.Set("to", to.Format(time.RFC3339))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	path := fmt.Sprintf("/api/v1/products/%s/history", id)
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp PriceHistoryResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DailySummariesResponse wraps a product's daily rollups within a window.
type DailySummariesResponse struct {
	ProductID string                `json:"product_id"`
	Days      []domain.DailySummary `json:"days"`
}

// DailySummaries returns per-day open/close/low/high rollups for a product.
func (c *Client) DailySummaries(ctx context.Context, id string, from, to time.Time) (*DailySummariesResponse, error) {
	q := url.Values{}
	if !from.IsZero() {
		q.Set("from", from.Format(time.RFC3339))
	}
	if !to.IsZero() {
		q.Set("to", to.Format(time.RFC3339))
	}

	path := fmt.Sprintf("/api/v1/products/%s/daily", id)
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp DailySummariesResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
