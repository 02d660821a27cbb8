package client

import (
	"context"

	domain "pricewatch/pkg/types"
)

// ListRetailers returns configured retailers.
func (c *Client) ListRetailers(ctx context.Context, activeOnly bool) ([]domain.Retailer, error) {
	path := "/api/v1/retailers"
	if activeOnly {
		path += "?active_only=true"
	}

	var retailers []domain.Retailer
	if err := c.get(ctx, path, &retailers); err != nil {
		return nil, err
	}
	return retailers, nil
}

// GetRetailer returns a single retailer by ID.
func (c *Client) GetRetailer(ctx context.Context, id string) (*domain.Retailer, error) {
	var r domain.Retailer
	if err := c.get(ctx, "/api/v1/retailers/"+id, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// UpsertRetailerRequest contains only the fields the API accepts for
// creating or updating a retailer.
type UpsertRetailerRequest struct {
	ID                string `json:"id,omitempty"`
	Name              string `json:"name"`
	BaseURL           string `json:"base_url"`
	RequestsPerMinute int    `json:"requests_per_minute,omitempty"`
	Burst             int    `json:"burst,omitempty"`
	Active            *bool  `json:"active,omitempty"`
}

// UpsertRetailer creates a retailer, or updates one when the request carries
// an existing ID.
func (c *Client) UpsertRetailer(ctx context.Context, req UpsertRetailerRequest) (*domain.Retailer, error) {
	var saved domain.Retailer
	if err := c.put(ctx, "/api/v1/retailers", req, &saved); err != nil {
		return nil, err
	}
	return &saved, nil
}
