package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	domain "pricewatch/pkg/types"
)

// EventsResponse wraps a paginated alert events response.
type EventsResponse struct {
	Events []domain.AlertEvent `json:"events"`
	Total  int                 `json:"total"`
}

// ListEventsParams defines query parameters for alert event queries.
type ListEventsParams struct {
	ProductID string
	UserID    string
	RuleID    string
	Kind      string
	Unread    *bool
	Delivered *bool
	Since     time.Time
	Limit     int
	Offset    int
}

// ListEvents returns fired alerts matching the given parameters, newest first.
func (c *Client) ListEvents(ctx context.Context, params *ListEventsParams) (*EventsResponse, error) {
	q := url.Values{}
	if params.ProductID != "" {
		q.Set("product_id", params.ProductID)
	}
	if params.UserID != "" {
		q.Set("user_id", params.UserID)
	}
	if params.RuleID != "" {
		q.Set("rule_id", params.RuleID)
	}
	if params.Kind != "" {
		q.Set("kind", params.Kind)
	}
	if params.Unread != nil {
		q.Set("unread", strconv.FormatBool(*params.Unread))
	}
	if params.Delivered != nil {
		q.Set("delivered", strconv.FormatBool(*params.Delivered))
	}
	if !params.Since.IsZero() {
		q.Set("since", params.Since.Format(time.RFC3339))
	}
	if params.Limit > 0 {
		q.Set("limit", strconv.Itoa(params.Limit))
	}
	if params.Offset > 0 {
		q.Set("offset", strconv.Itoa(params.Offset))
	}

	path := "/api/v1/events"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp EventsResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetEvent returns a single alert event by ID.
func (c *Client) GetEvent(ctx context.Context, id string) (*domain.AlertEvent, error) {
	var e domain.AlertEvent
	if err := c.get(ctx, "/api/v1/events/"+id, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// ListDeliveryFailedEvents returns events whose delivery exhausted its retries.
func (c *Client) ListDeliveryFailedEvents(ctx context.Context, limit int) ([]domain.AlertEvent, error) {
	path := "/api/v1/events/delivery-failed"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}

	var events []domain.AlertEvent
	if err := c.get(ctx, path, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// MarkEventRead marks an alert event as read and returns the updated event.
func (c *Client) MarkEventRead(ctx context.Context, id string) (*domain.AlertEvent, error) {
	var e domain.AlertEvent
	if err := c.post(ctx, fmt.Sprintf("/api/v1/events/%s/read", id), nil, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
