package client

import (
	"context"
	"net/url"

	domain "pricewatch/pkg/types"
)

// ListRulesParams defines query parameters for alert rule queries.
type ListRulesParams struct {
	ProductID   string
	UserID      string
	EnabledOnly bool
}

// ListRules returns alert rules matching the given parameters.
func (c *Client) ListRules(ctx context.Context, params *ListRulesParams) ([]domain.AlertRule, error) {
	q := url.Values{}
	if params.ProductID != "" {
		q.Set("product_id", params.ProductID)
	}
	if params.UserID != "" {
		q.Set("user_id", params.UserID)
	}
	if params.EnabledOnly {
		q.Set("enabled_only", "true")
	}

	path := "/api/v1/rules"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var rules []domain.AlertRule
	if err := c.get(ctx, path, &rules); err != nil {
		return nil, err
	}
	return rules, nil
}

// GetRule returns a single alert rule by ID.
func (c *Client) GetRule(ctx context.Context, id string) (*domain.AlertRule, error) {
	var r domain.AlertRule
	if err := c.get(ctx, "/api/v1/rules/"+id, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateRuleRequest contains only the fields the API accepts for creating
// an alert rule. Threshold is a decimal string such as "89.99".
type CreateRuleRequest struct {
	UserID    string `json:"user_id"`
	ProductID string `json:"product_id"`
	Kind      string `json:"kind"`
	Threshold string `json:"threshold,omitempty"`
}

// CreateRule creates a new alert rule.
func (c *Client) CreateRule(ctx context.Context, req CreateRuleRequest) (*domain.AlertRule, error) {
	var created domain.AlertRule
	if err := c.post(ctx, "/api/v1/rules", req, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// SetRuleEnabled enables or disables an alert rule.
func (c *Client) SetRuleEnabled(ctx context.Context, id string, enabled bool) (*domain.AlertRule, error) {
	body := map[string]bool{"enabled": enabled}
	var updated domain.AlertRule
	if err := c.patch(ctx, "/api/v1/rules/"+id, body, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteRule deletes an alert rule by ID.
func (c *Client) DeleteRule(ctx context.Context, id string) error {
	return c.del(ctx, "/api/v1/rules/"+id, nil)
}
