package client

import "context"

// TriggerResult reports the outcome of a manual trigger.
type TriggerResult struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

// EnqueueDue runs one scheduler pass, enqueueing scrapes for every product
// whose cadence has elapsed.
func (c *Client) EnqueueDue(ctx context.Context) (*TriggerResult, error) {
	var res TriggerResult
	if err := c.post(ctx, "/api/v1/trigger/enqueue-due", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// RefreshPriorities recomputes priority scores for all enabled products.
func (c *Client) RefreshPriorities(ctx context.Context) (*TriggerResult, error) {
	var res TriggerResult
	if err := c.post(ctx, "/api/v1/trigger/refresh-priorities", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// TriggerMaintenance enqueues a retention sweep task.
func (c *Client) TriggerMaintenance(ctx context.Context) (*TriggerResult, error) {
	var res TriggerResult
	if err := c.post(ctx, "/api/v1/trigger/maintenance", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
