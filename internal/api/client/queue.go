package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	domain "pricewatch/pkg/types"
)

// QueueStats returns per-priority backlog depth and oldest pending age.
func (c *Client) QueueStats(ctx context.Context) ([]domain.QueueStats, error) {
	var stats []domain.QueueStats
	if err := c.get(ctx, "/api/v1/queue/stats", &stats); err != nil {
		return nil, err
	}
	return stats, nil
}

// ListTaskFailures returns terminally failed tasks. With all set, it
// includes already acknowledged rows.
func (c *Client) ListTaskFailures(ctx context.Context, all bool, limit int) ([]domain.TaskFailure, error) {
	q := url.Values{}
	if all {
		q.Set("all", "true")
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	path := "/api/v1/queue/failures"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var failures []domain.TaskFailure
	if err := c.get(ctx, path, &failures); err != nil {
		return nil, err
	}
	return failures, nil
}

// AckTaskFailure marks a task failure as reviewed.
func (c *Client) AckTaskFailure(ctx context.Context, id string) error {
	return c.post(ctx, fmt.Sprintf("/api/v1/queue/failures/%s/ack", id), nil, nil)
}
