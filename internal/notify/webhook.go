package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultWebhookTimeout = 10 * time.Second

// WebhookSink delivers notifications as JSON POSTs to a configured URL.
type WebhookSink struct {
	url     string
	client  *http.Client
	headers map[string]string
}

// NewWebhookSink creates a WebhookSink for the given endpoint.
func NewWebhookSink(url string, opts ...WebhookOption) *WebhookSink {
	w := &WebhookSink{
		url:    url,
		client: &http.Client{Timeout: defaultWebhookTimeout},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// WebhookOption configures a WebhookSink.
type WebhookOption func(*WebhookSink)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) WebhookOption {
	return func(w *WebhookSink) {
		w.client = c
	}
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) WebhookOption {
	return func(w *WebhookSink) {
		w.client.Timeout = d
	}
}

// WithHeaders adds static headers to every request, such as auth tokens.
func WithHeaders(h map[string]string) WebhookOption {
	return func(w *WebhookSink) {
		w.headers = h
	}
}

// webhookPayload is the JSON body posted to the endpoint.
type webhookPayload struct {
	UserID  string    `json:"user_id"`
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	SentAt  time.Time `json:"sent_at"`
}

// Name implements Sink.
func (w *WebhookSink) Name() string { return "webhook" }

// Send posts one notification. Rate limits and server errors come back as
// TransientError so the caller's retry schedule picks them up.
func (w *WebhookSink) Send(ctx context.Context, userID, subject, body string) error {
	payload := webhookPayload{
		UserID:  userID,
		Subject: subject,
		Body:    body,
		SentAt:  time.Now().UTC(),
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("creating webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending webhook: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return &TransientError{Sink: w.Name(), StatusCode: resp.StatusCode}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 512))
		if readErr != nil {
			return fmt.Errorf("webhook returned %d (body unreadable)", resp.StatusCode)
		}
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, respBody)
	}
	return nil
}
