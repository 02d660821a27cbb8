package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricewatch/internal/api/handlers"
	"pricewatch/internal/store"
	domain "pricewatch/pkg/types"
)

// mockEventsProvider is a test double for EventsProvider.
type mockEventsProvider struct {
	event  *domain.AlertEvent
	events []domain.AlertEvent
	total  int
	failed []domain.AlertEvent

	listQ       *store.EventQuery
	failedLimit int

	err error
}

func (m *mockEventsProvider) ListAlertEvents(_ context.Context, opts *store.EventQuery) ([]domain.AlertEvent, int, error) {
	m.listQ = opts
	return m.events, m.total, m.err
}

func (m *mockEventsProvider) GetAlertEvent(_ context.Context, _ string) (*domain.AlertEvent, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.event == nil {
		return nil, store.ErrNotFound
	}
	return m.event, nil
}

func (m *mockEventsProvider) ListDeliveryFailedEvents(_ context.Context, limit int) ([]domain.AlertEvent, error) {
	m.failedLimit = limit
	return m.failed, m.err
}

func (m *mockEventsProvider) MarkEventRead(_ context.Context, _ string) error {
	if m.err != nil {
		return m.err
	}
	if m.event == nil {
		return store.ErrNotFound
	}
	m.event.Read = true
	return nil
}

var _ handlers.EventsProvider = (*mockEventsProvider)(nil)

func sampleEvent(id string, kind domain.AlertKind) domain.AlertEvent {
	return domain.AlertEvent{
		ID:            id,
		RuleID:        "r1",
		UserID:        "user-1",
		ProductID:     "p1",
		ObservedAt:    testStamp,
		Kind:          kind,
		Price:         dec("94.5"),
		PreviousPrice: decPtr("99.95"),
		Message:       "4K Monitor dropped from 99.95 to 94.50",
		CreatedAt:     testStamp,
	}
}

func newEventsAPI(t *testing.T, m *mockEventsProvider) humatest.TestAPI {
	t.Helper()
	_, api := humatest.New(t)
	handlers.RegisterEventRoutes(api, handlers.NewEventsHandler(m))
	return api
}

func TestListEvents_Success(t *testing.T) {
	t.Parallel()

	m := &mockEventsProvider{
		events: []domain.AlertEvent{
			sampleEvent("e1", domain.AlertPriceDrop),
			sampleEvent("e2", domain.AlertLowestEver),
		},
		total: 2,
	}
	api := newEventsAPI(t, m)

	since := testStamp.Add(-24 * time.Hour).Format(time.RFC3339)
	resp := api.Get("/api/v1/events?product_id=p1&kind=price_drop&unread=true&since=" + since)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"total":2`)
	assert.Contains(t, resp.Body.String(), "lowest_ever")

	require.NotNil(t, m.listQ)
	require.NotNil(t, m.listQ.ProductID)
	assert.Equal(t, "p1", *m.listQ.ProductID)
	require.NotNil(t, m.listQ.Kind)
	assert.Equal(t, "price_drop", *m.listQ.Kind)
	require.NotNil(t, m.listQ.Unread)
	assert.True(t, *m.listQ.Unread)
	assert.Nil(t, m.listQ.Delivered)
	require.NotNil(t, m.listQ.Since)
	assert.True(t, m.listQ.Since.Equal(testStamp.Add(-24*time.Hour)))
}

func TestListEvents_Empty(t *testing.T) {
	t.Parallel()

	api := newEventsAPI(t, &mockEventsProvider{})

	resp := api.Get("/api/v1/events")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"events":[]`)
}

func TestListEvents_Error(t *testing.T) {
	t.Parallel()

	api := newEventsAPI(t, &mockEventsProvider{err: errors.New("db down")})

	resp := api.Get("/api/v1/events")
	require.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.Contains(t, resp.Body.String(), "event query failed")
}

func TestGetEvent(t *testing.T) {
	t.Parallel()

	event := sampleEvent("e1", domain.AlertPriceDrop)
	api := newEventsAPI(t, &mockEventsProvider{event: &event})

	resp := api.Get("/api/v1/events/e1")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"id":"e1"`)
	assert.Contains(t, resp.Body.String(), "dropped from 99.95")
}

func TestGetEvent_NotFound(t *testing.T) {
	t.Parallel()

	api := newEventsAPI(t, &mockEventsProvider{})

	resp := api.Get("/api/v1/events/nope")
	require.Equal(t, http.StatusNotFound, resp.Code)
	assert.Contains(t, resp.Body.String(), "event not found")
}

func TestListFailedEvents(t *testing.T) {
	t.Parallel()

	failed := sampleEvent("e9", domain.AlertTargetReached)
	failed.DeliveryFailed = true
	failed.DeliveryAttempts = 5

	m := &mockEventsProvider{failed: []domain.AlertEvent{failed}}
	api := newEventsAPI(t, m)

	resp := api.Get("/api/v1/events/delivery-failed")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"delivery_failed":true`)
	assert.Equal(t, 50, m.failedLimit)
}

func TestListFailedEvents_Empty(t *testing.T) {
	t.Parallel()

	api := newEventsAPI(t, &mockEventsProvider{})

	resp := api.Get("/api/v1/events/delivery-failed")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "[]")
}

func TestMarkEventRead(t *testing.T) {
	t.Parallel()

	event := sampleEvent("e1", domain.AlertPriceDrop)
	api := newEventsAPI(t, &mockEventsProvider{event: &event})

	resp := api.Post("/api/v1/events/e1/read")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"read":true`)
}

func TestMarkEventRead_NotFound(t *testing.T) {
	t.Parallel()

	api := newEventsAPI(t, &mockEventsProvider{})

	resp := api.Post("/api/v1/events/nope/read")
	require.Equal(t, http.StatusNotFound, resp.Code)
}
