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

// EventsProvider defines the store methods required by the events handler.
type EventsProvider interface {
	ListAlertEvents(ctx context.Context, opts *store.EventQuery) ([]domain.AlertEvent, int, error)
	GetAlertEvent(ctx context.Context, id string) (*domain.AlertEvent, error)
	ListDeliveryFailedEvents(ctx context.Context, limit int) ([]domain.AlertEvent, error)
	MarkEventRead(ctx context.Context, id string) error
}

// EventsHandler handles fired-alert endpoints.
type EventsHandler struct {
	store EventsProvider
}

// NewEventsHandler creates a new EventsHandler.
func NewEventsHandler(s EventsProvider) *EventsHandler {
	return &EventsHandler{store: s}
}

const defaultFailedEventsLimit = 50

// --- Input/Output types ---

// ListEventsInput is the input for listing alert events with filters.
type ListEventsInput struct {
	ProductID string    `query:"product_id" doc:"Filter by product UUID"`
	UserID    string    `query:"user_id"    doc:"Filter by user UUID"`
	RuleID    string    `query:"rule_id"    doc:"Filter by rule UUID"`
	Kind      string    `query:"kind"       doc:"Filter by alert kind"   enum:"price_drop,target_reached,back_in_stock,lowest_ever,"`
	Unread    string    `query:"unread"     doc:"Filter by read state"   enum:"true,false,"`
	Delivered string    `query:"delivered"  doc:"Filter by delivery state" enum:"true,false,"`
	Since     time.Time `query:"since"      doc:"Only events observed at or after this time"`
	Limit     int       `query:"limit"      doc:"Number of results (default 50)" minimum:"1" maximum:"500"`
	Offset    int       `query:"offset"     doc:"Pagination offset"              minimum:"0"`
}

// ListEventsOutput is the response for listing alert events.
type ListEventsOutput struct {
	Body struct {
		Events []domain.AlertEvent `json:"events"`
		Total  int                 `json:"total"`
		Limit  int                 `json:"limit"`
		Offset int                 `json:"offset"`
	}
}

// GetEventInput is the input for getting a single alert event.
type GetEventInput struct {
	ID string `path:"id" doc:"Event UUID"`
}

// GetEventOutput is the response for getting a single alert event.
type GetEventOutput struct {
	Body domain.AlertEvent
}

// ListFailedEventsInput is the input for the delivery-failed triage view.
type ListFailedEventsInput struct {
	Limit int `query:"limit" doc:"Number of results (default 50)" minimum:"1" maximum:"500"`
}

// ListFailedEventsOutput is the response for the delivery-failed view.
type ListFailedEventsOutput struct {
	Body []domain.AlertEvent
}

// MarkEventReadInput is the input for acknowledging an event.
type MarkEventReadInput struct {
	ID string `path:"id" doc:"Event UUID"`
}

// MarkEventReadOutput is the response for acknowledging an event.
type MarkEventReadOutput struct {
	Body domain.AlertEvent
}

// --- Handlers ---

// ListEvents returns fired alerts with optional filters, newest first.
func (h *EventsHandler) ListEvents(
	ctx context.Context,
	input *ListEventsInput,
) (*ListEventsOutput, error) {
	q := &store.EventQuery{
		Offset: input.Offset,
	}

	if input.ProductID != "" {
		q.ProductID = &input.ProductID
	}

	if input.UserID != "" {
		q.UserID = &input.UserID
	}

	if input.RuleID != "" {
		q.RuleID = &input.RuleID
	}

	if input.Kind != "" {
		q.Kind = &input.Kind
	}

	if input.Unread != "" {
		v := input.Unread == "true"
		q.Unread = &v
	}

	if input.Delivered != "" {
		v := input.Delivered == "true"
		q.Delivered = &v
	}

	if !input.Since.IsZero() {
		q.Since = &input.Since
	}

	if input.Limit != 0 {
		q.Limit = input.Limit
	}

	events, total, err := h.store.ListAlertEvents(ctx, q)
	if err != nil {
		return nil, huma.Error500InternalServerError("event query failed: " + err.Error())
	}

	if events == nil {
		events = []domain.AlertEvent{}
	}

	resp := &ListEventsOutput{}
	resp.Body.Events = events
	resp.Body.Total = total
	resp.Body.Limit = q.Limit
	resp.Body.Offset = q.Offset

	return resp, nil
}

// GetEvent returns a single alert event by ID.
func (h *EventsHandler) GetEvent(
	ctx context.Context,
	input *GetEventInput,
) (*GetEventOutput, error) {
	event, err := h.store.GetAlertEvent(ctx, input.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, huma.Error404NotFound("event not found")
		}
		return nil, huma.Error500InternalServerError("getting event failed: " + err.Error())
	}

	return &GetEventOutput{Body: *event}, nil
}

// ListFailedEvents returns events whose delivery exhausted its retries.
func (h *EventsHandler) ListFailedEvents(
	ctx context.Context,
	input *ListFailedEventsInput,
) (*ListFailedEventsOutput, error) {
	limit := input.Limit
	if limit == 0 {
		limit = defaultFailedEventsLimit
	}

	events, err := h.store.ListDeliveryFailedEvents(ctx, limit)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed-event query failed: " + err.Error())
	}

	if events == nil {
		events = []domain.AlertEvent{}
	}

	return &ListFailedEventsOutput{Body: events}, nil
}

// MarkRead marks an event as read and returns it.
func (h *EventsHandler) MarkRead(
	ctx context.Context,
	input *MarkEventReadInput,
) (*MarkEventReadOutput, error) {
	if err := h.store.MarkEventRead(ctx, input.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, huma.Error404NotFound("event not found")
		}
		return nil, huma.Error500InternalServerError("marking event read failed: " + err.Error())
	}

	event, err := h.store.GetAlertEvent(ctx, input.ID)
	if err != nil {
		return nil, huma.Error500InternalServerError("reloading event failed: " + err.Error())
	}

	return &MarkEventReadOutput{Body: *event}, nil
}

// RegisterEventRoutes registers alert event endpoints with the Huma API.
func RegisterEventRoutes(api huma.API, h *EventsHandler) {
	huma.Register(api, huma.Operation{
		OperationID: "list-alert-events",
		Method:      http.MethodGet,
		Path:        "/api/v1/events",
		Summary:     "List alert events",
		Description: "Returns fired alerts with optional filters, newest first.",
		Tags:        []string{"alerts"},
		Errors:      []int{http.StatusInternalServerError},
	}, h.ListEvents)

	huma.Register(api, huma.Operation{
		OperationID: "list-delivery-failed-events",
		Method:      http.MethodGet,
		Path:        "/api/v1/events/delivery-failed",
		Summary:     "List delivery-failed events",
		Description: "Returns events whose notification delivery exhausted its retry budget.",
		Tags:        []string{"alerts"},
		Errors:      []int{http.StatusInternalServerError},
	}, h.ListFailedEvents)

	huma.Register(api, huma.Operation{
		OperationID: "get-alert-event",
		Method:      http.MethodGet,
		Path:        "/api/v1/events/{id}",
		Summary:     "Get an alert event by ID",
		Description: "Returns a single fired alert.",
		Tags:        []string{"alerts"},
		Errors:      []int{http.StatusNotFound},
	}, h.GetEvent)

	huma.Register(api, huma.Operation{
		OperationID: "mark-alert-event-read",
		Method:      http.MethodPost,
		Path:        "/api/v1/events/{id}/read",
		Summary:     "Mark an alert event read",
		Description: "Marks a fired alert as read and returns the updated event.",
		Tags:        []string{"alerts"},
		Errors:      []int{http.StatusNotFound, http.StatusInternalServerError},
	}, h.MarkRead)
}
