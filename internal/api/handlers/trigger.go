package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"pricewatch/internal/engine"
	"pricewatch/internal/store"
)

// TriggerProvider defines the engine operations exposed for manual runs.
type TriggerProvider interface {
	EnqueueDue(ctx context.Context) (int, error)
	EnqueueCheck(ctx context.Context, productID string) error
	RefreshPriorities(ctx context.Context) (int, error)
	EnqueueMaintenance(ctx context.Context) (int, error)
}

// TriggerHandler handles manual trigger requests for scheduler work.
type TriggerHandler struct {
	engine TriggerProvider
}

// NewTriggerHandler creates a new TriggerHandler.
func NewTriggerHandler(eng TriggerProvider) *TriggerHandler {
	return &TriggerHandler{engine: eng}
}

// --- Input/Output types ---

// TriggerCountOutput is the response for triggers that enqueue or update rows.
type TriggerCountOutput struct {
	Body struct {
		Status string `json:"status" example:"enqueued 12 tasks" doc:"Human-readable outcome"`
		Count  int    `json:"count"  example:"12"                doc:"Rows enqueued or updated"`
	}
}

// CheckNowInput is the input for an immediate product scrape.
type CheckNowInput struct {
	ID string `path:"id" doc:"Product UUID"`
}

// CheckNowOutput is the response for an immediate product scrape.
type CheckNowOutput struct {
	Body StatusResponse
}

// --- Handlers ---

// EnqueueDue enqueues scrape tasks for every product whose cadence elapsed.
func (h *TriggerHandler) EnqueueDue(ctx context.Context, _ *struct{}) (*TriggerCountOutput, error) {
	n, err := h.engine.EnqueueDue(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("enqueue failed: " + err.Error())
	}

	return countOutput("enqueued "+strconv.Itoa(n)+" tasks", n), nil
}

// CheckNow enqueues an immediate high-priority scrape for one product.
func (h *TriggerHandler) CheckNow(ctx context.Context, input *CheckNowInput) (*CheckNowOutput, error) {
	switch err := h.engine.EnqueueCheck(ctx, input.ID); {
	case errors.Is(err, store.ErrNotFound):
		return nil, huma.Error404NotFound("product not found")
	case errors.Is(err, engine.ErrProductDisabled):
		return nil, huma.Error422UnprocessableEntity("product is disabled")
	case errors.Is(err, store.ErrDuplicateTask):
		return nil, huma.Error409Conflict("a scrape for this product is already queued")
	case err != nil:
		return nil, huma.Error500InternalServerError("enqueue failed: " + err.Error())
	}

	return &CheckNowOutput{Body: StatusResponse{Status: "scrape enqueued"}}, nil
}

// RefreshPriorities recomputes priority scores for all enabled products.
func (h *TriggerHandler) RefreshPriorities(ctx context.Context, _ *struct{}) (*TriggerCountOutput, error) {
	n, err := h.engine.RefreshPriorities(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("priority refresh failed: " + err.Error())
	}

	return countOutput("rescored "+strconv.Itoa(n)+" products", n), nil
}

// EnqueueMaintenance enqueues a retention sweep task.
func (h *TriggerHandler) EnqueueMaintenance(ctx context.Context, _ *struct{}) (*TriggerCountOutput, error) {
	n, err := h.engine.EnqueueMaintenance(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("maintenance enqueue failed: " + err.Error())
	}

	status := "retention sweep enqueued"
	if n == 0 {
		status = "retention sweep already pending"
	}
	return countOutput(status, n), nil
}

func countOutput(status string, n int) *TriggerCountOutput {
	out := &TriggerCountOutput{}
	out.Body.Status = status
	out.Body.Count = n
	return out
}

// RegisterTriggerRoutes registers manual trigger endpoints with the Huma API.
func RegisterTriggerRoutes(api huma.API, h *TriggerHandler) {
	huma.Register(api, huma.Operation{
		OperationID: "trigger-enqueue-due",
		Method:      http.MethodPost,
		Path:        "/api/v1/trigger/enqueue-due",
		Summary:     "Enqueue due scrapes",
		Description: "Runs one scheduler pass: enqueues a scrape task for every enabled product whose cadence has elapsed.",
		Tags:        []string{"trigger"},
		Errors:      []int{http.StatusInternalServerError},
	}, h.EnqueueDue)

	huma.Register(api, huma.Operation{
		OperationID: "trigger-check-now",
		Method:      http.MethodPost,
		Path:        "/api/v1/products/{id}/check",
		Summary:     "Check a product now",
		Description: "Enqueues an immediate high-priority scrape for one product, ignoring its cadence.",
		Tags:        []string{"trigger"},
		Errors: []int{
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, h.CheckNow)

	huma.Register(api, huma.Operation{
		OperationID: "trigger-refresh-priorities",
		Method:      http.MethodPost,
		Path:        "/api/v1/trigger/refresh-priorities",
		Summary:     "Refresh priority scores",
		Description: "Recomputes every enabled product's priority score from volatility, watchers, price, and staleness.",
		Tags:        []string{"trigger"},
		Errors:      []int{http.StatusInternalServerError},
	}, h.RefreshPriorities)

	huma.Register(api, huma.Operation{
		OperationID: "trigger-maintenance",
		Method:      http.MethodPost,
		Path:        "/api/v1/trigger/maintenance",
		Summary:     "Enqueue a retention sweep",
		Description: "Enqueues a maintenance task that prunes old price points, failures, job runs, and delivery attempts.",
		Tags:        []string{"trigger"},
		Errors:      []int{http.StatusInternalServerError},
	}, h.EnqueueMaintenance)
}
