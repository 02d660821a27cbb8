package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"pricewatch/internal/store"
	domain "pricewatch/pkg/types"
)

// QueueProvider defines the store methods required by the queue handler.
type QueueProvider interface {
	QueueStats(ctx context.Context) ([]domain.QueueStats, error)
	ListTaskFailures(ctx context.Context, unacknowledgedOnly bool, limit int) ([]domain.TaskFailure, error)
	AcknowledgeTaskFailure(ctx context.Context, id string) error
}

// QueueHandler handles task queue observability endpoints.
type QueueHandler struct {
	store QueueProvider
}

// NewQueueHandler creates a new QueueHandler.
func NewQueueHandler(s QueueProvider) *QueueHandler {
	return &QueueHandler{store: s}
}

const defaultTaskFailuresLimit = 50

// --- Input/Output types ---

// QueueStatsOutput is the response for the queue depth snapshot.
type QueueStatsOutput struct {
	Body []domain.QueueStats
}

// ListTaskFailuresInput is the input for the failure triage list.
type ListTaskFailuresInput struct {
	All   bool `query:"all"   doc:"Include acknowledged failures"`
	Limit int  `query:"limit" doc:"Number of results (default 50)" minimum:"1" maximum:"500"`
}

// ListTaskFailuresOutput is the response for the failure triage list.
type ListTaskFailuresOutput struct {
	Body []domain.TaskFailure
}

// AckTaskFailureInput is the input for acknowledging a task failure.
type AckTaskFailureInput struct {
	ID string `path:"id" doc:"Failure UUID"`
}

// AckTaskFailureOutput is the response for acknowledging a task failure.
type AckTaskFailureOutput struct {
	Body StatusResponse
}

// --- Handlers ---

// GetQueueStats returns per-class backlog depth and oldest pending age.
func (h *QueueHandler) GetQueueStats(
	ctx context.Context,
	_ *struct{},
) (*QueueStatsOutput, error) {
	stats, err := h.store.QueueStats(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("queue stats failed: " + err.Error())
	}

	if stats == nil {
		stats = []domain.QueueStats{}
	}

	return &QueueStatsOutput{Body: stats}, nil
}

// ListTaskFailures returns terminally failed tasks awaiting triage.
func (h *QueueHandler) ListTaskFailures(
	ctx context.Context,
	input *ListTaskFailuresInput,
) (*ListTaskFailuresOutput, error) {
	limit := input.Limit
	if limit == 0 {
		limit = defaultTaskFailuresLimit
	}

	failures, err := h.store.ListTaskFailures(ctx, !input.All, limit)
	if err != nil {
		return nil, huma.Error500InternalServerError("task failure query failed: " + err.Error())
	}

	if failures == nil {
		failures = []domain.TaskFailure{}
	}

	return &ListTaskFailuresOutput{Body: failures}, nil
}

// AckTaskFailure marks a task failure as reviewed.
func (h *QueueHandler) AckTaskFailure(
	ctx context.Context,
	input *AckTaskFailureInput,
) (*AckTaskFailureOutput, error) {
	if err := h.store.AcknowledgeTaskFailure(ctx, input.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, huma.Error404NotFound("task failure not found")
		}
		return nil, huma.Error500InternalServerError("acknowledging failure failed: " + err.Error())
	}

	return &AckTaskFailureOutput{Body: StatusResponse{Status: "acknowledged"}}, nil
}

// RegisterQueueRoutes registers queue observability endpoints with the Huma API.
func RegisterQueueRoutes(api huma.API, h *QueueHandler) {
	huma.Register(api, huma.Operation{
		OperationID: "get-queue-stats",
		Method:      http.MethodGet,
		Path:        "/api/v1/queue/stats",
		Summary:     "Get queue statistics",
		Description: "Returns pending and running counts per priority class with the oldest pending age.",
		Tags:        []string{"queue"},
		Errors:      []int{http.StatusInternalServerError},
	}, h.GetQueueStats)

	huma.Register(api, huma.Operation{
		OperationID: "list-task-failures",
		Method:      http.MethodGet,
		Path:        "/api/v1/queue/failures",
		Summary:     "List task failures",
		Description: "Returns terminally failed tasks, limited to unacknowledged ones unless all=true.",
		Tags:        []string{"queue"},
		Errors:      []int{http.StatusInternalServerError},
	}, h.ListTaskFailures)

	huma.Register(api, huma.Operation{
		OperationID: "acknowledge-task-failure",
		Method:      http.MethodPost,
		Path:        "/api/v1/queue/failures/{id}/ack",
		Summary:     "Acknowledge a task failure",
		Description: "Marks a terminally failed task as reviewed so it drops out of the triage view.",
		Tags:        []string{"queue"},
		Errors:      []int{http.StatusNotFound, http.StatusInternalServerError},
	}, h.AckTaskFailure)
}
