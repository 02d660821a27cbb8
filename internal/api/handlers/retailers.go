package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/danielgtaylor/huma/v2"

	"pricewatch/internal/store"
	domain "pricewatch/pkg/types"
)

// RetailersProvider defines the store methods required by the retailers handler.
type RetailersProvider interface {
	UpsertRetailer(ctx context.Context, r *domain.Retailer) error
	GetRetailer(ctx context.Context, id string) (*domain.Retailer, error)
	ListRetailers(ctx context.Context, activeOnly bool) ([]domain.Retailer, error)
}

// RetailersHandler handles retailer endpoints.
type RetailersHandler struct {
	store RetailersProvider
}

// NewRetailersHandler creates a new RetailersHandler.
func NewRetailersHandler(s RetailersProvider) *RetailersHandler {
	return &RetailersHandler{store: s}
}

const (
	defaultRequestsPerMinute = 30
	defaultBurst             = 5
)

// --- Input/Output types ---

// ListRetailersInput is the input for listing retailers.
type ListRetailersInput struct {
	ActiveOnly bool `query:"active_only" doc:"Return only active retailers"`
}

// ListRetailersOutput is the response for listing retailers.
type ListRetailersOutput struct {
	Body []domain.Retailer
}

// GetRetailerInput is the input for getting a single retailer.
type GetRetailerInput struct {
	ID string `path:"id" doc:"Retailer UUID"`
}

// GetRetailerOutput is the response for getting a single retailer.
type GetRetailerOutput struct {
	Body domain.Retailer
}

// UpsertRetailerInput is the request body for creating or updating a retailer.
type UpsertRetailerInput struct {
	Body struct {
		ID                string `json:"id,omitempty"                  doc:"Retailer UUID; omit to create"`
		Name              string `json:"name"                          doc:"Display name"                          minLength:"1"`
		BaseURL           string `json:"base_url"                      doc:"Site root URL"                         minLength:"1" example:"https://shop.example.com"`
		RequestsPerMinute int    `json:"requests_per_minute,omitempty" doc:"Politeness rate limit (default 30)"    minimum:"1" maximum:"600"`
		Burst             int    `json:"burst,omitempty"               doc:"Rate limit burst size (default 5)"     minimum:"1" maximum:"100"`
		Active            *bool  `json:"active,omitempty"              doc:"Whether the retailer is scraped (default true)"`
	}
}

// UpsertRetailerOutput is the response for creating or updating a retailer.
type UpsertRetailerOutput struct {
	Body domain.Retailer
}

// --- Handlers ---

// ListRetailers returns configured retailers.
func (h *RetailersHandler) ListRetailers(
	ctx context.Context,
	input *ListRetailersInput,
) (*ListRetailersOutput, error) {
	retailers, err := h.store.ListRetailers(ctx, input.ActiveOnly)
	if err != nil {
		return nil, huma.Error500InternalServerError("retailer query failed: " + err.Error())
	}

	if retailers == nil {
		retailers = []domain.Retailer{}
	}

	return &ListRetailersOutput{Body: retailers}, nil
}

// GetRetailer returns a single retailer by ID.
func (h *RetailersHandler) GetRetailer(
	ctx context.Context,
	input *GetRetailerInput,
) (*GetRetailerOutput, error) {
	retailer, err := h.store.GetRetailer(ctx, input.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, huma.Error404NotFound("retailer not found")
		}
		return nil, huma.Error500InternalServerError("getting retailer failed: " + err.Error())
	}

	return &GetRetailerOutput{Body: *retailer}, nil
}

// UpsertRetailer creates a retailer or updates an existing one by ID.
func (h *RetailersHandler) UpsertRetailer(
	ctx context.Context,
	input *UpsertRetailerInput,
) (*UpsertRetailerOutput, error) {
	u, err := url.Parse(input.Body.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, huma.Error422UnprocessableEntity("base_url must be an absolute http(s) URL")
	}

	retailer := &domain.Retailer{
		ID:                input.Body.ID,
		Name:              input.Body.Name,
		BaseURL:           input.Body.BaseURL,
		RequestsPerMinute: input.Body.RequestsPerMinute,
		Burst:             input.Body.Burst,
		Active:            true,
	}
	if retailer.RequestsPerMinute == 0 {
		retailer.RequestsPerMinute = defaultRequestsPerMinute
	}
	if retailer.Burst == 0 {
		retailer.Burst = defaultBurst
	}
	if input.Body.Active != nil {
		retailer.Active = *input.Body.Active
	}

	if err := h.store.UpsertRetailer(ctx, retailer); err != nil {
		return nil, huma.Error500InternalServerError("saving retailer failed: " + err.Error())
	}

	return &UpsertRetailerOutput{Body: *retailer}, nil
}

// RegisterRetailerRoutes registers retailer endpoints with the Huma API.
func RegisterRetailerRoutes(api huma.API, h *RetailersHandler) {
	huma.Register(api, huma.Operation{
		OperationID: "list-retailers",
		Method:      http.MethodGet,
		Path:        "/api/v1/retailers",
		Summary:     "List retailers",
		Description: "Returns configured retailers with their politeness limits.",
		Tags:        []string{"retailers"},
		Errors:      []int{http.StatusInternalServerError},
	}, h.ListRetailers)

	huma.Register(api, huma.Operation{
		OperationID: "get-retailer",
		Method:      http.MethodGet,
		Path:        "/api/v1/retailers/{id}",
		Summary:     "Get a retailer by ID",
		Description: "Returns a single retailer.",
		Tags:        []string{"retailers"},
		Errors:      []int{http.StatusNotFound},
	}, h.GetRetailer)

	huma.Register(api, huma.Operation{
		OperationID:   "upsert-retailer",
		Method:        http.MethodPut,
		Path:          "/api/v1/retailers",
		Summary:       "Create or update a retailer",
		Description:   "Creates a retailer, or updates one when the body carries an existing ID. Rate limit changes apply on the next scheduler pass.",
		Tags:          []string{"retailers"},
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, h.UpsertRetailer)
}
