package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shopspring/decimal"

	"pricewatch/internal/store"
	domain "pricewatch/pkg/types"
)

// RulesProvider defines the store methods required by the rules handler.
type RulesProvider interface {
	CreateAlertRule(ctx context.Context, r *domain.AlertRule) error
	GetAlertRule(ctx context.Context, id string) (*domain.AlertRule, error)
	ListAlertRules(ctx context.Context, productID, userID string, enabledOnly bool) ([]domain.AlertRule, error)
	SetAlertRuleEnabled(ctx context.Context, id string, enabled bool) error
	DeleteAlertRule(ctx context.Context, id string) error
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
}

// RulesHandler handles alert rule endpoints.
type RulesHandler struct {
	store RulesProvider
}

// NewRulesHandler creates a new RulesHandler.
func NewRulesHandler(s RulesProvider) *RulesHandler {
	return &RulesHandler{store: s}
}

// --- Input/Output types ---

// ListRulesInput is the input for listing alert rules.
type ListRulesInput struct {
	ProductID   string `query:"product_id"   doc:"Filter by product UUID"`
	UserID      string `query:"user_id"      doc:"Filter by user UUID"`
	EnabledOnly bool   `query:"enabled_only" doc:"Return only enabled rules"`
}

// ListRulesOutput is the response for listing alert rules.
type ListRulesOutput struct {
	Body []domain.AlertRule
}

// GetRuleInput is the input for getting a single alert rule.
type GetRuleInput struct {
	ID string `path:"id" doc:"Rule UUID"`
}

// GetRuleOutput is the response for getting a single alert rule.
type GetRuleOutput struct {
	Body domain.AlertRule
}

// CreateRuleInput is the request body for creating an alert rule.
type CreateRuleInput struct {
	Body struct {
		UserID    string `json:"user_id"             doc:"Owning user UUID"    minLength:"1"`
		ProductID string `json:"product_id"          doc:"Watched product UUID" minLength:"1"`
		Kind      string `json:"kind"                doc:"Alert kind"          enum:"price_drop,target_reached,back_in_stock,lowest_ever"`
		Threshold string `json:"threshold,omitempty" doc:"Target price as a decimal string, required for target_reached" example:"89.99"`
	}
}

// CreateRuleOutput is the response for creating an alert rule.
type CreateRuleOutput struct {
	Body domain.AlertRule
}

// SetRuleEnabledInput is the request for enabling or disabling a rule.
type SetRuleEnabledInput struct {
	ID   string `path:"id" doc:"Rule UUID"`
	Body struct {
		Enabled bool `json:"enabled" doc:"Whether the rule is evaluated"`
	}
}

// SetRuleEnabledOutput is the response for enabling or disabling a rule.
type SetRuleEnabledOutput struct {
	Body domain.AlertRule
}

// DeleteRuleInput is the input for deleting a rule.
type DeleteRuleInput struct {
	ID string `path:"id" doc:"Rule UUID"`
}

// DeleteRuleOutput is the (empty) response for a rule deletion.
type DeleteRuleOutput struct{}

// --- Handlers ---

// ListRules returns alert rules filtered by product and user.
func (h *RulesHandler) ListRules(
	ctx context.Context,
	input *ListRulesInput,
) (*ListRulesOutput, error) {
	rules, err := h.store.ListAlertRules(ctx, input.ProductID, input.UserID, input.EnabledOnly)
	if err != nil {
		return nil, huma.Error500InternalServerError("rule query failed: " + err.Error())
	}

	if rules == nil {
		rules = []domain.AlertRule{}
	}

	return &ListRulesOutput{Body: rules}, nil
}

// GetRule returns a single alert rule by ID.
func (h *RulesHandler) GetRule(
	ctx context.Context,
	input *GetRuleInput,
) (*GetRuleOutput, error) {
	rule, err := h.store.GetAlertRule(ctx, input.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, huma.Error404NotFound("rule not found")
		}
		return nil, huma.Error500InternalServerError("getting rule failed: " + err.Error())
	}

	return &GetRuleOutput{Body: *rule}, nil
}

// CreateRule creates an alert rule against a tracked product.
func (h *RulesHandler) CreateRule(
	ctx context.Context,
	input *CreateRuleInput,
) (*CreateRuleOutput, error) {
	kind := domain.AlertKind(input.Body.Kind)

	var threshold *decimal.Decimal
	if input.Body.Threshold != "" {
		d, err := decimal.NewFromString(input.Body.Threshold)
		if err != nil {
			return nil, huma.Error422UnprocessableEntity("threshold is not a valid decimal: " + input.Body.Threshold)
		}
		if d.LessThanOrEqual(decimal.Zero) {
			return nil, huma.Error422UnprocessableEntity("threshold must be positive")
		}
		threshold = &d
	}

	if kind.NeedsThreshold() && threshold == nil {
		return nil, huma.Error422UnprocessableEntity("kind " + input.Body.Kind + " requires a threshold")
	}
	if !kind.NeedsThreshold() && threshold != nil {
		return nil, huma.Error422UnprocessableEntity("kind " + input.Body.Kind + " does not take a threshold")
	}

	if _, err := h.store.GetProduct(ctx, input.Body.ProductID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, huma.Error422UnprocessableEntity("product " + input.Body.ProductID + " not found")
		}
		return nil, huma.Error500InternalServerError("checking product failed: " + err.Error())
	}

	rule := &domain.AlertRule{
		UserID:    input.Body.UserID,
		ProductID: input.Body.ProductID,
		Kind:      kind,
		Threshold: threshold,
		Enabled:   true,
	}
	if err := h.store.CreateAlertRule(ctx, rule); err != nil {
		return nil, huma.Error500InternalServerError("creating rule failed: " + err.Error())
	}

	return &CreateRuleOutput{Body: *rule}, nil
}

// SetRuleEnabled enables or disables a rule without deleting it.
func (h *RulesHandler) SetRuleEnabled(
	ctx context.Context,
	input *SetRuleEnabledInput,
) (*SetRuleEnabledOutput, error) {
	if err := h.store.SetAlertRuleEnabled(ctx, input.ID, input.Body.Enabled); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, huma.Error404NotFound("rule not found")
		}
		return nil, huma.Error500InternalServerError("updating rule failed: " + err.Error())
	}

	rule, err := h.store.GetAlertRule(ctx, input.ID)
	if err != nil {
		return nil, huma.Error500InternalServerError("reloading rule failed: " + err.Error())
	}

	return &SetRuleEnabledOutput{Body: *rule}, nil
}

// DeleteRule removes a rule. Its past events remain.
func (h *RulesHandler) DeleteRule(
	ctx context.Context,
	input *DeleteRuleInput,
) (*DeleteRuleOutput, error) {
	if err := h.store.DeleteAlertRule(ctx, input.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, huma.Error404NotFound("rule not found")
		}
		return nil, huma.Error500InternalServerError("deleting rule failed: " + err.Error())
	}

	return &DeleteRuleOutput{}, nil
}

// RegisterRuleRoutes registers alert rule endpoints with the Huma API.
func RegisterRuleRoutes(api huma.API, h *RulesHandler) {
	huma.Register(api, huma.Operation{
		OperationID: "list-alert-rules",
		Method:      http.MethodGet,
		Path:        "/api/v1/rules",
		Summary:     "List alert rules",
		Description: "Returns alert rules, optionally filtered by product, user, and enabled status.",
		Tags:        []string{"alerts"},
		Errors:      []int{http.StatusInternalServerError},
	}, h.ListRules)

	huma.Register(api, huma.Operation{
		OperationID: "get-alert-rule",
		Method:      http.MethodGet,
		Path:        "/api/v1/rules/{id}",
		Summary:     "Get an alert rule by ID",
		Description: "Returns a single alert rule.",
		Tags:        []string{"alerts"},
		Errors:      []int{http.StatusNotFound},
	}, h.GetRule)

	huma.Register(api, huma.Operation{
		OperationID:   "create-alert-rule",
		Method:        http.MethodPost,
		Path:          "/api/v1/rules",
		Summary:       "Create an alert rule",
		Description: "Creates a standing alert against a tracked product. " +
			"target_reached rules require a threshold; other kinds reject one.",
		Tags:          []string{"alerts"},
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, h.CreateRule)

	huma.Register(api, huma.Operation{
		OperationID: "set-alert-rule-enabled",
		Method:      http.MethodPatch,
		Path:        "/api/v1/rules/{id}",
		Summary:     "Enable or disable an alert rule",
		Description: "Toggles rule evaluation without losing the rule or its event history.",
		Tags:        []string{"alerts"},
		Errors:      []int{http.StatusNotFound, http.StatusInternalServerError},
	}, h.SetRuleEnabled)

	huma.Register(api, huma.Operation{
		OperationID:   "delete-alert-rule",
		Method:        http.MethodDelete,
		Path:          "/api/v1/rules/{id}",
		Summary:       "Delete an alert rule",
		Description:   "Removes a rule. Events it already fired are kept.",
		Tags:          []string{"alerts"},
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound, http.StatusInternalServerError},
	}, h.DeleteRule)
}
