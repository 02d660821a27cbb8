package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"pricewatch/internal/store"
	domain "pricewatch/pkg/types"
)

// ProductsProvider defines the store methods required by the products handler.
type ProductsProvider interface {
	CreateProduct(ctx context.Context, p *domain.Product) error
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetProductByURL(ctx context.Context, sourceURL string) (*domain.Product, error)
	ListProducts(ctx context.Context, opts *store.ProductQuery) ([]domain.Product, int, error)
	UpdateProductTracking(ctx context.Context, id string, cadenceSeconds int, enabled bool) error
	DeleteProduct(ctx context.Context, id string) error
	GetRetailer(ctx context.Context, id string) (*domain.Retailer, error)
	ListPricePoints(ctx context.Context, productID string, from, to time.Time, limit int) ([]domain.PricePoint, error)
	ListDailySummaries(ctx context.Context, productID string, from, to time.Time) ([]domain.DailySummary, error)
}

// ProductsHandler handles tracked-product endpoints.
type ProductsHandler struct {
	store ProductsProvider
}

// NewProductsHandler creates a new ProductsHandler.
func NewProductsHandler(s ProductsProvider) *ProductsHandler {
	return &ProductsHandler{store: s}
}

const (
	defaultCadenceSeconds = 21600 // 6h
	defaultHistoryWindow  = 90 * 24 * time.Hour
	defaultHistoryLimit   = 500

	// defaultPriorityScore is the middle score assigned to new products
	// until the scoring job first visits them.
	defaultPriorityScore = 5
)

// --- Input/Output types ---

// ListProductsInput is the input for listing products with optional filters.
type ListProductsInput struct {
	RetailerID string `query:"retailer_id" doc:"Filter by retailer UUID"`
	Enabled    string `query:"enabled"     doc:"Filter by enabled flag"      enum:"true,false,"`
	Stale      string `query:"stale"       doc:"Filter by stale flag"        enum:"true,false,"`
	Available  string `query:"available"   doc:"Filter by availability"      enum:"true,false,"`
	Search     string `query:"search"      doc:"Substring match on title"`
	Limit      int    `query:"limit"       doc:"Number of results (default 50)" minimum:"1" maximum:"500"`
	Offset     int    `query:"offset"      doc:"Pagination offset"              minimum:"0"`
	OrderBy    string `query:"order_by"    doc:"Sort field"                  enum:"updated_at,price,priority,title,"`
}

// ListProductsOutput is the response for listing products.
type ListProductsOutput struct {
	Body struct {
		Products []domain.Product `json:"products"`
		Total    int              `json:"total"`
		Limit    int              `json:"limit"`
		Offset   int              `json:"offset"`
	}
}

// GetProductInput is the input for getting a single product.
type GetProductInput struct {
	ID string `path:"id" doc:"Product UUID"`
}

// GetProductOutput is the response for getting a single product.
type GetProductOutput struct {
	Body domain.Product
}

// CreateProductInput is the request body for tracking a new product.
type CreateProductInput struct {
	Body struct {
		RetailerID     string `json:"retailer_id"               doc:"Retailer UUID"                              minLength:"1"`
		SourceURL      string `json:"source_url"                doc:"Product page URL to scrape"                 minLength:"1" example:"https://shop.example.com/p/4k-monitor"`
		Title          string `json:"title,omitempty"           doc:"Display title (scraper may refine it)"`
		SKU            string `json:"sku,omitempty"             doc:"Retailer SKU"`
		Currency       string `json:"currency,omitempty"        doc:"ISO currency code (default USD)"            example:"USD"`
		CadenceSeconds int    `json:"cadence_seconds,omitempty" doc:"Scrape cadence in seconds (default 21600)"  minimum:"60"`
	}
}

// CreateProductOutput is the response for tracking a new product.
type CreateProductOutput struct {
	Body domain.Product
}

// UpdateTrackingInput is the request for changing a product's tracking settings.
type UpdateTrackingInput struct {
	ID   string `path:"id" doc:"Product UUID"`
	Body struct {
		CadenceSeconds int  `json:"cadence_seconds" doc:"Scrape cadence in seconds" minimum:"60"`
		Enabled        bool `json:"enabled"         doc:"Whether the product is scraped at all"`
	}
}

// UpdateTrackingOutput is the response for a tracking update.
type UpdateTrackingOutput struct {
	Body domain.Product
}

// DeleteProductInput is the input for deleting a product.
type DeleteProductInput struct {
	ID string `path:"id" doc:"Product UUID"`
}

// DeleteProductOutput is the (empty) response for a product deletion.
type DeleteProductOutput struct{}

// PriceHistoryInput is the input for a product's raw price history.
type PriceHistoryInput struct {
	ID    string    `path:"id"     doc:"Product UUID"`
	From  time.Time `query:"from"  doc:"Window start (default 90 days before to)"`
	To    time.Time `query:"to"    doc:"Window end (default now)"`
	Limit int       `query:"limit" doc:"Maximum points (default 500)" minimum:"1" maximum:"5000"`
}

// PriceHistoryOutput is the response for a product's raw price history.
type PriceHistoryOutput struct {
	Body struct {
		ProductID string             `json:"product_id"`
		From      time.Time          `json:"from"`
		To        time.Time          `json:"to"`
		Points    []domain.PricePoint `json:"points"`
	}
}

// DailySummariesInput is the input for a product's daily price rollups.
type DailySummariesInput struct {
	ID   string    `path:"id"    doc:"Product UUID"`
	From time.Time `query:"from" doc:"Window start (default 90 days before to)"`
	To   time.Time `query:"to"   doc:"Window end (default now)"`
}

// DailySummariesOutput is the response for a product's daily price rollups.
type DailySummariesOutput struct {
	Body struct {
		ProductID string                `json:"product_id"`
		Days      []domain.DailySummary `json:"days"`
	}
}

// --- Handlers ---

// ListProducts returns tracked products with optional filters and pagination.
func (h *ProductsHandler) ListProducts(
	ctx context.Context,
	input *ListProductsInput,
) (*ListProductsOutput, error) {
	q := &store.ProductQuery{
		Offset:  input.Offset,
		OrderBy: input.OrderBy,
	}

	if input.RetailerID != "" {
		q.RetailerID = &input.RetailerID
	}

	if input.Enabled != "" {
		v := input.Enabled == "true"
		q.Enabled = &v
	}

	if input.Stale != "" {
		v := input.Stale == "true"
		q.Stale = &v
	}

	if input.Available != "" {
		v := input.Available == "true"
		q.Available = &v
	}

	if input.Search != "" {
		q.Search = &input.Search
	}

	if input.Limit != 0 {
		q.Limit = input.Limit
	}

	products, total, err := h.store.ListProducts(ctx, q)
	if err != nil {
		return nil, huma.Error500InternalServerError("product query failed: " + err.Error())
	}

	if products == nil {
		products = []domain.Product{}
	}

	resp := &ListProductsOutput{}
	resp.Body.Products = products
	resp.Body.Total = total
	resp.Body.Limit = q.Limit
	resp.Body.Offset = q.Offset

	return resp, nil
}

// GetProduct returns a single product by ID.
func (h *ProductsHandler) GetProduct(
	ctx context.Context,
	input *GetProductInput,
) (*GetProductOutput, error) {
	product, err := h.store.GetProduct(ctx, input.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, huma.Error404NotFound("product not found")
		}
		return nil, huma.Error500InternalServerError("getting product failed: " + err.Error())
	}

	return &GetProductOutput{Body: *product}, nil
}

// CreateProduct starts tracking a new product URL.
func (h *ProductsHandler) CreateProduct(
	ctx context.Context,
	input *CreateProductInput,
) (*CreateProductOutput, error) {
	u, err := url.Parse(input.Body.SourceURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, huma.Error422UnprocessableEntity("source_url must be an absolute http(s) URL")
	}

	if _, err := h.store.GetRetailer(ctx, input.Body.RetailerID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, huma.Error422UnprocessableEntity("retailer " + input.Body.RetailerID + " not found")
		}
		return nil, huma.Error500InternalServerError("checking retailer failed: " + err.Error())
	}

	existing, err := h.store.GetProductByURL(ctx, input.Body.SourceURL)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, huma.Error500InternalServerError("checking existing product failed: " + err.Error())
	}
	if existing != nil {
		return nil, huma.Error409Conflict("product already tracked as " + existing.ID)
	}

	product := &domain.Product{
		RetailerID:     input.Body.RetailerID,
		SourceURL:      input.Body.SourceURL,
		Title:          input.Body.Title,
		SKU:            input.Body.SKU,
		Currency:       input.Body.Currency,
		CadenceSeconds: input.Body.CadenceSeconds,
		PriorityScore:  defaultPriorityScore,
		Enabled:        true,
	}
	if product.Currency == "" {
		product.Currency = "USD"
	}
	if product.CadenceSeconds == 0 {
		product.CadenceSeconds = defaultCadenceSeconds
	}

	if err := h.store.CreateProduct(ctx, product); err != nil {
		return nil, huma.Error500InternalServerError("creating product failed: " + err.Error())
	}

	return &CreateProductOutput{Body: *product}, nil
}

// UpdateTracking changes a product's scrape cadence and enabled flag.
func (h *ProductsHandler) UpdateTracking(
	ctx context.Context,
	input *UpdateTrackingInput,
) (*UpdateTrackingOutput, error) {
	err := h.store.UpdateProductTracking(ctx, input.ID, input.Body.CadenceSeconds, input.Body.Enabled)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, huma.Error404NotFound("product not found")
		}
		return nil, huma.Error500InternalServerError("updating tracking failed: " + err.Error())
	}

	product, err := h.store.GetProduct(ctx, input.ID)
	if err != nil {
		return nil, huma.Error500InternalServerError("reloading product failed: " + err.Error())
	}

	return &UpdateTrackingOutput{Body: *product}, nil
}

// DeleteProduct stops tracking a product and removes its history.
func (h *ProductsHandler) DeleteProduct(
	ctx context.Context,
	input *DeleteProductInput,
) (*DeleteProductOutput, error) {
	if err := h.store.DeleteProduct(ctx, input.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, huma.Error404NotFound("product not found")
		}
		return nil, huma.Error500InternalServerError("deleting product failed: " + err.Error())
	}

	return &DeleteProductOutput{}, nil
}

// PriceHistory returns raw observed price points within a window.
func (h *ProductsHandler) PriceHistory(
	ctx context.Context,
	input *PriceHistoryInput,
) (*PriceHistoryOutput, error) {
	if _, err := h.store.GetProduct(ctx, input.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, huma.Error404NotFound("product not found")
		}
		return nil, huma.Error500InternalServerError("getting product failed: " + err.Error())
	}

	from, to := historyWindow(input.From, input.To)

	limit := input.Limit
	if limit == 0 {
		limit = defaultHistoryLimit
	}

	points, err := h.store.ListPricePoints(ctx, input.ID, from, to, limit)
	if err != nil {
		return nil, huma.Error500InternalServerError("loading price points failed: " + err.Error())
	}

	if points == nil {
		points = []domain.PricePoint{}
	}

	resp := &PriceHistoryOutput{}
	resp.Body.ProductID = input.ID
	resp.Body.From = from
	resp.Body.To = to
	resp.Body.Points = points

	return resp, nil
}

// DailySummaries returns the per-day open/close/low/high rollups within a window.
func (h *ProductsHandler) DailySummaries(
	ctx context.Context,
	input *DailySummariesInput,
) (*DailySummariesOutput, error) {
	if _, err := h.store.GetProduct(ctx, input.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, huma.Error404NotFound("product not found")
		}
		return nil, huma.Error500InternalServerError("getting product failed: " + err.Error())
	}

	from, to := historyWindow(input.From, input.To)

	days, err := h.store.ListDailySummaries(ctx, input.ID, from, to)
	if err != nil {
		return nil, huma.Error500InternalServerError("loading daily summaries failed: " + err.Error())
	}

	if days == nil {
		days = []domain.DailySummary{}
	}

	resp := &DailySummariesOutput{}
	resp.Body.ProductID = input.ID
	resp.Body.Days = days

	return resp, nil
}

// historyWindow fills zero bounds: to defaults to now, from to 90 days
// before to.
func historyWindow(from, to time.Time) (time.Time, time.Time) {
	if to.IsZero() {
		to = time.Now().UTC()
	}
	if from.IsZero() {
		from = to.Add(-defaultHistoryWindow)
	}
	return from, to
}

// RegisterProductRoutes registers product endpoints with the Huma API.
func RegisterProductRoutes(api huma.API, h *ProductsHandler) {
	huma.Register(api, huma.Operation{
		OperationID: "list-products",
		Method:      http.MethodGet,
		Path:        "/api/v1/products",
		Summary:     "List tracked products",
		Description: "Returns tracked products with optional filters for retailer, flags, title search, and pagination.",
		Tags:        []string{"products"},
		Errors:      []int{http.StatusInternalServerError},
	}, h.ListProducts)

	huma.Register(api, huma.Operation{
		OperationID: "get-product",
		Method:      http.MethodGet,
		Path:        "/api/v1/products/{id}",
		Summary:     "Get a product by ID",
		Description: "Returns a single tracked product with its denormalized price summary.",
		Tags:        []string{"products"},
		Errors:      []int{http.StatusNotFound},
	}, h.GetProduct)

	huma.Register(api, huma.Operation{
		OperationID:   "create-product",
		Method:        http.MethodPost,
		Path:          "/api/v1/products",
		Summary:       "Track a new product",
		Description:   "Registers a product URL for scheduled scraping under an existing retailer.",
		Tags:          []string{"products"},
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusUnprocessableEntity,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, h.CreateProduct)

	huma.Register(api, huma.Operation{
		OperationID: "update-product-tracking",
		Method:      http.MethodPatch,
		Path:        "/api/v1/products/{id}",
		Summary:     "Update tracking settings",
		Description: "Changes a product's scrape cadence and enabled flag.",
		Tags:        []string{"products"},
		Errors:      []int{http.StatusNotFound, http.StatusInternalServerError},
	}, h.UpdateTracking)

	huma.Register(api, huma.Operation{
		OperationID:   "delete-product",
		Method:        http.MethodDelete,
		Path:          "/api/v1/products/{id}",
		Summary:       "Delete a product",
		Description:   "Stops tracking a product and removes its price history.",
		Tags:          []string{"products"},
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound, http.StatusInternalServerError},
	}, h.DeleteProduct)

	huma.Register(api, huma.Operation{
		OperationID: "get-price-history",
		Method:      http.MethodGet,
		Path:        "/api/v1/products/{id}/history",
		Summary:     "Get raw price history",
		Description: "Returns observed price points for a product within a time window, oldest first.",
		Tags:        []string{"products"},
		Errors:      []int{http.StatusNotFound, http.StatusInternalServerError},
	}, h.PriceHistory)

	huma.Register(api, huma.Operation{
		OperationID: "get-daily-summaries",
		Method:      http.MethodGet,
		Path:        "/api/v1/products/{id}/daily",
		Summary:     "Get daily price rollups",
		Description: "Returns per-day open/close/low/high aggregates maintained incrementally at ingest time.",
		Tags:        []string{"products"},
		Errors:      []int{http.StatusNotFound, http.StatusInternalServerError},
	}, h.DailySummaries)
}
