package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricewatch/internal/api/handlers"
	"pricewatch/internal/engine"
	"pricewatch/internal/store"
)

// mockTriggerProvider is a test double for TriggerProvider.
type mockTriggerProvider struct {
	dueCount     int
	dueErr       error
	checkErr     error
	checkedIDs   []string
	refreshCount int
	refreshErr   error
	maintCount   int
	maintErr     error
}

func (m *mockTriggerProvider) EnqueueDue(_ context.Context) (int, error) {
	return m.dueCount, m.dueErr
}

func (m *mockTriggerProvider) EnqueueCheck(_ context.Context, productID string) error {
	m.checkedIDs = append(m.checkedIDs, productID)
	return m.checkErr
}

func (m *mockTriggerProvider) RefreshPriorities(_ context.Context) (int, error) {
	return m.refreshCount, m.refreshErr
}

func (m *mockTriggerProvider) EnqueueMaintenance(_ context.Context) (int, error) {
	return m.maintCount, m.maintErr
}

var _ handlers.TriggerProvider = (*mockTriggerProvider)(nil)

func newTriggerAPI(t *testing.T, m *mockTriggerProvider) humatest.TestAPI {
	t.Helper()
	_, api := humatest.New(t)
	handlers.RegisterTriggerRoutes(api, handlers.NewTriggerHandler(m))
	return api
}

func TestEnqueueDue_Success(t *testing.T) {
	t.Parallel()

	api := newTriggerAPI(t, &mockTriggerProvider{dueCount: 3})

	resp := api.Post("/api/v1/trigger/enqueue-due")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "enqueued 3 tasks")
	assert.Contains(t, resp.Body.String(), `"count":3`)
}

func TestEnqueueDue_Error(t *testing.T) {
	t.Parallel()

	api := newTriggerAPI(t, &mockTriggerProvider{dueErr: errors.New("db down")})

	resp := api.Post("/api/v1/trigger/enqueue-due")
	require.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.Contains(t, resp.Body.String(), "enqueue failed")
}

func TestCheckNow_Success(t *testing.T) {
	t.Parallel()

	m := &mockTriggerProvider{}
	api := newTriggerAPI(t, m)

	resp := api.Post("/api/v1/products/p1/check")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "scrape enqueued")
	assert.Equal(t, []string{"p1"}, m.checkedIDs)
}

func TestCheckNow_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		wantCode int
		wantBody string
	}{
		{"unknown product", store.ErrNotFound, http.StatusNotFound, "product not found"},
		{"disabled product", engine.ErrProductDisabled, http.StatusUnprocessableEntity, "product is disabled"},
		{"already queued", store.ErrDuplicateTask, http.StatusConflict, "already queued"},
		{"store failure", errors.New("db down"), http.StatusInternalServerError, "enqueue failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			api := newTriggerAPI(t, &mockTriggerProvider{checkErr: tt.err})

			resp := api.Post("/api/v1/products/p1/check")
			require.Equal(t, tt.wantCode, resp.Code)
			assert.Contains(t, resp.Body.String(), tt.wantBody)
		})
	}
}

func TestRefreshPriorities_Success(t *testing.T) {
	t.Parallel()

	api := newTriggerAPI(t, &mockTriggerProvider{refreshCount: 7})

	resp := api.Post("/api/v1/trigger/refresh-priorities")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "rescored 7 products")
}

func TestRefreshPriorities_Error(t *testing.T) {
	t.Parallel()

	api := newTriggerAPI(t, &mockTriggerProvider{refreshErr: errors.New("db down")})

	resp := api.Post("/api/v1/trigger/refresh-priorities")
	require.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.Contains(t, resp.Body.String(), "priority refresh failed")
}

func TestEnqueueMaintenance(t *testing.T) {
	t.Parallel()

	api := newTriggerAPI(t, &mockTriggerProvider{maintCount: 1})

	resp := api.Post("/api/v1/trigger/maintenance")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "retention sweep enqueued")
}

func TestEnqueueMaintenance_AlreadyPending(t *testing.T) {
	t.Parallel()

	api := newTriggerAPI(t, &mockTriggerProvider{maintCount: 0})

	resp := api.Post("/api/v1/trigger/maintenance")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "retention sweep already pending")
	assert.Contains(t, resp.Body.String(), `"count":0`)
}
