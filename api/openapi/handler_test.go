package openapi_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricewatch/api/openapi"
	"pricewatch/internal/api/handlers"
	domain "pricewatch/pkg/types"
)

// stubJobs gives the spec a registered operation to render.
type stubJobs struct{}

func (stubJobs) ListLatestJobRuns(context.Context) ([]domain.JobRun, error) { return nil, nil }

func (stubJobs) ListJobRuns(context.Context, string, int) ([]domain.JobRun, error) {
	return nil, nil
}

var _ handlers.JobsProvider = stubJobs{}

func newTestServer(t *testing.T) *echo.Echo {
	t.Helper()

	_, api := humatest.New(t)
	handlers.RegisterJobRoutes(api, handlers.NewJobsHandler(&stubJobs{}))

	e := echo.New()
	openapi.RegisterRoutes(e, api)
	return e
}

func TestSwaggerJSON(t *testing.T) {
	t.Parallel()

	e := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/swagger/swagger.json", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "application/json")
	assert.Contains(t, rec.Body.String(), `"openapi"`)
	assert.Contains(t, rec.Body.String(), "list-jobs")
}

func TestSwaggerYAML(t *testing.T) {
	t.Parallel()

	e := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/swagger/swagger.yaml", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "openapi:")
}

func TestSwaggerUIRedirect(t *testing.T) {
	t.Parallel()

	e := newTestServer(t)

	for _, path := range []string{"/swagger", "/swagger/"} {
		req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		require.Equal(t, http.StatusMovedPermanently, rec.Code, "path %s", path)
		assert.Equal(t, "/swagger/index.html", rec.Header().Get(echo.HeaderLocation))
	}
}

func TestSwaggerUIPage(t *testing.T) {
	t.Parallel()

	e := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/swagger/index.html", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "SwaggerUIBundle")
}
