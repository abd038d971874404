package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/orbitlab/aso-pulse/internal/config"
	"github.com/orbitlab/aso-pulse/internal/dispatch"
	"github.com/orbitlab/aso-pulse/internal/ingest"
	"github.com/orbitlab/aso-pulse/internal/insights"
	"github.com/orbitlab/aso-pulse/internal/models"
)

type stubSource struct {
	calls int32
	err   error
}

func (s *stubSource) Name() string { return "stub" }

func (s *stubSource) Fetch(ctx context.Context, q ingest.Query) (*models.FetchResult, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.err != nil {
		return nil, s.err
	}
	return &models.FetchResult{
		OrgID: q.OrgID,
		Range: q.Range,
		Rows: []models.RawMetricRow{
			{Date: q.Range.Start, AppID: "a", TrafficSource: models.SourceSearch, Impressions: 1000, Downloads: 100, ProductPageViews: 250},
			{Date: q.Range.Start, AppID: "a", TrafficSource: models.SourceBrowse, Impressions: 400, Downloads: 12, ProductPageViews: 80},
		},
		Meta: models.FetchMeta{
			AvailableTrafficSources: []string{models.SourceSearch, models.SourceBrowse},
			TotalApps:               1,
			RowCount:                2,
		},
		RequestID: "stub-req",
		FetchedAt: time.Now().UTC(),
	}, nil
}

func newTestHandler(t *testing.T, src ingest.MetricsSource) http.Handler {
	t.Helper()
	d := dispatch.New(zap.NewNop(), nil, 5*time.Millisecond)
	t.Cleanup(d.Close)
	return NewServer(&Dependencies{
		Config: &config.Config{
			Insights: config.InsightsConfig{ComparisonPolicy: "none"},
		},
		Logger:     zap.NewNop(),
		Source:     src,
		Dispatcher: d,
	})
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	h := newTestHandler(t, &stubSource{})
	rec := doJSON(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestOrgAndAppCRUD(t *testing.T) {
	h := newTestHandler(t, &stubSource{})

	rec := doJSON(t, h, http.MethodPost, "/api/v1/orgs", map[string]string{"name": "Orbit Labs"})
	require.Equal(t, http.StatusOK, rec.Code)

	var org models.Organization
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &org))
	require.NotEmpty(t, org.ID)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/orgs/"+org.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/v1/orgs/"+org.ID+"/apps",
		map[string]string{"store_id": "123", "name": "PulseTracker"})
	require.Equal(t, http.StatusOK, rec.Code)

	var app models.App
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &app))
	assert.Equal(t, org.ID, app.OrgID, "org id comes from the path")

	rec = doJSON(t, h, http.MethodGet, "/api/v1/orgs/"+org.ID+"/apps", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodDelete, "/api/v1/apps/"+app.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/apps/"+app.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOrgValidationErrors(t *testing.T) {
	h := newTestHandler(t, &stubSource{})

	rec := doJSON(t, h, http.MethodPost, "/api/v1/orgs", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/orgs/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, h, http.MethodPut, "/api/v1/orgs", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestOverviewEndpoint(t *testing.T) {
	src := &stubSource{}
	h := newTestHandler(t, src)

	rec := doJSON(t, h, http.MethodGet,
		"/api/v1/orgs/org-1/insights/overview?start=2024-01-08&end=2024-01-14", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var ov insights.Overview
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ov))
	assert.Equal(t, 1400.0, ov.Summary.Impressions.Value)
	assert.Len(t, ov.AvailableSources, 2)

	// Filter change served from the hydrated store.
	rec = doJSON(t, h, http.MethodGet,
		"/api/v1/orgs/org-1/insights/overview?start=2024-01-08&end=2024-01-14&sources=App_Store_Search", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ov))
	assert.Equal(t, 1000.0, ov.Summary.Impressions.Value)
	assert.Len(t, ov.AvailableSources, 2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&src.calls))
}

func TestOverviewErrorMapping(t *testing.T) {
	t.Run("missing range is 400", func(t *testing.T) {
		h := newTestHandler(t, &stubSource{})
		rec := doJSON(t, h, http.MethodGet, "/api/v1/orgs/org-1/insights/overview", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("upstream not found is 404", func(t *testing.T) {
		h := newTestHandler(t, &stubSource{err: &ingest.FetchError{Source: "stub", Status: 404, NotFound: true}})
		rec := doJSON(t, h, http.MethodGet,
			"/api/v1/orgs/org-1/insights/overview?start=2024-01-08&end=2024-01-14", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("upstream failure is 502", func(t *testing.T) {
		h := newTestHandler(t, &stubSource{err: &ingest.FetchError{Source: "stub", Status: 500, Message: "boom"}})
		rec := doJSON(t, h, http.MethodGet,
			"/api/v1/orgs/org-1/insights/overview?start=2024-01-08&end=2024-01-14", nil)
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})

	t.Run("shape error is 502", func(t *testing.T) {
		h := newTestHandler(t, &stubSource{err: &ingest.ShapeError{Reason: "data missing"}})
		rec := doJSON(t, h, http.MethodGet,
			"/api/v1/orgs/org-1/insights/overview?start=2024-01-08&end=2024-01-14", nil)
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})

	t.Run("superseded request is 409", func(t *testing.T) {
		s := &Server{logger: zap.NewNop()}
		rec := httptest.NewRecorder()
		s.overviewError(rec, insights.ErrSuperseded)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestIntelligenceEndpoint(t *testing.T) {
	h := newTestHandler(t, &stubSource{})

	// Before any overview there are no results yet.
	rec := doJSON(t, h, http.MethodGet, "/api/v1/orgs/org-1/insights/intelligence", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var intel insights.Intelligence
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &intel))
	assert.Nil(t, intel.Results)

	// Trigger a computation and poll until the background pass lands.
	rec = doJSON(t, h, http.MethodGet,
		"/api/v1/orgs/org-1/insights/overview?start=2024-01-08&end=2024-01-14", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Eventually(t, func() bool {
		rec := doJSON(t, h, http.MethodGet, "/api/v1/orgs/org-1/insights/intelligence", nil)
		var intel insights.Intelligence
		if err := json.Unmarshal(rec.Body.Bytes(), &intel); err != nil {
			return false
		}
		return intel.Results != nil
	}, 2*time.Second, 10*time.Millisecond)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/orgs/org-1/insights/intelligence", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &intel))
	assert.Len(t, intel.Results.Opportunities, 5)
	assert.Len(t, intel.Results.Scenarios, 4)
}

// Polling the intelligence endpoint as a different organization must never
// return results computed for another tenant.
func TestIntelligenceTenantIsolation(t *testing.T) {
	h := newTestHandler(t, &stubSource{})

	rec := doJSON(t, h, http.MethodGet,
		"/api/v1/orgs/org-a/insights/overview?start=2024-01-08&end=2024-01-14", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Eventually(t, func() bool {
		rec := doJSON(t, h, http.MethodGet, "/api/v1/orgs/org-a/insights/intelligence", nil)
		var intel insights.Intelligence
		if err := json.Unmarshal(rec.Body.Bytes(), &intel); err != nil {
			return false
		}
		return intel.Results != nil
	}, 2*time.Second, 10*time.Millisecond)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/orgs/org-b/insights/intelligence", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var intel insights.Intelligence
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &intel))
	assert.Nil(t, intel.Results)
	assert.False(t, intel.Computing)
	assert.Zero(t, intel.Progress)
}
