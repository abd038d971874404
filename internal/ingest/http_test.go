package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/orbitlab/aso-pulse/internal/models"
)

func testQuery() Query {
	return Query{
		OrgID: "org-1",
		Range: models.DateRange{Start: "2024-01-01", End: "2024-01-31"},
	}
}

func newTestSource(t *testing.T, handler http.HandlerFunc) (*HTTPSource, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	s := NewHTTPSource(srv.Client(), srv.URL, "test-key", zap.NewNop(), nil)
	s.retry.base = time.Millisecond // keep retry tests fast
	return s, srv
}

const bareBody = `{
	"data": [
		{"date": "2024-01-01", "app_id": "app-1", "traffic_source": "App_Store_Search", "impressions": 100, "downloads": 10, "product_page_views": 20},
		{"date": "2024-01-01", "app_id": "app-1", "traffic_source": "App_Store_Browse", "impressions": 50, "downloads": 2, "product_page_views": 30}
	],
	"meta": {"traffic_sources": ["App_Store_Search", "App_Store_Browse", "App_Store_Today_Tab"], "total_apps": 3, "row_count": 2, "query_duration_ms": 42}
}`

const wrappedBody = `{
	"success": true,
	"data": {
		"data": [
			{"date": "2024-01-02", "app_id": "app-2", "traffic_source": "App_Store_Search", "impressions": 500, "downloads": 25, "product_page_views": 80}
		],
		"meta": {"traffic_sources": ["App_Store_Search"], "total_apps": 1, "row_count": 1}
	}
}`

func TestFetchBareShape(t *testing.T) {
	s, _ := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/analytics/app-store", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Write([]byte(bareBody))
	})

	fr, err := s.Fetch(context.Background(), testQuery())
	require.NoError(t, err)

	assert.Equal(t, "org-1", fr.OrgID)
	require.Len(t, fr.Rows, 2)
	assert.Equal(t, models.SourceSearch, fr.Rows[0].TrafficSource)
	assert.Equal(t, int64(100), fr.Rows[0].Impressions)

	// Picker metadata comes straight from the upstream, so it may list
	// sources that have no rows in this particular range.
	assert.Len(t, fr.Meta.AvailableTrafficSources, 3)
	assert.Equal(t, 3, fr.Meta.TotalApps)
	assert.Equal(t, 2, fr.Meta.RowCount)
	assert.Equal(t, int64(42), fr.Meta.QueryDurationMS)

	assert.NotEmpty(t, fr.RequestID)
	assert.False(t, fr.FetchedAt.IsZero())
}

func TestFetchWrappedShape(t *testing.T) {
	s, _ := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(wrappedBody))
	})

	fr, err := s.Fetch(context.Background(), testQuery())
	require.NoError(t, err)
	require.Len(t, fr.Rows, 1)
	assert.Equal(t, "app-2", fr.Rows[0].AppID)
	assert.Equal(t, 1, fr.Meta.TotalApps)
}

func TestFetchWrappedFailureEnvelope(t *testing.T) {
	s, _ := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": false, "data": {}, "error": "quota exceeded"}`))
	})

	_, err := s.Fetch(context.Background(), testQuery())
	require.Error(t, err)
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Contains(t, fe.Message, "quota exceeded")
}

func TestFetchShapeErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: "<html>gateway timeout</html>"},
		{name: "missing data field", body: `{"meta": {}}`},
		{name: "data is a scalar", body: `{"data": 42}`},
		{name: "wrapped payload without data array", body: `{"success": true, "data": {"meta": {}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			s, _ := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.Write([]byte(tt.body))
			})

			_, err := s.Fetch(context.Background(), testQuery())
			require.Error(t, err)
			assert.True(t, IsShapeError(err), "expected ShapeError, got %v", err)
			// Contract drift is permanent; no retry.
			assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
		})
	}
}

func TestFetchRetriesOnceOnServerError(t *testing.T) {
	var calls int32
	s, _ := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "backend unavailable", http.StatusBadGateway)
			return
		}
		w.Write([]byte(bareBody))
	})

	fr, err := s.Fetch(context.Background(), testQuery())
	require.NoError(t, err)
	assert.Len(t, fr.Rows, 2)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestFetchGivesUpAfterBoundedRetries(t *testing.T) {
	var calls int32
	s, _ := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, `{"error": "still broken"}`, http.StatusInternalServerError)
	})

	_, err := s.Fetch(context.Background(), testQuery())
	require.Error(t, err)
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusInternalServerError, fe.Status)
	assert.Equal(t, "still broken", fe.Message)
	// Initial attempt plus exactly one retry.
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestFetchNotFoundIsPermanent(t *testing.T) {
	var calls int32
	s, _ := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, `{"error": "unknown organization"}`, http.StatusNotFound)
	})

	_, err := s.Fetch(context.Background(), testQuery())
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestFetchFallsBackToRowDerivedSources(t *testing.T) {
	s, _ := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": [
			{"date": "2024-01-01", "app_id": "a", "traffic_source": "App_Store_Search", "impressions": 1},
			{"date": "2024-01-01", "app_id": "a", "traffic_source": "App_Store_Browse", "impressions": 1}
		]}`))
	})

	fr, err := s.Fetch(context.Background(), testQuery())
	require.NoError(t, err)
	assert.Equal(t, []string{models.SourceSearch, models.SourceBrowse}, fr.Meta.AvailableTrafficSources)
	assert.Equal(t, 2, fr.Meta.RowCount)
}
