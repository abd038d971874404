package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/orbitlab/aso-pulse/internal/metrics"
	"github.com/orbitlab/aso-pulse/internal/models"
)

// HTTPClient is the transport seam for tests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPSource fetches metrics from the analytics proxy over HTTP/JSON.
type HTTPSource struct {
	client  HTTPClient
	baseURL string
	apiKey  string
	logger  *zap.Logger
	metrics *metrics.Metrics
	retry   backoff
}

// NewHTTPSource builds an HTTPSource. metrics may be nil.
func NewHTTPSource(client HTTPClient, baseURL, apiKey string, logger *zap.Logger, m *metrics.Metrics) *HTTPSource {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	s := &HTTPSource{
		client:  client,
		baseURL: baseURL,
		apiKey:  apiKey,
		logger:  logger,
		metrics: m,
	}
	s.retry = backoff{
		base:       500 * time.Millisecond,
		maxDelay:   4 * time.Second,
		maxRetries: 1,
		onRetry: func() {
			if m != nil {
				m.FetchRetries.Inc()
			}
		},
	}
	return s
}

// Name identifies the source in logs and metrics.
func (s *HTTPSource) Name() string { return "http" }

// request body sent to the proxy. Metrics selection and granularity are
// fixed; traffic source is deliberately absent.
type fetchRequest struct {
	OrganizationID string   `json:"organization_id"`
	StartDate      string   `json:"start_date"`
	EndDate        string   `json:"end_date"`
	AppIDs         []string `json:"app_ids,omitempty"`
	Metrics        []string `json:"metrics"`
	Granularity    string   `json:"granularity"`
}

type rowDTO struct {
	Date             string  `json:"date"`
	AppID            string  `json:"app_id"`
	TrafficSource    string  `json:"traffic_source"`
	Impressions      int64   `json:"impressions"`
	Downloads        int64   `json:"downloads"`
	ProductPageViews int64   `json:"product_page_views"`
	ConversionRate   float64 `json:"conversion_rate"`
}

type metaDTO struct {
	TrafficSources  []string `json:"traffic_sources"`
	TotalApps       int      `json:"total_apps"`
	RowCount        int      `json:"row_count"`
	QueryDurationMS int64    `json:"query_duration_ms"`
}

// innerPayload is the backend's data/meta/scope structure once any outer
// envelope has been removed.
type innerPayload struct {
	Data []rowDTO        `json:"data"`
	Meta metaDTO         `json:"meta"`
	Scope json.RawMessage `json:"scope"`
}

// Fetch issues one request for the full unfiltered row set. One bounded
// retry with exponential backoff; shape mismatches and 404s are permanent
// and returned immediately.
func (s *HTTPSource) Fetch(ctx context.Context, q Query) (*models.FetchResult, error) {
	started := time.Now()

	var inner *innerPayload
	err := s.retry.do(ctx, func() error {
		var attemptErr error
		inner, attemptErr = s.fetchOnce(ctx, q)
		return attemptErr
	})

	elapsed := time.Since(started)
	if err != nil {
		s.recordFailure(err, elapsed)
		return nil, err
	}

	fr := resultFromPayload(q, inner)
	if s.metrics != nil {
		s.metrics.RecordFetch(s.Name(), "ok", len(fr.Rows), elapsed)
	}
	if s.logger != nil {
		s.logger.Info("fetched app store metrics",
			zap.String("org_id", q.OrgID),
			zap.String("start", q.Range.Start),
			zap.String("end", q.Range.End),
			zap.Int("rows", inner.Meta.RowCount),
			zap.Int("total_apps", inner.Meta.TotalApps),
			zap.Int64("upstream_query_ms", inner.Meta.QueryDurationMS),
			zap.Duration("elapsed", elapsed),
		)
	}
	return fr, nil
}

func (s *HTTPSource) fetchOnce(ctx context.Context, q Query) (*innerPayload, error) {
	body, _ := json.Marshal(fetchRequest{
		OrganizationID: q.OrgID,
		StartDate:      q.Range.Start,
		EndDate:        q.Range.End,
		AppIDs:         q.AppIDs,
		Metrics:        metricSelection,
		Granularity:    granularityDaily,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/analytics/app-store", bytes.NewReader(body))
	if err != nil {
		return nil, &FetchError{Source: s.Name(), Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &FetchError{Source: s.Name(), Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, &FetchError{Source: s.Name(), Message: "reading response: " + err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := upstreamMessage(raw)
		return nil, &FetchError{
			Source:   s.Name(),
			Status:   resp.StatusCode,
			Message:  msg,
			NotFound: resp.StatusCode == http.StatusNotFound,
		}
	}

	return s.normalize(raw)
}

// normalize accepts the two known response shapes: the bare
// {data, meta, scope} payload, or the same payload wrapped in a
// {success, data, error} envelope. Anything else is a ShapeError.
func (s *HTTPSource) normalize(raw []byte) (*innerPayload, error) {
	var outer struct {
		Success *bool           `json:"success"`
		Error   string          `json:"error"`
		Data    json.RawMessage `json:"data"`
		Meta    json.RawMessage `json:"meta"`
		Scope   json.RawMessage `json:"scope"`
	}
	if err := json.Unmarshal(raw, &outer); err != nil {
		return nil, &ShapeError{Reason: "response is not a JSON object"}
	}
	if len(outer.Data) == 0 {
		return nil, &ShapeError{Reason: "missing data field"}
	}

	data := bytes.TrimSpace(outer.Data)
	switch data[0] {
	case '[':
		// Bare shape: data is the row array itself.
		var inner innerPayload
		if err := json.Unmarshal(outer.Data, &inner.Data); err != nil {
			return nil, &ShapeError{Reason: "data is not a row array"}
		}
		if len(outer.Meta) > 0 {
			if err := json.Unmarshal(outer.Meta, &inner.Meta); err != nil {
				return nil, &ShapeError{Reason: "meta is not an object"}
			}
		}
		inner.Scope = outer.Scope
		return &inner, nil

	case '{':
		// Wrapped envelope: success/error around the inner payload.
		if outer.Success != nil && !*outer.Success {
			return nil, &FetchError{Source: s.Name(), Message: envelopeError(outer.Error)}
		}
		var inner innerPayload
		if err := json.Unmarshal(outer.Data, &inner); err != nil {
			return nil, &ShapeError{Reason: "wrapped data is not a payload object"}
		}
		if inner.Data == nil {
			return nil, &ShapeError{Reason: "wrapped payload has no data array"}
		}
		return &inner, nil

	default:
		return nil, &ShapeError{Reason: "data is neither array nor object"}
	}
}

func (s *HTTPSource) recordFailure(err error, elapsed time.Duration) {
	kind := "fetch_error"
	if IsShapeError(err) {
		kind = "shape_error"
	}
	if s.metrics != nil {
		s.metrics.RecordFetch(s.Name(), kind, 0, elapsed)
		s.metrics.RecordFetchError(s.Name(), kind)
	}
	if s.logger != nil {
		if kind == "shape_error" {
			// Contract drift, not a transient failure; keep it loud.
			s.logger.Error("upstream response shape changed", zap.Error(err))
		} else {
			s.logger.Warn("upstream fetch failed", zap.Error(err))
		}
	}
}

// resultFromPayload converts DTOs to the domain FetchResult and stamps the
// hydration identity. When the upstream omits the traffic source list the
// set observed in rows stands in, keeping the superset invariant intact.
func resultFromPayload(q Query, inner *innerPayload) *models.FetchResult {
	rows := make([]models.RawMetricRow, len(inner.Data))
	for i, d := range inner.Data {
		rows[i] = models.RawMetricRow(d)
	}

	sources := inner.Meta.TrafficSources
	if len(sources) == 0 {
		seen := make(map[string]struct{})
		for _, r := range rows {
			if _, ok := seen[r.TrafficSource]; !ok {
				seen[r.TrafficSource] = struct{}{}
				sources = append(sources, r.TrafficSource)
			}
		}
	}

	return &models.FetchResult{
		OrgID:  q.OrgID,
		Range:  q.Range,
		AppIDs: q.AppIDs,
		Rows:   rows,
		Meta: models.FetchMeta{
			AvailableTrafficSources: sources,
			TotalApps:               inner.Meta.TotalApps,
			RowCount:                len(rows),
			QueryDurationMS:         inner.Meta.QueryDurationMS,
		},
		RequestID: uuid.NewString(),
		FetchedAt: time.Now().UTC(),
	}
}

func upstreamMessage(raw []byte) string {
	var e struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &e) == nil {
		if e.Error != "" {
			return e.Error
		}
		if e.Message != "" {
			return e.Message
		}
	}
	if len(raw) > 256 {
		raw = raw[:256]
	}
	return string(raw)
}

func envelopeError(msg string) string {
	if msg == "" {
		return "service reported failure"
	}
	return msg
}
