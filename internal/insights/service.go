// Package insights orchestrates the analytics pipeline: validate the
// request, fetch raw rows once per (org, range, app set), hydrate the data
// store exactly once per fetch, aggregate synchronously against the
// hydrated rows, and hand the heavier derivation to the background
// dispatcher. Traffic-source filter changes re-run only the aggregation
// step; they never refetch or rehydrate.
package insights

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/orbitlab/aso-pulse/internal/aggregate"
	"github.com/orbitlab/aso-pulse/internal/dispatch"
	"github.com/orbitlab/aso-pulse/internal/ingest"
	"github.com/orbitlab/aso-pulse/internal/metrics"
	"github.com/orbitlab/aso-pulse/internal/models"
	"github.com/orbitlab/aso-pulse/internal/store"
)

// ComparisonPolicy selects the previous-period boundary for delta
// computation. The exact product requirement is still open, so the policy
// is configurable rather than hard-coded.
type ComparisonPolicy string

const (
	// ComparePreviousPeriod shifts the range back by its own length.
	ComparePreviousPeriod ComparisonPolicy = "previous_period"
	// CompareNone disables deltas.
	CompareNone ComparisonPolicy = "none"
)

// PreviousRange resolves the comparison window for r, if any.
func (p ComparisonPolicy) PreviousRange(r models.DateRange) (models.DateRange, bool) {
	switch p {
	case CompareNone:
		return models.DateRange{}, false
	default:
		return r.PreviousPeriod(), true
	}
}

// ValidationError is a caller-side request problem detected before any
// fetch is attempted.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// ErrSuperseded marks a fetch whose result arrived after a newer query
// replaced it; the result is discarded, not hydrated.
var ErrSuperseded = errors.New("insights: fetch superseded by a newer query")

// OverviewRequest is one dashboard query.
type OverviewRequest struct {
	OrgID   string
	Range   models.DateRange
	AppIDs  []string
	Sources []string // traffic-source filter; empty means no filter
}

// Overview is the full aggregated dashboard view.
type Overview struct {
	Summary          models.Summary           `json:"summary"`
	TimeSeries       []models.TimeSeriesPoint `json:"time_series"`
	TwoPath          models.TwoPathBreakdown  `json:"two_path"`
	KPIs             models.DerivedKPIs       `json:"kpis"`
	AvailableSources []string                 `json:"available_traffic_sources"`
	FilteredSources  []string                 `json:"filtered_sources,omitempty"`
	TotalApps        int                      `json:"total_apps"`
}

// Intelligence is the dispatcher's latest output plus its live state.
type Intelligence struct {
	Results   *dispatch.Results `json:"results,omitempty"`
	Computing bool              `json:"computing"`
	Step      string            `json:"step,omitempty"`
	Progress  float64           `json:"progress"`
}

// Service wires the fetcher, data store, snapshot cache and dispatcher.
type Service struct {
	source     ingest.MetricsSource
	store      *store.DataStore
	dispatcher *dispatch.Dispatcher
	cache      *SnapshotCache // optional
	comparison ComparisonPolicy
	logger     *zap.Logger
	metrics    *metrics.Metrics

	mu      sync.Mutex
	seq     uint64 // latest accepted query; guards against stale fetch results
	prevKey string // identity of the memoized comparison window
	prevFR  *models.FetchResult
}

// NewService builds the orchestration service. cache and m may be nil.
func NewService(src ingest.MetricsSource, ds *store.DataStore, disp *dispatch.Dispatcher, cache *SnapshotCache, policy ComparisonPolicy, logger *zap.Logger, m *metrics.Metrics) *Service {
	if policy == "" {
		policy = ComparePreviousPeriod
	}
	return &Service{
		source:     src,
		store:      ds,
		dispatcher: disp,
		cache:      cache,
		comparison: policy,
		logger:     logger,
		metrics:    m,
	}
}

// Overview validates the request, ensures the data store is hydrated with
// the requested payload (fetching only when the query actually changed),
// and aggregates the filtered rows. On fetch failure the previously
// hydrated state is left untouched, so callers can keep serving
// last-known-good data.
func (s *Service) Overview(ctx context.Context, req OverviewRequest) (*Overview, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	q := ingest.Query{OrgID: req.OrgID, Range: req.Range, AppIDs: req.AppIDs}

	if !s.hydratedFor(q) {
		if err := s.refresh(ctx, q); err != nil {
			return nil, err
		}
	}

	rows, meta, ok := s.store.Snapshot()
	if !ok {
		return nil, &ingest.FetchError{Source: s.source.Name(), Message: "data store empty after hydration"}
	}

	filtered := aggregate.FilterRows(rows, req.Sources)
	series := aggregate.ToTimeSeries(filtered)
	twoPath := aggregate.TwoPath(filtered)
	kpis := aggregate.DeriveKPIs(twoPath.Search, twoPath.Browse)

	summary := s.summarize(ctx, q, filtered, req.Sources)

	s.dispatcher.Submit(dispatch.Payload{
		OrgID:  req.OrgID,
		Series: series,
		Search: twoPath.Search,
		Browse: twoPath.Browse,
		KPIs:   kpis,
		Totals: aggregate.SumRows(filtered),
	})

	return &Overview{
		Summary:          summary,
		TimeSeries:       series,
		TwoPath:          twoPath,
		KPIs:             kpis,
		AvailableSources: meta.AvailableTrafficSources,
		FilteredSources:  req.Sources,
		TotalApps:        meta.TotalApps,
	}, nil
}

// Intelligence returns the latest background computation state scoped to
// one organization. Results and progress computed for another tenant are
// never exposed; the caller sees an empty state instead.
func (s *Service) Intelligence(orgID string) Intelligence {
	out := Intelligence{}
	if res := s.dispatcher.Results(); res != nil && res.OrgID == orgID {
		out.Results = res
	}
	if s.dispatcher.Org() == orgID {
		step, frac := s.dispatcher.Progress()
		out.Computing = s.dispatcher.Computing()
		out.Step = step
		out.Progress = frac
	}
	return out
}

// hydratedFor reports whether the store already holds this exact query's
// payload. Filter-only changes land here and skip the fetch entirely.
func (s *Service) hydratedFor(q ingest.Query) bool {
	cur := s.store.Current()
	if cur == nil {
		return false
	}
	return cur.OrgID == q.OrgID &&
		cur.Range == q.Range &&
		appSetKey(cur.AppIDs) == appSetKey(q.AppIDs)
}

// refresh fetches q (through the snapshot cache when warm) and hydrates
// the store. A result arriving after a newer query started is discarded.
func (s *Service) refresh(ctx context.Context, q ingest.Query) error {
	s.mu.Lock()
	s.seq++
	mySeq := s.seq
	s.mu.Unlock()

	fr, err := s.fetch(ctx, q)
	if err != nil {
		return err
	}

	s.mu.Lock()
	stale := s.seq != mySeq
	s.mu.Unlock()
	if stale {
		if s.metrics != nil {
			s.metrics.StaleFetches.Inc()
		}
		s.logger.Info("discarding stale fetch result",
			zap.String("org_id", q.OrgID),
			zap.String("request_id", fr.RequestID),
		)
		return ErrSuperseded
	}

	applied := s.store.HydrateFromFetch(fr)
	if s.metrics != nil {
		s.metrics.RecordHydration(applied)
	}
	return nil
}

func (s *Service) fetch(ctx context.Context, q ingest.Query) (*models.FetchResult, error) {
	if s.cache != nil {
		if fr := s.cache.Get(ctx, q); fr != nil {
			return fr, nil
		}
	}
	fr, err := s.source.Fetch(ctx, q)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Put(ctx, q, fr)
	}
	return fr, nil
}

// summarize computes totals with period-over-period deltas when the
// comparison window can be resolved. The comparison FetchResult is
// memoized in-process keyed by its query identity, so filter-only changes
// re-filter already-fetched rows instead of invoking the fetcher again.
// Comparison fetch failures only cost the deltas, never the whole
// response.
func (s *Service) summarize(ctx context.Context, q ingest.Query, filtered []models.RawMetricRow, sources []string) models.Summary {
	prevRange, ok := s.comparison.PreviousRange(q.Range)
	if !ok {
		return aggregate.Summarize(filtered)
	}

	prevQ := ingest.Query{OrgID: q.OrgID, Range: prevRange, AppIDs: q.AppIDs}
	key := queryKey(prevQ)

	s.mu.Lock()
	prevFR := s.prevFR
	if s.prevKey != key {
		prevFR = nil
	}
	s.mu.Unlock()

	if prevFR == nil {
		var err error
		prevFR, err = s.fetch(ctx, prevQ)
		if err != nil {
			s.logger.Warn("comparison period fetch failed, serving zero deltas",
				zap.String("org_id", q.OrgID),
				zap.String("prev_start", prevRange.Start),
				zap.String("prev_end", prevRange.End),
				zap.Error(err),
			)
			return aggregate.Summarize(filtered)
		}
		s.mu.Lock()
		s.prevKey, s.prevFR = key, prevFR
		s.mu.Unlock()
	}

	prevRows := aggregate.FilterRows(prevFR.Rows, sources)
	return aggregate.SummarizeWithComparison(filtered, prevRows)
}

func validate(req OverviewRequest) error {
	if req.OrgID == "" {
		return &ValidationError{Msg: "organization id is required"}
	}
	if err := req.Range.Validate(); err != nil {
		return &ValidationError{Msg: err.Error()}
	}
	return nil
}

// queryKey is the in-process identity of a fetch query, insensitive to
// app-set ordering.
func queryKey(q ingest.Query) string {
	return q.OrgID + "|" + q.Range.Start + "|" + q.Range.End + "|" + appSetKey(q.AppIDs)
}

func appSetKey(appIDs []string) string {
	if len(appIDs) == 0 {
		return ""
	}
	sorted := make([]string, len(appIDs))
	copy(sorted, appIDs)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}
