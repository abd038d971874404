package models

import (
	"errors"
	"time"
)

// Traffic source labels as reported by the App Store analytics backend.
// Only these two participate in the two-path funnel model; other labels
// (e.g. referrals, web) are still aggregated in summaries and series.
const (
	SourceSearch = "App_Store_Search"
	SourceBrowse = "App_Store_Browse"
)

// RawMetricRow is one observation for a calendar date, app and traffic
// source. Rows are immutable once fetched; downstream aggregates always
// recompute conversion rate rather than trusting the reported value.
type RawMetricRow struct {
	Date             string  `json:"date"` // ISO calendar day, e.g. "2024-01-31"
	AppID            string  `json:"app_id"`
	TrafficSource    string  `json:"traffic_source"`
	Impressions      int64   `json:"impressions"`
	Downloads        int64   `json:"downloads"`
	ProductPageViews int64   `json:"product_page_views"`
	ConversionRate   float64 `json:"conversion_rate,omitempty"` // advisory only
}

// FetchMeta carries diagnostic and picker metadata returned alongside the
// rows. AvailableTrafficSources is the complete set observed in the range
// regardless of any client-side filter applied later.
type FetchMeta struct {
	AvailableTrafficSources []string `json:"available_traffic_sources"`
	TotalApps               int      `json:"total_apps"`
	RowCount                int      `json:"row_count"`
	QueryDurationMS         int64    `json:"query_duration_ms"`
}

// FetchResult is the atomic unit of hydration: the full unfiltered row set
// for one (org, date range, app set) request plus its metadata. RequestID
// and FetchedAt together form the hydration identity.
type FetchResult struct {
	OrgID     string       `json:"org_id"`
	Range     DateRange    `json:"range"`
	AppIDs    []string     `json:"app_ids,omitempty"`
	Rows      []RawMetricRow `json:"rows"`
	Meta      FetchMeta    `json:"meta"`
	RequestID string       `json:"request_id"`
	FetchedAt time.Time    `json:"fetched_at"`
}

// Identity returns the hydration identity of the result. Two results with
// the same identity are treated as the same payload by the data store.
func (fr *FetchResult) Identity() string {
	return fr.RequestID + "@" + fr.FetchedAt.UTC().Format(time.RFC3339Nano)
}

// DateRange is an inclusive ISO date range.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Validate checks the range is well formed. Callers must validate before
// invoking a fetch; the fetcher itself does not re-check.
func (r DateRange) Validate() error {
	if r.Start == "" || r.End == "" {
		return errors.New("date range start and end are required")
	}
	if _, err := time.Parse("2006-01-02", r.Start); err != nil {
		return errors.New("start is not an ISO date")
	}
	if _, err := time.Parse("2006-01-02", r.End); err != nil {
		return errors.New("end is not an ISO date")
	}
	if r.Start > r.End {
		return errors.New("start must not be after end")
	}
	return nil
}

// Days returns the inclusive length of the range in days.
func (r DateRange) Days() int {
	s, err1 := time.Parse("2006-01-02", r.Start)
	e, err2 := time.Parse("2006-01-02", r.End)
	if err1 != nil || err2 != nil {
		return 0
	}
	return int(e.Sub(s).Hours()/24) + 1
}

// PreviousPeriod returns the adjacent range of equal length immediately
// before this one. The boundary policy is the default; see
// insights.ComparisonPolicy for alternatives.
func (r DateRange) PreviousPeriod() DateRange {
	s, err1 := time.Parse("2006-01-02", r.Start)
	e, err2 := time.Parse("2006-01-02", r.End)
	if err1 != nil || err2 != nil {
		return DateRange{}
	}
	span := e.Sub(s) + 24*time.Hour
	return DateRange{
		Start: s.Add(-span).Format("2006-01-02"),
		End:   e.Add(-span).Format("2006-01-02"),
	}
}

// MetricValue is a value plus its percentage change vs a comparison period.
type MetricValue struct {
	Value float64 `json:"value"`
	Delta float64 `json:"delta"`
}

// Summary holds range-wide totals with period-over-period deltas.
type Summary struct {
	Impressions      MetricValue `json:"impressions"`
	Downloads        MetricValue `json:"downloads"`
	ProductPageViews MetricValue `json:"product_page_views"`
	ConversionRate   MetricValue `json:"conversion_rate"`
}

// TimeSeriesPoint is one calendar day's aggregated totals.
type TimeSeriesPoint struct {
	Date             string  `json:"date"`
	Impressions      int64   `json:"impressions"`
	Downloads        int64   `json:"downloads"`
	ProductPageViews int64   `json:"product_page_views"`
	ConversionRate   float64 `json:"conversion_rate"`
}

// TwoPathMetrics aggregates one acquisition path (search or browse) and
// splits downloads into direct vs product-page-driven installs.
// DirectInstalls + PDPDrivenInstalls always equals Downloads.
type TwoPathMetrics struct {
	Impressions       int64   `json:"impressions"`
	Downloads         int64   `json:"downloads"`
	ProductPageViews  int64   `json:"product_page_views"`
	DirectInstalls    float64 `json:"direct_installs"`
	PDPDrivenInstalls float64 `json:"pdp_driven_installs"`
	DirectShare       float64 `json:"direct_share"` // percent of downloads
}

// TwoPathBreakdown pairs the two modeled acquisition paths.
type TwoPathBreakdown struct {
	Search TwoPathMetrics `json:"search"`
	Browse TwoPathMetrics `json:"browse"`
}

// DerivedKPIs are the named business ratios computed from the two paths.
// All ratios are zero when their denominators are zero.
type DerivedKPIs struct {
	SearchCVR         float64 `json:"search_cvr"`          // search downloads / search impressions (%)
	BrowseCVR         float64 `json:"browse_cvr"`          // browse downloads / browse impressions (%)
	SearchShare       float64 `json:"search_share"`        // search downloads / total downloads (%)
	BrowseShare       float64 `json:"browse_share"`        // browse downloads / total downloads (%)
	SearchDirectShare float64 `json:"search_direct_share"` // search direct installs / search downloads (%)
	BrowseDirectShare float64 `json:"browse_direct_share"` // browse direct installs / browse downloads (%)
	PDPConversion     float64 `json:"pdp_conversion"`      // pdp-driven installs / product page views (%)
	SearchToBrowse    float64 `json:"search_to_browse"`    // search downloads per browse download
}

// StabilityScore grades a time series for volatility and trend.
// Score is in [0,100]; higher means smoother and more consistently trending.
type StabilityScore struct {
	Score      float64 `json:"score"`
	Volatility float64 `json:"volatility"` // mean absolute day-over-day relative change
	Trend      float64 `json:"trend"`      // normalized slope, negative is declining
	Points     int     `json:"points"`
}

// Opportunity is one ranked improvement lever.
type Opportunity struct {
	Lever     string  `json:"lever"`
	Current   float64 `json:"current"`
	Reference float64 `json:"reference"`
	Impact    float64 `json:"impact"` // projected extra downloads per period
}

// Scenario is one simulated hypothetical outcome.
type Scenario struct {
	Name                 string  `json:"name"`
	ProjectedImpressions float64 `json:"projected_impressions"`
	ProjectedDownloads   float64 `json:"projected_downloads"`
	ProjectedCVR         float64 `json:"projected_cvr"`
	DownloadsLift        float64 `json:"downloads_lift"` // percent vs current
}
