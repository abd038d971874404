package ingest

import (
	"context"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/orbitlab/aso-pulse/internal/metrics"
	"github.com/orbitlab/aso-pulse/internal/models"
)

// ClickHouseSource fetches metrics straight from the analytics warehouse,
// bypassing the HTTP proxy. Same contract as HTTPSource: the full
// unfiltered row set for the range, all traffic sources included.
type ClickHouseSource struct {
	conn    driver.Conn
	table   string
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// ClickHouseConfig holds warehouse connection settings.
type ClickHouseConfig struct {
	Addr     string
	Database string
	Username string
	Password string
	Table    string
}

// NewClickHouseSource opens a warehouse connection and verifies it.
func NewClickHouseSource(ctx context.Context, cfg ClickHouseConfig, logger *zap.Logger, m *metrics.Metrics) (*ClickHouseSource, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, &FetchError{Source: "clickhouse", Message: "open: " + err.Error()}
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, &FetchError{Source: "clickhouse", Message: "ping: " + err.Error()}
	}

	table := cfg.Table
	if table == "" {
		table = "app_store_metrics_daily"
	}
	logger.Info("connected to ClickHouse warehouse",
		zap.String("addr", cfg.Addr),
		zap.String("database", cfg.Database),
		zap.String("table", table),
	)
	return &ClickHouseSource{conn: conn, table: table, logger: logger, metrics: m}, nil
}

// Name identifies the source in logs and metrics.
func (s *ClickHouseSource) Name() string { return "clickhouse" }

// Close releases the warehouse connection.
func (s *ClickHouseSource) Close() error { return s.conn.Close() }

// Fetch aggregates per day/app/source over the range. The query never
// filters by traffic source; the distinct source list observed in the
// range is returned in the metadata for the picker.
func (s *ClickHouseSource) Fetch(ctx context.Context, q Query) (*models.FetchResult, error) {
	started := time.Now()

	query := `
		SELECT
			toString(date)          AS date,
			app_id,
			traffic_source,
			sum(impressions)        AS impressions,
			sum(downloads)          AS downloads,
			sum(product_page_views) AS product_page_views
		FROM ` + s.table + `
		WHERE org_id = ? AND date >= toDate(?) AND date <= toDate(?)`
	args := []any{q.OrgID, q.Range.Start, q.Range.End}
	if len(q.AppIDs) > 0 {
		query += ` AND app_id IN (` + placeholders(len(q.AppIDs)) + `)`
		for _, id := range q.AppIDs {
			args = append(args, id)
		}
	}
	query += `
		GROUP BY date, app_id, traffic_source
		ORDER BY date, app_id, traffic_source`

	chRows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		ferr := &FetchError{Source: s.Name(), Message: err.Error()}
		s.recordFailure(ferr, time.Since(started))
		return nil, ferr
	}
	defer chRows.Close()

	var rows []models.RawMetricRow
	apps := make(map[string]struct{})
	sources := make(map[string]struct{})
	var sourceList []string
	for chRows.Next() {
		var (
			r    models.RawMetricRow
			imp  uint64
			down uint64
			ppv  uint64
		)
		if err := chRows.Scan(&r.Date, &r.AppID, &r.TrafficSource, &imp, &down, &ppv); err != nil {
			ferr := &FetchError{Source: s.Name(), Message: "scan: " + err.Error()}
			s.recordFailure(ferr, time.Since(started))
			return nil, ferr
		}
		r.Impressions = int64(imp)
		r.Downloads = int64(down)
		r.ProductPageViews = int64(ppv)
		rows = append(rows, r)
		apps[r.AppID] = struct{}{}
		if _, ok := sources[r.TrafficSource]; !ok {
			sources[r.TrafficSource] = struct{}{}
			sourceList = append(sourceList, r.TrafficSource)
		}
	}
	if err := chRows.Err(); err != nil {
		ferr := &FetchError{Source: s.Name(), Message: err.Error()}
		s.recordFailure(ferr, time.Since(started))
		return nil, ferr
	}

	elapsed := time.Since(started)
	if s.metrics != nil {
		s.metrics.RecordFetch(s.Name(), "ok", len(rows), elapsed)
	}
	s.logger.Info("fetched app store metrics from warehouse",
		zap.String("org_id", q.OrgID),
		zap.Int("rows", len(rows)),
		zap.Duration("elapsed", elapsed),
	)

	return &models.FetchResult{
		OrgID:  q.OrgID,
		Range:  q.Range,
		AppIDs: q.AppIDs,
		Rows:   rows,
		Meta: models.FetchMeta{
			AvailableTrafficSources: sourceList,
			TotalApps:               len(apps),
			RowCount:                len(rows),
			QueryDurationMS:         elapsed.Milliseconds(),
		},
		RequestID: uuid.NewString(),
		FetchedAt: time.Now().UTC(),
	}, nil
}

func (s *ClickHouseSource) recordFailure(err error, elapsed time.Duration) {
	if s.metrics != nil {
		s.metrics.RecordFetch(s.Name(), "fetch_error", 0, elapsed)
		s.metrics.RecordFetchError(s.Name(), "fetch_error")
	}
	s.logger.Warn("warehouse fetch failed", zap.Error(err))
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
