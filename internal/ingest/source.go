// Package ingest fetches raw App Store metric rows from an upstream
// analytics backend. Two implementations exist: an HTTP source speaking
// the warehouse proxy's JSON contract, and a direct ClickHouse source for
// deployments with warehouse access. Both return the full unfiltered row
// set for the requested range — traffic source is never a fetch parameter,
// so client-side filtering downstream can never lose picker options.
package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/orbitlab/aso-pulse/internal/models"
)

// Metrics requested from the upstream on every fetch. Fixed selection;
// the granularity is always daily.
var metricSelection = []string{"impressions", "downloads", "product_page_views"}

const granularityDaily = "daily"

// Query identifies one fetch: an organization, an inclusive date range and
// an optional explicit app set. Empty AppIDs means auto-discover all apps
// the organization can access. Callers validate before invoking Fetch;
// sources do not re-check.
type Query struct {
	OrgID  string
	Range  models.DateRange
	AppIDs []string
}

// MetricsSource is the upstream boundary. Fetch suspends on ctx and is the
// only asynchronous operation in the analytics core.
type MetricsSource interface {
	Fetch(ctx context.Context, q Query) (*models.FetchResult, error)
	Name() string
}

// FetchError is a failed upstream call: transport error, non-2xx status or
// a service-reported failure. NotFound marks permanent conditions that
// must not be retried.
type FetchError struct {
	Source   string
	Status   int
	Message  string
	NotFound bool
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch from %s failed with status %d: %s", e.Source, e.Status, e.Message)
	}
	return fmt.Sprintf("fetch from %s failed: %s", e.Source, e.Message)
}

// ShapeError is a structurally unparseable response. Logged distinctly
// from FetchError because it indicates an upstream contract change rather
// than a transient failure. Never retried.
type ShapeError struct {
	Reason string
}

func (e *ShapeError) Error() string {
	return "unexpected response shape: " + e.Reason
}

// IsShapeError reports whether err wraps a ShapeError.
func IsShapeError(err error) bool {
	var se *ShapeError
	return errors.As(err, &se)
}

// IsNotFound reports whether err is a permanent not-found fetch failure.
func IsNotFound(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.NotFound
}

// retriable reports whether a failed attempt is worth the single bounded
// retry. Shape mismatches and not-found conditions are permanent.
func retriable(err error) bool {
	if err == nil {
		return false
	}
	if IsShapeError(err) || IsNotFound(err) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}
