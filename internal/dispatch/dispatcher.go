// Package dispatch offloads the heavier intelligence derivation (stability
// scoring, opportunity ranking, outcome simulation) to a background
// goroutine so it never blocks the request path. Bursts of payload changes
// are debounced into a single computation pass, and a cheap fingerprint
// keeps identical payloads from being computed twice.
package dispatch

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/orbitlab/aso-pulse/internal/aggregate"
	"github.com/orbitlab/aso-pulse/internal/intel"
	"github.com/orbitlab/aso-pulse/internal/metrics"
	"github.com/orbitlab/aso-pulse/internal/models"
)

// DefaultDebounce is the settle window for bursts of payload changes.
const DefaultDebounce = 100 * time.Millisecond

// Payload is the input to one background computation pass. OrgID scopes
// the results to the tenant whose overview produced them.
type Payload struct {
	OrgID  string
	Series []models.TimeSeriesPoint
	Search models.TwoPathMetrics
	Browse models.TwoPathMetrics
	KPIs   models.DerivedKPIs
	Totals aggregate.Totals
}

// Results holds the latest completed computation. Stability is nil when
// the series was too short to score.
type Results struct {
	OrgID         string                 `json:"org_id"`
	Stability     *models.StabilityScore `json:"stability,omitempty"`
	Opportunities []models.Opportunity   `json:"opportunities"`
	Scenarios     []models.Scenario      `json:"scenarios"`
	ComputedAt    time.Time              `json:"computed_at"`
}

// Dispatcher debounces and dedupes computation payloads and runs them on a
// single worker goroutine. The last-dispatched fingerprint has a single
// writer (the dispatcher itself).
type Dispatcher struct {
	logger  *zap.Logger
	metrics *metrics.Metrics
	window  time.Duration

	mu             sync.Mutex
	timer          *time.Timer
	pending        *Payload
	lastDispatched string
	org            string // tenant of the in-flight or latest pass
	results        *Results
	computing      bool
	step           string
	progress       float64

	jobs      chan Payload
	quit      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New creates a Dispatcher and starts its worker. window <= 0 falls back
// to DefaultDebounce. metrics may be nil (e.g. in tests).
func New(logger *zap.Logger, m *metrics.Metrics, window time.Duration) *Dispatcher {
	if window <= 0 {
		window = DefaultDebounce
	}
	d := &Dispatcher{
		logger:  logger,
		metrics: m,
		window:  window,
		jobs:    make(chan Payload, 1),
		quit:    make(chan struct{}),
	}
	d.wg.Add(1)
	go d.worker()
	return d
}

// Submit queues a payload for background computation. A payload arriving
// while the debounce timer is pending replaces the previous one and resets
// the timer, so rapid sequential updates collapse into one pass.
func (d *Dispatcher) Submit(p Payload) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pending != nil {
		d.record("collapsed")
	}
	d.pending = &p

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

// flush promotes the pending payload to the worker once the burst settled.
func (d *Dispatcher) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending == nil {
		return
	}

	fp := fingerprint(d.pending)
	if fp == d.lastDispatched {
		d.pending = nil
		d.record("deduped")
		return
	}

	select {
	case d.jobs <- *d.pending:
		d.lastDispatched = fp
		d.pending = nil
		d.record("dispatched")
	default:
		// Worker still busy with the previous pass; retry after another
		// window rather than blocking the timer goroutine.
		d.timer = time.AfterFunc(d.window, d.flush)
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case p := <-d.jobs:
			d.compute(p)
		case <-d.quit:
			return
		}
	}
}

func (d *Dispatcher) compute(p Payload) {
	d.mu.Lock()
	d.org = p.OrgID
	d.mu.Unlock()
	d.setState(true, "stability", 0)

	res := &Results{OrgID: p.OrgID}

	start := time.Now()
	if len(p.Series) >= intel.MinStabilityPoints {
		if score, err := intel.Stability(p.Series); err == nil {
			res.Stability = &score
		}
	} else if d.logger != nil {
		d.logger.Debug("skipping stability score, series too short",
			zap.Int("points", len(p.Series)),
			zap.Int("minimum", intel.MinStabilityPoints),
		)
	}
	d.recordCompute("stability", time.Since(start))
	d.setState(true, "opportunities", 0.34)

	start = time.Now()
	res.Opportunities = intel.Opportunities(p.KPIs, p.Search, p.Browse)
	d.recordCompute("opportunities", time.Since(start))
	d.setState(true, "scenarios", 0.67)

	start = time.Now()
	res.Scenarios = intel.Simulate(p.Totals, p.Search, p.Browse, p.KPIs)
	d.recordCompute("scenarios", time.Since(start))

	res.ComputedAt = time.Now().UTC()

	d.mu.Lock()
	d.results = res
	d.computing = false
	d.step = ""
	d.progress = 1
	d.mu.Unlock()
}

func (d *Dispatcher) setState(computing bool, step string, progress float64) {
	d.mu.Lock()
	d.computing = computing
	d.step = step
	d.progress = progress
	d.mu.Unlock()
}

// Results returns the latest completed computation, or nil before the
// first pass finishes.
func (d *Dispatcher) Results() *Results {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.results
}

// Computing reports whether a pass is in flight.
func (d *Dispatcher) Computing() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.computing
}

// Progress returns the current step name and fractional progress for UI
// feedback.
func (d *Dispatcher) Progress() (step string, frac float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.step, d.progress
}

// Org returns the tenant whose payload is in flight or was computed last,
// so callers can scope Computing/Progress/Results to a single tenant.
func (d *Dispatcher) Org() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.org
}

// Close cancels any pending debounce timer and stops the worker.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		if d.timer != nil {
			d.timer.Stop()
		}
		d.pending = nil
		d.mu.Unlock()
		close(d.quit)
		d.wg.Wait()
	})
}

func (d *Dispatcher) record(result string) {
	if d.metrics != nil {
		d.metrics.RecordDispatch(result)
	}
}

func (d *Dispatcher) recordCompute(step string, elapsed time.Duration) {
	if d.metrics != nil {
		d.metrics.RecordCompute(step, elapsed)
	}
}

// fingerprint is a cheap payload signature: tenant, lengths, boundary
// dates and a few headline totals. Deliberately not a deep hash; the point
// is to skip obviously identical payloads without the fingerprint itself
// costing a full scan.
func fingerprint(p *Payload) string {
	first, last := "", ""
	if n := len(p.Series); n > 0 {
		first, last = p.Series[0].Date, p.Series[n-1].Date
	}
	return fmt.Sprintf("%s|%d|%s|%s|%d|%d|%d|%d|%.6f",
		p.OrgID, len(p.Series), first, last,
		p.Search.Impressions, p.Search.Downloads,
		p.Browse.Impressions, p.Browse.Downloads,
		p.Totals.ConversionRate,
	)
}
