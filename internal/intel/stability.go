// Package intel holds the heavier derivation functions computed off the
// interactive path: stability scoring, opportunity ranking and outcome
// simulation. All functions are deterministic and assume their inputs
// already went through the aggregate package's zero-safe arithmetic.
package intel

import (
	"errors"

	"github.com/orbitlab/aso-pulse/internal/aggregate"
	"github.com/orbitlab/aso-pulse/internal/models"
)

// MinStabilityPoints is the minimum series length for a meaningful
// stability score. Callers gate on this before invoking Stability.
const MinStabilityPoints = 7

// ErrSeriesTooShort is returned when Stability is called below the gate.
var ErrSeriesTooShort = errors.New("intel: time series shorter than minimum for stability scoring")

// Volatility beyond this mean absolute day-over-day relative change
// saturates the volatility component.
const maxVolatility = 0.5

// Per-day relative slopes beyond ±10% saturate the trend component.
const maxDailyTrend = 0.1

// Stability scores a downloads time series in [0,100]. Smoother series
// (lower day-over-day dispersion) and consistent upward trends score
// higher. The composite weights volatility 70/30 over trend: a flat,
// quiet series is worth more to a ranking than a jagged climb.
func Stability(series []models.TimeSeriesPoint) (models.StabilityScore, error) {
	if len(series) < MinStabilityPoints {
		return models.StabilityScore{}, ErrSeriesTooShort
	}

	values := make([]float64, len(series))
	for i, p := range series {
		values[i] = float64(p.Downloads)
	}

	vol := meanAbsRelDelta(values)
	trend := normalizedSlope(values)

	nVol := clamp01(vol / maxVolatility)
	nTrend := clamp01((trend + maxDailyTrend) / (2 * maxDailyTrend))

	const (
		wVolatility = 0.7
		wTrend      = 0.3
	)
	score := 100 * (wVolatility*(1-nVol) + wTrend*nTrend)

	return models.StabilityScore{
		Score:      score,
		Volatility: vol,
		Trend:      trend,
		Points:     len(series),
	}, nil
}

// meanAbsRelDelta is the average magnitude of day-over-day relative
// change. A step from zero to a nonzero value counts as a full swing.
func meanAbsRelDelta(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var sum float64
	for i := 1; i < len(values); i++ {
		prev, cur := values[i-1], values[i]
		switch {
		case prev == 0 && cur == 0:
			// no movement
		case prev == 0:
			sum += 1
		default:
			d := (cur - prev) / prev
			if d < 0 {
				d = -d
			}
			sum += d
		}
	}
	return sum / float64(len(values)-1)
}

// normalizedSlope is the least-squares slope of the series divided by its
// mean, i.e. relative growth per day. Zero for an all-zero series.
func normalizedSlope(values []float64) float64 {
	n := float64(len(values))
	var sumX, sumY, sumXY, sumXX float64
	for i, v := range values {
		x := float64(i)
		sumX += x
		sumY += v
		sumXY += x * v
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	slope := aggregate.SafeDiv(n*sumXY-sumX*sumY, denom)
	mean := sumY / n
	return aggregate.SafeDiv(slope, mean)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
