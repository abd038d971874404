// Package aggregate contains the pure, synchronous aggregation functions
// that turn raw App Store metric rows into dashboard views. Every function
// here is side-effect free, never touches the network, and applies one
// uniform arithmetic policy: a ratio with a zero denominator is 0, never
// NaN or Inf. Malformed rows (negative counters) are clamped to 0 rather
// than failing the aggregation.
//
// The intel package reuses SafeDiv/Pct/PctChange so simulated and live
// numbers share the same arithmetic.
package aggregate

// SafeDiv returns a/b, or 0 when b is 0.
func SafeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

// Pct returns a/b as a percentage, zero-safe.
func Pct(a, b float64) float64 {
	return SafeDiv(a, b) * 100
}

// PctChange returns the percentage change from prev to cur, zero-safe.
func PctChange(cur, prev float64) float64 {
	if prev == 0 {
		return 0
	}
	return (cur - prev) / prev * 100
}

// clamp0 guards against upstream rows carrying negative counters.
func clamp0(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
