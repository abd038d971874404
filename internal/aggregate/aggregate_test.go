package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSafeDiv(t *testing.T) {
	tests := []struct {
		name     string
		a, b     float64
		expected float64
	}{
		{name: "normal division", a: 10, b: 4, expected: 2.5},
		{name: "zero denominator", a: 10, b: 0, expected: 0},
		{name: "zero numerator", a: 0, b: 5, expected: 0},
		{name: "both zero", a: 0, b: 0, expected: 0},
		{name: "negative values", a: -6, b: 3, expected: -2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SafeDiv(tt.a, tt.b))
		})
	}
}

func TestPct(t *testing.T) {
	tests := []struct {
		name     string
		a, b     float64
		expected float64
	}{
		{name: "half", a: 50, b: 100, expected: 50},
		{name: "zero denominator is zero not NaN", a: 7, b: 0, expected: 0},
		{name: "over 100 percent allowed", a: 150, b: 100, expected: 150},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Pct(tt.a, tt.b))
		})
	}
}

func TestPctChange(t *testing.T) {
	tests := []struct {
		name      string
		cur, prev float64
		expected  float64
	}{
		{name: "growth", cur: 120, prev: 100, expected: 20},
		{name: "decline", cur: 80, prev: 100, expected: -20},
		{name: "zero previous is zero delta", cur: 50, prev: 0, expected: 0},
		{name: "no change", cur: 100, prev: 100, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, PctChange(tt.cur, tt.prev))
		})
	}
}
