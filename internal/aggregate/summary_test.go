package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/orbitlab/aso-pulse/internal/models"
)

func TestSumRows(t *testing.T) {
	tests := []struct {
		name     string
		rows     []models.RawMetricRow
		expected Totals
	}{
		{
			name: "sums counters and recomputes cvr",
			rows: []models.RawMetricRow{
				row("2024-01-01", models.SourceSearch, 100, 10, 20),
				row("2024-01-02", models.SourceBrowse, 300, 30, 60),
			},
			expected: Totals{Impressions: 400, Downloads: 40, ProductPageViews: 80, ConversionRate: 10},
		},
		{
			name:     "empty rows are all zero",
			rows:     nil,
			expected: Totals{},
		},
		{
			name: "zero impressions gives zero cvr",
			rows: []models.RawMetricRow{
				row("2024-01-01", models.SourceSearch, 0, 5, 0),
			},
			expected: Totals{Downloads: 5},
		},
		{
			name: "negative counters clamp to zero",
			rows: []models.RawMetricRow{
				row("2024-01-01", models.SourceSearch, -10, -5, -1),
				row("2024-01-02", models.SourceSearch, 100, 10, 0),
			},
			expected: Totals{Impressions: 100, Downloads: 10, ConversionRate: 10},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SumRows(tt.rows))
		})
	}
}

func TestSumRowsOrderIndependent(t *testing.T) {
	forward := []models.RawMetricRow{
		row("2024-01-01", models.SourceSearch, 100, 10, 20),
		row("2024-01-02", models.SourceBrowse, 200, 8, 30),
		row("2024-01-03", "Web_Referrer", 55, 3, 7),
	}
	reversed := []models.RawMetricRow{forward[2], forward[1], forward[0]}

	assert.Equal(t, SumRows(forward), SumRows(reversed))
}

func TestSummarize(t *testing.T) {
	rows := []models.RawMetricRow{
		row("2024-01-01", models.SourceSearch, 1000, 50, 100),
	}
	s := Summarize(rows)

	assert.Equal(t, 1000.0, s.Impressions.Value)
	assert.Equal(t, 50.0, s.Downloads.Value)
	assert.Equal(t, 5.0, s.ConversionRate.Value)
	assert.Zero(t, s.Impressions.Delta)
	assert.Zero(t, s.ConversionRate.Delta)
}

func TestSummarizeWithComparison(t *testing.T) {
	cur := []models.RawMetricRow{
		row("2024-01-08", models.SourceSearch, 1200, 60, 100),
	}
	prev := []models.RawMetricRow{
		row("2024-01-01", models.SourceSearch, 1000, 50, 100),
	}

	s := SummarizeWithComparison(cur, prev)

	assert.InDelta(t, 20.0, s.Impressions.Delta, 1e-9)
	assert.InDelta(t, 20.0, s.Downloads.Delta, 1e-9)
	assert.InDelta(t, 0.0, s.ConversionRate.Delta, 1e-9) // both periods at 5%

	t.Run("empty previous period yields zero deltas", func(t *testing.T) {
		s := SummarizeWithComparison(cur, nil)
		assert.Equal(t, 1200.0, s.Impressions.Value)
		assert.Zero(t, s.Impressions.Delta)
		assert.Zero(t, s.Downloads.Delta)
	})
}
