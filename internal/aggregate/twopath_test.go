package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/orbitlab/aso-pulse/internal/models"
)

func TestTwoPath(t *testing.T) {
	rows := []models.RawMetricRow{
		row("2024-01-01", models.SourceSearch, 1000, 100, 250),
		row("2024-01-02", models.SourceSearch, 1000, 100, 250),
		row("2024-01-01", models.SourceBrowse, 500, 40, 400),
		row("2024-01-01", "Web_Referrer", 999, 99, 99), // outside the model
	}

	bp := TwoPath(rows)

	// Search: ppv/imp = 500/2000 = 0.25, pdp = 200 * 0.25 = 50.
	assert.Equal(t, int64(2000), bp.Search.Impressions)
	assert.Equal(t, int64(200), bp.Search.Downloads)
	assert.InDelta(t, 50.0, bp.Search.PDPDrivenInstalls, 1e-9)
	assert.InDelta(t, 150.0, bp.Search.DirectInstalls, 1e-9)
	assert.InDelta(t, 75.0, bp.Search.DirectShare, 1e-9)

	// Browse: ppv/imp = 400/500 = 0.8, pdp = 40 * 0.8 = 32.
	assert.InDelta(t, 32.0, bp.Browse.PDPDrivenInstalls, 1e-9)
	assert.InDelta(t, 8.0, bp.Browse.DirectInstalls, 1e-9)
}

// Direct + pdp-driven must reconstruct the path's downloads exactly, for
// any input shape.
func TestTwoPathConservation(t *testing.T) {
	tests := []struct {
		name string
		rows []models.RawMetricRow
	}{
		{
			name: "typical",
			rows: []models.RawMetricRow{
				row("2024-01-01", models.SourceSearch, 1234, 77, 432),
				row("2024-01-01", models.SourceBrowse, 4321, 55, 812),
			},
		},
		{
			name: "more page views than impressions clamps ratio at one",
			rows: []models.RawMetricRow{
				row("2024-01-01", models.SourceSearch, 10, 8, 50),
			},
		},
		{
			name: "zero impressions",
			rows: []models.RawMetricRow{
				row("2024-01-01", models.SourceBrowse, 0, 9, 3),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bp := TwoPath(tt.rows)
			assert.InDelta(t, float64(bp.Search.Downloads), bp.Search.DirectInstalls+bp.Search.PDPDrivenInstalls, 1e-9)
			assert.InDelta(t, float64(bp.Browse.Downloads), bp.Browse.DirectInstalls+bp.Browse.PDPDrivenInstalls, 1e-9)
		})
	}
}

func TestTwoPathRatioClamp(t *testing.T) {
	// ppv > impressions: every download is attributed to the product page.
	bp := TwoPath([]models.RawMetricRow{
		row("2024-01-01", models.SourceSearch, 10, 8, 50),
	})
	assert.InDelta(t, 8.0, bp.Search.PDPDrivenInstalls, 1e-9)
	assert.InDelta(t, 0.0, bp.Search.DirectInstalls, 1e-9)
}

func TestDeriveKPIs(t *testing.T) {
	bp := TwoPath([]models.RawMetricRow{
		row("2024-01-01", models.SourceSearch, 1000, 100, 250),
		row("2024-01-01", models.SourceBrowse, 500, 25, 100),
	})

	k := DeriveKPIs(bp.Search, bp.Browse)

	assert.InDelta(t, 10.0, k.SearchCVR, 1e-9)
	assert.InDelta(t, 5.0, k.BrowseCVR, 1e-9)
	assert.InDelta(t, 80.0, k.SearchShare, 1e-9)
	assert.InDelta(t, 20.0, k.BrowseShare, 1e-9)
	assert.InDelta(t, 4.0, k.SearchToBrowse, 1e-9)
	assert.InDelta(t, 100.0, k.SearchShare+k.BrowseShare, 1e-9)
}

func TestDeriveKPIsAllZero(t *testing.T) {
	k := DeriveKPIs(models.TwoPathMetrics{}, models.TwoPathMetrics{})
	assert.Zero(t, k.SearchCVR)
	assert.Zero(t, k.BrowseCVR)
	assert.Zero(t, k.SearchShare)
	assert.Zero(t, k.PDPConversion)
	assert.Zero(t, k.SearchToBrowse)
}
