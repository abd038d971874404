package aggregate

import "github.com/orbitlab/aso-pulse/internal/models"

// Totals are the plain sums over a row set.
type Totals struct {
	Impressions      int64
	Downloads        int64
	ProductPageViews int64
	ConversionRate   float64
}

// SumRows adds up the counters across rows and recomputes the conversion
// rate from the sums. Order-independent by construction.
func SumRows(rows []models.RawMetricRow) Totals {
	var t Totals
	for _, r := range rows {
		t.Impressions += clamp0(r.Impressions)
		t.Downloads += clamp0(r.Downloads)
		t.ProductPageViews += clamp0(r.ProductPageViews)
	}
	t.ConversionRate = Pct(float64(t.Downloads), float64(t.Impressions))
	return t
}

// Summarize computes range-wide totals with zero deltas. Use
// SummarizeWithComparison when a previous-period row set is available.
func Summarize(rows []models.RawMetricRow) models.Summary {
	return summaryFromTotals(SumRows(rows), Totals{}, false)
}

// SummarizeWithComparison computes current totals and fills the Delta
// fields with the percentage change vs the previous period. A zero
// previous value yields a zero delta rather than a division blowup.
func SummarizeWithComparison(cur, prev []models.RawMetricRow) models.Summary {
	return summaryFromTotals(SumRows(cur), SumRows(prev), true)
}

func summaryFromTotals(cur, prev Totals, withDeltas bool) models.Summary {
	s := models.Summary{
		Impressions:      models.MetricValue{Value: float64(cur.Impressions)},
		Downloads:        models.MetricValue{Value: float64(cur.Downloads)},
		ProductPageViews: models.MetricValue{Value: float64(cur.ProductPageViews)},
		ConversionRate:   models.MetricValue{Value: cur.ConversionRate},
	}
	if !withDeltas {
		return s
	}
	s.Impressions.Delta = PctChange(float64(cur.Impressions), float64(prev.Impressions))
	s.Downloads.Delta = PctChange(float64(cur.Downloads), float64(prev.Downloads))
	s.ProductPageViews.Delta = PctChange(float64(cur.ProductPageViews), float64(prev.ProductPageViews))
	s.ConversionRate.Delta = PctChange(cur.ConversionRate, prev.ConversionRate)
	return s
}
