package aggregate

import (
	"sort"

	"github.com/orbitlab/aso-pulse/internal/models"
)

// ToTimeSeries groups rows by calendar date and sums per-day totals,
// recomputing each day's conversion rate from the summed counters. The
// result holds exactly one point per distinct date present in the rows,
// sorted ascending; missing days are not gap-filled. ISO date strings sort
// lexicographically in chronological order, so a plain string sort is
// correct here.
func ToTimeSeries(rows []models.RawMetricRow) []models.TimeSeriesPoint {
	byDate := make(map[string]*models.TimeSeriesPoint)
	for _, r := range rows {
		p, ok := byDate[r.Date]
		if !ok {
			p = &models.TimeSeriesPoint{Date: r.Date}
			byDate[r.Date] = p
		}
		p.Impressions += clamp0(r.Impressions)
		p.Downloads += clamp0(r.Downloads)
		p.ProductPageViews += clamp0(r.ProductPageViews)
	}

	out := make([]models.TimeSeriesPoint, 0, len(byDate))
	for _, p := range byDate {
		p.ConversionRate = Pct(float64(p.Downloads), float64(p.Impressions))
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}
