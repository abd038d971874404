package aggregate

import "github.com/orbitlab/aso-pulse/internal/models"

// TwoPath partitions rows into the Search and Browse acquisition paths and
// splits each path's downloads into direct vs product-page-driven installs.
// Only rows labeled exactly App_Store_Search or App_Store_Browse
// participate; other sources are deliberately outside the two-path model.
//
// The allocation key is the ratio of product page views to impressions:
// pdp-driven = downloads * min(1, ppv/impressions), direct = the remainder.
// Direct + pdp-driven always sums to downloads for the path.
func TwoPath(rows []models.RawMetricRow) models.TwoPathBreakdown {
	var search, browse pathSums
	for _, r := range rows {
		switch r.TrafficSource {
		case models.SourceSearch:
			search.add(r)
		case models.SourceBrowse:
			browse.add(r)
		}
	}
	return models.TwoPathBreakdown{
		Search: search.finish(),
		Browse: browse.finish(),
	}
}

type pathSums struct {
	impressions int64
	downloads   int64
	ppv         int64
}

func (p *pathSums) add(r models.RawMetricRow) {
	p.impressions += clamp0(r.Impressions)
	p.downloads += clamp0(r.Downloads)
	p.ppv += clamp0(r.ProductPageViews)
}

func (p pathSums) finish() models.TwoPathMetrics {
	m := models.TwoPathMetrics{
		Impressions:      p.impressions,
		Downloads:        p.downloads,
		ProductPageViews: p.ppv,
	}
	if p.impressions > 0 {
		ratio := float64(p.ppv) / float64(p.impressions)
		if ratio > 1 {
			ratio = 1
		}
		m.PDPDrivenInstalls = float64(p.downloads) * ratio
	}
	m.DirectInstalls = float64(p.downloads) - m.PDPDrivenInstalls
	m.DirectShare = Pct(m.DirectInstalls, float64(p.downloads))
	return m
}

// DeriveKPIs combines the two path aggregates into the named business
// ratios. Pure function of its two inputs; all-zero paths produce all-zero
// ratios, never NaN.
func DeriveKPIs(search, browse models.TwoPathMetrics) models.DerivedKPIs {
	totalDownloads := float64(search.Downloads + browse.Downloads)
	totalPPV := float64(search.ProductPageViews + browse.ProductPageViews)
	return models.DerivedKPIs{
		SearchCVR:         Pct(float64(search.Downloads), float64(search.Impressions)),
		BrowseCVR:         Pct(float64(browse.Downloads), float64(browse.Impressions)),
		SearchShare:       Pct(float64(search.Downloads), totalDownloads),
		BrowseShare:       Pct(float64(browse.Downloads), totalDownloads),
		SearchDirectShare: Pct(search.DirectInstalls, float64(search.Downloads)),
		BrowseDirectShare: Pct(browse.DirectInstalls, float64(browse.Downloads)),
		PDPConversion:     Pct(search.PDPDrivenInstalls+browse.PDPDrivenInstalls, totalPPV),
		SearchToBrowse:    SafeDiv(float64(search.Downloads), float64(browse.Downloads)),
	}
}
