package intel

import (
	"sort"

	"github.com/orbitlab/aso-pulse/internal/aggregate"
	"github.com/orbitlab/aso-pulse/internal/models"
)

// Improvement levers in their fixed tie-break order. The order is part of
// the contract: equal-impact levers always rank the same way.
const (
	LeverSearchCVR     = "search_cvr"
	LeverBrowseCVR     = "browse_cvr"
	LeverPDPConversion = "pdp_conversion"
	LeverSearchVolume  = "search_volume"
	LeverBrowseVolume  = "browse_volume"
)

var leverOrder = map[string]int{
	LeverSearchCVR:     0,
	LeverBrowseCVR:     1,
	LeverPDPConversion: 2,
	LeverSearchVolume:  3,
	LeverBrowseVolume:  4,
}

// Achievable reference values per lever, in the lever's own unit.
// Percentages are category medians for App Store apps; volume levers use a
// relative headroom factor instead and carry a 0 reference here.
const (
	refSearchCVR     = 5.0  // %
	refBrowseCVR     = 2.0  // %
	refPDPConversion = 30.0 // %
	volumeHeadroom   = 0.15 // attainable impression growth
)

// Opportunities ranks improvement levers by projected additional downloads
// over the aggregated period. Impact is the gap between the current KPI and
// its achievable reference, multiplied through the lever's volume; levers
// already at or above reference contribute zero impact but still appear,
// ranked last in fixed order. The result is sorted by descending impact
// with ties broken by lever order, so output is fully deterministic.
func Opportunities(kpis models.DerivedKPIs, search, browse models.TwoPathMetrics) []models.Opportunity {
	out := []models.Opportunity{
		{
			Lever:     LeverSearchCVR,
			Current:   kpis.SearchCVR,
			Reference: refSearchCVR,
			Impact:    gap(kpis.SearchCVR, refSearchCVR) / 100 * float64(search.Impressions),
		},
		{
			Lever:     LeverBrowseCVR,
			Current:   kpis.BrowseCVR,
			Reference: refBrowseCVR,
			Impact:    gap(kpis.BrowseCVR, refBrowseCVR) / 100 * float64(browse.Impressions),
		},
		{
			Lever:     LeverPDPConversion,
			Current:   kpis.PDPConversion,
			Reference: refPDPConversion,
			Impact:    gap(kpis.PDPConversion, refPDPConversion) / 100 * float64(search.ProductPageViews+browse.ProductPageViews),
		},
		{
			Lever:     LeverSearchVolume,
			Current:   float64(search.Impressions),
			Reference: float64(search.Impressions) * (1 + volumeHeadroom),
			Impact:    float64(search.Impressions) * volumeHeadroom * aggregate.SafeDiv(float64(search.Downloads), float64(search.Impressions)),
		},
		{
			Lever:     LeverBrowseVolume,
			Current:   float64(browse.Impressions),
			Reference: float64(browse.Impressions) * (1 + volumeHeadroom),
			Impact:    float64(browse.Impressions) * volumeHeadroom * aggregate.SafeDiv(float64(browse.Downloads), float64(browse.Impressions)),
		},
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Impact != out[j].Impact {
			return out[i].Impact > out[j].Impact
		}
		return leverOrder[out[i].Lever] < leverOrder[out[j].Lever]
	})
	return out
}

// gap returns how far current sits below reference, never negative.
func gap(current, reference float64) float64 {
	if current >= reference {
		return 0
	}
	return reference - current
}
