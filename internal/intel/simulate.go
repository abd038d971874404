package intel

import (
	"github.com/orbitlab/aso-pulse/internal/aggregate"
	"github.com/orbitlab/aso-pulse/internal/models"
)

// Simulate projects a fixed set of hypothetical changes through the same
// ratio model the live aggregators use, so simulated and live numbers are
// directly comparable. Each scenario perturbs impressions or conversion
// rate and re-derives downloads as impressions * cvr / 100 with the shared
// zero-safe arithmetic.
func Simulate(totals aggregate.Totals, search, browse models.TwoPathMetrics, kpis models.DerivedKPIs) []models.Scenario {
	curImp := float64(totals.Impressions)
	curDown := float64(totals.Downloads)
	curCVR := totals.ConversionRate

	scenarios := []models.Scenario{
		project("+10% conversion rate", curImp, curCVR*1.10, curDown),
		project("+20% impressions", curImp*1.20, curCVR, curDown),
		project("+10% search impressions",
			curImp+0.10*float64(search.Impressions),
			curCVR,
			curDown,
		),
	}

	// PDP scenario: lift only the product-page-driven portion of installs,
	// then restate CVR against unchanged impressions.
	pdpInstalls := search.PDPDrivenInstalls + browse.PDPDrivenInstalls
	pdpDown := curDown + 0.15*pdpInstalls
	scenarios = append(scenarios, models.Scenario{
		Name:                 "+15% product page conversion",
		ProjectedImpressions: curImp,
		ProjectedDownloads:   pdpDown,
		ProjectedCVR:         aggregate.Pct(pdpDown, curImp),
		DownloadsLift:        aggregate.PctChange(pdpDown, curDown),
	})

	return scenarios
}

func project(name string, imp, cvr, baseDownloads float64) models.Scenario {
	downloads := imp * cvr / 100
	return models.Scenario{
		Name:                 name,
		ProjectedImpressions: imp,
		ProjectedDownloads:   downloads,
		ProjectedCVR:         aggregate.Pct(downloads, imp),
		DownloadsLift:        aggregate.PctChange(downloads, baseDownloads),
	}
}
