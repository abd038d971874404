package aggregate

import "github.com/orbitlab/aso-pulse/internal/models"

// FilterRows returns the rows whose traffic source is in selected. An empty
// selection means "no filter" and returns the input unchanged, so a picker
// with nothing checked still shows the full data set. The input is never
// mutated and no fetch is involved; this is what makes filter changes
// instant.
func FilterRows(rows []models.RawMetricRow, selected []string) []models.RawMetricRow {
	if len(selected) == 0 {
		return rows
	}
	want := make(map[string]struct{}, len(selected))
	for _, s := range selected {
		want[s] = struct{}{}
	}
	out := make([]models.RawMetricRow, 0, len(rows))
	for _, r := range rows {
		if _, ok := want[r.TrafficSource]; ok {
			out = append(out, r)
		}
	}
	return out
}

// TrafficSourcesPresent returns the distinct source labels appearing in
// rows. Used by tests and diagnostics; the picker itself must always read
// FetchMeta.AvailableTrafficSources instead, which never shrinks under
// filtering.
func TrafficSourcesPresent(rows []models.RawMetricRow) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range rows {
		if _, ok := seen[r.TrafficSource]; !ok {
			seen[r.TrafficSource] = struct{}{}
			out = append(out, r.TrafficSource)
		}
	}
	return out
}
