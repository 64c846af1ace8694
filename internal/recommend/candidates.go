package recommend

import (
	"sort"

	"example.com/recommender/internal/domain"
)

// MaxCandidates caps the candidate set per request. The cap bounds worst-case
// scoring cost; callers may request fewer but never more.
const MaxCandidates = 500

// SelectCandidates applies the great-circle membership test to rows returned
// by the coarse bounding-box query and caps the result.
//
// A plain bounding box over/under-selects near the radius boundary, so every
// row is re-checked with the haversine distance. Survivors are ordered by
// distance ascending (ties by ID) so the cap and downstream tie-breaks are
// deterministic. An empty result is a valid outcome.
func SelectCandidates(lat, lon float64, activities []domain.Activity, radiusKm float64, cap int) []domain.Candidate {
	if cap <= 0 || cap > MaxCandidates {
		cap = MaxCandidates
	}

	out := make([]domain.Candidate, 0, len(activities))
	for _, a := range activities {
		d := HaversineKm(lat, lon, a.Lat, a.Lon)
		if d <= radiusKm {
			out = append(out, domain.Candidate{Activity: a, DistanceKm: d})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].DistanceKm != out[j].DistanceKm {
			return out[i].DistanceKm < out[j].DistanceKm
		}
		return out[i].Activity.ID < out[j].Activity.ID
	})

	if len(out) > cap {
		out = out[:cap]
	}
	return out
}
