// Package recommend implements the contextual recommendation engine:
// candidate selection, feature construction, scoring, and ranking.
package recommend

import (
	"math"

	"example.com/recommender/internal/domain"
)

// earthRadiusKm is the mean Earth radius used by the haversine formula.
// Trained artifacts depend on this exact constant.
const earthRadiusKm = 6371.0

// HaversineKm returns the great-circle distance in kilometers between two
// WGS84 points.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	dlat := radians(lat2 - lat1)
	dlon := radians(lon2 - lon1)

	a := math.Pow(math.Sin(dlat/2.0), 2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*math.Pow(math.Sin(dlon/2.0), 2)
	c := 2.0 * math.Atan2(math.Sqrt(a), math.Sqrt(1.0-a))
	return earthRadiusKm * c
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// featureOrder is the canonical feature schema. Training writes this exact
// list into every artifact and the model scorer indexes features by these
// names, so order and spelling must stay stable across versions.
var featureOrder = []string{
	"distance_km",
	"cat_weight",
	"tag_overlap",
	"tag_weighted",

	"indoor",
	"covered",
	"price_level",
	"difficulty",
	"duration_minutes",

	"temp_c",
	"precip_prob",
	"wind_kmh",
	"is_day",

	"precip_penalty",
	"wind_penalty",
	"cold_penalty",
	"heat_penalty",

	"position",
}

// FeatureOrder returns a copy of the canonical ordered feature-name list.
func FeatureOrder() []string {
	out := make([]string, len(featureOrder))
	copy(out, featureOrder)
	return out
}

// BuildFeatures maps one candidate into the fixed feature schema.
//
// catWeights holds the user's per-category preference weights; tagWeights is
// derived from the user's prior save/complete events (tag occurrence counts),
// not declared preferences. precip_prob is expected in [0..100] and is_day
// in [0..1]. The "position" feature is always 0 at scoring time: the serve
// rank cannot be known before ranking, and only the training pipeline fills
// it in afterwards.
func BuildFeatures(
	catWeights map[string]float64,
	tagWeights map[string]float64,
	activity domain.Activity,
	userLat, userLon float64,
	weather domain.WeatherSlice,
) map[string]float64 {
	distance := HaversineKm(userLat, userLon, activity.Lat, activity.Lon)

	catWeight := catWeights[activity.Category]

	var tagOverlap, tagWeighted float64
	for _, t := range activity.Tags {
		if w, ok := tagWeights[t]; ok {
			tagOverlap += 1.0
			tagWeighted += w
		}
	}

	indoor := 0.0
	if activity.Indoor {
		indoor = 1.0
	}
	covered := 0.0
	if activity.Covered {
		covered = 1.0
	}

	// Weather penalties only matter for outdoor activities.
	outdoor := 1.0 - indoor

	return map[string]float64{
		"distance_km":  distance,
		"cat_weight":   catWeight,
		"tag_overlap":  tagOverlap,
		"tag_weighted": tagWeighted,

		"indoor":           indoor,
		"covered":          covered,
		"price_level":      float64(activity.PriceLevel),
		"difficulty":       float64(activity.Difficulty),
		"duration_minutes": float64(activity.DurationMinutes),

		"temp_c":      weather.TempC,
		"precip_prob": weather.PrecipProb,
		"wind_kmh":    weather.WindKmh,
		"is_day":      weather.IsDay,

		"precip_penalty": outdoor * (weather.PrecipProb / 100.0),
		"wind_penalty":   outdoor * (weather.WindKmh / 50.0),
		"cold_penalty":   outdoor * math.Max(0.0, (10.0-weather.TempC)/10.0),
		"heat_penalty":   outdoor * math.Max(0.0, (weather.TempC-30.0)/10.0),

		"position": 0.0,
	}
}

// ReasonText produces the presentation string attached to a recommended item.
func ReasonText(activity domain.Activity, weather domain.WeatherSlice) string {
	pp := weather.PrecipProb
	t := weather.TempC

	switch {
	case activity.Indoor && pp >= 40.0:
		return "Higher rain probability; indoor option prioritized."
	case activity.Covered && pp >= 40.0:
		return "Rain likely; covered option reduces weather risk."
	case !activity.Indoor && pp < 25.0 && t >= 12.0 && t <= 28.0:
		return "Favorable conditions for outdoor activities."
	case !activity.Indoor && t < 8.0:
		return "Cold conditions; consider dressing warm or choosing indoor options."
	case !activity.Indoor && t > 32.0:
		return "High temperatures; consider shorter outdoor activities or indoor options."
	}
	return "Matched to your preferences and nearby."
}
