// Package domain defines the core types shared by the recommendation engine.
package domain

// Activity is the denormalized activity record used during scoring. Records
// are created and edited by the moderation workflow; the engine treats them
// as immutable within a request.
type Activity struct {
	ID              string
	Name            string
	Category        string
	Tags            []string
	Indoor          bool
	Covered         bool
	PriceLevel      int
	Difficulty      int
	DurationMinutes int
	Lat             float64
	Lon             float64
}

// Candidate pairs an activity with its great-circle distance from the
// request point.
type Candidate struct {
	Activity   Activity
	DistanceKm float64
}

// Known activity categories. The set is fixed by the moderation workflow;
// scoring only ever compares category strings against preference maps.
const (
	CategoryHiking   = "hiking"
	CategoryCulture  = "culture"
	CategorySports   = "sports"
	CategoryFood     = "food"
	CategoryFamily   = "family"
	CategoryWellness = "wellness"
)
