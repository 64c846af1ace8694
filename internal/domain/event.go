package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventKind tags an entry in the append-only event log.
type EventKind string

const (
	// EventView is an impression: one candidate shown in one ranked response.
	EventView EventKind = "view"
	// EventClick through EventDismiss are client-reported outcomes.
	EventClick    EventKind = "click"
	EventSave     EventKind = "save"
	EventComplete EventKind = "complete"
	EventDismiss  EventKind = "dismiss"
)

// Valid reports whether the kind is one of the known event kinds.
func (k EventKind) Valid() bool {
	switch k {
	case EventView, EventClick, EventSave, EventComplete, EventDismiss:
		return true
	}
	return false
}

// Outcome reports whether the kind is a client-reported outcome rather than
// a server-side impression.
func (k EventKind) Outcome() bool {
	return k.Valid() && k != EventView
}

// PositiveSignal reports whether the kind counts as a positive label during
// training and as a tag-preference signal.
func (k EventKind) PositiveSignal() bool {
	return k == EventClick || k == EventSave || k == EventComplete
}

// WeatherSlice is an aggregated weather snapshot over a forecast window.
// PrecipProb is on a 0-100 scale; IsDay is 0/1, or a fraction when the
// window mixes day and night hours.
type WeatherSlice struct {
	TempC      float64
	PrecipProb float64
	WindKmh    float64
	IsDay      float64
}

// GeoPoint is a WGS84 coordinate.
type GeoPoint struct {
	Lat float64
	Lon float64
}

// Event is one entry in the append-only event log. Impressions always carry
// attribution and serve context; outcomes carry whatever the client supplied.
// A missing or stale request id is accepted as-is (soft attribution only).
type Event struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	ActivityID uuid.UUID
	Kind       EventKind
	OccurredAt time.Time

	// Attribution, set on impressions and optionally echoed back by clients.
	RequestID *uuid.UUID
	Position  *int

	// Serve context captured when the recommendation was produced.
	Location *GeoPoint
	Weather  *WeatherSlice
}

// NewImpression builds a "view" event carrying full serve context.
func NewImpression(userID, activityID, requestID uuid.UUID, position int, at time.Time, loc GeoPoint, w WeatherSlice) Event {
	rid := requestID
	pos := position
	return Event{
		ID:         uuid.New(),
		UserID:     userID,
		ActivityID: activityID,
		Kind:       EventView,
		OccurredAt: at,
		RequestID:  &rid,
		Position:   &pos,
		Location:   &loc,
		Weather:    &w,
	}
}
