package recommend

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"example.com/recommender/internal/domain"
	"example.com/recommender/internal/observability"
)

// ErrWeatherUnavailable marks a recommend request that failed because the
// weather provider could not supply a snapshot. No meaningful score can be
// computed without one, so the request fails rather than degrade.
var ErrWeatherUnavailable = errors.New("weather provider unavailable")

// DataProvider is the persistence surface the engine depends on. It is
// implemented by the Postgres repository.
type DataProvider interface {
	// ActivitiesNear returns activities inside a coarse bounding box around
	// the point; the engine applies the exact great-circle filter.
	ActivitiesNear(ctx context.Context, lat, lon, radiusKm float64, limit int) ([]domain.Activity, error)

	// UserPreferences returns the category-weight map and the historical
	// tag-interaction counts for a user. Absent data yields empty maps.
	UserPreferences(ctx context.Context, userID uuid.UUID) (map[string]float64, map[string]float64, error)

	// AppendEvents persists a batch of events atomically.
	AppendEvents(ctx context.Context, events []domain.Event) error
}

// WeatherProvider supplies an aggregated weather snapshot for a point and
// time horizon.
type WeatherProvider interface {
	Slice(ctx context.Context, lat, lon float64, horizon time.Duration) (domain.WeatherSlice, error)
}

// Request carries the inputs of one recommend call.
type Request struct {
	UserID   uuid.UUID
	Lat      float64
	Lon      float64
	RadiusKm float64
	Horizon  time.Duration
	Limit    int
}

// Item is one scored recommendation.
type Item struct {
	Activity   domain.Activity
	DistanceKm float64
	Score      float64
	Reason     string
}

// Response is the ordered result of one recommend call. RequestID groups the
// impressions written for this response so clients can attribute outcomes.
type Response struct {
	RequestID uuid.UUID
	Items     []Item
}

// DefaultLimit bounds the result list when the caller does not ask for one.
const DefaultLimit = 20

// Engine runs the full recommend flow: weather snapshot, preference load,
// candidate retrieval, feature construction, scoring, ranking, and impression
// logging. It is safe for concurrent use; the only cross-request mutable
// state is the active scorer handle, swapped atomically by the model
// lifecycle manager.
type Engine struct {
	data    DataProvider
	weather WeatherProvider
	scorer  atomic.Pointer[Scorer]
	logger  zerolog.Logger
}

// NewEngine constructs an Engine with the heuristic scorer active.
func NewEngine(data DataProvider, weather WeatherProvider, logger zerolog.Logger) *Engine {
	e := &Engine{
		data:    data,
		weather: weather,
		logger:  logger.With().Str("component", "engine").Logger(),
	}
	var s Scorer = HeuristicScorer{}
	e.scorer.Store(&s)
	return e
}

// Scorer returns the currently active scoring strategy.
func (e *Engine) Scorer() Scorer {
	return *e.scorer.Load()
}

// SetScorer atomically replaces the active scoring strategy. In-flight
// scoring calls keep the snapshot they loaded; subsequent calls observe the
// new scorer immediately and never a partial state.
func (e *Engine) SetScorer(s Scorer) {
	e.scorer.Store(&s)
	observability.SetActiveScorer(s.Name())
	e.logger.Info().Str("scorer", s.Name()).Msg("active scorer replaced")
}

// Recommend serves one ranked recommendation list and synchronously persists
// its impressions. The response is not returned until the impression batch is
// committed: an incomplete training signal is worse than added latency.
func (e *Engine) Recommend(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	weather, err := e.weather.Slice(ctx, req.Lat, req.Lon, req.Horizon)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWeatherUnavailable, err)
	}

	catWeights, tagWeights, err := e.data.UserPreferences(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("load preferences: %w", err)
	}

	activities, err := e.data.ActivitiesNear(ctx, req.Lat, req.Lon, req.RadiusKm, MaxCandidates)
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}
	candidates := SelectCandidates(req.Lat, req.Lon, activities, req.RadiusKm, MaxCandidates)

	scorer := e.Scorer()
	items := make([]Item, 0, len(candidates))
	for _, c := range candidates {
		features := BuildFeatures(catWeights, tagWeights, c.Activity, req.Lat, req.Lon, weather)
		items = append(items, Item{
			Activity:   c.Activity,
			DistanceKm: c.DistanceKm,
			Score:      scorer.Score(features),
			Reason:     ReasonText(c.Activity, weather),
		})
	}

	// Score descending; equal scores break by distance ascending, then ID,
	// so ranking is deterministic across runs.
	sort.Slice(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		if items[i].DistanceKm != items[j].DistanceKm {
			return items[i].DistanceKm < items[j].DistanceKm
		}
		return items[i].Activity.ID < items[j].Activity.ID
	})

	if len(items) > limit {
		items = items[:limit]
	}

	requestID := uuid.New()
	if err := e.logImpressions(ctx, req, requestID, items, weather); err != nil {
		return nil, fmt.Errorf("log impressions: %w", err)
	}

	observability.ObserveRecommendation(time.Since(start), len(items), scorer.Name())
	return &Response{RequestID: requestID, Items: items}, nil
}

func (e *Engine) logImpressions(ctx context.Context, req Request, requestID uuid.UUID, items []Item, weather domain.WeatherSlice) error {
	if len(items) == 0 {
		return nil
	}

	now := time.Now().UTC()
	loc := domain.GeoPoint{Lat: req.Lat, Lon: req.Lon}

	events := make([]domain.Event, 0, len(items))
	for i, item := range items {
		activityID, err := uuid.Parse(item.Activity.ID)
		if err != nil {
			return fmt.Errorf("activity id %q: %w", item.Activity.ID, err)
		}
		events = append(events, domain.NewImpression(req.UserID, activityID, requestID, i+1, now, loc, weather))
	}

	if err := e.data.AppendEvents(ctx, events); err != nil {
		return err
	}
	observability.RecordImpressions(len(events))
	return nil
}
