package recommend

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"example.com/recommender/internal/domain"
)

type fakeData struct {
	activities []domain.Activity
	catWeights map[string]float64
	tagWeights map[string]float64
	events     []domain.Event
	appendErr  error
	prefsErr   error
}

func (f *fakeData) ActivitiesNear(_ context.Context, _, _, _ float64, _ int) ([]domain.Activity, error) {
	return f.activities, nil
}

func (f *fakeData) UserPreferences(_ context.Context, _ uuid.UUID) (map[string]float64, map[string]float64, error) {
	if f.prefsErr != nil {
		return nil, nil, f.prefsErr
	}
	return f.catWeights, f.tagWeights, nil
}

func (f *fakeData) AppendEvents(_ context.Context, events []domain.Event) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.events = append(f.events, events...)
	return nil
}

type fakeWeather struct {
	slice domain.WeatherSlice
	err   error
}

func (f *fakeWeather) Slice(context.Context, float64, float64, time.Duration) (domain.WeatherSlice, error) {
	return f.slice, f.err
}

// nearbyActivities returns n valid-UUID activities spread northward from the
// given point, all within a few km.
func nearbyActivities(n int, lat, lon float64) []domain.Activity {
	out := make([]domain.Activity, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, domain.Activity{
			ID:       uuid.New().String(),
			Name:     fmt.Sprintf("activity %d", i),
			Category: "sports",
			Lat:      lat + float64(i)*0.0005,
			Lon:      lon,
		})
	}
	return out
}

func TestRecommendTruncatesAndLogsImpressions(t *testing.T) {
	lat, lon := 41.3851, 2.1734
	data := &fakeData{activities: nearbyActivities(50, lat, lon)}
	weather := &fakeWeather{slice: domain.WeatherSlice{TempC: 20, PrecipProb: 10, IsDay: 1}}
	engine := NewEngine(data, weather, zerolog.Nop())

	userID := uuid.New()
	resp, err := engine.Recommend(context.Background(), Request{
		UserID:   userID,
		Lat:      lat,
		Lon:      lon,
		RadiusKm: 10,
		Horizon:  2 * time.Hour,
	})
	if err != nil {
		t.Fatalf("recommend failed: %v", err)
	}

	if len(resp.Items) != DefaultLimit {
		t.Fatalf("expected %d items got %d", DefaultLimit, len(resp.Items))
	}
	if resp.RequestID == uuid.Nil {
		t.Fatal("request id must be set")
	}

	// One impression per served item, positions 1..N sharing the request id.
	if len(data.events) != DefaultLimit {
		t.Fatalf("expected %d impressions got %d", DefaultLimit, len(data.events))
	}
	for i, ev := range data.events {
		if ev.Kind != domain.EventView {
			t.Fatalf("impression %d has kind %s", i, ev.Kind)
		}
		if ev.Position == nil || *ev.Position != i+1 {
			t.Fatalf("impression %d has position %v", i, ev.Position)
		}
		if ev.RequestID == nil || *ev.RequestID != resp.RequestID {
			t.Fatalf("impression %d not linked to request", i)
		}
		if ev.UserID != userID {
			t.Fatalf("impression %d has user %s", i, ev.UserID)
		}
		if ev.Location == nil || ev.Weather == nil {
			t.Fatalf("impression %d missing serve context", i)
		}
	}
}

func TestRecommendOrdersByScoreThenDistance(t *testing.T) {
	lat, lon := 41.3851, 2.1734
	liked := domain.Activity{ID: uuid.New().String(), Category: "culture", Lat: lat + 0.01, Lon: lon}
	near := domain.Activity{ID: uuid.New().String(), Category: "sports", Lat: lat + 0.001, Lon: lon}
	far := domain.Activity{ID: uuid.New().String(), Category: "sports", Lat: lat + 0.02, Lon: lon}

	data := &fakeData{
		activities: []domain.Activity{far, near, liked},
		catWeights: map[string]float64{"culture": 5},
	}
	weather := &fakeWeather{slice: domain.WeatherSlice{TempC: 20, PrecipProb: 0, IsDay: 1}}
	engine := NewEngine(data, weather, zerolog.Nop())

	resp, err := engine.Recommend(context.Background(), Request{
		UserID:   uuid.New(),
		Lat:      lat,
		Lon:      lon,
		RadiusKm: 10,
		Horizon:  time.Hour,
	})
	if err != nil {
		t.Fatalf("recommend failed: %v", err)
	}

	if len(resp.Items) != 3 {
		t.Fatalf("expected 3 items got %d", len(resp.Items))
	}
	if resp.Items[0].Activity.ID != liked.ID {
		t.Fatal("category preference should rank first despite distance")
	}
	if resp.Items[1].Activity.ID != near.ID || resp.Items[2].Activity.ID != far.ID {
		t.Fatal("closer candidate should rank ahead of the farther one")
	}
}

func TestRecommendWeatherFailure(t *testing.T) {
	data := &fakeData{}
	weather := &fakeWeather{err: errors.New("timeout")}
	engine := NewEngine(data, weather, zerolog.Nop())

	_, err := engine.Recommend(context.Background(), Request{RadiusKm: 5, Horizon: time.Hour})
	if !errors.Is(err, ErrWeatherUnavailable) {
		t.Fatalf("expected ErrWeatherUnavailable got %v", err)
	}
	if len(data.events) != 0 {
		t.Fatal("no impressions may be written on failure")
	}
}

func TestRecommendImpressionWriteFailureFailsRequest(t *testing.T) {
	lat, lon := 41.3851, 2.1734
	data := &fakeData{
		activities: nearbyActivities(3, lat, lon),
		appendErr:  errors.New("db down"),
	}
	weather := &fakeWeather{slice: domain.WeatherSlice{TempC: 20}}
	engine := NewEngine(data, weather, zerolog.Nop())

	_, err := engine.Recommend(context.Background(), Request{
		Lat: lat, Lon: lon, RadiusKm: 10, Horizon: time.Hour,
	})
	if err == nil {
		t.Fatal("expected error when impression batch cannot be committed")
	}
}

func TestRecommendEmptyCandidateSet(t *testing.T) {
	data := &fakeData{}
	weather := &fakeWeather{slice: domain.WeatherSlice{TempC: 20}}
	engine := NewEngine(data, weather, zerolog.Nop())

	resp, err := engine.Recommend(context.Background(), Request{RadiusKm: 5, Horizon: time.Hour})
	if err != nil {
		t.Fatalf("empty candidate set must succeed: %v", err)
	}
	if len(resp.Items) != 0 {
		t.Fatalf("expected no items got %d", len(resp.Items))
	}
	if len(data.events) != 0 {
		t.Fatal("no impressions for an empty response")
	}
}

type constantScorer struct {
	value float64
	name  string
}

func (c constantScorer) Score(map[string]float64) float64 { return c.value }
func (c constantScorer) Name() string                     { return c.name }

func TestSetScorerVisibleToSubsequentCalls(t *testing.T) {
	lat, lon := 41.3851, 2.1734
	data := &fakeData{activities: nearbyActivities(1, lat, lon)}
	weather := &fakeWeather{slice: domain.WeatherSlice{TempC: 20}}
	engine := NewEngine(data, weather, zerolog.Nop())

	if engine.Scorer().Name() != "heuristic" {
		t.Fatalf("expected heuristic default, got %s", engine.Scorer().Name())
	}

	engine.SetScorer(constantScorer{value: 7.5, name: "gbdt-v1"})

	resp, err := engine.Recommend(context.Background(), Request{
		Lat: lat, Lon: lon, RadiusKm: 10, Horizon: time.Hour,
	})
	if err != nil {
		t.Fatalf("recommend failed: %v", err)
	}
	if resp.Items[0].Score != 7.5 {
		t.Fatalf("new scorer not applied, score = %f", resp.Items[0].Score)
	}
}
