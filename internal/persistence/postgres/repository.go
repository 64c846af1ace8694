// Package postgres provides Postgres-backed persistence for activities, the
// append-only event log, user preferences, and model artifacts.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/recommender/internal/domain"
	"example.com/recommender/internal/mlmodel"
	"example.com/recommender/internal/training"
)

// kmPerDegreeLat approximates one degree of latitude. Only used to build the
// coarse bounding box; the exact great-circle test happens in the engine.
const kmPerDegreeLat = 111.0

// Repository implements the engine's data provider, the training store, and
// the artifact store on one pgx pool.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ActivitiesNear returns activities inside a bounding box around the point.
// The box over-selects by construction; callers apply the radius test.
func (r *Repository) ActivitiesNear(ctx context.Context, lat, lon, radiusKm float64, limit int) ([]domain.Activity, error) {
	latDelta := radiusKm / kmPerDegreeLat
	cosLat := math.Cos(lat * math.Pi / 180.0)
	lonDelta := 180.0
	if cosLat > 0.01 {
		lonDelta = radiusKm / (kmPerDegreeLat * cosLat)
	}

	const query = `SELECT id::text, name, category, tags, indoor, covered, price_level, difficulty, duration_minutes, lat, lon
        FROM activities
        WHERE lat BETWEEN $1 AND $2 AND lon BETWEEN $3 AND $4
        LIMIT $5`

	rows, err := r.pool.Query(ctx, query, lat-latDelta, lat+latDelta, lon-lonDelta, lon+lonDelta, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Activity, 0, limit)
	for rows.Next() {
		var a domain.Activity
		if err := rows.Scan(&a.ID, &a.Name, &a.Category, &a.Tags, &a.Indoor, &a.Covered, &a.PriceLevel, &a.Difficulty, &a.DurationMinutes, &a.Lat, &a.Lon); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UserPreferences returns the category-weight map and historical
// tag-interaction counts for a user. A user with no data gets empty maps.
func (r *Repository) UserPreferences(ctx context.Context, userID uuid.UUID) (map[string]float64, map[string]float64, error) {
	catWeights := make(map[string]float64)
	rows, err := r.pool.Query(ctx,
		`SELECT category, weight FROM user_preferences WHERE user_id = $1`, userID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var category string
		var weight float64
		if err := rows.Scan(&category, &weight); err != nil {
			return nil, nil, err
		}
		catWeights[category] = weight
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	// Tag affinity is learned from the user's own save/complete history,
	// not declared preferences.
	tagWeights := make(map[string]float64)
	tagRows, err := r.pool.Query(ctx,
		`SELECT unnest(a.tags) AS tag, count(*) AS cnt
         FROM events e
         JOIN activities a ON a.id = e.activity_id
         WHERE e.user_id = $1 AND e.event_type IN ('save','complete')
         GROUP BY 1`, userID)
	if err != nil {
		return nil, nil, err
	}
	defer tagRows.Close()
	for tagRows.Next() {
		var tag string
		var cnt float64
		if err := tagRows.Scan(&tag, &cnt); err != nil {
			return nil, nil, err
		}
		tagWeights[tag] = cnt
	}
	return catWeights, tagWeights, tagRows.Err()
}

// AppendEvents persists a batch of events in a single transaction. The event
// log is append-only; rows are never updated or deleted here.
func (r *Repository) AppendEvents(ctx context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const stmt = `INSERT INTO events (
            id, user_id, activity_id, event_type, ts,
            request_id, position,
            user_lat, user_lon,
            weather_temp_c, weather_precip_prob, weather_wind_kmh, weather_is_day)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`

	for _, ev := range events {
		var lat, lon, tempC, precip, wind, isDay *float64
		if ev.Location != nil {
			lat, lon = &ev.Location.Lat, &ev.Location.Lon
		}
		if ev.Weather != nil {
			tempC = &ev.Weather.TempC
			precip = &ev.Weather.PrecipProb
			wind = &ev.Weather.WindKmh
			isDay = &ev.Weather.IsDay
		}

		if _, err := tx.Exec(ctx, stmt,
			ev.ID, ev.UserID, ev.ActivityID, string(ev.Kind), ev.OccurredAt,
			ev.RequestID, ev.Position,
			lat, lon,
			tempC, precip, wind, isDay,
		); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// Impressions returns "view" events since the given time that carry full
// serve context. Rows with missing location or weather are useless as
// training input and are filtered in SQL.
func (r *Repository) Impressions(ctx context.Context, since time.Time) ([]training.Impression, error) {
	const query = `SELECT id, user_id, activity_id, ts, COALESCE(position, 0),
            user_lat, user_lon,
            weather_temp_c, weather_precip_prob, weather_wind_kmh, weather_is_day
        FROM events
        WHERE event_type = 'view'
          AND ts >= $1
          AND user_lat IS NOT NULL AND user_lon IS NOT NULL
          AND weather_temp_c IS NOT NULL AND weather_precip_prob IS NOT NULL
          AND weather_wind_kmh IS NOT NULL AND weather_is_day IS NOT NULL
        ORDER BY ts`

	rows, err := r.pool.Query(ctx, query, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []training.Impression
	for rows.Next() {
		var imp training.Impression
		if err := rows.Scan(&imp.EventID, &imp.UserID, &imp.ActivityID, &imp.At, &imp.Position,
			&imp.Location.Lat, &imp.Location.Lon,
			&imp.Weather.TempC, &imp.Weather.PrecipProb, &imp.Weather.WindKmh, &imp.Weather.IsDay,
		); err != nil {
			return nil, err
		}
		out = append(out, imp)
	}
	return out, rows.Err()
}

// Outcomes returns positive outcome events since the given time.
func (r *Repository) Outcomes(ctx context.Context, since time.Time) ([]training.Outcome, error) {
	const query = `SELECT user_id, activity_id, event_type, ts
        FROM events
        WHERE event_type IN ('click','save','complete') AND ts >= $1
        ORDER BY ts`

	rows, err := r.pool.Query(ctx, query, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []training.Outcome
	for rows.Next() {
		var o training.Outcome
		var kind string
		if err := rows.Scan(&o.UserID, &o.ActivityID, &kind, &o.At); err != nil {
			return nil, err
		}
		o.Kind = domain.EventKind(kind)
		out = append(out, o)
	}
	return out, rows.Err()
}

// Activities returns all activity attributes keyed by ID.
func (r *Repository) Activities(ctx context.Context) (map[uuid.UUID]domain.Activity, error) {
	const query = `SELECT id, id::text, name, category, tags, indoor, covered, price_level, difficulty, duration_minutes, lat, lon
        FROM activities`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[uuid.UUID]domain.Activity)
	for rows.Next() {
		var id uuid.UUID
		var a domain.Activity
		if err := rows.Scan(&id, &a.ID, &a.Name, &a.Category, &a.Tags, &a.Indoor, &a.Covered, &a.PriceLevel, &a.Difficulty, &a.DurationMinutes, &a.Lat, &a.Lon); err != nil {
			return nil, err
		}
		out[id] = a
	}
	return out, rows.Err()
}

// CategoryWeights returns per-user category preference weights.
func (r *Repository) CategoryWeights(ctx context.Context) (map[uuid.UUID]map[string]float64, error) {
	rows, err := r.pool.Query(ctx, `SELECT user_id, category, weight FROM user_preferences`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[uuid.UUID]map[string]float64)
	for rows.Next() {
		var userID uuid.UUID
		var category string
		var weight float64
		if err := rows.Scan(&userID, &category, &weight); err != nil {
			return nil, err
		}
		if out[userID] == nil {
			out[userID] = make(map[string]float64)
		}
		out[userID][category] = weight
	}
	return out, rows.Err()
}

// SaveArtifact upserts a model artifact under its (domain, name, version)
// key: retraining the same version replaces payload and metadata in place.
func (r *Repository) SaveArtifact(ctx context.Context, artifact mlmodel.Artifact) error {
	featureOrder, err := json.Marshal(artifact.FeatureOrder)
	if err != nil {
		return fmt.Errorf("marshal feature order: %w", err)
	}
	metrics, err := json.Marshal(artifact.Metrics)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}

	const stmt = `INSERT INTO ml_models (domain, model_name, version, feature_order, metrics, trained_at, model, checksum)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        ON CONFLICT (domain, model_name, version) DO UPDATE SET
            feature_order = EXCLUDED.feature_order,
            metrics = EXCLUDED.metrics,
            trained_at = EXCLUDED.trained_at,
            model = EXCLUDED.model,
            checksum = EXCLUDED.checksum`

	_, err = r.pool.Exec(ctx, stmt,
		artifact.Domain, artifact.Name, artifact.Version,
		featureOrder, metrics, artifact.TrainedAt, artifact.Payload, artifact.Checksum)
	return err
}

// LatestArtifact returns the most recent artifact by training timestamp for
// the given (domain, name).
func (r *Repository) LatestArtifact(ctx context.Context, domainKey, name string) (*mlmodel.Artifact, error) {
	const query = `SELECT domain, model_name, version, feature_order, metrics, trained_at, model, checksum
        FROM ml_models
        WHERE domain = $1 AND model_name = $2
        ORDER BY trained_at DESC
        LIMIT 1`

	var artifact mlmodel.Artifact
	var featureOrder, metrics []byte
	err := r.pool.QueryRow(ctx, query, domainKey, name).Scan(
		&artifact.Domain, &artifact.Name, &artifact.Version,
		&featureOrder, &metrics, &artifact.TrainedAt, &artifact.Payload, &artifact.Checksum)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, mlmodel.ErrNoArtifact
		}
		return nil, err
	}

	if err := json.Unmarshal(featureOrder, &artifact.FeatureOrder); err != nil {
		return nil, fmt.Errorf("unmarshal feature order: %w", err)
	}
	if err := json.Unmarshal(metrics, &artifact.Metrics); err != nil {
		return nil, fmt.Errorf("unmarshal metrics: %w", err)
	}
	return &artifact, nil
}
