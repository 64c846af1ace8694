//go:build integration

package postgres

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/recommender/internal/domain"
	"example.com/recommender/internal/mlmodel"
)

func setupRepository(t *testing.T) (*Repository, *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("recommender"),
		postgrescontainer.WithUsername("recommender"),
		postgrescontainer.WithPassword("recommender"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, waitForDatabase(ctx, connStr))

	applySchema(t, ctx, connStr)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return NewRepository(pool), pool
}

func applySchema(t *testing.T, ctx context.Context, connStr string) {
	t.Helper()
	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	defer pool.Close()

	contents, err := os.ReadFile(resolvePath(t, "../../../schema.sql"))
	require.NoError(t, err)
	_, err = pool.Exec(ctx, string(contents))
	require.NoError(t, err)
}

func resolvePath(t *testing.T, rel string) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Join(filepath.Dir(file), rel)
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}

func insertActivity(t *testing.T, ctx context.Context, pool *pgxpool.Pool, a domain.Activity) {
	t.Helper()
	_, err := pool.Exec(ctx,
		`INSERT INTO activities (id, name, category, tags, indoor, covered, price_level, difficulty, duration_minutes, lat, lon)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		a.ID, a.Name, a.Category, a.Tags, a.Indoor, a.Covered, a.PriceLevel, a.Difficulty, a.DurationMinutes, a.Lat, a.Lon)
	require.NoError(t, err)
}

func TestRepositoryActivitiesNearBoundingBox(t *testing.T) {
	repo, pool := setupRepository(t)
	ctx := context.Background()

	near := domain.Activity{ID: uuid.NewString(), Name: "near", Category: "sports", Tags: []string{"x"}, Lat: 41.39, Lon: 2.17, DurationMinutes: 60}
	far := domain.Activity{ID: uuid.NewString(), Name: "far", Category: "sports", Lat: 48.85, Lon: 2.35, DurationMinutes: 60}
	insertActivity(t, ctx, pool, near)
	insertActivity(t, ctx, pool, far)

	got, err := repo.ActivitiesNear(ctx, 41.3851, 2.1734, 10, 100)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, near.ID, got[0].ID)
	require.Equal(t, []string{"x"}, got[0].Tags)
}

func TestRepositoryEventRoundTrip(t *testing.T) {
	repo, _ := setupRepository(t)
	ctx := context.Background()

	activity := domain.Activity{ID: uuid.NewString(), Name: "a", Category: "sports", Lat: 41.39, Lon: 2.17}
	userID := uuid.New()
	requestID := uuid.New()
	served := time.Now().UTC().Truncate(time.Millisecond)

	impression := domain.NewImpression(
		userID, uuid.MustParse(activity.ID), requestID, 3, served,
		domain.GeoPoint{Lat: 41.3851, Lon: 2.1734},
		domain.WeatherSlice{TempC: 18, PrecipProb: 20, WindKmh: 8, IsDay: 1},
	)
	outcome := domain.Event{
		ID:         uuid.New(),
		UserID:     userID,
		ActivityID: uuid.MustParse(activity.ID),
		Kind:       domain.EventSave,
		OccurredAt: served.Add(time.Hour),
		RequestID:  &requestID,
	}
	require.NoError(t, repo.AppendEvents(ctx, []domain.Event{impression, outcome}))

	impressions, err := repo.Impressions(ctx, served.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, impressions, 1)
	require.Equal(t, userID, impressions[0].UserID)
	require.Equal(t, 3, impressions[0].Position)
	require.InDelta(t, 18.0, impressions[0].Weather.TempC, 1e-9)
	require.InDelta(t, 41.3851, impressions[0].Location.Lat, 1e-9)

	outcomes, err := repo.Outcomes(ctx, served.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	require.Equal(t, domain.EventSave, outcomes[0].Kind)
}

func TestRepositoryUserPreferences(t *testing.T) {
	repo, pool := setupRepository(t)
	ctx := context.Background()

	userID := uuid.New()
	_, err := pool.Exec(ctx,
		`INSERT INTO user_preferences (user_id, category, weight) VALUES ($1, 'culture', 2.5)`, userID)
	require.NoError(t, err)

	activity := domain.Activity{ID: uuid.NewString(), Name: "m", Category: "culture", Tags: []string{"art", "museum"}, Lat: 41.39, Lon: 2.17}
	insertActivity(t, ctx, pool, activity)

	saved := domain.Event{
		ID:         uuid.New(),
		UserID:     userID,
		ActivityID: uuid.MustParse(activity.ID),
		Kind:       domain.EventSave,
		OccurredAt: time.Now().UTC(),
	}
	require.NoError(t, repo.AppendEvents(ctx, []domain.Event{saved}))

	catWeights, tagWeights, err := repo.UserPreferences(ctx, userID)
	require.NoError(t, err)
	require.Equal(t, 2.5, catWeights["culture"])
	require.Equal(t, 1.0, tagWeights["art"])
	require.Equal(t, 1.0, tagWeights["museum"])
}

func TestRepositoryArtifactUpsertAndLatest(t *testing.T) {
	repo, _ := setupRepository(t)
	ctx := context.Background()

	_, err := repo.LatestArtifact(ctx, "recommender", "gbdt")
	require.ErrorIs(t, err, mlmodel.ErrNoArtifact)

	payload, checksum, err := mlmodel.EncodeModel(mlmodel.NewGradientBoostedClassifier(mlmodel.GBDTConfig{}))
	require.NoError(t, err)

	first := mlmodel.Artifact{
		Domain: "recommender", Name: "gbdt", Version: 1,
		FeatureOrder: []string{"a", "b"},
		Metrics:      map[string]float64{"roc_auc": 0.8},
		TrainedAt:    time.Now().UTC().Add(-time.Hour).Truncate(time.Millisecond),
		Payload:      payload, Checksum: checksum,
	}
	require.NoError(t, repo.SaveArtifact(ctx, first))

	second := first
	second.Version = 2
	second.TrainedAt = time.Now().UTC().Truncate(time.Millisecond)
	second.Metrics = map[string]float64{"roc_auc": 0.9}
	require.NoError(t, repo.SaveArtifact(ctx, second))

	latest, err := repo.LatestArtifact(ctx, "recommender", "gbdt")
	require.NoError(t, err)
	require.Equal(t, 2, latest.Version)
	require.Equal(t, []string{"a", "b"}, latest.FeatureOrder)
	require.Equal(t, 0.9, latest.Metrics["roc_auc"])
	require.Equal(t, checksum, latest.Checksum)

	// Re-saving the same version overwrites in place.
	second.Metrics["roc_auc"] = 0.95
	require.NoError(t, repo.SaveArtifact(ctx, second))
	latest, err = repo.LatestArtifact(ctx, "recommender", "gbdt")
	require.NoError(t, err)
	require.Equal(t, 0.95, latest.Metrics["roc_auc"])
}
