package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/recommender/internal/config"
	"example.com/recommender/internal/logging"
	persistence "example.com/recommender/internal/persistence/postgres"
	"example.com/recommender/internal/training"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogPretty)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pool.Close()

	repo := persistence.NewRepository(pool)

	trainCfg := training.DefaultConfig()
	trainCfg.Domain = cfg.ModelDomain
	trainCfg.ModelName = cfg.ModelName
	trainCfg.Version = cfg.ModelVersion
	trainCfg.LookbackDays = cfg.LookbackDays
	trainCfg.LabelWindowDays = cfg.LabelWindowDays
	trainCfg.MinRows = cfg.MinTrainingRows

	pipeline := training.NewPipeline(repo, trainCfg, logger)

	start := time.Now()
	report, err := pipeline.Run(ctx)
	if err != nil {
		// Thin data is a normal early-deployment state, not a job failure.
		if errors.Is(err, training.ErrInsufficientImpressions) ||
			errors.Is(err, training.ErrNoOutcomes) ||
			errors.Is(err, training.ErrNoPositives) {
			logger.Info().Err(err).Msg("not enough training data, skipping run")
			return
		}
		logger.Error().Err(err).Msg("training run failed")
		os.Exit(1)
	}

	event := logger.Info().
		Int("impressions", report.Impressions).
		Int("train_rows", report.TrainRows).
		Int("test_rows", report.TestRows).
		Float64("positive_rate", report.PositiveRate).
		Int("version", report.Version).
		Dur("elapsed", time.Since(start))
	if report.AUCDefined {
		event = event.Float64("roc_auc", report.AUC)
	}
	event.Msg("model trained and stored")
}
