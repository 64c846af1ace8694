package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"example.com/recommender/internal/api"
	"example.com/recommender/internal/auth"
	"example.com/recommender/internal/config"
	"example.com/recommender/internal/logging"
	"example.com/recommender/internal/mlmodel"
	persistence "example.com/recommender/internal/persistence/postgres"
	"example.com/recommender/internal/recommend"
	httptransport "example.com/recommender/internal/transport/http"
	"example.com/recommender/internal/weather"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogPretty)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pool.Close()

	repo := persistence.NewRepository(pool)
	weatherClient := weather.NewClient(cfg.WeatherBaseURL, logger)

	engine := recommend.NewEngine(repo, weatherClient, logger)

	manager := mlmodel.NewManager(repo, engine, cfg.ModelDomain, cfg.ModelName, logger)
	// Heuristic fallback stays active when no artifact exists yet.
	manager.Reload(ctx)

	handler := api.NewHandler(engine, repo, manager, api.Defaults{
		RadiusKm: cfg.DefaultRadiusKm,
		Horizon:  cfg.Horizon(),
		Limit:    cfg.DefaultLimit,
	})

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(requestLogger(logger))

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})
	router.Use(authMiddleware.Wrap)

	handler.RegisterRoutes(router)
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())

	server := httptransport.NewServer(httptransport.ServerConfig{
		Address: cfg.HTTPAddress,
	}, router)

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info().Str("address", cfg.HTTPAddress).Msg("recommender api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	<-shutdownCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Dur("elapsed", time.Since(start)).
				Msg("request")
		})
	}
}
