package mlmodel

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"example.com/recommender/internal/observability"
	"example.com/recommender/internal/recommend"
)

// ErrNoArtifact is returned by stores when no artifact exists for a key.
var ErrNoArtifact = errors.New("no model artifact")

// ArtifactStore is the persistence surface for model artifacts.
type ArtifactStore interface {
	// LatestArtifact returns the most recent artifact by training timestamp
	// for the given (domain, name), or ErrNoArtifact.
	LatestArtifact(ctx context.Context, domain, name string) (*Artifact, error)
}

// ScorerSink is the engine-side handle the manager swaps scorers into.
type ScorerSink interface {
	SetScorer(recommend.Scorer)
}

// Manager owns the model lifecycle: it loads the latest artifact at startup
// and serves the privileged reload operation. Every load failure installs the
// heuristic scorer instead of surfacing an error to serving (fail-open); the
// swap itself is atomic inside the engine, so no scoring call observes a
// half-initialized model.
type Manager struct {
	store     ArtifactStore
	sink      ScorerSink
	domainKey string
	modelName string
	logger    zerolog.Logger

	mu      sync.Mutex
	loaded  bool
	version int
}

// NewManager constructs a Manager for one (domain, model-name) key.
func NewManager(store ArtifactStore, sink ScorerSink, domainKey, modelName string, logger zerolog.Logger) *Manager {
	return &Manager{
		store:     store,
		sink:      sink,
		domainKey: domainKey,
		modelName: modelName,
		logger:    logger.With().Str("component", "mlmodel").Logger(),
	}
}

// Loaded reports whether a learned model is currently active, and its version.
func (m *Manager) Loaded() (bool, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loaded, m.version
}

// Reload re-attempts the artifact load and atomically replaces the active
// scorer. It returns whether a learned model is active afterwards. Failures
// leave the service on the heuristic scorer.
func (m *Manager) Reload(ctx context.Context) (bool, int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	artifact, err := m.store.LatestArtifact(ctx, m.domainKey, m.modelName)
	if err != nil {
		m.failOpen(err)
		return false, 0
	}

	model, err := DecodeModel(artifact.Payload, artifact.Checksum)
	if err != nil {
		m.failOpen(err)
		return false, 0
	}

	if !equalSchema(artifact.FeatureOrder, recommend.FeatureOrder()) {
		// Name-indexed scoring keeps this survivable, but it means the
		// artifact was trained against a different feature builder.
		observability.RecordSchemaMismatch()
		m.logger.Warn().
			Int("artifact_features", len(artifact.FeatureOrder)).
			Int("online_features", len(recommend.FeatureOrder())).
			Msg("artifact feature schema diverges from online feature set")
	}

	scorer, err := NewModelScorer(model, artifact.FeatureOrder, artifact.Name, artifact.Version)
	if err != nil {
		m.failOpen(err)
		return false, 0
	}

	m.sink.SetScorer(scorer)
	m.loaded = true
	m.version = artifact.Version
	observability.RecordModelLoaded(artifact.Version, artifact.TrainedAt)
	m.logger.Info().
		Int("version", artifact.Version).
		Time("trained_at", artifact.TrainedAt).
		Interface("metrics", artifact.Metrics).
		Msg("model artifact loaded")
	return true, artifact.Version
}

func (m *Manager) failOpen(err error) {
	m.sink.SetScorer(recommend.HeuristicScorer{})
	m.loaded = false
	m.version = 0
	observability.RecordModelUnloaded()
	observability.RecordModelLoadFailure()

	evt := m.logger.Warn()
	if errors.Is(err, ErrNoArtifact) {
		evt = m.logger.Info()
	}
	evt.Err(err).Msg("model load failed, serving with heuristic scorer")
}

func equalSchema(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
