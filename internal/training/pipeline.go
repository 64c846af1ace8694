// Package training implements the offline batch pipeline that turns logged
// impressions and outcomes into a new recommendation model artifact.
package training

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"example.com/recommender/internal/domain"
	"example.com/recommender/internal/mlmodel"
	"example.com/recommender/internal/recommend"
)

// Training-data insufficiency aborts. None of these touch the previously
// deployed artifact; the scheduler decides whether to retry.
var (
	ErrInsufficientImpressions = errors.New("not enough impressions to train")
	ErrNoOutcomes              = errors.New("no outcome events found")
	ErrNoPositives             = errors.New("no positive rows in training split")
)

// Impression is a logged "view" event with complete serve context. Rows
// missing location or weather never reach the pipeline; the store filters
// them out.
type Impression struct {
	EventID    uuid.UUID
	UserID     uuid.UUID
	ActivityID uuid.UUID
	At         time.Time
	Position   int
	Location   domain.GeoPoint
	Weather    domain.WeatherSlice
}

// Outcome is a client-reported positive event (click/save/complete).
type Outcome struct {
	UserID     uuid.UUID
	ActivityID uuid.UUID
	Kind       domain.EventKind
	At         time.Time
}

// Store is the persistence surface the pipeline reads from and writes to.
type Store interface {
	// Impressions returns views since the given time that carry non-null
	// location and weather context.
	Impressions(ctx context.Context, since time.Time) ([]Impression, error)

	// Outcomes returns positive outcome events since the given time.
	Outcomes(ctx context.Context, since time.Time) ([]Outcome, error)

	// Activities returns current activity attributes keyed by ID.
	Activities(ctx context.Context) (map[uuid.UUID]domain.Activity, error)

	// CategoryWeights returns per-user category preference weights.
	CategoryWeights(ctx context.Context) (map[uuid.UUID]map[string]float64, error)

	// SaveArtifact upserts the artifact under its (domain, name, version) key.
	SaveArtifact(ctx context.Context, artifact mlmodel.Artifact) error
}

// Config contains pipeline parameters.
type Config struct {
	Domain          string
	ModelName       string
	Version         int
	LookbackDays    int
	LabelWindowDays int
	MinRows         int
	TestFraction    float64
	Seed            int64
	GBDT            mlmodel.GBDTConfig
}

// DefaultConfig returns the default pipeline parameters.
func DefaultConfig() Config {
	return Config{
		Domain:          "recommender",
		ModelName:       "gbdt",
		Version:         1,
		LookbackDays:    30,
		LabelWindowDays: 7,
		MinRows:         200,
		TestFraction:    0.25,
		Seed:            42,
		GBDT:            mlmodel.DefaultGBDTConfig(),
	}
}

// Report summarizes a completed training run.
type Report struct {
	Impressions  int
	TrainRows    int
	TestRows     int
	PositiveRate float64
	AUC          float64
	AUCDefined   bool
	Version      int
	TrainedAt    time.Time
}

// Pipeline runs the offline training job. It executes out-of-band with live
// serving and tolerates an eventually-consistent view of the event log.
type Pipeline struct {
	store  Store
	cfg    Config
	logger zerolog.Logger
	now    func() time.Time
}

// Option configures optional pipeline behaviour.
type Option func(*Pipeline)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

// NewPipeline constructs a Pipeline.
func NewPipeline(store Store, cfg Config, logger zerolog.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:  store,
		cfg:    cfg,
		logger: logger.With().Str("component", "training").Logger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes the full pipeline and persists a new artifact on success.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	now := p.now().UTC()

	impressions, err := p.store.Impressions(ctx, now.AddDate(0, 0, -p.cfg.LookbackDays))
	if err != nil {
		return nil, fmt.Errorf("load impressions: %w", err)
	}
	if len(impressions) < p.cfg.MinRows {
		return nil, fmt.Errorf("%w: %d < %d", ErrInsufficientImpressions, len(impressions), p.cfg.MinRows)
	}

	outcomes, err := p.store.Outcomes(ctx, now.AddDate(0, 0, -(p.cfg.LookbackDays+p.cfg.LabelWindowDays)))
	if err != nil {
		return nil, fmt.Errorf("load outcomes: %w", err)
	}
	if len(outcomes) == 0 {
		return nil, ErrNoOutcomes
	}

	labels := labelImpressions(impressions, outcomes, p.cfg.LabelWindowDays)

	activities, err := p.store.Activities(ctx)
	if err != nil {
		return nil, fmt.Errorf("load activities: %w", err)
	}
	catWeights, err := p.store.CategoryWeights(ctx)
	if err != nil {
		return nil, fmt.Errorf("load category weights: %w", err)
	}

	rows := p.buildRows(impressions, labels, activities, catWeights)
	train, test := stratifiedSplit(rows, p.cfg.TestFraction, p.cfg.Seed)

	var pos int
	for _, r := range train {
		pos += r.label
	}
	if pos == 0 {
		return nil, ErrNoPositives
	}
	scalePosWeight := float64(len(train)-pos) / float64(pos)

	x := make([][]float64, len(train))
	y := make([]int, len(train))
	w := make([]float64, len(train))
	for i, r := range train {
		x[i] = r.features
		y[i] = r.label
		w[i] = 1.0
		if r.label == 1 {
			w[i] = scalePosWeight
		}
	}

	clf := mlmodel.NewGradientBoostedClassifier(p.cfg.GBDT)
	if err := clf.Fit(x, y, w); err != nil {
		return nil, fmt.Errorf("fit classifier: %w", err)
	}

	testLabels := make([]int, len(test))
	testScores := make([]float64, len(test))
	for i, r := range test {
		testLabels[i] = r.label
		testScores[i] = clf.PredictProba(r.features)
	}
	auc, aucDefined := rocAUC(testLabels, testScores)

	var totalPos int
	for _, r := range rows {
		totalPos += r.label
	}
	report := &Report{
		Impressions:  len(impressions),
		TrainRows:    len(train),
		TestRows:     len(test),
		PositiveRate: float64(totalPos) / float64(len(rows)),
		AUC:          auc,
		AUCDefined:   aucDefined,
		Version:      p.cfg.Version,
		TrainedAt:    now,
	}

	payload, checksum, err := mlmodel.EncodeModel(clf)
	if err != nil {
		return nil, fmt.Errorf("encode model: %w", err)
	}

	metrics := map[string]float64{
		"train_rows":    float64(report.TrainRows),
		"test_rows":     float64(report.TestRows),
		"positive_rate": report.PositiveRate,
	}
	if aucDefined {
		metrics["roc_auc"] = auc
	}

	artifact := mlmodel.Artifact{
		Domain:       p.cfg.Domain,
		Name:         p.cfg.ModelName,
		Version:      p.cfg.Version,
		FeatureOrder: recommend.FeatureOrder(),
		Metrics:      metrics,
		TrainedAt:    now,
		Payload:      payload,
		Checksum:     checksum,
	}
	if err := p.store.SaveArtifact(ctx, artifact); err != nil {
		return nil, fmt.Errorf("save artifact: %w", err)
	}

	p.logger.Info().
		Int("train_rows", report.TrainRows).
		Int("test_rows", report.TestRows).
		Float64("positive_rate", report.PositiveRate).
		Float64("roc_auc", auc).
		Bool("auc_defined", aucDefined).
		Int("version", report.Version).
		Msg("training run complete")
	return report, nil
}

// labeledRow is one training sample: features in canonical order plus label.
type labeledRow struct {
	features []float64
	label    int
}

// labelImpressions joins impressions to outcomes on (user, activity) and
// labels an impression positive when any outcome lands within
// [0, windowDays] days after it. Attribution deliberately ignores request
// ids: a stale or missing id still produces a usable label, and the max over
// joined outcomes means any qualifying match wins.
func labelImpressions(impressions []Impression, outcomes []Outcome, windowDays int) []int {
	type key struct {
		user     uuid.UUID
		activity uuid.UUID
	}
	byPair := make(map[key][]time.Time)
	for _, o := range outcomes {
		if !o.Kind.PositiveSignal() {
			continue
		}
		k := key{o.UserID, o.ActivityID}
		byPair[k] = append(byPair[k], o.At)
	}

	window := float64(windowDays)
	labels := make([]int, len(impressions))
	for i, imp := range impressions {
		for _, t := range byPair[key{imp.UserID, imp.ActivityID}] {
			dtDays := t.Sub(imp.At).Hours() / 24.0
			if dtDays >= 0 && dtDays <= window {
				labels[i] = 1
				break
			}
		}
	}
	return labels
}

// buildRows joins labeled impressions to current activity attributes and
// preference weights and recomputes the serving features. The offline path
// uses a count-only tag_overlap (no per-user tag weighting) and fills in the
// actual serve-time position; both asymmetries versus live scoring are part
// of the trained behavior, not accidents.
func (p *Pipeline) buildRows(
	impressions []Impression,
	labels []int,
	activities map[uuid.UUID]domain.Activity,
	catWeights map[uuid.UUID]map[string]float64,
) []labeledRow {
	order := recommend.FeatureOrder()
	rows := make([]labeledRow, 0, len(impressions))

	for i, imp := range impressions {
		activity, ok := activities[imp.ActivityID]
		if !ok {
			// Activity removed since the impression was served.
			continue
		}

		features := recommend.BuildFeatures(
			catWeights[imp.UserID], nil,
			activity,
			imp.Location.Lat, imp.Location.Lon,
			imp.Weather,
		)
		features["tag_overlap"] = float64(len(activity.Tags))
		features["tag_weighted"] = 0.0
		features["position"] = float64(imp.Position)

		vec := make([]float64, len(order))
		for j, name := range order {
			vec[j] = features[name]
		}
		rows = append(rows, labeledRow{features: vec, label: labels[i]})
	}
	return rows
}
