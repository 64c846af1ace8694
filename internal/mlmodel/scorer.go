package mlmodel

import (
	"fmt"

	"example.com/recommender/internal/recommend"
)

// ProbabilisticClassifier scores a sample with a positive-class probability.
type ProbabilisticClassifier interface {
	PredictProba(x []float64) float64
}

// PointPredictor produces a raw point prediction. Used as the scoring
// capability when a model exposes no probability estimate.
type PointPredictor interface {
	Predict(x []float64) float64
}

// ModelScorer adapts a loaded classifier into the engine's Scorer contract.
// The scoring capability is selected once at construction time; Score builds
// the input vector by indexing features by name in the artifact's stored
// order, never by positional assumption, so missing names resolve to 0.0.
type ModelScorer struct {
	name         string
	predict      func([]float64) float64
	featureOrder []string
	fallback     recommend.HeuristicScorer
}

// NewModelScorer wires a decoded model to its feature schema. It fails when
// the model exposes neither scoring capability.
func NewModelScorer(model any, featureOrder []string, name string, version int) (*ModelScorer, error) {
	s := &ModelScorer{
		name:         fmt.Sprintf("%s-v%d", name, version),
		featureOrder: featureOrder,
	}

	switch m := model.(type) {
	case ProbabilisticClassifier:
		s.predict = m.PredictProba
	case PointPredictor:
		s.predict = m.Predict
	default:
		return nil, fmt.Errorf("model %T exposes no scoring capability", model)
	}
	return s, nil
}

// Name implements recommend.Scorer.
func (s *ModelScorer) Name() string { return s.name }

// Score implements recommend.Scorer. Any internal failure degrades to the
// heuristic score rather than propagating into the serving path.
func (s *ModelScorer) Score(features map[string]float64) (score float64) {
	defer func() {
		if r := recover(); r != nil {
			score = s.fallback.Score(features)
		}
	}()

	x := make([]float64, len(s.featureOrder))
	for i, name := range s.featureOrder {
		x[i] = features[name]
	}
	return s.predict(x)
}
