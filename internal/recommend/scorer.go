package recommend

// Scorer maps a feature vector to a ranking score. Implementations must be
// total: Score never panics and never returns an error, degrading internally
// instead of propagating failures into the serving path.
type Scorer interface {
	// Score returns the ranking score for one candidate's features.
	Score(features map[string]float64) float64
	// Name identifies the scoring strategy for logs and metrics.
	Name() string
}

// HeuristicScorer is the always-available fallback strategy used whenever no
// model artifact is loaded. It is deterministic and side-effect-free.
type HeuristicScorer struct{}

// Name implements Scorer.
func (HeuristicScorer) Name() string { return "heuristic" }

// Score implements the fallback formula. Missing keys read as zero.
func (HeuristicScorer) Score(features map[string]float64) float64 {
	base := 0.0
	base += 2.0 * features["cat_weight"]
	base += 0.5 * features["tag_overlap"]
	base -= 0.15 * features["distance_km"]
	base -= 1.0 * features["precip_penalty"]
	base -= 0.5 * features["wind_penalty"]
	return base
}
