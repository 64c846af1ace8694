package recommend

import (
	"math"
	"testing"
)

func TestHeuristicScorerFormula(t *testing.T) {
	features := map[string]float64{
		"cat_weight":     1.5,
		"tag_overlap":    2,
		"distance_km":    4,
		"precip_penalty": 0.3,
		"wind_penalty":   0.2,
	}

	got := HeuristicScorer{}.Score(features)
	want := 2.0*1.5 + 0.5*2 - 0.15*4 - 1.0*0.3 - 0.5*0.2
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("got %f want %f", got, want)
	}
}

func TestHeuristicScorerMissingKeysReadAsZero(t *testing.T) {
	if got := (HeuristicScorer{}).Score(map[string]float64{}); got != 0 {
		t.Fatalf("empty features should score 0, got %f", got)
	}
	if got := (HeuristicScorer{}).Score(nil); got != 0 {
		t.Fatalf("nil features should score 0, got %f", got)
	}
}

func TestHeuristicScorerDeterministic(t *testing.T) {
	features := map[string]float64{"cat_weight": 0.7, "distance_km": 1.2}
	first := HeuristicScorer{}.Score(features)
	for i := 0; i < 10; i++ {
		if (HeuristicScorer{}).Score(features) != first {
			t.Fatal("score must be deterministic for identical input")
		}
	}
}
