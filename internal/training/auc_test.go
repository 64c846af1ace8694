package training

import (
	"math"
	"testing"
)

func TestROCAUCPerfectRanking(t *testing.T) {
	labels := []int{0, 0, 1, 1}
	scores := []float64{0.1, 0.2, 0.8, 0.9}

	auc, ok := rocAUC(labels, scores)
	if !ok {
		t.Fatal("auc should be defined")
	}
	if auc != 1.0 {
		t.Fatalf("expected 1.0 got %f", auc)
	}
}

func TestROCAUCInvertedRanking(t *testing.T) {
	labels := []int{1, 1, 0, 0}
	scores := []float64{0.1, 0.2, 0.8, 0.9}

	auc, ok := rocAUC(labels, scores)
	if !ok {
		t.Fatal("auc should be defined")
	}
	if auc != 0.0 {
		t.Fatalf("expected 0.0 got %f", auc)
	}
}

func TestROCAUCAllTiedScoresIsChance(t *testing.T) {
	labels := []int{0, 1, 0, 1}
	scores := []float64{0.5, 0.5, 0.5, 0.5}

	auc, ok := rocAUC(labels, scores)
	if !ok {
		t.Fatal("auc should be defined")
	}
	if math.Abs(auc-0.5) > 1e-12 {
		t.Fatalf("expected 0.5 got %f", auc)
	}
}

func TestROCAUCPartialTies(t *testing.T) {
	// One positive tied with one negative, one positive above everything.
	labels := []int{0, 1, 0, 1}
	scores := []float64{0.2, 0.2, 0.1, 0.9}

	auc, ok := rocAUC(labels, scores)
	if !ok {
		t.Fatal("auc should be defined")
	}
	// Pairs: (p=0.2 vs n=0.2) counts 0.5, (p=0.2 vs n=0.1) counts 1,
	// (p=0.9 vs both) counts 2. AUC = 3.5/4.
	if math.Abs(auc-0.875) > 1e-12 {
		t.Fatalf("expected 0.875 got %f", auc)
	}
}

func TestROCAUCSingleClassUndefined(t *testing.T) {
	if _, ok := rocAUC([]int{1, 1}, []float64{0.1, 0.9}); ok {
		t.Fatal("single-class auc must be undefined")
	}
	if _, ok := rocAUC([]int{0, 0}, []float64{0.1, 0.9}); ok {
		t.Fatal("single-class auc must be undefined")
	}
	if _, ok := rocAUC(nil, nil); ok {
		t.Fatal("empty auc must be undefined")
	}
}
