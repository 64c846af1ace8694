package mlmodel

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

// separableDataset draws two Gaussian-ish clusters far enough apart that any
// reasonable learner separates them.
func separableDataset(n int, seed int64) ([][]float64, []int) {
	rng := rand.New(rand.NewSource(seed))
	x := make([][]float64, 0, n)
	y := make([]int, 0, n)
	for i := 0; i < n; i++ {
		label := i % 2
		shift := float64(label) * 4.0
		x = append(x, []float64{
			shift + rng.NormFloat64(),
			-shift + rng.NormFloat64(),
			rng.NormFloat64(), // noise feature
		})
		y = append(y, label)
	}
	return x, y
}

func TestGBDTLearnsSeparableData(t *testing.T) {
	x, y := separableDataset(400, 7)

	model := NewGradientBoostedClassifier(GBDTConfig{
		NumTrees:       50,
		LearningRate:   0.1,
		MaxDepth:       3,
		MinSamplesLeaf: 5,
	})
	require.NoError(t, model.Fit(x, y, nil))

	correct := 0
	for i := range x {
		p := model.PredictProba(x[i])
		require.GreaterOrEqual(t, p, 0.0)
		require.LessOrEqual(t, p, 1.0)
		predicted := 0
		if p >= 0.5 {
			predicted = 1
		}
		if predicted == y[i] {
			correct++
		}
	}
	accuracy := float64(correct) / float64(len(x))
	require.Greater(t, accuracy, 0.9, "accuracy %f too low", accuracy)
}

func TestGBDTEmptyTrainingSet(t *testing.T) {
	model := NewGradientBoostedClassifier(GBDTConfig{})
	require.ErrorIs(t, model.Fit(nil, nil, nil), ErrEmptyTrainingSet)
}

func TestGBDTSampleWeightsShiftPrior(t *testing.T) {
	// One positive among many negatives; upweighting positives must raise
	// the prior probability.
	x := [][]float64{{0}, {0}, {0}, {0}, {0}, {0}, {0}, {0}, {0}, {1}}
	y := []int{0, 0, 0, 0, 0, 0, 0, 0, 0, 1}

	uniform := NewGradientBoostedClassifier(GBDTConfig{NumTrees: 1, MinSamplesLeaf: 100})
	require.NoError(t, uniform.Fit(x, y, nil))

	weights := make([]float64, len(y))
	for i, label := range y {
		weights[i] = 1
		if label == 1 {
			weights[i] = 9
		}
	}
	weighted := NewGradientBoostedClassifier(GBDTConfig{NumTrees: 1, MinSamplesLeaf: 100})
	require.NoError(t, weighted.Fit(x, y, weights))

	require.Greater(t, weighted.InitScore, uniform.InitScore)
}

func TestGBDTGobRoundTrip(t *testing.T) {
	x, y := separableDataset(200, 11)
	model := NewGradientBoostedClassifier(GBDTConfig{
		NumTrees:       20,
		LearningRate:   0.1,
		MaxDepth:       3,
		MinSamplesLeaf: 5,
	})
	require.NoError(t, model.Fit(x, y, nil))

	payload, checksum, err := EncodeModel(model)
	require.NoError(t, err)
	require.NotEmpty(t, payload)
	require.Len(t, checksum, 64)

	decoded, err := DecodeModel(payload, checksum)
	require.NoError(t, err)

	restored, ok := decoded.(*GradientBoostedClassifier)
	require.True(t, ok, "decoded %T", decoded)

	for i := 0; i < 10; i++ {
		require.InDelta(t, model.PredictProba(x[i]), restored.PredictProba(x[i]), 1e-12)
	}
}
