// Package mlmodel provides the learned scoring model: a gradient-boosted
// classifier, the versioned artifact format it is persisted in, and the
// lifecycle manager that loads artifacts into the serving engine.
package mlmodel

import (
	"errors"
	"math"
	"sort"
)

// GBDTConfig contains training hyperparameters for the gradient-boosted
// classifier.
type GBDTConfig struct {
	// NumTrees is the number of boosting rounds.
	// Default: 300.
	NumTrees int

	// LearningRate shrinks each tree's contribution.
	// Typical range: 0.01-0.1. Default: 0.05.
	LearningRate float64

	// MaxDepth bounds individual tree depth.
	// Default: 4.
	MaxDepth int

	// MinSamplesLeaf is the minimum number of samples per leaf.
	// Default: 20.
	MinSamplesLeaf int

	// Lambda is the L2 regularization applied to leaf values.
	// Default: 1.0.
	Lambda float64
}

// DefaultGBDTConfig returns the default training configuration.
func DefaultGBDTConfig() GBDTConfig {
	return GBDTConfig{
		NumTrees:       300,
		LearningRate:   0.05,
		MaxDepth:       4,
		MinSamplesLeaf: 20,
		Lambda:         1.0,
	}
}

func (c GBDTConfig) withDefaults() GBDTConfig {
	d := DefaultGBDTConfig()
	if c.NumTrees <= 0 {
		c.NumTrees = d.NumTrees
	}
	if c.LearningRate <= 0 {
		c.LearningRate = d.LearningRate
	}
	if c.MaxDepth <= 0 {
		c.MaxDepth = d.MaxDepth
	}
	if c.MinSamplesLeaf <= 0 {
		c.MinSamplesLeaf = d.MinSamplesLeaf
	}
	if c.Lambda <= 0 {
		c.Lambda = d.Lambda
	}
	return c
}

// TreeNode is one node of a regression tree. Fields are exported for gob
// serialization; the tree is immutable once fitted.
type TreeNode struct {
	Leaf      bool
	Value     float64
	Feature   int
	Threshold float64
	Left      *TreeNode
	Right     *TreeNode
}

func (n *TreeNode) eval(x []float64) float64 {
	for !n.Leaf {
		if x[n.Feature] <= n.Threshold {
			n = n.Left
		} else {
			n = n.Right
		}
	}
	return n.Value
}

// GradientBoostedClassifier is a binary classifier trained with gradient
// boosting on logistic loss. Trees are fitted on first-order residuals with
// Newton (second-order) leaf values, matching the usual GBDT formulation.
type GradientBoostedClassifier struct {
	Config       GBDTConfig
	InitScore    float64
	Trees        []*TreeNode
	FeatureCount int
}

// NewGradientBoostedClassifier constructs an untrained classifier.
func NewGradientBoostedClassifier(cfg GBDTConfig) *GradientBoostedClassifier {
	return &GradientBoostedClassifier{Config: cfg.withDefaults()}
}

// ErrEmptyTrainingSet is returned when Fit receives no rows.
var ErrEmptyTrainingSet = errors.New("empty training set")

// Fit trains the ensemble. y must contain 0/1 labels; weights scales each
// sample's contribution (class-imbalance weighting is expressed this way)
// and may be nil for uniform weights.
func (g *GradientBoostedClassifier) Fit(x [][]float64, y []int, weights []float64) error {
	n := len(x)
	if n == 0 || len(y) != n {
		return ErrEmptyTrainingSet
	}
	if weights == nil {
		weights = make([]float64, n)
		for i := range weights {
			weights[i] = 1.0
		}
	}
	g.FeatureCount = len(x[0])

	// Weighted prior log-odds as the starting score.
	var sumW, sumPos float64
	for i := range y {
		sumW += weights[i]
		if y[i] == 1 {
			sumPos += weights[i]
		}
	}
	p0 := clamp(sumPos/sumW, 1e-6, 1-1e-6)
	g.InitScore = math.Log(p0 / (1 - p0))

	raw := make([]float64, n)
	for i := range raw {
		raw[i] = g.InitScore
	}

	grad := make([]float64, n)
	hess := make([]float64, n)
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}

	g.Trees = make([]*TreeNode, 0, g.Config.NumTrees)
	for t := 0; t < g.Config.NumTrees; t++ {
		for i := 0; i < n; i++ {
			p := sigmoid(raw[i])
			grad[i] = float64(y[i]) - p
			hess[i] = p * (1 - p)
		}

		tree := g.buildTree(x, grad, hess, weights, indices, 0)
		g.Trees = append(g.Trees, tree)

		for i := 0; i < n; i++ {
			raw[i] += g.Config.LearningRate * tree.eval(x[i])
		}
	}
	return nil
}

// buildTree grows one regression tree greedily over the given sample subset.
func (g *GradientBoostedClassifier) buildTree(x [][]float64, grad, hess, weights []float64, indices []int, depth int) *TreeNode {
	var gSum, hSum float64
	for _, i := range indices {
		gSum += weights[i] * grad[i]
		hSum += weights[i] * hess[i]
	}
	leaf := &TreeNode{Leaf: true, Value: gSum / (hSum + g.Config.Lambda)}

	if depth >= g.Config.MaxDepth || len(indices) < 2*g.Config.MinSamplesLeaf {
		return leaf
	}

	feature, threshold, ok := g.bestSplit(x, grad, hess, weights, indices, gSum, hSum)
	if !ok {
		return leaf
	}

	left := make([]int, 0, len(indices))
	right := make([]int, 0, len(indices))
	for _, i := range indices {
		if x[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) < g.Config.MinSamplesLeaf || len(right) < g.Config.MinSamplesLeaf {
		return leaf
	}

	return &TreeNode{
		Feature:   feature,
		Threshold: threshold,
		Left:      g.buildTree(x, grad, hess, weights, left, depth+1),
		Right:     g.buildTree(x, grad, hess, weights, right, depth+1),
	}
}

// bestSplit scans every feature with a sorted prefix-sum sweep and returns
// the split maximizing the regularized gain.
func (g *GradientBoostedClassifier) bestSplit(x [][]float64, grad, hess, weights []float64, indices []int, gTotal, hTotal float64) (int, float64, bool) {
	lambda := g.Config.Lambda
	parentScore := gTotal * gTotal / (hTotal + lambda)

	bestGain := 1e-12
	bestFeature := -1
	bestThreshold := 0.0

	sorted := make([]int, len(indices))
	for f := 0; f < g.FeatureCount; f++ {
		copy(sorted, indices)
		sort.Slice(sorted, func(a, b int) bool { return x[sorted[a]][f] < x[sorted[b]][f] })

		var gLeft, hLeft float64
		for pos := 0; pos < len(sorted)-1; pos++ {
			i := sorted[pos]
			gLeft += weights[i] * grad[i]
			hLeft += weights[i] * hess[i]

			v, next := x[i][f], x[sorted[pos+1]][f]
			if v == next {
				continue
			}
			if pos+1 < g.Config.MinSamplesLeaf || len(sorted)-pos-1 < g.Config.MinSamplesLeaf {
				continue
			}

			gRight := gTotal - gLeft
			hRight := hTotal - hLeft
			gain := gLeft*gLeft/(hLeft+lambda) + gRight*gRight/(hRight+lambda) - parentScore
			if gain > bestGain {
				bestGain = gain
				bestFeature = f
				bestThreshold = (v + next) / 2
			}
		}
	}

	return bestFeature, bestThreshold, bestFeature >= 0
}

// PredictProba returns the positive-class probability for one sample.
func (g *GradientBoostedClassifier) PredictProba(x []float64) float64 {
	raw := g.InitScore
	for _, tree := range g.Trees {
		raw += g.Config.LearningRate * tree.eval(x)
	}
	return sigmoid(raw)
}

func sigmoid(v float64) float64 {
	return 1.0 / (1.0 + math.Exp(-v))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
