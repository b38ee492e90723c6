package ml

import (
	"fmt"
	"math"
	"math/rand"

	"argus/core"
)

// IsolationTree represents a single isolation tree in the forest
type IsolationTree struct {
	root   *IsolationNode
	height int
}

// IsolationNode represents a node in the isolation tree
type IsolationNode struct {
	left    *IsolationNode
	right   *IsolationNode
	feature int     // Feature index used for split
	value   float64 // Split value
	size    int     // Number of samples in this subtree
	isLeaf  bool
}

// IsolationForestConfig holds configuration for Isolation Forest
type IsolationForestConfig struct {
	NumTrees      int     // Number of trees in the forest (default: 100)
	SubsampleSize int     // Size of subsample for each tree (default: 256)
	MaxDepth      int     // Maximum depth of each tree (default: ceil(log2(subsample)))
	Contamination float64 // Expected proportion of anomalies (default: 0.1)
	Seed          int64   // Random seed, fixed so that fits are reproducible
}

// IsolationForest implements Isolation Forest anomaly detection
type IsolationForest struct {
	trees      []*IsolationTree
	config     IsolationForestConfig
	rng        *rand.Rand
	sampleSize int
	threshold  float64
	fitted     bool
}

// NewIsolationForest creates a new Isolation Forest detector
func NewIsolationForest(config *IsolationForestConfig) *IsolationForest {
	cfg := IsolationForestConfig{}
	if config != nil {
		cfg = *config
	}
	if cfg.NumTrees <= 0 {
		cfg.NumTrees = 100
	}
	if cfg.SubsampleSize <= 0 {
		cfg.SubsampleSize = 256
	}
	if cfg.Contamination <= 0 || cfg.Contamination >= 0.5 {
		cfg.Contamination = DefaultContamination
	}
	if cfg.Seed == 0 {
		cfg.Seed = 42
	}

	return &IsolationForest{
		config: cfg,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
	}
}

// Name returns the detector name
func (f *IsolationForest) Name() string {
	return AlgorithmIsolationForest
}

// Fit builds a new forest from data
func (f *IsolationForest) Fit(data []FeatureVector) error {
	if len(data) < 2 {
		return fmt.Errorf("%w: isolation forest needs at least 2 samples, got %d", core.ErrTrain, len(data))
	}

	f.sampleSize = min(f.config.SubsampleSize, len(data))
	maxDepth := f.config.MaxDepth
	if maxDepth <= 0 {
		maxDepth = int(math.Ceil(math.Log2(float64(f.sampleSize))))
	}

	f.trees = make([]*IsolationTree, 0, f.config.NumTrees)
	for i := 0; i < f.config.NumTrees; i++ {
		subsample := f.subsample(data, f.sampleSize)
		f.trees = append(f.trees, f.buildTree(subsample, 0, maxDepth))
	}

	scores := make([]float64, len(data))
	for i := range data {
		scores[i] = f.score(data[i])
	}
	f.threshold = percentile(scores, 100*(1-f.config.Contamination))
	f.fitted = true
	return nil
}

// Predict scores v. Scores lie in (0, 1]; closer to 1 is more anomalous.
func (f *IsolationForest) Predict(v FeatureVector) (Prediction, error) {
	if !f.fitted {
		return Prediction{}, fmt.Errorf("forest not trained yet")
	}
	score := f.score(v)
	return Prediction{IsOutlier: score > f.threshold, Score: score}, nil
}

func (f *IsolationForest) score(v FeatureVector) float64 {
	total := 0.0
	for _, tree := range f.trees {
		total += f.pathLength(tree.root, v, 0)
	}
	avg := total / float64(len(f.trees))
	return f.anomalyScore(avg, f.sampleSize)
}

// subsample draws size vectors without replacement
func (f *IsolationForest) subsample(data []FeatureVector, size int) []FeatureVector {
	if len(data) <= size {
		out := make([]FeatureVector, len(data))
		copy(out, data)
		return out
	}
	result := make([]FeatureVector, size)
	for i, idx := range f.rng.Perm(len(data))[:size] {
		result[i] = data[idx]
	}
	return result
}

// buildTree recursively builds an isolation tree
func (f *IsolationForest) buildTree(data []FeatureVector, depth, maxDepth int) *IsolationTree {
	if len(data) <= 1 || depth >= maxDepth {
		return &IsolationTree{root: &IsolationNode{size: len(data), isLeaf: true}, height: depth}
	}

	feature := f.rng.Intn(FeatureDimension)
	minVal, maxVal := findMinMax(data, feature)
	if minVal == maxVal {
		return &IsolationTree{root: &IsolationNode{size: len(data), isLeaf: true}, height: depth}
	}

	splitValue := minVal + f.rng.Float64()*(maxVal-minVal)
	leftData, rightData := splitData(data, feature, splitValue)

	leftTree := f.buildTree(leftData, depth+1, maxDepth)
	rightTree := f.buildTree(rightData, depth+1, maxDepth)

	return &IsolationTree{
		root: &IsolationNode{
			left:    leftTree.root,
			right:   rightTree.root,
			feature: feature,
			value:   splitValue,
			size:    len(data),
		},
		height: max(leftTree.height, rightTree.height) + 1,
	}
}

func findMinMax(data []FeatureVector, feature int) (float64, float64) {
	minVal := math.MaxFloat64
	maxVal := -math.MaxFloat64
	for _, fv := range data {
		minVal = math.Min(minVal, fv[feature])
		maxVal = math.Max(maxVal, fv[feature])
	}
	return minVal, maxVal
}

func splitData(data []FeatureVector, feature int, splitValue float64) ([]FeatureVector, []FeatureVector) {
	var left, right []FeatureVector
	for _, fv := range data {
		if fv[feature] <= splitValue {
			left = append(left, fv)
		} else {
			right = append(right, fv)
		}
	}
	return left, right
}

// pathLength calculates the path length from root to leaf for v
func (f *IsolationForest) pathLength(node *IsolationNode, v FeatureVector, currentLength float64) float64 {
	if node == nil {
		return currentLength
	}
	if node.isLeaf {
		return currentLength + averagePathLength(node.size)
	}
	if v[node.feature] <= node.value {
		return f.pathLength(node.left, v, currentLength+1)
	}
	return f.pathLength(node.right, v, currentLength+1)
}

// averagePathLength is the average path length of an unsuccessful search in
// a BST of n nodes: 2H(n-1) - 2(n-1)/n
func averagePathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	harmonic := 0.0
	for i := 1; i <= n-1; i++ {
		harmonic += 1.0 / float64(i)
	}
	return 2*harmonic - 2*float64(n-1)/float64(n)
}

// anomalyScore converts path length to anomaly score
func (f *IsolationForest) anomalyScore(pathLength float64, sampleSize int) float64 {
	c := averagePathLength(sampleSize)
	if c == 0 {
		return 0.5
	}
	return math.Pow(2, -pathLength/c)
}
