package ml

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Supported classifier algorithms
const (
	AlgorithmKNN             = "knn"
	AlgorithmIsolationForest = "isolation_forest"
)

// DefaultContamination is the expected share of outliers in training data
const DefaultContamination = 0.1

// Prediction is a classifier verdict for one vector. Score grows with
// distance from the training data.
type Prediction struct {
	IsOutlier bool
	Score     float64
}

// Classifier is an unsupervised binary outlier model. Fit replaces any
// previous state. A Classifier is not safe for concurrent Fit and Predict;
// the scorer fits a fresh instance and swaps it in.
type Classifier interface {
	Name() string
	Fit(data []FeatureVector) error
	Predict(v FeatureVector) (Prediction, error)
}

// ClassifierConfig holds tunables shared by the classifiers
type ClassifierConfig struct {
	Algorithm     string
	Contamination float64
	Neighbors     int
	NumTrees      int
	SubsampleSize int
	Seed          int64
}

// NewClassifierFactory returns a constructor for the configured algorithm
func NewClassifierFactory(cfg ClassifierConfig) (func() Classifier, error) {
	if cfg.Contamination <= 0 || cfg.Contamination >= 0.5 {
		cfg.Contamination = DefaultContamination
	}
	switch strings.ToLower(cfg.Algorithm) {
	case "", AlgorithmKNN:
		return func() Classifier {
			return NewKNN(cfg.Neighbors, cfg.Contamination)
		}, nil
	case AlgorithmIsolationForest:
		return func() Classifier {
			return NewIsolationForest(&IsolationForestConfig{
				NumTrees:      cfg.NumTrees,
				SubsampleSize: cfg.SubsampleSize,
				Contamination: cfg.Contamination,
				Seed:          cfg.Seed,
			})
		}, nil
	default:
		return nil, fmt.Errorf("unknown anomaly algorithm %q", cfg.Algorithm)
	}
}

func euclidean(a, b FeatureVector) float64 {
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// percentile uses linear interpolation between closest ranks
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (rank-float64(lo))*(sorted[hi]-sorted[lo])
}
