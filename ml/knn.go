package ml

import (
	"fmt"
	"sort"

	"argus/core"
)

// DefaultNeighbors is the k used by the KNN detector
const DefaultNeighbors = 5

// KNN scores a vector by its distance to the k-th nearest training vector.
// The outlier threshold is the (1 - contamination) percentile of the
// training vectors' own scores.
type KNN struct {
	k             int
	contamination float64
	train         []FeatureVector
	threshold     float64
	fitted        bool
}

// NewKNN creates a KNN detector
func NewKNN(k int, contamination float64) *KNN {
	if k <= 0 {
		k = DefaultNeighbors
	}
	if contamination <= 0 || contamination >= 0.5 {
		contamination = DefaultContamination
	}
	return &KNN{k: k, contamination: contamination}
}

// Name returns the detector name
func (m *KNN) Name() string {
	return AlgorithmKNN
}

// Fit stores data and derives the decision threshold
func (m *KNN) Fit(data []FeatureVector) error {
	if len(data) < 2 {
		return fmt.Errorf("%w: knn needs at least 2 samples, got %d", core.ErrTrain, len(data))
	}
	train := make([]FeatureVector, len(data))
	copy(train, data)

	k := m.effectiveK(len(train) - 1)
	scores := make([]float64, len(train))
	for i := range train {
		scores[i] = kthDistance(train, train[i], k, i)
	}

	m.train = train
	m.threshold = percentile(scores, 100*(1-m.contamination))
	m.fitted = true
	return nil
}

// Predict reports whether v lies further from its neighbours than the
// threshold learned at fit time
func (m *KNN) Predict(v FeatureVector) (Prediction, error) {
	if !m.fitted {
		return Prediction{}, fmt.Errorf("knn not fitted")
	}
	score := kthDistance(m.train, v, m.effectiveK(len(m.train)), -1)
	return Prediction{IsOutlier: score > m.threshold, Score: score}, nil
}

// Threshold returns the fitted decision threshold
func (m *KNN) Threshold() float64 {
	return m.threshold
}

func (m *KNN) effectiveK(available int) int {
	if m.k > available {
		return available
	}
	return m.k
}

// kthDistance is the distance from v to its k-th nearest vector in data,
// skipping index skip
func kthDistance(data []FeatureVector, v FeatureVector, k, skip int) float64 {
	dists := make([]float64, 0, len(data))
	for i := range data {
		if i == skip {
			continue
		}
		dists = append(dists, euclidean(data[i], v))
	}
	if len(dists) == 0 || k <= 0 {
		return 0
	}
	sort.Float64s(dists)
	return dists[k-1]
}
