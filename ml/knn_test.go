package ml

import (
	"errors"
	"testing"

	"argus/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKNN_FitRequiresTwoSamples(t *testing.T) {
	knn := NewKNN(5, 0.1)
	err := knn.Fit([]FeatureVector{{1, 0, 0, 0}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrTrain))
}

func TestKNN_PredictBeforeFit(t *testing.T) {
	_, err := NewKNN(5, 0.1).Predict(FeatureVector{})
	assert.Error(t, err)
}

func TestKNN_Defaults(t *testing.T) {
	knn := NewKNN(0, 0)
	assert.Equal(t, DefaultNeighbors, knn.k)
	assert.Equal(t, DefaultContamination, knn.contamination)
	assert.Equal(t, "knn", knn.Name())
}

func TestKNN_FlagsDistantPoint(t *testing.T) {
	knn := NewKNN(3, 0.1)
	require.NoError(t, knn.Fit(clusterData(10)))

	inside, err := knn.Predict(FeatureVector{11, 0, 0, 0})
	require.NoError(t, err)
	assert.False(t, inside.IsOutlier)

	far, err := knn.Predict(FeatureVector{2, 1, 2, 1})
	require.NoError(t, err)
	assert.True(t, far.IsOutlier)
	assert.Greater(t, far.Score, inside.Score)
	assert.Greater(t, far.Score, knn.Threshold())
}

func TestKNN_KLargerThanSample(t *testing.T) {
	knn := NewKNN(10, 0.1)
	require.NoError(t, knn.Fit([]FeatureVector{{0, 0, 0, 0}, {1, 0, 0, 0}, {2, 0, 0, 0}}))

	// k is capped at the available neighbours
	p, err := knn.Predict(FeatureVector{0, 0, 0, 0})
	require.NoError(t, err)
	assert.InDelta(t, 2.0, p.Score, 1e-9)
}

func TestPercentile(t *testing.T) {
	values := []float64{4, 1, 3, 2, 5}
	assert.Equal(t, 1.0, percentile(values, 0))
	assert.Equal(t, 5.0, percentile(values, 100))
	assert.Equal(t, 3.0, percentile(values, 50))
	assert.InDelta(t, 4.6, percentile(values, 90), 1e-9)
	assert.Equal(t, 0.0, percentile(nil, 50))
}

func TestNewClassifierFactory(t *testing.T) {
	factory, err := NewClassifierFactory(ClassifierConfig{})
	require.NoError(t, err)
	assert.Equal(t, AlgorithmKNN, factory().Name())

	factory, err = NewClassifierFactory(ClassifierConfig{Algorithm: "isolation_forest"})
	require.NoError(t, err)
	assert.Equal(t, AlgorithmIsolationForest, factory().Name())

	_, err = NewClassifierFactory(ClassifierConfig{Algorithm: "svm"})
	assert.Error(t, err)
}
