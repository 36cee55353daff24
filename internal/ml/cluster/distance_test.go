package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfidence(t *testing.T) {
	tests := []struct {
		name      string
		distances []float64
		want      float64
	}{
		{"on a centroid", []float64{0, 4}, 1},
		{"single cluster", []float64{3.5}, 1},
		{"all distances zero", []float64{0, 0, 0}, 1},
		{"equidistant", []float64{2, 2}, 1},
		{"equidistant from three", []float64{1.5, 1.5, 1.5}, 1},
		{"three quarters of the way", []float64{1, 4, 2}, 0.75},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Confidence(tt.distances), 1e-12)
		})
	}
}

func TestNearest_TiesGoToLowestIndex(t *testing.T) {
	idx, distances := Nearest([]float64{0, 0}, [][]float64{{1, 0}, {-1, 0}, {5, 5}})
	assert.Equal(t, 0, idx)
	assert.Len(t, distances, 3)
}

func TestScaler_ConstantColumn(t *testing.T) {
	s := FitScaler([][]float64{{1, 5}, {3, 5}})

	assert.Equal(t, []float64{2, 5}, s.Means)
	assert.Equal(t, []float64{1, 1}, s.StdDevs)
	assert.Equal(t, []float64{-1, 0}, s.Transform([]float64{1, 5}))
	assert.Equal(t, []float64{3, 5}, s.Inverse([]float64{1, 0}))
}

func TestSilhouette(t *testing.T) {
	data := [][]float64{{0}, {0.1}, {10}, {10.1}}

	assert.Greater(t, Silhouette(data, []int{0, 0, 1, 1}, 2), 0.9)
	assert.Less(t, Silhouette(data, []int{0, 1, 0, 1}, 2), 0.0)
	assert.Equal(t, 0.0, Silhouette(data, []int{0, 0, 0, 0}, 1))
}
