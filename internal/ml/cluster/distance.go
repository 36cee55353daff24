package cluster

import "math"

func squaredDistance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// Distance is the Euclidean distance between two points of equal dimension
func Distance(a, b []float64) float64 {
	return math.Sqrt(squaredDistance(a, b))
}

// Nearest returns the index of the closest centroid (lowest index on ties)
// and the distances from x to every centroid.
func Nearest(x []float64, centroids [][]float64) (int, []float64) {
	best := 0
	distances := make([]float64, len(centroids))
	for i, c := range centroids {
		distances[i] = Distance(x, c)
		if distances[i] < distances[best] {
			best = i
		}
	}
	return best, distances
}

// Confidence is 1 - d_min/d_max over the distances to every centroid.
// It is a relative-distance heuristic, not a calibrated probability.
// A single centroid, or all distances equal (zero included), yields 1.
func Confidence(distances []float64) float64 {
	if len(distances) <= 1 {
		return 1
	}
	dMin, dMax := distances[0], distances[0]
	for _, d := range distances[1:] {
		dMin = math.Min(dMin, d)
		dMax = math.Max(dMax, d)
	}
	if dMin == dMax {
		return 1
	}
	c := 1 - dMin/dMax
	return math.Max(0, math.Min(1, c))
}
