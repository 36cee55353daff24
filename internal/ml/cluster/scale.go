package cluster

import "math"

// Scaler standardises features to zero mean and unit variance
type Scaler struct {
	Means   []float64
	StdDevs []float64
}

// FitScaler computes population mean and standard deviation per column.
// A constant column gets std 1 so it scales to 0 instead of dividing by zero.
func FitScaler(data [][]float64) Scaler {
	if len(data) == 0 {
		return Scaler{}
	}
	dim := len(data[0])
	means := make([]float64, dim)
	stds := make([]float64, dim)
	n := float64(len(data))

	for _, row := range data {
		for j, v := range row {
			means[j] += v
		}
	}
	for j := range means {
		means[j] /= n
	}

	for _, row := range data {
		for j, v := range row {
			d := v - means[j]
			stds[j] += d * d
		}
	}
	for j := range stds {
		stds[j] = math.Sqrt(stds[j] / n)
		if stds[j] == 0 || math.IsNaN(stds[j]) {
			stds[j] = 1
		}
	}

	return Scaler{Means: means, StdDevs: stds}
}

// Transform scales one point
func (s Scaler) Transform(x []float64) []float64 {
	out := make([]float64, len(x))
	for j, v := range x {
		out[j] = (v - s.Means[j]) / s.StdDevs[j]
	}
	return out
}

// TransformAll scales every point
func (s Scaler) TransformAll(data [][]float64) [][]float64 {
	out := make([][]float64, len(data))
	for i, row := range data {
		out[i] = s.Transform(row)
	}
	return out
}

// Inverse maps a scaled point back to original units
func (s Scaler) Inverse(x []float64) []float64 {
	out := make([]float64, len(x))
	for j, v := range x {
		out[j] = v*s.StdDevs[j] + s.Means[j]
	}
	return out
}
