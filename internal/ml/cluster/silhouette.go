package cluster

// Silhouette returns the mean silhouette coefficient in [-1, 1].
// Points in singleton clusters score 0. Fewer than two clusters scores 0.
func Silhouette(data [][]float64, assign []int, k int) float64 {
	n := len(data)
	if n == 0 || k < 2 {
		return 0
	}

	counts := make([]int, k)
	for _, c := range assign {
		counts[c]++
	}

	total := 0.0
	sums := make([]float64, k)
	for i := range data {
		for j := range sums {
			sums[j] = 0
		}
		for j := range data {
			if i == j {
				continue
			}
			sums[assign[j]] += Distance(data[i], data[j])
		}

		own := assign[i]
		if counts[own] <= 1 {
			continue
		}
		a := sums[own] / float64(counts[own]-1)

		b := -1.0
		for c := 0; c < k; c++ {
			if c == own || counts[c] == 0 {
				continue
			}
			mean := sums[c] / float64(counts[c])
			if b < 0 || mean < b {
				b = mean
			}
		}
		if b < 0 {
			continue
		}

		denom := a
		if b > denom {
			denom = b
		}
		if denom > 0 {
			total += (b - a) / denom
		}
	}
	return total / float64(n)
}
