package cluster

import (
	"context"
	"math"
	"math/rand/v2"
)

// Fit is one k-means solution in scaled space
type Fit struct {
	Centroids  [][]float64
	Assign     []int
	Inertia    float64
	Iterations int
	Restart    int
}

type kmeansParams struct {
	k             int
	maxIterations int
	tolerance     float64
}

// newRand returns the generator for a restart. Restart i is seeded with seed+i.
func newRand(seed int64, restart int) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed+int64(restart)), 0))
}

// runKMeans runs Lloyd's algorithm from a k-means++ start.
// data must hold at least k distinct points.
func runKMeans(ctx context.Context, data [][]float64, p kmeansParams, rng *rand.Rand) (*Fit, error) {
	centroids := initPlusPlus(data, p.k, rng)
	assign := make([]int, len(data))

	iter := 0
	for iter < p.maxIterations {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		iter++

		assignPoints(data, centroids, assign)
		next := updateCentroids(data, assign, centroids)

		shift := 0.0
		for i := range centroids {
			shift = math.Max(shift, Distance(centroids[i], next[i]))
		}
		centroids = next
		if shift <= p.tolerance {
			break
		}
	}

	inertia := assignPoints(data, centroids, assign)
	return &Fit{
		Centroids:  centroids,
		Assign:     assign,
		Inertia:    inertia,
		Iterations: iter,
	}, nil
}

// initPlusPlus picks the first centroid uniformly and the rest with
// probability proportional to squared distance from the nearest chosen one.
func initPlusPlus(data [][]float64, k int, rng *rand.Rand) [][]float64 {
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, clone(data[rng.IntN(len(data))]))

	dist := make([]float64, len(data))
	for len(centroids) < k {
		total := 0.0
		for i, x := range data {
			best := math.Inf(1)
			for _, c := range centroids {
				best = math.Min(best, squaredDistance(x, c))
			}
			dist[i] = best
			total += best
		}

		pick := len(data) - 1
		target := rng.Float64() * total
		for i, d := range dist {
			if d == 0 {
				continue
			}
			target -= d
			if target < 0 {
				pick = i
				break
			}
		}
		// Rounding can leave target >= 0 at the end; land on the last positive weight.
		if dist[pick] == 0 {
			for i := len(dist) - 1; i >= 0; i-- {
				if dist[i] > 0 {
					pick = i
					break
				}
			}
		}
		centroids = append(centroids, clone(data[pick]))
	}
	return centroids
}

// assignPoints writes each point's nearest centroid into assign and returns the inertia
func assignPoints(data, centroids [][]float64, assign []int) float64 {
	inertia := 0.0
	for i, x := range data {
		best, bestDist := 0, math.Inf(1)
		for j, c := range centroids {
			d := squaredDistance(x, c)
			if d < bestDist {
				best, bestDist = j, d
			}
		}
		assign[i] = best
		inertia += bestDist
	}
	return inertia
}

// updateCentroids recomputes means. An empty cluster is reseeded with the point
// farthest from its current centroid, which is then moved to the empty cluster.
func updateCentroids(data [][]float64, assign []int, current [][]float64) [][]float64 {
	k, dim := len(current), len(current[0])
	sums := make([][]float64, k)
	counts := make([]int, k)
	for j := range sums {
		sums[j] = make([]float64, dim)
	}
	for i, x := range data {
		c := assign[i]
		counts[c]++
		for d, v := range x {
			sums[c][d] += v
		}
	}

	next := make([][]float64, k)
	for j := range next {
		if counts[j] == 0 {
			continue
		}
		next[j] = make([]float64, dim)
		for d := range sums[j] {
			next[j][d] = sums[j][d] / float64(counts[j])
		}
	}

	for j := range next {
		if next[j] != nil {
			continue
		}
		far, farDist := -1, -1.0
		for i, x := range data {
			if counts[assign[i]] <= 1 {
				continue
			}
			d := squaredDistance(x, current[assign[i]])
			if d > farDist {
				far, farDist = i, d
			}
		}
		if far < 0 {
			next[j] = clone(current[j])
			continue
		}
		counts[assign[far]]--
		assign[far] = j
		counts[j] = 1
		next[j] = clone(data[far])
	}
	return next
}

func clone(x []float64) []float64 {
	out := make([]float64, len(x))
	copy(out, x)
	return out
}
