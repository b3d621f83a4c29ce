// Package kmeans implements the clustering kernel used for codebook training.
package kmeans

import (
	"math"
	"math/rand"

	"github.com/hupe1980/sensevec/distance"
)

// Train clusters the given flattened vectors (n * dim) into k centroids using
// Lloyd's algorithm with k-means++ seeding. It returns the flattened centroids
// (k * dim). The caller must provide at least k points; fewer returns nil.
//
// All randomness is drawn from rng, so identical inputs and seed produce
// identical centroids.
func Train(vectors []float32, dim, k, maxIter int, rng *rand.Rand) []float32 {
	n := len(vectors) / dim
	if n < k {
		return nil
	}

	centroids := seedPlusPlus(vectors, dim, k, rng)

	assignments := make([]int, n)
	counts := make([]int, k)
	sums := make([]float32, k*dim)

	for iter := 0; iter < maxIter; iter++ {
		changed := false

		// Assignment step
		for i := 0; i < n; i++ {
			best := NearestCentroid(vectors[i*dim:(i+1)*dim], centroids, dim)
			if assignments[i] != best {
				assignments[i] = best
				changed = true
			}
		}

		if !changed {
			break
		}

		// Update step
		for i := range sums {
			sums[i] = 0
		}
		for i := range counts {
			counts[i] = 0
		}

		for i := 0; i < n; i++ {
			cluster := assignments[i]
			vec := vectors[i*dim : (i+1)*dim]
			for d := 0; d < dim; d++ {
				sums[cluster*dim+d] += vec[d]
			}
			counts[cluster]++
		}

		for j := 0; j < k; j++ {
			if counts[j] > 0 {
				scale := 1.0 / float32(counts[j])
				for d := 0; d < dim; d++ {
					centroids[j*dim+d] = sums[j*dim+d] * scale
				}
			} else {
				// Re-seed empty cluster with a random point
				idx := rng.Intn(n)
				copy(centroids[j*dim:(j+1)*dim], vectors[idx*dim:(idx+1)*dim])
			}
		}
	}

	return centroids
}

// seedPlusPlus picks k initial centroids with k-means++ sampling: the first
// uniformly, the rest proportional to squared distance from the nearest
// already-chosen centroid.
func seedPlusPlus(vectors []float32, dim, k int, rng *rand.Rand) []float32 {
	n := len(vectors) / dim
	centroids := make([]float32, k*dim)

	first := rng.Intn(n)
	copy(centroids[0:dim], vectors[first*dim:(first+1)*dim])

	// minDistSq tracks each point's squared distance to its nearest chosen centroid.
	minDistSq := make([]float32, n)
	var sum float32
	for i := 0; i < n; i++ {
		d := distance.SquaredL2(vectors[i*dim:(i+1)*dim], centroids[0:dim])
		minDistSq[i] = d
		sum += d
	}

	for c := 1; c < k; c++ {
		if sum == 0 {
			// All remaining points coincide with a chosen centroid.
			idx := rng.Intn(n)
			copy(centroids[c*dim:(c+1)*dim], vectors[idx*dim:(idx+1)*dim])
			continue
		}

		target := rng.Float32() * sum
		var cumsum float32
		chosen := 0
		for i, d := range minDistSq {
			cumsum += d
			if cumsum >= target {
				chosen = i
				break
			}
		}
		chosenVec := vectors[chosen*dim : (chosen+1)*dim]
		copy(centroids[c*dim:(c+1)*dim], chosenVec)

		sum = 0
		for i := 0; i < n; i++ {
			d := distance.SquaredL2(vectors[i*dim:(i+1)*dim], chosenVec)
			if d < minDistSq[i] {
				minDistSq[i] = d
			}
			sum += minDistSq[i]
		}
	}

	return centroids
}

// NearestCentroid returns the index of the centroid closest to vec by squared
// L2 distance. Ties resolve to the lowest index.
func NearestCentroid(vec []float32, centroids []float32, dim int) int {
	k := len(centroids) / dim
	best := 0
	minDist := float32(math.MaxFloat32)

	for j := 0; j < k; j++ {
		d := distance.SquaredL2(vec, centroids[j*dim:(j+1)*dim])
		if d < minDist {
			minDist = d
			best = j
		}
	}

	return best
}
