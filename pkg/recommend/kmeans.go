package recommend

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

const (
	kmeansMaxIterations = 100
	kmeansSeed          = 42
)

// KMeans clusters vectors with Lloyd's algorithm and k-means++ seeding.
// The seed is fixed so repeated model builds assign stable clusters.
type KMeans struct {
	K         int
	Centroids [][]float64
}

// NewKMeans creates a clusterer with k clusters.
func NewKMeans(k int) *KMeans {
	if k < 1 {
		k = 1
	}
	return &KMeans{K: k}
}

// Fit clusters the vectors and returns the assignment of each vector.
func (m *KMeans) Fit(vectors [][]float64) []int {
	if len(vectors) == 0 {
		return nil
	}
	if m.K > len(vectors) {
		m.K = len(vectors)
	}
	rng := rand.New(rand.NewSource(kmeansSeed))
	m.Centroids = seedCentroids(vectors, m.K, rng)

	assignments := make([]int, len(vectors))
	for iter := 0; iter < kmeansMaxIterations; iter++ {
		changed := false
		for i, vec := range vectors {
			best := m.nearest(vec)
			if best != assignments[i] {
				assignments[i] = best
				changed = true
			}
		}
		if !changed && iter > 0 {
			break
		}
		m.recomputeCentroids(vectors, assignments, rng)
	}
	return assignments
}

// Predict returns the nearest cluster for a vector.
func (m *KMeans) Predict(vec []float64) int {
	return m.nearest(vec)
}

func (m *KMeans) nearest(vec []float64) int {
	best := 0
	bestDist := math.Inf(1)
	for c, centroid := range m.Centroids {
		if d := floats.Distance(vec, centroid, 2); d < bestDist {
			bestDist = d
			best = c
		}
	}
	return best
}

func (m *KMeans) recomputeCentroids(vectors [][]float64, assignments []int, rng *rand.Rand) {
	dim := len(vectors[0])
	sums := make([][]float64, m.K)
	counts := make([]int, m.K)
	for c := range sums {
		sums[c] = make([]float64, dim)
	}
	for i, vec := range vectors {
		c := assignments[i]
		floats.Add(sums[c], vec)
		counts[c]++
	}
	for c := range sums {
		if counts[c] == 0 {
			// Re-seed empty clusters from a random vector.
			copy(sums[c], vectors[rng.Intn(len(vectors))])
			continue
		}
		floats.Scale(1/float64(counts[c]), sums[c])
	}
	m.Centroids = sums
}

// seedCentroids implements k-means++ initialization.
func seedCentroids(vectors [][]float64, k int, rng *rand.Rand) [][]float64 {
	centroids := make([][]float64, 0, k)
	first := vectors[rng.Intn(len(vectors))]
	centroids = append(centroids, cloneVector(first))

	distances := make([]float64, len(vectors))
	for len(centroids) < k {
		var total float64
		for i, vec := range vectors {
			d := math.Inf(1)
			for _, centroid := range centroids {
				if cd := floats.Distance(vec, centroid, 2); cd < d {
					d = cd
				}
			}
			distances[i] = d * d
			total += distances[i]
		}
		if total == 0 {
			centroids = append(centroids, cloneVector(vectors[rng.Intn(len(vectors))]))
			continue
		}
		target := rng.Float64() * total
		var cumulative float64
		chosen := len(vectors) - 1
		for i, d := range distances {
			cumulative += d
			if cumulative >= target {
				chosen = i
				break
			}
		}
		centroids = append(centroids, cloneVector(vectors[chosen]))
	}
	return centroids
}

func cloneVector(vec []float64) []float64 {
	out := make([]float64, len(vec))
	copy(out, vec)
	return out
}
