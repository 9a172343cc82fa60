package pipeline

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
)

var (
	ErrInvalidConfig = errors.New("invalid pipeline configuration")
	ErrTooFewUsers   = errors.New("fewer users than clusters")
)

// Clusterer partitions users of an embedding into k groups.
type Clusterer interface {
	Cluster(e *Embedding, k, restarts int, seed int64) (map[int64]int, error)
}

// KMeans is Lloyd's algorithm with k-means++ seeding. Restarts run
// concurrently; the lowest inertia run wins, ties going to the lowest run
// index, so the result only depends on the seed.
type KMeans struct {
	MaxIterations int
	Tolerance     float64
	Workers       int
}

func NewKMeans(maxIterations, workers int) *KMeans {
	return &KMeans{MaxIterations: maxIterations, Tolerance: 1e-4, Workers: workers}
}

type kmeansRun struct {
	labels  []int
	inertia float64
}

func (km *KMeans) Cluster(e *Embedding, k, restarts int, seed int64) (map[int64]int, error) {
	if k < 1 || restarts < 1 {
		return nil, fmt.Errorf("%w: clusters=%d restarts=%d", ErrInvalidConfig, k, restarts)
	}
	n, _ := e.Dims()
	if n < k {
		return nil, fmt.Errorf("%w: %d users, %d clusters", ErrTooFewUsers, n, k)
	}

	points := make([][]float64, n)
	for i := range points {
		points[i] = e.Row(i)
	}

	runs := make([]kmeansRun, restarts)
	var g errgroup.Group
	if km.Workers > 0 {
		g.SetLimit(km.Workers)
	}
	for r := 0; r < restarts; r++ {
		r := r
		g.Go(func() error {
			rng := rand.New(rand.NewSource(seed + int64(r)))
			labels, inertia := km.run(points, k, rng)
			runs[r] = kmeansRun{labels: labels, inertia: inertia}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	best := 0
	for r := 1; r < restarts; r++ {
		if runs[r].inertia < runs[best].inertia {
			best = r
		}
	}

	users := e.Users()
	assignment := make(map[int64]int, n)
	for i, label := range runs[best].labels {
		assignment[users[i]] = label
	}
	return assignment, nil
}

func (km *KMeans) run(points [][]float64, k int, rng *rand.Rand) ([]int, float64) {
	centroids := seedCentroids(points, k, rng)
	labels := make([]int, len(points))
	dims := len(points[0])

	maxIter := km.MaxIterations
	if maxIter < 1 {
		maxIter = 300
	}

	for iter := 0; iter < maxIter; iter++ {
		assign(points, centroids, labels)

		// Update centroids
		next := make([][]float64, k)
		counts := make([]int, k)
		for c := range next {
			next[c] = make([]float64, dims)
		}
		for i, p := range points {
			floats.Add(next[labels[i]], p)
			counts[labels[i]]++
		}
		for c := range next {
			if counts[c] > 0 {
				floats.Scale(1/float64(counts[c]), next[c])
			}
		}
		relocateEmpty(points, labels, centroids, next, counts)

		shift := 0.0
		for c := range next {
			shift += sqDist(centroids[c], next[c])
		}
		centroids = next
		if shift <= km.Tolerance*km.Tolerance {
			break
		}
	}

	inertia := assign(points, centroids, labels)
	return labels, inertia
}

// seedCentroids picks initial centroids with k-means++: each next centroid is
// drawn with probability proportional to its squared distance from the
// nearest centroid chosen so far.
func seedCentroids(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, clone(points[rng.Intn(len(points))]))

	closest := make([]float64, len(points))
	for i, p := range points {
		closest[i] = sqDist(p, centroids[0])
	}

	for len(centroids) < k {
		total := floats.Sum(closest)
		idx := 0
		if total == 0 {
			idx = rng.Intn(len(points))
		} else {
			target := rng.Float64() * total
			for acc := 0.0; idx < len(points)-1; idx++ {
				acc += closest[idx]
				if acc > target {
					break
				}
			}
		}

		c := clone(points[idx])
		centroids = append(centroids, c)
		for i, p := range points {
			if d := sqDist(p, c); d < closest[i] {
				closest[i] = d
			}
		}
	}
	return centroids
}

// assign labels every point with its nearest centroid (lowest index on ties)
// and returns the inertia.
func assign(points, centroids [][]float64, labels []int) float64 {
	inertia := 0.0
	for i, p := range points {
		best, bestDist := 0, math.Inf(1)
		for c, centroid := range centroids {
			if d := sqDist(p, centroid); d < bestDist {
				best, bestDist = c, d
			}
		}
		labels[i] = best
		inertia += bestDist
	}
	return inertia
}

// relocateEmpty moves every empty cluster onto the point farthest from its
// current centroid, the usual k-means convention.
func relocateEmpty(points [][]float64, labels []int, old, next [][]float64, counts []int) {
	taken := make(map[int]bool)
	for c := range next {
		if counts[c] > 0 {
			continue
		}
		far, farDist := -1, -1.0
		for i, p := range points {
			if taken[i] {
				continue
			}
			if d := sqDist(p, old[labels[i]]); d > farDist {
				far, farDist = i, d
			}
		}
		if far < 0 {
			copy(next[c], old[c])
			continue
		}
		taken[far] = true
		copy(next[c], points[far])
	}
}

func sqDist(a, b []float64) float64 {
	d := floats.Distance(a, b, 2)
	return d * d
}

func clone(v []float64) []float64 {
	return append([]float64(nil), v...)
}
