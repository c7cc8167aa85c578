package tools

import (
	"context"
	"math"
	"math/rand"

	"github.com/viterin/vek/vek32"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"
)

// =============================================================================
// K-means over token embeddings
// =============================================================================
//
// Distances are computed for all pairs at once through BLAS:
//
//	||x - c||² = ||x||² + ||c||² - 2·(x·c),   dots = X @ C.T
//
// Restarts run sequentially with seeds derived from the caller's seed so the
// resulting centroids are reproducible.

// KMeansConfig configures k-means clustering.
type KMeansConfig struct {
	// MaxIterations is the safety limit for iterations per restart.
	MaxIterations int

	// NumRestarts is the number of seeded restarts. The lowest objective wins.
	NumRestarts int

	// ConvergenceThreshold is the relative improvement threshold.
	ConvergenceThreshold float64
}

// DefaultKMeansConfig returns the configuration used by Local.
func DefaultKMeansConfig() KMeansConfig {
	const float32Epsilon = float64(1.1920929e-7)
	return KMeansConfig{
		MaxIterations:        300,
		NumRestarts:          3,
		ConvergenceThreshold: 1000 * float32Epsilon,
	}
}

// kmeansState holds all state for a single k-means run.
// Memory is laid out for BLAS compatibility (row-major, contiguous).
type kmeansState struct {
	n   int
	k   int
	dim int

	vectors   []float64 // [n × dim]
	centroids []float64 // [k × dim]

	vectorNorms   []float64 // [n]
	centroidNorms []float64 // [k]

	dots []float64 // [n × k]

	assignments []int
	counts      []int

	newCentroids []float64 // [k × dim]
	objective    float64
}

func newKMeansState(vectors [][]float32, k int) *kmeansState {
	n := len(vectors)
	dim := len(vectors[0])

	s := &kmeansState{
		n:             n,
		k:             k,
		dim:           dim,
		vectors:       make([]float64, n*dim),
		centroids:     make([]float64, k*dim),
		vectorNorms:   make([]float64, n),
		centroidNorms: make([]float64, k),
		dots:          make([]float64, n*k),
		assignments:   make([]int, n),
		counts:        make([]int, k),
		newCentroids:  make([]float64, k*dim),
	}

	for i, v := range vectors {
		var norm float64
		for d := 0; d < dim; d++ {
			val := float64(v[d])
			s.vectors[i*dim+d] = val
			norm += val * val
		}
		s.vectorNorms[i] = norm
	}
	return s
}

func (s *kmeansState) row(data []float64, i int) []float64 {
	return data[i*s.dim : (i+1)*s.dim]
}

func dot64(a, b []float64) float64 {
	return blas64.Dot(blas64.Vector{N: len(a), Inc: 1, Data: a}, blas64.Vector{N: len(b), Inc: 1, Data: b})
}

// initPlusPlus picks initial centroids with k-means++ seeding.
func (s *kmeansState) initPlusPlus(rng *rand.Rand) {
	first := rng.Intn(s.n)
	copy(s.row(s.centroids, 0), s.row(s.vectors, first))

	distances := make([]float64, s.n)
	for i := range distances {
		distances[i] = math.MaxFloat64
	}
	dotProducts := make([]float64, s.n)

	for c := 1; c < s.k; c++ {
		prev := s.row(s.centroids, c-1)
		prevNorm := dot64(prev, prev)

		blas64.Gemv(blas.NoTrans, 1.0,
			blas64.General{Rows: s.n, Cols: s.dim, Stride: s.dim, Data: s.vectors},
			blas64.Vector{N: s.dim, Inc: 1, Data: prev},
			0.0,
			blas64.Vector{N: s.n, Inc: 1, Data: dotProducts},
		)

		var total float64
		for i := 0; i < s.n; i++ {
			dist := s.vectorNorms[i] + prevNorm - 2*dotProducts[i]
			if dist < 0 {
				dist = 0
			}
			if dist < distances[i] {
				distances[i] = dist
			}
			total += distances[i]
		}

		if total == 0 {
			idx := rng.Intn(s.n)
			copy(s.row(s.centroids, c), s.row(s.vectors, idx))
			continue
		}

		target := rng.Float64() * total
		var cumulative float64
		selected := s.n - 1
		for i, d := range distances {
			cumulative += d
			if cumulative >= target {
				selected = i
				break
			}
		}
		copy(s.row(s.centroids, c), s.row(s.vectors, selected))
	}
}

func (s *kmeansState) computeCentroidNorms() {
	for j := 0; j < s.k; j++ {
		c := s.row(s.centroids, j)
		s.centroidNorms[j] = dot64(c, c)
	}
}

// computeDots fills dots = vectors @ centroids.T with one GEMM call.
func (s *kmeansState) computeDots() {
	blas64.Gemm(blas.NoTrans, blas.Trans, 1.0,
		blas64.General{Rows: s.n, Cols: s.dim, Stride: s.dim, Data: s.vectors},
		blas64.General{Rows: s.k, Cols: s.dim, Stride: s.dim, Data: s.centroids},
		0.0,
		blas64.General{Rows: s.n, Cols: s.k, Stride: s.k, Data: s.dots},
	)
}

func (s *kmeansState) assign() float64 {
	for j := range s.counts {
		s.counts[j] = 0
	}

	var total float64
	for i := 0; i < s.n; i++ {
		minDist := math.MaxFloat64
		minJ := 0
		for j := 0; j < s.k; j++ {
			dist := s.vectorNorms[i] + s.centroidNorms[j] - 2*s.dots[i*s.k+j]
			if dist < 0 {
				dist = 0
			}
			if dist < minDist {
				minDist = dist
				minJ = j
			}
		}
		s.assignments[i] = minJ
		s.counts[minJ]++
		total += minDist
	}
	s.objective = total
	return total
}

func (s *kmeansState) update() {
	for i := range s.newCentroids {
		s.newCentroids[i] = 0
	}
	for i := 0; i < s.n; i++ {
		blas64.Axpy(1.0,
			blas64.Vector{N: s.dim, Inc: 1, Data: s.row(s.vectors, i)},
			blas64.Vector{N: s.dim, Inc: 1, Data: s.row(s.newCentroids, s.assignments[i])},
		)
	}
	for j := 0; j < s.k; j++ {
		if s.counts[j] > 0 {
			blas64.Scal(1.0/float64(s.counts[j]), blas64.Vector{N: s.dim, Inc: 1, Data: s.row(s.newCentroids, j)})
		} else {
			// keep the previous position until reseeded
			copy(s.row(s.newCentroids, j), s.row(s.centroids, j))
		}
	}
	s.centroids, s.newCentroids = s.newCentroids, s.centroids
}

// reseedEmpty moves empty centroids onto the point farthest from its centroid.
func (s *kmeansState) reseedEmpty() {
	for j := 0; j < s.k; j++ {
		if s.counts[j] != 0 {
			continue
		}
		maxDist := -1.0
		maxIdx := 0
		for i := 0; i < s.n; i++ {
			c := s.assignments[i]
			dist := s.vectorNorms[i] + s.centroidNorms[c] - 2*s.dots[i*s.k+c]
			if dist > maxDist {
				maxDist = dist
				maxIdx = i
			}
		}
		copy(s.row(s.centroids, j), s.row(s.vectors, maxIdx))
		s.counts[j] = 1
	}
}

func (s *kmeansState) run(ctx context.Context, cfg KMeansConfig, rng *rand.Rand) (float64, error) {
	s.initPlusPlus(rng)
	s.computeCentroidNorms()

	prev := math.MaxFloat64
	for iter := 0; iter < cfg.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		s.computeDots()
		obj := s.assign()
		if math.IsInf(obj, 0) || math.IsNaN(obj) {
			return math.Inf(1), nil
		}
		if prev < math.MaxFloat64 {
			if obj == 0 {
				return obj, nil
			}
			improvement := (prev - obj) / obj
			if improvement >= 0 && improvement < cfg.ConvergenceThreshold {
				return obj, nil
			}
		}
		prev = obj

		s.update()
		s.computeCentroidNorms()
		s.reseedEmpty()
		s.computeCentroidNorms()
	}
	return s.objective, nil
}

// KMeans clusters vectors into at most k centroids. With fewer vectors than
// k every vector becomes its own centroid.
func KMeans(ctx context.Context, vectors [][]float32, k int, seed int64, cfg KMeansConfig) ([][]float32, error) {
	if len(vectors) == 0 || k <= 0 {
		return nil, nil
	}
	if len(vectors) <= k {
		out := make([][]float32, len(vectors))
		for i, v := range vectors {
			out[i] = append([]float32(nil), v...)
		}
		return out, nil
	}
	if cfg.MaxIterations <= 0 || cfg.NumRestarts <= 0 {
		cfg = DefaultKMeansConfig()
	}

	state := newKMeansState(vectors, k)
	best := make([]float64, len(state.centroids))
	bestObj := math.MaxFloat64

	for restart := 0; restart < cfg.NumRestarts; restart++ {
		rng := rand.New(rand.NewSource(seed + int64(restart)))
		obj, err := state.run(ctx, cfg, rng)
		if err != nil {
			return nil, err
		}
		if obj < bestObj {
			bestObj = obj
			copy(best, state.centroids)
		}
	}

	out := make([][]float32, k)
	for j := 0; j < k; j++ {
		out[j] = make([]float32, state.dim)
		for d := 0; d < state.dim; d++ {
			out[j][d] = float32(best[j*state.dim+d])
		}
	}
	return out, nil
}

// NearestCentroid returns the index of the centroid closest to v, or -1 when
// there are no centroids.
func NearestCentroid(centroids [][]float32, v []float32) int {
	best := -1
	bestDist := math.MaxFloat64
	for i, c := range centroids {
		if len(c) != len(v) {
			continue
		}
		dist := float64(vek32.Distance(c, v))
		if dist < bestDist {
			bestDist = dist
			best = i
		}
	}
	return best
}

// KMeans implements Clusterer for Local.
func (l *Local) KMeans(ctx context.Context, vectors [][]float32, k int, seed int64) ([][]float32, error) {
	return KMeans(ctx, vectors, k, seed, l.cfg.KMeans)
}
