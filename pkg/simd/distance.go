package simd

import (
	"math"

	"github.com/velesdb/veles/pkg/veles"
)

// CachedDistance resolves a (metric, dimension) pair to function pointers
// exactly once at construction, per §4.A "Cached distance engine". Every
// subsequent call is a single indirect call, never a per-call ISA match.
// The struct is immutable after New and trivially shareable across
// threads/goroutines.
type CachedDistance struct {
	metric     veles.Metric
	dim        int
	level      Level
	similarity func(a, b []float32) float64
	// distance is the "lower is closer" function pointer, resolved once
	// alongside similarity so Distance() never branches per call beyond
	// the single indirect call, per §4.A.
	distance func(a, b []float32) float64
}

// NewCachedDistance builds the engine for metric over vectors of the given
// dimension, using the process-wide detected ISA level.
func NewCachedDistance(metric veles.Metric, dim int) *CachedDistance {
	level := DetectedLevel()
	cd := &CachedDistance{metric: metric, dim: dim, level: level}
	switch metric {
	case veles.MetricDotProduct:
		cd.similarity = func(a, b []float32) float64 { return DotProduct(a, b, level) }
		cd.distance = func(a, b []float32) float64 { return -DotProduct(a, b, level) }
	case veles.MetricEuclidean:
		cd.similarity = func(a, b []float32) float64 {
			return 1.0 / (1.0 + math.Sqrt(SquaredL2(a, b, level)))
		}
		cd.distance = func(a, b []float32) float64 { return SquaredL2(a, b, level) }
	case veles.MetricHamming:
		cd.similarity = func(a, b []float32) float64 {
			return 1.0 / (1.0 + HammingDistance(a, b, level))
		}
		cd.distance = func(a, b []float32) float64 { return HammingDistance(a, b, level) }
	case veles.MetricJaccard:
		cd.similarity = func(a, b []float32) float64 { return JaccardSimilarity(a, b, level) }
		cd.distance = func(a, b []float32) float64 { return 1 - JaccardSimilarity(a, b, level) }
	case veles.MetricCosine:
		fallthrough
	default:
		cd.similarity = func(a, b []float32) float64 { return CosineSimilarity(a, b, level) }
		cd.distance = func(a, b []float32) float64 { return 1 - CosineSimilarity(a, b, level) }
	}
	return cd
}

// Similarity returns the metric's "higher is closer" score.
func (c *CachedDistance) Similarity(a, b []float32) float64 {
	return c.similarity(a, b)
}

// Distance returns the metric's "lower is closer" score, used by HNSW's
// beam search.
func (c *CachedDistance) Distance(a, b []float32) float64 {
	return c.distance(a, b)
}

// Level reports the ISA level this engine was resolved against.
func (c *CachedDistance) Level() Level { return c.level }

// Dimension reports the fixed dimension this engine was built for.
func (c *CachedDistance) Dimension() int { return c.dim }

// Metric reports the metric this engine was built for.
func (c *CachedDistance) Metric() veles.Metric { return c.metric }
