package simd

import "math"

// Kernel computes a raw metric value between two equal-length float32
// vectors. For similarity metrics (dot product, cosine) higher is closer;
// for distance metrics (squared L2, Hamming, Jaccard-as-distance) lower is
// closer. CachedDistance normalizes this into a single "distance" sense.
type Kernel func(a, b []float32) float64

// DotProduct computes Σ a[i]*b[i] with an accumulator count chosen by
// level, falling back through shorter vector + scalar tails per §4.A.
func DotProduct(a, b []float32, level Level) float64 {
	n := accumulators(level)
	switch {
	case n >= 4 && len(a) >= 16:
		return dotUnroll4(a, b)
	case n >= 2 && len(a) >= 8:
		return dotUnroll2(a, b)
	default:
		return dotScalar(a, b)
	}
}

func dotScalar(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func dotUnroll2(a, b []float32) float64 {
	var acc0, acc1 float64
	n := len(a)
	i := 0
	for ; i+2 <= n; i += 2 {
		acc0 += float64(a[i]) * float64(b[i])
		acc1 += float64(a[i+1]) * float64(b[i+1])
	}
	sum := acc0 + acc1
	for ; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func dotUnroll4(a, b []float32) float64 {
	var acc0, acc1, acc2, acc3 float64
	n := len(a)
	i := 0
	for ; i+4 <= n; i += 4 {
		acc0 += float64(a[i]) * float64(b[i])
		acc1 += float64(a[i+1]) * float64(b[i+1])
		acc2 += float64(a[i+2]) * float64(b[i+2])
		acc3 += float64(a[i+3]) * float64(b[i+3])
	}
	sum := acc0 + acc1 + acc2 + acc3
	// Tail: shorter unroll then per-element, per §4.A tail handling.
	for ; i+2 <= n; i += 2 {
		sum += float64(a[i])*float64(b[i]) + float64(a[i+1])*float64(b[i+1])
	}
	for ; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// SquaredL2 computes Σ (a[i]-b[i])^2.
func SquaredL2(a, b []float32, level Level) float64 {
	n := accumulators(level)
	var sum float64
	i := 0
	switch {
	case n >= 4 && len(a) >= 16:
		var acc0, acc1, acc2, acc3 float64
		for ; i+4 <= len(a); i += 4 {
			d0 := float64(a[i]) - float64(b[i])
			d1 := float64(a[i+1]) - float64(b[i+1])
			d2 := float64(a[i+2]) - float64(b[i+2])
			d3 := float64(a[i+3]) - float64(b[i+3])
			acc0 += d0 * d0
			acc1 += d1 * d1
			acc2 += d2 * d2
			acc3 += d3 * d3
		}
		sum = acc0 + acc1 + acc2 + acc3
	case n >= 2 && len(a) >= 8:
		var acc0, acc1 float64
		for ; i+2 <= len(a); i += 2 {
			d0 := float64(a[i]) - float64(b[i])
			d1 := float64(a[i+1]) - float64(b[i+1])
			acc0 += d0 * d0
			acc1 += d1 * d1
		}
		sum = acc0 + acc1
	}
	for ; i < len(a); i++ {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

// CosineSimilarity returns a value clamped to [-1, 1], per Invariant 3.
func CosineSimilarity(a, b []float32, level Level) float64 {
	if len(a) == 0 {
		return 0
	}
	dot := DotProduct(a, b, level)
	na := DotProduct(a, a, level)
	nb := DotProduct(b, b, level)
	if na == 0 || nb == 0 {
		return 0
	}
	c := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if c > 1 {
		return 1
	}
	if c < -1 {
		return -1
	}
	return c
}

// HammingDistance counts differing bits between two vectors interpreted as
// sign bits (>0 => 1): exact integer count, per §4.A.
func HammingDistance(a, b []float32, _ Level) float64 {
	var count int
	for i := range a {
		if (a[i] > 0) != (b[i] > 0) {
			count++
		}
	}
	return float64(count)
}

// JaccardSimilarity treats vectors as non-negative weighted sets:
// similarity = Σ min(a,b) / Σ max(a,b).
func JaccardSimilarity(a, b []float32, _ Level) float64 {
	var minSum, maxSum float64
	for i := range a {
		ai, bi := float64(a[i]), float64(b[i])
		if ai < bi {
			minSum += ai
			maxSum += bi
		} else {
			minSum += bi
			maxSum += ai
		}
	}
	if maxSum == 0 {
		return 0
	}
	return minSum / maxSum
}

// ScalarReference computes the f64-accumulated scalar reference value for
// a metric, used only by tests as the correctness oracle (Invariant 2).
// It is deliberately independent of Level so it never shares a code path
// with the kernel under test.
func ScalarReference(metric func(a, b []float64) float64, a, b []float32) float64 {
	fa := make([]float64, len(a))
	fb := make([]float64, len(b))
	for i := range a {
		fa[i] = float64(a[i])
		fb[i] = float64(b[i])
	}
	return metric(fa, fb)
}
