package simd

import "math"

// QuantizeSQ8 scales a f32 vector into an int8 companion plus a per-vector
// scale factor, per §3 "quantized int8 companion (produced when SQ8
// training is active)". The scale maps the vector's max absolute
// component to 127.
func QuantizeSQ8(v []float32) ([]int8, float32) {
	var maxAbs float32
	for _, x := range v {
		a := x
		if a < 0 {
			a = -a
		}
		if a > maxAbs {
			maxAbs = a
		}
	}
	if maxAbs == 0 {
		return make([]int8, len(v)), 1
	}
	scale := maxAbs / 127.0
	out := make([]int8, len(v))
	inv := 1.0 / scale
	for i, x := range v {
		q := int32(math.Round(float64(x * inv)))
		if q > 127 {
			q = 127
		} else if q < -127 {
			q = -127
		}
		out[i] = int8(q)
	}
	return out, scale
}

// DequantizeSQ8 reconstructs an approximate f32 vector from its int8
// companion and scale, for tests and diagnostics.
func DequantizeSQ8(q []int8, scale float32) []float32 {
	out := make([]float32, len(q))
	for i, x := range q {
		out[i] = float32(x) * scale
	}
	return out
}

// Int8DotProduct computes the dot product of two int8 vectors sharing the
// same per-vector scales, returning a float64 dequantized result. HNSW's
// candidate ranking pass does not call it; pkg/hnsw has its own
// int8Similarity.
func Int8DotProduct(a []int8, scaleA float32, b []int8, scaleB float32) float64 {
	var acc int64
	for i := range a {
		acc += int64(a[i]) * int64(b[i])
	}
	return float64(acc) * float64(scaleA) * float64(scaleB)
}

// Int8CosineSimilarity approximates cosine similarity directly on
// quantized vectors — adequate for candidate ranking, re-scored with f32
// before the final top-k is returned (§4.E).
func Int8CosineSimilarity(a []int8, scaleA float32, b []int8, scaleB float32) float64 {
	dot := Int8DotProduct(a, scaleA, b, scaleB)
	na := Int8DotProduct(a, scaleA, a, scaleA)
	nb := Int8DotProduct(b, scaleB, b, scaleB)
	if na <= 0 || nb <= 0 {
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
