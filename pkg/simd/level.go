// Package simd provides the five metric primitives — dot product, squared
// L2, cosine similarity, Hamming distance, Jaccard similarity — as the
// fastest correct implementation available on the runtime CPU, with a
// scalar fallback that is bit-reproducible across builds, per §4.A.
//
// Detection runs once at process startup via github.com/klauspost/cpuid/v2
// and is cached for the lifetime of the process (§9 "Global state": an
// init → use lifecycle, never mutated after init).
package simd

import (
	"sync/atomic"

	"github.com/klauspost/cpuid/v2"
)

// Level names the selected instruction-set tier. Every Level below is
// implemented in portable Go (this corpus carries no hand-written
// assembly), so Level governs unroll/accumulator-count selection rather
// than switching to a different machine-code path — the dispatch
// decision is real even though the execution is portable.
type Level int

const (
	LevelScalar Level = iota
	LevelNEON
	LevelAVX2x2
	LevelAVX2x4
	LevelAVX512
)

func (l Level) String() string {
	switch l {
	case LevelAVX512:
		return "avx512"
	case LevelAVX2x4:
		return "avx2-4acc"
	case LevelAVX2x2:
		return "avx2-2acc"
	case LevelNEON:
		return "neon"
	default:
		return "scalar"
	}
}

var detected atomic.Int32

func init() {
	detected.Store(int32(detectLevel()))
}

func detectLevel() Level {
	switch {
	case cpuid.CPU.Supports(cpuid.AVX512F):
		return LevelAVX512
	case cpuid.CPU.Supports(cpuid.AVX2) && cpuid.CPU.Supports(cpuid.FMA3):
		return LevelAVX2x4
	case cpuid.CPU.Supports(cpuid.AVX2):
		return LevelAVX2x2
	case cpuid.CPU.Supports(cpuid.ASIMD):
		return LevelNEON
	default:
		return LevelScalar
	}
}

// DetectedLevel returns the process-wide cached ISA level.
func DetectedLevel() Level { return Level(detected.Load()) }

// accumulators returns how many parallel accumulators a kernel should use
// to hide FMA latency for the given level, per §4.A "1-4 accumulators".
func accumulators(l Level) int {
	switch l {
	case LevelAVX512, LevelAVX2x4:
		return 4
	case LevelAVX2x2, LevelNEON:
		return 2
	default:
		return 1
	}
}
