package config

import "sync/atomic"

// Package-level feature flags mirror FeaturesConfig but can be flipped at
// runtime without reloading configuration — useful for admin endpoints and
// for tests that need to exercise both sides of a toggle.
//
// Each flag starts at the value LoadFromEnv/LoadFromFile would produce by
// default; call ApplyFeaturesConfig to seed them from a loaded Config.
// The flags are only stored and reported here: no other package reads
// them, so their values do not change any storage, full-text or query
// execution path.

var (
	sq8Default       atomic.Bool
	trigramPrefilter atomic.Bool
	parallelPlanner  atomic.Bool
)

func init() {
	trigramPrefilter.Store(true)
	parallelPlanner.Store(true)
}

// ApplyFeaturesConfig seeds the runtime flags from a loaded Config, so a
// process's env/YAML configuration becomes the starting point for any later
// runtime overrides.
func ApplyFeaturesConfig(f FeaturesConfig) {
	sq8Default.Store(f.SQ8Default)
	trigramPrefilter.Store(f.TrigramPrefilter)
	parallelPlanner.Store(f.ParallelPlanner)
}

// ResetFeatureFlags restores every flag to its zero-config default. Intended
// for test isolation between cases that call the Enable/Disable setters.
func ResetFeatureFlags() {
	sq8Default.Store(false)
	trigramPrefilter.Store(true)
	parallelPlanner.Store(true)
}

// IsSQ8DefaultEnabled reports whether new collections default to int8
// scalar quantization when the caller doesn't specify a storage mode.
func IsSQ8DefaultEnabled() bool { return sq8Default.Load() }

// EnableSQ8Default turns on SQ8-by-default for new collections.
func EnableSQ8Default() { sq8Default.Store(true) }

// DisableSQ8Default restores full-precision vectors as the default.
func DisableSQ8Default() { sq8Default.Store(false) }

// WithSQ8DefaultEnabled runs fn with the flag forced on, then restores the
// previous value. Intended for tests that need a specific setting without
// disturbing global state for the rest of the suite.
func WithSQ8DefaultEnabled(fn func()) {
	prev := sq8Default.Load()
	sq8Default.Store(true)
	defer sq8Default.Store(prev)
	fn()
}

// IsTrigramPrefilterEnabled reports whether full-text search narrows
// candidates with the trigram index before BM25 scoring.
func IsTrigramPrefilterEnabled() bool { return trigramPrefilter.Load() }

// EnableTrigramPrefilter turns the trigram prefilter on.
func EnableTrigramPrefilter() { trigramPrefilter.Store(true) }

// DisableTrigramPrefilter turns the trigram prefilter off, forcing full-text
// search to score every indexed document directly. Useful for small corpora
// or when diagnosing a prefilter recall regression.
func DisableTrigramPrefilter() { trigramPrefilter.Store(false) }

// WithTrigramPrefilterDisabled runs fn with the prefilter forced off, then
// restores the previous value.
func WithTrigramPrefilterDisabled(fn func()) {
	prev := trigramPrefilter.Load()
	trigramPrefilter.Store(false)
	defer trigramPrefilter.Store(prev)
	fn()
}

// IsParallelPlannerEnabled reports whether the query executor may run
// independent legs of a fused or joined query concurrently.
func IsParallelPlannerEnabled() bool { return parallelPlanner.Load() }

// EnableParallelPlanner turns on concurrent execution of independent query
// legs (fusion legs, join sides).
func EnableParallelPlanner() { parallelPlanner.Store(true) }

// DisableParallelPlanner forces sequential execution of query legs. Useful
// for deterministic benchmarking or diagnosing a concurrency bug.
func DisableParallelPlanner() { parallelPlanner.Store(false) }

// WithParallelPlannerDisabled runs fn with the planner forced sequential,
// then restores the previous value.
func WithParallelPlannerDisabled(fn func()) {
	prev := parallelPlanner.Load()
	parallelPlanner.Store(false)
	defer parallelPlanner.Store(prev)
	fn()
}
