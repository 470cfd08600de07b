package veles

import "time"

// Metric identifies a vector distance/similarity function, per §3.
type Metric string

const (
	MetricCosine     Metric = "cosine"
	MetricEuclidean  Metric = "euclidean"
	MetricDotProduct Metric = "dot_product"
	MetricHamming    Metric = "hamming"
	MetricJaccard    Metric = "jaccard"
)

// StorageMode selects how a collection's vectors are stored, per §3.
type StorageMode string

const (
	StorageFull   StorageMode = "full"   // f32
	StorageSQ8    StorageMode = "sq8"    // int8 + scale
	StorageBinary StorageMode = "binary" // 1-bit
)

// SearchMode is a named ef_search preset per §6.
type SearchMode string

const (
	SearchFast     SearchMode = "fast"     // ef=64
	SearchBalanced SearchMode = "balanced" // ef=128
	SearchAccurate SearchMode = "accurate" // ef=256
	SearchPerfect  SearchMode = "perfect"  // ef=max
)

// EfForMode maps a SearchMode to its ef_search value. maxEf is the value
// used for SearchPerfect (typically the live point count, capped).
func EfForMode(mode SearchMode, maxEf int) int {
	switch mode {
	case SearchFast:
		return 64
	case SearchBalanced:
		return 128
	case SearchAccurate:
		return 256
	case SearchPerfect:
		return maxEf
	default:
		return 128
	}
}

// HNSWParams configures the HNSW index for a collection, per §6 CollectionConfig.
type HNSWParams struct {
	M              int
	EfConstruction int
	EfSearch       int
}

// DefaultHNSWParams mirrors the teacher's DefaultHNSWConfig defaults.
func DefaultHNSWParams() HNSWParams {
	return HNSWParams{M: 16, EfConstruction: 200, EfSearch: 100}
}

// CollectionConfig is the immutable-after-creation shape of a collection,
// per §3 and §6.
type CollectionConfig struct {
	Dimension   int
	Metric      Metric
	StorageMode StorageMode
	HNSW        HNSWParams
}

// Point is the unit of vector storage, per §3.
type Point struct {
	ID      uint64
	Vector  []float32
	Payload map[string]any
	// Quantized is the SQ8 companion, populated only when quantization
	// training is active for the owning collection.
	Quantized []int8
	Scale     float32
}

// PropertyValue is the typed-value union used by graph node/edge
// properties and column cells, per §3.
type PropertyValue struct {
	I64  int64
	F64  float64
	Bool bool
	Str  string
	Time time.Time
	Kind PropertyKind
}

// PropertyKind tags which field of PropertyValue is populated.
type PropertyKind uint8

const (
	PropInt64 PropertyKind = iota
	PropFloat64
	PropBool
	PropString
	PropTimestamp
	PropNull
)

func Int64Value(v int64) PropertyValue       { return PropertyValue{I64: v, Kind: PropInt64} }
func Float64Value(v float64) PropertyValue   { return PropertyValue{F64: v, Kind: PropFloat64} }
func BoolValue(v bool) PropertyValue         { return PropertyValue{Bool: v, Kind: PropBool} }
func StringValue(v string) PropertyValue     { return PropertyValue{Str: v, Kind: PropString} }
func TimestampValue(v time.Time) PropertyValue { return PropertyValue{Time: v, Kind: PropTimestamp} }
func NullValue() PropertyValue               { return PropertyValue{Kind: PropNull} }

// Any returns the PropertyValue boxed as an interface{}, used when bridging
// to the query layer's generic value representation.
func (p PropertyValue) Any() any {
	switch p.Kind {
	case PropInt64:
		return p.I64
	case PropFloat64:
		return p.F64
	case PropBool:
		return p.Bool
	case PropString:
		return p.Str
	case PropTimestamp:
		return p.Time
	default:
		return nil
	}
}

// SearchOptions controls a single NEAR-style search, per §6.
type SearchOptions struct {
	K              int
	Filter         *RowFilter
	IncludeVectors bool
	EfSearch       int
	Mode           SearchMode
	TimeoutMS      int
	// Diversify enables MMR re-ranking of a hybrid/multi-query search's
	// fused results, per §4.G's optional relevance/diversity trade-off.
	Diversify       bool
	DiversifyLambda float64 // 1.0 = pure relevance, 0.0 = pure diversity; 0 defaults to 0.7
}

// RowFilter is an opaque predicate handle evaluated by pkg/column; it is
// declared here so pkg/query and pkg/veles can pass it across the
// collection boundary without a circular import.
type RowFilter struct {
	// Expr is the VelesQL WHERE AST fragment (see pkg/velesql), stored as
	// an opaque any to avoid importing pkg/velesql from pkg/veles.
	Expr any
}

// SearchResult is one ranked hit, per §6.
type SearchResult struct {
	ID      uint64
	Score   float64
	Vector  []float32
	Payload map[string]any
}
