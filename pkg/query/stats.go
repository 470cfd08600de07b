package query

import (
	"sync"
	"time"
)

// Store identifies which backing store a leg of a query touched, so
// QueryStats can track per-store latency independently, per §4.I "EMA of
// recent per-store latencies" feeding strategy selection.
type Store int

const (
	StoreVector Store = iota
	StoreGraph
	StoreColumn
	StoreText
)

// Strategy names the access-path ordering a planner chose for a
// statement. Strategy selection is advisory only: it is reported via
// EXPLAIN, and the executor does not consult it.
type Strategy string

const (
	VectorFirst Strategy = "VectorFirst"
	GraphFirst  Strategy = "GraphFirst"
	Parallel    Strategy = "Parallel"
)

// emaAlpha weights the newest sample against the running average; 0.2
// gives a ~3-sample half-life (0.8^3 ≈ 0.51), smoothing out one-off slow queries without
// reacting too slowly to a sustained shift (e.g. a cold cache warming up).
const emaAlpha = 0.2

// QueryStats tracks an exponential moving average of per-store latency
// for one collection, used by ChooseStrategy to prefer whichever store
// has recently been fastest when a query could be driven from either
// side (e.g. a MATCH with a NEAR predicate in its WHERE).
type QueryStats struct {
	mu  sync.Mutex
	ema map[Store]float64
}

// NewQueryStats creates an empty stats tracker.
func NewQueryStats() *QueryStats {
	return &QueryStats{ema: make(map[Store]float64)}
}

// Record folds a new latency observation for store into its EMA.
func (q *QueryStats) Record(store Store, latency time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	ms := float64(latency) / float64(time.Millisecond)
	if cur, ok := q.ema[store]; ok {
		q.ema[store] = emaAlpha*ms + (1-emaAlpha)*cur
	} else {
		q.ema[store] = ms
	}
}

// EMA returns the current moving-average latency in milliseconds for
// store, and whether any observation has been recorded yet.
func (q *QueryStats) EMA(store Store) (float64, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	v, ok := q.ema[store]
	return v, ok
}

// ChooseStrategy picks an access-path label for a statement's feature
// set, per §4.I's criteria: presence of NEAR/NEAR_FUSED, presence of a
// graph MATCH, column-predicate selectivity/index availability, and the
// collection's recent per-store latencies.
func ChooseStrategy(f Features, stats *QueryStats) Strategy {
	switch {
	case f.HasVectorSearch && f.HasGraphMatch:
		vEMA, vOK := stats.EMA(StoreVector)
		gEMA, gOK := stats.EMA(StoreGraph)
		switch {
		case vOK && gOK:
			if vEMA <= gEMA {
				return VectorFirst
			}
			return GraphFirst
		case vOK:
			return VectorFirst
		case gOK:
			return GraphFirst
		default:
			return Parallel
		}
	case f.HasVectorSearch:
		return VectorFirst
	case f.HasGraphMatch:
		return GraphFirst
	default:
		return Parallel
	}
}
