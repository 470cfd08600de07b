package hnsw

import "fmt"

// lockRank tracks the ascending-id lock order a single call chain is
// following, per §4.E's "per-node neighbor locks acquired in a fixed total
// order (by node id)". Go has no portable way to attach state to a
// goroutine, so the chain threads an explicit *lockRank through the calls
// that need to hold more than one neighbor mutex at once, rather than
// relying on goroutine-local storage the way a runtime lock-rank checker
// in another language might.
type lockRank struct {
	held    []uint64
	enabled bool
}

func newLockRank(enabled bool) *lockRank {
	return &lockRank{enabled: enabled}
}

// acquire asserts id is greater than every id already held by this chain
// (debug mode only) and records it.
func (r *lockRank) acquire(id uint64) {
	if !r.enabled {
		return
	}
	if len(r.held) > 0 && id <= r.held[len(r.held)-1] {
		panic(fmt.Sprintf("hnsw: lock rank violation: acquiring id %d after %d", id, r.held[len(r.held)-1]))
	}
	r.held = append(r.held, id)
}

func (r *lockRank) release() {
	if !r.enabled || len(r.held) == 0 {
		return
	}
	r.held = r.held[:len(r.held)-1]
}

// contentionCounters exposes the counters §4.E calls for: "counters expose
// contention."
type contentionCounters struct {
	layerTableReads  int64
	layerTableWrites int64
	neighborLocks    int64
}
