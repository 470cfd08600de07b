// Package hnsw implements VelesDB's component E: a multi-layer
// proximity graph for approximate k-NN search, generalizing the teacher's
// search.HNSWIndex (pkg/search/hnsw_index.go) from string ids and a single
// hardcoded cosine/dot metric to u64 ids, a pluggable simd.CachedDistance,
// and dual f32/int8 precision per §4.E.
package hnsw

import (
	"math"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/velesdb/veles/pkg/simd"
	"github.com/velesdb/veles/pkg/veles"
)

// node is one vertex of the layer graph. neighbors[l] holds the internal
// dense indices (not external ids) of this node's up-to-M neighbors at
// layer l, mirroring the teacher's [][]string but indexed densely since
// ids here must be durable u64s rather than map keys, per §9 "Arena + id
// for graphs".
type node struct {
	id        uint64
	vecF32    []float32
	vecI8     []int8
	scale     float32
	level     int
	neighbors [][]int
	mu        sync.Mutex
}

// Result is one ranked hit.
type Result struct {
	ID    uint64
	Score float64 // similarity, higher is better
}

// Index is a single collection's HNSW graph. The shared layer-table
// RWMutex guards `nodes`/`index`/`entryPoint`/`maxLevel`. Search holds
// the shared lock for its whole call and Insert holds the exclusive lock
// for its whole call; neighbor lists are additionally guarded by each
// node's own mutex.
type Index struct {
	mu    sync.RWMutex
	nodes []*node
	index map[uint64]int // external id -> internal dense index

	entryPoint int // internal index, -1 when empty
	maxLevel   int

	dim             int
	m               int
	efConstruction  int
	levelMultiplier float64
	dist            *simd.CachedDistance

	debugLockRank bool
	counters      contentionCounters
}

// New creates an empty index for dim-dimensional vectors under the given
// metric, with HNSW parameters per §6 CollectionConfig.
func New(dim int, metric veles.Metric, params veles.HNSWParams) *Index {
	if params.M <= 0 {
		params = veles.DefaultHNSWParams()
	}
	return &Index{
		nodes:           nil,
		index:           make(map[uint64]int),
		entryPoint:      -1,
		maxLevel:        0,
		dim:             dim,
		m:               params.M,
		efConstruction:  params.EfConstruction,
		levelMultiplier: 1.0 / math.Log(float64(params.M)),
		dist:            simd.NewCachedDistance(metric, dim),
	}
}

// SetDebugLockRank enables the lock-rank assertion for tests and
// diagnostics, per §4.E's "runtime lock rank checker, enabled in debug."
// The contention counters are updated whether or not it is enabled.
func (idx *Index) SetDebugLockRank(enabled bool) { idx.debugLockRank = enabled }

func (idx *Index) randomLevel() int {
	r := rand.Float64()
	for r == 0 {
		r = rand.Float64()
	}
	return int(-math.Log(r) * idx.levelMultiplier)
}

// Insert adds (or, if id already exists, re-adds under a new internal slot
// — callers must Remove first for true update semantics) a vector to the
// index. quant/scale may be zero-valued when quantization training is not
// active for this collection.
func (idx *Index) Insert(id uint64, vec []float32, quant []int8, scale float32) error {
	if len(vec) != idx.dim {
		return veles.New(veles.KindDimensionMismatch, "hnsw: vector dimension mismatch")
	}
	for _, c := range vec {
		if math.IsNaN(float64(c)) || math.IsInf(float64(c), 0) {
			return veles.New(veles.KindNonFiniteVector, "hnsw: vector contains a non-finite component")
		}
	}

	idx.mu.Lock()
	atomic.AddInt64(&idx.counters.layerTableWrites, 1)
	defer idx.mu.Unlock()

	level := idx.randomLevel()
	n := &node{id: id, vecF32: vec, vecI8: quant, scale: scale, level: level, neighbors: make([][]int, level+1)}
	for i := range n.neighbors {
		n.neighbors[i] = make([]int, 0, idx.m)
	}
	newIdx := len(idx.nodes)
	idx.nodes = append(idx.nodes, n)
	idx.index[id] = newIdx

	if idx.entryPoint == -1 {
		idx.entryPoint = newIdx
		idx.maxLevel = level
		return nil
	}

	ep := idx.entryPoint
	epLevel := idx.nodes[ep].level

	for l := epLevel; l > level; l-- {
		ep = idx.greedyStep(vec, ep, l)
	}

	for l := minInt(level, epLevel); l >= 0; l-- {
		candidates := idx.searchLayer(vec, nil, ep, idx.efConstruction, l)
		neighbors := idx.selectNeighbors(vec, candidates, idx.m)
		n.neighbors[l] = neighbors

		rank := newLockRank(idx.debugLockRank)
		sorted := append([]int(nil), neighbors...)
		sort.Slice(sorted, func(i, j int) bool { return idx.nodes[sorted[i]].id < idx.nodes[sorted[j]].id })
		for _, nb := range sorted {
			neighbor := idx.nodes[nb]
			rank.acquire(neighbor.id)
			atomic.AddInt64(&idx.counters.neighborLocks, 1)
			neighbor.mu.Lock()
			if len(neighbor.neighbors) > l {
				if len(neighbor.neighbors[l]) < idx.m {
					neighbor.neighbors[l] = append(neighbor.neighbors[l], newIdx)
				} else {
					combined := append(append([]int(nil), neighbor.neighbors[l]...), newIdx)
					neighbor.neighbors[l] = idx.selectNeighbors(neighbor.vecF32, combined, idx.m)
				}
			}
			neighbor.mu.Unlock()
			rank.release()
		}

		if len(candidates) > 0 {
			ep = candidates[0]
		}
	}

	if level > idx.maxLevel {
		idx.entryPoint = newIdx
		idx.maxLevel = level
	}
	return nil
}

// Remove tombstones id by detaching it from every neighbor list. The slot
// itself stays allocated (internal indices must stay stable for other
// nodes' neighbor lists); re-inserting the same id after Remove is treated
// as a fresh node.
func (idx *Index) Remove(id uint64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	i, ok := idx.index[id]
	if !ok {
		return
	}
	n := idx.nodes[i]
	for l := 0; l <= n.level; l++ {
		for _, nb := range n.neighbors[l] {
			neighbor := idx.nodes[nb]
			neighbor.mu.Lock()
			if len(neighbor.neighbors) > l {
				filtered := neighbor.neighbors[l][:0]
				for _, x := range neighbor.neighbors[l] {
					if x != i {
						filtered = append(filtered, x)
					}
				}
				neighbor.neighbors[l] = filtered
			}
			neighbor.mu.Unlock()
		}
	}
	delete(idx.index, id)
	idx.nodes[i] = nil

	if idx.entryPoint == i {
		idx.entryPoint = -1
		idx.maxLevel = 0
		for j, other := range idx.nodes {
			if other != nil && other.level >= idx.maxLevel {
				idx.maxLevel = other.level
				idx.entryPoint = j
			}
		}
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Len reports the number of live nodes.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	n := 0
	for _, x := range idx.nodes {
		if x != nil {
			n++
		}
	}
	return n
}

// Vector returns id's stored f32 vector, for callers (the query executor's
// similarity() predicate, payload hydration) that need the raw vector
// rather than a ranked search.
func (idx *Index) Vector(id uint64) ([]float32, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	i, ok := idx.index[id]
	if !ok || idx.nodes[i] == nil {
		return nil, false
	}
	return idx.nodes[i].vecF32, true
}

// Similarity scores a against id's stored vector under the index's
// configured metric, used by the query executor to evaluate a
// `similarity(field, $v)` predicate without running a full top-k search.
func (idx *Index) Similarity(id uint64, a []float32) (float64, bool) {
	v, ok := idx.Vector(id)
	if !ok {
		return 0, false
	}
	return idx.dist.Similarity(a, v), true
}
