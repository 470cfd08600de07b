package hnsw

import (
	"container/heap"
	"context"
	"sort"
	"sync/atomic"

	"github.com/velesdb/veles/pkg/veles"
)

// distItem is one entry of the candidate/result heaps during a layer
// search, generalized from the teacher's hnswDistItem from a string id to
// an internal dense index.
type distItem struct {
	idx   int
	dist  float64
	isMax bool
}

type distHeap []distItem

func (dh distHeap) Len() int { return len(dh) }
func (dh distHeap) Less(i, j int) bool {
	if dh[i].isMax {
		return dh[i].dist > dh[j].dist
	}
	return dh[i].dist < dh[j].dist
}
func (dh distHeap) Swap(i, j int) { dh[i], dh[j] = dh[j], dh[i] }

func (dh *distHeap) Push(x interface{}) { *dh = append(*dh, x.(distItem)) }

func (dh *distHeap) Pop() interface{} {
	old := *dh
	n := len(old)
	x := old[n-1]
	*dh = old[0 : n-1]
	return x
}

// greedyStep descends from entry within a single layer to its locally
// closest neighbor, used above the insertion/query level where only the
// single best candidate (not a beam) is needed, mirroring the teacher's
// searchLayerSingle.
func (idx *Index) greedyStep(query []float32, entry int, level int) int {
	current := entry
	currentDist := idx.dist.Distance(query, idx.nodes[current].vecF32)

	for {
		changed := false
		n := idx.nodes[current]
		n.mu.Lock()
		neighbors := append([]int(nil), n.neighbors[level]...)
		n.mu.Unlock()

		for _, nb := range neighbors {
			if idx.nodes[nb] == nil {
				continue
			}
			d := idx.dist.Distance(query, idx.nodes[nb].vecF32)
			if d < currentDist {
				current = nb
				currentDist = d
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return current
}

// searchLayer runs a beam search of width ef at the given layer, returning
// internal indices ordered nearest-first. visited, when non-nil, is reused
// across calls in the same query to avoid re-allocating the seen-set per
// layer.
func (idx *Index) searchLayer(query []float32, visited map[int]bool, entry int, ef int, level int) []int {
	if visited == nil {
		visited = make(map[int]bool)
	}
	visited[entry] = true

	candidates := &distHeap{}
	results := &distHeap{}
	heap.Init(candidates)
	heap.Init(results)

	entryDist := idx.dist.Distance(query, idx.nodes[entry].vecF32)
	heap.Push(candidates, distItem{idx: entry, dist: entryDist, isMax: false})
	heap.Push(results, distItem{idx: entry, dist: entryDist, isMax: true})

	for candidates.Len() > 0 {
		closest := heap.Pop(candidates).(distItem)

		if results.Len() >= ef {
			furthest := (*results)[0]
			if closest.dist > furthest.dist {
				break
			}
		}

		n := idx.nodes[closest.idx]
		if n == nil || len(n.neighbors) <= level {
			continue
		}
		n.mu.Lock()
		neighbors := append([]int(nil), n.neighbors[level]...)
		n.mu.Unlock()

		for _, nb := range neighbors {
			if visited[nb] || idx.nodes[nb] == nil {
				continue
			}
			visited[nb] = true

			d := idx.dist.Distance(query, idx.nodes[nb].vecF32)
			if results.Len() < ef || d < (*results)[0].dist {
				heap.Push(candidates, distItem{idx: nb, dist: d, isMax: false})
				heap.Push(results, distItem{idx: nb, dist: d, isMax: true})
				if results.Len() > ef {
					heap.Pop(results)
				}
			}
		}
	}

	resultList := make([]int, results.Len())
	for i := results.Len() - 1; i >= 0; i-- {
		resultList[i] = heap.Pop(results).(distItem).idx
	}
	return resultList
}

// selectNeighbors keeps the closest m of candidates, a simple variant of
// the diversity heuristic per §4.E: ties toward proximity first, then
// drops any candidate whose distance to an already-selected neighbor is
// smaller than its distance to the query, which avoids clustering all M
// slots on one side of a dense region.
func (idx *Index) selectNeighbors(query []float32, candidates []int, m int) []int {
	if len(candidates) <= m {
		return append([]int(nil), candidates...)
	}

	type cand struct {
		idx  int
		dist float64
	}
	ranked := make([]cand, len(candidates))
	for i, c := range candidates {
		ranked[i] = cand{idx: c, dist: idx.dist.Distance(query, idx.nodes[c].vecF32)}
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].dist < ranked[j].dist })

	selected := make([]int, 0, m)
	for _, c := range ranked {
		if len(selected) >= m {
			break
		}
		keep := true
		for _, s := range selected {
			if idx.nodes[s] == nil {
				continue
			}
			if idx.dist.Distance(idx.nodes[c.idx].vecF32, idx.nodes[s].vecF32) < c.dist {
				keep = false
				break
			}
		}
		if keep {
			selected = append(selected, c.idx)
		}
	}
	// The diversity pass can under-fill when everything clusters together;
	// top off with the closest remaining candidates by raw distance.
	if len(selected) < m {
		chosen := make(map[int]bool, len(selected))
		for _, s := range selected {
			chosen[s] = true
		}
		for _, c := range ranked {
			if len(selected) >= m {
				break
			}
			if !chosen[c.idx] {
				selected = append(selected, c.idx)
				chosen[c.idx] = true
			}
		}
	}
	return selected
}

// int8Similarity scores two SQ8-quantized vectors by their scaled dot
// product, used to rank the ef candidate pool before the authoritative f32
// rescore, per §4.E "int8-ranked candidate search, f32-rescored final
// top-k." This is a plain dot product dequantized by each vector's scale;
// it need only preserve relative order within the candidate pool, not
// match the f32 metric's exact value.
func int8Similarity(a, b []int8, scaleA, scaleB float32) float64 {
	var sum int64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		sum += int64(a[i]) * int64(b[i])
	}
	return float64(sum) * float64(scaleA) * float64(scaleB)
}

// Search returns the k nearest neighbors to query under the index's
// metric. Each candidate in the efSearch beam is ranked by the cheap int8
// approximation when it carries an SQ8 companion and by its f32 similarity
// otherwise; the top k of that ranking are then rescored against the f32
// vectors and returned in rescored order, per §4.E's dual precision
// search path.
func (idx *Index) Search(ctx context.Context, query []float32, k int, efSearch int) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(query) != idx.dim {
		return nil, veles.New(veles.KindDimensionMismatch, "hnsw: query dimension mismatch")
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()
	atomic.AddInt64(&idx.counters.layerTableReads, 1)

	if idx.entryPoint == -1 {
		return []Result{}, nil
	}
	if efSearch <= 0 {
		efSearch = idx.efConstruction
	}

	ep := idx.entryPoint
	for l := idx.maxLevel; l > 0; l-- {
		ep = idx.greedyStep(query, ep, l)
	}

	candidates := idx.searchLayer(query, nil, ep, efSearch, 0)

	type scored struct {
		i int
		s float64
	}
	pool := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		n := idx.nodes[c]
		if n == nil {
			continue
		}
		if n.vecI8 != nil {
			qi8, qscale := quantizeApprox(query)
			pool = append(pool, scored{i: c, s: int8Similarity(qi8, n.vecI8, qscale, n.scale)})
		} else {
			pool = append(pool, scored{i: c, s: idx.dist.Similarity(query, n.vecF32)})
		}
	}
	sort.Slice(pool, func(i, j int) bool { return pool[i].s > pool[j].s })

	results := make([]Result, 0, k)
	for _, p := range pool {
		if len(results) >= k {
			break
		}
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
		n := idx.nodes[p.i]
		score := idx.dist.Similarity(query, n.vecF32)
		results = append(results, Result{ID: n.id, Score: score})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results, nil
}

// quantizeApprox produces a throwaway SQ8 encoding of a query vector
// purely for int8Similarity ranking; it does not persist anywhere.
func quantizeApprox(v []float32) ([]int8, float32) {
	var maxAbs float32
	for _, c := range v {
		a := c
		if a < 0 {
			a = -a
		}
		if a > maxAbs {
			maxAbs = a
		}
	}
	if maxAbs == 0 {
		return make([]int8, len(v)), 0
	}
	scale := maxAbs / 127.0
	out := make([]int8, len(v))
	for i, c := range v {
		q := c / scale
		if q > 127 {
			q = 127
		}
		if q < -128 {
			q = -128
		}
		out[i] = int8(q)
	}
	return out, scale
}
