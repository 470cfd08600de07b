package fusion

import "math"

// VectorLookup resolves an item id to its vector, for Diversify's
// similarity-to-already-selected computation. Callers typically pass
// (*hnsw.Index).Vector.
type VectorLookup func(id uint64) ([]float32, bool)

// SimilarityFunc scores how similar two vectors are; callers typically
// pass pkg/simd's CosineSimilarity.
type SimilarityFunc func(a, b []float32) float64

// Diversify re-ranks an already-fused, best-first list with Maximal
// Marginal Relevance, per §4.G's note that fusion "may optionally trade
// relevance for diversity on the final top-K"), adapted from the
// teacher's Service.applyMMR (pkg/search/search.go): each remaining
// candidate's score is λ*relevance − (1−λ)*maxSimilarityToSelected, and
// candidates are picked greedily highest-score-first until limit is
// reached. lambda==1 (or too few items to diversify) returns items
// unchanged, matching the teacher's own early-out.
func Diversify(items []Item, vectorOf VectorLookup, sim SimilarityFunc, lambda float64, limit int) []Item {
	if len(items) <= 1 || lambda >= 1.0 {
		return items
	}
	if limit <= 0 || limit > len(items) {
		limit = len(items)
	}

	vectors := make([][]float32, len(items))
	for i, it := range items {
		if v, ok := vectorOf(it.ID); ok {
			vectors[i] = v
		}
	}

	selected := make([]Item, 0, limit)
	selectedVecs := make([][]float32, 0, limit)
	remaining := append([]int(nil), indexRange(len(items))...)

	for len(selected) < limit && len(remaining) > 0 {
		bestPos, bestScore := -1, math.Inf(-1)
		for pos, idx := range remaining {
			maxSim := 0.0
			if vectors[idx] != nil {
				for _, sv := range selectedVecs {
					if sv == nil {
						continue
					}
					if s := sim(vectors[idx], sv); s > maxSim {
						maxSim = s
					}
				}
			}
			score := lambda*items[idx].Score - (1-lambda)*maxSim
			if score > bestScore {
				bestScore = score
				bestPos = pos
			}
		}
		idx := remaining[bestPos]
		selected = append(selected, items[idx])
		selectedVecs = append(selectedVecs, vectors[idx])
		remaining = append(remaining[:bestPos], remaining[bestPos+1:]...)
	}
	return selected
}

func indexRange(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
