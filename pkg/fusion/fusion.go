// Package fusion implements VelesDB's component G: combining several
// ranked candidate lists (one per query leg of a NEAR_FUSED search, or
// vector + BM25 legs of a hybrid search) into a single ranking, per §4.G.
// It generalizes the teacher's single-purpose rerankers
// (pkg/core/reranker.go's ReciprocalRankFusionReranker and
// ScoreNormalizationReranker) into a `Strategy` sum type covering all four
// named fusion modes.
package fusion

import (
	"math"
	"sort"

	"github.com/velesdb/veles/pkg/veles"
)

// Item is one ranked hit in a single source list, keyed by the id that's
// shared across all lists being fused.
type Item struct {
	ID    uint64
	Score float64
}

// Strategy fuses multiple ranked lists into one. Lists are assumed to
// already be sorted best-first; Fuse does not re-sort its inputs.
type Strategy interface {
	fuse(lists [][]Item) []Item
}

// Fuse runs strategy over lists and returns a single list sorted
// best-first, ties broken by ascending id for determinism, per §4.G's
// NEAR_FUSED example ("Fused top-3 is {B, A, C} or {B, C, A} depending on
// tie-break (stable on id)").
func Fuse(strategy Strategy, lists [][]Item) []Item {
	fused := strategy.fuse(lists)
	sort.SliceStable(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		return fused[i].ID < fused[j].ID
	})
	return fused
}

// RRF is Reciprocal Rank Fusion: score = sum(1/(k+rank+1)) over every list
// containing the item, using each list's positional rank rather than its
// raw score, per §4.G "RRF(k)".
type RRF struct {
	K float64
}

// NewRRF builds an RRF strategy with the given k constant (60 is the
// conventional default, per the teacher's NewReciprocalRankFusionReranker).
func NewRRF(k float64) *RRF { return &RRF{K: k} }

func (r *RRF) fuse(lists [][]Item) []Item {
	scores := make(map[uint64]float64)
	for _, list := range lists {
		for ix, item := range list {
			// §4.G's "rank_i" is the item's 1-indexed position (first
			// place = 1), so a 0-indexed slice position needs +1 before
			// the formula's own +1: k + (ix+1) + 1.
			rank := float64(ix + 1)
			scores[item.ID] += 1.0 / (r.K + rank + 1.0)
		}
	}
	return toItems(scores)
}

// Average fuses by the mean of each list's min-max normalized score,
// averaged only over the lists the item actually appears in, per §4.G
// "mean of normalized scores (min-max per list)".
type Average struct{}

// NewAverage builds an Average fusion strategy.
func NewAverage() *Average { return &Average{} }

func (a *Average) fuse(lists [][]Item) []Item {
	normalized := normalizeLists(lists)
	sums := make(map[uint64]float64)
	counts := make(map[uint64]int)
	for _, list := range normalized {
		for _, item := range list {
			sums[item.ID] += item.Score
			counts[item.ID]++
		}
	}
	scores := make(map[uint64]float64, len(sums))
	for id, sum := range sums {
		scores[id] = sum / float64(counts[id])
	}
	return toItems(scores)
}

// Maximum fuses by the highest min-max normalized score across the lists
// the item appears in, per §4.G "max of normalized scores".
type Maximum struct{}

// NewMaximum builds a Maximum fusion strategy.
func NewMaximum() *Maximum { return &Maximum{} }

func (m *Maximum) fuse(lists [][]Item) []Item {
	normalized := normalizeLists(lists)
	scores := make(map[uint64]float64)
	seen := make(map[uint64]bool)
	for _, list := range normalized {
		for _, item := range list {
			if !seen[item.ID] || item.Score > scores[item.ID] {
				scores[item.ID] = item.Score
				seen[item.ID] = true
			}
		}
	}
	return toItems(scores)
}

// Weighted combines a per-item mean, max, and hit ratio (the fraction of
// lists containing the item) under three weights, per §4.G
// "Weighted(avg_w, max_w, hit_w): avg_w*mean + max_w*max + hit_w*hit_ratio".
type Weighted struct {
	AvgW, MaxW, HitW float64
}

// NewWeighted validates and builds a Weighted fusion strategy. Per §4.G
// "weights must sum finite-positive and differ to avoid collapsing to
// Average", both conditions are enforced at construction so a bad
// configuration surfaces immediately rather than silently degrading.
func NewWeighted(avgW, maxW, hitW float64) (*Weighted, error) {
	sum := avgW + maxW + hitW
	if math.IsNaN(sum) || math.IsInf(sum, 0) || sum <= 0 {
		return nil, veles.New(veles.KindInvalidValue, "fusion: weighted weights must sum to a finite, positive value")
	}
	if avgW == maxW && maxW == hitW {
		return nil, veles.New(veles.KindInvalidValue, "fusion: weighted weights must differ, or use Average instead")
	}
	return &Weighted{AvgW: avgW, MaxW: maxW, HitW: hitW}, nil
}

func (w *Weighted) fuse(lists [][]Item) []Item {
	normalized := normalizeLists(lists)
	sums := make(map[uint64]float64)
	maxes := make(map[uint64]float64)
	counts := make(map[uint64]int)
	seen := make(map[uint64]bool)
	for _, list := range normalized {
		for _, item := range list {
			sums[item.ID] += item.Score
			counts[item.ID]++
			if !seen[item.ID] || item.Score > maxes[item.ID] {
				maxes[item.ID] = item.Score
				seen[item.ID] = true
			}
		}
	}
	n := float64(len(lists))
	scores := make(map[uint64]float64, len(sums))
	for id, sum := range sums {
		mean := sum / float64(counts[id])
		hitRatio := float64(counts[id]) / n
		scores[id] = w.AvgW*mean + w.MaxW*maxes[id] + w.HitW*hitRatio
	}
	return toItems(scores)
}

// normalizeLists min-max normalizes each list's scores independently to
// [0, 1], matching the teacher's ScoreNormalizationReranker. A list whose
// scores are all equal normalizes to 0 throughout (the teacher's
// div-by-zero guard produces the same degenerate-but-safe result), which
// is harmless since every item in that list is then equally ranked by it.
func normalizeLists(lists [][]Item) [][]Item {
	out := make([][]Item, len(lists))
	for i, list := range lists {
		if len(list) == 0 {
			out[i] = list
			continue
		}
		min, max := list[0].Score, list[0].Score
		for _, item := range list {
			if item.Score < min {
				min = item.Score
			}
			if item.Score > max {
				max = item.Score
			}
		}
		rangeVal := max - min
		if rangeVal == 0 {
			rangeVal = 1
		}
		normalized := make([]Item, len(list))
		for j, item := range list {
			normalized[j] = Item{ID: item.ID, Score: (item.Score - min) / rangeVal}
		}
		out[i] = normalized
	}
	return out
}

func toItems(scores map[uint64]float64) []Item {
	out := make([]Item, 0, len(scores))
	for id, score := range scores {
		out = append(out, Item{ID: id, Score: score})
	}
	return out
}
