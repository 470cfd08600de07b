package fusion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velesdb/veles/pkg/veles"
)

// TestRRFMatchesWorkedExample reproduces the spec's NEAR_FUSED example:
// two query legs, five candidates A-E with per-leg ranks
// (A:1,_ ; B:2,3 ; C:_,1 ; D:_,2 ; E:3,_), RRF(k=60). B's score is
// documented as 1/(60+3)+1/(60+4).
func TestRRFMatchesWorkedExample(t *testing.T) {
	leg1 := []Item{{ID: 1, Score: 0}, {ID: 2, Score: 0}, {ID: 5, Score: 0}} // A, B, E
	leg2 := []Item{{ID: 3, Score: 0}, {ID: 4, Score: 0}, {ID: 2, Score: 0}} // C, D, B

	fused := Fuse(NewRRF(60), [][]Item{leg1, leg2})
	require.NotEmpty(t, fused)

	scores := make(map[uint64]float64)
	for _, item := range fused {
		scores[item.ID] = item.Score
	}
	expectedB := 1.0/(60.0+3.0) + 1.0/(60.0+4.0)
	assert.InDelta(t, expectedB, scores[2], 1e-9)

	// B has the highest combined score (present, and near the top, in
	// both legs), so it must rank first.
	assert.Equal(t, uint64(2), fused[0].ID)
}

func TestRRFRanksByPositionNotID(t *testing.T) {
	leg := []Item{{ID: 10, Score: 5}, {ID: 5, Score: 5}}
	fused := Fuse(NewRRF(60), [][]Item{leg})
	require.Len(t, fused, 2)
	// Both items occupy distinct ranks (0 and 1) in the same list, so
	// their RRF scores already differ; assert strict rank-order instead.
	assert.Equal(t, uint64(10), fused[0].ID)
}

func TestFuseTieBreaksOnAscendingIDWhenScoresEqual(t *testing.T) {
	leg1 := []Item{{ID: 7, Score: 1.0}}
	leg2 := []Item{{ID: 3, Score: 1.0}}
	fused := Fuse(NewMaximum(), [][]Item{leg1, leg2})
	require.Len(t, fused, 2)
	assert.Equal(t, uint64(3), fused[0].ID)
	assert.Equal(t, uint64(7), fused[1].ID)
}

func TestAverageFusionNormalizesPerList(t *testing.T) {
	leg1 := []Item{{ID: 1, Score: 10}, {ID: 2, Score: 0}}
	leg2 := []Item{{ID: 1, Score: 0}, {ID: 2, Score: 100}}

	fused := Fuse(NewAverage(), [][]Item{leg1, leg2})
	scores := make(map[uint64]float64)
	for _, item := range fused {
		scores[item.ID] = item.Score
	}
	// Each item is top-of-one-list, bottom-of-the-other once normalized,
	// so both should average out equal.
	assert.InDelta(t, scores[1], scores[2], 1e-9)
}

func TestMaximumFusionTakesBestNormalizedScore(t *testing.T) {
	leg1 := []Item{{ID: 1, Score: 0}, {ID: 2, Score: 10}}
	leg2 := []Item{{ID: 1, Score: 10}, {ID: 2, Score: 0}}

	fused := Fuse(NewMaximum(), [][]Item{leg1, leg2})
	scores := make(map[uint64]float64)
	for _, item := range fused {
		scores[item.ID] = item.Score
	}
	assert.InDelta(t, 1.0, scores[1], 1e-9)
	assert.InDelta(t, 1.0, scores[2], 1e-9)
}

func TestWeightedRewardsHitRatio(t *testing.T) {
	w, err := NewWeighted(0.3, 0.3, 0.4)
	require.NoError(t, err)

	leg1 := []Item{{ID: 1, Score: 1}, {ID: 2, Score: 1}}
	leg2 := []Item{{ID: 1, Score: 1}}

	fused := Fuse(w, [][]Item{leg1, leg2})
	scores := make(map[uint64]float64)
	for _, item := range fused {
		scores[item.ID] = item.Score
	}
	// Item 1 appears in both lists, item 2 only in one; hit ratio must
	// break the tie in item 1's favor even though raw scores match.
	assert.Greater(t, scores[1], scores[2])
}

func TestWeightedRejectsNonPositiveSum(t *testing.T) {
	_, err := NewWeighted(-1, 0.5, 0.5)
	require.Error(t, err)
	kind, _ := veles.KindOf(err)
	assert.Equal(t, veles.KindInvalidValue, kind)
}

func TestWeightedRejectsEqualWeights(t *testing.T) {
	_, err := NewWeighted(0.5, 0.5, 0.5)
	require.Error(t, err)
	kind, _ := veles.KindOf(err)
	assert.Equal(t, veles.KindInvalidValue, kind)
}

func TestWeightedRejectsNonFiniteSum(t *testing.T) {
	inf := 1.0
	inf = inf / 0.0
	_, err := NewWeighted(inf, 0.2, 0.3)
	require.Error(t, err)
}

func TestFuseHandlesEmptyLists(t *testing.T) {
	fused := Fuse(NewRRF(60), [][]Item{{}, {}})
	assert.Empty(t, fused)
}
