package hnsw

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velesdb/veles/pkg/veles"
)

func TestInsertAndSearchFindsExactMatch(t *testing.T) {
	idx := New(4, veles.MetricCosine, veles.DefaultHNSWParams())

	require.NoError(t, idx.Insert(1, []float32{1, 0, 0, 0}, nil, 0))
	require.NoError(t, idx.Insert(2, []float32{0.9, 0.1, 0, 0}, nil, 0))
	require.NoError(t, idx.Insert(3, []float32{0, 1, 0, 0}, nil, 0))

	assert.Equal(t, 3, idx.Len())

	results, err := idx.Search(context.Background(), []float32{1, 0, 0, 0}, 2, 50)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, uint64(1), results[0].ID)
	assert.InDelta(t, 1.0, results[0].Score, 0.01)
}

func TestInsertRejectsDimensionMismatch(t *testing.T) {
	idx := New(4, veles.MetricCosine, veles.DefaultHNSWParams())

	err := idx.Insert(1, []float32{1, 2, 3}, nil, 0)
	require.Error(t, err)
	kind, _ := veles.KindOf(err)
	assert.Equal(t, veles.KindDimensionMismatch, kind)
}

func TestInsertRejectsNonFiniteVector(t *testing.T) {
	idx := New(3, veles.MetricCosine, veles.DefaultHNSWParams())

	nan := float32(0)
	nan = nan / nan
	err := idx.Insert(1, []float32{1, nan, 0}, nil, 0)
	require.Error(t, err)
	kind, _ := veles.KindOf(err)
	assert.Equal(t, veles.KindNonFiniteVector, kind)
}

func TestSearchOnEmptyIndexReturnsEmptyNotError(t *testing.T) {
	idx := New(3, veles.MetricCosine, veles.DefaultHNSWParams())
	results, err := idx.Search(context.Background(), []float32{1, 0, 0}, 5, 50)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchRejectsQueryDimensionMismatch(t *testing.T) {
	idx := New(3, veles.MetricCosine, veles.DefaultHNSWParams())
	require.NoError(t, idx.Insert(1, []float32{1, 0, 0}, nil, 0))

	_, err := idx.Search(context.Background(), []float32{1, 0}, 5, 50)
	require.Error(t, err)
}

func TestRemoveDetachesFromNeighborLists(t *testing.T) {
	idx := New(4, veles.MetricCosine, veles.DefaultHNSWParams())
	for i, v := range [][]float32{
		{1, 0, 0, 0},
		{0.9, 0.1, 0, 0},
		{0, 1, 0, 0},
		{0, 0.9, 0.1, 0},
	} {
		require.NoError(t, idx.Insert(uint64(i+1), v, nil, 0))
	}

	idx.Remove(2)
	assert.Equal(t, 3, idx.Len())

	results, err := idx.Search(context.Background(), []float32{1, 0, 0, 0}, 10, 50)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, uint64(2), r.ID)
	}
}

func TestRemoveEntryPointPicksNewOne(t *testing.T) {
	idx := New(2, veles.MetricCosine, veles.DefaultHNSWParams())
	require.NoError(t, idx.Insert(1, []float32{1, 0}, nil, 0))
	require.NoError(t, idx.Insert(2, []float32{0, 1}, nil, 0))

	idx.Remove(1)
	require.NoError(t, idx.Insert(3, []float32{1, 1}, nil, 0))

	results, err := idx.Search(context.Background(), []float32{0, 1}, 2, 50)
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}

func TestDualPrecisionSearchRanksByF32AfterInt8Prefilter(t *testing.T) {
	idx := New(4, veles.MetricDotProduct, veles.DefaultHNSWParams())

	insertQuantized := func(id uint64, v []float32) {
		q, scale := quantizeApprox(v)
		require.NoError(t, idx.Insert(id, v, q, scale))
	}
	insertQuantized(1, []float32{1, 0, 0, 0})
	insertQuantized(2, []float32{0, 1, 0, 0})
	insertQuantized(3, []float32{0.95, 0.05, 0, 0})

	results, err := idx.Search(context.Background(), []float32{1, 0, 0, 0}, 2, 50)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, uint64(1), results[0].ID)
}

func TestLockRankPanicsOnOutOfOrderAcquire(t *testing.T) {
	r := newLockRank(true)
	r.acquire(5)
	assert.Panics(t, func() { r.acquire(3) })
}

func TestLockRankNoopWhenDisabled(t *testing.T) {
	r := newLockRank(false)
	r.acquire(5)
	assert.NotPanics(t, func() { r.acquire(1) })
}

func TestSearchRespectsContextCancellation(t *testing.T) {
	idx := New(2, veles.MetricCosine, veles.DefaultHNSWParams())
	require.NoError(t, idx.Insert(1, []float32{1, 0}, nil, 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := idx.Search(ctx, []float32{1, 0}, 1, 50)
	require.Error(t, err)
}

func TestSearchAfterManyInsertsReturnsK(t *testing.T) {
	idx := New(2, veles.MetricCosine, veles.DefaultHNSWParams())
	for i := 1; i <= 20; i++ {
		require.NoError(t, idx.Insert(uint64(i), []float32{float32(i), 1}, nil, 0))
	}
	assert.Equal(t, 20, idx.Len())

	results, err := idx.Search(context.Background(), []float32{10, 1}, 5, 100)
	require.NoError(t, err)
	assert.Len(t, results, 5)
}
