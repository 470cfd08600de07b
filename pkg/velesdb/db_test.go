package velesdb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velesdb/veles/pkg/config"
	"github.com/velesdb/veles/pkg/graph"
	"github.com/velesdb/veles/pkg/veles"
)

func testConfig(t *testing.T, dataDir string) *config.Config {
	t.Helper()
	cfg := config.LoadFromEnv()
	cfg.Database.DataDir = dataDir
	return cfg
}

func TestOpen(t *testing.T) {
	t.Run("in-memory when data dir is empty", func(t *testing.T) {
		db, err := Open(testConfig(t, ""))
		require.NoError(t, err)
		require.NotNil(t, db)
		defer db.Close()
		assert.Empty(t, db.ListCollections())
	})

	t.Run("creates data dir on disk", func(t *testing.T) {
		dir := t.TempDir()
		db, err := Open(testConfig(t, dir))
		require.NoError(t, err)
		defer db.Close()
		assert.NotNil(t, db)
	})

	t.Run("nil config loads env defaults", func(t *testing.T) {
		db, err := Open(nil)
		require.NoError(t, err)
		defer db.Close()
	})
}

func TestDatabaseCreateDeleteCollection(t *testing.T) {
	db, err := Open(testConfig(t, ""))
	require.NoError(t, err)
	defer db.Close()

	cfg := veles.CollectionConfig{Dimension: 4, Metric: veles.MetricCosine}
	col, err := db.CreateCollection("docs", cfg)
	require.NoError(t, err)
	require.NotNil(t, col)
	assert.Equal(t, "docs", col.Name())
	assert.Contains(t, db.ListCollections(), "docs")

	_, err = db.CreateCollection("docs", cfg)
	assert.Error(t, err, "re-creating an existing collection should fail")

	require.NoError(t, db.DeleteCollection("docs"))
	assert.NotContains(t, db.ListCollections(), "docs")

	err = db.DeleteCollection("docs")
	assert.Error(t, err, "deleting an unknown collection should fail")
}

func TestCollectionUpsertGetDelete(t *testing.T) {
	db, err := Open(testConfig(t, ""))
	require.NoError(t, err)
	defer db.Close()

	col, err := db.CreateCollection("points", veles.CollectionConfig{Dimension: 3, Metric: veles.MetricCosine})
	require.NoError(t, err)

	ctx := context.Background()
	p := &veles.Point{
		Vector:  []float32{1, 0, 0},
		Payload: map[string]any{"text": "hello world", "category": "greeting"},
	}
	require.NoError(t, col.Upsert(ctx, []*veles.Point{p}))
	require.NotZero(t, p.ID, "Upsert should assign an id when none is given")

	got, ok := col.Get(p.ID)
	require.True(t, ok)
	assert.Equal(t, p.Vector, got.Vector)
	assert.Equal(t, "greeting", got.Payload["category"])

	require.NoError(t, col.Delete(p.ID))
	_, ok = col.Get(p.ID)
	assert.False(t, ok)
}

func TestCollectionUpsertRejectsDimensionMismatch(t *testing.T) {
	db, err := Open(testConfig(t, ""))
	require.NoError(t, err)
	defer db.Close()

	col, err := db.CreateCollection("points", veles.CollectionConfig{Dimension: 3, Metric: veles.MetricCosine})
	require.NoError(t, err)

	err = col.Upsert(context.Background(), []*veles.Point{{Vector: []float32{1, 2}}})
	require.Error(t, err)
	kind, ok := veles.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, veles.KindDimensionMismatch, kind)
}

func TestCollectionSearchAndTextSearch(t *testing.T) {
	db, err := Open(testConfig(t, ""))
	require.NoError(t, err)
	defer db.Close()

	col, err := db.CreateCollection("points", veles.CollectionConfig{Dimension: 2, Metric: veles.MetricCosine})
	require.NoError(t, err)

	ctx := context.Background()
	pts := []*veles.Point{
		{Vector: []float32{1, 0}, Payload: map[string]any{"text": "red apple"}},
		{Vector: []float32{0, 1}, Payload: map[string]any{"text": "blue sky"}},
	}
	require.NoError(t, col.Upsert(ctx, pts))

	results, err := col.Search(ctx, []float32{1, 0}, veles.SearchOptions{K: 2})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, pts[0].ID, results[0].ID)

	textHits := col.TextSearch("apple", 5)
	require.NotEmpty(t, textHits)
	assert.Equal(t, pts[0].ID, textHits[0].ID)

	hybrid, err := col.HybridSearch(ctx, []float32{1, 0}, "apple", veles.SearchOptions{K: 2})
	require.NoError(t, err)
	assert.NotEmpty(t, hybrid)
}

func TestCollectionPropertyIndex(t *testing.T) {
	db, err := Open(testConfig(t, ""))
	require.NoError(t, err)
	defer db.Close()

	col, err := db.CreateCollection("points", veles.CollectionConfig{Dimension: 1, Metric: veles.MetricCosine})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, col.Upsert(ctx, []*veles.Point{
		{Vector: []float32{0}, Payload: map[string]any{"status": "active"}},
		{Vector: []float32{0}, Payload: map[string]any{"status": "archived"}},
	}))

	require.NoError(t, col.CreatePropertyIndex("status"))
	assert.Contains(t, col.ListIndexes(), "status")

	col.DropIndex("status")
	assert.NotContains(t, col.ListIndexes(), "status")
}

func TestCollectionIsEmpty(t *testing.T) {
	db, err := Open(testConfig(t, ""))
	require.NoError(t, err)
	defer db.Close()

	col, err := db.CreateCollection("points", veles.CollectionConfig{Dimension: 1, Metric: veles.MetricCosine})
	require.NoError(t, err)
	assert.True(t, col.IsEmpty())

	require.NoError(t, col.Upsert(context.Background(), []*veles.Point{{Vector: []float32{1}}}))
	assert.False(t, col.IsEmpty())
}

func TestCollectionFlushIsNoOpInMemory(t *testing.T) {
	db, err := Open(testConfig(t, ""))
	require.NoError(t, err)
	defer db.Close()

	col, err := db.CreateCollection("points", veles.CollectionConfig{Dimension: 1, Metric: veles.MetricCosine})
	require.NoError(t, err)
	assert.NoError(t, col.Flush())
}

func TestDurableCollectionSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	db1, err := Open(testConfig(t, dir))
	require.NoError(t, err)
	col1, err := db1.CreateCollection("points", veles.CollectionConfig{Dimension: 2, Metric: veles.MetricCosine})
	require.NoError(t, err)

	p := &veles.Point{Vector: []float32{1, 1}}
	require.NoError(t, col1.Upsert(context.Background(), []*veles.Point{p}))
	require.NoError(t, col1.Flush())
	require.NoError(t, db1.Close())

	db2, err := Open(testConfig(t, dir))
	require.NoError(t, err)
	defer db2.Close()
	col2, err := db2.CreateCollection("points", veles.CollectionConfig{Dimension: 2, Metric: veles.MetricCosine})
	require.NoError(t, err)

	_, ok := col2.Get(p.ID)
	assert.True(t, ok, "a point flushed before Close should survive reopen")
}

func TestDurableCollectionGraphAndColumnsSurviveReopen(t *testing.T) {
	dir := t.TempDir()

	db1, err := Open(testConfig(t, dir))
	require.NoError(t, err)
	col1, err := db1.CreateCollection("people", veles.CollectionConfig{Dimension: 1, Metric: veles.MetricCosine})
	require.NoError(t, err)

	col1.qc.Graph.UpsertNode(&graph.Node{ID: 1, Label: "Person", Properties: map[string]veles.PropertyValue{
		"name": veles.StringValue("alice"),
	}})
	col1.qc.Graph.UpsertNode(&graph.Node{ID: 2, Label: "Person", Properties: map[string]veles.PropertyValue{
		"name": veles.StringValue("bob"),
	}})
	require.NoError(t, col1.AddEdge(&graph.Edge{ID: 1, Source: 1, Target: 2, Label: "KNOWS"}))

	p := &veles.Point{ID: 42, Vector: []float32{1}, Payload: map[string]any{"status": "active"}}
	require.NoError(t, col1.Upsert(context.Background(), []*veles.Point{p}))

	require.NoError(t, col1.Flush())
	require.NoError(t, db1.Close())

	db2, err := Open(testConfig(t, dir))
	require.NoError(t, err)
	defer db2.Close()
	col2, err := db2.CreateCollection("people", veles.CollectionConfig{Dimension: 1, Metric: veles.MetricCosine})
	require.NoError(t, err)

	results := col2.Traverse(graph.TraversalOptions{Source: 1, MaxDepth: 5, Direction: graph.Outgoing})
	require.Len(t, results, 1)
	assert.Equal(t, uint64(2), results[0].NodeID)

	status, ok := col2.qc.Columns.Get(p.ID, "status")
	require.True(t, ok, "column store row flushed before Close should survive reopen")
	assert.Equal(t, "active", status.Str)

	got, ok := col2.Get(p.ID)
	require.True(t, ok, "vector point flushed before Close should survive reopen")
	assert.Equal(t, p.Vector, got.Vector)
}
