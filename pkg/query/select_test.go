package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velesdb/veles/pkg/veles"
)

func TestExecuteSelectBasicFilterAndOrder(t *testing.T) {
	db, _ := newTestDB(t)
	res, err := Query(context.Background(), db, "SELECT id, score FROM docs WHERE score > 5 ORDER BY score DESC", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "score"}, res.Columns)
	require.Len(t, res.Rows, 3)
	assert.Equal(t, int64(30), res.Rows[0][1])
	assert.Equal(t, int64(20), res.Rows[1][1])
	assert.Equal(t, int64(10), res.Rows[2][1])
}

func TestExecuteSelectStarProjectsAllColumns(t *testing.T) {
	db, _ := newTestDB(t)
	res, err := Query(context.Background(), db, "SELECT * FROM docs WHERE kind = 'alpha'", nil)
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	assert.ElementsMatch(t, []string{"id", "score", "kind"}, res.Columns)
}

func TestExecuteSelectGroupByHavingAggregate(t *testing.T) {
	db, _ := newTestDB(t)
	res, err := Query(context.Background(), db, "SELECT kind, COUNT(*) FROM docs GROUP BY kind HAVING COUNT(*) > 1", nil)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "alpha", res.Rows[0][0])
	assert.Equal(t, int64(2), res.Rows[0][1])
}

func TestExecuteSelectAggregateSumAvg(t *testing.T) {
	db, _ := newTestDB(t)
	res, err := Query(context.Background(), db, "SELECT SUM(score), AVG(score) FROM docs", nil)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, int64(65), res.Rows[0][0])
	assert.InDelta(t, 16.25, res.Rows[0][1].(float64), 1e-9)
}

func TestExecuteSelectNearVectorSearch(t *testing.T) {
	db, _ := newTestDB(t)
	res, err := Query(context.Background(), db, "SELECT id FROM docs WHERE embedding NEAR $q LIMIT 2", map[string]any{
		"q": []float32{1, 0},
	})
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, int64(1), res.Rows[0][0])
}

func TestExecuteSelectNearFusedCombinesLegs(t *testing.T) {
	db, _ := newTestDB(t)
	res, err := Query(context.Background(), db, "SELECT id FROM docs WHERE embedding NEAR_FUSED [$a, $b] USING FUSION 'rrf'(k=60) LIMIT 4", map[string]any{
		"a": []float32{1, 0},
		"b": []float32{0, 1},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Rows)
}

func TestExecuteSelectMatchTextPredicate(t *testing.T) {
	db, _ := newTestDB(t)
	res, err := Query(context.Background(), db, "SELECT id FROM docs WHERE body MATCH 'quick fox'", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Rows)
}

func TestExecuteSelectSimilarityPredicate(t *testing.T) {
	db, _ := newTestDB(t)
	res, err := Query(context.Background(), db, "SELECT id FROM docs WHERE similarity(embedding, $q) > 0.99", map[string]any{
		"q": []float32{1, 0},
	})
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, int64(1), res.Rows[0][0])
}

func TestExecuteSelectUnknownCollection(t *testing.T) {
	db, _ := newTestDB(t)
	_, err := Query(context.Background(), db, "SELECT id FROM ghosts", nil)
	require.Error(t, err)
	kind, ok := veles.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, veles.KindCollectionNotFound, kind)
}

func TestExecuteSelectInnerJoin(t *testing.T) {
	db, col := newTestDB(t)
	tags, err := db.CreateCollection("tags", veles.CollectionConfig{Dimension: 2, Metric: veles.MetricCosine, HNSW: veles.DefaultHNSWParams()})
	require.NoError(t, err)
	must(t, tags.Columns.Set(1, "doc_id", veles.Int64Value(1)))
	must(t, tags.Columns.Set(1, "tag", veles.StringValue("science")))
	must(t, tags.Columns.Set(2, "doc_id", veles.Int64Value(3)))
	must(t, tags.Columns.Set(2, "tag", veles.StringValue("news")))
	_ = col

	res, err := Query(context.Background(), db, "SELECT d.id, t.tag FROM docs d INNER JOIN tags t ON d.id = t.doc_id", nil)
	require.NoError(t, err)
	assert.Len(t, res.Rows, 2)
}

func TestExecuteSelectLeftJoinKeepsUnmatched(t *testing.T) {
	db, _ := newTestDB(t)
	tags, err := db.CreateCollection("tags", veles.CollectionConfig{Dimension: 2, Metric: veles.MetricCosine, HNSW: veles.DefaultHNSWParams()})
	require.NoError(t, err)
	must(t, tags.Columns.Set(1, "doc_id", veles.Int64Value(1)))
	must(t, tags.Columns.Set(1, "tag", veles.StringValue("science")))

	res, err := Query(context.Background(), db, "SELECT d.id, t.tag FROM docs d LEFT JOIN tags t ON d.id = t.doc_id", nil)
	require.NoError(t, err)
	assert.Len(t, res.Rows, 4)
}

func TestExecuteSelectRightJoinUnsupported(t *testing.T) {
	db, _ := newTestDB(t)
	_, err := db.CreateCollection("tags", veles.CollectionConfig{Dimension: 2, Metric: veles.MetricCosine, HNSW: veles.DefaultHNSWParams()})
	require.NoError(t, err)

	_, err = Query(context.Background(), db, "SELECT d.id FROM docs d RIGHT JOIN tags t ON d.id = t.doc_id", nil)
	require.Error(t, err)
	kind, ok := veles.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, veles.KindUnsupportedFeature, kind)
}

func TestExecuteSelectNonCorrelatedSubquery(t *testing.T) {
	db, _ := newTestDB(t)
	res, err := Query(context.Background(), db, "SELECT id FROM docs WHERE score > (SELECT AVG(score) FROM docs)", nil)
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
}

func TestExecuteSetOpsUnionAllAndIntersect(t *testing.T) {
	db, _ := newTestDB(t)
	res, err := Query(context.Background(), db, "SELECT id FROM docs WHERE kind = 'alpha' UNION ALL SELECT id FROM docs WHERE kind = 'alpha'", nil)
	require.NoError(t, err)
	assert.Len(t, res.Rows, 4)

	res, err = Query(context.Background(), db, "SELECT id FROM docs WHERE score > 5 INTERSECT SELECT id FROM docs WHERE kind = 'alpha'", nil)
	require.NoError(t, err)
	assert.Len(t, res.Rows, 2)
}
