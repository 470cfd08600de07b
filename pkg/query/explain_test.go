package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velesdb/veles/pkg/veles"
	"github.com/velesdb/veles/pkg/velesql"
)

func TestExplainFilterOrderLimit(t *testing.T) {
	db, _ := newTestDB(t)
	res, err := ExplainQuery(db, "SELECT id FROM docs WHERE score > 5 ORDER BY score DESC LIMIT 2")
	require.NoError(t, err)
	assert.True(t, res.Features.HasFilter)
	assert.True(t, res.Features.HasOrderBy)
	require.NotNil(t, res.Features.Limit)
	assert.Equal(t, int64(2), *res.Features.Limit)

	assert.Equal(t, "Limit", res.Plan.Operator)
	assert.Equal(t, "Sort", res.Plan.Children[0].Operator)
	assert.Equal(t, "Filter", res.Plan.Children[0].Children[0].Operator)
	assert.Equal(t, "Scan", res.Plan.Children[0].Children[0].Children[0].Operator)
}

func TestExplainVectorSearchUsesIndex(t *testing.T) {
	db, _ := newTestDB(t)
	res, err := ExplainQuery(db, "SELECT id FROM docs WHERE embedding NEAR $q")
	require.NoError(t, err)
	assert.True(t, res.Features.HasVectorSearch)
	assert.False(t, res.Features.HasFusion)
	assert.Equal(t, "VectorSearch", res.Plan.Operator)
	assert.True(t, res.Plan.Cost.UsesIndex)
	assert.Equal(t, VectorFirst, res.Strategy)
}

func TestExplainFusedSearchMarksFusion(t *testing.T) {
	db, _ := newTestDB(t)
	res, err := ExplainQuery(db, "SELECT id FROM docs WHERE embedding NEAR_FUSED [$a, $b] USING FUSION 'rrf'(k=60)")
	require.NoError(t, err)
	assert.True(t, res.Features.HasVectorSearch)
	assert.True(t, res.Features.HasFusion)
	assert.Equal(t, "VectorSearchFused", res.Plan.Operator)
}

func TestExplainAggregationFeature(t *testing.T) {
	db, _ := newTestDB(t)
	res, err := ExplainQuery(db, "SELECT COUNT(*) FROM docs")
	require.NoError(t, err)
	assert.True(t, res.Features.HasAggregation)
}

func TestExplainJoinFeatureAndPlan(t *testing.T) {
	db, _ := newTestDB(t)
	_, err := db.CreateCollection("tags", veles.CollectionConfig{Dimension: 2, Metric: veles.MetricCosine, HNSW: veles.DefaultHNSWParams()})
	require.NoError(t, err)
	res, err := ExplainQuery(db, "SELECT d.id FROM docs d INNER JOIN tags t ON d.id = t.doc_id")
	require.NoError(t, err)
	assert.True(t, res.Features.HasJoin)
	assert.Equal(t, "Join:INNER", res.Plan.Operator)
}

func TestExplainMatchFeaturesAndPlan(t *testing.T) {
	db, _ := newGraphCollection(t)
	stmt, err := velesql.Parse("MATCH (a:Person) RETURN a")
	require.NoError(t, err)
	res, err := Explain(db, stmt)
	require.NoError(t, err)
	assert.True(t, res.Features.HasGraphMatch)
	assert.Equal(t, "Expand", res.Plan.Operator)
	assert.Equal(t, GraphFirst, res.Strategy)
}

func TestExplainUnknownCollectionErrors(t *testing.T) {
	db, _ := newTestDB(t)
	_, err := ExplainQuery(db, "SELECT id FROM ghosts")
	require.Error(t, err)
	kind, ok := veles.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, veles.KindCollectionNotFound, kind)
}
