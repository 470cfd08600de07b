package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velesdb/veles/pkg/veles"
	"github.com/velesdb/veles/pkg/velesql"
)

func newGraphCollection(t *testing.T) (*Database, *Collection) {
	t.Helper()
	db := NewDatabase()
	col, err := db.CreateCollection("people", veles.CollectionConfig{
		Dimension: 2,
		Metric:    veles.MetricCosine,
		HNSW:      veles.DefaultHNSWParams(),
	})
	require.NoError(t, err)
	seedGraph(t, col.Graph)
	return db, col
}

func TestExecuteMatchSimplePattern(t *testing.T) {
	db, col := newGraphCollection(t)
	res, err := QueryMatch(context.Background(), db, col, "MATCH (a:Person {name: 'Alice'}) RETURN a.name", nil)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "Alice", res.Rows[0][0])
}

func TestExecuteMatchOneHop(t *testing.T) {
	db, col := newGraphCollection(t)
	res, err := QueryMatch(context.Background(), db, col, "MATCH (a:Person)-[:KNOWS]->(b:Person) RETURN a.name, b.name ORDER BY a.name", nil)
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, []any{"Alice", "Bob"}, res.Rows[0])
	assert.Equal(t, []any{"Bob", "Carol"}, res.Rows[1])
}

func TestExecuteMatchVariableHops(t *testing.T) {
	db, col := newGraphCollection(t)
	res, err := QueryMatch(context.Background(), db, col, "MATCH (a:Person)-[:KNOWS*1..2]->(b:Person) RETURN a.name, b.name", nil)
	require.NoError(t, err)
	// Alice->Bob, Alice->(Bob)->Carol, Bob->Carol: three reachable pairs.
	require.Len(t, res.Rows, 3)
	pairs := map[[2]string]bool{}
	for _, row := range res.Rows {
		pairs[[2]string{row[0].(string), row[1].(string)}] = true
	}
	assert.True(t, pairs[[2]string{"Alice", "Bob"}])
	assert.True(t, pairs[[2]string{"Alice", "Carol"}])
	assert.True(t, pairs[[2]string{"Bob", "Carol"}])
}

func TestExecuteMatchIncomingEdge(t *testing.T) {
	db, col := newGraphCollection(t)
	res, err := QueryMatch(context.Background(), db, col, "MATCH (a)<-[:KNOWS]-(b) RETURN a, b", nil)
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	row, ok := res.Rows[0][0].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, row, "name")
}

func TestExecuteMatchWithBindingAwareWhere(t *testing.T) {
	db, col := newGraphCollection(t)
	res, err := QueryMatch(context.Background(), db, col, "MATCH (a:Person)-[:KNOWS]->(b:Person) WHERE b.age > 30 RETURN a.name, b.name", nil)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "Bob", res.Rows[0][0])
	assert.Equal(t, "Carol", res.Rows[0][1])
}

func TestExecuteMatchNoMatches(t *testing.T) {
	db, col := newGraphCollection(t)
	res, err := QueryMatch(context.Background(), db, col, "MATCH (a:Person {name: 'Nobody'}) RETURN a", nil)
	require.NoError(t, err)
	assert.Empty(t, res.Rows)
}

func TestExecuteMatchViaExecuteIsUnsupported(t *testing.T) {
	db, _ := newGraphCollection(t)
	stmt, err := velesql.Parse("MATCH (a:Person) RETURN a")
	require.NoError(t, err)
	_, err = Execute(context.Background(), db, stmt, nil)
	require.Error(t, err)
	kind, ok := veles.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, veles.KindUnsupportedFeature, kind)
}

func TestExecuteMatchQueryRequiresMatchStatement(t *testing.T) {
	db, col := newGraphCollection(t)
	_, err := QueryMatch(context.Background(), db, col, "SELECT id FROM people", nil)
	require.Error(t, err)
}
