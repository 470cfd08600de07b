package query

import (
	"testing"

	"github.com/velesdb/veles/pkg/graph"
	"github.com/velesdb/veles/pkg/veles"
)

func newTestDB(t *testing.T) (*Database, *Collection) {
	t.Helper()
	db := NewDatabase()
	col, err := db.CreateCollection("docs", veles.CollectionConfig{
		Dimension: 2,
		Metric:    veles.MetricCosine,
		HNSW:      veles.DefaultHNSWParams(),
	})
	if err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	seedRows(t, col)
	return db, col
}

func seedRows(t *testing.T, col *Collection) {
	t.Helper()
	rows := []struct {
		id    uint64
		score int64
		kind  string
		vec   []float32
		text  string
	}{
		{1, 10, "alpha", []float32{1, 0}, "the quick brown fox"},
		{2, 20, "beta", []float32{0, 1}, "lazy dog sleeps"},
		{3, 30, "alpha", []float32{0.5, 0.5}, "quick fox jumps"},
		{4, 5, "gamma", []float32{-1, 0}, "nothing related here"},
	}
	for _, r := range rows {
		must(t, col.Columns.Set(r.id, "id", veles.Int64Value(int64(r.id))))
		must(t, col.Columns.Set(r.id, "score", veles.Int64Value(r.score)))
		must(t, col.Columns.Set(r.id, "kind", veles.StringValue(r.kind)))
		must(t, col.Vectors.Insert(r.id, r.vec, nil, 0))
		col.Text.IndexDocument(r.id, r.text)
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func seedGraph(t *testing.T, g *graph.Store) {
	t.Helper()
	people := []struct {
		id   uint64
		name string
		age  int64
	}{
		{1, "Alice", 30}, {2, "Bob", 25}, {3, "Carol", 40},
	}
	for _, p := range people {
		must(t, g.CreateNode(&graph.Node{ID: p.id, Label: "Person", Properties: map[string]veles.PropertyValue{
			"name": veles.StringValue(p.name),
			"age":  veles.Int64Value(p.age),
		}}))
	}
	must(t, g.AddEdge(&graph.Edge{ID: 100, Source: 1, Target: 2, Label: "KNOWS"}))
	must(t, g.AddEdge(&graph.Edge{ID: 101, Source: 2, Target: 3, Label: "KNOWS"}))
}
