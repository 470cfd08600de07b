package velesdb

import (
	"context"
	"time"

	"github.com/velesdb/veles/pkg/fusion"
	"github.com/velesdb/veles/pkg/graph"
	"github.com/velesdb/veles/pkg/hnsw"
	"github.com/velesdb/veles/pkg/query"
	"github.com/velesdb/veles/pkg/simd"
	"github.com/velesdb/veles/pkg/storage"
	"github.com/velesdb/veles/pkg/veles"
)

// Collection is the handle an embedding application uses for one
// collection's point/graph/text operations, per §6's Collection operation
// list: upsert, get, delete, search, search_batch, text_search,
// hybrid_search, multi_query_search, execute_query, match_query, explain,
// add_edge, get_edges, traverse, get_node_degree, create_property_index,
// list_indexes, drop_index, flush, is_empty.
type Collection struct {
	db      *Database
	name    string
	qc      *query.Collection
	engine  *storage.Engine    // nil when the owning Database is in-memory only
	persist *graph.Persistence // nil when the owning Database is in-memory only
}

// Name returns the collection's name.
func (c *Collection) Name() string { return c.name }

// Upsert inserts or replaces points. A point with ID == 0 is assigned a
// fresh id via generateRowID. Payload entries are mirrored into the
// column store (typed by Go value) so WHERE predicates and
// create_property_index can see them, and a "text" string payload entry
// is additionally indexed for text_search/hybrid_search.
func (c *Collection) Upsert(ctx context.Context, points []*veles.Point) error {
	for _, p := range points {
		if p.ID == 0 {
			p.ID = generateRowID()
		}
		if len(p.Vector) != c.qc.Config.Dimension {
			return veles.Newf(veles.KindDimensionMismatch,
				"point %d has %d dims, collection wants %d", p.ID, len(p.Vector), c.qc.Config.Dimension)
		}
		if err := checkFinite(p.Vector); err != nil {
			return err
		}

		if c.engine != nil {
			if err := c.engine.UpsertPoint(p); err != nil {
				return err
			}
		}
		if err := c.qc.Vectors.Insert(p.ID, p.Vector, p.Quantized, p.Scale); err != nil {
			return err
		}
		for k, v := range p.Payload {
			pv, ok := toPropertyValue(v)
			if !ok {
				continue
			}
			if err := c.qc.Columns.Set(p.ID, k, pv); err != nil {
				return err
			}
		}
		if text, ok := p.Payload["text"].(string); ok {
			c.qc.Text.IndexDocument(p.ID, text)
			c.qc.Trigram.Index(p.ID, text)
		}
	}
	return nil
}

func checkFinite(vec []float32) error {
	for _, v := range vec {
		if v != v || v > maxFinite || v < -maxFinite {
			return veles.New(veles.KindNonFiniteVector, "vector contains a non-finite component")
		}
	}
	return nil
}

const maxFinite = 3.4e38 // just under math.MaxFloat32, per §3's "reject NaN/Inf vectors"

// toPropertyValue converts a payload's dynamically-typed Go value into a
// column-store PropertyValue, the same widening a JSON-backed payload
// needs before it can live in a typed column.
func toPropertyValue(v any) (veles.PropertyValue, bool) {
	switch x := v.(type) {
	case int64:
		return veles.Int64Value(x), true
	case int:
		return veles.Int64Value(int64(x)), true
	case float64:
		return veles.Float64Value(x), true
	case bool:
		return veles.BoolValue(x), true
	case string:
		return veles.StringValue(x), true
	case time.Time:
		return veles.TimestampValue(x), true
	default:
		return veles.PropertyValue{}, false
	}
}

// Get returns a point by id.
func (c *Collection) Get(id uint64) (*veles.Point, bool) {
	if c.engine != nil {
		return c.engine.GetPoint(id)
	}
	vec, ok := c.qc.Vectors.Vector(id)
	if !ok {
		return nil, false
	}
	return &veles.Point{ID: id, Vector: vec, Payload: c.hydratePayload(id)}, true
}

func (c *Collection) hydratePayload(id uint64) map[string]any {
	out := make(map[string]any)
	for _, name := range c.qc.Columns.ColumnNames() {
		if v, ok := c.qc.Columns.Get(id, name); ok {
			out[name] = v.Any()
		}
	}
	return out
}

// Delete removes a point and any graph node/edges, column row, and
// full-text entries tied to the same id.
func (c *Collection) Delete(id uint64) error {
	if c.engine != nil {
		if err := c.engine.DeletePoint(id); err != nil {
			return err
		}
	}
	c.qc.Vectors.Remove(id)
	c.qc.Columns.Delete(id)
	c.qc.Text.Remove(id)
	c.qc.Trigram.Remove(id)
	c.qc.Graph.DeleteNode(id)
	return nil
}

// IsEmpty reports whether the collection holds no live points.
func (c *Collection) IsEmpty() bool { return c.qc.Vectors.Len() == 0 }

// Search runs a single k-NN vector search, per §6 Collection.search.
func (c *Collection) Search(ctx context.Context, vec []float32, opts veles.SearchOptions) ([]veles.SearchResult, error) {
	ef := opts.EfSearch
	if ef <= 0 {
		ef = veles.EfForMode(opts.Mode, c.qc.Vectors.Len())
	}
	hits, err := c.qc.Vectors.Search(ctx, vec, opts.K, ef)
	if err != nil {
		return nil, err
	}
	return c.toSearchResults(hits, opts.IncludeVectors), nil
}

func (c *Collection) toSearchResults(hits []hnsw.Result, includeVectors bool) []veles.SearchResult {
	out := make([]veles.SearchResult, 0, len(hits))
	for _, h := range hits {
		r := veles.SearchResult{ID: h.ID, Score: h.Score, Payload: c.hydratePayload(h.ID)}
		if includeVectors {
			r.Vector, _ = c.qc.Vectors.Vector(h.ID)
		}
		out = append(out, r)
	}
	return out
}

// SearchBatch runs multiple independent k-NN searches, per §6
// Collection.search_batch.
func (c *Collection) SearchBatch(ctx context.Context, vecs [][]float32, opts veles.SearchOptions) ([][]veles.SearchResult, error) {
	out := make([][]veles.SearchResult, len(vecs))
	for i, v := range vecs {
		r, err := c.Search(ctx, v, opts)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}

// TextSearch runs a BM25 full-text search over indexed "text" payloads,
// per §6 Collection.text_search.
func (c *Collection) TextSearch(queryText string, limit int) []veles.SearchResult {
	hits := c.qc.Text.Search(queryText, limit)
	out := make([]veles.SearchResult, 0, len(hits))
	for _, h := range hits {
		out = append(out, veles.SearchResult{ID: h.ID, Score: h.Score, Payload: c.hydratePayload(h.ID)})
	}
	return out
}

// HybridSearch fuses a vector search and a text search with RRF, per §6
// Collection.hybrid_search and §4.G's fusion strategies.
func (c *Collection) HybridSearch(ctx context.Context, vec []float32, queryText string, opts veles.SearchOptions) ([]veles.SearchResult, error) {
	vecHits, err := c.Search(ctx, vec, opts)
	if err != nil {
		return nil, err
	}
	textHits := c.TextSearch(queryText, opts.K)

	lists := [][]fusion.Item{toItems(vecHits), toItems(textHits)}
	fused := fusion.Fuse(fusion.NewRRF(60), lists)
	fused = c.maybeDiversify(fused, opts)
	if opts.K > 0 && len(fused) > opts.K {
		fused = fused[:opts.K]
	}

	out := make([]veles.SearchResult, 0, len(fused))
	for _, item := range fused {
		r := veles.SearchResult{ID: item.ID, Score: item.Score, Payload: c.hydratePayload(item.ID)}
		if opts.IncludeVectors {
			r.Vector, _ = c.qc.Vectors.Vector(item.ID)
		}
		out = append(out, r)
	}
	return out, nil
}

// maybeDiversify applies MMR re-ranking when opts.Diversify is set, per
// §4.G's optional diversity trade-off (fusion.Diversify, adapted from the
// teacher's Service.applyMMR).
func (c *Collection) maybeDiversify(fused []fusion.Item, opts veles.SearchOptions) []fusion.Item {
	if !opts.Diversify {
		return fused
	}
	lambda := opts.DiversifyLambda
	if lambda == 0 {
		lambda = 0.7
	}
	level := simd.DetectedLevel()
	return fusion.Diversify(fused, c.qc.Vectors.Vector, func(a, b []float32) float64 {
		return simd.CosineSimilarity(a, b, level)
	}, lambda, opts.K)
}

func toItems(results []veles.SearchResult) []fusion.Item {
	items := make([]fusion.Item, len(results))
	for i, r := range results {
		items[i] = fusion.Item{ID: r.ID, Score: r.Score}
	}
	return items
}

// MultiQuerySearch fuses the results of several vector queries into one
// ranked list, per §6 Collection.multi_query_search — the same RRF fusion
// HybridSearch uses, generalized to N vector query lists instead of one
// vector list plus one text list.
func (c *Collection) MultiQuerySearch(ctx context.Context, vecs [][]float32, opts veles.SearchOptions) ([]veles.SearchResult, error) {
	lists := make([][]fusion.Item, 0, len(vecs))
	for _, v := range vecs {
		hits, err := c.Search(ctx, v, opts)
		if err != nil {
			return nil, err
		}
		lists = append(lists, toItems(hits))
	}
	fused := fusion.Fuse(fusion.NewRRF(60), lists)
	fused = c.maybeDiversify(fused, opts)
	if opts.K > 0 && len(fused) > opts.K {
		fused = fused[:opts.K]
	}
	out := make([]veles.SearchResult, 0, len(fused))
	for _, item := range fused {
		out = append(out, veles.SearchResult{ID: item.ID, Score: item.Score, Payload: c.hydratePayload(item.ID)})
	}
	return out, nil
}

// ExecuteQuery runs a VelesQL statement against this collection's parent
// Database, per §6 Collection.execute_query.
func (c *Collection) ExecuteQuery(ctx context.Context, sql string, params map[string]any) (*query.ExecuteResult, error) {
	return c.db.ExecuteQuery(ctx, sql, params)
}

// MatchQuery runs a MATCH-clause graph pattern against this collection,
// per §6 Collection.match_query.
func (c *Collection) MatchQuery(ctx context.Context, cypher string, params map[string]any) (*query.ExecuteResult, error) {
	c.db.mu.RLock()
	defer c.db.mu.RUnlock()
	return query.QueryMatch(ctx, c.db.qdb, c.qc, cypher, params)
}

// Explain returns sql's plan without running it, per §6 Collection.explain.
func (c *Collection) Explain(sql string) (*query.ExplainResult, error) {
	return c.db.Explain(sql)
}

// AddEdge adds a graph edge, per §6 Collection.add_edge.
func (c *Collection) AddEdge(e *graph.Edge) error { return c.qc.Graph.AddEdge(e) }

// GetEdges returns a node's edges in the given direction and, optionally,
// restricted to one relationship label, per §6 Collection.get_edges.
func (c *Collection) GetEdges(nodeID uint64, label string, dir graph.Direction) []*graph.Edge {
	switch dir {
	case graph.Incoming:
		return c.qc.Graph.Incoming(nodeID, label)
	case graph.Both:
		return append(c.qc.Graph.Outgoing(nodeID, label), c.qc.Graph.Incoming(nodeID, label)...)
	default:
		return c.qc.Graph.Outgoing(nodeID, label)
	}
}

// Traverse runs a BFS/DFS graph traversal, per §6 Collection.traverse.
func (c *Collection) Traverse(opts graph.TraversalOptions) []graph.TraversalResult {
	return c.qc.Graph.Traverse(opts)
}

// GetNodeDegree returns a node's (out, in) edge counts, per §6
// Collection.get_node_degree.
func (c *Collection) GetNodeDegree(nodeID uint64) (out int, in int) {
	return c.qc.Graph.Degree(nodeID)
}

// CreatePropertyIndex builds an equality index on a column-store field,
// per §6 Collection.create_property_index.
func (c *Collection) CreatePropertyIndex(columnName string) error {
	return c.qc.Columns.CreateIndex(columnName)
}

// CreateGraphPropertyIndex builds a hash or range index on (label,
// property) node properties, the graph-side counterpart of
// CreatePropertyIndex for MATCH predicate pushdown.
func (c *Collection) CreateGraphPropertyIndex(label, property string, kind IndexKind) {
	c.qc.Graph.CreatePropertyIndex(label, property, kind)
}

// DropIndex removes a previously created column-store index.
func (c *Collection) DropIndex(columnName string) { c.qc.Columns.DropIndex(columnName) }

// DropGraphPropertyIndex removes a previously created graph property index.
func (c *Collection) DropGraphPropertyIndex(label, property string, kind IndexKind) {
	c.qc.Graph.DropIndex(label, property, kind)
}

// ListIndexes returns the names of every column-store index currently
// built, per §6 Collection.list_indexes.
func (c *Collection) ListIndexes() []string { return c.qc.Columns.ListIndexes() }

// Flush durably persists the collection's vector file, payload heap, WAL
// snapshot offset, and a badger-backed snapshot of the graph store and
// column store, per §6 Collection.flush. A no-op for in-memory-only
// databases.
func (c *Collection) Flush() error {
	if c.engine == nil {
		return nil
	}
	if err := c.engine.Flush(); err != nil {
		return err
	}
	if c.persist == nil {
		return nil
	}
	if err := c.persist.SnapshotGraph(c.qc.Graph); err != nil {
		return veles.Wrap(veles.KindIO, err, "snapshot graph store")
	}
	if err := c.persist.SnapshotColumns(c.qc.Columns); err != nil {
		return veles.Wrap(veles.KindIO, err, "snapshot column store")
	}
	return nil
}

