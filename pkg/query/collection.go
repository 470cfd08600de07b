// Package query implements VelesDB's component I: the cross-store query
// planner and executor that runs a parsed VelesQL statement
// (github.com/velesdb/veles/pkg/velesql) over a Collection's vector,
// graph, column, and full-text stores, per §4.I. It generalizes the
// dispatch shape of the teacher's cypher.StorageExecutor
// (pkg/cypher/executor.go: a single Execute entry point fanning out to
// per-clause handlers) from its regex/string-slicing clause matching to
// typed-AST dispatch over pkg/velesql's parse tree.
package query

import (
	"sync"

	"github.com/velesdb/veles/pkg/column"
	"github.com/velesdb/veles/pkg/fulltext"
	"github.com/velesdb/veles/pkg/graph"
	"github.com/velesdb/veles/pkg/hnsw"
	"github.com/velesdb/veles/pkg/veles"
)

// Collection bundles one named collection's stores, per §3's "a
// collection unifies a vector index, property graph, and column store".
type Collection struct {
	Name    string
	Config  veles.CollectionConfig
	Vectors *hnsw.Index
	Graph   *graph.Store
	Columns *column.Store
	Text    *fulltext.Index
	Trigram *fulltext.Trigram
	Stats   *QueryStats
}

// NewCollection builds an empty collection under cfg, wiring every store
// component so NEAR/MATCH/column/full-text predicates all have a home to
// execute against regardless of which ones a given query touches.
func NewCollection(name string, cfg veles.CollectionConfig) *Collection {
	return &Collection{
		Name:    name,
		Config:  cfg,
		Vectors: hnsw.New(cfg.Dimension, cfg.Metric, cfg.HNSW),
		Graph:   graph.NewStore(),
		Columns: column.NewStore(),
		Text:    fulltext.NewDefault(),
		Trigram: fulltext.NewTrigram(),
		Stats:   NewQueryStats(),
	}
}

// Database holds the named collections a cross-collection query (JOIN,
// UNION/INTERSECT/EXCEPT, Database.execute_query) can reach, per §6
// "Database operations: list_collections, create_collection, ...".
type Database struct {
	mu          sync.RWMutex
	collections map[string]*Collection
}

// NewDatabase creates an empty Database.
func NewDatabase() *Database {
	return &Database{collections: make(map[string]*Collection)}
}

// CreateCollection registers a new empty collection under name.
func (d *Database) CreateCollection(name string, cfg veles.CollectionConfig) (*Collection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.collections[name]; exists {
		return nil, veles.Newf(veles.KindInvalidValue, "collection %q already exists", name)
	}
	c := NewCollection(name, cfg)
	d.collections[name] = c
	return c, nil
}

// DeleteCollection removes a collection; deleting an unknown name is a
// CollectionNotFound error rather than a silent no-op, matching the
// strictness of the rest of §4.I's failure model.
func (d *Database) DeleteCollection(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.collections[name]; !ok {
		return veles.Newf(veles.KindCollectionNotFound, "collection %q not found", name)
	}
	delete(d.collections, name)
	return nil
}

// ListCollections returns every registered collection name.
func (d *Database) ListCollections() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.collections))
	for name := range d.collections {
		names = append(names, name)
	}
	return names
}

// Get resolves name to its Collection, per §4.I "Unknown collection ->
// CollectionNotFound".
func (d *Database) Get(name string) (*Collection, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.collections[name]
	if !ok {
		return nil, veles.Newf(veles.KindCollectionNotFound, "collection %q not found", name)
	}
	return c, nil
}
