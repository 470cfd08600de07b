// Package graph implements VelesDB's component D: labeled nodes and typed
// directed edges with O(1) neighbor enumeration and optional property
// indexes for predicate pushdown, generalized from the teacher's
// MemoryEngine (github.com/.../nornicdb/pkg/storage/memory.go) away from
// its Neo4j-flavored string ids and constraint-checking schema layer
// toward VelesDB's u64 id space and typed PropertyValue properties.
package graph

import (
	"sync"

	"github.com/velesdb/veles/pkg/veles"
)

// Node is a graph vertex, per §3 "Graph node": a 64-bit id (shared id-space
// with Point when a collection mixes both), an optional label, and a
// mapping of typed properties.
type Node struct {
	ID         uint64
	Label      string
	Properties map[string]veles.PropertyValue
}

// Edge is a typed directed relationship, per §3 "Graph edge".
type Edge struct {
	ID         uint64
	Source     uint64
	Target     uint64
	Label      string
	Properties map[string]veles.PropertyValue
}

// Store holds one collection's graph: nodes, edges, and the adjacency
// indexes that keep neighbor enumeration O(degree), per §4.D. Adjacency is
// keyed by edge id (not bare target id) so cascade-delete and per-edge
// property lookups stay O(1); Outgoing and Incoming resolve edge ids to
// edges for callers.
type Store struct {
	mu    sync.RWMutex
	nodes map[uint64]*Node
	edges map[uint64]*Edge

	// outgoing[source][label] -> set of outgoing edge ids from source with that label.
	outgoing map[uint64]map[string]map[uint64]struct{}
	// incoming[target][label] -> set of incoming edge ids to target with that label.
	incoming map[uint64]map[string]map[uint64]struct{}

	nodesByLabel map[string]map[uint64]struct{}

	hashIndexes  map[indexKey]*hashIndex
	rangeIndexes map[indexKey]*rangeIndex
}

func NewStore() *Store {
	return &Store{
		nodes:        make(map[uint64]*Node),
		edges:        make(map[uint64]*Edge),
		outgoing:     make(map[uint64]map[string]map[uint64]struct{}),
		incoming:     make(map[uint64]map[string]map[uint64]struct{}),
		nodesByLabel: make(map[string]map[uint64]struct{}),
		hashIndexes:  make(map[indexKey]*hashIndex),
		rangeIndexes: make(map[indexKey]*rangeIndex),
	}
}

// CreateNode adds a node, failing with NodeExists if its id is already in
// use, per the teacher's CreateNode's ErrAlreadyExists precedent
// generalized to VelesDB's single Kind taxonomy.
func (s *Store) CreateNode(n *Node) error {
	if n == nil {
		return veles.New(veles.KindInvalidValue, "nil node")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.nodes[n.ID]; exists {
		return veles.Newf(veles.KindNodeExists, "node %d already exists", n.ID)
	}
	stored := copyNode(n)
	s.nodes[n.ID] = stored
	s.indexNodeLocked(stored)
	return nil
}

// UpsertNode creates or replaces a node, reindexing its label and property
// entries.
func (s *Store) UpsertNode(n *Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.nodes[n.ID]; ok {
		s.deindexNodeLocked(existing)
	}
	stored := copyNode(n)
	s.nodes[n.ID] = stored
	s.indexNodeLocked(stored)
}

func (s *Store) GetNode(id uint64) (*Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return nil, false
	}
	return copyNode(n), true
}

// DeleteNode removes a node and cascades through every edge touching it,
// per §3's Graph edge invariant: "adjacency indexes remain consistent with
// the edge set; cascade-delete on node removal." Idempotent: deleting an
// unknown id is a no-op.
func (s *Store) DeleteNode(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[id]
	if !ok {
		return
	}
	s.deindexNodeLocked(n)

	for label, edgeIDs := range s.outgoing[id] {
		for edgeID := range edgeIDs {
			s.removeEdgeLocked(edgeID)
		}
		_ = label
	}
	for label, edgeIDs := range s.incoming[id] {
		for edgeID := range edgeIDs {
			s.removeEdgeLocked(edgeID)
		}
		_ = label
	}
	delete(s.outgoing, id)
	delete(s.incoming, id)
	delete(s.nodes, id)
}

// AddEdge creates a directed edge and updates both adjacency indexes. Both
// endpoints must already exist.
func (s *Store) AddEdge(e *Edge) error {
	if e == nil {
		return veles.New(veles.KindInvalidValue, "nil edge")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[e.Source]; !ok {
		return veles.Newf(veles.KindInvalidValue, "edge source %d does not exist", e.Source)
	}
	if _, ok := s.nodes[e.Target]; !ok {
		return veles.Newf(veles.KindInvalidValue, "edge target %d does not exist", e.Target)
	}
	if _, exists := s.edges[e.ID]; exists {
		return veles.Newf(veles.KindNodeExists, "edge %d already exists", e.ID)
	}

	stored := copyEdge(e)
	s.edges[e.ID] = stored
	addToAdjacency(s.outgoing, e.Source, e.Label, e.ID)
	addToAdjacency(s.incoming, e.Target, e.Label, e.ID)
	return nil
}

func addToAdjacency(idx map[uint64]map[string]map[uint64]struct{}, node uint64, label string, edgeID uint64) {
	if idx[node] == nil {
		idx[node] = make(map[string]map[uint64]struct{})
	}
	if idx[node][label] == nil {
		idx[node][label] = make(map[uint64]struct{})
	}
	idx[node][label][edgeID] = struct{}{}
}

func (s *Store) GetEdge(id uint64) (*Edge, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.edges[id]
	if !ok {
		return nil, false
	}
	return copyEdge(e), true
}

// DeleteEdge removes a single edge. Idempotent.
func (s *Store) DeleteEdge(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeEdgeLocked(id)
}

func (s *Store) removeEdgeLocked(id uint64) {
	e, ok := s.edges[id]
	if !ok {
		return
	}
	if byLabel := s.outgoing[e.Source]; byLabel != nil {
		if set := byLabel[e.Label]; set != nil {
			delete(set, id)
		}
	}
	if byLabel := s.incoming[e.Target]; byLabel != nil {
		if set := byLabel[e.Label]; set != nil {
			delete(set, id)
		}
	}
	delete(s.edges, id)
}

// Outgoing returns the outgoing edges from nodeID, optionally filtered to a
// single relationship label (empty label returns every label).
func (s *Store) Outgoing(nodeID uint64, label string) []*Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.adjacentLocked(s.outgoing, nodeID, label)
}

// Incoming returns the incoming edges to nodeID, optionally filtered to a
// single relationship label.
func (s *Store) Incoming(nodeID uint64, label string) []*Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.adjacentLocked(s.incoming, nodeID, label)
}

func (s *Store) adjacentLocked(idx map[uint64]map[string]map[uint64]struct{}, nodeID uint64, label string) []*Edge {
	byLabel := idx[nodeID]
	if byLabel == nil {
		return nil
	}
	var out []*Edge
	appendEdges := func(set map[uint64]struct{}) {
		for id := range set {
			if e, ok := s.edges[id]; ok {
				out = append(out, copyEdge(e))
			}
		}
	}
	if label != "" {
		appendEdges(byLabel[label])
		return out
	}
	for _, set := range byLabel {
		appendEdges(set)
	}
	return out
}

// Degree returns (out-degree, in-degree) for a node.
func (s *Store) Degree(nodeID uint64) (out int, in int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, set := range s.outgoing[nodeID] {
		out += len(set)
	}
	for _, set := range s.incoming[nodeID] {
		in += len(set)
	}
	return out, in
}

// NodesByLabel returns every node with the given label.
func (s *Store) NodesByLabel(label string) []*Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.nodesByLabel[label]
	out := make([]*Node, 0, len(ids))
	for id := range ids {
		if n, ok := s.nodes[id]; ok {
			out = append(out, copyNode(n))
		}
	}
	return out
}

// AllNodes returns every node in the store, used by the query executor's
// MATCH evaluator as the start-candidate set for a label-less node
// pattern (e.g. `MATCH (a) RETURN a`).
func (s *Store) AllNodes() []*Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, copyNode(n))
	}
	return out
}

func (s *Store) NodeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

func (s *Store) EdgeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.edges)
}

func copyNode(n *Node) *Node {
	props := make(map[string]veles.PropertyValue, len(n.Properties))
	for k, v := range n.Properties {
		props[k] = v
	}
	return &Node{ID: n.ID, Label: n.Label, Properties: props}
}

func copyEdge(e *Edge) *Edge {
	props := make(map[string]veles.PropertyValue, len(e.Properties))
	for k, v := range e.Properties {
		props[k] = v
	}
	return &Edge{ID: e.ID, Source: e.Source, Target: e.Target, Label: e.Label, Properties: props}
}
