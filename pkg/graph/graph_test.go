package graph

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/velesdb/veles/pkg/veles"
)

func mustStoreWithTriangle(t *testing.T) *Store {
	t.Helper()
	s := NewStore()
	require.NoError(t, s.CreateNode(&Node{ID: 1, Label: "Person", Properties: map[string]veles.PropertyValue{"age": veles.Int64Value(30)}}))
	require.NoError(t, s.CreateNode(&Node{ID: 2, Label: "Person", Properties: map[string]veles.PropertyValue{"age": veles.Int64Value(40)}}))
	require.NoError(t, s.CreateNode(&Node{ID: 3, Label: "Person", Properties: map[string]veles.PropertyValue{"age": veles.Int64Value(50)}}))
	require.NoError(t, s.AddEdge(&Edge{ID: 100, Source: 1, Target: 2, Label: "KNOWS"}))
	require.NoError(t, s.AddEdge(&Edge{ID: 101, Source: 2, Target: 3, Label: "KNOWS"}))
	require.NoError(t, s.AddEdge(&Edge{ID: 102, Source: 1, Target: 3, Label: "BLOCKS"}))
	return s
}

func TestCreateNodeRejectsDuplicateID(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.CreateNode(&Node{ID: 1}))
	err := s.CreateNode(&Node{ID: 1})
	require.Error(t, err)
	kind, _ := veles.KindOf(err)
	require.Equal(t, veles.KindNodeExists, kind)
}

func TestAddEdgeRequiresExistingEndpoints(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.CreateNode(&Node{ID: 1}))
	err := s.AddEdge(&Edge{ID: 10, Source: 1, Target: 99})
	require.Error(t, err)
}

func TestAdjacencyIndexesStayConsistent(t *testing.T) {
	s := mustStoreWithTriangle(t)

	out := s.Outgoing(1, "")
	require.Len(t, out, 2)

	in := s.Incoming(3, "KNOWS")
	require.Len(t, in, 1)
	require.Equal(t, uint64(2), in[0].Source)

	outDeg, inDeg := s.Degree(1)
	require.Equal(t, 2, outDeg)
	require.Equal(t, 0, inDeg)
}

func TestDeleteNodeCascadesEdges(t *testing.T) {
	s := mustStoreWithTriangle(t)
	s.DeleteNode(1)

	_, ok := s.GetNode(1)
	require.False(t, ok)
	_, ok = s.GetEdge(100)
	require.False(t, ok)
	_, ok = s.GetEdge(102)
	require.False(t, ok)
	// Edge 101 (2->3) did not touch node 1, must survive.
	_, ok = s.GetEdge(101)
	require.True(t, ok)

	require.Empty(t, s.Incoming(2, ""))
}

func TestDeleteNodeIsIdempotent(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.CreateNode(&Node{ID: 1}))
	s.DeleteNode(1)
	require.NotPanics(t, func() { s.DeleteNode(1) })
}

func TestHashIndexLookup(t *testing.T) {
	s := mustStoreWithTriangle(t)
	s.CreatePropertyIndex("Person", "age", HashIndex)

	ids, ok := s.LookupEq("Person", "age", veles.Int64Value(40))
	require.True(t, ok)
	require.Equal(t, []uint64{2}, ids)
}

func TestRangeIndexLookup(t *testing.T) {
	s := mustStoreWithTriangle(t)
	s.CreatePropertyIndex("Person", "age", RangeIndex)

	ids, ok := s.LookupRange("Person", "age", veles.Int64Value(35), veles.PropertyValue{}, true, false)
	require.True(t, ok)
	require.ElementsMatch(t, []uint64{2, 3}, ids)
}

func TestTraverseBFSRespectsMaxDepthAndLimit(t *testing.T) {
	s := mustStoreWithTriangle(t)
	results := s.Traverse(TraversalOptions{Source: 1, MaxDepth: 1, Strategy: BFS, Direction: Outgoing})
	require.Len(t, results, 3) // source + 2 direct neighbors, depth-1 cutoff stops expansion past them

	limited := s.Traverse(TraversalOptions{Source: 1, MaxDepth: 5, Limit: 1, Strategy: BFS, Direction: Outgoing})
	require.Len(t, limited, 1)
}

func TestTraverseFiltersByRelationshipLabel(t *testing.T) {
	s := mustStoreWithTriangle(t)
	results := s.Traverse(TraversalOptions{Source: 1, MaxDepth: 5, RelLabel: "BLOCKS", Strategy: BFS, Direction: Outgoing})
	ids := make([]uint64, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.NodeID)
	}
	require.ElementsMatch(t, []uint64{1, 3}, ids)
}

func TestTraverseUnknownSourceReturnsNil(t *testing.T) {
	s := NewStore()
	require.Nil(t, s.Traverse(TraversalOptions{Source: 999}))
}
