package graph

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/velesdb/veles/pkg/column"
	"github.com/velesdb/veles/pkg/veles"
)

func TestPersistenceGraphRoundTrip(t *testing.T) {
	dir := t.TempDir()
	p, err := OpenPersistence(dir)
	require.NoError(t, err)
	defer p.Close()

	s := mustStoreWithTriangle(t)
	require.NoError(t, p.SnapshotGraph(s))

	restored, err := p.RestoreGraph()
	require.NoError(t, err)
	require.Equal(t, s.NodeCount(), restored.NodeCount())
	require.Equal(t, s.EdgeCount(), restored.EdgeCount())

	n, ok := restored.GetNode(2)
	require.True(t, ok)
	require.Equal(t, int64(40), n.Properties["age"].I64)
}

func TestPersistenceColumnRoundTrip(t *testing.T) {
	dir := t.TempDir()
	p, err := OpenPersistence(dir)
	require.NoError(t, err)
	defer p.Close()

	cs := column.NewStore()
	require.NoError(t, cs.Set(1, "name", veles.StringValue("alice")))
	require.NoError(t, cs.Set(2, "name", veles.StringValue("bob")))

	require.NoError(t, p.SnapshotColumns(cs))
	restored, err := p.RestoreColumns()
	require.NoError(t, err)

	v, ok := restored.Get(1, "name")
	require.True(t, ok)
	require.Equal(t, "alice", v.Str)
}
