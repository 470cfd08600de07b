package storage

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/velesdb/veles/pkg/veles"
)

func mustOpen(t *testing.T, dir string) *Engine {
	t.Helper()
	cfg := DefaultWALConfig(dir)
	cfg.SyncMode = "immediate"
	e, err := Open(dir, 4, cfg, nil)
	require.NoError(t, err)
	return e
}

func TestUpsertGetDeleteRoundTrip(t *testing.T) {
	dir := t.TempDir()
	e := mustOpen(t, dir)
	defer e.Close()

	p := &veles.Point{ID: 1, Vector: []float32{1, 2, 3, 4}, Payload: map[string]any{"k": "v"}}
	require.NoError(t, e.UpsertPoint(p))

	got, ok := e.GetPoint(1)
	require.True(t, ok)
	require.Equal(t, p.Vector, got.Vector)
	require.Equal(t, "v", got.Payload["k"])

	require.NoError(t, e.DeletePoint(1))
	_, ok = e.GetPoint(1)
	require.False(t, ok)

	// Second delete is a no-op, per §8 idempotence.
	require.NoError(t, e.DeletePoint(1))
}

func TestNonFiniteVectorRejected(t *testing.T) {
	dir := t.TempDir()
	e := mustOpen(t, dir)
	defer e.Close()

	p := &veles.Point{ID: 1, Vector: []float32{1, 2, 3, float32(math.NaN())}}
	err := e.UpsertPoint(p)
	require.Error(t, err)
	kind, ok := veles.KindOf(err)
	require.True(t, ok)
	require.Equal(t, veles.KindNonFiniteVector, kind)
}

func TestDimensionMismatchRejected(t *testing.T) {
	dir := t.TempDir()
	e := mustOpen(t, dir)
	defer e.Close()

	err := e.UpsertPoint(&veles.Point{ID: 1, Vector: []float32{1, 2}})
	require.Error(t, err)
	kind, _ := veles.KindOf(err)
	require.Equal(t, veles.KindDimensionMismatch, kind)
}

func TestCrashRecoveryReplaysCommittedWrites(t *testing.T) {
	dir := t.TempDir()
	e := mustOpen(t, dir)

	for i := uint64(1); i <= 10; i++ {
		require.NoError(t, e.UpsertPoint(&veles.Point{ID: i, Vector: []float32{float32(i), 0, 0, 0}}))
	}
	require.NoError(t, e.wal.Sync())
	require.NoError(t, e.vectors.Close())
	require.NoError(t, e.payload.Close())
	require.NoError(t, e.wal.Close())

	// Simulate restart: vectors.dat/payload.heap are fresh (no snapshot
	// taken), so recovery must replay the entire WAL from offset 0.
	require.NoError(t, os.Remove(filepath.Join(dir, "vectors.dat")))
	require.NoError(t, os.Remove(filepath.Join(dir, "payload.heap")))

	e2 := mustOpen(t, dir)
	defer e2.Close()
	require.Equal(t, 10, e2.Len())
	for i := uint64(1); i <= 10; i++ {
		p, ok := e2.GetPoint(i)
		require.True(t, ok)
		require.Equal(t, float32(i), p.Vector[0])
	}
}

func TestWALTruncatedMidRecordStopsAtLastGoodCRC(t *testing.T) {
	dir := t.TempDir()
	e := mustOpen(t, dir)
	for i := uint64(1); i <= 3; i++ {
		require.NoError(t, e.UpsertPoint(&veles.Point{ID: i, Vector: []float32{float32(i), 0, 0, 0}}))
	}
	require.NoError(t, e.wal.Sync())
	require.NoError(t, e.vectors.Close())
	require.NoError(t, e.payload.Close())
	require.NoError(t, e.wal.Close())

	walPath := filepath.Join(dir, "wal.log")
	data, err := os.ReadFile(walPath)
	require.NoError(t, err)
	// Corrupt by truncating off the final few bytes of the last record.
	require.NoError(t, os.WriteFile(walPath, data[:len(data)-3], 0o644))
	require.NoError(t, os.Remove(filepath.Join(dir, "vectors.dat")))
	require.NoError(t, os.Remove(filepath.Join(dir, "payload.heap")))

	e2 := mustOpen(t, dir)
	defer e2.Close()
	// First two records replay; the truncated third is dropped.
	require.Equal(t, 2, e2.Len())

	// Subsequent operations must still succeed after a truncated replay.
	require.NoError(t, e2.UpsertPoint(&veles.Point{ID: 99, Vector: []float32{9, 9, 9, 9}}))
	_, ok := e2.GetPoint(99)
	require.True(t, ok)
}

func TestFlushMarksSnapshotOffset(t *testing.T) {
	dir := t.TempDir()
	e := mustOpen(t, dir)
	defer e.Close()
	require.NoError(t, e.UpsertPoint(&veles.Point{ID: 1, Vector: []float32{1, 1, 1, 1}}))
	require.NoError(t, e.Flush())
	require.Greater(t, e.WALStats().SnapshotOffset, uint64(0))
}

func TestRestartAfterFlushReplaysOnlyPostSnapshotRecords(t *testing.T) {
	dir := t.TempDir()
	e := mustOpen(t, dir)

	for i := uint64(1); i <= 5; i++ {
		require.NoError(t, e.UpsertPoint(&veles.Point{ID: i, Vector: []float32{float32(i), 0, 0, 0}}))
	}
	require.NoError(t, e.Flush())
	snapshotOffset := e.WALStats().SnapshotOffset
	require.Greater(t, snapshotOffset, uint64(0))

	for i := uint64(6); i <= 8; i++ {
		require.NoError(t, e.UpsertPoint(&veles.Point{ID: i, Vector: []float32{float32(i), 0, 0, 0}}))
	}
	// Close the underlying stores directly (not e.Close()) to simulate a
	// crash right after the 3 post-snapshot upserts, without the extra
	// checkpoint a graceful Close's own Flush would append.
	require.NoError(t, e.wal.Sync())
	require.NoError(t, e.vectors.Close())
	require.NoError(t, e.payload.Close())
	require.NoError(t, e.wal.Close())

	// Vectors/payload files are left in place, as a real restart would find
	// them: they already hold the current image, and only the WAL tail
	// written since the snapshot should need replaying.
	e2 := mustOpen(t, dir)
	defer e2.Close()

	require.Equal(t, snapshotOffset, e2.WALStats().SnapshotOffset, "persisted snapshot offset must survive a restart")
	require.Equal(t, 3, e2.ReplayedRecords(), "only the 3 post-snapshot upserts should be replayed, not all 8")

	require.Equal(t, 8, e2.Len())
	for i := uint64(1); i <= 8; i++ {
		p, ok := e2.GetPoint(i)
		require.True(t, ok)
		require.Equal(t, float32(i), p.Vector[0])
	}
}
