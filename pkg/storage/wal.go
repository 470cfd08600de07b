// Package storage implements VelesDB's component B: memory-mapped vector
// payload storage plus a write-ahead log with CRC32-protected records and
// crash-recovery semantics, per spec §4.B. The control-flow shape (batch
// writes behind a buffered writer, a batch-sync goroutine, a WALStats
// observability struct, an atomic snapshot-offset counter, atomic-rename
// snapshot writes) is carried over from the teacher's
// pkg/storage/wal.go; the record framing is rewritten from JSON lines to
// the binary ⟨length, op, payload, CRC32⟩ tuple the spec requires.
package storage

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// OpCode identifies a WAL record's operation, analogous to the teacher's
// OperationType but scoped to point mutations (graph/column mutations are
// persisted through pkg/graph and pkg/column's own badger-backed stores).
type OpCode byte

const (
	OpUpsertPoint OpCode = 1
	OpDeletePoint OpCode = 2
	OpCheckpoint  OpCode = 3
)

var (
	ErrWALClosed    = errors.New("wal: closed")
	ErrWALCorrupted = errors.New("wal: corrupted entry")
)

// Record is one WAL entry once decoded: a point mutation keyed by point id
// and a monotonically increasing per-collection op sequence, which makes
// replay idempotent per §4.B ("Replayed operations are idempotent (keyed
// by point id + monotonic op seq)").
type Record struct {
	Seq     uint64
	PointID uint64
	Op      OpCode
	Payload []byte // encoded Point for OpUpsertPoint, empty for OpDeletePoint
}

// WALConfig configures sync behavior, mirroring the teacher's WALConfig
// shape generalized to three explicit sync modes.
type WALConfig struct {
	Dir               string
	SyncMode          string // "immediate" | "batch" | "none"
	BatchSyncInterval time.Duration
	MaxFileSize       int64
}

func DefaultWALConfig(dir string) *WALConfig {
	return &WALConfig{
		Dir:               dir,
		SyncMode:          "batch",
		BatchSyncInterval: 100 * time.Millisecond,
		MaxFileSize:       256 * 1024 * 1024,
	}
}

// WAL is the append-only log. Thread-safe for concurrent Append calls; the
// append path is single-writer under mu, matching §5's documented lock
// order (log → mmap grow → metadata) since WAL.Append is always called
// before the corresponding VectorFile mutation.
type WAL struct {
	mu           sync.Mutex
	cfg          *WALConfig
	file         *os.File
	writer       *bufio.Writer
	seq          atomic.Uint64
	snapshot     atomic.Uint64 // log offset (sequence) of the latest snapshot
	snapshotPath string        // sidecar file snapshot is persisted to
	closed       atomic.Bool
	log          *zap.Logger

	syncTicker *time.Ticker
	stopSync   chan struct{}

	entries atomic.Int64
	writes  atomic.Int64
	syncs   atomic.Int64
}

type WALStats struct {
	Sequence       uint64
	SnapshotOffset uint64
	EntryCount     int64
	TotalWrites    int64
	TotalSyncs     int64
	Closed         bool
}

func OpenWAL(cfg *WALConfig, log *zap.Logger) (*WAL, error) {
	if cfg == nil {
		return nil, errors.New("wal: nil config")
	}
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("wal: mkdir: %w", err)
	}
	path := filepath.Join(cfg.Dir, "wal.log")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("wal: open: %w", err)
	}
	w := &WAL{
		cfg:          cfg,
		file:         f,
		writer:       bufio.NewWriterSize(f, 64*1024),
		stopSync:     make(chan struct{}),
		log:          log,
		snapshotPath: filepath.Join(cfg.Dir, "wal.snapshot"),
	}
	if lastSeq, err := lastSequence(path); err == nil {
		w.seq.Store(lastSeq)
	}
	if snapSeq, err := loadSnapshotOffset(w.snapshotPath); err != nil {
		log.Warn("wal: load snapshot offset failed, replaying from the start", zap.Error(err))
	} else {
		w.snapshot.Store(snapSeq)
	}
	if cfg.SyncMode == "batch" && cfg.BatchSyncInterval > 0 {
		w.syncTicker = time.NewTicker(cfg.BatchSyncInterval)
		go w.batchSyncLoop()
	}
	return w, nil
}

func (w *WAL) batchSyncLoop() {
	for {
		select {
		case <-w.syncTicker.C:
			_ = w.Sync()
		case <-w.stopSync:
			return
		}
	}
}

// Append writes one record and returns its assigned sequence number.
func (w *WAL) Append(op OpCode, pointID uint64, payload []byte) (uint64, error) {
	if w.closed.Load() {
		return 0, ErrWALClosed
	}
	seq := w.seq.Add(1)

	// Frame: seq(8) pointID(8) op(1) len(4) payload(len) crc(4)
	header := make([]byte, 21)
	binary.LittleEndian.PutUint64(header[0:8], seq)
	binary.LittleEndian.PutUint64(header[8:16], pointID)
	header[16] = byte(op)
	binary.LittleEndian.PutUint32(header[17:21], uint32(len(payload)))

	crc := checksum(uint32(len(payload)), byte(op), payload)
	var crcBuf [4]byte
	binary.LittleEndian.PutUint32(crcBuf[:], crc)

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.writer.Write(header); err != nil {
		return 0, fmt.Errorf("wal: write header: %w", err)
	}
	if len(payload) > 0 {
		if _, err := w.writer.Write(payload); err != nil {
			return 0, fmt.Errorf("wal: write payload: %w", err)
		}
	}
	if _, err := w.writer.Write(crcBuf[:]); err != nil {
		return 0, fmt.Errorf("wal: write crc: %w", err)
	}

	w.entries.Add(1)
	w.writes.Add(1)

	if w.cfg.SyncMode == "immediate" {
		return seq, w.syncLocked()
	}
	return seq, nil
}

func (w *WAL) Sync() error {
	if w.closed.Load() {
		return ErrWALClosed
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.syncLocked()
}

func (w *WAL) syncLocked() error {
	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("wal: flush: %w", err)
	}
	if w.cfg.SyncMode != "none" {
		if err := w.file.Sync(); err != nil {
			return fmt.Errorf("wal: fsync: %w", err)
		}
	}
	w.syncs.Add(1)
	return nil
}

// MarkSnapshot records the log offset of a freshly-written snapshot, both in
// the in-memory atomic counter and durably in a sidecar file next to the
// log, per §4.B "Snapshots write a compacted image and atomically rotate
// the log". The vector/payload mmap files are themselves the compacted
// image (every Put/Delete lands in them directly); persisting the sequence
// they're current as-of is what lets a restart bound WAL replay to the
// records written since, instead of always replaying from the beginning.
// Snapshotting never holds the write lock — only the sidecar write happens
// here, via the same write-temp-then-rename idiom the mmap files use for
// their own durable writes.
func (w *WAL) MarkSnapshot(seq uint64) {
	w.snapshot.Store(seq)
	if err := saveSnapshotOffset(w.snapshotPath, seq); err != nil {
		w.log.Warn("wal: persist snapshot offset failed", zap.Error(err))
	}
}

func (w *WAL) SnapshotOffset() uint64 { return w.snapshot.Load() }

// saveSnapshotOffset atomically overwrites the sidecar file recording the
// WAL sequence a snapshot is current as-of.
func saveSnapshotOffset(path string, seq uint64) error {
	tmp := path + ".tmp"
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], seq)
	if err := os.WriteFile(tmp, buf[:], 0o644); err != nil {
		return fmt.Errorf("wal: write snapshot sidecar: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("wal: rename snapshot sidecar: %w", err)
	}
	return nil
}

// loadSnapshotOffset reads the sidecar file written by saveSnapshotOffset.
// A missing file (first open, or pre-upgrade data directory) is not an
// error: it means replay must start from sequence 0, the old behavior.
func loadSnapshotOffset(path string) (uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("wal: corrupt snapshot sidecar %q", path)
	}
	return binary.LittleEndian.Uint64(data), nil
}

func (w *WAL) Stats() WALStats {
	return WALStats{
		Sequence:       w.seq.Load(),
		SnapshotOffset: w.snapshot.Load(),
		EntryCount:     w.entries.Load(),
		TotalWrites:    w.writes.Load(),
		TotalSyncs:     w.syncs.Load(),
		Closed:         w.closed.Load(),
	}
}

func (w *WAL) Close() error {
	if w.closed.Swap(true) {
		return nil
	}
	if w.syncTicker != nil {
		w.syncTicker.Stop()
		close(w.stopSync)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.syncLocked(); err != nil {
		w.log.Warn("wal: close sync failed", zap.Error(err))
	}
	return w.file.Close()
}

// ReplayFrom reads every valid record whose sequence is strictly greater
// than afterSeq, stopping at the first corrupt CRC boundary, per §4.B
// crash-recovery steps 3-4. It returns the valid records plus the byte
// offset of that boundary (0 if the log is intact); it does not modify the
// file, and the caller truncates with TruncateAt.
func ReplayFrom(path string, afterSeq uint64) (records []Record, truncateAt int64, err error) {
	f, openErr := os.Open(path)
	if openErr != nil {
		if os.IsNotExist(openErr) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("wal: open for replay: %w", openErr)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var offset int64
	for {
		recOffset := offset
		header := make([]byte, 21)
		n, rerr := io.ReadFull(r, header)
		offset += int64(n)
		if rerr == io.EOF || (rerr == io.ErrUnexpectedEOF && n == 0) {
			break
		}
		if rerr != nil {
			return records, recOffset, nil
		}
		seq := binary.LittleEndian.Uint64(header[0:8])
		pointID := binary.LittleEndian.Uint64(header[8:16])
		op := OpCode(header[16])
		length := binary.LittleEndian.Uint32(header[17:21])

		payload := make([]byte, length)
		if length > 0 {
			n, rerr = io.ReadFull(r, payload)
			offset += int64(n)
			if rerr != nil {
				return records, recOffset, nil
			}
		}
		crcBuf := make([]byte, 4)
		n, rerr = io.ReadFull(r, crcBuf)
		offset += int64(n)
		if rerr != nil {
			return records, recOffset, nil
		}
		wantCRC := binary.LittleEndian.Uint32(crcBuf)
		gotCRC := checksum(length, byte(op), payload)
		if wantCRC != gotCRC {
			return records, recOffset, nil
		}

		if seq > afterSeq {
			records = append(records, Record{Seq: seq, PointID: pointID, Op: op, Payload: payload})
		}
	}
	return records, 0, nil
}

// TruncateAt truncates the WAL file to the given byte offset, discarding
// any bytes past the last valid record (§4.B step 4).
func TruncateAt(path string, offset int64) error {
	if offset <= 0 {
		return nil
	}
	return os.Truncate(path, offset)
}

func lastSequence(path string) (uint64, error) {
	records, _, err := ReplayFrom(path, 0)
	if err != nil {
		return 0, err
	}
	var max uint64
	for _, r := range records {
		if r.Seq > max {
			max = r.Seq
		}
	}
	return max, nil
}
