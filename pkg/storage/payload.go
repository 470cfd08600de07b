package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// PayloadHeap is the append-only heap region for oversize JSON payloads,
// per §4.B "oversize payloads live in a heap region with per-record
// headers". Unlike the vector file, payload records are variable length,
// so the heap is a plain append-only file with an in-memory offset index
// rather than a fixed-slot mmap.
type PayloadHeap struct {
	mu     sync.RWMutex
	f      *os.File
	offset map[uint64]payloadLoc
	size   int64
}

type payloadLoc struct {
	offset int64
	length uint32
}

func OpenPayloadHeap(path string) (*PayloadHeap, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("payloadheap: open: %w", err)
	}
	ph := &PayloadHeap{f: f, offset: make(map[uint64]payloadLoc)}
	if err := ph.rebuildIndex(); err != nil {
		f.Close()
		return nil, err
	}
	return ph, nil
}

// rebuildIndex scans the heap on open, reconstructing the offset index.
// Each record is: id(8) length(4) json(length).
func (ph *PayloadHeap) rebuildIndex() error {
	st, err := ph.f.Stat()
	if err != nil {
		return err
	}
	buf := make([]byte, st.Size())
	if _, err := ph.f.ReadAt(buf, 0); err != nil && st.Size() > 0 {
		return err
	}
	var off int64
	for off+12 <= int64(len(buf)) {
		id := binary.LittleEndian.Uint64(buf[off : off+8])
		length := binary.LittleEndian.Uint32(buf[off+8 : off+12])
		recStart := off + 12
		if recStart+int64(length) > int64(len(buf)) {
			break // truncated tail record
		}
		ph.offset[id] = payloadLoc{offset: recStart, length: length}
		off = recStart + int64(length)
	}
	ph.size = off
	return nil
}

// Put appends a new payload record for id (previous versions remain as
// dead bytes until vacuum rewrites the heap).
func (ph *PayloadHeap) Put(id uint64, payload map[string]any) error {
	if payload == nil {
		ph.mu.Lock()
		delete(ph.offset, id)
		ph.mu.Unlock()
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("payloadheap: marshal: %w", err)
	}
	header := make([]byte, 12)
	binary.LittleEndian.PutUint64(header[0:8], id)
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(data)))

	ph.mu.Lock()
	defer ph.mu.Unlock()
	if _, err := ph.f.WriteAt(header, ph.size); err != nil {
		return fmt.Errorf("payloadheap: write header: %w", err)
	}
	if _, err := ph.f.WriteAt(data, ph.size+12); err != nil {
		return fmt.Errorf("payloadheap: write record: %w", err)
	}
	ph.offset[id] = payloadLoc{offset: ph.size + 12, length: uint32(len(data))}
	ph.size += 12 + int64(len(data))
	return nil
}

func (ph *PayloadHeap) Get(id uint64) (map[string]any, bool) {
	ph.mu.RLock()
	loc, ok := ph.offset[id]
	ph.mu.RUnlock()
	if !ok {
		return nil, false
	}
	buf := make([]byte, loc.length)
	if _, err := ph.f.ReadAt(buf, loc.offset); err != nil {
		return nil, false
	}
	var payload map[string]any
	if err := json.Unmarshal(buf, &payload); err != nil {
		return nil, false
	}
	return payload, true
}

func (ph *PayloadHeap) Delete(id uint64) {
	ph.mu.Lock()
	delete(ph.offset, id)
	ph.mu.Unlock()
}

// DeadFraction reports how much of the heap is unreferenced, used to
// decide whether vacuum should rewrite it.
func (ph *PayloadHeap) DeadFraction() float64 {
	ph.mu.RLock()
	defer ph.mu.RUnlock()
	if ph.size == 0 {
		return 0
	}
	var live int64
	for _, loc := range ph.offset {
		live += 12 + int64(loc.length)
	}
	return 1.0 - float64(live)/float64(ph.size)
}

// Vacuum rewrites the heap keeping only live records, compacting dead
// space left behind by overwritten/deleted payloads.
func (ph *PayloadHeap) Vacuum(path string) error {
	ph.mu.Lock()
	defer ph.mu.Unlock()

	tmp := path + ".vacuum"
	nf, err := os.OpenFile(tmp, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("payloadheap: vacuum create: %w", err)
	}
	newOffset := make(map[uint64]payloadLoc, len(ph.offset))
	var pos int64
	for id, loc := range ph.offset {
		buf := make([]byte, loc.length)
		if _, err := ph.f.ReadAt(buf, loc.offset); err != nil {
			nf.Close()
			return fmt.Errorf("payloadheap: vacuum read: %w", err)
		}
		header := make([]byte, 12)
		binary.LittleEndian.PutUint64(header[0:8], id)
		binary.LittleEndian.PutUint32(header[8:12], loc.length)
		if _, err := nf.WriteAt(header, pos); err != nil {
			nf.Close()
			return err
		}
		if _, err := nf.WriteAt(buf, pos+12); err != nil {
			nf.Close()
			return err
		}
		newOffset[id] = payloadLoc{offset: pos + 12, length: loc.length}
		pos += 12 + int64(loc.length)
	}
	if err := nf.Sync(); err != nil {
		nf.Close()
		return err
	}
	nf.Close()
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("payloadheap: vacuum rename: %w", err)
	}
	newF, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	ph.f.Close()
	ph.f = newF
	ph.offset = newOffset
	ph.size = pos
	return nil
}

func (ph *PayloadHeap) Close() error {
	return ph.f.Close()
}
