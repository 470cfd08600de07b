package storage

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"sync"

	"github.com/edsrzf/mmap-go"

	"github.com/velesdb/veles/pkg/veles"
)

// pageSize is the growth granularity for the mmap-backed vector file, per
// §4.B "grown in fixed-size pages".
const pageSize = 4096

// slotHeader fields, little-endian: id(8) deleted(1) hasQuant(1) scale(4).
const slotHeaderSize = 14

// VectorFile memory-maps a single per-collection file holding vector bytes
// contiguously per point, per §4.B. Reads decode the mapped bytes into
// freshly allocated slices, so a returned []float32 stays valid after a
// later Close or grow.
type VectorFile struct {
	mu        sync.RWMutex
	f         *os.File
	mm        mmap.MMap
	dim       int
	slotSize  int
	slotCount int // capacity in slots
	// slotOf maps a point id to its slot index; slots are append-only and
	// never reused across a delete (tombstoned via the deleted flag; the
	// file is never compacted, so a tombstoned slot's space is not reclaimed).
	slotOf map[uint64]int
	next   int
}

func OpenVectorFile(path string, dim int) (*VectorFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("vectorfile: open: %w", err)
	}
	slotSize := slotHeaderSize + dim*4 /* f32 */ + dim /* int8 companion */
	vf := &VectorFile{f: f, dim: dim, slotSize: slotSize, slotOf: make(map[uint64]int)}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if st.Size() == 0 {
		if err := vf.grow(1); err != nil {
			f.Close()
			return nil, err
		}
	} else {
		if err := vf.mapExisting(st.Size()); err != nil {
			f.Close()
			return nil, err
		}
		vf.rebuildIndex()
	}
	return vf, nil
}

func (vf *VectorFile) mapExisting(size int64) error {
	m, err := mmap.Map(vf.f, mmap.RDWR, 0)
	if err != nil {
		return fmt.Errorf("vectorfile: mmap: %w", err)
	}
	vf.mm = m
	vf.slotCount = int(size) / vf.slotSize
	return nil
}

func (vf *VectorFile) rebuildIndex() {
	for i := 0; i < vf.slotCount; i++ {
		off := i * vf.slotSize
		id := binary.LittleEndian.Uint64(vf.mm[off : off+8])
		deleted := vf.mm[off+8] != 0
		if id == 0 && !deleted {
			continue
		}
		if i >= vf.next {
			vf.next = i + 1
		}
		if deleted {
			continue
		}
		vf.slotOf[id] = i
	}
}

// grow extends the file by at least minSlots slots, rounded up to a page
// boundary, and remaps it.
func (vf *VectorFile) grow(minSlots int) error {
	if vf.mm != nil {
		if err := vf.mm.Unmap(); err != nil {
			return fmt.Errorf("vectorfile: unmap: %w", err)
		}
	}
	newCount := vf.slotCount
	if newCount == 0 {
		newCount = 64
	}
	for newCount < vf.next+minSlots {
		newCount *= 2
	}
	newSize := int64(newCount * vf.slotSize)
	newSize = ((newSize + pageSize - 1) / pageSize) * pageSize
	if err := vf.f.Truncate(newSize); err != nil {
		return fmt.Errorf("vectorfile: truncate: %w", err)
	}
	m, err := mmap.Map(vf.f, mmap.RDWR, 0)
	if err != nil {
		return fmt.Errorf("vectorfile: remap: %w", err)
	}
	vf.mm = m
	vf.slotCount = int(newSize) / vf.slotSize
	return nil
}

// Put writes (or overwrites) the vector for id. Every component must be
// finite — non-finite vectors are rejected at this boundary per §3's
// invariant and §4.E's "Non-finite vector" failure mode.
func (vf *VectorFile) Put(id uint64, vec []float32, quant []int8, scale float32) error {
	if len(vec) != vf.dim {
		return veles.New(veles.KindDimensionMismatch, "vector dimension does not match collection dimension")
	}
	for _, c := range vec {
		if math.IsNaN(float64(c)) || math.IsInf(float64(c), 0) {
			return veles.New(veles.KindNonFiniteVector, "vector contains a non-finite component")
		}
	}

	vf.mu.Lock()
	defer vf.mu.Unlock()

	slot, exists := vf.slotOf[id]
	if !exists {
		if vf.next >= vf.slotCount {
			if err := vf.grow(1); err != nil {
				return err
			}
		}
		slot = vf.next
		vf.next++
		vf.slotOf[id] = slot
	}

	off := slot * vf.slotSize
	binary.LittleEndian.PutUint64(vf.mm[off:off+8], id)
	vf.mm[off+8] = 0 // not deleted
	hasQuant := byte(0)
	if len(quant) == vf.dim {
		hasQuant = 1
	}
	vf.mm[off+9] = hasQuant
	binary.LittleEndian.PutUint32(vf.mm[off+10:off+14], math.Float32bits(scale))

	vecOff := off + slotHeaderSize
	for i, c := range vec {
		binary.LittleEndian.PutUint32(vf.mm[vecOff+i*4:vecOff+i*4+4], math.Float32bits(c))
	}
	quantOff := vecOff + vf.dim*4
	if hasQuant == 1 {
		for i, q := range quant {
			vf.mm[quantOff+i] = byte(q)
		}
	}
	return nil
}

// Get returns a copy of the stored vector (and quantized companion, if
// present) for id. A copy, not a zero-copy slice over the map, is returned
// so callers may retain it past the next Grow/Close.
func (vf *VectorFile) Get(id uint64) (vec []float32, quant []int8, scale float32, ok bool) {
	vf.mu.RLock()
	defer vf.mu.RUnlock()
	slot, exists := vf.slotOf[id]
	if !exists {
		return nil, nil, 0, false
	}
	off := slot * vf.slotSize
	if vf.mm[off+8] != 0 {
		return nil, nil, 0, false // tombstoned
	}
	hasQuant := vf.mm[off+9] == 1
	scale = math.Float32frombits(binary.LittleEndian.Uint32(vf.mm[off+10 : off+14]))

	vecOff := off + slotHeaderSize
	vec = make([]float32, vf.dim)
	for i := 0; i < vf.dim; i++ {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(vf.mm[vecOff+i*4 : vecOff+i*4+4]))
	}
	if hasQuant {
		quantOff := vecOff + vf.dim*4
		quant = make([]int8, vf.dim)
		for i := 0; i < vf.dim; i++ {
			quant[i] = int8(vf.mm[quantOff+i])
		}
	}
	return vec, quant, scale, true
}

// Delete tombstones id's slot. The slot's space is not reclaimed.
func (vf *VectorFile) Delete(id uint64) bool {
	vf.mu.Lock()
	defer vf.mu.Unlock()
	slot, exists := vf.slotOf[id]
	if !exists {
		return false
	}
	off := slot * vf.slotSize
	vf.mm[off+8] = 1
	delete(vf.slotOf, id)
	return true
}

// Contains reports whether id has a live (non-tombstoned) vector.
func (vf *VectorFile) Contains(id uint64) bool {
	vf.mu.RLock()
	defer vf.mu.RUnlock()
	_, ok := vf.slotOf[id]
	return ok
}

func (vf *VectorFile) Len() int {
	vf.mu.RLock()
	defer vf.mu.RUnlock()
	return len(vf.slotOf)
}

// IDs returns every live point id, in no particular order.
func (vf *VectorFile) IDs() []uint64 {
	vf.mu.RLock()
	defer vf.mu.RUnlock()
	ids := make([]uint64, 0, len(vf.slotOf))
	for id := range vf.slotOf {
		ids = append(ids, id)
	}
	return ids
}

func (vf *VectorFile) Flush() error {
	vf.mu.Lock()
	defer vf.mu.Unlock()
	return vf.mm.Flush()
}

func (vf *VectorFile) Close() error {
	vf.mu.Lock()
	defer vf.mu.Unlock()
	if vf.mm != nil {
		if err := vf.mm.Unmap(); err != nil {
			return err
		}
	}
	return vf.f.Close()
}
