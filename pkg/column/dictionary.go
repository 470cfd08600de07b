// Package column implements VelesDB's component C: typed wide-column
// storage for row metadata, per §4.C. Strings are dictionary-encoded
// through a single shared Dictionary (§3 "Strings live in a shared
// dictionary; cells hold dictionary indices"), deletions are tracked by
// exactly one github.com/RoaringBitmap/roaring/v2 bitmap (no duplicate
// tracking), and filter evaluation composes bitmaps with AND/OR/NOT.
package column

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Dictionary interns strings to dense uint32 ids, shared by every string
// column in a Store. xxhash keys the lookup table — the pack's badger
// dependency already pulls xxhash in transitively for its own LSM keys,
// and it is a better fit here than the stdlib's FNV/CRC hashers for a
// high-churn string-interning table.
type Dictionary struct {
	mu     sync.RWMutex
	byHash map[uint64][]uint32 // hash -> candidate ids (collision chain)
	values []string
}

func NewDictionary() *Dictionary {
	return &Dictionary{byHash: make(map[uint64][]uint32)}
}

// Intern returns the id for s, allocating a new one if s has not been seen.
func (d *Dictionary) Intern(s string) uint32 {
	h := xxhash.Sum64String(s)

	d.mu.RLock()
	for _, id := range d.byHash[h] {
		if d.values[id] == s {
			d.mu.RUnlock()
			return id
		}
	}
	d.mu.RUnlock()

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, id := range d.byHash[h] {
		if d.values[id] == s {
			return id
		}
	}
	id := uint32(len(d.values))
	d.values = append(d.values, s)
	d.byHash[h] = append(d.byHash[h], id)
	return id
}

// Lookup returns the previously interned id for s without allocating one.
func (d *Dictionary) Lookup(s string) (uint32, bool) {
	h := xxhash.Sum64String(s)
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, id := range d.byHash[h] {
		if d.values[id] == s {
			return id, true
		}
	}
	return 0, false
}

func (d *Dictionary) String(id uint32) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if int(id) >= len(d.values) {
		return ""
	}
	return d.values[id]
}

// Rebuild compacts the dictionary to only the strings referenced by
// keep (a set of old ids), returning a remapping old-id -> new-id. Used by
// vacuum when the deleted fraction crosses the watermark.
func (d *Dictionary) Rebuild(keep map[uint32]struct{}) (remap map[uint32]uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()

	remap = make(map[uint32]uint32, len(keep))
	newValues := make([]string, 0, len(keep))
	newByHash := make(map[uint64][]uint32, len(keep))
	for oldID := range keep {
		if int(oldID) >= len(d.values) {
			continue
		}
		s := d.values[oldID]
		newID := uint32(len(newValues))
		newValues = append(newValues, s)
		h := xxhash.Sum64String(s)
		newByHash[h] = append(newByHash[h], newID)
		remap[oldID] = newID
	}
	d.values = newValues
	d.byHash = newByHash
	return remap
}
