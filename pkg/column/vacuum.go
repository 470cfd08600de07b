package column

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/velesdb/veles/pkg/veles"
)

// Vacuum compacts the store when the deleted fraction exceeds watermark:
// dense row indices are renumbered to exclude tombstoned rows and the
// shared Dictionary is rebuilt to drop strings no live row references
// anymore, per §4.C "vacuum/compaction with dictionary rebuild". Returns
// whether compaction actually ran.
func (s *Store) Vacuum(watermark float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.next == 0 {
		return false
	}
	deadFraction := float64(s.deleted.GetCardinality()) / float64(s.next)
	if deadFraction <= watermark {
		return false
	}

	live := roaring.New()
	live.AddRange(0, uint64(s.next))
	live = roaring.AndNot(live, s.deleted)

	newRowOf := make(map[uint64]int, live.GetCardinality())
	newRowID := make([]uint64, 0, live.GetCardinality())
	newColumns := make(map[string]*Column, len(s.columns))
	for name, col := range s.columns {
		newColumns[name] = newColumn(col.kind)
	}
	keepStrIDs := make(map[uint32]struct{})

	it := live.Iterator()
	newIdx := 0
	for it.HasNext() {
		oldRow := int(it.Next())
		rowID := s.rowID[oldRow]
		newRowOf[rowID] = newIdx
		newRowID = append(newRowID, rowID)
		for name, col := range s.columns {
			nc := newColumns[name]
			nc.ensureLen(newIdx + 1)
			if oldRow >= len(col.valid) || !col.valid[oldRow] {
				continue
			}
			nc.valid[newIdx] = true
			switch col.kind {
			case veles.PropInt64:
				nc.i64[newIdx] = col.i64[oldRow]
			case veles.PropFloat64:
				nc.f64[newIdx] = col.f64[oldRow]
			case veles.PropBool:
				nc.b[newIdx] = col.b[oldRow]
			case veles.PropString:
				nc.strID[newIdx] = col.strID[oldRow]
				keepStrIDs[col.strID[oldRow]] = struct{}{}
			case veles.PropTimestamp:
				nc.ts[newIdx] = col.ts[oldRow]
			}
		}
		newIdx++
	}

	remap := s.dict.Rebuild(keepStrIDs)
	for _, col := range newColumns {
		if col.kind != veles.PropString {
			continue
		}
		for i, id := range col.strID {
			if col.valid[i] {
				col.strID[i] = remap[id]
			}
		}
	}

	s.columns = newColumns
	s.rowOf = newRowOf
	s.rowID = newRowID
	s.next = newIdx
	s.deleted = roaring.New()
	return true
}
