package column

import "github.com/velesdb/veles/pkg/veles"

// RowSnapshot is one row's resolved values, used to round-trip a Store
// through an external persistence layer without that layer needing to know
// about dictionary ids or dense row indices.
type RowSnapshot struct {
	RowID  uint64
	Values map[string]veles.PropertyValue
}

// Snapshot resolves every live row to its plain values, suitable for
// serialization by a caller (e.g. the badger-backed adapter in pkg/graph)
// without reaching into Store internals.
func (s *Store) Snapshot() []RowSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]RowSnapshot, 0, s.next)
	live := s.liveBitmap()
	it := live.Iterator()
	for it.HasNext() {
		row := int(it.Next())
		rowID := s.rowID[row]
		values := make(map[string]veles.PropertyValue)
		for name, col := range s.columns {
			if row >= len(col.valid) || !col.valid[row] {
				continue
			}
			if col.kind == veles.PropString {
				values[name] = veles.StringValue(s.dict.String(col.strID[row]))
			} else {
				values[name] = col.valueAt(row)
			}
		}
		out = append(out, RowSnapshot{RowID: rowID, Values: values})
	}
	return out
}

// LoadSnapshot populates a fresh Store from previously captured rows.
func LoadSnapshot(rows []RowSnapshot) *Store {
	s := NewStore()
	for _, row := range rows {
		for name, v := range row.Values {
			_ = s.Set(row.RowID, name, v)
		}
	}
	return s
}
