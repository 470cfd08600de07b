package column

import (
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/velesdb/veles/pkg/veles"
)

// Column is one typed, append-only attribute vector. Every cell lives at a
// dense row index shared across all columns of a Store; a column never
// stores more than one Kind (§4.C "columns are typed").
type Column struct {
	kind  veles.PropertyKind
	valid []bool // false means the cell is SQL-null, per row index

	i64   []int64
	f64   []float64
	b     []bool
	strID []uint32 // dictionary ids, populated only when kind == PropString
	ts    []int64  // unix nanoseconds, populated only when kind == PropTimestamp
}

func newColumn(kind veles.PropertyKind) *Column {
	return &Column{kind: kind}
}

func (c *Column) ensureLen(n int) {
	for len(c.valid) < n {
		c.valid = append(c.valid, false)
		switch c.kind {
		case veles.PropInt64:
			c.i64 = append(c.i64, 0)
		case veles.PropFloat64:
			c.f64 = append(c.f64, 0)
		case veles.PropBool:
			c.b = append(c.b, false)
		case veles.PropString:
			c.strID = append(c.strID, 0)
		case veles.PropTimestamp:
			c.ts = append(c.ts, 0)
		}
	}
}

func (c *Column) valueAt(row int) veles.PropertyValue {
	if row >= len(c.valid) || !c.valid[row] {
		return veles.NullValue()
	}
	switch c.kind {
	case veles.PropInt64:
		return veles.Int64Value(c.i64[row])
	case veles.PropFloat64:
		return veles.Float64Value(c.f64[row])
	case veles.PropBool:
		return veles.BoolValue(c.b[row])
	case veles.PropString:
		return veles.PropertyValue{} // resolved by Store.Get, which owns the dictionary
	case veles.PropTimestamp:
		return veles.TimestampValue(time.Unix(0, c.ts[row]))
	default:
		return veles.NullValue()
	}
}

// Store is VelesDB's typed wide-column table for one collection's row
// metadata, per §4.C. Deletions are tracked by exactly one roaring.Bitmap
// (Invariant: "no duplicate tracking" — vacuum is the only path that
// actually reclaims space) and string columns share a single Dictionary.
type Store struct {
	mu      sync.RWMutex
	dict    *Dictionary
	columns map[string]*Column
	rowOf   map[uint64]int
	rowID   []uint64 // dense index -> row id, parallel to column slices
	next    int
	deleted *roaring.Bitmap
	indexes map[string]*propertyIndex
}

func NewStore() *Store {
	return &Store{
		dict:    NewDictionary(),
		columns: make(map[string]*Column),
		rowOf:   make(map[uint64]int),
		deleted: roaring.New(),
	}
}

func (s *Store) rowIndex(rowID uint64, create bool) (int, bool) {
	if idx, ok := s.rowOf[rowID]; ok {
		return idx, true
	}
	if !create {
		return 0, false
	}
	idx := s.next
	s.next++
	s.rowOf[rowID] = idx
	s.rowID = append(s.rowID, rowID)
	return idx, true
}

// Set writes value into column name for rowID, creating the column (typed
// by value.Kind) on first use. Writing a value whose Kind does not match an
// existing column's Kind is rejected — columns are typed for the store's
// lifetime outside of vacuum-driven dictionary rebuilds.
func (s *Store) Set(rowID uint64, name string, value veles.PropertyValue) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	col, exists := s.columns[name]
	if !exists {
		if value.Kind == veles.PropNull {
			return nil // nothing to type the column with yet
		}
		col = newColumn(value.Kind)
		s.columns[name] = col
	} else if value.Kind != veles.PropNull && col.kind != value.Kind {
		return veles.Newf(veles.KindInvalidValue, "column %q is typed %v, got %v", name, col.kind, value.Kind).
			WithDetail("column", name)
	}

	row, _ := s.rowIndex(rowID, true)
	col.ensureLen(row + 1)
	s.deleted.CheckedRemove(uint32(row)) // reinserting a previously-deleted id reuses its slot

	idx := s.indexes[name]
	if idx != nil && col.valid[row] {
		idx.remove(indexKey(s.columnValueAt(col, row)), row)
	}

	if value.Kind == veles.PropNull {
		col.valid[row] = false
		return nil
	}
	col.valid[row] = true
	switch col.kind {
	case veles.PropInt64:
		col.i64[row] = value.I64
	case veles.PropFloat64:
		col.f64[row] = value.F64
	case veles.PropBool:
		col.b[row] = value.Bool
	case veles.PropString:
		col.strID[row] = s.dict.Intern(value.Str)
	case veles.PropTimestamp:
		col.ts[row] = value.Time.UnixNano()
	}
	if idx != nil {
		idx.add(indexKey(value), row)
	}
	return nil
}

// Get reads column name for rowID. ok is false if the row is deleted,
// unknown, or the column has never been written for that row.
func (s *Store) Get(rowID uint64, name string) (veles.PropertyValue, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.rowOf[rowID]
	if !ok || s.deleted.Contains(uint32(row)) {
		return veles.PropertyValue{}, false
	}
	col, ok := s.columns[name]
	if !ok || row >= len(col.valid) || !col.valid[row] {
		return veles.PropertyValue{}, false
	}
	if col.kind == veles.PropString {
		return veles.StringValue(s.dict.String(col.strID[row])), true
	}
	return col.valueAt(row), true
}

// Delete tombstones rowID in the single deletion bitmap. Re-deleting an
// already-deleted or unknown row is a no-op, per the idempotent-delete
// convention used throughout VelesDB's stores.
func (s *Store) Delete(rowID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row, ok := s.rowOf[rowID]; ok {
		s.deleted.Add(uint32(row))
	}
}

func (s *Store) Contains(rowID uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rowOf[rowID]
	return ok && !s.deleted.Contains(uint32(row))
}

// Len reports the number of live (non-deleted) rows.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.next - int(s.deleted.GetCardinality())
}

// liveBitmap returns every non-deleted dense row index, 0..next-1.
func (s *Store) liveBitmap() *roaring.Bitmap {
	all := roaring.New()
	if s.next > 0 {
		all.AddRange(0, uint64(s.next))
	}
	return roaring.AndNot(all, s.deleted)
}

func (s *Store) rowIDAt(row int) uint64 { return s.rowID[row] }

// ColumnNames returns every column name ever written to the store, for
// callers (the query executor's `SELECT *` projection) that need the
// full schema rather than a single named column.
func (s *Store) ColumnNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.columns))
	for name := range s.columns {
		names = append(names, name)
	}
	return names
}

// RowIDs returns every live row id in ascending dense-index order, used
// as the default candidate universe for a SELECT with no vector or
// full-text predicate to drive it.
func (s *Store) RowIDs() []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	live := s.liveBitmap()
	out := make([]uint64, 0, live.GetCardinality())
	it := live.Iterator()
	for it.HasNext() {
		out = append(out, s.rowID[it.Next()])
	}
	return out
}
