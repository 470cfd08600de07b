package column

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/velesdb/veles/pkg/veles"
)

// propertyIndex accelerates equality lookups on one column by mapping each
// distinct value to the set of dense row indices holding it, so Eq no
// longer has to scan every row in the column.
type propertyIndex struct {
	byKey map[string]*roaring.Bitmap
}

func newPropertyIndex() *propertyIndex {
	return &propertyIndex{byKey: make(map[string]*roaring.Bitmap)}
}

func (pi *propertyIndex) add(key string, row int) {
	b, ok := pi.byKey[key]
	if !ok {
		b = roaring.New()
		pi.byKey[key] = b
	}
	b.Add(uint32(row))
}

func (pi *propertyIndex) remove(key string, row int) {
	if b, ok := pi.byKey[key]; ok {
		b.Remove(uint32(row))
	}
}

// indexKey produces a canonical string key for an equality lookup. It
// includes the Kind tag so, e.g., int64(0) and float64(0) never collide.
func indexKey(v veles.PropertyValue) string {
	switch v.Kind {
	case veles.PropInt64:
		return fmt.Sprintf("i:%d", v.I64)
	case veles.PropFloat64:
		return fmt.Sprintf("f:%g", v.F64)
	case veles.PropBool:
		return fmt.Sprintf("b:%t", v.Bool)
	case veles.PropString:
		return "s:" + v.Str
	case veles.PropTimestamp:
		return fmt.Sprintf("t:%d", v.Time.UnixNano())
	default:
		return "n:"
	}
}

// CreateIndex builds an equality index over column name, scanning every
// live row once. Re-creating an existing index rebuilds it from scratch.
// Creating an index on a column that has never been written is an error —
// there is nothing to index yet, per the same not-found convention Get
// uses for unknown columns.
func (s *Store) CreateIndex(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	col, ok := s.columns[name]
	if !ok {
		return veles.Newf(veles.KindInvalidValue, "column %q has no data to index", name).
			WithDetail("column", name)
	}
	if s.indexes == nil {
		s.indexes = make(map[string]*propertyIndex)
	}
	idx := newPropertyIndex()
	for row := 0; row < len(col.valid); row++ {
		if !col.valid[row] || s.deleted.Contains(uint32(row)) {
			continue
		}
		idx.add(indexKey(s.columnValueAt(col, row)), row)
	}
	s.indexes[name] = idx
	return nil
}

// DropIndex removes a previously built index. Dropping an unindexed column
// is a no-op.
func (s *Store) DropIndex(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.indexes, name)
}

// ListIndexes returns the names of every column with a built index.
func (s *Store) ListIndexes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.indexes))
	for name := range s.indexes {
		names = append(names, name)
	}
	return names
}

// columnValueAt resolves a column's cell the same way valueAt does, except
// it also dereferences string dictionary ids — valueAt alone can't do that
// since it doesn't have access to the Store's Dictionary.
func (s *Store) columnValueAt(col *Column, row int) veles.PropertyValue {
	if col.kind == veles.PropString {
		if row >= len(col.valid) || !col.valid[row] {
			return veles.NullValue()
		}
		return veles.StringValue(s.dict.String(col.strID[row]))
	}
	return col.valueAt(row)
}

// indexLookup returns the bitmap of rows equal to key in column name, and
// whether an index exists for that column at all.
func (s *Store) indexLookup(name, key string) (*roaring.Bitmap, bool) {
	idx, ok := s.indexes[name]
	if !ok {
		return nil, false
	}
	b, ok := idx.byKey[key]
	if !ok {
		return roaring.New(), true
	}
	return b, true
}
