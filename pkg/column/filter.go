package column

import (
	"strings"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/velesdb/veles/pkg/veles"
)

// Filter is a predicate over a Store's rows that evaluates to a
// *roaring.Bitmap of matching dense row indices, per §4.C: "filter
// evaluation composes bitmaps with AND/OR/NOT rather than rescanning rows
// for every compound clause."
type Filter interface {
	eval(s *Store) *roaring.Bitmap
}

type eqFilter struct {
	column string
	value  veles.PropertyValue
}

// Eq matches rows where column equals value. A PropNull value matches no
// rows, since a null cell is stored the same way as a never-written one;
// use IsNull to select null rows.
func Eq(column string, value veles.PropertyValue) Filter { return &eqFilter{column, value} }

func (f *eqFilter) eval(s *Store) *roaring.Bitmap {
	if f.value.Kind != veles.PropNull {
		if b, ok := s.indexLookup(f.column, indexKey(f.value)); ok {
			return b.Clone()
		}
	}

	out := roaring.New()
	col, ok := s.columns[f.column]
	if !ok {
		return out
	}
	for row := 0; row < len(col.valid); row++ {
		if !col.valid[row] {
			continue
		}
		if f.value.Kind == veles.PropString {
			if s.dict.String(col.strID[row]) == f.value.Str {
				out.Add(uint32(row))
			}
			continue
		}
		if valuesEqual(col.valueAt(row), f.value) {
			out.Add(uint32(row))
		}
	}
	return out
}

func valuesEqual(a, b veles.PropertyValue) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case veles.PropInt64:
		return a.I64 == b.I64
	case veles.PropFloat64:
		return a.F64 == b.F64
	case veles.PropBool:
		return a.Bool == b.Bool
	case veles.PropString:
		return a.Str == b.Str
	case veles.PropTimestamp:
		return a.Time.Equal(b.Time)
	default:
		return true
	}
}

type rangeFilter struct {
	column         string
	min, max       veles.PropertyValue
	hasMin, hasMax bool
}

// Range matches numeric or timestamp columns within [min, max], either
// bound optional (pass hasMin or hasMax as false to leave that side open).
func Range(column string, min, max veles.PropertyValue, hasMin, hasMax bool) Filter {
	return &rangeFilter{column: column, min: min, max: max, hasMin: hasMin, hasMax: hasMax}
}

func (f *rangeFilter) eval(s *Store) *roaring.Bitmap {
	out := roaring.New()
	col, ok := s.columns[f.column]
	if !ok {
		return out
	}
	for row := 0; row < len(col.valid); row++ {
		if !col.valid[row] {
			continue
		}
		v := col.valueAt(row)
		if f.hasMin && compare(v, f.min) < 0 {
			continue
		}
		if f.hasMax && compare(v, f.max) > 0 {
			continue
		}
		out.Add(uint32(row))
	}
	return out
}

// compare orders two PropertyValues of the same Kind; non-comparable kinds
// (string, bool) return 0, treating every value as in-range.
func compare(a, b veles.PropertyValue) int {
	switch a.Kind {
	case veles.PropInt64:
		switch {
		case a.I64 < b.I64:
			return -1
		case a.I64 > b.I64:
			return 1
		default:
			return 0
		}
	case veles.PropFloat64:
		switch {
		case a.F64 < b.F64:
			return -1
		case a.F64 > b.F64:
			return 1
		default:
			return 0
		}
	case veles.PropTimestamp:
		switch {
		case a.Time.Before(b.Time):
			return -1
		case a.Time.After(b.Time):
			return 1
		default:
			return 0
		}
	default:
		return 0
	}
}

type inFilter struct {
	column string
	values []veles.PropertyValue
}

// In matches rows whose column value equals any member of values.
func In(column string, values ...veles.PropertyValue) Filter { return &inFilter{column, values} }

func (f *inFilter) eval(s *Store) *roaring.Bitmap {
	out := roaring.New()
	for _, v := range f.values {
		out.Or(Eq(f.column, v).eval(s))
	}
	return out
}

type nullFilter struct {
	column string
	isNull bool
}

// IsNull matches rows where column is absent or explicitly null.
func IsNull(column string) Filter { return &nullFilter{column, true} }

// IsNotNull matches rows where column has a non-null value.
func IsNotNull(column string) Filter { return &nullFilter{column, false} }

func (f *nullFilter) eval(s *Store) *roaring.Bitmap {
	out := roaring.New()
	col, ok := s.columns[f.column]
	if !ok {
		if f.isNull && s.next > 0 {
			out.AddRange(0, uint64(s.next))
		}
		return out
	}
	for row := 0; row < s.next; row++ {
		valid := row < len(col.valid) && col.valid[row]
		if valid != f.isNull {
			out.Add(uint32(row))
		}
	}
	return out
}

// like implements SQL LIKE/ILIKE semantics (% and _ wildcards) by scanning
// every row of the column and matching its dictionary string. The trigram
// index in pkg/fulltext is not consulted: no candidate narrowing happens
// before this scan.
type likeFilter struct {
	column        string
	pattern       string
	caseSensitive bool
}

func Like(column, pattern string) Filter  { return &likeFilter{column, pattern, true} }
func ILike(column, pattern string) Filter { return &likeFilter{column, pattern, false} }

func (f *likeFilter) eval(s *Store) *roaring.Bitmap {
	out := roaring.New()
	col, ok := s.columns[f.column]
	if !ok || col.kind != veles.PropString {
		return out
	}
	pat := f.pattern
	if !f.caseSensitive {
		pat = strings.ToLower(pat)
	}
	for row := 0; row < len(col.valid); row++ {
		if !col.valid[row] {
			continue
		}
		val := s.dict.String(col.strID[row])
		cmp := val
		if !f.caseSensitive {
			cmp = strings.ToLower(cmp)
		}
		if likeMatch(cmp, pat) {
			out.Add(uint32(row))
		}
	}
	return out
}

// likeMatch implements SQL LIKE wildcard matching (% = any run, _ = one rune).
func likeMatch(s, pattern string) bool {
	return likeMatchRunes([]rune(s), []rune(pattern))
}

func likeMatchRunes(s, p []rune) bool {
	if len(p) == 0 {
		return len(s) == 0
	}
	if p[0] == '%' {
		if likeMatchRunes(s, p[1:]) {
			return true
		}
		for i := 0; i < len(s); i++ {
			if likeMatchRunes(s[i+1:], p[1:]) {
				return true
			}
		}
		return false
	}
	if len(s) == 0 {
		return false
	}
	if p[0] == '_' || p[0] == s[0] {
		return likeMatchRunes(s[1:], p[1:])
	}
	return false
}

// And, Or, Not compose filters via bitmap algebra rather than rescanning.
type andFilter struct{ left, right Filter }
type orFilter struct{ left, right Filter }
type notFilter struct{ inner Filter }

func And(left, right Filter) Filter { return &andFilter{left, right} }
func Or(left, right Filter) Filter  { return &orFilter{left, right} }
func Not(inner Filter) Filter       { return &notFilter{inner} }

func (f *andFilter) eval(s *Store) *roaring.Bitmap {
	return roaring.And(f.left.eval(s), f.right.eval(s))
}

func (f *orFilter) eval(s *Store) *roaring.Bitmap {
	return roaring.Or(f.left.eval(s), f.right.eval(s))
}

func (f *notFilter) eval(s *Store) *roaring.Bitmap {
	return roaring.AndNot(s.liveBitmap(), f.inner.eval(s))
}

// Eval evaluates f against the store's current rows, excluding deleted rows
// regardless of what the filter itself matched.
func Eval(s *Store, f Filter) *roaring.Bitmap {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if f == nil {
		return s.liveBitmap()
	}
	return roaring.AndNot(f.eval(s), s.deleted)
}

// MatchingRowIDs resolves a filter's bitmap to the row ids it selects.
func MatchingRowIDs(s *Store, f Filter) []uint64 {
	bm := Eval(s, f)
	ids := make([]uint64, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		ids = append(ids, s.rowIDAt(int(it.Next())))
	}
	return ids
}
