package graph

import (
	"sort"

	"github.com/velesdb/veles/pkg/veles"
)

// IndexKind distinguishes the two property index flavors from §4.D.
type IndexKind int

const (
	HashIndex IndexKind = iota
	RangeIndex
)

type indexKey struct {
	label    string
	property string
}

// hashIndex supports equality lookups: value -> set of node ids.
type hashIndex struct {
	byValue map[veles.PropertyValue]map[uint64]struct{}
}

func newHashIndex() *hashIndex {
	return &hashIndex{byValue: make(map[veles.PropertyValue]map[uint64]struct{})}
}

func (h *hashIndex) add(v veles.PropertyValue, nodeID uint64) {
	if h.byValue[v] == nil {
		h.byValue[v] = make(map[uint64]struct{})
	}
	h.byValue[v][nodeID] = struct{}{}
}

func (h *hashIndex) remove(v veles.PropertyValue, nodeID uint64) {
	if set := h.byValue[v]; set != nil {
		delete(set, nodeID)
		if len(set) == 0 {
			delete(h.byValue, v)
		}
	}
}

func (h *hashIndex) lookup(v veles.PropertyValue) []uint64 {
	set := h.byValue[v]
	out := make([]uint64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// rangeEntry is one (value, node) pair kept in sorted order by value.
type rangeEntry struct {
	value  veles.PropertyValue
	nodeID uint64
}

// rangeIndex supports ordered (<, <=, >, >=, BETWEEN) lookups via a sorted
// slice, consulted by the executor during MATCH planning per §4.D.
type rangeIndex struct {
	entries []rangeEntry
}

func newRangeIndex() *rangeIndex { return &rangeIndex{} }

func (r *rangeIndex) add(v veles.PropertyValue, nodeID uint64) {
	i := sort.Search(len(r.entries), func(i int) bool { return compareValues(r.entries[i].value, v) >= 0 })
	r.entries = append(r.entries, rangeEntry{})
	copy(r.entries[i+1:], r.entries[i:])
	r.entries[i] = rangeEntry{value: v, nodeID: nodeID}
}

func (r *rangeIndex) remove(v veles.PropertyValue, nodeID uint64) {
	for i, e := range r.entries {
		if e.nodeID == nodeID && valuesEqual(e.value, v) {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return
		}
	}
}

// between returns node ids whose indexed value lies within [min, max]
// (either bound optional).
func (r *rangeIndex) between(min, max veles.PropertyValue, hasMin, hasMax bool) []uint64 {
	var out []uint64
	for _, e := range r.entries {
		if hasMin && compareValues(e.value, min) < 0 {
			continue
		}
		if hasMax && compareValues(e.value, max) > 0 {
			continue
		}
		out = append(out, e.nodeID)
	}
	return out
}

func valuesEqual(a, b veles.PropertyValue) bool { return a == b }

func compareValues(a, b veles.PropertyValue) int {
	switch a.Kind {
	case veles.PropInt64:
		switch {
		case a.I64 < b.I64:
			return -1
		case a.I64 > b.I64:
			return 1
		}
		return 0
	case veles.PropFloat64:
		switch {
		case a.F64 < b.F64:
			return -1
		case a.F64 > b.F64:
			return 1
		}
		return 0
	case veles.PropTimestamp:
		switch {
		case a.Time.Before(b.Time):
			return -1
		case a.Time.After(b.Time):
			return 1
		}
		return 0
	case veles.PropString:
		switch {
		case a.Str < b.Str:
			return -1
		case a.Str > b.Str:
			return 1
		}
		return 0
	default:
		return 0
	}
}

// CreatePropertyIndex creates a hash or range index on (label, property),
// backfilling it from every existing node with that label, per §4.D
// "optional per (label, property) pair, created on demand."
func (s *Store) CreatePropertyIndex(label, property string, kind IndexKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := indexKey{label: label, property: property}

	switch kind {
	case HashIndex:
		idx := newHashIndex()
		s.hashIndexes[key] = idx
		for id := range s.nodesByLabel[label] {
			if n, ok := s.nodes[id]; ok {
				if v, ok := n.Properties[property]; ok {
					idx.add(v, id)
				}
			}
		}
	case RangeIndex:
		idx := newRangeIndex()
		s.rangeIndexes[key] = idx
		for id := range s.nodesByLabel[label] {
			if n, ok := s.nodes[id]; ok {
				if v, ok := n.Properties[property]; ok {
					idx.add(v, id)
				}
			}
		}
	}
}

// DropIndex removes a previously created index, if any.
func (s *Store) DropIndex(label, property string, kind IndexKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := indexKey{label: label, property: property}
	switch kind {
	case HashIndex:
		delete(s.hashIndexes, key)
	case RangeIndex:
		delete(s.rangeIndexes, key)
	}
}

// ListIndexes returns every currently configured (label, property, kind).
func (s *Store) ListIndexes() []struct {
	Label    string
	Property string
	Kind     IndexKind
} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]struct {
		Label    string
		Property string
		Kind     IndexKind
	}, 0, len(s.hashIndexes)+len(s.rangeIndexes))
	for k := range s.hashIndexes {
		out = append(out, struct {
			Label    string
			Property string
			Kind     IndexKind
		}{k.label, k.property, HashIndex})
	}
	for k := range s.rangeIndexes {
		out = append(out, struct {
			Label    string
			Property string
			Kind     IndexKind
		}{k.label, k.property, RangeIndex})
	}
	return out
}

// LookupEq returns node ids matching label/property==value via the hash
// index, if one exists for that pair.
func (s *Store) LookupEq(label, property string, value veles.PropertyValue) ([]uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.hashIndexes[indexKey{label: label, property: property}]
	if !ok {
		return nil, false
	}
	return idx.lookup(value), true
}

// LookupRange returns node ids matching label/property in [min,max] via the
// range index, if one exists for that pair.
func (s *Store) LookupRange(label, property string, min, max veles.PropertyValue, hasMin, hasMax bool) ([]uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.rangeIndexes[indexKey{label: label, property: property}]
	if !ok {
		return nil, false
	}
	return idx.between(min, max, hasMin, hasMax), true
}

// indexNodeLocked adds n to the label index and every matching property
// index. Caller must hold s.mu for writing.
func (s *Store) indexNodeLocked(n *Node) {
	if n.Label != "" {
		if s.nodesByLabel[n.Label] == nil {
			s.nodesByLabel[n.Label] = make(map[uint64]struct{})
		}
		s.nodesByLabel[n.Label][n.ID] = struct{}{}
	}
	for key, idx := range s.hashIndexes {
		if key.label != n.Label {
			continue
		}
		if v, ok := n.Properties[key.property]; ok {
			idx.add(v, n.ID)
		}
	}
	for key, idx := range s.rangeIndexes {
		if key.label != n.Label {
			continue
		}
		if v, ok := n.Properties[key.property]; ok {
			idx.add(v, n.ID)
		}
	}
}

// deindexNodeLocked removes n from the label index and every property
// index. Caller must hold s.mu for writing.
func (s *Store) deindexNodeLocked(n *Node) {
	if n.Label != "" && s.nodesByLabel[n.Label] != nil {
		delete(s.nodesByLabel[n.Label], n.ID)
	}
	for key, idx := range s.hashIndexes {
		if key.label != n.Label {
			continue
		}
		if v, ok := n.Properties[key.property]; ok {
			idx.remove(v, n.ID)
		}
	}
	for key, idx := range s.rangeIndexes {
		if key.label != n.Label {
			continue
		}
		if v, ok := n.Properties[key.property]; ok {
			idx.remove(v, n.ID)
		}
	}
}
