package fulltext

import (
	"strings"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/cespare/xxhash/v2"
)

// Trigram is a substring prefilter over 3-character windows, per §4.F
// "3-character windows (padded) over text fields produce a second
// inverted index (RoaringBitmap postings)". Unlike the teacher, which has
// no trigram index at all, keys here are xxhash-hashed rather than raw
// 3-byte strings: VelesDB's trigram index is expected to sit in the
// cross-store query path at much larger scale, where hashing the key once
// is cheaper than repeated short-string map lookups.
type Trigram struct {
	mu sync.RWMutex

	postings    map[uint64]*posting // hash(trigram) -> matching doc ids
	docTrigrams map[uint64][]uint64 // doc id -> trigram hashes it was indexed under, for Remove
}

// NewTrigram creates an empty trigram index.
func NewTrigram() *Trigram {
	return &Trigram{
		postings:    make(map[uint64]*posting),
		docTrigrams: make(map[uint64][]uint64),
	}
}

// trigramsOf slides a 3-rune window over the lowercased, space-padded
// text. Padding lets short fields (length 1-2) still produce at least one
// trigram and lets prefix/suffix queries anchor against the boundary.
func trigramsOf(s string) []string {
	padded := "  " + strings.ToLower(s) + "  "
	runes := []rune(padded)
	if len(runes) < 3 {
		return nil
	}
	out := make([]string, 0, len(runes)-2)
	for i := 0; i+3 <= len(runes); i++ {
		out = append(out, string(runes[i:i+3]))
	}
	return out
}

func hashTrigram(t string) uint64 { return xxhash.Sum64String(t) }

// rawTrigrams slides a 3-rune window over s with no boundary padding. A
// pattern's literal run can occur anywhere inside an indexed field, so its
// required trigrams must be ones guaranteed to appear verbatim in the
// document's own windows — which rules out the padded boundary trigrams
// trigramsOf produces for the run in isolation.
func rawTrigrams(s string) []string {
	runes := []rune(strings.ToLower(s))
	if len(runes) < 3 {
		return nil
	}
	out := make([]string, 0, len(runes)-2)
	for i := 0; i+3 <= len(runes); i++ {
		out = append(out, string(runes[i:i+3]))
	}
	return out
}

// Index records text under id, replacing any prior entry for id.
func (tr *Trigram) Index(id uint64, text string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	tr.removeLocked(id)

	trigrams := trigramsOf(text)
	if len(trigrams) == 0 {
		return
	}
	seen := make(map[uint64]struct{}, len(trigrams))
	hashes := make([]uint64, 0, len(trigrams))
	for _, t := range trigrams {
		h := hashTrigram(t)
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		hashes = append(hashes, h)
		p := tr.postings[h]
		if p == nil {
			p = newPosting()
			tr.postings[h] = p
		}
		p.add(id)
	}
	tr.docTrigrams[id] = hashes
}

// Remove deletes id from the trigram index.
func (tr *Trigram) Remove(id uint64) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.removeLocked(id)
}

func (tr *Trigram) removeLocked(id uint64) {
	hashes, ok := tr.docTrigrams[id]
	if !ok {
		return
	}
	for _, h := range hashes {
		if p, ok := tr.postings[h]; ok {
			p.remove(id)
			if p.len() == 0 {
				delete(tr.postings, h)
			}
		}
	}
	delete(tr.docTrigrams, id)
}

// literalRuns splits a LIKE/ILIKE pattern on its wildcard characters (%
// matches any run, _ matches one char) and returns the literal substrings
// between them, which are safe to derive trigrams from.
func literalRuns(pattern string) []string {
	var runs []string
	var cur strings.Builder
	for _, c := range pattern {
		if c == '%' || c == '_' {
			if cur.Len() > 0 {
				runs = append(runs, cur.String())
				cur.Reset()
			}
			continue
		}
		cur.WriteRune(c)
	}
	if cur.Len() > 0 {
		runs = append(runs, cur.String())
	}
	return runs
}

// Candidates returns a conservative superset of document ids that might
// match a LIKE/ILIKE pattern: the intersection of postings for every
// trigram derivable from the pattern's literal runs. A nil return means
// the pattern had no run long enough to produce a trigram (e.g. "a_b") and
// callers must fall back to scanning every row, per §4.F "LIKE/ILIKE
// delegate to the trigram index when available."
func (tr *Trigram) Candidates(pattern string) *roaring.Bitmap {
	tr.mu.RLock()
	defer tr.mu.RUnlock()

	required := make(map[uint64]struct{})
	for _, run := range literalRuns(pattern) {
		// Runs shorter than 3 runes can't contribute a reliable trigram
		// (we don't know what surrounds them in the indexed field), so
		// they're skipped rather than used to narrow the candidate set.
		for _, t := range rawTrigrams(run) {
			required[hashTrigram(t)] = struct{}{}
		}
	}
	if len(required) == 0 {
		return nil
	}

	var result *roaring.Bitmap
	for h := range required {
		p, ok := tr.postings[h]
		if !ok {
			return roaring.New() // a required trigram has no documents at all
		}
		b := p.bitmap()
		if result == nil {
			result = b.Clone()
			continue
		}
		result.And(b)
	}
	return result
}

// Count returns the number of indexed documents.
func (tr *Trigram) Count() int {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return len(tr.docTrigrams)
}
