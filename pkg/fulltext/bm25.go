package fulltext

import (
	"container/heap"
	"math"
	"strings"
	"sync"
)

// Result is one ranked hit.
type Result struct {
	ID    uint64
	Score float64
}

// termEntry is one inverted-index row: which documents contain the term
// (a promotable posting list) and each one's raw term frequency, which
// BM25 needs independently of set membership.
type termEntry struct {
	postings *posting
	freq     map[uint64]int
}

// Index provides BM25-ranked full-text search, generalizing the teacher's
// FulltextIndex from string to u64 document ids and from hardcoded
// k1/b constants to configurable ones per §4.F "tunable k1 and b".
type Index struct {
	mu sync.RWMutex

	k1, b float64

	documents    map[uint64]string
	docLengths   map[uint64]int
	avgDocLength float64
	docCount     int

	terms map[string]*termEntry
}

// New creates an index with the given BM25 parameters.
func New(k1, b float64) *Index {
	return &Index{
		k1:         k1,
		b:          b,
		documents:  make(map[uint64]string),
		docLengths: make(map[uint64]int),
		terms:      make(map[string]*termEntry),
	}
}

// NewDefault uses the standard BM25 defaults (k1=1.2, b=0.75).
func NewDefault() *Index { return New(1.2, 0.75) }

// IndexDocument adds or replaces a document's text under id.
func (idx *Index) IndexDocument(id uint64, text string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.removeLocked(id)

	tokens := tokenize(text)
	if len(tokens) == 0 {
		return
	}

	idx.documents[id] = text
	idx.docLengths[id] = len(tokens)
	idx.docCount++

	freq := make(map[string]int)
	for _, tok := range tokens {
		freq[tok]++
	}
	for term, f := range freq {
		entry := idx.terms[term]
		if entry == nil {
			entry = &termEntry{postings: newPosting(), freq: make(map[uint64]int)}
			idx.terms[term] = entry
		}
		entry.postings.add(id)
		entry.freq[id] = f
	}
	idx.updateAvgDocLength()
}

// Remove deletes a document from the index, if present.
func (idx *Index) Remove(id uint64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeLocked(id)
}

func (idx *Index) removeLocked(id uint64) {
	text, ok := idx.documents[id]
	if !ok {
		return
	}
	for _, tok := range tokenize(text) {
		entry, ok := idx.terms[tok]
		if !ok {
			continue
		}
		entry.postings.remove(id)
		delete(entry.freq, id)
		if entry.postings.len() == 0 {
			delete(idx.terms, tok)
		}
	}
	delete(idx.documents, id)
	delete(idx.docLengths, id)
	idx.docCount--
	idx.updateAvgDocLength()
}

func (idx *Index) updateAvgDocLength() {
	if idx.docCount == 0 {
		idx.avgDocLength = 0
		return
	}
	var total int
	for _, l := range idx.docLengths {
		total += l
	}
	idx.avgDocLength = float64(total) / float64(idx.docCount)
}

func (idx *Index) idf(term string) float64 {
	entry, ok := idx.terms[term]
	if !ok {
		return 0
	}
	df := float64(entry.postings.len())
	n := float64(idx.docCount)
	v := math.Log(1 + (n-df+0.5)/(df+0.5))
	if v < 0 {
		return 0
	}
	return v
}

func (idx *Index) scoreTerm(entry *termEntry, idf float64, scores map[uint64]float64) {
	for docID, tf := range entry.freq {
		docLen := float64(idx.docLengths[docID])
		num := float64(tf) * (idx.k1 + 1)
		den := float64(tf) + idx.k1*(1-idx.b+idx.b*(docLen/idx.avgDocLength))
		scores[docID] += idf * (num / den)
	}
}

// Search runs BM25 scoring over the query's terms and returns the top
// `limit` documents by score, using a partial min-heap rather than a full
// sort, per §4.F "top-k retrieval uses a partial heap sort". Prefix
// matches on indexed terms (not just exact matches) contribute at a
// reduced IDF, matching the teacher's prefix-boost behavior.
func (idx *Index) Search(query string, limit int) []Result {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.docCount == 0 || limit <= 0 {
		return nil
	}
	queryTerms := tokenize(query)
	if len(queryTerms) == 0 {
		return nil
	}

	scores := make(map[uint64]float64)
	for _, term := range queryTerms {
		if entry, ok := idx.terms[term]; ok {
			idx.scoreTerm(entry, idx.idf(term), scores)
		}
		for indexedTerm, entry := range idx.terms {
			if indexedTerm != term && strings.HasPrefix(indexedTerm, term) {
				idx.scoreTerm(entry, idx.idf(indexedTerm)*0.8, scores)
			}
		}
	}

	return topK(scores, limit)
}

// resultHeap is a min-heap on Score, used to keep only the top `limit`
// entries while scanning scores in a single pass.
type resultHeap []Result

func (h resultHeap) Len() int            { return len(h) }
func (h resultHeap) Less(i, j int) bool  { return h[i].Score < h[j].Score }
func (h resultHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *resultHeap) Push(x interface{}) { *h = append(*h, x.(Result)) }
func (h *resultHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func topK(scores map[uint64]float64, limit int) []Result {
	h := &resultHeap{}
	heap.Init(h)
	for id, score := range scores {
		if h.Len() < limit {
			heap.Push(h, Result{ID: id, Score: score})
			continue
		}
		if score > (*h)[0].Score {
			heap.Pop(h)
			heap.Push(h, Result{ID: id, Score: score})
		}
	}
	out := make([]Result, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(Result)
	}
	return out
}

// Count returns the number of indexed documents.
func (idx *Index) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.docCount
}

// GetDocument returns the original text stored for id.
func (idx *Index) GetDocument(id uint64) (string, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	text, ok := idx.documents[id]
	return text, ok
}
