package fulltext

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchRanksByBM25Score(t *testing.T) {
	idx := NewDefault()
	idx.IndexDocument(1, "machine learning deep neural networks")
	idx.IndexDocument(2, "deep learning with tensorflow and pytorch")
	idx.IndexDocument(3, "database systems and query optimization")
	idx.IndexDocument(4, "natural language processing with transformers")

	assert.Equal(t, 4, idx.Count())

	results := idx.Search("deep learning", 10)
	require.NotEmpty(t, results)

	ids := make(map[uint64]bool)
	for _, r := range results {
		ids[r.ID] = true
	}
	assert.True(t, ids[1])
	assert.True(t, ids[2])
	assert.False(t, ids[3])
}

func TestSearchRespectsLimit(t *testing.T) {
	idx := NewDefault()
	for i := uint64(1); i <= 20; i++ {
		idx.IndexDocument(i, "repeated keyword phrase appears here")
	}
	results := idx.Search("keyword", 5)
	assert.Len(t, results, 5)
}

func TestRemoveDropsDocumentFromResults(t *testing.T) {
	idx := NewDefault()
	idx.IndexDocument(1, "alpha beta gamma")
	idx.IndexDocument(2, "alpha beta delta")

	idx.Remove(1)
	assert.Equal(t, 1, idx.Count())

	results := idx.Search("alpha", 10)
	require.Len(t, results, 1)
	assert.Equal(t, uint64(2), results[0].ID)
}

func TestIndexDocumentReplacesPriorText(t *testing.T) {
	idx := NewDefault()
	idx.IndexDocument(1, "original content about cats")
	idx.IndexDocument(1, "replaced content about dogs")

	text, ok := idx.GetDocument(1)
	require.True(t, ok)
	assert.Contains(t, text, "dogs")

	results := idx.Search("cats", 10)
	assert.Empty(t, results)
}

func TestSearchOnEmptyIndexReturnsNil(t *testing.T) {
	idx := NewDefault()
	assert.Nil(t, idx.Search("anything", 10))
}

func TestPrefixMatchScoresLowerThanExact(t *testing.T) {
	idx := NewDefault()
	idx.IndexDocument(1, "searchable text document")
	idx.IndexDocument(2, "search for something else")

	results := idx.Search("search", 10)
	require.Len(t, results, 2)
	// doc2 has an exact token match ("search"), doc1 only a prefix match
	// ("searchable" starts with "search"), so doc2 must rank first.
	assert.Equal(t, uint64(2), results[0].ID)
}

func TestPostingPromotesPastThreshold(t *testing.T) {
	p := newPosting()
	for i := uint64(0); i < postingPromoteThreshold+5; i++ {
		p.add(i)
	}
	assert.True(t, p.promoted())
	assert.Equal(t, postingPromoteThreshold+5, p.len())
	assert.True(t, p.contains(0))
	p.remove(0)
	assert.False(t, p.contains(0))
}
