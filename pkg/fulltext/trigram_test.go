package fulltext

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrigramCandidatesMatchesSubstring(t *testing.T) {
	tr := NewTrigram()
	tr.Index(1, "hello world")
	tr.Index(2, "goodbye world")
	tr.Index(3, "nothing relevant")

	candidates := tr.Candidates("%hello%")
	require.NotNil(t, candidates)
	ids := candidates.ToArray()
	require.Len(t, ids, 1)
	assert.Equal(t, uint32(1), ids[0])
}

func TestTrigramCandidatesIntersectsMultipleRuns(t *testing.T) {
	tr := NewTrigram()
	tr.Index(1, "the quick brown fox")
	tr.Index(2, "the slow brown bear")
	tr.Index(3, "quick but not brown")

	candidates := tr.Candidates("%quick%brown%")
	require.NotNil(t, candidates)
	ids := candidates.ToArray()
	assert.ElementsMatch(t, []uint32{1, 3}, ids)
}

func TestTrigramCandidatesReturnsNilForWildcardOnlyPattern(t *testing.T) {
	tr := NewTrigram()
	tr.Index(1, "anything")
	assert.Nil(t, tr.Candidates("%"))
}

func TestTrigramCandidatesEmptyWhenNoDocumentHasTrigram(t *testing.T) {
	tr := NewTrigram()
	tr.Index(1, "hello world")

	candidates := tr.Candidates("%zzz%")
	require.NotNil(t, candidates)
	assert.Equal(t, uint64(0), candidates.GetCardinality())
}

func TestTrigramRemoveDropsDocument(t *testing.T) {
	tr := NewTrigram()
	tr.Index(1, "hello world")
	tr.Remove(1)

	assert.Equal(t, 0, tr.Count())
	candidates := tr.Candidates("%hello%")
	assert.Equal(t, uint64(0), candidates.GetCardinality())
}

func TestTrigramsOfPadsShortStrings(t *testing.T) {
	trigrams := trigramsOf("a")
	assert.NotEmpty(t, trigrams)
}

func TestLiteralRunsSplitsOnWildcards(t *testing.T) {
	runs := literalRuns("foo%bar_baz")
	assert.Equal(t, []string{"foo", "bar", "baz"}, runs)
}
