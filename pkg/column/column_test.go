package column

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/velesdb/veles/pkg/veles"
)

func TestSetGetRoundTripPerType(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Set(1, "age", veles.Int64Value(30)))
	require.NoError(t, s.Set(1, "score", veles.Float64Value(1.5)))
	require.NoError(t, s.Set(1, "active", veles.BoolValue(true)))
	require.NoError(t, s.Set(1, "name", veles.StringValue("alice")))
	now := time.Now().UTC()
	require.NoError(t, s.Set(1, "seen", veles.TimestampValue(now)))

	v, ok := s.Get(1, "age")
	require.True(t, ok)
	require.Equal(t, int64(30), v.I64)

	v, ok = s.Get(1, "name")
	require.True(t, ok)
	require.Equal(t, "alice", v.Str)

	v, ok = s.Get(1, "seen")
	require.True(t, ok)
	require.True(t, now.Equal(v.Time))
}

func TestTypeMismatchRejected(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Set(1, "age", veles.Int64Value(1)))
	err := s.Set(2, "age", veles.StringValue("nope"))
	require.Error(t, err)
	kind, ok := veles.KindOf(err)
	require.True(t, ok)
	require.Equal(t, veles.KindInvalidValue, kind)
}

func TestDeleteIsIdempotentAndExcludesRow(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Set(1, "age", veles.Int64Value(1)))
	s.Delete(1)
	s.Delete(1)
	require.False(t, s.Contains(1))
	_, ok := s.Get(1, "age")
	require.False(t, ok)
	require.Equal(t, 0, s.Len())
}

func TestReinsertAfterDeleteReusesSlotAndClearsTombstone(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Set(1, "age", veles.Int64Value(1)))
	s.Delete(1)
	require.False(t, s.Contains(1))

	require.NoError(t, s.Set(1, "age", veles.Int64Value(2)))
	require.True(t, s.Contains(1))
	v, ok := s.Get(1, "age")
	require.True(t, ok)
	require.Equal(t, int64(2), v.I64)
	require.Equal(t, 1, s.Len())

	row, ok := s.rowOf[1]
	require.True(t, ok)
	require.Equal(t, 0, row, "reinsertion should reuse the original dense slot")
}

func TestStringColumnSharesDictionary(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Set(1, "name", veles.StringValue("alice")))
	require.NoError(t, s.Set(2, "city", veles.StringValue("alice")))
	id1, ok1 := s.dict.Lookup("alice")
	require.True(t, ok1)
	col, ok := s.columns["name"]
	require.True(t, ok)
	require.Equal(t, id1, col.strID[0])
	cityCol := s.columns["city"]
	require.Equal(t, id1, cityCol.strID[0])
}

func TestFilterEqAndRangeAndComposition(t *testing.T) {
	s := NewStore()
	for i := uint64(1); i <= 5; i++ {
		require.NoError(t, s.Set(i, "age", veles.Int64Value(int64(i)*10)))
		require.NoError(t, s.Set(i, "tier", veles.StringValue("gold")))
	}
	require.NoError(t, s.Set(6, "age", veles.Int64Value(60)))
	require.NoError(t, s.Set(6, "tier", veles.StringValue("silver")))

	f := And(
		Range("age", veles.Int64Value(20), veles.PropertyValue{}, true, false),
		Eq("tier", veles.StringValue("gold")),
	)
	ids := MatchingRowIDs(s, f)
	require.ElementsMatch(t, []uint64{2, 3, 4, 5}, ids)
}

func TestFilterExcludesDeletedRows(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Set(1, "age", veles.Int64Value(10)))
	require.NoError(t, s.Set(2, "age", veles.Int64Value(10)))
	s.Delete(1)
	ids := MatchingRowIDs(s, Eq("age", veles.Int64Value(10)))
	require.Equal(t, []uint64{2}, ids)
}

func TestFilterNotMatchesComplementOfLiveRows(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Set(1, "age", veles.Int64Value(10)))
	require.NoError(t, s.Set(2, "age", veles.Int64Value(20)))
	ids := MatchingRowIDs(s, Not(Eq("age", veles.Int64Value(10))))
	require.Equal(t, []uint64{2}, ids)
}

func TestIsNullAndIsNotNull(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Set(1, "age", veles.Int64Value(10)))
	require.NoError(t, s.Set(2, "age", veles.NullValue()))
	require.NoError(t, s.Set(3, "other", veles.Int64Value(1))) // row 3 never sets "age"

	nullIDs := MatchingRowIDs(s, IsNull("age"))
	require.ElementsMatch(t, []uint64{2, 3}, nullIDs)

	notNullIDs := MatchingRowIDs(s, IsNotNull("age"))
	require.Equal(t, []uint64{1}, notNullIDs)
}

func TestLikeAndILikeWildcards(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Set(1, "name", veles.StringValue("Alice Smith")))
	require.NoError(t, s.Set(2, "name", veles.StringValue("bob jones")))

	require.Equal(t, []uint64{1}, MatchingRowIDs(s, Like("name", "Alice%")))
	require.ElementsMatch(t, []uint64{1, 2}, MatchingRowIDs(s, ILike("name", "%S%")))
	require.Empty(t, MatchingRowIDs(s, Like("name", "alice%"))) // case-sensitive miss
}

func TestTTLExpireSweepDeletesExpiredRows(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Set(1, "age", veles.Int64Value(1)))
	require.NoError(t, s.Set(2, "age", veles.Int64Value(2)))
	require.NoError(t, s.SetTTL(1, time.Now().Add(-time.Hour)))
	require.NoError(t, s.SetTTL(2, time.Now().Add(time.Hour)))

	n := s.ExpireSweep(time.Now())
	require.Equal(t, 1, n)
	require.False(t, s.Contains(1))
	require.True(t, s.Contains(2))
}

func TestVacuumCompactsAndRebuildsDictionary(t *testing.T) {
	s := NewStore()
	for i := uint64(1); i <= 10; i++ {
		require.NoError(t, s.Set(i, "name", veles.StringValue("row")))
	}
	for i := uint64(1); i <= 8; i++ {
		s.Delete(i)
	}
	ran := s.Vacuum(0.5)
	require.True(t, ran)
	require.Equal(t, 2, s.Len())
	for i := uint64(9); i <= 10; i++ {
		v, ok := s.Get(i, "name")
		require.True(t, ok)
		require.Equal(t, "row", v.Str)
	}
	require.Equal(t, uint64(0), s.deleted.GetCardinality())
}

func TestVacuumNoopBelowWatermark(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Set(1, "age", veles.Int64Value(1)))
	require.NoError(t, s.Set(2, "age", veles.Int64Value(2)))
	s.Delete(1)
	require.False(t, s.Vacuum(0.9))
}
