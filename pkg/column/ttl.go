package column

import (
	"time"

	"github.com/velesdb/veles/pkg/veles"
)

// ttlColumn is the reserved column name holding per-row expiry timestamps,
// per §4.C's TTL expiry pass. Rows never get a ttl column unless the
// caller opts in via SetTTL.
const ttlColumn = "__ttl_expires_at"

// SetTTL marks rowID to expire at expiresAt.
func (s *Store) SetTTL(rowID uint64, expiresAt time.Time) error {
	return s.Set(rowID, ttlColumn, veles.TimestampValue(expiresAt))
}

// ExpireSweep deletes every row whose TTL has elapsed as of now, returning
// the count of rows expired. It is meant to run periodically from a
// background ticker, mirroring the teacher's periodic compaction loop.
func (s *Store) ExpireSweep(now time.Time) int {
	s.mu.Lock()
	col, ok := s.columns[ttlColumn]
	if !ok {
		s.mu.Unlock()
		return 0
	}
	var expired []int
	for row := 0; row < len(col.valid); row++ {
		if !col.valid[row] || s.deleted.Contains(uint32(row)) {
			continue
		}
		if col.ts[row] <= now.UnixNano() {
			expired = append(expired, row)
		}
	}
	for _, row := range expired {
		s.deleted.Add(uint32(row))
	}
	s.mu.Unlock()
	return len(expired)
}
