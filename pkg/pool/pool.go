// Package pool provides object pooling for VelesDB to reduce allocations.
//
// Object pooling reuses allocated objects instead of creating new ones,
// reducing GC pressure and improving throughput for high-frequency
// operations — specifically the row slices pkg/query builds for every
// executed statement.
//
// Usage:
//
//	// Get a slice from pool
//	rows := pool.GetRowSlice()
//
//	// Use the slice...
//	rows = append(rows, newRow)
package pool

import (
	"sync"
)

// PoolConfig configures object pooling behavior.
type PoolConfig struct {
	// Enabled controls whether pooling is active
	Enabled bool

	// MaxSize is the largest slice capacity PutRowSlice returns to the
	// pool; larger slices are dropped. It does not limit how many slices
	// the pool holds.
	MaxSize int
}

var globalConfig = PoolConfig{
	Enabled: true,
	MaxSize: 1000,
}

// Configure sets global pool configuration. Should be called early during
// initialization, per velesdb.Open's config.RuntimeConfig wiring.
func Configure(config PoolConfig) {
	globalConfig = config
	initPools()
}

func initPools() {
	rowSlicePool = sync.Pool{
		New: func() any {
			return make([][]interface{}, 0, 64)
		},
	}
}

// IsEnabled returns whether pooling is enabled.
func IsEnabled() bool {
	return globalConfig.Enabled
}

// =============================================================================
// Row Slice Pool (for query results)
// =============================================================================

var rowSlicePool = sync.Pool{
	New: func() any {
		return make([][]interface{}, 0, 64)
	},
}

// GetRowSlice returns a row slice from the pool.
// The returned slice has length 0 but may have capacity.
func GetRowSlice() [][]interface{} {
	if !globalConfig.Enabled {
		return make([][]interface{}, 0, 64)
	}
	return rowSlicePool.Get().([][]interface{})[:0]
}

// PutRowSlice returns a row slice to the pool. The slice is cleared
// before being pooled.
func PutRowSlice(rows [][]interface{}) {
	if !globalConfig.Enabled {
		return
	}
	if cap(rows) > globalConfig.MaxSize {
		return
	}
	for i := range rows {
		rows[i] = nil
	}
	rowSlicePool.Put(rows[:0])
}
