package pool

import (
	"sync"
	"testing"
)

// =============================================================================
// Configuration Tests
// =============================================================================

func TestConfigure(t *testing.T) {
	origConfig := globalConfig
	defer func() {
		Configure(origConfig)
	}()

	t.Run("enable pooling", func(t *testing.T) {
		Configure(PoolConfig{Enabled: true, MaxSize: 500})

		if !IsEnabled() {
			t.Error("IsEnabled() = false, want true")
		}
		if globalConfig.MaxSize != 500 {
			t.Errorf("MaxSize = %d, want 500", globalConfig.MaxSize)
		}
	})

	t.Run("disable pooling", func(t *testing.T) {
		Configure(PoolConfig{Enabled: false, MaxSize: 1000})

		if IsEnabled() {
			t.Error("IsEnabled() = true, want false")
		}
	})
}

// =============================================================================
// Row Slice Pool Tests
// =============================================================================

func TestRowSlicePool(t *testing.T) {
	Configure(PoolConfig{Enabled: true, MaxSize: 1000})

	t.Run("get returns empty slice", func(t *testing.T) {
		rows := GetRowSlice()
		if len(rows) != 0 {
			t.Errorf("len = %d, want 0", len(rows))
		}
		if cap(rows) == 0 {
			t.Error("cap should be > 0 (pre-allocated)")
		}
		PutRowSlice(rows)
	})

	t.Run("put and reuse", func(t *testing.T) {
		rows := GetRowSlice()
		rows = append(rows, []interface{}{"test", 123})
		PutRowSlice(rows)

		rows2 := GetRowSlice()
		if len(rows2) != 0 {
			t.Errorf("reused slice len = %d, want 0", len(rows2))
		}
		PutRowSlice(rows2)
	})

	t.Run("oversized slices not pooled", func(t *testing.T) {
		Configure(PoolConfig{Enabled: true, MaxSize: 10})

		rows := make([][]interface{}, 0, 100)
		PutRowSlice(rows) // Should not panic, just not pool it

		Configure(PoolConfig{Enabled: true, MaxSize: 1000})
	})

	t.Run("disabled pooling creates new slices", func(t *testing.T) {
		Configure(PoolConfig{Enabled: false, MaxSize: 1000})
		defer Configure(PoolConfig{Enabled: true, MaxSize: 1000})

		rows := GetRowSlice()
		if rows == nil {
			t.Error("GetRowSlice returned nil when pooling disabled")
		}
		PutRowSlice(rows) // Should not panic
	})
}

// =============================================================================
// Concurrent Access Tests
// =============================================================================

func TestConcurrentPoolAccess(t *testing.T) {
	Configure(PoolConfig{Enabled: true, MaxSize: 1000})

	const goroutines = 100
	const iterations = 100

	t.Run("row slice pool concurrent", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(goroutines)

		for i := 0; i < goroutines; i++ {
			go func() {
				defer wg.Done()
				for j := 0; j < iterations; j++ {
					rows := GetRowSlice()
					rows = append(rows, []interface{}{j})
					PutRowSlice(rows)
				}
			}()
		}

		wg.Wait()
	})
}

// =============================================================================
// Benchmarks
// =============================================================================

func BenchmarkRowSlicePool(b *testing.B) {
	Configure(PoolConfig{Enabled: true, MaxSize: 1000})

	b.Run("pooled", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			rows := GetRowSlice()
			rows = append(rows, []interface{}{1, "test"})
			PutRowSlice(rows)
		}
	})

	b.Run("unpooled", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			rows := make([][]interface{}, 0, 64)
			rows = append(rows, []interface{}{1, "test"})
			_ = rows
		}
	})
}
