// Package config handles VelesDB configuration via environment variables and
// an optional YAML file.
//
// Configuration is loaded with LoadFromEnv() or LoadFromFile() and can be
// validated with Validate() before use. A YAML file, when present, supplies
// defaults that environment variables then override — env vars always win,
// matching the precedence embedded collections and sidecar processes expect.
//
// Example Usage:
//
//	cfg := config.LoadFromEnv()
//	if err := cfg.Validate(); err != nil {
//		log.Fatalf("invalid config: %v", err)
//	}
//
//	fmt.Printf("data dir: %s, ef_search: %d\n",
//		cfg.Database.DataDir, cfg.HNSW.EfSearch)
//
// Environment Variables:
//
//   - VELESDB_DATA_DIR="./data"
//   - VELESDB_WAL_SYNC_MODE="fsync" | "batched" | "none"
//   - VELESDB_WAL_BATCH_INTERVAL="10ms"
//   - VELESDB_HNSW_EF_SEARCH=100
//   - VELESDB_HNSW_EF_CONSTRUCTION=200
//   - VELESDB_HNSW_M=16
//   - VELESDB_STORAGE_MODE="full" | "sq8" | "binary"
//   - VELESDB_LOG_LEVEL="INFO"
//   - VELESDB_LOG_FORMAT="json"
//
// For the complete list, see the Config struct field documentation.
package config

import (
	"fmt"
	"os"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all VelesDB configuration.
//
// Configuration is organized into logical sections:
//   - Database: data directory and WAL durability settings
//   - HNSW: default vector index tuning applied to new collections
//   - Runtime: Go runtime memory/GC tuning and internal pooling
//   - Logging: structured logging settings
//   - Features: optional behaviors (see FeaturesConfig)
//
// Use LoadFromEnv() or LoadFromFile() to build a Config.
type Config struct {
	Database DatabaseConfig    `yaml:"database"`
	HNSW     HNSWConfig        `yaml:"hnsw"`
	Runtime  RuntimeConfig     `yaml:"runtime"`
	Logging  LoggingConfig     `yaml:"logging"`
	Features FeaturesConfig    `yaml:"features"`
}

// DatabaseConfig holds storage and durability settings shared by every
// collection opened against this process.
type DatabaseConfig struct {
	// DataDir is the root directory each collection's storage engine and
	// WAL segments are rooted under.
	DataDir string `yaml:"data_dir"`
	// ReadOnly is loaded from env/YAML but no package consults it; mutating
	// operations are not rejected when it is set.
	ReadOnly bool `yaml:"read_only"`
	// WALSyncMode controls how aggressively the WAL fsyncs: "fsync" syncs
	// every append, "batched" syncs on WALBatchInterval, "none" relies on
	// the OS page cache alone.
	WALSyncMode string `yaml:"wal_sync_mode"`
	// WALBatchInterval is the fsync period used when WALSyncMode is "batched".
	WALBatchInterval time.Duration `yaml:"wal_batch_interval"`
	// VacuumThreshold is a dead-fraction (0.0-1.0), range-checked by
	// Validate. No package reads it: Flush does not vacuum the payload heap
	// or the column store.
	VacuumThreshold float64 `yaml:"vacuum_threshold"`
}

// HNSWConfig holds the default vector index parameters applied when a
// collection is created without an explicit veles.HNSWParams override.
type HNSWConfig struct {
	// M is the max bidirectional links per node per layer.
	M int `yaml:"m"`
	// EfConstruction controls index-build recall/speed tradeoff.
	EfConstruction int `yaml:"ef_construction"`
	// EfSearch controls query-time recall/speed tradeoff.
	EfSearch int `yaml:"ef_search"`
	// StorageMode is the default quantization applied to new collections:
	// "full", "sq8", or "binary".
	StorageMode string `yaml:"storage_mode"`
}

// RuntimeConfig holds Go runtime tuning and internal pooling settings.
type RuntimeConfig struct {
	// MemoryLimit is the soft memory limit (GOMEMLIMIT) in bytes, 0 = unlimited.
	MemoryLimit int64 `yaml:"-"`
	// MemoryLimitStr is the human-readable form (e.g. "2GB", "512MB").
	MemoryLimitStr string `yaml:"memory_limit"`
	// GCPercent controls GC aggressiveness (GOGC); 100 is the Go default.
	GCPercent int `yaml:"gc_percent"`
	// BufferPoolEnabled controls pooling of the result row slices used by
	// the query executor (pkg/pool).
	BufferPoolEnabled bool `yaml:"buffer_pool_enabled"`
	// BufferPoolMaxSize is the largest slice capacity returned to the pool;
	// it does not cap the number of pooled slices.
	BufferPoolMaxSize int `yaml:"buffer_pool_max_size"`
	// PlanCacheEnabled and PlanCacheSize are loaded from env/YAML but no
	// package reads them; parsed VelesQL statements are not cached.
	PlanCacheEnabled bool `yaml:"plan_cache_enabled"`
	// PlanCacheSize is the statement-count setting paired with PlanCacheEnabled.
	PlanCacheSize int `yaml:"plan_cache_size"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is one of DEBUG, INFO, WARN, ERROR.
	Level string `yaml:"level"`
	// Format is "json" or "console".
	Format string `yaml:"format"`
	// Output is "stdout", "stderr", or a file path.
	Output string `yaml:"output"`
	// SlowQueryThreshold is loaded from env/YAML but no package reads it;
	// slow queries are not logged.
	SlowQueryThreshold time.Duration `yaml:"slow_query_threshold"`
}

// FeaturesConfig holds optional/experimental behavior toggles.
//
// These mirror the runtime feature-flag package (IsSQ8DefaultEnabled and
// friends) — Config supplies the process-startup defaults, the flags
// package allows overriding them at runtime (e.g. from an admin endpoint
// or a test). The flags are stored only: no package outside pkg/config
// reads them, so toggling one does not change storage, full-text or
// query execution behavior.
type FeaturesConfig struct {
	// SQ8Default is the flag for int8 scalar quantization as the default
	// storage mode of new collections.
	SQ8Default bool `yaml:"sq8_default"`
	// TrigramPrefilter is the flag for narrowing full-text candidates with
	// the trigram index before BM25 scoring.
	TrigramPrefilter bool `yaml:"trigram_prefilter"`
	// ParallelPlanner is the flag for running independent legs of a fused
	// or joined query concurrently.
	ParallelPlanner bool `yaml:"parallel_planner"`
}

// LoadFromEnv loads configuration from environment variables only, applying
// defaults for anything unset. It never touches the filesystem.
func LoadFromEnv() *Config {
	cfg := defaultConfig()
	applyEnv(cfg)
	return cfg
}

// LoadFromFile loads configuration from a YAML file, then overlays any
// VELESDB_* environment variables on top of it. A missing file is not an
// error: the zero value behaves as if the file were empty, so callers can
// pass an optional path unconditionally.
func LoadFromFile(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: reading %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}
	applyEnv(cfg)
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DataDir:          "./data",
			ReadOnly:         false,
			WALSyncMode:      "fsync",
			WALBatchInterval: 10 * time.Millisecond,
			VacuumThreshold:  0.3,
		},
		HNSW: HNSWConfig{
			M:              16,
			EfConstruction: 200,
			EfSearch:       100,
			StorageMode:    "full",
		},
		Runtime: RuntimeConfig{
			MemoryLimitStr:    "0",
			GCPercent:         100,
			BufferPoolEnabled: true,
			BufferPoolMaxSize: 1000,
			PlanCacheEnabled:  true,
			PlanCacheSize:     256,
		},
		Logging: LoggingConfig{
			Level:              "INFO",
			Format:             "json",
			Output:             "stdout",
			SlowQueryThreshold: 500 * time.Millisecond,
		},
		Features: FeaturesConfig{
			SQ8Default:        false,
			TrigramPrefilter:  true,
			ParallelPlanner:   true,
		},
	}
}

// applyEnv overlays VELESDB_* environment variables onto an already
// file-or-default-populated Config. Unset variables leave the existing
// value untouched.
func applyEnv(cfg *Config) {
	cfg.Database.DataDir = getEnv("VELESDB_DATA_DIR", cfg.Database.DataDir)
	cfg.Database.ReadOnly = getEnvBool("VELESDB_READ_ONLY", cfg.Database.ReadOnly)
	cfg.Database.WALSyncMode = getEnv("VELESDB_WAL_SYNC_MODE", cfg.Database.WALSyncMode)
	cfg.Database.WALBatchInterval = getEnvDuration("VELESDB_WAL_BATCH_INTERVAL", cfg.Database.WALBatchInterval)
	cfg.Database.VacuumThreshold = getEnvFloat("VELESDB_VACUUM_THRESHOLD", cfg.Database.VacuumThreshold)

	cfg.HNSW.M = getEnvInt("VELESDB_HNSW_M", cfg.HNSW.M)
	cfg.HNSW.EfConstruction = getEnvInt("VELESDB_HNSW_EF_CONSTRUCTION", cfg.HNSW.EfConstruction)
	cfg.HNSW.EfSearch = getEnvInt("VELESDB_HNSW_EF_SEARCH", cfg.HNSW.EfSearch)
	cfg.HNSW.StorageMode = getEnv("VELESDB_STORAGE_MODE", cfg.HNSW.StorageMode)

	cfg.Runtime.MemoryLimitStr = getEnv("VELESDB_MEMORY_LIMIT", cfg.Runtime.MemoryLimitStr)
	cfg.Runtime.MemoryLimit = parseMemorySize(cfg.Runtime.MemoryLimitStr)
	cfg.Runtime.GCPercent = getEnvInt("VELESDB_GC_PERCENT", cfg.Runtime.GCPercent)
	cfg.Runtime.BufferPoolEnabled = getEnvBool("VELESDB_BUFFER_POOL_ENABLED", cfg.Runtime.BufferPoolEnabled)
	cfg.Runtime.BufferPoolMaxSize = getEnvInt("VELESDB_BUFFER_POOL_MAX_SIZE", cfg.Runtime.BufferPoolMaxSize)
	cfg.Runtime.PlanCacheEnabled = getEnvBool("VELESDB_PLAN_CACHE_ENABLED", cfg.Runtime.PlanCacheEnabled)
	cfg.Runtime.PlanCacheSize = getEnvInt("VELESDB_PLAN_CACHE_SIZE", cfg.Runtime.PlanCacheSize)

	cfg.Logging.Level = getEnv("VELESDB_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("VELESDB_LOG_FORMAT", cfg.Logging.Format)
	cfg.Logging.Output = getEnv("VELESDB_LOG_OUTPUT", cfg.Logging.Output)
	cfg.Logging.SlowQueryThreshold = getEnvDuration("VELESDB_SLOW_QUERY_THRESHOLD", cfg.Logging.SlowQueryThreshold)

	cfg.Features.SQ8Default = getEnvBool("VELESDB_SQ8_DEFAULT", cfg.Features.SQ8Default)
	cfg.Features.TrigramPrefilter = getEnvBool("VELESDB_TRIGRAM_PREFILTER", cfg.Features.TrigramPrefilter)
	cfg.Features.ParallelPlanner = getEnvBool("VELESDB_PARALLEL_PLANNER", cfg.Features.ParallelPlanner)
}

// Validate checks the configuration for invalid values. Call it after
// LoadFromEnv/LoadFromFile and before opening any collection.
func (c *Config) Validate() error {
	switch c.Database.WALSyncMode {
	case "fsync", "batched", "none":
	default:
		return fmt.Errorf("invalid wal sync mode: %q", c.Database.WALSyncMode)
	}
	if c.Database.DataDir == "" {
		return fmt.Errorf("database data dir must not be empty")
	}
	if c.Database.VacuumThreshold < 0 || c.Database.VacuumThreshold > 1 {
		return fmt.Errorf("vacuum threshold must be in [0,1], got %f", c.Database.VacuumThreshold)
	}
	if c.HNSW.M <= 0 {
		return fmt.Errorf("invalid hnsw M: %d", c.HNSW.M)
	}
	if c.HNSW.EfSearch <= 0 || c.HNSW.EfConstruction <= 0 {
		return fmt.Errorf("invalid hnsw ef_search/ef_construction: %d/%d", c.HNSW.EfSearch, c.HNSW.EfConstruction)
	}
	switch c.HNSW.StorageMode {
	case "full", "sq8", "binary":
	default:
		return fmt.Errorf("invalid storage mode: %q", c.HNSW.StorageMode)
	}
	return nil
}

// String returns a string representation of the Config safe for logging.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{DataDir: %s, WALSyncMode: %s, HNSW: {M:%d EfSearch:%d}, StorageMode: %s}",
		c.Database.DataDir, c.Database.WALSyncMode,
		c.HNSW.M, c.HNSW.EfSearch, c.HNSW.StorageMode,
	)
}

// Helper functions for environment variable parsing.

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		val = strings.ToLower(val)
		return val == "true" || val == "1" || val == "yes" || val == "on"
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(val); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultVal
}

// parseMemorySize parses a human-readable memory size string.
// Supports: "1024", "1KB", "1MB", "1GB", "1TB", "0", "unlimited".
func parseMemorySize(s string) int64 {
	s = strings.TrimSpace(strings.ToUpper(s))
	if s == "" || s == "0" || s == "UNLIMITED" {
		return 0
	}

	s = strings.TrimSuffix(s, "B")

	var multiplier int64 = 1
	switch {
	case strings.HasSuffix(s, "K"):
		multiplier = 1024
		s = strings.TrimSuffix(s, "K")
	case strings.HasSuffix(s, "M"):
		multiplier = 1024 * 1024
		s = strings.TrimSuffix(s, "M")
	case strings.HasSuffix(s, "G"):
		multiplier = 1024 * 1024 * 1024
		s = strings.TrimSuffix(s, "G")
	case strings.HasSuffix(s, "T"):
		multiplier = 1024 * 1024 * 1024 * 1024
		s = strings.TrimSuffix(s, "T")
	}

	val, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return val * multiplier
}

// FormatMemorySize formats bytes as a human-readable string.
func FormatMemorySize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
		TB = GB * 1024
	)

	switch {
	case bytes >= TB:
		return fmt.Sprintf("%.2f TB", float64(bytes)/float64(TB))
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// ApplyRuntimeMemory applies the runtime memory settings to the Go runtime.
// Should be called early in process startup before heavy allocations.
func (c *RuntimeConfig) ApplyRuntimeMemory() {
	if c.MemoryLimit > 0 {
		debug.SetMemoryLimit(c.MemoryLimit)
	}
	if c.GCPercent != 100 {
		debug.SetGCPercent(c.GCPercent)
	}
}
