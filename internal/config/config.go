// Package config holds the engine configuration. All options flow through
// explicit parameters; the only environment variable the core honors is
// GITHUB_SCANNER_FILE_LIMIT.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// FileLimitEnvVar is the only environment variable read by the core.
const FileLimitEnvVar = "GITHUB_SCANNER_FILE_LIMIT"

// Config is the full engine configuration.
type Config struct {
	// RemoteToken is the optional bearer token for the code-forge API.
	// When empty the client operates unauthenticated with lower limits.
	RemoteToken string

	// MaxConcurrentFiles caps the per-batch worker pool.
	MaxConcurrentFiles int
	// MaxConcurrentAPI caps in-flight remote calls.
	MaxConcurrentAPI int

	CacheEnabled    bool
	CacheTTL        time.Duration
	CacheMaxEntries int

	StreamingEnabled   bool
	StreamingThreshold int64 // bytes; files at or above stream chunk-wise

	MemoryThreshold uint64 // bytes of process RSS before batch halving

	// BatchSize overrides the governor-derived batch size when > 0.
	BatchSize int

	// Timeout applies per remote call.
	Timeout time.Duration

	// FileLimitOverride caps files per scan when > 0; sourced from
	// GITHUB_SCANNER_FILE_LIMIT by ApplyEnvironment.
	FileLimitOverride int

	// TrainingDataPath is the directory for training cases and
	// prevention rules.
	TrainingDataPath string

	// CheckoutDir is the base directory holding local copies of repository
	// code, one subdirectory per "owner/repo". The validator reads these;
	// a repository with no checkout is persisted unvalidated.
	CheckoutDir string

	// ScanTimeout is the soft ceiling for a whole-repository scan.
	ScanTimeout time.Duration

	// ScheduleInterval is the scheduler pass interval.
	ScheduleInterval time.Duration
}

// Default returns the engine defaults for an authenticated client.
// Normalize adjusts concurrency downward when no token is configured.
func Default() Config {
	return Config{
		MaxConcurrentFiles: 8,
		MaxConcurrentAPI:   5,
		CacheEnabled:       true,
		CacheTTL:           5 * time.Minute,
		CacheMaxEntries:    2000,
		StreamingEnabled:   true,
		StreamingThreshold: 1 << 20,  // 1 MiB
		MemoryThreshold:    200 << 20, // 200 MiB
		Timeout:            30 * time.Second,
		ScanTimeout:        15 * time.Minute,
		ScheduleInterval:   60 * time.Minute,
		TrainingDataPath:   "data/training",
		CheckoutDir:        "data/checkouts",
	}
}

// Normalize fills zero values with defaults and lowers concurrency caps for
// unauthenticated operation.
func (c *Config) Normalize() {
	def := Default()
	if c.MaxConcurrentFiles <= 0 {
		c.MaxConcurrentFiles = def.MaxConcurrentFiles
	}
	if c.MaxConcurrentAPI <= 0 {
		c.MaxConcurrentAPI = def.MaxConcurrentAPI
	}
	if c.RemoteToken == "" {
		if c.MaxConcurrentFiles > 4 {
			c.MaxConcurrentFiles = 4
		}
		if c.MaxConcurrentAPI > 3 {
			c.MaxConcurrentAPI = 3
		}
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = def.CacheTTL
	}
	if c.CacheMaxEntries <= 0 {
		c.CacheMaxEntries = def.CacheMaxEntries
	}
	if c.StreamingThreshold <= 0 {
		c.StreamingThreshold = def.StreamingThreshold
	}
	if c.MemoryThreshold == 0 {
		c.MemoryThreshold = def.MemoryThreshold
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.ScanTimeout <= 0 {
		c.ScanTimeout = def.ScanTimeout
	}
	if c.ScheduleInterval <= 0 {
		c.ScheduleInterval = def.ScheduleInterval
	}
	if c.TrainingDataPath == "" {
		c.TrainingDataPath = def.TrainingDataPath
	}
	if c.CheckoutDir == "" {
		c.CheckoutDir = def.CheckoutDir
	}
}

// Authenticated reports whether a remote token is configured.
func (c *Config) Authenticated() bool {
	return c.RemoteToken != ""
}

// ApplyEnvironment reads GITHUB_SCANNER_FILE_LIMIT into FileLimitOverride.
// Invalid values are logged and ignored.
func (c *Config) ApplyEnvironment() {
	raw := os.Getenv(FileLimitEnvVar)
	if raw == "" {
		return
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		log.Warn().Str("value", raw).Str("var", FileLimitEnvVar).Msg("Ignoring invalid file limit override")
		return
	}
	c.FileLimitOverride = limit
}
