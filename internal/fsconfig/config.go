// Package fsconfig holds the process-wide configuration values the item
// index engine needs at its entry points (spec §6, §9 "avoid module-level
// singletons" — callers load one Config and pass it explicitly).
package fsconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// IndexConfig holds the four index-shape values the surrounding
// filesystem layer is responsible for supplying.
type IndexConfig struct {
	// L2PPageSize is P, the maximum number of entries per L2P page.
	L2PPageSize uint64 `yaml:"l2p_page_size"`
	// P2LPageSize is Q, the byte size of a P2L cluster.
	P2LPageSize uint64 `yaml:"p2l_page_size"`
	// ShardSize is S, the number of revisions combined into one pack.
	ShardSize uint64 `yaml:"shard_size"`
	// StreamBlockSize aligns prefetch windows and stream refills.
	StreamBlockSize uint64 `yaml:"stream_block_size"`
	// SpillDir is where builders create spill files past the
	// in-memory threshold. Empty means os.TempDir().
	SpillDir string `yaml:"spill_dir"`
	// DiskGuardEnabled attaches a diskguard.Guard to every builder's
	// spill buffer, failing a build with a clear error instead of a
	// raw ENOSPC when SpillDir's filesystem runs low.
	DiskGuardEnabled bool `yaml:"disk_guard_enabled"`
}

// CacheConfig bounds the four caches the readers share.
type CacheConfig struct {
	L2PHeaderEntries int `yaml:"l2p_header_entries"`
	L2PPageEntries   int `yaml:"l2p_page_entries"`
	P2LHeaderEntries int `yaml:"p2l_header_entries"`
	P2LPageEntries   int `yaml:"p2l_page_entries"`
}

// LoggingConfig controls the zap logger constructed for the engine.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls whether Prometheus collectors are registered.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// Config is the complete configuration for the item-index engine.
type Config struct {
	Index   IndexConfig   `yaml:"index"`
	Cache   CacheConfig   `yaml:"cache"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoadConfig loads a Config from a YAML file, applying defaults and
// validating the result.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Default returns a Config populated entirely with defaults, useful for
// tests and embedders that do not load a YAML file.
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

func setDefaults(cfg *Config) {
	if cfg.Index.L2PPageSize == 0 {
		cfg.Index.L2PPageSize = 8192
	}
	if cfg.Index.P2LPageSize == 0 {
		cfg.Index.P2LPageSize = 64 * 1024
	}
	if cfg.Index.ShardSize == 0 {
		cfg.Index.ShardSize = 1000
	}
	if cfg.Index.StreamBlockSize == 0 {
		cfg.Index.StreamBlockSize = 64 * 1024
	}

	if cfg.Cache.L2PHeaderEntries == 0 {
		cfg.Cache.L2PHeaderEntries = 64
	}
	if cfg.Cache.L2PPageEntries == 0 {
		cfg.Cache.L2PPageEntries = 1024
	}
	if cfg.Cache.P2LHeaderEntries == 0 {
		cfg.Cache.P2LHeaderEntries = 64
	}
	if cfg.Cache.P2LPageEntries == 0 {
		cfg.Cache.P2LPageEntries = 1024
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = "fsidx"
	}
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Index.L2PPageSize == 0 {
		return fmt.Errorf("index.l2p_page_size must be positive")
	}
	if c.Index.P2LPageSize == 0 {
		return fmt.Errorf("index.p2l_page_size must be positive")
	}
	if c.Index.ShardSize == 0 {
		return fmt.Errorf("index.shard_size must be positive")
	}
	if c.Index.StreamBlockSize == 0 {
		return fmt.Errorf("index.stream_block_size must be positive")
	}
	return nil
}
