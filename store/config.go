package store

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds configuration for the Store and Reconciler.
type Config struct {
	// Table is the default DynamoDB table for registered types.
	// Default: "codex_entries"
	Table string `env:"CODEX_TABLE" envDefault:"codex_entries"`

	// ChunkSize is the number of records Refresh reads per query. It is kept
	// small so the deadline is checked at a fine granularity.
	// Default: 10
	ChunkSize int `env:"CODEX_REFRESH_CHUNK" envDefault:"10"`

	// RebuildChunkSize is the number of records Rebuild reads per query.
	// Default: 100
	RebuildChunkSize int `env:"CODEX_REBUILD_CHUNK" envDefault:"100"`

	// ScanCap bounds how many records one Refresh pass examines. It guards
	// against runaway loops and is not a correctness limit.
	// Default: 10000
	ScanCap int `env:"CODEX_REFRESH_SCAN_CAP" envDefault:"10000"`

	// ShortTTL is the expiry of the entity, list and id regions.
	// Default: 24h
	ShortTTL time.Duration `env:"CODEX_CACHE_SHORT_TTL" envDefault:"24h"`

	// LongTTL is the expiry of the distinct-value and projection regions.
	// Default: 168h
	LongTTL time.Duration `env:"CODEX_CACHE_LONG_TTL" envDefault:"168h"`

	// OwnerType and OwnerField select the records OwnersOf scans: entries of
	// OwnerType whose OwnerField holds the base id.
	OwnerType  string `env:"CODEX_OWNER_TYPE" envDefault:"Product"`
	OwnerField string `env:"CODEX_OWNER_FIELD" envDefault:"base"`

	// RefreshMargin is subtracted from a context deadline to leave time for
	// the last write to finish.
	// Default: 5s
	RefreshMargin time.Duration `env:"CODEX_REFRESH_MARGIN" envDefault:"5s"`

	// RefreshTypes lists the types the scheduled maintenance job refreshes.
	RefreshTypes []string `env:"CODEX_REFRESH_TYPES" envSeparator:","`
}

// DefaultConfig returns the defaults documented on Config.
func DefaultConfig() Config {
	return Config{
		Table:            "codex_entries",
		ChunkSize:        10,
		RebuildChunkSize: 100,
		ScanCap:          10000,
		ShortTTL:         24 * time.Hour,
		LongTTL:          7 * 24 * time.Hour,
		OwnerType:        "Product",
		OwnerField:       "base",
		RefreshMargin:    5 * time.Second,
	}
}

// LoadConfig reads Config from CODEX_* environment variables.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.validate()
	return cfg, nil
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	d := DefaultConfig()
	if c.Table == "" {
		c.Table = d.Table
	}
	if c.ChunkSize < 1 {
		c.ChunkSize = d.ChunkSize
	}
	if c.RebuildChunkSize < 1 {
		c.RebuildChunkSize = d.RebuildChunkSize
	}
	if c.ScanCap < c.ChunkSize {
		c.ScanCap = d.ScanCap
	}
	if c.ShortTTL <= 0 {
		c.ShortTTL = d.ShortTTL
	}
	if c.LongTTL <= 0 {
		c.LongTTL = d.LongTTL
	}
	if c.OwnerType == "" {
		c.OwnerType = d.OwnerType
	}
	if c.OwnerField == "" {
		c.OwnerField = d.OwnerField
	}
	if c.RefreshMargin < 0 {
		c.RefreshMargin = 0
	}
}
