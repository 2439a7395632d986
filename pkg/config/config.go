// Package config handles VanirDB planner configuration via YAML files and
// environment variables.
//
// Configuration Precedence (highest to lowest):
//  1. Command-line flags (--vertex-count-to-expand-existing, etc.)
//  2. Environment variables (VANIRDB_*)
//  3. Config file (config.yaml)
//  4. Built-in defaults
//
// Environment Variables (all use the VANIRDB_ prefix):
//
// Planner:
//   - VANIRDB_VERTEX_COUNT_TO_EXPAND_EXISTING=10
//   - VANIRDB_PLAN_CACHE_SIZE=256
//
// Catalog:
//   - VANIRDB_DATA_DIR="./data"
package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all VanirDB planner configuration.
type Config struct {
	Planner PlannerConfig `yaml:"planner"`
	Catalog CatalogConfig `yaml:"catalog"`
}

// PlannerConfig are the planner knobs.
type PlannerConfig struct {
	// VertexCountToExpandExisting is the maximum count of indexed vertices
	// which provoke an indexed lookup and then expand to existing, instead
	// of a regular expand. -1 turns the rewrite off.
	VertexCountToExpandExisting int64 `yaml:"vertex_count_to_expand_existing"`
	// PlanCacheSize bounds the query-text plan cache; 0 disables caching.
	PlanCacheSize int `yaml:"plan_cache_size"`
}

// CatalogConfig configures the index metadata store.
type CatalogConfig struct {
	// DataDir is where the catalog persists; empty runs in memory.
	DataDir string `yaml:"data_dir"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Planner: PlannerConfig{
			VertexCountToExpandExisting: 10,
			PlanCacheSize:               256,
		},
	}
}

// Load reads the optional config file, then applies environment overrides
// and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FindConfigFile returns the first existing default config path, or "".
func FindConfigFile() string {
	candidates := []string{"config.yaml", "config.yml", "vanirdb.yaml"}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

func (c *Config) applyEnv() error {
	if raw, ok := lookupEnv("VERTEX_COUNT_TO_EXPAND_EXISTING"); ok {
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid VANIRDB_VERTEX_COUNT_TO_EXPAND_EXISTING %q: %w", raw, err)
		}
		c.Planner.VertexCountToExpandExisting = value
	}
	if raw, ok := lookupEnv("PLAN_CACHE_SIZE"); ok {
		value, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("invalid VANIRDB_PLAN_CACHE_SIZE %q: %w", raw, err)
		}
		c.Planner.PlanCacheSize = value
	}
	if raw, ok := lookupEnv("DATA_DIR"); ok {
		c.Catalog.DataDir = raw
	}
	return nil
}

func lookupEnv(suffix string) (string, bool) {
	value, ok := os.LookupEnv("VANIRDB_" + suffix)
	return strings.TrimSpace(value), ok
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if v := c.Planner.VertexCountToExpandExisting; v < -1 {
		return fmt.Errorf("planner.vertex_count_to_expand_existing must be in [-1, %d], got %d",
			int64(math.MaxInt64), v)
	}
	if c.Planner.PlanCacheSize < 0 {
		return fmt.Errorf("planner.plan_cache_size must not be negative, got %d",
			c.Planner.PlanCacheSize)
	}
	return nil
}
