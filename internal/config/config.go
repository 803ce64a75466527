// Package config loads the capd.yaml file: registry location, cache
// bounds, monitor thresholds, benchmark workload, and analytics
// settings. Durations are expressed in seconds, matching the file
// format's integer fields.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/arclight-ai/capd/internal/monitor"
)

// File is the top-level capd.yaml structure.
type File struct {
	Registry  RegistryConfig  `yaml:"registry"`
	Caches    CachesConfig    `yaml:"caches"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Benchmark BenchmarkConfig `yaml:"benchmark"`
	Analytics AnalyticsConfig `yaml:"analytics"`
}

// RegistryConfig locates the capability definition tree.
type RegistryConfig struct {
	Root string `yaml:"root"`
}

// CachesConfig bounds the two resolution caches.
type CachesConfig struct {
	Tool      CacheConfig `yaml:"tool"`
	Extension CacheConfig `yaml:"extension"`
}

// CacheConfig is one cache's bounds. MaxEntriesBound caps how far the
// optimize action may grow the cache at runtime.
type CacheConfig struct {
	MaxEntries      int `yaml:"max_entries"`
	TTLSec          int `yaml:"ttl_sec"`
	MaxEntriesBound int `yaml:"max_entries_bound"`
}

// TTL returns the configured TTL as a duration.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSec) * time.Second
}

// MonitorConfig parameterizes the sampling loop and recommendations.
type MonitorConfig struct {
	IntervalSec int        `yaml:"interval_sec"`
	HistorySize int        `yaml:"history_size"`
	Thresholds  Thresholds `yaml:"thresholds"`
}

// Interval returns the configured sampling interval as a duration.
func (m MonitorConfig) Interval() time.Duration {
	return time.Duration(m.IntervalSec) * time.Second
}

// Thresholds is the file-format counterpart of monitor.Thresholds.
type Thresholds struct {
	LowHitRate         float64 `yaml:"low_hit_rate"`
	HighHitRate        float64 `yaml:"high_hit_rate"`
	MemWarnPercent     float64 `yaml:"mem_warn_percent"`
	MemCriticalPercent float64 `yaml:"mem_critical_percent"`
	SlowExecutionMS    int     `yaml:"slow_execution_ms"`
	MinLookups         int64   `yaml:"min_lookups"`
}

// ToMonitor converts the file thresholds into monitor thresholds.
func (t Thresholds) ToMonitor() monitor.Thresholds {
	return monitor.Thresholds{
		LowHitRate:         t.LowHitRate,
		HighHitRate:        t.HighHitRate,
		MemWarnPercent:     t.MemWarnPercent,
		MemCriticalPercent: t.MemCriticalPercent,
		SlowExecution:      time.Duration(t.SlowExecutionMS) * time.Millisecond,
		MinLookups:         t.MinLookups,
	}
}

// BenchmarkConfig fixes the synthetic benchmark workload.
type BenchmarkConfig struct {
	Operations       int      `yaml:"operations"`
	Capabilities     []string `yaml:"capabilities"`
	Profile          string   `yaml:"profile"`
	TimeoutSec       int      `yaml:"timeout_sec"`
	ExcellentUnderMS int      `yaml:"excellent_under_ms"`
	GoodUnderMS      int      `yaml:"good_under_ms"`
	FairUnderMS      int      `yaml:"fair_under_ms"`
}

// ToMonitor converts the file benchmark settings into the monitor's
// benchmark config.
func (b BenchmarkConfig) ToMonitor() monitor.BenchmarkConfig {
	return monitor.BenchmarkConfig{
		Operations:     b.Operations,
		Capabilities:   b.Capabilities,
		Profile:        b.Profile,
		Timeout:        time.Duration(b.TimeoutSec) * time.Second,
		ExcellentUnder: time.Duration(b.ExcellentUnderMS) * time.Millisecond,
		GoodUnder:      time.Duration(b.GoodUnderMS) * time.Millisecond,
		FairUnder:      time.Duration(b.FairUnderMS) * time.Millisecond,
	}
}

// AnalyticsConfig controls the persisted execution history.
type AnalyticsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Defaults mirror the resolvers' documented defaults: tool cache 100
// entries / 300s, extension cache 50 entries / 300s, 5s sampling.
func Default() *File {
	return &File{
		Registry: RegistryConfig{Root: "capabilities"},
		Caches: CachesConfig{
			Tool:      CacheConfig{MaxEntries: 100, TTLSec: 300, MaxEntriesBound: 1000},
			Extension: CacheConfig{MaxEntries: 50, TTLSec: 300, MaxEntriesBound: 500},
		},
		Monitor: MonitorConfig{
			IntervalSec: 5,
			HistorySize: 100,
		},
		Benchmark: BenchmarkConfig{
			Operations: 100,
			TimeoutSec: 5,
		},
	}
}

// LoadFile reads, parses, and validates a YAML config file.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses and validates YAML config data. Omitted sections keep
// their defaults.
func Parse(data []byte) (*File, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *File) error {
	if cfg.Registry.Root == "" {
		return fmt.Errorf("config: registry.root is required")
	}
	if err := validateCache("caches.tool", cfg.Caches.Tool); err != nil {
		return err
	}
	if err := validateCache("caches.extension", cfg.Caches.Extension); err != nil {
		return err
	}
	if cfg.Monitor.IntervalSec <= 0 {
		return fmt.Errorf("config: monitor.interval_sec must be positive")
	}
	if cfg.Monitor.HistorySize <= 0 {
		return fmt.Errorf("config: monitor.history_size must be positive")
	}
	if cfg.Benchmark.Operations <= 0 {
		return fmt.Errorf("config: benchmark.operations must be positive")
	}
	if cfg.Analytics.Enabled && cfg.Analytics.Path == "" {
		return fmt.Errorf("config: analytics.path is required when analytics is enabled")
	}
	return nil
}

func validateCache(section string, c CacheConfig) error {
	if c.MaxEntries <= 0 {
		return fmt.Errorf("config: %s.max_entries must be positive", section)
	}
	if c.TTLSec <= 0 {
		return fmt.Errorf("config: %s.ttl_sec must be positive", section)
	}
	if c.MaxEntriesBound > 0 && c.MaxEntriesBound < c.MaxEntries {
		return fmt.Errorf("config: %s.max_entries_bound is below max_entries", section)
	}
	return nil
}
