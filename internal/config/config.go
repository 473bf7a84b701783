// Livefeed - Resilient Streaming Client and Adaptive Consumption Queue
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/livefeed

// Package config loads layered configuration with Koanf v2:
// built-in defaults, then an optional YAML file, then environment
// variables. Precedence: ENV > File > Defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/livefeed/config.yaml",
	"/etc/livefeed/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "LIVEFEED_CONFIG_PATH"

// EnvPrefix namespaces all Livefeed environment variables.
const EnvPrefix = "LIVEFEED_"

// Config is the root configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Logging  LoggingConfig  `koanf:"logging"`
	Fetch    FetchConfig    `koanf:"fetch"`
	Feeds    FeedsConfig    `koanf:"feeds"`
	Backoff  BackoffConfig  `koanf:"backoff"`
	Queue    QueueConfig    `koanf:"queue"`
	Prefetch PrefetchConfig `koanf:"prefetch"`
	Advance  AdvanceConfig  `koanf:"advance"`
	Store    StoreConfig    `koanf:"store"`
}

// ServerConfig configures the local HTTP API.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`
}

// LoggingConfig configures the zerolog global logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // "json" or "console"
	Caller bool   `koanf:"caller"`
}

// FetchConfig points at the REST collaborator.
type FetchConfig struct {
	BaseURL string        `koanf:"base_url"`
	Timeout time.Duration `koanf:"timeout"`
}

// FeedsConfig configures the streaming endpoint and its two consumers.
type FeedsConfig struct {
	// URL is the streaming endpoint, ws:// or http:// (upgraded).
	URL string `koanf:"url"`

	Map     MapFeedConfig    `koanf:"map"`
	Filters FilterFeedConfig `koanf:"filters"`
}

// MapFeedConfig is the viewport-scoped feed. Bounds are normalized
// before connecting so equivalent viewports share a subscription.
type MapFeedConfig struct {
	Enabled   bool    `koanf:"enabled"`
	MinLat    float64 `koanf:"min_lat"`
	MinLon    float64 `koanf:"min_lon"`
	MaxLat    float64 `koanf:"max_lat"`
	MaxLon    float64 `koanf:"max_lon"`
	Precision int     `koanf:"precision"`
}

// FilterFeedConfig is the channel-filtered feed.
type FilterFeedConfig struct {
	Enabled  bool     `koanf:"enabled"`
	Channels []string `koanf:"channels"`
}

// BackoffConfig tunes the shared reconnect policy.
type BackoffConfig struct {
	BaseDelay   time.Duration `koanf:"base_delay"`
	CapDelay    time.Duration `koanf:"cap_delay"`
	MaxAttempts int           `koanf:"max_attempts"`
}

// QueueConfig tunes the consumption queue and smart-sort scoring.
type QueueConfig struct {
	PageSize   int    `koanf:"page_size"`
	SkipViewed bool   `koanf:"skip_viewed"`
	SortMode   string `koanf:"sort_mode"` // "newest" or "smart"

	DecayWindow      time.Duration `koanf:"decay_window"`
	VideoBonus       float64       `koanf:"video_bonus"`
	EngagementWeight float64       `koanf:"engagement_weight"`
	EngagementScale  float64       `koanf:"engagement_scale"`
}

// PrefetchConfig tunes the look-ahead warming window.
type PrefetchConfig struct {
	WindowSize    int     `koanf:"window_size"`
	RatePerSecond float64 `koanf:"rate_per_second"` // 0 = unlimited
	Burst         int     `koanf:"burst"`
}

// AdvanceConfig tunes the auto-advance timer.
type AdvanceConfig struct {
	Enabled bool          `koanf:"enabled"`
	Delay   time.Duration `koanf:"delay"`
}

// StoreConfig locates the BadgerDB holding durable local state.
type StoreConfig struct {
	Path     string `koanf:"path"`
	InMemory bool   `koanf:"in_memory"`
}

// defaultConfig returns a Config with all defaults applied. These are
// loaded first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8640,
			Timeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Fetch: FetchConfig{
			BaseURL: "",
			Timeout: 10 * time.Second,
		},
		Feeds: FeedsConfig{
			URL: "",
			Map: MapFeedConfig{
				Enabled:   false,
				Precision: 3,
			},
			Filters: FilterFeedConfig{
				Enabled:  false,
				Channels: []string{},
			},
		},
		Backoff: BackoffConfig{
			BaseDelay:   1 * time.Second,
			CapDelay:    30 * time.Second,
			MaxAttempts: 10,
		},
		Queue: QueueConfig{
			PageSize:         20,
			SkipViewed:       true,
			SortMode:         "newest",
			DecayWindow:      48 * time.Hour,
			VideoBonus:       0.25,
			EngagementWeight: 0.5,
			EngagementScale:  1000,
		},
		Prefetch: PrefetchConfig{
			WindowSize:    3,
			RatePerSecond: 0, // Unlimited
			Burst:         3,
		},
		Advance: AdvanceConfig{
			Enabled: false,
			Delay:   8 * time.Second,
		},
		Store: StoreConfig{
			Path:     "/data/livefeed",
			InMemory: false,
		},
	}
}

// Load builds the configuration from layered sources:
//  1. Defaults: built-in sensible defaults
//  2. Config file: optional YAML file (if one exists)
//  3. Environment variables: override any setting
func Load() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: config file (optional)
	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: environment variables (highest priority)
	// LIVEFEED_SERVER_PORT -> server.port
	// LIVEFEED_FEEDS_MAP_MIN_LAT -> feeds.map.min_lat
	envProvider := env.Provider(EnvPrefix, ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first config file that exists, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths lists config paths parsed as comma-separated slices
// when they arrive through environment variables.
var sliceConfigPaths = []string{
	"feeds.filters.channels",
}

// processSliceFields converts comma-separated string values to slices
// for known slice fields. Env vars come in as strings, but the config
// expects slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf paths.
// Section names are single words, so the first underscore delimits the
// section and the rest is the key: LIVEFEED_BACKOFF_BASE_DELAY ->
// backoff.base_delay. The two feed subsections get explicit mappings.
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, strings.ToLower(EnvPrefix)))
	if key == "" {
		return ""
	}

	for prefix, section := range map[string]string{
		"feeds_map_":     "feeds.map.",
		"feeds_filters_": "feeds.filters.",
	} {
		if strings.HasPrefix(key, prefix) {
			return section + key[len(prefix):]
		}
	}

	parts := strings.SplitN(key, "_", 2)
	if len(parts) != 2 {
		return key
	}
	return parts[0] + "." + parts[1]
}

// Validate checks the configuration for contradictions before anything
// starts up.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}

	if c.Backoff.BaseDelay <= 0 {
		return fmt.Errorf("backoff.base_delay must be positive")
	}
	if c.Backoff.CapDelay < c.Backoff.BaseDelay {
		return fmt.Errorf("backoff.cap_delay %v below base_delay %v", c.Backoff.CapDelay, c.Backoff.BaseDelay)
	}
	if c.Backoff.MaxAttempts < 0 {
		return fmt.Errorf("backoff.max_attempts must not be negative")
	}

	if c.Feeds.Map.Enabled || c.Feeds.Filters.Enabled {
		if c.Feeds.URL == "" {
			return fmt.Errorf("feeds.url required when a feed is enabled")
		}
	}
	if c.Feeds.Map.Enabled {
		m := c.Feeds.Map
		if m.MinLat >= m.MaxLat || m.MinLon >= m.MaxLon {
			return fmt.Errorf("feeds.map bounding box is empty")
		}
		if m.MinLat < -90 || m.MaxLat > 90 || m.MinLon < -180 || m.MaxLon > 180 {
			return fmt.Errorf("feeds.map bounding box out of range")
		}
	}
	if c.Feeds.Filters.Enabled && len(c.Feeds.Filters.Channels) == 0 {
		return fmt.Errorf("feeds.filters.channels required when the filter feed is enabled")
	}

	if c.Queue.PageSize < 1 {
		return fmt.Errorf("queue.page_size must be at least 1")
	}
	if mode := c.Queue.SortMode; mode != "newest" && mode != "smart" {
		return fmt.Errorf("queue.sort_mode %q unknown (newest or smart)", mode)
	}

	if c.Prefetch.WindowSize < 0 {
		return fmt.Errorf("prefetch.window_size must not be negative")
	}
	if c.Prefetch.RatePerSecond < 0 {
		return fmt.Errorf("prefetch.rate_per_second must not be negative")
	}

	if c.Advance.Enabled && c.Advance.Delay <= 0 {
		return fmt.Errorf("advance.delay must be positive when auto-advance is enabled")
	}

	if !c.Store.InMemory && c.Store.Path == "" {
		return fmt.Errorf("store.path required unless store.in_memory is set")
	}

	return nil
}
