// SPDX-License-Identifier: MIT

// Package config loads process configuration with precedence
// ENV > file > defaults. Runtime-tunable settings (quality, cadence,
// thresholds) live in the store instead; this package only covers what
// must be known before the store is open.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// AppConfig is the boot-time configuration of the daemon.
type AppConfig struct {
	DataDir        string `yaml:"data_dir"`
	Listen         string `yaml:"listen"`
	LogLevel       string `yaml:"log_level"`
	LogFile        string `yaml:"log_file"`
	F1APIBase      string `yaml:"f1api_base"`
	TickSeconds    int    `yaml:"tick_seconds"`
	GlobalConc     int    `yaml:"global_concurrency"`
	IndexerConc    int    `yaml:"indexer_concurrency"`
	StopAfterDays  int    `yaml:"stop_after_days"`
	JitterSeconds  int    `yaml:"jitter_seconds"`
	DatabaseFile   string `yaml:"database_file"`
	ShutdownGraceS int    `yaml:"shutdown_grace_seconds"`
}

func defaults() AppConfig {
	return AppConfig{
		DataDir:        "/var/lib/racecarr",
		Listen:         ":8098",
		LogLevel:       "info",
		F1APIBase:      "https://f1api.dev",
		TickSeconds:    600,
		GlobalConc:     3,
		IndexerConc:    1,
		StopAfterDays:  14,
		JitterSeconds:  120,
		ShutdownGraceS: 10,
	}
}

// Load builds the effective configuration. path may be empty; when set it
// must point to a YAML file.
func Load(path string) (AppConfig, error) {
	cfg := defaults()

	if path != "" {
		raw, err := os.ReadFile(path) // #nosec G304 -- operator-supplied path
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.DataDir = ParseString("RACECARR_DATA", cfg.DataDir)
	cfg.Listen = ParseString("RACECARR_LISTEN", cfg.Listen)
	cfg.LogLevel = ParseString("RACECARR_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFile = ParseString("RACECARR_LOG_FILE", cfg.LogFile)
	cfg.F1APIBase = ParseString("RACECARR_F1API_BASE", cfg.F1APIBase)
	cfg.TickSeconds = ParseInt("RACECARR_TICK_SECONDS", cfg.TickSeconds)
	cfg.GlobalConc = ParseInt("RACECARR_GLOBAL_CONCURRENCY", cfg.GlobalConc)
	cfg.IndexerConc = ParseInt("RACECARR_INDEXER_CONCURRENCY", cfg.IndexerConc)
	cfg.StopAfterDays = ParseInt("RACECARR_STOP_AFTER_DAYS", cfg.StopAfterDays)
	cfg.JitterSeconds = ParseInt("RACECARR_JITTER_SECONDS", cfg.JitterSeconds)

	if cfg.DatabaseFile == "" {
		cfg.DatabaseFile = filepath.Join(cfg.DataDir, "racecarr.db")
	}
	if cfg.LogFile == "" {
		cfg.LogFile = filepath.Join(cfg.DataDir, "racecarr.log")
	}

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c AppConfig) validate() error {
	if c.TickSeconds < 60 {
		return fmt.Errorf("config: tick_seconds must be >= 60, got %d", c.TickSeconds)
	}
	if c.GlobalConc < 1 {
		return fmt.Errorf("config: global_concurrency must be >= 1, got %d", c.GlobalConc)
	}
	if c.IndexerConc < 1 {
		return fmt.Errorf("config: indexer_concurrency must be >= 1, got %d", c.IndexerConc)
	}
	if c.StopAfterDays < 1 {
		return fmt.Errorf("config: stop_after_days must be >= 1, got %d", c.StopAfterDays)
	}
	if c.JitterSeconds < 0 {
		return fmt.Errorf("config: jitter_seconds must be >= 0, got %d", c.JitterSeconds)
	}
	if !strings.Contains(c.Listen, ":") {
		return fmt.Errorf("config: listen %q is not a host:port address", c.Listen)
	}
	return nil
}
