package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"svckit/internal/logger"
)

// Config is the root configuration for heartbeatd.
type Config struct {
	Service ServiceConfig `json:"Service"`
	Sample  SampleConfig  `json:"Sample"`
	Logging logger.Config `json:"Logging"`
}

// ServiceConfig carries the host-registration settings.
type ServiceConfig struct {
	AutoStart bool `json:"AutoStart"`
}

// SampleConfig configures the heartbeat sampler.
type SampleConfig struct {
	Interval   time.Duration `json:"Interval"`
	FilePath   string        `json:"FilePath"`
	MaxSizeMB  int           `json:"MaxSizeMB"`
	MaxBackups int           `json:"MaxBackups"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	lc := logger.DefaultConfig()
	lc.FilePath = "log/heartbeatd/heartbeatd.log"
	return &Config{
		Sample: SampleConfig{
			Interval:   10 * time.Second,
			FilePath:   "log/heartbeatd/heartbeat.jsonl",
			MaxSizeMB:  20,
			MaxBackups: 3,
		},
		Logging: lc,
	}
}

// Merge applies non-zero values from other to this config.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	c.Service.AutoStart = other.Service.AutoStart

	if other.Sample.Interval != 0 {
		c.Sample.Interval = other.Sample.Interval
	}
	if other.Sample.FilePath != "" {
		c.Sample.FilePath = other.Sample.FilePath
	}
	if other.Sample.MaxSizeMB != 0 {
		c.Sample.MaxSizeMB = other.Sample.MaxSizeMB
	}
	if other.Sample.MaxBackups != 0 {
		c.Sample.MaxBackups = other.Sample.MaxBackups
	}

	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.FilePath != "" {
		c.Logging.FilePath = other.Logging.FilePath
	}
	if other.Logging.MaxSizeMB != 0 {
		c.Logging.MaxSizeMB = other.Logging.MaxSizeMB
	}
	if other.Logging.MaxBackups != 0 {
		c.Logging.MaxBackups = other.Logging.MaxBackups
	}
	if other.Logging.MaxAgeDays != 0 {
		c.Logging.MaxAgeDays = other.Logging.MaxAgeDays
	}
	c.Logging.Compress = other.Logging.Compress
	c.Logging.Console = other.Logging.Console
	c.Logging.Plain = other.Logging.Plain
}

// rawConfig is used for JSON unmarshaling with duration strings.
type rawConfig struct {
	Service ServiceConfig   `json:"Service"`
	Sample  rawSampleConfig `json:"Sample"`
	Logging logger.Config   `json:"Logging"`
}

type rawSampleConfig struct {
	Interval   string `json:"Interval"`
	FilePath   string `json:"FilePath"`
	MaxSizeMB  int    `json:"MaxSizeMB"`
	MaxBackups int    `json:"MaxBackups"`
}

// Load reads configuration from the specified file path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// LoadOrDefault reads configuration from path, falling back to defaults when
// the file does not exist. A file that exists but does not parse is an error.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultConfig(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// Parse parses configuration from JSON bytes.
func Parse(data []byte) (*Config, error) {
	var raw rawConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	parsed, err := convertRawConfig(&raw)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	cfg.Merge(parsed)
	return cfg, nil
}

func convertRawConfig(raw *rawConfig) (*Config, error) {
	cfg := &Config{
		Service: raw.Service,
		Sample: SampleConfig{
			FilePath:   raw.Sample.FilePath,
			MaxSizeMB:  raw.Sample.MaxSizeMB,
			MaxBackups: raw.Sample.MaxBackups,
		},
		Logging: raw.Logging,
	}

	if raw.Sample.Interval != "" {
		d, err := time.ParseDuration(raw.Sample.Interval)
		if err != nil {
			return nil, fmt.Errorf("invalid Sample.Interval duration: %w", err)
		}
		cfg.Sample.Interval = d
	}

	return cfg, nil
}
