// Package config loads mimic settings from ~/.mimic/config.yaml.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds the persisted settings. Zero values mean "use default";
// Load fills defaults in before returning.
type Config struct {
	LogDir         string  `yaml:"log_dir,omitempty"`
	LogLevel       string  `yaml:"log_level,omitempty"`
	CaptureContext *bool   `yaml:"capture_context,omitempty"`
	ReplaySpeed    float64 `yaml:"replay_speed,omitempty"`
}

// Dir returns the mimic dot-directory, ~/.mimic.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home: %w", err)
	}
	return filepath.Join(home, ".mimic"), nil
}

// Load reads config.yaml if present and applies defaults. A missing
// file is not an error.
func Load() (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	data, err := os.ReadFile(filepath.Join(dir, "config.yaml"))
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config.yaml: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config.yaml: %w", err)
	}
	cfg.applyDefaults(dir)
	return cfg, nil
}

func (c *Config) applyDefaults(dir string) {
	if c.LogDir == "" {
		c.LogDir = dir
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.CaptureContext == nil {
		on := true
		c.CaptureContext = &on
	}
	if c.ReplaySpeed <= 0 {
		c.ReplaySpeed = 1.0
	}
}

// Save writes the config back to config.yaml, creating the directory
// if needed.
func (c *Config) Save() error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, "config.yaml"), data, 0o644)
}
