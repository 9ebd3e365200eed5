package main

import (
	"fmt"
	"os"
	"time"

	"github.com/aretw0/warden/internal/store"
	"gopkg.in/yaml.v3"
)

// poolConfig is the YAML shape of a pool definition. Durations are strings
// in Go duration syntax ("200ms", "5s").
type poolConfig struct {
	Workers      int          `yaml:"workers"`
	PollInterval string       `yaml:"poll_interval"`
	GracePeriod  string       `yaml:"grace_period"`
	TimeLimit    string       `yaml:"time_limit"`
	CountTo      int          `yaml:"count_to"`
	Store        store.Config `yaml:"store"`
}

// defaults applied before the file overrides them.
func defaultPoolConfig() poolConfig {
	return poolConfig{
		Workers: 2,
		CountTo: 3,
	}
}

func loadPoolConfig(path string) (poolConfig, error) {
	cfg := defaultPoolConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// duration parses an optional duration field, falling back when unset.
func duration(raw string, fallback time.Duration) (time.Duration, error) {
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	return d, nil
}
