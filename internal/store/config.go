package store

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/aretw0/warden/internal/adapters/file"
)

// Backend names accepted in Config.Backend.
const (
	BackendAuto   = ""
	BackendRedis  = "redis"
	BackendFile   = "file"
	BackendMemory = "memory"
)

// EnvConfig is the environment variable carrying the resolved store
// configuration into spawned children. A child must open the exact same
// backend as its parent or it will report state into the void.
const EnvConfig = "WARDEN_STORE"

// Config describes which persistence backend to use. With BackendAuto the
// factory tries redis when an address is known and falls back to the file
// backend otherwise.
type Config struct {
	Backend       string `json:"backend,omitempty" yaml:"backend,omitempty"`
	RedisAddr     string `json:"redis_addr,omitempty" yaml:"redis_addr,omitempty"`
	RedisPassword string `json:"redis_password,omitempty" yaml:"redis_password,omitempty"`
	RedisDB       int    `json:"redis_db,omitempty" yaml:"redis_db,omitempty"`
	Dir           string `json:"dir,omitempty" yaml:"dir,omitempty"`
}

// Normalize resolves defaults that must be identical in the parent and its
// children: the redis address from the environment and the fallback state
// directory. Call it once in the parent, before the config is handed to
// workers and serialized into their environment.
func (c Config) Normalize() Config {
	if c.RedisAddr == "" {
		c.RedisAddr = os.Getenv("WARDEN_REDIS_ADDR")
	}
	if c.Dir == "" {
		c.Dir = file.DefaultDir()
	}
	return c
}

// Encode serializes the config for a child's environment.
func (c Config) Encode() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to encode store config: %w", err)
	}
	return string(data), nil
}

// DecodeConfig parses a config produced by Encode.
func DecodeConfig(raw string) (Config, error) {
	var c Config
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return Config{}, fmt.Errorf("failed to decode store config: %w", err)
	}
	return c, nil
}
