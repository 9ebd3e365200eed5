package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/warden/internal/adapters/file"
	"github.com/aretw0/warden/internal/adapters/memory"
	"github.com/aretw0/warden/internal/adapters/redis"
	"github.com/aretw0/warden/pkg/ports"
)

// pingTimeout bounds the reachability probe so that an unreachable redis
// delays worker startup by at most this much before falling back.
const pingTimeout = 2 * time.Second

// Open builds a StateStore for one key prefix according to the config.
//
// Backend selection: an explicit backend is honored (redis errors are then
// surfaced); in auto mode redis is tried when an address is known and any
// failure falls back silently to the durable file backend. The fallback is
// logged at debug level only, per the contract that storage initialization
// must never abort worker startup.
func Open(ctx context.Context, cfg Config, prefix string, logger *slog.Logger) (ports.StateStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Backend {
	case BackendMemory:
		return memory.New(prefix), nil

	case BackendFile:
		return file.New(cfg.Dir, prefix), nil

	case BackendRedis:
		s, err := openRedis(ctx, cfg, prefix)
		if err != nil {
			return nil, err
		}
		return s, nil

	case BackendAuto:
		if cfg.RedisAddr != "" {
			s, err := openRedis(ctx, cfg, prefix)
			if err == nil {
				return s, nil
			}
			logger.Debug("fast state backend unavailable, falling back to file",
				"addr", cfg.RedisAddr, "err", err)
		}
		return file.New(cfg.Dir, prefix), nil

	default:
		return nil, fmt.Errorf("unknown state backend %q", cfg.Backend)
	}
}

func openRedis(ctx context.Context, cfg Config, prefix string) (*redis.Store, error) {
	s := redis.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, prefix)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := s.Ping(pingCtx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("redis backend unreachable: %w", err)
	}
	return s, nil
}
