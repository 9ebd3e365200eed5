package store_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/warden/internal/adapters/file"
	"github.com/aretw0/warden/internal/adapters/redis"
	"github.com/aretw0/warden/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_AutoPrefersRedisWhenReachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	cfg := store.Config{RedisAddr: mr.Addr(), Dir: t.TempDir()}
	s, err := store.Open(context.Background(), cfg, "warden:1:0", nil)
	require.NoError(t, err)

	assert.IsType(t, &redis.Store{}, s)
}

func TestOpen_AutoFallsBackSilently(t *testing.T) {
	// Nothing listens here; the factory must hand out the durable backend
	// without surfacing the failure.
	cfg := store.Config{RedisAddr: "127.0.0.1:1", Dir: t.TempDir()}
	s, err := store.Open(context.Background(), cfg, "warden:1:0", nil)
	require.NoError(t, err)

	assert.IsType(t, &file.Store{}, s)
}

func TestOpen_AutoWithoutRedisAddrUsesFile(t *testing.T) {
	cfg := store.Config{Dir: t.TempDir()}
	s, err := store.Open(context.Background(), cfg, "warden:1:0", nil)
	require.NoError(t, err)

	assert.IsType(t, &file.Store{}, s)
}

func TestOpen_ExplicitRedisSurfacesFailure(t *testing.T) {
	cfg := store.Config{Backend: store.BackendRedis, RedisAddr: "127.0.0.1:1"}
	_, err := store.Open(context.Background(), cfg, "warden:1:0", nil)
	assert.Error(t, err)
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := store.Open(context.Background(), store.Config{Backend: "etcd"}, "warden:1:0", nil)
	assert.Error(t, err)
}

func TestConfig_EncodeDecodeRoundTrip(t *testing.T) {
	cfg := store.Config{Backend: store.BackendFile, Dir: "/var/lib/warden"}

	raw, err := cfg.Encode()
	require.NoError(t, err)

	decoded, err := store.DecodeConfig(raw)
	require.NoError(t, err)
	assert.Equal(t, cfg, decoded)
}

func TestConfig_NormalizeFillsDir(t *testing.T) {
	cfg := store.Config{}.Normalize()
	assert.NotEmpty(t, cfg.Dir)
}
