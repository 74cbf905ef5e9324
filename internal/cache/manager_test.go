package cache

import (
	"context"
	"testing"
	"time"

	"github.com/BaSui01/agentquorum/config"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func setupTestRedis(t *testing.T, interval time.Duration) (*miniredis.Miniredis, *Manager) {
	t.Helper()
	mr := miniredis.RunT(t)

	cfg := config.DefaultRedisConfig()
	cfg.Addr = mr.Addr()
	cfg.HealthCheckInterval = interval

	m, err := NewManager(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return mr, m
}

func TestNewManager(t *testing.T) {
	mr, m := setupTestRedis(t, 0)

	require.NotNil(t, m.Client())
	require.NoError(t, m.Client().Set(context.Background(), "k", "v", 0).Err())
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestNewManager_RequiresAddr(t *testing.T) {
	_, err := NewManager(context.Background(), config.RedisConfig{}, nil)
	assert.Error(t, err)
}

func TestNewManager_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := NewManager(ctx, config.RedisConfig{Addr: addr}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to redis")
}

func TestManager_Ping(t *testing.T) {
	_, m := setupTestRedis(t, 0)
	assert.NoError(t, m.Ping(context.Background()))
}

func TestManager_CloseIsIdempotent(t *testing.T) {
	_, m := setupTestRedis(t, 10*time.Millisecond)

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	assert.ErrorIs(t, m.Ping(context.Background()), ErrClosed)
}

func TestManager_GetStats(t *testing.T) {
	_, m := setupTestRedis(t, 0)
	require.NoError(t, m.Ping(context.Background()))

	stats := m.GetStats()
	assert.GreaterOrEqual(t, stats.TotalConns, uint32(1))
}
