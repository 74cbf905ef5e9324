// 配置热重载相关测试。
package config

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestIsHotReloadable(t *testing.T) {
	assert.True(t, IsHotReloadable("Engine.MaxTurns"))
	assert.True(t, IsHotReloadable("Voting.Timeout"))
	assert.True(t, IsHotReloadable("Validation.ErrorKeywords"))
	assert.True(t, IsHotReloadable("Dispatch.Parallel"))
	assert.False(t, IsHotReloadable("Redis.Addr"))
	assert.False(t, IsHotReloadable("Trace.Sink"))
	assert.False(t, IsHotReloadable("EngineX"))
}

func TestHotReloadManager_ApplyConfig(t *testing.T) {
	m := NewHotReloadManager(DefaultConfig(), WithHotReloadLogger(zap.NewNop()))

	var got [2]*Config
	m.OnReload(func(oldConfig, newConfig *Config) error {
		got = [2]*Config{oldConfig, newConfig}
		return nil
	})

	next := DefaultConfig()
	next.Engine.MaxTurns = 3
	next.Redis.Password = "hunter2"
	require.NoError(t, m.ApplyConfig(next, "api"))

	assert.Same(t, next, m.GetConfig())
	assert.Equal(t, 10, got[0].Engine.MaxTurns)
	assert.Same(t, next, got[1])

	changes := m.GetChangeLog(0)
	require.Len(t, changes, 2)
	byPath := map[string]ConfigChange{}
	for _, c := range changes {
		byPath[c.Path] = c
	}
	assert.Equal(t, 10, byPath["Engine.MaxTurns"].OldValue)
	assert.Equal(t, 3, byPath["Engine.MaxTurns"].NewValue)
	assert.False(t, byPath["Engine.MaxTurns"].RequiresRestart)
	assert.Equal(t, "[REDACTED]", byPath["Redis.Password"].NewValue)
	assert.True(t, byPath["Redis.Password"].RequiresRestart)
	assert.Equal(t, "api", byPath["Redis.Password"].Source)

	history := m.History()
	require.Len(t, history, 2)
	assert.Equal(t, 2, history[1].Version)
	assert.Equal(t, 3, history[1].Config.Engine.MaxTurns)
}

func TestHotReloadManager_RejectsInvalidConfig(t *testing.T) {
	orig := DefaultConfig()
	m := NewHotReloadManager(orig)

	called := false
	m.OnReload(func(_, _ *Config) error { called = true; return nil })

	bad := DefaultConfig()
	bad.Voting.CandidateCount = 1
	require.Error(t, m.ApplyConfig(bad, "api"))
	assert.Same(t, orig, m.GetConfig())
	assert.False(t, called)
}

func TestHotReloadManager_UnchangedIsNoop(t *testing.T) {
	m := NewHotReloadManager(DefaultConfig())
	var calls atomic.Int32
	m.OnReload(func(_, _ *Config) error { calls.Add(1); return nil })

	require.NoError(t, m.ApplyConfig(DefaultConfig(), "api"))
	assert.Zero(t, calls.Load())
	assert.Len(t, m.History(), 1)
}

func TestHotReloadManager_CallbackFailureRollsBack(t *testing.T) {
	orig := DefaultConfig()
	m := NewHotReloadManager(orig)

	var seen []int
	m.OnReload(func(_, newConfig *Config) error {
		seen = append(seen, newConfig.Engine.MaxTurns)
		if newConfig.Engine.MaxTurns == 2 {
			return errors.New("engine refused")
		}
		return nil
	})

	next := DefaultConfig()
	next.Engine.MaxTurns = 2
	err := m.ApplyConfig(next, "api")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine refused")

	assert.Same(t, orig, m.GetConfig())
	// 回滚时以旧配置再次通知
	assert.Equal(t, []int{2, 10}, seen)
	assert.Empty(t, m.GetChangeLog(0))
}

func TestHotReloadManager_CallbackPanicRollsBack(t *testing.T) {
	orig := DefaultConfig()
	m := NewHotReloadManager(orig)
	m.OnReload(func(_, newConfig *Config) error {
		if newConfig != orig {
			panic("boom")
		}
		return nil
	})

	next := DefaultConfig()
	next.Voting.Model = "other"
	err := m.ApplyConfig(next, "api")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
	assert.Same(t, orig, m.GetConfig())
}

func TestHotReloadManager_Rollback(t *testing.T) {
	m := NewHotReloadManager(DefaultConfig())
	require.Error(t, m.Rollback())

	next := DefaultConfig()
	next.Engine.MaxTurns = 5
	require.NoError(t, m.ApplyConfig(next, "api"))

	require.NoError(t, m.Rollback())
	assert.Equal(t, 10, m.GetConfig().Engine.MaxTurns)
	assert.Equal(t, "rollback", m.History()[2].Source)
}

func TestHotReloadManager_ReloadFromFile(t *testing.T) {
	path := writeConfig(t, "engine:\n  max_turns: 6\n")
	m := NewHotReloadManager(DefaultConfig(), WithReloadPath(path))

	require.NoError(t, m.ReloadFromFile())
	assert.Equal(t, 6, m.GetConfig().Engine.MaxTurns)

	touch(t, path, "voting:\n  winning_vote_count: 0\n", 0)
	require.Error(t, m.ReloadFromFile())
	assert.Equal(t, 6, m.GetConfig().Engine.MaxTurns)

	assert.Error(t, NewHotReloadManager(DefaultConfig()).ReloadFromFile())
}

func TestHotReloadManager_WatchesFile(t *testing.T) {
	path := writeConfig(t, "engine:\n  max_turns: 4\n")
	ts := time.Now().Add(-time.Minute)
	require.NoError(t, os.Chtimes(path, ts, ts))

	m := NewHotReloadManager(DefaultConfig(),
		WithReloadPath(path),
		WithWatcherOptions(WithPollInterval(10*time.Millisecond), WithDebounceDelay(10*time.Millisecond)))

	var turns atomic.Int32
	m.OnReload(func(_, newConfig *Config) error {
		turns.Store(int32(newConfig.Engine.MaxTurns))
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.Start(ctx))
	defer m.Stop()
	assert.Error(t, m.Start(ctx))

	touch(t, path, "engine:\n  max_turns: 8\n", 0)
	assert.Eventually(t, func() bool { return turns.Load() == 8 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 8, m.GetConfig().Engine.MaxTurns)
}
