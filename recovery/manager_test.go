package recovery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestManager_EscalatesOnFourthFailure(t *testing.T) {
	m := NewManager(zaptest.NewLogger(t), WithStrategy(PatternTimeout, Strategy{
		Action:     ActionReduceTaskSize,
		MaxRetries: 2,
	}))
	ctx := context.Background()
	err := errors.New("upstream timed out")

	for i := 1; i <= 3; i++ {
		s := m.Handle(ctx, err, nil, "op-1")
		assert.Equal(t, ActionReduceTaskSize, s.Action, "attempt %d", i)
		assert.Equal(t, i, s.Attempt)
		assert.False(t, s.Escalated)
	}

	s := m.Handle(ctx, err, nil, "op-1")
	assert.Equal(t, ActionEscalateToHuman, s.Action)
	assert.True(t, s.Escalated)
	assert.False(t, s.Retryable())
	assert.Equal(t, 4, s.Attempt)

	// 其他 operation 的计数互不影响
	other := m.Handle(ctx, err, nil, "op-2")
	assert.Equal(t, 1, other.Attempt)
	assert.False(t, other.Escalated)
}

func TestManager_CountersArePerPattern(t *testing.T) {
	m := NewManager(nil)
	ctx := context.Background()

	m.Handle(ctx, errors.New("timeout"), nil, "op")
	s := m.Handle(ctx, errors.New("invalid json"), nil, "op")
	assert.Equal(t, 1, s.Attempt)
}

func TestManager_Reset(t *testing.T) {
	m := NewManager(nil)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		m.Handle(ctx, errors.New("timeout"), nil, "op")
	}
	require.NoError(t, m.Reset(ctx, "op"))
	assert.Equal(t, 1, m.Handle(ctx, errors.New("timeout"), nil, "op").Attempt)
}

func TestManager_StrategyIsACopy(t *testing.T) {
	m := NewManager(nil)
	s := m.Strategy(PatternMalformedOutput)
	s.Parameters["enforce_json"] = false
	assert.Equal(t, true, m.Strategy(PatternMalformedOutput).Parameters["enforce_json"])
	assert.Equal(t, ActionGenericRetry, m.Strategy("bogus").Action)
}

type failingStore struct{}

func (failingStore) Incr(context.Context, string, ErrorPattern) (int, error) {
	return 0, errors.New("store down")
}
func (failingStore) Reset(context.Context, string) error { return errors.New("store down") }

func TestManager_FallsBackWhenStoreFails(t *testing.T) {
	m := NewManager(zaptest.NewLogger(t), WithStore(failingStore{}))
	ctx := context.Background()
	assert.Equal(t, 1, m.Handle(ctx, errors.New("timeout"), nil, "op").Attempt)
	assert.Equal(t, 2, m.Handle(ctx, errors.New("timeout"), nil, "op").Attempt)
	assert.Error(t, m.Reset(ctx, "op"))
}

func TestManager_ConcurrentHandle(t *testing.T) {
	m := NewManager(nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Handle(ctx, errors.New("something odd"), nil, "shared")
		}()
	}
	wg.Wait()

	assert.Equal(t, 51, m.Handle(ctx, errors.New("something odd"), nil, "shared").Attempt)
}

func TestManager_Analytics(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := now.Add(-2 * time.Hour)
	m := NewManager(nil, WithClock(func() time.Time { return clock }))
	ctx := context.Background()

	m.Handle(ctx, errors.New("timeout"), nil, "old")

	clock = now.Add(-10 * time.Minute)
	for i := 0; i < 4; i++ {
		m.Handle(ctx, errors.New("bad json"), nil, fmt.Sprintf("op-%d", i%2))
	}
	m.MarkRecovered("op-0")
	m.MarkRecovered("never-failed")

	a := m.Analytics(now)
	assert.Equal(t, 5, a.TotalErrors)
	assert.Equal(t, 4, a.RecentErrors)
	assert.Equal(t, PatternMalformedOutput, a.MostCommon)
	require.Len(t, a.Patterns, 2)
	assert.InDelta(t, 0.8, a.Patterns[0].Frequency, 1e-9)
	assert.InDelta(t, 1.0/3.0, a.RecoveryRate, 1e-9)
	assert.Zero(t, a.Escalations)
}

func TestManager_HistoryBounded(t *testing.T) {
	m := NewManager(nil, WithMaxHistory(3))
	for i := 0; i < 10; i++ {
		m.Handle(context.Background(), errors.New("x"), nil, fmt.Sprintf("op-%d", i))
	}
	assert.Equal(t, 3, m.Analytics(time.Now()).TotalErrors)
}

func TestStrategy_Retryable(t *testing.T) {
	assert.True(t, Strategy{Action: ActionGenericRetry}.Retryable())
	assert.True(t, Strategy{Action: ActionRouteToAlternateAgent}.Retryable())
	assert.False(t, Strategy{Action: ActionSkipAndProceed}.Retryable())
	assert.False(t, Strategy{Action: ActionGenericRetry, Escalated: true}.Retryable())
}
