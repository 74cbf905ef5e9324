package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BaSui01/agentquorum/agent"
	"github.com/BaSui01/agentquorum/recovery"
	"github.com/BaSui01/agentquorum/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"pgregory.net/rapid"
)

func call(id, name, args string) types.ToolCall {
	return types.ToolCall{ID: id, Name: name, Arguments: json.RawMessage(args)}
}

func newTestDispatcher(t *testing.T, parallel bool) *Dispatcher {
	cfg := DefaultDispatchConfig()
	cfg.Parallel = parallel
	cfg.Timeout = time.Second
	return NewDispatcher(cfg, zaptest.NewLogger(t))
}

func TestDispatcher_ToolNotFound(t *testing.T) {
	reg, err := NewRegistry(nil, constTool("known", "ok"))
	require.NoError(t, err)

	for _, parallel := range []bool{false, true} {
		d := newTestDispatcher(t, parallel)
		out := d.Execute(context.Background(), []types.ToolCall{
			call("1", "known", `{}`),
			call("2", "missing", `{}`),
		}, reg, nil)

		require.Len(t, out, 2)
		assert.False(t, out[0].Result.IsError)
		assert.Equal(t, "ok", out[0].Result.Content)
		assert.True(t, out[1].Result.IsError)
		assert.Contains(t, out[1].Result.Content, "not found")
		assert.Equal(t, "2", out[1].Result.ToolCallID)
		assert.Equal(t, recovery.PatternAgentUnavailable, out[1].Pattern)
	}
}

func TestDispatcher_Failures(t *testing.T) {
	failing := agent.MustTool("failing", "", nil, func(context.Context, map[string]any, agent.Variables) (any, error) {
		return nil, errors.New("disk full")
	})
	panicking := agent.MustTool("panicking", "", nil, func(context.Context, map[string]any, agent.Variables) (any, error) {
		panic("boom")
	})
	slow := agent.MustTool("slow", "", nil, func(ctx context.Context, _ map[string]any, _ agent.Variables) (any, error) {
		select {
		case <-time.After(5 * time.Second):
			return "late", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}, agent.WithToolTimeout(20*time.Millisecond))

	reg, err := NewRegistry(nil, failing, panicking, slow, constTool("ok", "fine"))
	require.NoError(t, err)

	d := newTestDispatcher(t, true)
	out := d.Execute(context.Background(), []types.ToolCall{
		call("1", "failing", ``),
		call("2", "panicking", `{}`),
		call("3", "slow", `{}`),
		call("4", "ok", `{not json`),
		call("5", "ok", `{"a":1}`),
	}, reg, nil)

	require.Len(t, out, 5)
	assert.Equal(t, "disk full", out[0].Result.Content)
	assert.Contains(t, out[1].Result.Content, "tool panicked")
	assert.Contains(t, out[2].Result.Content, "execution timeout")
	assert.Equal(t, recovery.PatternTimeout, out[2].Pattern)
	assert.Contains(t, out[3].Result.Content, "invalid arguments")
	assert.Equal(t, recovery.PatternMalformedOutput, out[3].Pattern)
	assert.False(t, out[4].Result.IsError)

	for i, o := range out[:4] {
		assert.True(t, o.Result.IsError, "call %d", i)
	}
}

func TestDispatcher_BatchDeadlineCancelsOutstanding(t *testing.T) {
	block := agent.MustTool("block", "", nil, func(ctx context.Context, _ map[string]any, _ agent.Variables) (any, error) {
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		return "too late", nil
	})
	reg, err := NewRegistry(nil, block, constTool("fast", "done"))
	require.NoError(t, err)

	cfg := DefaultDispatchConfig()
	cfg.Parallel = false
	cfg.BatchTimeout = 30 * time.Millisecond
	d := NewDispatcher(cfg, zaptest.NewLogger(t))

	out := d.Execute(context.Background(), []types.ToolCall{
		call("1", "fast", `{}`),
		call("2", "block", `{}`),
		call("3", "fast", `{}`),
	}, reg, nil)

	require.Len(t, out, 3)
	assert.Equal(t, "done", out[0].Result.Content)
	assert.True(t, out[1].Result.IsError)
	assert.Equal(t, "cancelled", out[1].Result.Content)
	assert.True(t, out[2].Result.IsError)
	assert.Equal(t, "cancelled", out[2].Result.Content)
}

func TestDispatcher_ContextVariablesInjected(t *testing.T) {
	params := types.NewObjectSchema().
		AddProperty("key", types.NewStringSchema()).
		AddProperty(agent.ContextVariablesParam, types.NewObjectSchema())
	var seen atomic.Value
	tool := agent.MustTool("read", "", params, func(_ context.Context, args map[string]any, vars agent.Variables) (any, error) {
		seen.Store(args)
		vars["mutated"] = true
		return agent.Result{
			Value:            fmt.Sprint(vars[args["key"].(string)]),
			ContextVariables: agent.Variables{"last_key": args["key"]},
		}, nil
	})
	reg, err := NewRegistry(nil, tool)
	require.NoError(t, err)

	vars := agent.Variables{"user": "ada"}
	d := newTestDispatcher(t, false)
	out := d.Execute(context.Background(), []types.ToolCall{
		call("1", "read", `{"key":"user","context_variables":{"user":"mallory"}}`),
	}, reg, vars)

	require.Len(t, out, 1)
	assert.Equal(t, "ada", out[0].Result.Content)
	assert.Equal(t, agent.Variables{"last_key": "user"}, out[0].ContextUpdates)
	assert.NotContains(t, seen.Load().(map[string]any), agent.ContextVariablesParam)
	assert.NotContains(t, vars, "mutated", "tools receive a copy of the shared context")
}

func TestDispatcher_Handoff(t *testing.T) {
	target := agent.New("billing")
	reg, err := NewRegistry(nil, agent.NewHandoffTool(target))
	require.NoError(t, err)

	out := newTestDispatcher(t, false).Execute(context.Background(),
		[]types.ToolCall{call("h", "transfer_to_billing", ``)}, reg, nil)
	require.Len(t, out, 1)
	assert.Same(t, target, out[0].Handoff)
	assert.JSONEq(t, `{"assistant":"billing"}`, out[0].Result.Content)
}

func TestDispatcher_RespectsConcurrencyLimit(t *testing.T) {
	var inFlight, peak atomic.Int32
	tool := agent.MustTool("work", "", nil, func(context.Context, map[string]any, agent.Variables) (any, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return "ok", nil
	})
	reg, err := NewRegistry(nil, tool)
	require.NoError(t, err)

	cfg := DefaultDispatchConfig()
	cfg.MaxConcurrency = 2
	d := NewDispatcher(cfg, nil)

	calls := make([]types.ToolCall, 10)
	for i := range calls {
		calls[i] = call(fmt.Sprintf("c%d", i), "work", `{}`)
	}
	out := d.Execute(context.Background(), calls, reg, nil)
	require.Len(t, out, 10)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

// 属性：无论执行顺序如何，输出长度与输入一致且第 i 个结果对应第 i 个调用
func TestProperty_Dispatcher_PreservesOrder(t *testing.T) {
	jitter := agent.MustTool("jitter", "", nil, func(_ context.Context, args map[string]any, _ agent.Variables) (any, error) {
		ms, _ := args["sleep_ms"].(float64)
		time.Sleep(time.Duration(ms) * time.Millisecond)
		return args["tag"], nil
	})
	reg, err := NewRegistry(nil, jitter)
	require.NoError(t, err)

	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 12).Draw(rt, "n")
		parallel := rapid.Bool().Draw(rt, "parallel")
		concurrency := rapid.IntRange(1, 6).Draw(rt, "concurrency")

		calls := make([]types.ToolCall, n)
		for i := range calls {
			name := "jitter"
			if rapid.IntRange(0, 4).Draw(rt, fmt.Sprintf("missing_%d", i)) == 0 {
				name = "missing"
			}
			sleep := rapid.IntRange(0, 3).Draw(rt, fmt.Sprintf("sleep_%d", i))
			calls[i] = call(fmt.Sprintf("id-%d", i), name, fmt.Sprintf(`{"tag":"t%d","sleep_ms":%d}`, i, sleep))
		}

		d := NewDispatcher(DispatchConfig{Parallel: parallel, MaxConcurrency: concurrency, Timeout: time.Second}, nil)
		out := d.Execute(context.Background(), calls, reg, nil)

		require.Len(rt, out, n)
		for i, o := range out {
			assert.Equal(rt, calls[i].ID, o.Result.ToolCallID)
			if calls[i].Name == "missing" {
				assert.True(rt, o.Result.IsError)
				assert.Contains(rt, o.Result.Content, "not found")
			} else {
				assert.Equal(rt, fmt.Sprintf("t%d", i), o.Result.Content)
			}
		}
	})
}
