package tracing

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BaSui01/agentquorum/recovery"
	"github.com/BaSui01/agentquorum/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gopkg.in/yaml.v3"
)

func fixedClock() func() time.Time {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	n := 0
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		n++
		return base.Add(time.Duration(n) * time.Millisecond)
	}
}

func TestTracer_DefaultsAndLog(t *testing.T) {
	tr := NewTracer(zaptest.NewLogger(t))
	assert.NotEmpty(t, tr.SessionID())
	assert.NotEmpty(t, tr.WorkerID())

	ctx := types.WithTraceID(context.Background(), "trace-1")
	e := tr.Log(ctx, Record{
		Operation: OpToolCall,
		AgentName: "triage",
		Input:     map[string]any{"q": 1},
		Output:    "ok",
		Duration:  5 * time.Millisecond,
	})

	assert.NotEmpty(t, e.ID)
	assert.Equal(t, tr.SessionID(), e.SessionID)
	assert.Equal(t, tr.WorkerID(), e.WorkerID)
	assert.Equal(t, "trace-1", e.Metadata["trace_id"])
	assert.Equal(t, 1, tr.Len())
}

func TestTracer_NilIsNoop(t *testing.T) {
	var tr *Tracer
	assert.NotPanics(t, func() {
		tr.Log(context.Background(), Record{Operation: OpTurn})
	})
}

func TestTracer_ConcurrentWriters(t *testing.T) {
	tr := NewTracer(nil, WithSessionID("s"), WithWorkerID("w"))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				tr.Log(context.Background(), Record{Operation: fmt.Sprintf("op-%d", i%3)})
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1000, tr.Len())
	ids := make(map[string]struct{})
	for _, e := range tr.Snapshot() {
		ids[e.ID] = struct{}{}
	}
	assert.Len(t, ids, 1000)
}

func TestTracer_SnapshotIsCopyAndClearIsExplicit(t *testing.T) {
	tr := NewTracer(nil)
	tr.Log(context.Background(), Record{Operation: OpTurn})

	snap := tr.Snapshot()
	snap[0].Operation = "mutated"
	assert.Equal(t, OpTurn, tr.Snapshot()[0].Operation)

	tr.Summary()
	_, err := tr.Export(FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, 1, tr.Len(), "reads never clear the log")

	tr.Clear()
	assert.Zero(t, tr.Len())
}

func TestTracer_Summary(t *testing.T) {
	tr := NewTracer(nil, WithClock(fixedClock()))
	ctx := context.Background()

	for i := 1; i <= 10; i++ {
		tr.Log(ctx, Record{Operation: OpToolCall, AgentName: "a", Duration: time.Duration(i) * time.Millisecond})
	}
	tr.Log(ctx, Record{Operation: OpModelCall, AgentName: "b", Duration: time.Second, ErrorPattern: recovery.PatternTimeout})
	tr.Log(ctx, Record{Operation: OpToolCall, Duration: 0, ErrorPattern: recovery.PatternMalformedOutput})

	s := tr.Summary()
	assert.Equal(t, 12, s.TotalEntries)
	assert.Equal(t, 2, s.TotalErrors)

	tool := s.Operations[OpToolCall]
	assert.Equal(t, 11, tool.Count)
	assert.Equal(t, 1, tool.Errors)
	// 排序后：0,1,...,10ms；nearest-rank
	assert.Equal(t, 5*time.Millisecond, tool.P50)
	assert.Equal(t, 8*time.Millisecond, tool.P75)
	assert.Equal(t, 9*time.Millisecond, tool.P90)
	assert.Equal(t, 10*time.Millisecond, tool.P95)
	assert.Equal(t, 10*time.Millisecond, tool.P99)
	assert.Equal(t, 5*time.Millisecond, tool.Mean)

	assert.Equal(t, 1, s.ErrorsBySeverity[recovery.SeverityHigh])
	assert.Equal(t, 1, s.ErrorsBySeverity[recovery.SeverityMedium])
	assert.Equal(t, 0, s.ErrorsBySeverity[recovery.SeverityCritical])
	assert.Equal(t, 1, s.ErrorsByPattern[recovery.PatternTimeout])
	assert.Equal(t, 10, s.Agents["a"])
}

func TestPercentile(t *testing.T) {
	assert.Zero(t, Percentile(nil, 50))
	one := []time.Duration{7}
	for _, p := range Percentiles {
		assert.Equal(t, time.Duration(7), Percentile(one, p))
	}
	ds := []time.Duration{1, 2, 3, 4}
	assert.Equal(t, time.Duration(2), Percentile(ds, 50))
	assert.Equal(t, time.Duration(3), Percentile(ds, 75))
	assert.Equal(t, time.Duration(4), Percentile(ds, 99))
}

func TestTracer_Export(t *testing.T) {
	tr := NewTracer(nil, WithSessionID("sess"), WithWorkerID("w1"))
	ctx := context.Background()
	tr.Log(ctx, Record{Operation: OpTurn, AgentName: "a", Output: "hi"})
	tr.Log(ctx, Record{Operation: OpVote, ErrorPattern: recovery.PatternConsensusFailure})

	t.Run("json", func(t *testing.T) {
		data, err := tr.Export(FormatJSON)
		require.NoError(t, err)
		var exp Export
		require.NoError(t, json.Unmarshal(data, &exp))
		assert.Equal(t, "sess", exp.SessionID)
		require.Len(t, exp.Entries, 2)
		assert.Equal(t, recovery.PatternConsensusFailure, exp.Entries[1].ErrorPattern)
		assert.Equal(t, 2, exp.Summary.TotalEntries)
		assert.Contains(t, string(data), `"error_pattern"`)
		assert.Contains(t, string(data), `"worker_id"`)
	})

	t.Run("jsonl", func(t *testing.T) {
		data, err := tr.Export(FormatJSONL)
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		require.Len(t, lines, 2)
		var e TraceEntry
		require.NoError(t, json.Unmarshal([]byte(lines[0]), &e))
		assert.Equal(t, OpTurn, e.Operation)
	})

	t.Run("yaml", func(t *testing.T) {
		data, err := tr.Export(FormatYAML)
		require.NoError(t, err)
		var exp Export
		require.NoError(t, yaml.Unmarshal(data, &exp))
		assert.Equal(t, "w1", exp.WorkerID)
		assert.Len(t, exp.Entries, 2)
	})

	t.Run("unsupported", func(t *testing.T) {
		_, err := tr.Export("xml")
		assert.Error(t, err)
	})
}

func TestTracer_EmptyExport(t *testing.T) {
	data, err := NewTracer(nil).Export(FormatJSON)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"entries": []`)
}

type memorySink struct {
	mu      sync.Mutex
	batches [][]TraceEntry
}

func (s *memorySink) Write(_ context.Context, entries []TraceEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, entries)
	return nil
}

func TestTracer_FlushKeepsEntries(t *testing.T) {
	tr := NewTracer(nil)
	sink := &memorySink{}

	require.NoError(t, tr.Flush(context.Background(), sink))
	assert.Empty(t, sink.batches, "empty log writes nothing")

	tr.Log(context.Background(), Record{Operation: OpTurn})
	require.NoError(t, tr.Flush(context.Background(), sink))
	require.Len(t, sink.batches, 1)
	assert.Len(t, sink.batches[0], 1)
	assert.Equal(t, 1, tr.Len())
}

func TestTracer_Filter(t *testing.T) {
	tr := NewTracer(nil)
	tr.Log(context.Background(), Record{Operation: OpTurn})
	tr.Log(context.Background(), Record{Operation: OpHandoff})
	got := tr.Filter(func(e TraceEntry) bool { return e.Operation == OpHandoff })
	require.Len(t, got, 1)
}
