package tracing

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/BaSui01/agentquorum/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Hook observes every entry after it is appended. Hooks run outside the log lock
// and must not call back into the Tracer's mutating methods.
type Hook interface {
	OnEntry(ctx context.Context, entry TraceEntry)
}

// HookFunc adapts a function to Hook.
type HookFunc func(ctx context.Context, entry TraceEntry)

func (f HookFunc) OnEntry(ctx context.Context, entry TraceEntry) { f(ctx, entry) }

// Tracer is the append-only, concurrency-safe log of one orchestration session.
type Tracer struct {
	mu      sync.RWMutex
	entries []TraceEntry

	sessionID string
	workerID  string
	startedAt time.Time
	hooks     []Hook
	logger    *zap.Logger
	now       func() time.Time
}

// Option 追踪器选项
type Option func(*Tracer)

// WithSessionID sets the session identifier.
func WithSessionID(id string) Option {
	return func(t *Tracer) { t.sessionID = id }
}

// WithWorkerID sets the worker identifier recorded at session start.
func WithWorkerID(id string) Option {
	return func(t *Tracer) { t.workerID = id }
}

// WithHook registers an entry hook.
func WithHook(h Hook) Option {
	return func(t *Tracer) { t.hooks = append(t.hooks, h) }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracer) { t.now = now }
}

// NewTracer 创建追踪器。未指定时 session 与 worker ID 均为新生成的 UUID。
func NewTracer(logger *zap.Logger, opts ...Option) *Tracer {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Tracer{
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.sessionID == "" {
		t.sessionID = uuid.NewString()
	}
	if t.workerID == "" {
		t.workerID = uuid.NewString()
	}
	t.startedAt = t.now()
	t.logger = t.logger.With(
		zap.String("component", "tracer"),
		zap.String("session_id", t.sessionID),
		zap.String("worker_id", t.workerID),
	)
	return t
}

// SessionID returns the session identifier.
func (t *Tracer) SessionID() string { return t.sessionID }

// WorkerID returns the worker identifier.
func (t *Tracer) WorkerID() string { return t.workerID }

// Log appends an entry and returns it. A nil Tracer discards the record.
func (t *Tracer) Log(ctx context.Context, rec Record) TraceEntry {
	if t == nil {
		return TraceEntry{}
	}

	meta := maps.Clone(rec.Metadata)
	if traceID, ok := types.TraceID(ctx); ok {
		if meta == nil {
			meta = make(map[string]any, 1)
		}
		meta["trace_id"] = traceID
	}

	entry := TraceEntry{
		ID:           uuid.NewString(),
		Timestamp:    t.now(),
		WorkerID:     t.workerID,
		SessionID:    t.sessionID,
		Operation:    rec.Operation,
		AgentName:    rec.AgentName,
		Input:        rec.Input,
		Output:       rec.Output,
		Duration:     rec.Duration,
		ErrorPattern: rec.ErrorPattern,
		Metadata:     meta,
	}

	t.mu.Lock()
	t.entries = append(t.entries, entry)
	t.mu.Unlock()

	if entry.IsError() {
		t.logger.Debug("trace entry recorded",
			zap.String("operation", entry.Operation),
			zap.String("agent", entry.AgentName),
			zap.String("error_pattern", string(entry.ErrorPattern)))
	}
	for _, h := range t.hooks {
		h.OnEntry(ctx, entry)
	}
	return entry
}

// Len returns the number of entries.
func (t *Tracer) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Snapshot returns a copy of the entries in append order.
func (t *Tracer) Snapshot() []TraceEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.entries)
}

// Filter returns the entries matching pred.
func (t *Tracer) Filter(pred func(TraceEntry) bool) []TraceEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []TraceEntry
	for _, e := range t.entries {
		if pred(e) {
			out = append(out, e)
		}
	}
	return out
}

// Clear drops every entry. It is only ever called explicitly by the owner.
func (t *Tracer) Clear() {
	t.mu.Lock()
	n := len(t.entries)
	t.entries = nil
	t.mu.Unlock()
	t.logger.Info("trace cleared", zap.Int("entries", n))
}

// Sink persists a batch of entries for offline analysis.
type Sink interface {
	Write(ctx context.Context, entries []TraceEntry) error
}

// Flush writes a snapshot to sink. The log is left untouched.
func (t *Tracer) Flush(ctx context.Context, sink Sink) error {
	entries := t.Snapshot()
	if len(entries) == 0 {
		return nil
	}
	if err := sink.Write(ctx, entries); err != nil {
		t.logger.Error("trace flush failed", zap.Int("entries", len(entries)), zap.Error(err))
		return err
	}
	t.logger.Info("trace flushed", zap.Int("entries", len(entries)))
	return nil
}
