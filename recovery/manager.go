package recovery

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/BaSui01/agentquorum/internal/metrics"
	"go.uber.org/zap"
)

const defaultMaxHistory = 10000

// record 一次失败的记录，用于统计分析
type record struct {
	at          time.Time
	operationID string
	pattern     ErrorPattern
	escalated   bool
}

// Manager classifies failures, counts them per (operation, pattern) and
// recommends a recovery strategy, escalating once the retry budget is spent.
type Manager struct {
	strategies map[ErrorPattern]Strategy
	store      AttemptStore
	fallback   *MemoryStore
	metrics    *metrics.Collector
	logger     *zap.Logger
	now        func() time.Time
	maxHistory int

	mu        sync.Mutex
	history   []record
	failed    map[string]struct{}
	recovered map[string]struct{}
}

// Option 恢复管理器选项
type Option func(*Manager)

// WithStore replaces the in-memory attempt store.
func WithStore(s AttemptStore) Option {
	return func(m *Manager) { m.store = s }
}

// WithStrategy overrides the strategy of one pattern.
func WithStrategy(p ErrorPattern, s Strategy) Option {
	return func(m *Manager) {
		s.Pattern = p
		m.strategies[p] = s
	}
}

// WithMetrics attaches a metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(m *Manager) { m.metrics = c }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithMaxHistory bounds the number of failure records kept for analytics.
func WithMaxHistory(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxHistory = n
		}
	}
}

// NewManager 创建错误恢复管理器。
func NewManager(logger *zap.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	mem := NewMemoryStore()
	m := &Manager{
		strategies: DefaultStrategies(),
		store:      mem,
		fallback:   mem,
		logger:     logger.With(zap.String("component", "recovery")),
		now:        time.Now,
		maxHistory: defaultMaxHistory,
		failed:     make(map[string]struct{}),
		recovered:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Strategy returns the default strategy of a pattern.
func (m *Manager) Strategy(p ErrorPattern) Strategy {
	s, ok := m.strategies[p]
	if !ok {
		s = m.strategies[PatternUnknown]
	}
	return s.clone()
}

// Handle classifies err and returns the strategy for this failure of operationID.
func (m *Manager) Handle(ctx context.Context, err error, opCtx map[string]any, operationID string) Strategy {
	return m.HandlePattern(ctx, Classify(err, opCtx), operationID, err)
}

// HandlePattern records a failure whose pattern is already known.
func (m *Manager) HandlePattern(ctx context.Context, pattern ErrorPattern, operationID string, cause error) Strategy {
	strategy := m.Strategy(pattern)

	attempt, err := m.store.Incr(ctx, operationID, pattern)
	if err != nil {
		m.logger.Warn("attempt store unavailable, counting locally",
			zap.String("operation_id", operationID), zap.Error(err))
		attempt, _ = m.fallback.Incr(ctx, operationID, pattern)
	}
	strategy.Attempt = attempt

	if attempt > strategy.MaxRetries+1 {
		strategy.Action = ActionEscalateToHuman
		strategy.Escalated = true
		strategy.Parameters = map[string]any{
			"original_pattern": string(pattern),
			"attempts":         attempt,
		}
		m.metrics.RecordEscalation(string(pattern))
		m.logger.Error("failure escalated to human intervention",
			zap.String("operation_id", operationID),
			zap.String("pattern", string(pattern)),
			zap.Int("attempts", attempt),
			zap.Error(cause))
	} else {
		m.logger.Warn("failure classified",
			zap.String("operation_id", operationID),
			zap.String("pattern", string(pattern)),
			zap.String("action", string(strategy.Action)),
			zap.Int("attempt", attempt),
			zap.Error(cause))
	}
	m.metrics.RecordErrorPattern(string(pattern))

	m.mu.Lock()
	m.history = append(m.history, record{
		at:          m.now(),
		operationID: operationID,
		pattern:     pattern,
		escalated:   strategy.Escalated,
	})
	if over := len(m.history) - m.maxHistory; over > 0 {
		m.history = append(m.history[:0:0], m.history[over:]...)
	}
	m.failed[operationID] = struct{}{}
	delete(m.recovered, operationID)
	m.mu.Unlock()

	return strategy
}

// MarkRecovered records that a previously failing operation succeeded.
func (m *Manager) MarkRecovered(operationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.failed[operationID]; ok {
		m.recovered[operationID] = struct{}{}
	}
}

// Reset drops the attempt counters of operationID.
func (m *Manager) Reset(ctx context.Context, operationID string) error {
	_ = m.fallback.Reset(ctx, operationID)
	if m.store != AttemptStore(m.fallback) {
		return m.store.Reset(ctx, operationID)
	}
	return nil
}

// PatternStat 单个错误模式的统计
type PatternStat struct {
	Pattern   ErrorPattern `json:"pattern"`
	Count     int          `json:"count"`
	Frequency float64      `json:"frequency"`
}

// Analytics summarises the failures seen by the manager.
type Analytics struct {
	TotalErrors  int           `json:"total_errors"`
	Patterns     []PatternStat `json:"patterns"`
	Escalations  int           `json:"escalations"`
	RecoveryRate float64       `json:"recovery_rate"`
	RecentErrors int           `json:"recent_errors"`
	MostCommon   ErrorPattern  `json:"most_common,omitempty"`
}

// Analytics returns the pattern distribution (most frequent first), the share
// of failing operations that later succeeded, and the error count of the hour before now.
func (m *Manager) Analytics(now time.Time) Analytics {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := Analytics{TotalErrors: len(m.history)}
	counts := make(map[ErrorPattern]int)
	cutoff := now.Add(-time.Hour)
	for _, r := range m.history {
		counts[r.pattern]++
		if r.escalated {
			out.Escalations++
		}
		if !r.at.Before(cutoff) && !r.at.After(now) {
			out.RecentErrors++
		}
	}

	for p, c := range counts {
		out.Patterns = append(out.Patterns, PatternStat{
			Pattern:   p,
			Count:     c,
			Frequency: float64(c) / float64(out.TotalErrors),
		})
	}
	sort.Slice(out.Patterns, func(i, j int) bool {
		if out.Patterns[i].Count != out.Patterns[j].Count {
			return out.Patterns[i].Count > out.Patterns[j].Count
		}
		return out.Patterns[i].Pattern < out.Patterns[j].Pattern
	})
	if len(out.Patterns) > 0 {
		out.MostCommon = out.Patterns[0].Pattern
	}

	if len(m.failed) > 0 {
		out.RecoveryRate = float64(len(m.recovered)) / float64(len(m.failed))
	}
	return out
}
