package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器。所有 Record* 方法对 nil 接收者安全。
type Collector struct {
	// 模型调用指标
	modelRequestsTotal   *prometheus.CounterVec
	modelRequestDuration *prometheus.HistogramVec
	modelTokensUsed      *prometheus.CounterVec

	// 会话指标
	turnsTotal    *prometheus.CounterVec
	handoffsTotal *prometheus.CounterVec

	// 工具指标
	toolCallsTotal   *prometheus.CounterVec
	toolCallDuration *prometheus.HistogramVec

	// 投票指标
	votesTotal   *prometheus.CounterVec
	voteDuration *prometheus.HistogramVec

	// 错误与恢复指标
	errorPatternsTotal *prometheus.CounterVec
	escalationsTotal   *prometheus.CounterVec

	// 校验指标
	validationsTotal     *prometheus.CounterVec
	validationConfidence *prometheus.HistogramVec

	// 追踪指标
	traceEntriesTotal *prometheus.CounterVec

	// 数据库指标
	dbQueryDuration *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器。reg 为 nil 时注册到 prometheus.DefaultRegisterer。
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// 模型调用指标
	c.modelRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_requests_total",
			Help:      "Total number of model backend requests",
		},
		[]string{"model", "status"},
	)

	c.modelRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_request_duration_seconds",
			Help:      "Model backend request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"model"},
	)

	c.modelTokensUsed = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_tokens_used_total",
			Help:      "Total number of tokens used",
		},
		[]string{"model", "type"}, // type: prompt, completion
	)

	// 会话指标
	c.turnsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total number of conversation turns",
		},
		[]string{"agent"},
	)

	c.handoffsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handoffs_total",
			Help:      "Total number of agent handoffs",
		},
		[]string{"from", "to"},
	)

	// 工具指标
	c.toolCallsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Total number of tool calls",
		},
		[]string{"tool", "status"},
	)

	c.toolCallDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_call_duration_seconds",
			Help:      "Tool call duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"tool"},
	)

	// 投票指标
	c.votesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "votes_total",
			Help:      "Total number of consensus votes by resolution method",
		},
		[]string{"method", "consensus"},
	)

	c.voteDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "vote_duration_seconds",
			Help:      "Consensus vote duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"method"},
	)

	// 错误与恢复指标
	c.errorPatternsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "error_patterns_total",
			Help:      "Total number of classified failures by error pattern",
		},
		[]string{"pattern"},
	)

	c.escalationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escalations_total",
			Help:      "Total number of escalations to human intervention",
		},
		[]string{"pattern"},
	)

	// 校验指标
	c.validationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validations_total",
			Help:      "Total number of cross-agent validations",
		},
		[]string{"level", "passed"},
	)

	c.validationConfidence = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "validation_confidence",
			Help:      "Confidence of cross-agent validations",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		},
		[]string{"level"},
	)

	// 追踪指标
	c.traceEntriesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trace_entries_total",
			Help:      "Total number of trace entries",
		},
		[]string{"operation"},
	)

	// 数据库指标
	c.dbQueryDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"database", "operation"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🤖 模型调用指标记录
// =============================================================================

// RecordModelRequest 记录模型请求
func (c *Collector) RecordModelRequest(model, status string, duration time.Duration, promptTokens, completionTokens int) {
	if c == nil {
		return
	}
	c.modelRequestsTotal.WithLabelValues(model, status).Inc()
	c.modelRequestDuration.WithLabelValues(model).Observe(duration.Seconds())
	c.modelTokensUsed.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	c.modelTokensUsed.WithLabelValues(model, "completion").Add(float64(completionTokens))
}

// =============================================================================
// 🎭 会话指标记录
// =============================================================================

// RecordTurn 记录一次会话轮次
func (c *Collector) RecordTurn(agentName string) {
	if c == nil {
		return
	}
	c.turnsTotal.WithLabelValues(agentName).Inc()
}

// RecordHandoff 记录 Agent 移交
func (c *Collector) RecordHandoff(from, to string) {
	if c == nil {
		return
	}
	c.handoffsTotal.WithLabelValues(from, to).Inc()
}

// =============================================================================
// 🔧 工具指标记录
// =============================================================================

// RecordToolCall 记录工具调用
func (c *Collector) RecordToolCall(tool, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.toolCallsTotal.WithLabelValues(tool, status).Inc()
	c.toolCallDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// =============================================================================
// 🗳️ 投票指标记录
// =============================================================================

// RecordVote 记录一次共识投票
func (c *Collector) RecordVote(method string, consensus bool, duration time.Duration) {
	if c == nil {
		return
	}
	c.votesTotal.WithLabelValues(method, boolLabel(consensus)).Inc()
	c.voteDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// =============================================================================
// 🚑 错误与恢复指标记录
// =============================================================================

// RecordErrorPattern 记录已分类的失败
func (c *Collector) RecordErrorPattern(pattern string) {
	if c == nil || pattern == "" {
		return
	}
	c.errorPatternsTotal.WithLabelValues(pattern).Inc()
}

// RecordEscalation 记录升级到人工处理
func (c *Collector) RecordEscalation(pattern string) {
	if c == nil {
		return
	}
	c.escalationsTotal.WithLabelValues(pattern).Inc()
}

// =============================================================================
// ✅ 校验与追踪指标记录
// =============================================================================

// RecordValidation 记录交叉校验结果
func (c *Collector) RecordValidation(level string, passed bool, confidence float64) {
	if c == nil {
		return
	}
	c.validationsTotal.WithLabelValues(level, boolLabel(passed)).Inc()
	c.validationConfidence.WithLabelValues(level).Observe(confidence)
}

// RecordTraceEntry 记录追踪条目
func (c *Collector) RecordTraceEntry(operation string) {
	if c == nil {
		return
	}
	c.traceEntriesTotal.WithLabelValues(operation).Inc()
}

// RecordDBQuery 记录数据库查询
func (c *Collector) RecordDBQuery(database, operation string, duration time.Duration) {
	if c == nil {
		return
	}
	c.dbQueryDuration.WithLabelValues(database, operation).Observe(duration.Seconds())
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

func boolLabel(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
