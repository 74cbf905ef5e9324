package tracing

import (
	"context"
	"fmt"

	"github.com/BaSui01/agentquorum/internal/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/BaSui01/agentquorum/tracing"

// OTelHook mirrors every entry as an OpenTelemetry span. The entry is logged
// when the operation completes, so the span covers [Timestamp-Duration, Timestamp].
type OTelHook struct {
	tracer trace.Tracer
}

// NewOTelHook 创建 OTel 桥接钩子。tp 为 nil 时使用全局 TracerProvider。
func NewOTelHook(tp trace.TracerProvider) *OTelHook {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &OTelHook{tracer: tp.Tracer(instrumentationName)}
}

func (h *OTelHook) OnEntry(ctx context.Context, e TraceEntry) {
	attrs := []attribute.KeyValue{
		attribute.String("agentquorum.entry_id", e.ID),
		attribute.String("agentquorum.session_id", e.SessionID),
		attribute.String("agentquorum.worker_id", e.WorkerID),
		attribute.String("agentquorum.operation", e.Operation),
	}
	if e.AgentName != "" {
		attrs = append(attrs, attribute.String("agentquorum.agent", e.AgentName))
	}
	if e.ErrorPattern != "" {
		attrs = append(attrs, attribute.String("agentquorum.error_pattern", string(e.ErrorPattern)))
	}
	for k, v := range e.Metadata {
		attrs = append(attrs, attribute.String("agentquorum.meta."+k, fmt.Sprint(v)))
	}

	_, span := h.tracer.Start(ctx, e.Operation,
		trace.WithTimestamp(e.Timestamp.Add(-e.Duration)),
		trace.WithAttributes(attrs...),
	)
	if e.IsError() {
		span.SetStatus(codes.Error, string(e.ErrorPattern))
	}
	span.End(trace.WithTimestamp(e.Timestamp))
}

// MetricsHook counts entries per operation in Prometheus.
type MetricsHook struct {
	collector *metrics.Collector
}

// NewMetricsHook 创建指标钩子。
func NewMetricsHook(c *metrics.Collector) *MetricsHook {
	return &MetricsHook{collector: c}
}

func (h *MetricsHook) OnEntry(_ context.Context, e TraceEntry) {
	h.collector.RecordTraceEntry(e.Operation)
}
