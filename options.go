package agentquorum

import (
	"time"

	"github.com/BaSui01/agentquorum/consensus"
	"github.com/BaSui01/agentquorum/recovery"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Option configures the Orchestrator created by New.
type Option func(*options)

type options struct {
	logger         *zap.Logger
	registry       *prometheus.Registry
	tracerProvider trace.TracerProvider
	scorer         consensus.ConfidenceScorer
	perspectives   []consensus.Perspective
	strategies     map[recovery.ErrorPattern]recovery.Strategy
	timeout        time.Duration
}

func (o options) initTimeout() time.Duration {
	if o.timeout > 0 {
		return o.timeout
	}
	return 10 * time.Second
}

// WithLogger sets the logger. Without it the logger is built from cfg.Log.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithRegistry registers metrics on reg instead of a private registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// WithTracerProvider receives trace spans when trace.otel is enabled. The
// default is the provider created from the telemetry section.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}

// WithScorer replaces the voter's confidence scorer.
func WithScorer(s consensus.ConfidenceScorer) Option {
	return func(o *options) { o.scorer = s }
}

// WithPerspectives sets the perspectives opinions are gathered from.
func WithPerspectives(p ...consensus.Perspective) Option {
	return func(o *options) { o.perspectives = append(o.perspectives, p...) }
}

// WithStrategy overrides the recovery strategy of one error pattern.
func WithStrategy(p recovery.ErrorPattern, s recovery.Strategy) Option {
	return func(o *options) {
		if o.strategies == nil {
			o.strategies = make(map[recovery.ErrorPattern]recovery.Strategy)
		}
		o.strategies[p] = s
	}
}

// WithInitTimeout bounds connecting to Redis and migrating the trace table.
func WithInitTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}
