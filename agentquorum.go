// Package agentquorum wires the conversation engine, tool dispatch, consensus
// voting, error recovery, tracing and validation into one Orchestrator built
// from a config.Config.
//
// Usage:
//
//	cfg, err := config.NewLoader().WithConfigPath("agentquorum.yaml").Load()
//	orch, err := agentquorum.New(provider, cfg)
//	defer orch.Close()
//
//	resp, err := orch.Run(ctx, triage, history, nil, 0)
package agentquorum

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/agentquorum/agent"
	"github.com/BaSui01/agentquorum/config"
	"github.com/BaSui01/agentquorum/consensus"
	"github.com/BaSui01/agentquorum/engine"
	"github.com/BaSui01/agentquorum/internal/cache"
	"github.com/BaSui01/agentquorum/internal/database"
	"github.com/BaSui01/agentquorum/internal/metrics"
	"github.com/BaSui01/agentquorum/internal/telemetry"
	"github.com/BaSui01/agentquorum/llm"
	"github.com/BaSui01/agentquorum/llm/tools"
	"github.com/BaSui01/agentquorum/recovery"
	"github.com/BaSui01/agentquorum/tracing"
	"github.com/BaSui01/agentquorum/types"
	"github.com/BaSui01/agentquorum/validation"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Orchestrator owns the shared components. Engine and validator settings can be
// replaced at runtime with Reload; stores and sinks are fixed at construction.
type Orchestrator struct {
	provider llm.Provider
	opts     options
	logger   *zap.Logger

	registry  *prometheus.Registry
	metrics   *metrics.Collector
	telemetry *telemetry.Providers
	tracer    *tracing.Tracer
	recovery  *recovery.Manager
	redis     *cache.Manager
	db        *database.PoolManager
	sink      tracing.Sink

	mu        sync.RWMutex
	cfg       *config.Config
	engine    *engine.Engine
	validator *validation.Validator
	reloader  *config.HotReloadManager
	closed    bool
}

// New builds an Orchestrator. A nil cfg uses config.DefaultConfig.
func New(provider llm.Provider, cfg *config.Config, opts ...Option) (*Orchestrator, error) {
	if provider == nil {
		return nil, types.NewError(types.ErrInvalidConfig, "provider is required")
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &Orchestrator{provider: provider, cfg: cfg}
	for _, opt := range opts {
		opt(&o.opts)
	}

	logger := o.opts.logger
	if logger == nil {
		var err error
		if logger, err = cfg.Log.BuildLogger(); err != nil {
			return nil, err
		}
	}
	o.logger = logger.With(zap.String("component", "orchestrator"))

	if err := o.init(logger); err != nil {
		if cerr := o.Close(); cerr != nil {
			o.logger.Warn("cleanup after failed init", zap.Error(cerr))
		}
		return nil, err
	}

	o.logger.Info("orchestrator ready",
		zap.String("session_id", o.tracer.SessionID()),
		zap.String("recovery_store", cfg.Recovery.Store),
		zap.String("trace_sink", cfg.Trace.Sink),
		zap.String("handoff_policy", cfg.Engine.HandoffPolicy))
	return o, nil
}

func (o *Orchestrator) init(logger *zap.Logger) error {
	cfg := o.cfg
	ctx, cancel := context.WithTimeout(context.Background(), o.opts.initTimeout())
	defer cancel()

	if cfg.Metrics.Enabled {
		o.registry = o.opts.registry
		if o.registry == nil {
			o.registry = prometheus.NewRegistry()
		}
		o.metrics = metrics.NewCollector(cfg.Metrics.Namespace, o.registry, logger)
	}

	tp, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	o.telemetry = tp

	traceOpts := []tracing.Option{tracing.WithHook(tracing.NewMetricsHook(o.metrics))}
	if cfg.Trace.SessionID != "" {
		traceOpts = append(traceOpts, tracing.WithSessionID(cfg.Trace.SessionID))
	}
	if cfg.Trace.WorkerID != "" {
		traceOpts = append(traceOpts, tracing.WithWorkerID(cfg.Trace.WorkerID))
	}
	if cfg.Trace.OTel {
		provider := o.opts.tracerProvider
		if provider == nil {
			provider = tp.TracerProvider()
		}
		traceOpts = append(traceOpts, tracing.WithHook(tracing.NewOTelHook(provider)))
	}
	o.tracer = tracing.NewTracer(logger, traceOpts...)

	if cfg.Recovery.Store == "redis" || cfg.Trace.Sink == "redis" {
		if o.redis, err = cache.NewManager(ctx, cfg.Redis, logger); err != nil {
			return err
		}
	}

	recOpts := []recovery.Option{
		recovery.WithMetrics(o.metrics),
		recovery.WithMaxHistory(cfg.Recovery.MaxHistory),
	}
	if cfg.Recovery.Store == "redis" {
		store := recovery.NewRedisStore(o.redis.Client(), cfg.Recovery.KeyPrefix, cfg.Recovery.AttemptTTL, logger)
		recOpts = append(recOpts, recovery.WithStore(store))
	}
	for p, s := range o.opts.strategies {
		recOpts = append(recOpts, recovery.WithStrategy(p, s))
	}
	o.recovery = recovery.NewManager(logger, recOpts...)

	switch cfg.Trace.Sink {
	case "redis":
		o.sink = tracing.NewRedisArchive(o.redis.Client(), cfg.Trace.KeyPrefix, cfg.Trace.TTL, logger)
	case "database":
		if o.db, err = database.Open(cfg.Database, logger); err != nil {
			return fmt.Errorf("open trace database: %w", err)
		}
		o.db.SetMetrics(o.metrics)
		if o.sink, err = tracing.NewGormStore(ctx, o.db, logger); err != nil {
			return err
		}
	}

	o.engine, o.validator = o.build(cfg)
	return nil
}

// build creates the components whose settings are reloadable.
func (o *Orchestrator) build(cfg *config.Config) (*engine.Engine, *validation.Validator) {
	voterOpts := []consensus.Option{
		consensus.WithTracer(o.tracer),
		consensus.WithMetrics(o.metrics),
	}
	if o.opts.scorer != nil {
		voterOpts = append(voterOpts, consensus.WithScorer(o.opts.scorer))
	}
	if len(o.opts.perspectives) > 0 {
		voterOpts = append(voterOpts, consensus.WithPerspectives(o.opts.perspectives...))
	}
	voter := consensus.NewVoter(o.provider, o.logger, voterOpts...)
	dispatcher := tools.NewDispatcher(dispatchConfig(cfg.Dispatch), o.logger, tools.WithMetrics(o.metrics))

	eng := engine.New(o.provider, engineConfig(cfg),
		engine.WithLogger(o.logger),
		engine.WithTracer(o.tracer),
		engine.WithRecovery(o.recovery),
		engine.WithVoter(voter),
		engine.WithDispatcher(dispatcher),
		engine.WithMetrics(o.metrics),
	)
	validator := validation.NewValidator(o.provider, validationConfig(cfg.Validation), o.logger,
		validation.WithTracer(o.tracer),
		validation.WithMetrics(o.metrics),
	)
	return eng, validator
}

func (o *Orchestrator) current() (*engine.Engine, *validation.Validator) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.engine, o.validator
}

// Run drives a conversation starting at agent a. See engine.Engine.Run.
func (o *Orchestrator) Run(ctx context.Context, a *agent.Agent, history []types.Message, vars agent.Variables, maxTurns int) (*engine.Response, error) {
	eng, _ := o.current()
	return eng.Run(ctx, a, history, vars, maxTurns)
}

// RunStream is the streaming form of Run.
func (o *Orchestrator) RunStream(ctx context.Context, a *agent.Agent, history []types.Message, vars agent.Variables, maxTurns int) (<-chan engine.StreamEvent, error) {
	eng, _ := o.current()
	return eng.RunStream(ctx, a, history, vars, maxTurns)
}

// Route selects the agent that should handle message by consensus vote.
func (o *Orchestrator) Route(ctx context.Context, message string, candidates []*agent.Agent) (*consensus.VotingResult, error) {
	eng, _ := o.current()
	return eng.Route(ctx, message, candidates)
}

// Validate checks resp with the configured validator up to level.
func (o *Orchestrator) Validate(ctx context.Context, resp validation.Response, validators []*agent.Agent, level validation.Level, vars agent.Variables) *validation.ValidationResult {
	_, v := o.current()
	return v.Validate(ctx, resp, validators, level, vars, 0)
}

// Tracer 返回共享追踪器
func (o *Orchestrator) Tracer() *tracing.Tracer { return o.tracer }

// Recovery 返回共享恢复管理器
func (o *Orchestrator) Recovery() *recovery.Manager { return o.recovery }

// Registry returns the Prometheus registry, nil when metrics are disabled.
func (o *Orchestrator) Registry() *prometheus.Registry { return o.registry }

// Config returns the active configuration.
func (o *Orchestrator) Config() *config.Config {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.cfg
}

// FlushTraces writes the current trace log to the configured sink. It is a
// no-op when trace.sink is none.
func (o *Orchestrator) FlushTraces(ctx context.Context) error {
	if o.sink == nil {
		return nil
	}
	if err := o.tracer.Flush(ctx, o.sink); err != nil {
		return fmt.Errorf("flush traces: %w", err)
	}
	o.logger.Debug("traces flushed", zap.Int("entries", o.tracer.Len()))
	return nil
}

// Reload applies the engine, dispatch, voting and validation sections of cfg.
// Runs already in progress keep the components they started with.
func (o *Orchestrator) Reload(cfg *config.Config) error {
	if cfg == nil {
		return types.NewError(types.ErrInvalidConfig, "config is required")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	eng, validator := o.build(cfg)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return errClosed
	}
	o.cfg, o.engine, o.validator = cfg, eng, validator
	o.logger.Info("configuration reloaded",
		zap.Int("max_turns", cfg.Engine.MaxTurns),
		zap.String("handoff_policy", cfg.Engine.HandoffPolicy))
	return nil
}

// WatchConfig reloads the configuration whenever path changes. The watch ends
// with ctx or Close.
func (o *Orchestrator) WatchConfig(ctx context.Context, path string, opts ...config.WatcherOption) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return errClosed
	}
	if o.reloader != nil {
		o.mu.Unlock()
		return fmt.Errorf("config watch already running")
	}
	m := config.NewHotReloadManager(o.cfg,
		config.WithReloadPath(path),
		config.WithHotReloadLogger(o.logger),
		config.WithWatcherOptions(opts...))
	o.reloader = m
	o.mu.Unlock()

	m.OnReload(func(_, newConfig *config.Config) error {
		return o.Reload(newConfig)
	})
	if err := m.Start(ctx); err != nil {
		o.mu.Lock()
		o.reloader = nil
		o.mu.Unlock()
		return err
	}
	return nil
}

var errClosed = errors.New("orchestrator is closed")

// Close stops the config watch and releases stores and exporters. Pending
// traces are flushed to the sink first.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	reloader := o.reloader
	o.mu.Unlock()

	var errs []error
	if reloader != nil {
		errs = append(errs, reloader.Stop())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if o.tracer != nil {
		errs = append(errs, o.FlushTraces(ctx))
	}
	if o.db != nil {
		errs = append(errs, o.db.Close())
	}
	if o.redis != nil {
		errs = append(errs, o.redis.Close())
	}
	errs = append(errs, o.telemetry.Shutdown(ctx))
	if o.opts.logger == nil && o.logger != nil {
		_ = o.logger.Sync()
	}
	return errors.Join(errs...)
}

func engineConfig(cfg *config.Config) engine.Config {
	policy, _ := engine.ParseHandoffPolicy(cfg.Engine.HandoffPolicy)
	return engine.Config{
		MaxTurns:      cfg.Engine.MaxTurns,
		ModelOverride: cfg.Engine.ModelOverride,
		HandoffPolicy: policy,
		Retry: engine.RetryConfig{
			MaxRetries:   cfg.Engine.Retry.MaxRetries,
			InitialDelay: cfg.Engine.Retry.InitialDelay,
			MaxDelay:     cfg.Engine.Retry.MaxDelay,
			Multiplier:   cfg.Engine.Retry.Multiplier,
			Jitter:       cfg.Engine.Retry.Jitter,
		},
		Voting: votingConfig(cfg.Voting),
	}
}

func votingConfig(v config.VotingConfig) consensus.VotingConfig {
	return consensus.VotingConfig{
		WinningVoteCount:         v.WinningVoteCount,
		CandidateCount:           v.CandidateCount,
		MaxRounds:                v.MaxRounds,
		Timeout:                  v.Timeout,
		Parallel:                 v.Parallel,
		EarlyTermination:         v.EarlyTermination,
		ConfidenceThreshold:      v.ConfidenceThreshold,
		FallbackToMajority:       v.FallbackToMajority,
		FallbackToBestConfidence: v.FallbackToBestConfidence,
		AllowSingleAgentFallback: v.AllowSingleAgentFallback,
		Model:                    v.Model,
		DefaultAgent:             v.DefaultAgent,
	}
}

func dispatchConfig(d config.DispatchConfig) tools.DispatchConfig {
	return tools.DispatchConfig{
		Parallel:       d.Parallel,
		MaxConcurrency: d.MaxConcurrency,
		Timeout:        d.Timeout,
		BatchTimeout:   d.BatchTimeout,
	}
}

func validationConfig(v config.ValidationConfig) validation.Config {
	return validation.Config{
		MinLength:           v.MinLength,
		MaxLength:           v.MaxLength,
		ConfidenceThreshold: v.ConfidenceThreshold,
		MaxVariance:         v.MaxVariance,
		Timeout:             v.Timeout,
		ErrorKeywords:       v.ErrorKeywords,
		ModelOverride:       v.ModelOverride,
	}
}
