package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/BaSui01/agentquorum/agent"
	"github.com/BaSui01/agentquorum/internal/metrics"
	"github.com/BaSui01/agentquorum/recovery"
	"github.com/BaSui01/agentquorum/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Failure messages carried by error results.
const (
	msgToolNotFound     = "tool not found"
	msgInvalidArguments = "invalid arguments"
	msgToolPanicked     = "tool panicked"
	msgExecutionTimeout = "execution timeout"
	msgCancelled        = "cancelled"
	msgRateLimited      = "rate limit exceeded"
)

// DispatchConfig 工具调度配置
type DispatchConfig struct {
	// Parallel 开启后在 MaxConcurrency 上限内并发执行
	Parallel       bool          `yaml:"parallel" env:"PARALLEL"`
	MaxConcurrency int           `yaml:"max_concurrency" env:"MAX_CONCURRENCY"`
	// Timeout 单个工具的默认超时，Tool.Timeout 优先
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// BatchTimeout 整批调用共享的截止时间，0 表示只受调用方 ctx 约束
	BatchTimeout time.Duration `yaml:"batch_timeout" env:"BATCH_TIMEOUT"`
}

// DefaultDispatchConfig 返回默认调度配置。
func DefaultDispatchConfig() DispatchConfig {
	return DispatchConfig{
		Parallel:       true,
		MaxConcurrency: 8,
		Timeout:        30 * time.Second,
		BatchTimeout:   2 * time.Minute,
	}
}

// Outcome is the result of one tool call plus the signals it produced.
type Outcome struct {
	Result         types.ToolResult
	Handoff        *agent.Agent
	ContextUpdates agent.Variables
	// Pattern is the classified failure, empty on success.
	Pattern recovery.ErrorPattern
}

// DispatcherOption 调度器选项
type DispatcherOption func(*Dispatcher)

// WithMetrics attaches a metrics collector.
func WithMetrics(c *metrics.Collector) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = c }
}

// Dispatcher executes tool calls and always returns one Outcome per call, in call order.
type Dispatcher struct {
	cfg     DispatchConfig
	logger  *zap.Logger
	metrics *metrics.Collector
}

// NewDispatcher 创建工具调度器。
func NewDispatcher(cfg DispatchConfig, logger *zap.Logger, opts ...DispatcherOption) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 8
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	d := &Dispatcher{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "tool_dispatcher")),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Config returns the dispatcher configuration.
func (d *Dispatcher) Config() DispatchConfig {
	return d.cfg
}

// Sequential returns a dispatcher sharing this one's settings but running calls one at a time.
func (d *Dispatcher) Sequential() *Dispatcher {
	c := *d
	c.cfg.Parallel = false
	return &c
}

// Execute runs calls against registry. Failures never abort the batch; each
// becomes an error result. Results arriving after the batch deadline are discarded.
func (d *Dispatcher) Execute(ctx context.Context, calls []types.ToolCall, registry *Registry, vars agent.Variables) []Outcome {
	outcomes := make([]Outcome, len(calls))
	if len(calls) == 0 {
		return outcomes
	}

	execCtx := ctx
	if d.cfg.BatchTimeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, d.cfg.BatchTimeout)
		defer cancel()
	}

	start := time.Now()
	if d.cfg.Parallel && len(calls) > 1 {
		var g errgroup.Group
		g.SetLimit(d.cfg.MaxConcurrency)
		for i, call := range calls {
			g.Go(func() error {
				outcomes[i] = d.ExecuteOne(execCtx, call, registry, vars)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i, call := range calls {
			outcomes[i] = d.ExecuteOne(execCtx, call, registry, vars)
		}
	}

	failed := 0
	for _, o := range outcomes {
		if o.Result.IsError {
			failed++
		}
	}
	d.logger.Debug("tool batch completed",
		zap.Int("total", len(calls)),
		zap.Int("failed", failed),
		zap.Bool("parallel", d.cfg.Parallel),
		zap.Duration("duration", time.Since(start)))

	return outcomes
}

type toolDone struct {
	res agent.Result
	err error
}

// ExecuteOne runs a single call.
func (d *Dispatcher) ExecuteOne(ctx context.Context, call types.ToolCall, registry *Registry, vars agent.Variables) Outcome {
	start := time.Now()

	fail := func(msg string, cause error) Outcome {
		o := Outcome{
			Result:  types.NewErrorResult(call, msg, time.Since(start)),
			Pattern: recovery.Classify(cause, map[string]any{"operation": "tool_call", "tool": call.Name}),
		}
		d.metrics.RecordToolCall(call.Name, "error", o.Result.Duration)
		d.metrics.RecordErrorPattern(string(o.Pattern))
		return o
	}

	if err := ctx.Err(); err != nil {
		return fail(msgCancelled, err)
	}

	// 1. 查找工具
	tool, err := registry.Get(call.Name)
	if err != nil {
		d.logger.Warn("tool not found", zap.String("name", call.Name))
		return fail(fmt.Sprintf("%s: %s", msgToolNotFound, call.Name), err)
	}

	// 2. 速率限制
	if !registry.allow(call.Name) {
		d.logger.Warn("rate limit exceeded", zap.String("name", call.Name))
		return fail(fmt.Sprintf("%s: %s", msgRateLimited, call.Name), errors.New(msgRateLimited))
	}

	// 3. 解析参数
	args, err := decodeArguments(call.Arguments)
	if err != nil {
		d.logger.Warn("invalid tool arguments", zap.String("name", call.Name), zap.Error(err))
		return fail(fmt.Sprintf("%s: %v", msgInvalidArguments, err), err)
	}

	// 4. 执行（带超时控制）
	timeout := tool.Timeout
	if timeout <= 0 {
		timeout = d.cfg.Timeout
	}
	toolCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// 带缓冲的 channel：超时后无人接收，goroutine 也能退出，迟到的结果被丢弃
	done := make(chan toolDone, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				d.logger.Error("tool panicked",
					zap.String("name", call.Name),
					zap.Any("panic", p),
					zap.ByteString("stack", debug.Stack()))
				done <- toolDone{err: &panicError{value: p}}
			}
		}()
		res, err := tool.Execute(toolCtx, args, vars.Clone())
		done <- toolDone{res: res, err: err}
	}()

	expired := func() Outcome {
		if ctx.Err() != nil {
			d.logger.Warn("tool cancelled", zap.String("name", call.Name))
			return fail(msgCancelled, ctx.Err())
		}
		d.logger.Warn("tool execution timeout", zap.String("name", call.Name), zap.Duration("timeout", timeout))
		return fail(fmt.Sprintf("%s after %s", msgExecutionTimeout, timeout), toolCtx.Err())
	}

	select {
	case out := <-done:
		if out.err != nil {
			var pe *panicError
			if errors.As(out.err, &pe) {
				return fail(fmt.Sprintf("%s: %v", msgToolPanicked, pe.value), out.err)
			}
			if toolCtx.Err() != nil {
				return expired()
			}
			d.logger.Debug("tool execution failed", zap.String("name", call.Name), zap.Error(out.err))
			return fail(out.err.Error(), out.err)
		}
		o := Outcome{
			Result: types.ToolResult{
				ToolCallID: call.ID,
				Name:       call.Name,
				Content:    out.res.Value,
				Duration:   time.Since(start),
			},
			Handoff:        out.res.Agent,
			ContextUpdates: out.res.ContextVariables,
		}
		d.metrics.RecordToolCall(call.Name, "success", o.Result.Duration)
		return o

	case <-toolCtx.Done():
		return expired()
	}
}

type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("%s: %v", msgToolPanicked, e.value)
}

// decodeArguments parses the model-supplied arguments. The shared context
// parameter is never accepted from the model.
func decodeArguments(raw json.RawMessage) (map[string]any, error) {
	args := map[string]any{}
	if len(raw) == 0 || string(raw) == "null" {
		return args, nil
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]any{}
	}
	delete(args, agent.ContextVariablesParam)
	return args, nil
}
