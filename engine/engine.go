package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/BaSui01/agentquorum/agent"
	"github.com/BaSui01/agentquorum/consensus"
	"github.com/BaSui01/agentquorum/internal/metrics"
	"github.com/BaSui01/agentquorum/llm"
	"github.com/BaSui01/agentquorum/llm/retry"
	"github.com/BaSui01/agentquorum/llm/tools"
	"github.com/BaSui01/agentquorum/recovery"
	"github.com/BaSui01/agentquorum/tracing"
	"github.com/BaSui01/agentquorum/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Response is the outcome of one Run.
type Response struct {
	// Messages holds only the messages appended by this run.
	Messages  []types.Message `json:"messages"`
	Agent     *agent.Agent    `json:"-"`
	Variables agent.Variables `json:"context_variables"`
	Turns     int             `json:"turns"`
}

// AgentName 返回最终 Agent 名称
func (r *Response) AgentName() string {
	if r == nil || r.Agent == nil {
		return ""
	}
	return r.Agent.Name
}

// LastMessage returns the last appended message.
func (r *Response) LastMessage() (types.Message, bool) {
	if r == nil || len(r.Messages) == 0 {
		return types.Message{}, false
	}
	return r.Messages[len(r.Messages)-1], true
}

// Engine 多 Agent 对话引擎
type Engine struct {
	provider   llm.Provider
	cfg        Config
	dispatcher *tools.Dispatcher
	recovery   *recovery.Manager
	voter      *consensus.Voter
	tracer     *tracing.Tracer
	metrics    *metrics.Collector
	logger     *zap.Logger
}

// Option 引擎选项
type Option func(*Engine)

// WithTracer 设置追踪器
func WithTracer(t *tracing.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithRecovery sets the manager that decides model-call retries.
func WithRecovery(m *recovery.Manager) Option {
	return func(e *Engine) { e.recovery = m }
}

// WithVoter sets the voter used by Route and the vote handoff policy.
func WithVoter(v *consensus.Voter) Option {
	return func(e *Engine) { e.voter = v }
}

// WithDispatcher 设置工具调度器
func WithDispatcher(d *tools.Dispatcher) Option {
	return func(e *Engine) { e.dispatcher = d }
}

// WithMetrics 设置指标收集器
func WithMetrics(c *metrics.Collector) Option {
	return func(e *Engine) { e.metrics = c }
}

// WithLogger 设置日志
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New 创建对话引擎。未注入的组件使用默认实现。
func New(provider llm.Provider, cfg Config, opts ...Option) *Engine {
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = 10
	}
	if cfg.HandoffPolicy == "" {
		cfg.HandoffPolicy = HandoffLastWins
	}
	if cfg.Voting.CandidateCount == 0 {
		cfg.Voting = consensus.DefaultVotingConfig()
	}

	e := &Engine{provider: provider, cfg: cfg}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.dispatcher == nil {
		e.dispatcher = tools.NewDispatcher(tools.DefaultDispatchConfig(), e.logger, tools.WithMetrics(e.metrics))
	}
	if e.recovery == nil {
		e.recovery = recovery.NewManager(e.logger, recovery.WithMetrics(e.metrics))
	}
	if e.voter == nil {
		e.voter = consensus.NewVoter(provider, e.logger,
			consensus.WithTracer(e.tracer), consensus.WithMetrics(e.metrics))
	}
	e.logger = e.logger.With(zap.String("component", "engine"))
	return e
}

// Config 返回引擎配置
func (e *Engine) Config() Config {
	return e.cfg
}

// Run drives the conversation from agent a for at most maxTurns model turns
// (Config.MaxTurns when maxTurns <= 0). history and vars are never modified.
// An error is returned only for an invalid agent or a model call that failed
// after recovery; the Response then holds the messages appended so far.
func (e *Engine) Run(ctx context.Context, a *agent.Agent, history []types.Message, vars agent.Variables, maxTurns int) (*Response, error) {
	st, err := e.newState(ctx, a, history, vars, maxTurns)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("run started",
		zap.String("run_id", st.runID),
		zap.String("agent", a.Name),
		zap.Int("max_turns", st.maxTurns))

	for st.turns < st.maxTurns {
		msg, err := e.complete(ctx, st)
		if err != nil {
			return st.response(), err
		}
		if done, _ := e.step(ctx, st, msg, nil); done {
			break
		}
	}

	e.finish(st)
	return st.response(), nil
}

// Route picks one of candidates for message through the consensus voter.
func (e *Engine) Route(ctx context.Context, message string, candidates []*agent.Agent) (*consensus.VotingResult, error) {
	return e.voter.Vote(ctx, message, candidates, e.cfg.Voting)
}

// state is the mutable state of one run.
type state struct {
	runID    string
	active   *agent.Agent
	history  []types.Message
	start    int
	vars     agent.Variables
	turns    int
	maxTurns int
	began    time.Time

	// 本次运行内按 Agent 复用的工具注册表，随运行结束释放
	registries map[*agent.Agent]*tools.Registry
}

func (e *Engine) newState(ctx context.Context, a *agent.Agent, history []types.Message, vars agent.Variables, maxTurns int) (*state, error) {
	if err := a.Validate(); err != nil {
		return nil, types.NewError(types.ErrInvalidConfig, "invalid agent").WithCause(err)
	}
	if maxTurns <= 0 {
		maxTurns = e.cfg.MaxTurns
	}
	runID, ok := types.OperationID(ctx)
	if !ok || runID == "" {
		runID = uuid.NewString()
	}
	return &state{
		runID:    runID,
		active:   a,
		history:  types.CopyMessages(history),
		start:    len(history),
		vars:     vars.Clone(),
		maxTurns: maxTurns,
		began:    time.Now(),

		registries: make(map[*agent.Agent]*tools.Registry),
	}, nil
}

func (st *state) response() *Response {
	return &Response{
		Messages:  append([]types.Message(nil), st.history[st.start:]...),
		Agent:     st.active,
		Variables: st.vars.Clone(),
		Turns:     st.turns,
	}
}

func (e *Engine) finish(st *state) {
	fields := []zap.Field{
		zap.String("run_id", st.runID),
		zap.String("agent", st.active.Name),
		zap.Int("turns", st.turns),
		zap.Duration("elapsed", time.Since(st.began)),
	}
	if st.turns >= st.maxTurns {
		e.logger.Debug("run stopped at max turns", fields...)
		return
	}
	e.logger.Debug("run completed", fields...)
}

// request builds the model request of the current turn. The system message is
// not part of the stored history.
func (e *Engine) request(ctx context.Context, st *state, stream bool) *llm.ChatRequest {
	a := st.active
	model := a.Model
	if e.cfg.ModelOverride != "" {
		model = e.cfg.ModelOverride
	}

	messages := make([]types.Message, 0, len(st.history)+1)
	messages = append(messages, types.NewSystemMessage(a.RenderInstructions(st.vars)))
	messages = append(messages, st.history...)

	traceID, _ := types.TraceID(ctx)
	req := &llm.ChatRequest{
		TraceID:  traceID,
		Model:    model,
		Messages: messages,
		Stream:   stream,
		Metadata: map[string]string{
			"agent":  a.Name,
			"run_id": st.runID,
			"turn":   strconv.Itoa(st.turns + 1),
		},
	}
	if schemas := a.ToolSchemas(); len(schemas) > 0 {
		req.Tools = schemas
		req.ToolChoice = a.ToolChoice
		parallel := a.ParallelToolCalls
		req.ParallelToolCalls = &parallel
	}
	return req
}

// complete performs the model call of one turn with recovery-driven retries.
func (e *Engine) complete(ctx context.Context, st *state) (types.Message, error) {
	req := e.request(ctx, st, false)
	start := time.Now()

	resp, err := withRecovery(ctx, e, st, func() (*llm.ChatResponse, error) {
		resp, err := e.provider.Completion(ctx, req)
		if err != nil {
			return nil, err
		}
		if _, ok := resp.FirstMessage(); !ok {
			return nil, errors.New("malformed model response: no choices")
		}
		return resp, nil
	})
	elapsed := time.Since(start)
	if err != nil {
		e.metrics.RecordModelRequest(req.Model, "error", elapsed, 0, 0)
		return types.Message{}, err
	}

	e.metrics.RecordModelRequest(req.Model, "success", elapsed, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	msg, _ := resp.FirstMessage()
	e.tracer.Log(ctx, tracing.Record{
		Operation: tracing.OpModelCall,
		AgentName: st.active.Name,
		Input:     map[string]any{"model": req.Model, "messages": len(req.Messages), "tools": len(req.Tools)},
		Output:    map[string]any{"content": msg.Content, "tool_calls": len(msg.ToolCalls)},
		Duration:  elapsed,
		Metadata:  map[string]any{"run_id": st.runID, "turn": st.turns + 1, "total_tokens": resp.Usage.TotalTokens},
	})
	return msg, nil
}

// withRecovery runs fn under the retry policy. Every failure is reported to the
// recovery manager, and only retryable, non-escalated strategies are retried.
func withRecovery[T any](ctx context.Context, e *Engine, st *state, fn func() (T, error)) (T, error) {
	operationID := st.runID + "/model_call"
	opCtx := map[string]any{"operation": "model_call", "agent": st.active.Name}

	var last recovery.Strategy
	failures := 0
	policy := e.cfg.Retry.policy()
	policy.ShouldRetry = func(_ int, err error) bool {
		failures++
		last = e.recovery.Handle(ctx, err, opCtx, operationID)
		return last.Retryable()
	}

	out, err := retry.DoWithResultTyped(retry.NewBackoffRetryer(policy, e.logger), ctx, fn)
	if err == nil {
		if failures > 0 {
			e.recovery.MarkRecovered(operationID)
			e.tracer.Log(ctx, tracing.Record{
				Operation: tracing.OpRecovery,
				AgentName: st.active.Name,
				Output:    string(last.Action),
				Metadata: map[string]any{
					"run_id":   st.runID,
					"turn":     st.turns + 1,
					"pattern":  string(last.Pattern),
					"failures": failures,
				},
			})
		}
		return out, nil
	}
	if failures == 0 {
		// 重试器在判定前被取消
		last = e.recovery.Handle(ctx, err, opCtx, operationID)
	}

	e.tracer.Log(ctx, tracing.Record{
		Operation:    tracing.OpModelCall,
		AgentName:    st.active.Name,
		Output:       err.Error(),
		ErrorPattern: last.Pattern,
		Metadata: map[string]any{
			"run_id":    st.runID,
			"turn":      st.turns + 1,
			"action":    string(last.Action),
			"attempts":  last.Attempt,
			"escalated": last.Escalated,
		},
	})

	var zero T
	if last.Escalated {
		return zero, types.NewError(types.ErrEscalated,
			fmt.Sprintf("model call for agent %s escalated after %d failures", st.active.Name, last.Attempt)).WithCause(err)
	}
	return zero, types.NewError(types.ErrModelCall,
		fmt.Sprintf("model call for agent %s failed", st.active.Name)).WithCause(err)
}

// step appends the assistant message and, when it requests tools, dispatches
// them and applies their results. preset holds outcomes already decided for
// some calls (indexed like msg.ToolCalls) that must not be dispatched.
// It reports whether the run is finished and returns the tool outcomes.
func (e *Engine) step(ctx context.Context, st *state, msg types.Message, preset map[int]tools.Outcome) (bool, []tools.Outcome) {
	st.turns++
	msg.Role = types.RoleAssistant
	msg = msg.WithSender(st.active.Name)
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	st.history = append(st.history, msg)
	e.metrics.RecordTurn(st.active.Name)

	if !msg.HasToolCalls() {
		e.logTurn(ctx, st, msg, nil)
		return true, nil
	}

	outcomes := e.dispatch(ctx, st, msg.ToolCalls, preset)
	e.logTurn(ctx, st, msg, outcomes)
	e.apply(ctx, st, outcomes)
	return false, outcomes
}

func (e *Engine) registry(st *state) *tools.Registry {
	a := st.active
	if r, ok := st.registries[a]; ok {
		return r
	}
	r, err := tools.RegistryFor(a, e.logger)
	if err != nil {
		// Validate 已拒绝重复工具，这里只可能是空名称工具
		e.logger.Warn("failed to build tool registry", zap.String("agent", a.Name), zap.Error(err))
		r, _ = tools.NewRegistry(e.logger)
	}
	st.registries[a] = r
	return r
}

// dispatch executes the calls that have no preset outcome and returns one
// outcome per call, in call order.
func (e *Engine) dispatch(ctx context.Context, st *state, calls []types.ToolCall, preset map[int]tools.Outcome) []tools.Outcome {
	outcomes := make([]tools.Outcome, len(calls))
	pending := make([]types.ToolCall, 0, len(calls))
	index := make([]int, 0, len(calls))
	for i, c := range calls {
		if o, ok := preset[i]; ok {
			outcomes[i] = o
			continue
		}
		pending = append(pending, c)
		index = append(index, i)
	}

	d := e.dispatcher
	if !st.active.ParallelToolCalls {
		d = d.Sequential()
	}
	for j, o := range d.Execute(ctx, pending, e.registry(st), st.vars) {
		outcomes[index[j]] = o
	}

	for i, o := range outcomes {
		e.tracer.Log(ctx, tracing.Record{
			Operation:    tracing.OpToolCall,
			AgentName:    st.active.Name,
			Input:        map[string]any{"id": calls[i].ID, "name": calls[i].Name, "arguments": string(calls[i].Arguments)},
			Output:       o.Result.Content,
			Duration:     o.Result.Duration,
			ErrorPattern: o.Pattern,
			Metadata:     map[string]any{"run_id": st.runID, "turn": st.turns, "handoff": o.Handoff != nil},
		})
	}
	return outcomes
}

// apply appends the tool messages, merges context updates in result order and
// resolves handoffs.
func (e *Engine) apply(ctx context.Context, st *state, outcomes []tools.Outcome) {
	var requested []*agent.Agent
	for _, o := range outcomes {
		st.history = append(st.history, o.Result.ToMessage())
		if len(o.ContextUpdates) > 0 {
			st.vars = st.vars.Merge(o.ContextUpdates)
		}
		if o.Handoff != nil {
			requested = append(requested, o.Handoff)
		}
	}
	if next := e.resolveHandoff(ctx, st, requested); next != nil {
		e.switchAgent(ctx, st, next)
	}
}

func (e *Engine) switchAgent(ctx context.Context, st *state, next *agent.Agent) {
	from := st.active
	st.active = next
	if from.Name == next.Name {
		return
	}
	e.metrics.RecordHandoff(from.Name, next.Name)
	e.tracer.Log(ctx, tracing.Record{
		Operation: tracing.OpHandoff,
		AgentName: from.Name,
		Input:     map[string]any{"from": from.Name},
		Output:    map[string]any{"to": next.Name},
		Metadata:  map[string]any{"run_id": st.runID, "turn": st.turns, "policy": string(e.cfg.HandoffPolicy)},
	})
	e.logger.Debug("handoff", zap.String("from", from.Name), zap.String("to", next.Name), zap.Int("turn", st.turns))
}

func (e *Engine) logTurn(ctx context.Context, st *state, msg types.Message, outcomes []tools.Outcome) {
	failed := 0
	for _, o := range outcomes {
		if o.Result.IsError {
			failed++
		}
	}
	e.tracer.Log(ctx, tracing.Record{
		Operation: tracing.OpTurn,
		AgentName: st.active.Name,
		Output:    msg.Content,
		Metadata: map[string]any{
			"run_id":        st.runID,
			"turn":          st.turns,
			"tool_calls":    len(msg.ToolCalls),
			"tool_failures": failed,
		},
	})
}
