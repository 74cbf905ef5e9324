package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/BaSui01/agentquorum/agent"
	"github.com/BaSui01/agentquorum/llm"
	"github.com/BaSui01/agentquorum/llm/tools"
	"github.com/BaSui01/agentquorum/recovery"
	"github.com/BaSui01/agentquorum/tracing"
	"github.com/BaSui01/agentquorum/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventType 流式事件类型
type EventType string

const (
	EventContentDelta  EventType = "content_delta"
	EventToolCallDelta EventType = "tool_call_delta"
	EventMessage       EventType = "message"
	EventToolResult    EventType = "tool_result"
	EventHandoff       EventType = "handoff"
	EventDone          EventType = "done"
	EventError         EventType = "error"
)

// Handoff describes an active-agent switch.
type Handoff struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// StreamEvent is one event of RunStream. The channel is closed after a done or
// error event.
type StreamEvent struct {
	Type      EventType          `json:"type"`
	Agent     string             `json:"agent,omitempty"`
	Turn      int                `json:"turn,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
	Delta     string             `json:"delta,omitempty"`
	ToolCall  *llm.ToolCallDelta `json:"tool_call,omitempty"`
	Message   *types.Message     `json:"message,omitempty"`
	Result    *types.ToolResult  `json:"tool_result,omitempty"`
	Handoff   *Handoff           `json:"handoff,omitempty"`
	Response  *Response          `json:"response,omitempty"`
	Err       error              `json:"-"`
}

// RunStream runs the same state machine as Run and reports progress as events.
// Invalid input is reported synchronously; every later failure arrives as an
// error event carrying the partial Response.
func (e *Engine) RunStream(ctx context.Context, a *agent.Agent, history []types.Message, vars agent.Variables, maxTurns int) (<-chan StreamEvent, error) {
	st, err := e.newState(ctx, a, history, vars, maxTurns)
	if err != nil {
		return nil, err
	}

	events := make(chan StreamEvent)
	go func() {
		defer close(events)
		s := &streamer{engine: e, st: st, out: events}
		s.run(ctx)
	}()
	return events, nil
}

type streamer struct {
	engine *Engine
	st     *state
	out    chan<- StreamEvent
}

// emit delivers ev unless ctx is done.
func (s *streamer) emit(ctx context.Context, ev StreamEvent) bool {
	ev.Agent = s.st.active.Name
	ev.Turn = s.st.turns
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	select {
	case <-ctx.Done():
		return false
	case s.out <- ev:
		return true
	}
}

func (s *streamer) fail(ctx context.Context, err error) {
	s.emit(ctx, StreamEvent{Type: EventError, Err: err, Response: s.st.response()})
}

func (s *streamer) run(ctx context.Context) {
	e, st := s.engine, s.st
	for st.turns < st.maxTurns {
		if err := ctx.Err(); err != nil {
			s.fail(ctx, err)
			return
		}

		msg, preset, err := s.turn(ctx)
		if err != nil {
			s.fail(ctx, err)
			return
		}

		before := st.active
		appended := len(st.history)
		done, outcomes := e.step(ctx, st, msg, preset)

		assistant := st.history[appended]
		if !s.emit(ctx, StreamEvent{Type: EventMessage, Message: &assistant}) {
			return
		}
		for i := range outcomes {
			if !s.emit(ctx, StreamEvent{Type: EventToolResult, Result: &outcomes[i].Result}) {
				return
			}
		}
		if st.active != before && st.active.Name != before.Name {
			if !s.emit(ctx, StreamEvent{Type: EventHandoff, Handoff: &Handoff{From: before.Name, To: st.active.Name}}) {
				return
			}
		}
		if done {
			break
		}
	}

	e.finish(st)
	s.emit(ctx, StreamEvent{Type: EventDone, Response: st.response()})
}

// pendingCall accumulates the fragments of one streamed tool call.
type pendingCall struct {
	id   string
	name string
	args strings.Builder
}

// turn streams one model response. It returns the assembled assistant message
// and error outcomes for calls whose accumulated arguments are not valid JSON.
func (s *streamer) turn(ctx context.Context) (types.Message, map[int]tools.Outcome, error) {
	e, st := s.engine, s.st
	req := s.engine.request(ctx, st, true)
	start := time.Now()

	chunks, err := withRecovery(ctx, e, st, func() (<-chan llm.StreamChunk, error) {
		return e.provider.Stream(ctx, req)
	})
	if err != nil {
		e.metrics.RecordModelRequest(req.Model, "error", time.Since(start), 0, 0)
		return types.Message{}, nil, err
	}

	var (
		content strings.Builder
		calls   = map[int]*pendingCall{}
		order   []int
		usage   *llm.ChatUsage
	)
	for chunk := range chunks {
		if chunk.Err != nil {
			go drain(chunks)
			e.metrics.RecordModelRequest(req.Model, "error", time.Since(start), 0, 0)
			return types.Message{}, nil, s.streamFailure(ctx, chunk.Err)
		}
		if chunk.Usage != nil {
			usage = chunk.Usage
		}
		if chunk.Content != "" {
			content.WriteString(chunk.Content)
			if !s.emit(ctx, StreamEvent{Type: EventContentDelta, Delta: chunk.Content}) {
				go drain(chunks)
				return types.Message{}, nil, ctx.Err()
			}
		}
		for _, d := range chunk.ToolCallDeltas {
			pc, ok := calls[d.Index]
			if !ok {
				pc = &pendingCall{}
				calls[d.Index] = pc
				order = append(order, d.Index)
			}
			if pc.id == "" && d.ID != "" {
				pc.id = d.ID
			}
			if pc.name == "" && d.Name != "" {
				pc.name = d.Name
			}
			pc.args.WriteString(d.Arguments)

			delta := d
			if !s.emit(ctx, StreamEvent{Type: EventToolCallDelta, ToolCall: &delta}) {
				go drain(chunks)
				return types.Message{}, nil, ctx.Err()
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return types.Message{}, nil, err
	}

	slices.Sort(order)
	msg := types.NewAssistantMessage(content.String())
	var preset map[int]tools.Outcome
	for i, idx := range order {
		pc := calls[idx]
		if pc.id == "" {
			pc.id = "call_" + uuid.NewString()
		}
		raw := strings.TrimSpace(pc.args.String())
		call := types.ToolCall{ID: pc.id, Name: pc.name}
		switch {
		case raw == "":
		case json.Valid([]byte(raw)):
			call.Arguments = json.RawMessage(raw)
		default:
			// 非法参数以 JSON 字符串形式保留在历史中
			call.Arguments, _ = json.Marshal(raw)
			if preset == nil {
				preset = make(map[int]tools.Outcome)
			}
			preset[i] = tools.Outcome{
				Result:  types.NewErrorResult(call, fmt.Sprintf("invalid arguments: malformed JSON %q", raw), 0),
				Pattern: recovery.PatternMalformedOutput,
			}
			e.logger.Warn("streamed tool call has invalid arguments",
				zap.String("tool", pc.name), zap.String("id", pc.id))
		}
		msg.ToolCalls = append(msg.ToolCalls, call)
	}

	var prompt, completion, total int
	if usage != nil {
		prompt, completion, total = usage.PromptTokens, usage.CompletionTokens, usage.TotalTokens
	}
	elapsed := time.Since(start)
	e.metrics.RecordModelRequest(req.Model, "success", elapsed, prompt, completion)
	e.tracer.Log(ctx, tracing.Record{
		Operation: tracing.OpModelCall,
		AgentName: st.active.Name,
		Input:     map[string]any{"model": req.Model, "messages": len(req.Messages), "tools": len(req.Tools), "stream": true},
		Output:    map[string]any{"content": msg.Content, "tool_calls": len(msg.ToolCalls)},
		Duration:  elapsed,
		Metadata:  map[string]any{"run_id": st.runID, "turn": st.turns + 1, "total_tokens": total},
	})
	return msg, preset, nil
}

// streamFailure reports an error received mid-stream. Partial output was
// already emitted, so the call is not retried.
func (s *streamer) streamFailure(ctx context.Context, err error) error {
	e, st := s.engine, s.st
	strategy := e.recovery.Handle(ctx, err, map[string]any{"operation": "model_call", "agent": st.active.Name}, st.runID+"/model_call")
	e.tracer.Log(ctx, tracing.Record{
		Operation:    tracing.OpModelCall,
		AgentName:    st.active.Name,
		Output:       err.Error(),
		ErrorPattern: strategy.Pattern,
		Metadata:     map[string]any{"run_id": st.runID, "turn": st.turns + 1, "stream": true},
	})
	code := types.ErrModelCall
	if strategy.Escalated {
		code = types.ErrEscalated
	}
	return types.NewError(code, fmt.Sprintf("model stream for agent %s failed", st.active.Name)).WithCause(err)
}

func drain(chunks <-chan llm.StreamChunk) {
	for range chunks {
	}
}
