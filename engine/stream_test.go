package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/BaSui01/agentquorum/agent"
	"github.com/BaSui01/agentquorum/llm"
	"github.com/BaSui01/agentquorum/testutil"
	"github.com/BaSui01/agentquorum/testutil/fixtures"
	"github.com/BaSui01/agentquorum/testutil/mocks"
	"github.com/BaSui01/agentquorum/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, ch <-chan StreamEvent) []StreamEvent {
	t.Helper()
	return testutil.Drain(t, ch, 5*time.Second)
}

func ofType(events []StreamEvent, typ EventType) []StreamEvent {
	var out []StreamEvent
	for _, ev := range events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func TestRunStream_ContentDeltas(t *testing.T) {
	content := "Hello from the streaming engine"
	provider := mocks.NewScriptedProvider(mocks.Text(content))
	eng := New(provider, fastConfig())

	ch, err := eng.RunStream(context.Background(), fixtures.SalesAgent(),
		[]types.Message{types.NewUserMessage("hi")}, nil, 0)
	require.NoError(t, err)
	events := collect(t, ch)

	var b strings.Builder
	for _, ev := range ofType(events, EventContentDelta) {
		b.WriteString(ev.Delta)
		assert.Equal(t, "Sales", ev.Agent)
	}
	assert.Equal(t, content, b.String())

	msgs := ofType(events, EventMessage)
	require.Len(t, msgs, 1)
	assert.Equal(t, content, msgs[0].Message.Content)
	assert.Equal(t, "Sales", msgs[0].Message.Sender)

	last := events[len(events)-1]
	require.Equal(t, EventDone, last.Type)
	require.NotNil(t, last.Response)
	assert.Equal(t, 1, last.Response.Turns)
	assert.True(t, provider.Calls()[0].Stream)
	assert.True(t, provider.LastRequest().Stream)
}

func TestRunStream_ToolArgumentsAccumulated(t *testing.T) {
	provider := mocks.NewScriptedProvider(
		mocks.Calls(mocks.ToolCall("c1", "calculator", map[string]any{"a": 2, "b": 3, "op": "mul"})),
		mocks.Text("It is 6"),
	)
	eng := New(provider, fastConfig())

	ch, err := eng.RunStream(context.Background(), calculatorAgent(), nil, nil, 0)
	require.NoError(t, err)
	events := collect(t, ch)

	deltas := ofType(events, EventToolCallDelta)
	require.Len(t, deltas, 2)
	assert.Equal(t, "c1", deltas[0].ToolCall.ID)
	assert.Empty(t, deltas[1].ToolCall.ID)

	msgs := ofType(events, EventMessage)
	require.Len(t, msgs, 2)
	require.Len(t, msgs[0].Message.ToolCalls, 1)
	call := msgs[0].Message.ToolCalls[0]
	assert.Equal(t, "c1", call.ID)
	assert.Equal(t, "calculator", call.Name)
	assert.JSONEq(t, `{"a":2,"b":3,"op":"mul"}`, string(call.Arguments))

	results := ofType(events, EventToolResult)
	require.Len(t, results, 1)
	assert.False(t, results[0].Result.IsError)
	assert.Equal(t, "6", results[0].Result.Content)

	done := events[len(events)-1]
	require.Equal(t, EventDone, done.Type)
	assert.Equal(t, 2, done.Response.Turns)
	require.Len(t, done.Response.Messages, 3)
}

func TestRunStream_InvalidArgumentsBecomeErrorResult(t *testing.T) {
	rec := mocks.NewToolRecorder()
	a := agent.New("Worker").WithTools(rec.Returning("lookup", "found"))
	provider := mocks.NewScriptedProvider(
		mocks.Reply{Chunks: []llm.StreamChunk{
			fixtures.ToolCallChunk(0, "c1", "lookup", `{"q": "go`),
			fixtures.ToolCallChunk(0, "", "", `lang`),
			fixtures.ToolCallChunk(1, "c2", "lookup", `{"q":`),
			fixtures.ToolCallChunk(1, "", "", `"rust"}`),
			fixtures.FinishChunk("tool_calls"),
		}},
		mocks.Text("partial answer"),
	)
	eng := New(provider, fastConfig())

	ch, err := eng.RunStream(context.Background(), a, nil, nil, 0)
	require.NoError(t, err)
	events := collect(t, ch)

	results := ofType(events, EventToolResult)
	require.Len(t, results, 2)
	assert.Equal(t, "c1", results[0].Result.ToolCallID)
	assert.True(t, results[0].Result.IsError)
	assert.Contains(t, results[0].Result.Content, "invalid arguments")
	assert.Equal(t, "c2", results[1].Result.ToolCallID)
	assert.False(t, results[1].Result.IsError)

	calls := rec.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "rust", calls[0].Args["q"])

	done := events[len(events)-1]
	require.Equal(t, EventDone, done.Type)
	last, _ := done.Response.LastMessage()
	assert.Equal(t, "partial answer", last.Content)
}

func TestRunStream_SynthesizesMissingCallID(t *testing.T) {
	rec := mocks.NewToolRecorder()
	a := agent.New("Worker").WithTools(rec.Returning("ping", "pong"))
	provider := mocks.NewScriptedProvider(
		mocks.Reply{Chunks: []llm.StreamChunk{fixtures.ToolCallChunk(0, "", "ping", `{}`)}},
		mocks.Text("done"),
	)
	eng := New(provider, fastConfig())

	ch, err := eng.RunStream(context.Background(), a, nil, nil, 0)
	require.NoError(t, err)
	events := collect(t, ch)

	msgs := ofType(events, EventMessage)
	require.NotEmpty(t, msgs)
	require.Len(t, msgs[0].Message.ToolCalls, 1)
	id := msgs[0].Message.ToolCalls[0].ID
	assert.True(t, strings.HasPrefix(id, "call_"))

	results := ofType(events, EventToolResult)
	require.Len(t, results, 1)
	assert.Equal(t, id, results[0].Result.ToolCallID)
}

func TestRunStream_HandoffEvent(t *testing.T) {
	provider := mocks.NewScriptedProvider(
		mocks.Calls(mocks.ToolCall("c1", agent.HandoffToolName("Sales"), nil)),
		mocks.Text("Sales here"),
	)
	eng := New(provider, fastConfig())

	ch, err := eng.RunStream(context.Background(), fixtures.TriageAgent(), nil, nil, 0)
	require.NoError(t, err)
	events := collect(t, ch)

	handoffs := ofType(events, EventHandoff)
	require.Len(t, handoffs, 1)
	assert.Equal(t, &Handoff{From: "Triage", To: "Sales"}, handoffs[0].Handoff)

	done := events[len(events)-1]
	require.Equal(t, EventDone, done.Type)
	assert.Equal(t, "Sales", done.Response.AgentName())
	assert.Equal(t, "Sales", done.Agent)
}

func TestRunStream_MaxTurns(t *testing.T) {
	provider := mocks.NewScriptedProvider().WithFallback(
		mocks.Calls(mocks.ToolCall("c1", "calculator", map[string]any{"a": 1, "b": 1, "op": "add"})))
	eng := New(provider, fastConfig())

	ch, err := eng.RunStream(context.Background(), calculatorAgent(), nil, nil, 3)
	require.NoError(t, err)
	events := collect(t, ch)

	assert.Len(t, ofType(events, EventMessage), 3)
	assert.Len(t, ofType(events, EventToolResult), 3)
	done := events[len(events)-1]
	require.Equal(t, EventDone, done.Type)
	assert.Equal(t, 3, done.Response.Turns)
}

func TestRunStream_MidStreamErrorEndsRun(t *testing.T) {
	provider := mocks.NewScriptedProvider(mocks.Reply{Chunks: []llm.StreamChunk{
		fixtures.TextChunk("par"),
		fixtures.ErrorChunk(types.NewError(types.ErrUpstreamError, "upstream stream broke")),
	}})
	eng := New(provider, fastConfig())

	ch, err := eng.RunStream(context.Background(), fixtures.SalesAgent(), nil, nil, 0)
	require.NoError(t, err)
	events := collect(t, ch)

	require.Len(t, ofType(events, EventContentDelta), 1)
	last := events[len(events)-1]
	require.Equal(t, EventError, last.Type)
	assert.Equal(t, types.ErrModelCall, types.GetErrorCode(last.Err))
	require.NotNil(t, last.Response)
	assert.Empty(t, last.Response.Messages)
	assert.Equal(t, 1, provider.CallCount())
}

func TestRunStream_RetriesStreamOpen(t *testing.T) {
	provider := mocks.NewFlakeyProvider(1, errors.New("connection reset by peer"), "recovered")
	eng := New(provider, fastConfig())

	ch, err := eng.RunStream(context.Background(), fixtures.SalesAgent(), nil, nil, 0)
	require.NoError(t, err)
	events := collect(t, ch)

	last := events[len(events)-1]
	require.Equal(t, EventDone, last.Type)
	msg, _ := last.Response.LastMessage()
	assert.Equal(t, "recovered", msg.Content)
	assert.Equal(t, 2, provider.CallCount())
}

func TestRunStream_InvalidAgentRejectedSynchronously(t *testing.T) {
	eng := New(mocks.NewSuccessProvider("ok"), fastConfig())
	ch, err := eng.RunStream(context.Background(), &agent.Agent{}, nil, nil, 0)
	require.Error(t, err)
	assert.Nil(t, ch)
	assert.Equal(t, types.ErrInvalidConfig, types.GetErrorCode(err))
}

func TestRunStream_ConsumerCancellationClosesChannel(t *testing.T) {
	provider := mocks.NewScriptedProvider().WithFallback(mocks.Text(strings.Repeat("token ", 50)))
	eng := New(provider, fastConfig())

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := eng.RunStream(ctx, fixtures.SalesAgent(), nil, nil, 0)
	require.NoError(t, err)

	first := <-ch
	assert.Equal(t, EventContentDelta, first.Type)
	cancel()

	testutil.Drain(t, ch, 2*time.Second)
}
