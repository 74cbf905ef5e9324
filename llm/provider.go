package llm

import (
	"context"
	"time"

	"github.com/BaSui01/agentquorum/types"
)

// Message is the wire message exchanged with a model backend.
type Message = types.Message

// ToolChoice values understood by backends. Any other non-empty value names a tool.
const (
	ToolChoiceAuto     = "auto"
	ToolChoiceNone     = "none"
	ToolChoiceRequired = "required"
)

// ChatRequest 是发送给模型后端的一次请求。
type ChatRequest struct {
	TraceID           string             `json:"trace_id,omitempty"`
	Model             string             `json:"model"`
	Messages          []Message          `json:"messages"`
	Tools             []types.ToolSchema `json:"tools,omitempty"`
	ToolChoice        string             `json:"tool_choice,omitempty"` // auto/none/required/<tool name>
	ParallelToolCalls *bool              `json:"parallel_tool_calls,omitempty"`
	Stream            bool               `json:"stream,omitempty"`
	Timeout           time.Duration      `json:"timeout,omitempty"`
	Metadata          map[string]string  `json:"metadata,omitempty"`
}

type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

type ChatChoice struct {
	Index        int     `json:"index"`
	FinishReason string  `json:"finish_reason,omitempty"`
	Message      Message `json:"message"`
}

type ChatResponse struct {
	ID        string       `json:"id,omitempty"`
	Provider  string       `json:"provider,omitempty"`
	Model     string       `json:"model"`
	Choices   []ChatChoice `json:"choices"`
	Usage     ChatUsage    `json:"usage,omitempty"`
	CreatedAt time.Time    `json:"created_at,omitempty"`
}

// FirstMessage returns the message of the first choice.
func (r *ChatResponse) FirstMessage() (Message, bool) {
	if r == nil || len(r.Choices) == 0 {
		return Message{}, false
	}
	return r.Choices[0].Message, true
}

// ToolCallDelta is one fragment of a streamed tool call. Fragments sharing an
// Index belong to the same call; ID and Name usually arrive only in the first one.
type ToolCallDelta struct {
	Index     int    `json:"index"`
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// StreamChunk is one incremental piece of a streamed response.
// The stream ends when the channel is closed.
type StreamChunk struct {
	ID             string          `json:"id,omitempty"`
	Model          string          `json:"model,omitempty"`
	Content        string          `json:"content,omitempty"`
	ToolCallDeltas []ToolCallDelta `json:"tool_call_deltas,omitempty"`
	FinishReason   string          `json:"finish_reason,omitempty"`
	Usage          *ChatUsage      `json:"usage,omitempty"`
	Err            error           `json:"-"`
}

// Provider 定义了统一的模型后端适配接口。
// 工具调用通过 ChatRequest.Tools 传递，模型在响应中返回 ToolCalls，
// 具体的工具执行由独立的 Dispatcher 负责（见 llm/tools 包）。
type Provider interface {
	// Completion 发起同步聊天请求，返回完整响应
	Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Stream 发起流式聊天请求，返回增量响应通道；通道关闭即为结束标记
	Stream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error)

	// Name 返回 Provider 的唯一标识
	Name() string
}
