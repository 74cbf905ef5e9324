// ScriptedProvider 是按脚本回放响应的模型后端测试实现。
//
// 支持脚本化回复、流式输出、延迟与错误注入场景。
package mocks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/agentquorum/llm"
	"github.com/BaSui01/agentquorum/types"
)

// ErrScriptExhausted is returned once every scripted reply was consumed and no
// fallback is configured.
var ErrScriptExhausted = errors.New("mock provider: script exhausted")

// --- Reply ---

// Reply 描述一次脚本化的模型回复
type Reply struct {
	Content   string
	ToolCalls []types.ToolCall
	Err       error
	// Delay 在回复前等待，期间响应 ctx 取消
	Delay time.Duration
	// Chunks 覆盖 Stream 的默认分片
	Chunks []llm.StreamChunk
	Usage  llm.ChatUsage
}

// Text 返回纯文本回复
func Text(content string) Reply { return Reply{Content: content} }

// Calls 返回工具调用回复
func Calls(calls ...types.ToolCall) Reply { return Reply{ToolCalls: calls} }

// Fail 返回错误回复
func Fail(err error) Reply { return Reply{Err: err} }

// ToolCall builds a tool call whose arguments are the JSON encoding of args.
func ToolCall(id, name string, args any) types.ToolCall {
	tc := types.ToolCall{ID: id, Name: name}
	switch a := args.(type) {
	case nil:
	case string:
		tc.Arguments = json.RawMessage(a)
	case json.RawMessage:
		tc.Arguments = a
	default:
		data, err := json.Marshal(a)
		if err != nil {
			panic(fmt.Sprintf("mock tool call arguments: %v", err))
		}
		tc.Arguments = data
	}
	return tc
}

// --- ScriptedProvider ---

// Call 记录单次调用
type Call struct {
	Request *llm.ChatRequest
	Stream  bool
}

// ScriptedProvider replays replies in order, then repeats its fallback.
// Custom functions run outside the lock so concurrent callers are not serialized.
type ScriptedProvider struct {
	mu sync.Mutex

	script    []Reply
	next      int
	fallback  *Reply
	failAfter int

	completionFunc func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)
	streamFunc     func(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error)

	calls []Call
}

// NewScriptedProvider 创建按顺序回放 replies 的 Provider
func NewScriptedProvider(replies ...Reply) *ScriptedProvider {
	return &ScriptedProvider{script: append([]Reply(nil), replies...)}
}

// WithFallback 设置脚本耗尽后重复返回的回复
func (p *ScriptedProvider) WithFallback(r Reply) *ScriptedProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fallback = &r
	return p
}

// WithFailAfter 设置在第 N 次调用后失败
func (p *ScriptedProvider) WithFailAfter(n int) *ScriptedProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failAfter = n
	return p
}

// WithCompletionFunc 设置自定义 Completion 函数，优先于脚本
func (p *ScriptedProvider) WithCompletionFunc(fn func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)) *ScriptedProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completionFunc = fn
	return p
}

// WithStreamFunc 设置自定义 Stream 函数，优先于脚本
func (p *ScriptedProvider) WithStreamFunc(fn func(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error)) *ScriptedProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.streamFunc = fn
	return p
}

// Name 返回 Provider 名称
func (p *ScriptedProvider) Name() string { return "scripted" }

// take records the call and pops the next reply.
func (p *ScriptedProvider) take(req *llm.ChatRequest, stream bool) (Reply, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls = append(p.calls, Call{Request: req, Stream: stream})
	if p.failAfter > 0 && len(p.calls) > p.failAfter {
		return Reply{}, errors.New("mock provider: configured to fail after N calls")
	}
	if p.next < len(p.script) {
		r := p.script[p.next]
		p.next++
		return r, nil
	}
	if p.fallback != nil {
		return *p.fallback, nil
	}
	return Reply{}, ErrScriptExhausted
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Completion 返回下一条脚本回复
func (p *ScriptedProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	p.mu.Lock()
	fn := p.completionFunc
	p.mu.Unlock()
	if fn != nil {
		p.mu.Lock()
		p.calls = append(p.calls, Call{Request: req})
		p.mu.Unlock()
		return fn(ctx, req)
	}

	r, err := p.take(req, false)
	if err != nil {
		return nil, err
	}
	if err := wait(ctx, r.Delay); err != nil {
		return nil, err
	}
	if r.Err != nil {
		return nil, r.Err
	}
	return Response(req.Model, r), nil
}

// Response 把 Reply 转换为 ChatResponse
func Response(model string, r Reply) *llm.ChatResponse {
	finish := "stop"
	if len(r.ToolCalls) > 0 {
		finish = "tool_calls"
	}
	return &llm.ChatResponse{
		ID:       "scripted-response",
		Provider: "scripted",
		Model:    model,
		Choices: []llm.ChatChoice{{
			FinishReason: finish,
			Message: types.Message{
				Role:      types.RoleAssistant,
				Content:   r.Content,
				ToolCalls: r.ToolCalls,
			},
		}},
		Usage:     r.Usage,
		CreatedAt: time.Now(),
	}
}

// Stream 以分片形式返回下一条脚本回复。默认分片：内容按词切分，
// 每个工具调用的参数拆成两段，ID 与名称只出现在第一段。
func (p *ScriptedProvider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	p.mu.Lock()
	fn := p.streamFunc
	p.mu.Unlock()
	if fn != nil {
		p.mu.Lock()
		p.calls = append(p.calls, Call{Request: req, Stream: true})
		p.mu.Unlock()
		return fn(ctx, req)
	}

	r, err := p.take(req, true)
	if err != nil {
		return nil, err
	}
	if r.Err != nil {
		return nil, r.Err
	}
	chunks := r.Chunks
	if len(chunks) == 0 {
		chunks = DefaultChunks(r)
	}

	ch := make(chan llm.StreamChunk)
	go func() {
		defer close(ch)
		if err := wait(ctx, r.Delay); err != nil {
			return
		}
		for _, c := range chunks {
			select {
			case <-ctx.Done():
				return
			case ch <- c:
			}
		}
	}()
	return ch, nil
}

// DefaultChunks splits a reply into the fragments Stream emits by default.
func DefaultChunks(r Reply) []llm.StreamChunk {
	var out []llm.StreamChunk
	content := []rune(r.Content)
	for len(content) > 0 {
		n := min(len(content), 8)
		out = append(out, llm.StreamChunk{ID: "scripted-chunk", Content: string(content[:n])})
		content = content[n:]
	}
	for i, tc := range r.ToolCalls {
		args := string(tc.Arguments)
		half := len(args) / 2
		out = append(out,
			llm.StreamChunk{ID: "scripted-chunk", ToolCallDeltas: []llm.ToolCallDelta{{Index: i, ID: tc.ID, Name: tc.Name, Arguments: args[:half]}}},
			llm.StreamChunk{ID: "scripted-chunk", ToolCallDeltas: []llm.ToolCallDelta{{Index: i, Arguments: args[half:]}}},
		)
	}
	finish := "stop"
	if len(r.ToolCalls) > 0 {
		finish = "tool_calls"
	}
	out = append(out, llm.StreamChunk{ID: "scripted-chunk", FinishReason: finish})
	return out
}

// --- 查询方法 ---

// Calls 获取所有调用记录
func (p *ScriptedProvider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}

// CallCount 获取调用次数
func (p *ScriptedProvider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// LastRequest 获取最后一次请求
func (p *ScriptedProvider) LastRequest() *llm.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.calls) == 0 {
		return nil
	}
	return p.calls[len(p.calls)-1].Request
}

// Remaining 返回尚未消费的脚本回复数
func (p *ScriptedProvider) Remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.script) - p.next
}

// --- 预设 Provider 工厂 ---

// NewSuccessProvider 创建总是返回 response 的 Provider
func NewSuccessProvider(response string) *ScriptedProvider {
	return NewScriptedProvider().WithFallback(Text(response))
}

// NewErrorProvider 创建总是失败的 Provider
func NewErrorProvider(err error) *ScriptedProvider {
	return NewScriptedProvider().WithFallback(Fail(err))
}

// NewFlakeyProvider 创建前 failures 次调用失败、之后成功的 Provider
func NewFlakeyProvider(failures int, err error, response string) *ScriptedProvider {
	replies := make([]Reply, 0, failures)
	for i := 0; i < failures; i++ {
		replies = append(replies, Fail(err))
	}
	return NewScriptedProvider(replies...).WithFallback(Text(response))
}

// NewRouterProvider answers by request metadata key, falling back to fallback.
// Used to script per-opinion answers of the consensus voter.
func NewRouterProvider(key string, answers map[string]Reply, fallback Reply) *ScriptedProvider {
	p := NewScriptedProvider()
	return p.WithCompletionFunc(func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
		r, ok := answers[req.Metadata[key]]
		if !ok {
			r = fallback
		}
		if err := wait(ctx, r.Delay); err != nil {
			return nil, err
		}
		if r.Err != nil {
			return nil, r.Err
		}
		return Response(req.Model, r), nil
	})
}
