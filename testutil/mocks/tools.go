// ToolRecorder 的工具测试模拟实现。
//
// 构建记录调用参数的 agent.Tool，支持固定结果、错误、延迟与 panic 场景。
package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/BaSui01/agentquorum/agent"
	"github.com/BaSui01/agentquorum/types"
)

// ToolInvocation 记录单次工具调用
type ToolInvocation struct {
	Tool string
	Args map[string]any
	Vars agent.Variables
	At   time.Time
}

// ToolRecorder builds tools whose invocations are recorded in call order.
type ToolRecorder struct {
	mu    sync.Mutex
	calls []ToolInvocation
}

// NewToolRecorder 创建工具调用记录器
func NewToolRecorder() *ToolRecorder {
	return &ToolRecorder{}
}

func (r *ToolRecorder) record(name string, args map[string]any, vars agent.Variables) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, ToolInvocation{Tool: name, Args: args, Vars: vars, At: time.Now()})
}

// Tool wraps fn so every invocation is recorded first.
func (r *ToolRecorder) Tool(name string, fn agent.ToolFunc, opts ...agent.ToolOption) *agent.Tool {
	return agent.MustTool(name, "Mock tool: "+name, types.NewObjectSchema(), func(ctx context.Context, args map[string]any, vars agent.Variables) (any, error) {
		r.record(name, args, vars)
		return fn(ctx, args, vars)
	}, opts...)
}

// Returning 返回固定结果的工具
func (r *ToolRecorder) Returning(name string, result any) *agent.Tool {
	return r.Tool(name, func(context.Context, map[string]any, agent.Variables) (any, error) {
		return result, nil
	})
}

// Failing 返回固定错误的工具
func (r *ToolRecorder) Failing(name string, err error) *agent.Tool {
	return r.Tool(name, func(context.Context, map[string]any, agent.Variables) (any, error) {
		return nil, err
	})
}

// Slow 在 delay 之后返回 result，期间响应 ctx 取消
func (r *ToolRecorder) Slow(name string, delay time.Duration, result any) *agent.Tool {
	return r.Tool(name, func(ctx context.Context, _ map[string]any, _ agent.Variables) (any, error) {
		if err := wait(ctx, delay); err != nil {
			return nil, err
		}
		return result, nil
	})
}

// Panicking 执行时 panic 的工具
func (r *ToolRecorder) Panicking(name string) *agent.Tool {
	return r.Tool(name, func(context.Context, map[string]any, agent.Variables) (any, error) {
		panic("mock tool panic: " + name)
	})
}

// Handoff 返回 target 的交接工具
func (r *ToolRecorder) Handoff(target *agent.Agent) *agent.Tool {
	return r.Tool(agent.HandoffToolName(target.Name), func(context.Context, map[string]any, agent.Variables) (any, error) {
		return target, nil
	})
}

// Calls 获取所有调用记录
func (r *ToolRecorder) Calls() []ToolInvocation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ToolInvocation(nil), r.calls...)
}

// CallsFor 获取指定工具的调用记录
func (r *ToolRecorder) CallsFor(name string) []ToolInvocation {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ToolInvocation
	for _, c := range r.calls {
		if c.Tool == name {
			out = append(out, c)
		}
	}
	return out
}

// Reset 清空调用记录
func (r *ToolRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}
