// =============================================================================
// 📦 测试数据工厂 - Agent 测试数据
// =============================================================================
// 提供预定义的 Agent、工具与对话历史，用于测试
// =============================================================================
package fixtures

import (
	"context"
	"fmt"

	"github.com/BaSui01/agentquorum/agent"
	"github.com/BaSui01/agentquorum/types"
)

// =============================================================================
// 🤖 Agent 工厂
// =============================================================================

// SalesAgent 返回销售 Agent
func SalesAgent() *agent.Agent {
	return agent.New("Sales").
		WithDescription("Handles pricing questions and new orders.").
		WithInstructions("You sell products. Be concise.")
}

// RefundAgent 返回退款 Agent，带有 process_refund 工具
func RefundAgent() *agent.Agent {
	return agent.New("Refunds").
		WithDescription("Handles refunds and returns.").
		WithInstructions("You process refunds.").
		WithTools(ProcessRefundTool())
}

// TriageAgent 返回可以交接给 Sales 与 Refunds 的分诊 Agent
func TriageAgent() *agent.Agent {
	return agent.NewSupervisorAgent("Triage", agent.DefaultModel, SalesAgent(), RefundAgent()).
		WithDescription("Routes the user to the right team.")
}

// Candidates 返回用于投票的候选 Agent
func Candidates(names ...string) []*agent.Agent {
	out := make([]*agent.Agent, 0, len(names))
	for _, n := range names {
		out = append(out, agent.New(n).WithDescription(n+" specialist"))
	}
	return out
}

// =============================================================================
// 🔧 工具工厂
// =============================================================================

// CalculatorTool 返回四则运算工具
func CalculatorTool() *agent.Tool {
	params := types.NewObjectSchema().
		AddProperty("a", types.NewNumberSchema().WithDescription("First operand")).
		AddProperty("b", types.NewNumberSchema().WithDescription("Second operand")).
		AddProperty("op", types.NewEnumSchema("add", "sub", "mul", "div")).
		AddRequired("a", "b", "op")

	return agent.MustTool("calculator", "Perform basic arithmetic operations", params,
		func(_ context.Context, args map[string]any, _ agent.Variables) (any, error) {
			a, _ := args["a"].(float64)
			b, _ := args["b"].(float64)
			switch args["op"] {
			case "add":
				return a + b, nil
			case "sub":
				return a - b, nil
			case "mul":
				return a * b, nil
			case "div":
				if b == 0 {
					return nil, fmt.Errorf("division by zero")
				}
				return a / b, nil
			}
			return nil, fmt.Errorf("unsupported op %v", args["op"])
		})
}

// ProcessRefundTool 返回读取 context_variables 中 user_id 的退款工具
func ProcessRefundTool() *agent.Tool {
	params := types.NewObjectSchema().
		AddProperty("item_id", types.NewStringSchema()).
		AddProperty(agent.ContextVariablesParam, types.NewObjectSchema()).
		AddRequired("item_id")

	return agent.MustTool("process_refund", "Refund an item", params,
		func(_ context.Context, args map[string]any, vars agent.Variables) (any, error) {
			user, _ := vars.String("user_id")
			return agent.Result{
				Value:            fmt.Sprintf("refunded %v for %s", args["item_id"], user),
				ContextVariables: agent.Variables{"refund_issued": true},
			}, nil
		})
}

// =============================================================================
// 💬 对话历史工厂
// =============================================================================

// SimpleConversation 返回单轮用户消息
func SimpleConversation(content string) []types.Message {
	return []types.Message{types.NewUserMessage(content)}
}

// ConversationWithToolCalls 返回包含一次工具调用及结果的对话
func ConversationWithToolCalls() []types.Message {
	call := types.ToolCall{ID: "call_1", Name: "calculator", Arguments: []byte(`{"a":1,"b":2,"op":"add"}`)}
	return []types.Message{
		types.NewUserMessage("What is 1 + 2?"),
		types.NewAssistantMessage("").WithToolCalls([]types.ToolCall{call}),
		types.NewToolMessage("call_1", "calculator", "3"),
		types.NewAssistantMessage("1 + 2 = 3"),
	}
}

// LongConversation 返回指定轮数的对话
func LongConversation(turns int) []types.Message {
	out := make([]types.Message, 0, turns*2)
	for i := 0; i < turns; i++ {
		out = append(out,
			types.NewUserMessage(fmt.Sprintf("question %d", i+1)),
			types.NewAssistantMessage(fmt.Sprintf("answer %d", i+1)),
		)
	}
	return out
}
