// =============================================================================
// 📦 测试数据工厂 - 模型响应测试数据
// =============================================================================
// 提供预定义的模型回复与流式分片，用于测试
// =============================================================================
package fixtures

import (
	"encoding/json"

	"github.com/BaSui01/agentquorum/llm"
	"github.com/BaSui01/agentquorum/types"
)

// =============================================================================
// 🎯 验证者回复
// =============================================================================

// ValidatorScore 返回验证 Agent 的 JSON 评分回复
func ValidatorScore(relevance, completeness, clarity float64, issues ...string) string {
	if issues == nil {
		issues = []string{}
	}
	data, _ := json.Marshal(map[string]any{
		"issues":       issues,
		"relevance":    relevance,
		"completeness": completeness,
		"clarity":      clarity,
	})
	return string(data)
}

// FencedValidatorScore 返回包裹在 ```json 代码块中的评分回复
func FencedValidatorScore(relevance, completeness, clarity float64) string {
	return "Here is my assessment:\n```json\n" + ValidatorScore(relevance, completeness, clarity) + "\n```"
}

// =============================================================================
// 🌊 流式分片工厂
// =============================================================================

// TextChunk 创建文本分片
func TextChunk(content string) llm.StreamChunk {
	return llm.StreamChunk{ID: "chunk", Content: content}
}

// ToolCallChunk 创建工具调用参数分片
func ToolCallChunk(index int, id, name, args string) llm.StreamChunk {
	return llm.StreamChunk{
		ID:             "chunk",
		ToolCallDeltas: []llm.ToolCallDelta{{Index: index, ID: id, Name: name, Arguments: args}},
	}
}

// FinishChunk 创建结束分片
func FinishChunk(reason string) llm.StreamChunk {
	return llm.StreamChunk{ID: "chunk", FinishReason: reason}
}

// ErrorChunk 创建携带错误的分片
func ErrorChunk(err *types.Error) llm.StreamChunk {
	return llm.StreamChunk{ID: "chunk", Err: err}
}

// WordByWordChunks 将单词逐个拆成文本分片
func WordByWordChunks(words []string) []llm.StreamChunk {
	out := make([]llm.StreamChunk, 0, len(words)+1)
	for i, w := range words {
		if i > 0 {
			w = " " + w
		}
		out = append(out, TextChunk(w))
	}
	return append(out, FinishChunk("stop"))
}

// =============================================================================
// 📊 Token 使用量
// =============================================================================

// SmallUsage 返回小量 Token 使用
func SmallUsage() llm.ChatUsage {
	return CustomUsage(10, 20)
}

// CustomUsage 返回自定义 Token 使用
func CustomUsage(prompt, completion int) llm.ChatUsage {
	return llm.ChatUsage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	}
}
