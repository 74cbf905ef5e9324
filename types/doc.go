// 版权所有 2024 AgentQuorum Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package types 提供 agentquorum 编排引擎的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 agent、engine、consensus、
validation、tracing 等上层模块提供统一的类型契约，避免循环依赖。

# 核心类型

  - Message           — 对话消息（Role、Content、ToolCalls、Sender）
  - ToolCall          — 模型发起的工具调用（id 与 ToolResult 一一对应）
  - ToolResult        — 工具执行结果（Content + IsError）
  - ToolSchema        — 发送给模型的工具定义
  - JSONSchema        — 工具参数的类型化 Schema，Without 用于剔除内部参数
  - Error / ErrorCode — 结构化错误，含 Retryable 与 Cause

# 主要能力

  - Context 传播：WithTraceID / WithSessionID / WithWorkerID / WithOperationID
  - 历史工具：CopyMessages / LastUserMessage（历史只追加，不修改）
*/
package types
