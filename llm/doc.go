// 版权所有 2024 AgentQuorum Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 llm 定义编排引擎与模型后端之间的协议。

# 概述

引擎本身不做推理，只通过 [Provider] 接口与外部模型服务交互：
同步调用返回一条 assistant 消息（可能携带 ToolCalls），流式调用返回
内容与工具调用参数的增量片段，通道关闭即为结束标记。

# 核心类型

  - [Provider]：Completion / Stream / Name
  - [ChatRequest]：model、messages、tools、tool_choice、parallel_tool_calls、stream
  - [ChatResponse]：一个或多个 choice，通常只取第一个
  - [StreamChunk] / [ToolCallDelta]：流式增量，按 Index 拼接工具参数

子包：

  - llm/retry：带指数退避的重试器，供引擎包装模型调用
  - llm/tools：工具注册表与调度器
*/
package llm
