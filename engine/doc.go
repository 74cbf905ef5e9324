// 版权所有 2024 AgentQuorum Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 engine 实现多 Agent 对话引擎：在有限轮次内驱动“模型 -> 工具 -> 模型”循环，
并在工具返回交接信号时切换当前 Agent。

# 单轮流程

 1. 用（克隆后的）上下文变量渲染当前 Agent 的指令，作为系统消息前置（不写入历史）
 2. 由 Agent 的工具生成 schema（context_variables 参数对模型不可见）
 3. 请求模型；失败时按 RecoveryManager 的分类结果重试，预算耗尽后升级
 4. 追加带 Sender 的助手消息；没有工具调用即结束
 5. 通过 Dispatcher 执行工具调用，按调用顺序追加工具消息
 6. 按结果顺序合并上下文更新，按 HandoffPolicy 处理交接

# 交接策略

  - last_wins：同一轮多个交接时最后一个生效（默认）
  - reject_multiple：出现两个及以上不同目标时全部忽略，记录 coordination_failure
  - vote：不同目标作为候选交给共识投票器决定

超过 max_turns 正常结束，不视为失败。Run 只在模型调用最终失败时返回错误；
工具失败与投票失败都以结果的形式记录在 Trace 中。

RunStream 使用同一状态机，增量输出内容与工具调用片段，工具参数按片段 index
拼接，拼接结果不是合法 JSON 时该调用得到错误结果而不会中断对话。
*/
package engine
