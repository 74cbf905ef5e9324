// 版权所有 2024 AgentQuorum Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 consensus 通过多次独立意见投票在候选 Agent 之间选择一个。

# 投票流程

Voter.Vote 针对同一条消息生成 CandidateCount 份意见，每份意见使用不同的
视角（task_fit、domain_expertise、efficiency，循环使用），模型回复中最早
出现的候选名称即为该票的选择。意见可以并行收集（单一截止时间）或顺序收集
（每票子超时 = Timeout / CandidateCount），开启 EarlyTermination 时任一候选
达到 WinningVoteCount 后立即停止收集。

# 决议顺序

 1. 任一候选票数 >= WinningVoteCount：达成共识
 2. FallbackToMajority：相对多数，置信度 ×0.8
 3. FallbackToBestConfidence：平均置信度最高且不低于阈值，置信度 ×0.7
 4. AllowSingleAgentFallback：选择 DefaultAgent，置信度 0.3
 5. 否则无选择，ErrorPattern = consensus_failure

超时时若已收集的票数仍构成共识则照常宣布，否则直接进入第 4/5 步并标记
timeout_error。票数平局时先收到首票的候选胜出。

# 置信度

每票的置信度由 ConfidenceScorer 计算，默认 HeuristicScorer 根据回复的
果断程度打分（简短、无犹豫词的回复得分更高），结果截断到 [0,1]。
*/
package consensus
