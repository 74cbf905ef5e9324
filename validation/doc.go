// 版权所有 2024 AgentQuorum Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 validation 由其他 Agent 交叉验证一个回复的质量。

# 验证级别

级别严格递增，高级别包含所有低级别的检查：

  - LevelBasic: 非空、长度范围、error/todo/fixme/not implemented 关键词扫描
  - LevelSemantic: 第一个验证 Agent 对相关性、完整性、清晰度打分
  - LevelConsensus: 其余验证 Agent 并发打分，一致度 = 1 - min(4*方差, 1)，
    要求至少 2 个有效评分、方差 < MaxVariance 且一致度 >= ConfidenceThreshold
  - LevelComprehensive: 领域检查（coding 检查代码块格式，knowledge 检查引用）

各级别的通过阈值依次为 0.5、0.6、0.7、0.75。Confidence 为已执行阶段得分的
平均值；无法执行的阶段记 0 分并产生一条 Issue。Issue 逐级累积，每条 Issue
对应一条改进建议。
*/
package validation
