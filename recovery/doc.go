// 版权所有 2024 AgentQuorum Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 recovery 提供错误分类与恢复策略管理。

# 错误分类

Classify 基于关键词（错误文本的小写形式加上 operation 提示）将任意失败
映射到固定的 ErrorPattern 集合。分类规则按固定优先级匹配：取消、超时、
网络、共识、校验/Schema、解析、不可用、资源、分解、上下文、置信度，
最后是兜底分类。相同的输入总是得到相同的分类结果。

# 恢复策略

每个 ErrorPattern 对应一条默认 Strategy {action, parameters, max_retries}。
Manager.Handle 通过 AttemptStore 为 (operation_id, pattern) 计数，
失败次数超过 max_retries+1 时升级为 escalate_to_human。

# 计数存储

  - MemoryStore：进程内计数，互斥锁保护
  - RedisStore：基于 go-redis 的 INCR + TTL，跨进程共享计数

Analytics 返回错误模式频率分布、恢复成功率估计与最近一小时的错误数。
*/
package recovery
