// 版权所有 2024 AgentQuorum Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 tracing 提供编排会话的精确追踪日志。

# 概述

Tracer 是一次编排会话的只追加、并发安全的结构化日志。会话开始时记录
worker ID，之后每个重要操作（轮次、模型调用、工具调用、移交、投票、
校验）都追加一条 TraceEntry。Clear 只会被所有者显式调用。

# 分析与导出

  - Summary：操作计数、按操作类型的延迟分位数 p50/p75/p90/p95/p99
    （nearest-rank）、按严重程度与错误模式的错误计数
  - Export：json、yaml（带摘要的快照信封）与 jsonl（每行一条记录）

# 扩展

  - Hook：OTelHook 将每条记录映射为一个 OpenTelemetry Span，
    MetricsHook 记录 Prometheus 计数
  - Sink：GormStore 写入 SQL（postgres/mysql/sqlite），
    RedisArchive 以 JSON 行追加到按会话划分的 Redis 列表。
    Tracer.Flush 写出快照，但不会清空日志
*/
package tracing
