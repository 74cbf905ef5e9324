// 版权所有 2024 AgentQuorum Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的编排指标采集能力，覆盖
模型调用、会话轮次、工具调用、共识投票、错误恢复、交叉校验与追踪。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用
promauto.With(registerer) 注册到调用方提供的 Registry，
所有指标按 namespace 隔离。Collector 的全部记录方法对 nil 接收者安全，
组件可以在未配置指标时直接调用。

# 主要能力

  - 模型指标：请求总数、耗时、Token 用量，按 model/status 分组。
  - 会话指标：轮次计数（按 agent）、移交计数（按 from/to）。
  - 工具指标：调用总数与耗时，按 tool/status 分组。
  - 投票指标：按解析方式（consensus/majority/best_confidence/
    single_agent/none）统计次数与耗时。
  - 错误指标：按 ErrorPattern 统计失败次数与升级次数。
  - 校验与追踪：校验通过率、置信度分布、追踪条目计数。
*/
package metrics
