// 版权所有 2024 AgentQuorum Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 管理 AgentQuorum 共享的 Redis 连接。

# 概述

Manager 按 config.RedisConfig 建立 go-redis 客户端并在启动时 Ping，
之后由 recovery.RedisStore（恢复尝试计数）与 tracing.RedisArchive
（追踪条目归档）共用同一个客户端。

# 主要能力

  - 连接池管理：通过 PoolSize 与 MinIdleConns 控制连接复用。
  - 健康检查：后台定时 Ping 检测，异常时通过 zap 日志告警。
  - 优雅关闭：Close 停止健康检查后释放底层连接。
  - 统计：GetStats 暴露连接池命中、超时与连接数。
*/
package cache
