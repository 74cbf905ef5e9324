// 版权所有 2024 AgentQuorum Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 提供基于 GORM 的数据库连接与连接池管理，供追踪条目的
SQL 持久化使用。

# 概述

Open 根据 config.DatabaseConfig 选择方言（postgres、mysql，以及纯 Go 的
glebarez/sqlite），打开连接并包装为 PoolManager。PoolManager 统一管理
连接生命周期、空闲回收与最大连接数，后台健康检查定时探活。

# 核心类型

  - PoolManager：连接池管理器，提供 DB()、Ping()、Stats()、Close()。
  - PoolConfig：连接池配置，Validate 校验取值范围。
  - TransactionFunc：事务回调函数类型。

# 主要能力

  - 事务管理：WithTransaction 单次执行，WithTransactionRetry 对死锁、
    序列化失败等错误做指数退避重试。
  - 指标：设置 Collector 后记录每次事务耗时。
*/
package database
