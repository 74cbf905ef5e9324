// 版权所有 2024 AgentQuorum Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package config 提供 AgentQuorum 的配置管理。

配置按 默认值 → YAML 文件 → 环境变量（前缀 AGENTQUORUM）的顺序叠加，
各组件的配置段（engine、dispatch、voting、validation、recovery、trace）
与基础设施配置段（redis、database、log、telemetry、metrics）并列。

Config.Validate 校验法定票数等约束并返回 ErrInvalidConfig。
HotReloadManager 通过 FileWatcher 轮询配置文件，校验后通知订阅者，
订阅者返回错误时自动回滚。
*/
package config
