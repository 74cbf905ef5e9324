// Package telemetry 封装 OpenTelemetry SDK 初始化逻辑，
// 为 AgentQuorum 提供 TracerProvider 和 MeterProvider，追踪条目通过
// tracing.OTelHook 写入同一个 TracerProvider。
// 当遥测功能禁用时，使用 noop 实现，不连接任何外部服务。
package telemetry
