// 版权所有 2024 AgentQuorum Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package tools 提供工具注册与调度。

Registry 按注册顺序保存工具，拒绝重名。声明了 RateLimit 的工具自带
golang.org/x/time/rate 令牌桶，Registry 在调度前取令牌，因此限流跨
Registry 与多次运行生效。

Dispatcher 以顺序或有界并发（errgroup.SetLimit）方式执行一批工具调用，
结果按下标写回，输出顺序始终与输入一致。单个工具的失败（未注册、参数
无效、返回错误、panic、超时、批次截止）都被转换为错误结果，不会中断
整个批次；截止后才到达的结果被丢弃。
*/
package tools
