// 版权所有 2024 AgentQuorum Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package testutil 提供 AgentQuorum 测试的共享工具和辅助函数。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 日志辅助: Logger（zaptest）与 ObservedLogger（可断言日志）
  - 断言工具: AssertMessagesEqual / AssertEventuallyTrue
  - 通道辅助: Drain / CollectStreamContent / SendChunksToChannel

# 子包

  - testutil/mocks: ScriptedProvider（按脚本回放的模型后端）、
    ToolRecorder（记录调用的工具构建器）
  - testutil/fixtures: 预置 Agent、工具、对话历史、验证者评分回复与流式分片

# 使用示例

	ctx := testutil.TestContext(t)
	provider := mocks.NewScriptedProvider(mocks.Text("hello"))
	resp, err := provider.Completion(ctx, req)
	require.NoError(t, err)
*/
package testutil
