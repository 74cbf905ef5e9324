// 版权所有 2024 AgentQuorum Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package agent 定义编排会话中的参与者。

# 概述

Agent 是不可变的描述符：名称、模型、指令（静态文本或由共享上下文
渲染的纯函数）、有序工具集以及工具选择标志。所有 With* 方法返回
副本，原对象从不被修改。

# 核心类型

  - Agent：参与者描述符，按能力集合（工具 + 指令）区分，不使用继承
  - Tool：显式的工具结构体，注册时一次性生成 wire schema，
    并剔除 context_variables 参数
  - Result：工具的结构化返回值 {value, agent, context_variables}
  - Variables：在 Engine、Dispatcher、Voter 与 Validator 之间显式传递的共享上下文

# 工厂函数

NewSupervisorAgent、NewCodingAgent、NewKnowledgeAgent、NewImageAgent
按能力集合构建常用 Agent。NewHandoffTool 生成 transfer_to_<name> 工具，
其返回值即为移交信号。
*/
package agent
