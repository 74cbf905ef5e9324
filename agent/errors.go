package agent

import "errors"

var (
	// ErrToolNotFound 工具未找到
	ErrToolNotFound = errors.New("tool not found")

	// ErrInvalidAgent Agent 描述无效
	ErrInvalidAgent = errors.New("invalid agent")

	// ErrInvalidTool 工具定义无效
	ErrInvalidTool = errors.New("invalid tool")
)
