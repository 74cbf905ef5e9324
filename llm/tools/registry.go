package tools

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/BaSui01/agentquorum/agent"
	"github.com/BaSui01/agentquorum/types"
	"go.uber.org/zap"
)

var (
	// ErrDuplicateTool 重复注册同名工具
	ErrDuplicateTool = errors.New("tool already registered")
)

type entry struct {
	tool *agent.Tool
}

// Registry maps tool names to tool definitions in registration order.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []string
	logger  *zap.Logger
}

// NewRegistry 创建工具注册中心并按顺序注册给定工具。
func NewRegistry(logger *zap.Logger, tools ...*agent.Tool) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		entries: make(map[string]*entry, len(tools)),
		logger:  logger.With(zap.String("component", "tool_registry")),
	}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// RegistryFor builds a registry holding the agent's tools.
func RegistryFor(a *agent.Agent, logger *zap.Logger) (*Registry, error) {
	return NewRegistry(logger, a.Tools...)
}

// Register adds a tool. Names must be unique.
func (r *Registry) Register(t *agent.Tool) error {
	if t == nil || t.Name == "" {
		return fmt.Errorf("%w: missing tool name", agent.ErrInvalidTool)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[t.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, t.Name)
	}

	r.entries[t.Name] = &entry{tool: t}
	r.order = append(r.order, t.Name)

	r.logger.Debug("tool registered", zap.String("name", t.Name), zap.Duration("timeout", t.Timeout))
	return nil
}

// Unregister removes a tool.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[name]; !exists {
		return fmt.Errorf("%w: %s", agent.ErrToolNotFound, name)
	}
	delete(r.entries, name)
	r.order = slices.DeleteFunc(r.order, func(n string) bool { return n == name })

	r.logger.Debug("tool unregistered", zap.String("name", name))
	return nil
}

// Get looks a tool up by name.
func (r *Registry) Get(name string) (*agent.Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", agent.ErrToolNotFound, name)
	}
	return e.tool, nil
}

// Has reports whether a tool is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// List returns the wire schemas in registration order.
func (r *Registry) List() []types.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schemas := make([]types.ToolSchema, 0, len(r.order))
	for _, name := range r.order {
		schemas = append(schemas, r.entries[name].tool.Schema())
	}
	return schemas
}

// allow 检查是否触发速率限制，令牌桶由工具自身持有
func (r *Registry) allow(name string) bool {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return true
	}
	return e.tool.Allow()
}
