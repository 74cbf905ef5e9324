package agent

import (
	"fmt"
	"slices"

	"github.com/BaSui01/agentquorum/types"
)

// InstructionsFunc renders instructions from the shared context. It must be pure.
type InstructionsFunc func(vars Variables) string

// Agent is an immutable descriptor of a participant: model, instructions and tools.
// Every With* method returns a modified copy; the receiver is never changed.
type Agent struct {
	Name              string
	Description       string
	Model             string
	Instructions      string
	InstructionsFunc  InstructionsFunc
	Tools             []*Tool
	ToolChoice        string
	ParallelToolCalls bool
	Capabilities      []string
}

// New creates an agent with the default model and parallel tool calls enabled.
func New(name string) *Agent {
	return &Agent{
		Name:              name,
		Model:             DefaultModel,
		Instructions:      "You are a helpful agent.",
		ParallelToolCalls: true,
	}
}

// DefaultModel is used when an agent does not name one.
const DefaultModel = "gpt-4o"

func (a *Agent) clone() *Agent {
	c := *a
	c.Tools = slices.Clone(a.Tools)
	c.Capabilities = slices.Clone(a.Capabilities)
	return &c
}

// WithModel returns a copy using model.
func (a *Agent) WithModel(model string) *Agent {
	c := a.clone()
	c.Model = model
	return c
}

// WithDescription returns a copy with a routing description.
func (a *Agent) WithDescription(desc string) *Agent {
	c := a.clone()
	c.Description = desc
	return c
}

// WithInstructions returns a copy with static instructions.
func (a *Agent) WithInstructions(text string) *Agent {
	c := a.clone()
	c.Instructions = text
	c.InstructionsFunc = nil
	return c
}

// WithInstructionsFunc returns a copy whose instructions are derived from context.
func (a *Agent) WithInstructionsFunc(fn InstructionsFunc) *Agent {
	c := a.clone()
	c.InstructionsFunc = fn
	return c
}

// WithTools returns a copy with tools appended.
func (a *Agent) WithTools(tools ...*Tool) *Agent {
	c := a.clone()
	c.Tools = append(c.Tools, tools...)
	return c
}

// WithToolChoice returns a copy forcing a tool-choice mode.
func (a *Agent) WithToolChoice(choice string) *Agent {
	c := a.clone()
	c.ToolChoice = choice
	return c
}

// WithParallelToolCalls returns a copy with the parallel tool-call flag set.
func (a *Agent) WithParallelToolCalls(enabled bool) *Agent {
	c := a.clone()
	c.ParallelToolCalls = enabled
	return c
}

// WithCapabilities returns a copy with the given capability tags.
func (a *Agent) WithCapabilities(caps ...string) *Agent {
	c := a.clone()
	c.Capabilities = append(c.Capabilities, caps...)
	return c
}

// HasCapability reports whether the agent carries the capability tag.
func (a *Agent) HasCapability(capability string) bool {
	return slices.Contains(a.Capabilities, capability)
}

// RenderInstructions resolves the instruction text for the given context.
func (a *Agent) RenderInstructions(vars Variables) string {
	if a.InstructionsFunc != nil {
		return a.InstructionsFunc(vars.Clone())
	}
	return a.Instructions
}

// ToolSchemas returns the wire schemas of the agent's tools in declaration order.
func (a *Agent) ToolSchemas() []types.ToolSchema {
	if len(a.Tools) == 0 {
		return nil
	}
	out := make([]types.ToolSchema, 0, len(a.Tools))
	for _, t := range a.Tools {
		out = append(out, t.Schema())
	}
	return out
}

// Tool looks a tool up by name.
func (a *Agent) Tool(name string) (*Tool, bool) {
	for _, t := range a.Tools {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}

// Validate checks the descriptor is usable by the engine.
func (a *Agent) Validate() error {
	if a == nil {
		return fmt.Errorf("%w: nil agent", ErrInvalidAgent)
	}
	if a.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidAgent)
	}
	seen := make(map[string]struct{}, len(a.Tools))
	for _, t := range a.Tools {
		if t == nil {
			return fmt.Errorf("%w: agent %s has a nil tool", ErrInvalidAgent, a.Name)
		}
		if _, dup := seen[t.Name]; dup {
			return fmt.Errorf("%w: agent %s declares tool %s twice", ErrInvalidAgent, a.Name, t.Name)
		}
		seen[t.Name] = struct{}{}
	}
	return nil
}

// Names returns the names of agents, preserving order.
func Names(agents []*Agent) []string {
	out := make([]string, 0, len(agents))
	for _, a := range agents {
		if a != nil {
			out = append(out, a.Name)
		}
	}
	return out
}
