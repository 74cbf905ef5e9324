package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
)

// Result is the structured return of a tool: a value, an optional handoff
// target and optional context updates.
type Result struct {
	Value            string    `json:"value"`
	Agent            *Agent    `json:"-"`
	ContextVariables Variables `json:"context_variables,omitempty"`
}

// IsHandoff reports whether the result requests a new active agent.
func (r Result) IsHandoff() bool {
	return r.Agent != nil
}

// NormalizeResult converts the raw return value of a tool into a Result.
// Strings become the value, an *Agent becomes a handoff whose value is the
// JSON {"assistant": name}, anything else is JSON-encoded.
func NormalizeResult(raw any) (Result, error) {
	switch v := raw.(type) {
	case nil:
		return Result{}, nil
	case Result:
		return v, nil
	case *Result:
		if v == nil {
			return Result{}, nil
		}
		return *v, nil
	case *Agent:
		if v == nil {
			return Result{}, nil
		}
		value, _ := json.Marshal(map[string]string{"assistant": v.Name})
		return Result{Value: string(value), Agent: v}, nil
	case string:
		return Result{Value: v}, nil
	case []byte:
		return Result{Value: string(v)}, nil
	case fmt.Stringer:
		return Result{Value: v.String()}, nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return Result{}, fmt.Errorf("failed to encode tool result: %w", err)
		}
		return Result{Value: string(data)}, nil
	}
}

// NewHandoffTool builds a transfer_to_<name> tool that hands control to target.
func NewHandoffTool(target *Agent) *Tool {
	desc := "Transfer the conversation to " + target.Name + "."
	if target.Description != "" {
		desc += " " + target.Description
	}
	return MustTool(HandoffToolName(target.Name), desc, nil,
		func(_ context.Context, _ map[string]any, _ Variables) (any, error) {
			return target, nil
		})
}

// HandoffToolName derives the tool name used to transfer to an agent.
func HandoffToolName(agentName string) string {
	var b strings.Builder
	b.WriteString("transfer_to_")
	for _, r := range strings.ToLower(agentName) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
