package agent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/BaSui01/agentquorum/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoTool(t *testing.T, name string) *Tool {
	t.Helper()
	params := types.NewObjectSchema().
		AddProperty("text", types.NewStringSchema()).
		AddProperty(ContextVariablesParam, types.NewObjectSchema()).
		AddRequired("text", ContextVariablesParam)
	tool, err := NewTool(name, "echo the text", params, func(_ context.Context, args map[string]any, _ Variables) (any, error) {
		return args["text"], nil
	})
	require.NoError(t, err)
	return tool
}

func TestAgent_WithMethodsReturnCopies(t *testing.T) {
	base := New("base")
	derived := base.WithModel("m2").WithTools(echoTool(t, "echo")).WithCapabilities(CapabilityCoding)

	assert.Equal(t, DefaultModel, base.Model)
	assert.Empty(t, base.Tools)
	assert.Empty(t, base.Capabilities)

	assert.Equal(t, "m2", derived.Model)
	assert.Len(t, derived.Tools, 1)
	assert.True(t, derived.HasCapability(CapabilityCoding))
}

func TestAgent_RenderInstructions(t *testing.T) {
	static := New("a").WithInstructions("static")
	assert.Equal(t, "static", static.RenderInstructions(nil))

	dyn := static.WithInstructionsFunc(func(vars Variables) string {
		name, _ := vars.String("user")
		vars["user"] = "mutated"
		return "hello " + name
	})
	vars := Variables{"user": "ada"}
	assert.Equal(t, "hello ada", dyn.RenderInstructions(vars))
	assert.Equal(t, "ada", vars["user"], "render must not mutate the caller context")
}

func TestTool_SchemaStripsContextVariables(t *testing.T) {
	tool := echoTool(t, "echo")
	schema := tool.Schema()
	assert.Equal(t, "echo", schema.Name)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(schema.Parameters, &decoded))
	props := decoded["properties"].(map[string]any)
	assert.Contains(t, props, "text")
	assert.NotContains(t, props, ContextVariablesParam)
	assert.Equal(t, []any{"text"}, decoded["required"])

	// the declared parameters remain intact
	assert.Contains(t, tool.Parameters.Properties, ContextVariablesParam)
}

func TestNewTool_Invalid(t *testing.T) {
	_, err := NewTool("", "x", nil, func(context.Context, map[string]any, Variables) (any, error) { return nil, nil })
	assert.True(t, errors.Is(err, ErrInvalidTool))

	_, err = NewTool("x", "x", nil, nil)
	assert.True(t, errors.Is(err, ErrInvalidTool))
}

func TestTool_ExecuteNormalizes(t *testing.T) {
	tool := echoTool(t, "echo")
	res, err := tool.Execute(context.Background(), map[string]any{"text": "hi"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "hi", res.Value)
	assert.False(t, res.IsHandoff())
}

func TestNormalizeResult(t *testing.T) {
	target := New("billing")

	tests := []struct {
		name    string
		raw     any
		value   string
		handoff bool
	}{
		{"nil", nil, "", false},
		{"string", "ok", "ok", false},
		{"bytes", []byte("raw"), "raw", false},
		{"result", Result{Value: "v"}, "v", false},
		{"result pointer", &Result{Value: "p", Agent: target}, "p", true},
		{"agent", target, `{"assistant":"billing"}`, true},
		{"map", map[string]int{"n": 1}, `{"n":1}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := NormalizeResult(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.value, res.Value)
			assert.Equal(t, tt.handoff, res.IsHandoff())
		})
	}

	_, err := NormalizeResult(make(chan int))
	assert.Error(t, err)
}

func TestNewHandoffTool(t *testing.T) {
	target := New("Sales Team").WithDescription("Handles pricing.")
	tool := NewHandoffTool(target)
	assert.Equal(t, "transfer_to_sales_team", tool.Name)
	assert.Contains(t, tool.Description, "Handles pricing.")

	res, err := tool.Execute(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Same(t, target, res.Agent)
}

func TestAgent_Validate(t *testing.T) {
	var nilAgent *Agent
	assert.ErrorIs(t, nilAgent.Validate(), ErrInvalidAgent)
	assert.ErrorIs(t, (&Agent{}).Validate(), ErrInvalidAgent)

	dup := New("a").WithTools(echoTool(t, "echo"), echoTool(t, "echo"))
	assert.ErrorIs(t, dup.Validate(), ErrInvalidAgent)

	assert.NoError(t, New("a").WithTools(echoTool(t, "echo")).Validate())
}

func TestAgent_ToolLookup(t *testing.T) {
	a := New("a").WithTools(echoTool(t, "one"), echoTool(t, "two"))
	got, ok := a.Tool("two")
	require.True(t, ok)
	assert.Equal(t, "two", got.Name)
	_, ok = a.Tool("three")
	assert.False(t, ok)

	schemas := a.ToolSchemas()
	require.Len(t, schemas, 2)
	assert.Equal(t, "one", schemas[0].Name)
	assert.Equal(t, "two", schemas[1].Name)
}

func TestVariables_CloneAndMerge(t *testing.T) {
	var nilVars Variables
	assert.NotNil(t, nilVars.Clone())

	base := Variables{"a": 1}
	merged := base.Merge(Variables{"b": 2, "a": 3})
	assert.Equal(t, Variables{"a": 1}, base)
	assert.Equal(t, Variables{"a": 3, "b": 2}, merged)
}

func TestFactories(t *testing.T) {
	coder := NewCodingAgent("coder", "m")
	kb := NewKnowledgeAgent("kb", "m")
	img := NewImageAgent("img", "m")
	sup := NewSupervisorAgent("sup", "m", coder, kb, img)

	assert.Equal(t, "coding", coder.Domain())
	assert.Equal(t, "knowledge", kb.Domain())
	assert.Equal(t, "general", img.Domain())
	assert.False(t, img.ParallelToolCalls)
	assert.Len(t, sup.Tools, 3)
	assert.True(t, sup.HasCapability(CapabilitySupervise))

	assert.Contains(t, kb.RenderInstructions(Variables{"retrieved_context": "[1] doc"}), "[1] doc")
	assert.Equal(t, []string{"coder", "kb", "img"}, Names([]*Agent{coder, nil, kb, img}))
}
