package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/BaSui01/agentquorum/types"
	"golang.org/x/time/rate"
)

// ToolFunc is the uniform entry point of a tool. vars is the shared context and
// never appears in the schema sent to the model.
type ToolFunc func(ctx context.Context, args map[string]any, vars Variables) (any, error)

// RateLimit 单个工具的令牌桶限流参数
type RateLimit struct {
	Rate  float64 `json:"rate" yaml:"rate"`
	Burst int     `json:"burst" yaml:"burst"`
}

// Tool is a callable exposed to the model. The wire schema is computed once by NewTool.
type Tool struct {
	Name        string
	Description string
	Parameters  *types.JSONSchema
	Timeout     time.Duration
	RateLimit   *RateLimit
	Fn          ToolFunc

	schema  types.ToolSchema
	limiter *rate.Limiter
}

// ToolOption 工具构造选项
type ToolOption func(*Tool)

// WithToolTimeout sets a per-call timeout overriding the dispatcher default.
func WithToolTimeout(d time.Duration) ToolOption {
	return func(t *Tool) { t.Timeout = d }
}

// WithToolRateLimit attaches a token bucket to the tool. The bucket belongs to
// the Tool value and is shared by every agent and run using it.
func WithToolRateLimit(ratePerSec float64, burst int) ToolOption {
	return func(t *Tool) { t.RateLimit = &RateLimit{Rate: ratePerSec, Burst: burst} }
}

// NewTool builds a tool and generates its wire schema, stripping the
// context_variables parameter from properties and required.
func NewTool(name, description string, params *types.JSONSchema, fn ToolFunc, opts ...ToolOption) (*Tool, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidTool)
	}
	if fn == nil {
		return nil, fmt.Errorf("%w: tool %s has no function", ErrInvalidTool, name)
	}
	if params == nil {
		params = types.NewObjectSchema()
	}
	t := &Tool{
		Name:        name,
		Description: description,
		Parameters:  params,
		Fn:          fn,
	}
	for _, opt := range opts {
		opt(t)
	}

	raw, err := params.Without(ContextVariablesParam).ToJSON()
	if err != nil {
		return nil, fmt.Errorf("%w: tool %s schema: %v", ErrInvalidTool, name, err)
	}
	t.schema = types.ToolSchema{Name: name, Description: description, Parameters: raw}
	if t.RateLimit != nil && t.RateLimit.Rate > 0 {
		t.limiter = rate.NewLimiter(rate.Limit(t.RateLimit.Rate), max(t.RateLimit.Burst, 1))
	}
	return t, nil
}

// MustTool is NewTool that panics on error; intended for static tool tables.
func MustTool(name, description string, params *types.JSONSchema, fn ToolFunc, opts ...ToolOption) *Tool {
	t, err := NewTool(name, description, params, fn, opts...)
	if err != nil {
		panic(err)
	}
	return t
}

// Schema returns the wire schema seen by the model.
func (t *Tool) Schema() types.ToolSchema {
	return t.schema
}

// Allow takes a token from the tool's bucket. Tools without a rate limit always
// allow.
func (t *Tool) Allow() bool {
	if t.limiter == nil {
		return true
	}
	return t.limiter.Allow()
}

// Execute runs the tool function and normalizes its return value.
func (t *Tool) Execute(ctx context.Context, args map[string]any, vars Variables) (Result, error) {
	if args == nil {
		args = map[string]any{}
	}
	raw, err := t.Fn(ctx, args, vars)
	if err != nil {
		return Result{}, err
	}
	return NormalizeResult(raw)
}
