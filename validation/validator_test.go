package validation

import (
	"context"
	"testing"
	"time"

	"github.com/BaSui01/agentquorum/agent"
	"github.com/BaSui01/agentquorum/recovery"
	"github.com/BaSui01/agentquorum/testutil/fixtures"
	"github.com/BaSui01/agentquorum/testutil/mocks"
	"github.com/BaSui01/agentquorum/tracing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const goodAnswer = "The refund for order 42 was processed today."

func validatorsNamed(names ...string) []*agent.Agent {
	out := make([]*agent.Agent, len(names))
	for i, n := range names {
		out[i] = agent.New(n).WithInstructions("You are a strict reviewer.")
	}
	return out
}

func scoredBy(scores map[string]string) *mocks.ScriptedProvider {
	answers := make(map[string]mocks.Reply, len(scores))
	for name, reply := range scores {
		answers[name] = mocks.Text(reply)
	}
	return mocks.NewRouterProvider("validator", answers, mocks.Text("no opinion"))
}

func TestValidate_Basic(t *testing.T) {
	v := NewValidator(nil, DefaultConfig(), zaptest.NewLogger(t))

	tests := []struct {
		name       string
		content    string
		confidence float64
		passed     bool
		codes      []string
	}{
		{"clean", goodAnswer, 1, true, nil},
		{"empty", "   ", 0, false, []string{CodeEmptyResponse}},
		{"too short", "Done.", 0.75, true, []string{CodeTooShort}},
		{"keywords", "TODO: handle the error path", 0.5, true, []string{CodeErrorKeyword, CodeErrorKeyword}},
		{"not implemented", "Refunds are not implemented yet, FIXME", 0.5, true, []string{CodeErrorKeyword, CodeErrorKeyword}},
		{"keyword inside word", "The terrorist plot thickened in chapter two.", 1, true, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := v.Validate(context.Background(), Response{Content: tt.content}, nil, LevelBasic, nil, 0)
			assert.InDelta(t, tt.confidence, res.Confidence, 1e-9)
			assert.Equal(t, tt.passed, res.Passed)
			var codes []string
			for _, i := range res.Issues {
				codes = append(codes, i.Code)
				assert.Equal(t, LevelBasic, i.Level)
			}
			assert.Equal(t, tt.codes, codes)
		})
	}

	res := v.Validate(context.Background(), Response{Content: "a"}, nil, LevelBasic, nil, 0)
	// 两个问题对应两条不同的建议
	long := NewValidator(nil, Config{MaxLength: 3, ErrorKeywords: []string{"todo"}}, nil).
		Validate(context.Background(), Response{Content: "todo list"}, nil, LevelBasic, nil, 0)
	assert.Len(t, long.Recommendations, 2)
	assert.Len(t, res.Recommendations, 1)
}

func TestValidate_Semantic(t *testing.T) {
	provider := scoredBy(map[string]string{"V1": fixtures.ValidatorScore(0.8, 0.9, 0.7, "no order date")})
	v := NewValidator(provider, DefaultConfig(), nil)

	res := v.Validate(context.Background(), Response{Request: "refund status?", Content: goodAnswer}, validatorsNamed("V1"), LevelSemantic, nil, time.Second)

	assert.True(t, res.Passed)
	assert.InDelta(t, 0.8, res.StageScores["semantic"], 1e-9)
	assert.InDelta(t, 0.9, res.Confidence, 1e-9)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, CodeValidatorIssue, res.Issues[0].Code)
	assert.Equal(t, "V1: no order date", res.Issues[0].Message)
	assert.Nil(t, res.ConsensusScores)
	assert.Empty(t, res.ErrorPattern)

	req := provider.LastRequest()
	require.NotNil(t, req)
	assert.Contains(t, req.Messages[0].Content, "strict reviewer")
	assert.Contains(t, req.Messages[1].Content, "refund status?")
	assert.Equal(t, agent.DefaultModel, req.Model)
}

func TestValidate_SemanticFailures(t *testing.T) {
	t.Run("no validator", func(t *testing.T) {
		v := NewValidator(nil, DefaultConfig(), nil)
		res := v.Validate(context.Background(), Response{Content: goodAnswer}, nil, LevelSemantic, nil, 0)
		assert.False(t, res.Passed)
		assert.InDelta(t, 0.5, res.Confidence, 1e-9)
		assert.True(t, res.HasIssue(CodeNoValidator))
		assert.Equal(t, recovery.PatternValidationError, res.ErrorPattern)
	})

	t.Run("unparseable reply", func(t *testing.T) {
		v := NewValidator(scoredBy(map[string]string{"V1": "looks fine to me"}), DefaultConfig(), nil)
		res := v.Validate(context.Background(), Response{Content: goodAnswer}, validatorsNamed("V1"), LevelSemantic, nil, 0)
		assert.False(t, res.Passed)
		assert.True(t, res.HasIssue(CodeValidatorFailed))
	})

	t.Run("timeout", func(t *testing.T) {
		provider := mocks.NewRouterProvider("validator", nil, mocks.Reply{Content: fixtures.ValidatorScore(1, 1, 1), Delay: time.Second})
		v := NewValidator(provider, DefaultConfig(), nil)
		res := v.Validate(context.Background(), Response{Content: goodAnswer}, validatorsNamed("V1"), LevelSemantic, nil, 30*time.Millisecond)
		assert.False(t, res.Passed)
		assert.True(t, res.HasIssue(CodeValidatorFailed))
		assert.Equal(t, recovery.PatternTimeout, res.ErrorPattern)
	})

	t.Run("model override", func(t *testing.T) {
		provider := scoredBy(map[string]string{"V1": fixtures.FencedValidatorScore(8, 9, 7)})
		cfg := DefaultConfig()
		cfg.ModelOverride = "judge-model"
		res := NewValidator(provider, cfg, nil).
			Validate(context.Background(), Response{Content: goodAnswer}, validatorsNamed("V1"), LevelSemantic, nil, 0)
		assert.True(t, res.Passed)
		assert.InDelta(t, 0.8, res.StageScores["semantic"], 1e-9)
		assert.Equal(t, "judge-model", provider.LastRequest().Model)
	})
}

func TestValidate_Consensus(t *testing.T) {
	score := fixtures.ValidatorScore(0.8, 0.8, 0.8)
	provider := scoredBy(map[string]string{"V1": score, "V2": score, "V3": score})
	v := NewValidator(provider, DefaultConfig(), nil)

	res := v.Validate(context.Background(), Response{Content: goodAnswer}, validatorsNamed("V1", "V2", "V3"), LevelConsensus, nil, 0)

	assert.True(t, res.Passed)
	assert.InDelta(t, 1.0, res.Agreement, 1e-9)
	assert.InDelta(t, 0, res.Variance, 1e-9)
	assert.Len(t, res.ConsensusScores, 3)
	assert.InDelta(t, (1+0.8+0.8)/3, res.Confidence, 1e-9)
	// 第一个验证者的评分被复用，不会重复调用
	assert.Equal(t, 3, provider.CallCount())
}

func TestValidate_ConsensusFailures(t *testing.T) {
	t.Run("disagreement", func(t *testing.T) {
		provider := scoredBy(map[string]string{
			"V1": fixtures.ValidatorScore(0.9, 0.9, 0.9),
			"V2": fixtures.ValidatorScore(0.1, 0.1, 0.1),
		})
		res := NewValidator(provider, DefaultConfig(), nil).
			Validate(context.Background(), Response{Content: goodAnswer}, validatorsNamed("V1", "V2"), LevelConsensus, nil, 0)

		assert.False(t, res.Passed)
		assert.InDelta(t, 0.16, res.Variance, 1e-9)
		assert.InDelta(t, 0.36, res.Agreement, 1e-9)
		assert.True(t, res.HasIssue(CodeLowAgreement))
	})

	t.Run("single validator", func(t *testing.T) {
		provider := scoredBy(map[string]string{"V1": fixtures.ValidatorScore(1, 1, 1)})
		res := NewValidator(provider, DefaultConfig(), nil).
			Validate(context.Background(), Response{Content: goodAnswer}, validatorsNamed("V1"), LevelConsensus, nil, 0)
		assert.False(t, res.Passed)
		assert.True(t, res.HasIssue(CodeInsufficientValidators))
	})

	t.Run("second validator fails", func(t *testing.T) {
		provider := scoredBy(map[string]string{"V1": fixtures.ValidatorScore(1, 1, 1), "V2": "???"})
		res := NewValidator(provider, DefaultConfig(), nil).
			Validate(context.Background(), Response{Content: goodAnswer}, validatorsNamed("V1", "V2"), LevelConsensus, nil, 0)
		assert.False(t, res.Passed)
		assert.True(t, res.HasIssue(CodeValidatorFailed))
		assert.True(t, res.HasIssue(CodeInsufficientValidators))
		assert.Len(t, res.ConsensusScores, 1)
	})
}

func TestValidate_Comprehensive(t *testing.T) {
	score := fixtures.ValidatorScore(0.9, 0.9, 0.9)
	provider := scoredBy(map[string]string{"V1": score, "V2": score})
	v := NewValidator(provider, DefaultConfig(), nil)
	validators := validatorsNamed("V1", "V2")

	tests := []struct {
		name   string
		resp   Response
		vars   agent.Variables
		codes  []string
		passed bool
		domain string
	}{
		{
			name:   "balanced code",
			resp:   Response{Content: "Use this:\n```go\nfmt.Println(\"hi\")\n```", Domain: DomainCoding},
			passed: true,
			domain: DomainCoding,
		},
		{
			name:   "unclosed fence",
			resp:   Response{Content: "Use this:\n```go\nfunc main() {}\n", Domain: DomainCoding},
			codes:  []string{CodeUnbalancedCodeFence},
			passed: true,
			domain: DomainCoding,
		},
		{
			name:   "unfenced code",
			resp:   Response{Content: "func main() {\n\tprintln(1)\n}", Domain: DomainCoding},
			codes:  []string{CodeUnfencedCode},
			passed: true,
			domain: DomainCoding,
		},
		{
			name:   "knowledge from vars without citation",
			resp:   Response{Content: "Paris has been the capital of France for centuries."},
			vars:   agent.Variables{"domain": "knowledge"},
			codes:  []string{CodeMissingCitation},
			passed: true,
			domain: DomainKnowledge,
		},
		{
			name:   "knowledge with citation",
			resp:   Response{Content: "Paris is the capital of France [1].", Domain: DomainKnowledge},
			passed: true,
			domain: DomainKnowledge,
		},
		{
			name:   "issues accumulate across levels",
			resp:   Response{Content: "todo: finish the general answer"},
			codes:  []string{CodeErrorKeyword},
			passed: true,
			domain: DomainGeneral,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := v.Validate(context.Background(), tt.resp, validators, LevelComprehensive, tt.vars, 0)
			var codes []string
			for _, i := range res.Issues {
				codes = append(codes, i.Code)
			}
			assert.Equal(t, tt.codes, codes)
			assert.Equal(t, tt.passed, res.Passed)
			assert.Equal(t, tt.domain, res.Domain)
			assert.Contains(t, res.StageScores, "domain")
		})
	}
}

func TestValidate_LevelsAreAdditive(t *testing.T) {
	score := fixtures.ValidatorScore(0.7, 0.7, 0.7, "vague")
	provider := scoredBy(map[string]string{"V1": score, "V2": score})
	v := NewValidator(provider, DefaultConfig(), nil)
	resp := Response{Content: "TODO " + goodAnswer, Domain: DomainKnowledge}

	var prev []Issue
	for level := LevelBasic; level <= LevelComprehensive; level++ {
		res := v.Validate(context.Background(), resp, validatorsNamed("V1", "V2"), level, nil, 0)
		require.GreaterOrEqual(t, len(res.Issues), len(prev), "level %s", level)
		if len(prev) > 0 {
			assert.Equal(t, prev, res.Issues[:len(prev)], "level %s keeps lower issues", level)
		}
		prev = res.Issues
	}
}

func TestValidate_Traced(t *testing.T) {
	tracer := tracing.NewTracer(nil)
	v := NewValidator(nil, DefaultConfig(), nil, WithTracer(tracer))
	v.Validate(context.Background(), Response{Content: ""}, nil, LevelBasic, nil, 0)

	entries := tracer.Snapshot()
	require.Len(t, entries, 1)
	assert.Equal(t, tracing.OpValidation, entries[0].Operation)
	assert.Equal(t, recovery.PatternValidationError, entries[0].ErrorPattern)
}

func TestValidate_LevelClamp(t *testing.T) {
	v := NewValidator(nil, DefaultConfig(), nil)
	res := v.Validate(context.Background(), Response{Content: goodAnswer}, nil, Level(-3), nil, 0)
	assert.Equal(t, LevelBasic, res.Level)
}
