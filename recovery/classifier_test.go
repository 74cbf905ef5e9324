package recovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		opCtx map[string]any
		want  ErrorPattern
	}{
		{"nil", nil, nil, PatternUnknown},
		{"cancelled", fmt.Errorf("wrapped: %w", context.Canceled), nil, PatternCoordinationFailure},
		{"deadline", context.DeadlineExceeded, nil, PatternTimeout},
		{"timeout text", errors.New("request timed out"), nil, PatternTimeout},
		{"network", errors.New("dial tcp 10.0.0.1:443: connection refused"), nil, PatternAgentUnavailable},
		{"consensus", errors.New("no quorum reached"), nil, PatternConsensusFailure},
		{"schema", errors.New("output does not match schema"), nil, PatternSchemaViolation},
		{"validation", errors.New("validation failed for field x"), nil, PatternValidationError},
		{"parse", errors.New("could not parse model output"), nil, PatternMalformedOutput},
		{"json syntax", &json.SyntaxError{Offset: 3}, nil, PatternMalformedOutput},
		{"unavailable", errors.New("agent billing not found"), nil, PatternAgentUnavailable},
		{"resource", errors.New("rate limit hit"), nil, PatternResourceExhaustion},
		{"depth", errors.New("max recursion reached"), nil, PatternDecompositionDepthExceeded},
		{"dependent", errors.New("subtasks are dependent on each other"), nil, PatternNonIndependentSubtasks},
		{"ambiguous", errors.New("ambiguous merge of results"), nil, PatternAmbiguousComposition},
		{"atomic", errors.New("miscalculation in step 2"), nil, PatternAtomicMiscalculation},
		{"composed", errors.New("composed result miscalculated"), nil, PatternComposedMiscalculation},
		{"context lost", errors.New("conversation context lost"), nil, PatternContextLoss},
		{"insufficient", errors.New("insufficient context to answer"), nil, PatternInsufficientContext},
		{"confidence", errors.New("answer is uncertain"), nil, PatternLowConfidence},
		{"coordination", errors.New("handoff loop"), nil, PatternCoordinationFailure},
		{"unknown", errors.New("something odd"), nil, PatternUnknown},
		{"operation hint", errors.New("something odd"), map[string]any{"operation": "consensus_vote"}, PatternConsensusFailure},
		{"message beats hint", errors.New("rate limit exceeded"), map[string]any{"operation": "vote_opinion"}, PatternResourceExhaustion},
		{"malformed with hint", errors.New("malformed json in response"), map[string]any{"operation": "vote_opinion"}, PatternMalformedOutput},
		{"unavailable with hint", errors.New("model unavailable"), map[string]any{"operation": "vote_opinion"}, PatternAgentUnavailable},
		{"timeout beats network", errors.New("dial tcp: i/o timeout"), nil, PatternTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err, tt.opCtx))
		})
	}
}

func TestPattern_ValidAndSeverity(t *testing.T) {
	for _, p := range AllPatterns() {
		assert.True(t, p.Valid(), p)
		assert.Contains(t, []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}, p.Severity())
	}
	assert.False(t, ErrorPattern("bogus").Valid())
	assert.Equal(t, SeverityLow, PatternLowConfidence.Severity())
}

func TestDefaultStrategies_CoverEveryPattern(t *testing.T) {
	table := DefaultStrategies()
	for _, p := range AllPatterns() {
		s, ok := table[p]
		assert.True(t, ok, p)
		assert.Equal(t, p, s.Pattern)
		assert.NotEmpty(t, s.Action)
		assert.NotEqual(t, ActionEscalateToHuman, s.Action)
		assert.GreaterOrEqual(t, s.MaxRetries, 1)
	}
}

// 属性：分类是确定性的，相同的错误文本与上下文总是得到相同结果，且结果属于分类集合
func TestProperty_Classify_Deterministic(t *testing.T) {
	words := []string{"timeout", "json", "vote", "schema", "not found", "quota", "depth",
		"context lost", "uncertain", "handoff", "ok", "value", "agent", "tool"}
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 6).Draw(rt, "n")
		msg := ""
		for i := 0; i < n; i++ {
			msg += rapid.SampledFrom(words).Draw(rt, fmt.Sprintf("w%d", i)) + " "
		}
		op := rapid.SampledFrom([]string{"", "tool_call", "model_call", "routing"}).Draw(rt, "op")
		opCtx := map[string]any{"operation": op}

		first := Classify(errors.New(msg), opCtx)
		second := Classify(errors.New(msg), opCtx)
		assert.Equal(rt, first, second)
		assert.True(rt, first.Valid())
	})
}
