package recovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type rule struct {
	keywords []string
	classify func(text string) ErrorPattern
}

func fixed(p ErrorPattern) func(string) ErrorPattern {
	return func(string) ErrorPattern { return p }
}

// rules are evaluated in order; the first category with a matching keyword wins.
var rules = []rule{
	{ // timeout
		keywords: []string{"timeout", "timed out", "deadline exceeded"},
		classify: fixed(PatternTimeout),
	},
	{ // network
		keywords: []string{"connection refused", "connection reset", "dial tcp", "eof", "no such host", "broken pipe"},
		classify: fixed(PatternAgentUnavailable),
	},
	{ // consensus
		keywords: []string{"consensus", "quorum", "vote"},
		classify: fixed(PatternConsensusFailure),
	},
	{ // validation
		keywords: []string{"schema", "validation", "invalid"},
		classify: func(text string) ErrorPattern {
			if strings.Contains(text, "schema") {
				return PatternSchemaViolation
			}
			return PatternValidationError
		},
	},
	{ // parse / malformed
		keywords: []string{"parse", "json", "malformed", "unmarshal", "syntax", "decode"},
		classify: fixed(PatternMalformedOutput),
	},
	{ // unavailable
		keywords: []string{"unavailable", "not found", "no agent", "503"},
		classify: fixed(PatternAgentUnavailable),
	},
	{ // resource
		keywords: []string{"rate limit", "quota", "memory", "resource", "too many", "exhausted"},
		classify: fixed(PatternResourceExhaustion),
	},
	{ // decomposition
		keywords: []string{"depth", "recursion", "independent", "dependen", "ambiguous", "miscalculat", "decompos"},
		classify: func(text string) ErrorPattern {
			switch {
			case strings.Contains(text, "depth"), strings.Contains(text, "recursion"):
				return PatternDecompositionDepthExceeded
			case strings.Contains(text, "independent"), strings.Contains(text, "dependen"):
				return PatternNonIndependentSubtasks
			case strings.Contains(text, "ambiguous"):
				return PatternAmbiguousComposition
			case strings.Contains(text, "composed"), strings.Contains(text, "composition"):
				return PatternComposedMiscalculation
			case strings.Contains(text, "miscalculat"):
				return PatternAtomicMiscalculation
			default:
				return PatternAmbiguousComposition
			}
		},
	},
	{ // context
		keywords: []string{"context lost", "context loss", "lost context", "insufficient context", "missing context", "insufficient"},
		classify: func(text string) ErrorPattern {
			if strings.Contains(text, "lost") || strings.Contains(text, "loss") {
				return PatternContextLoss
			}
			return PatternInsufficientContext
		},
	},
	{ // confidence
		keywords: []string{"confidence", "uncertain"},
		classify: fixed(PatternLowConfidence),
	},
}

// Classify maps a failure to an ErrorPattern. It is deterministic: the same error
// text and operation context always yield the same pattern.
func Classify(err error, opCtx map[string]any) ErrorPattern {
	if err == nil {
		return PatternUnknown
	}
	if errors.Is(err, context.Canceled) {
		return PatternCoordinationFailure
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return PatternTimeout
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return PatternMalformedOutput
	}
	return ClassifyMessage(err.Error(), opCtx)
}

// ClassifyMessage classifies a plain failure message. The message is matched
// first; the opCtx["operation"] hint only decides when the message matches no
// rule.
func ClassifyMessage(msg string, opCtx map[string]any) ErrorPattern {
	if p := matchRules(strings.ToLower(msg)); p != PatternUnknown {
		return p
	}
	if op, ok := opCtx["operation"]; ok {
		return matchRules(strings.ToLower(fmt.Sprint(op)))
	}
	return PatternUnknown
}

func matchRules(text string) ErrorPattern {
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(text, kw) {
				return r.classify(text)
			}
		}
	}

	if strings.Contains(text, "coordination") || strings.Contains(text, "handoff") {
		return PatternCoordinationFailure
	}
	return PatternUnknown
}
