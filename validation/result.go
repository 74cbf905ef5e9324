package validation

import (
	"time"

	"github.com/BaSui01/agentquorum/recovery"
)

// Issue 码
const (
	CodeEmptyResponse          = "empty_response"
	CodeTooShort               = "too_short"
	CodeTooLong                = "too_long"
	CodeErrorKeyword           = "error_keyword"
	CodeNoValidator            = "no_validator"
	CodeValidatorFailed        = "validator_failed"
	CodeValidatorIssue         = "validator_issue"
	CodeInsufficientValidators = "insufficient_validators"
	CodeLowAgreement           = "low_agreement"
	CodeUnbalancedCodeFence    = "unbalanced_code_fence"
	CodeUnfencedCode           = "unfenced_code"
	CodeMissingCitation        = "missing_citation"
)

var recommendations = map[string]string{
	CodeEmptyResponse:          "Produce a non-empty answer to the request.",
	CodeTooShort:               "Expand the answer with the details the request asks for.",
	CodeTooLong:                "Shorten the answer and keep only what the request needs.",
	CodeErrorKeyword:           "Resolve error markers and unfinished TODO/FIXME placeholders.",
	CodeNoValidator:            "Provide at least one validator agent for semantic checks.",
	CodeValidatorFailed:        "Retry validation; a validator agent did not return a usable score.",
	CodeValidatorIssue:         "Address the issues raised by the validator agents.",
	CodeInsufficientValidators: "Provide at least two validator agents for consensus validation.",
	CodeLowAgreement:           "Validators disagree; clarify the answer or gather more reviews.",
	CodeUnbalancedCodeFence:    "Close every ``` code fence.",
	CodeUnfencedCode:           "Wrap code in ``` fenced blocks.",
	CodeMissingCitation:        "Cite the sources the answer relies on.",
}

// Issue 验证问题
type Issue struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Level    Level  `json:"level"`
	Severity string `json:"severity"` // high, medium, low
}

// Scores 单个验证 Agent 的评分
type Scores struct {
	Issues       []string `json:"issues"`
	Relevance    float64  `json:"relevance"`
	Completeness float64  `json:"completeness"`
	Clarity      float64  `json:"clarity"`
}

// Mean 返回三项评分的平均值
func (s Scores) Mean() float64 {
	return (s.Relevance + s.Completeness + s.Clarity) / 3
}

// ValidationResult 验证结果
type ValidationResult struct {
	Level           Level                 `json:"level"`
	Passed          bool                  `json:"passed"`
	Confidence      float64               `json:"confidence"`
	Issues          []Issue               `json:"issues"`
	Recommendations []string              `json:"recommendations"`
	StageScores     map[string]float64    `json:"stage_scores"`
	ConsensusScores map[string]float64    `json:"consensus_scores,omitempty"`
	Agreement       float64               `json:"agreement,omitempty"`
	Variance        float64               `json:"variance,omitempty"`
	Domain          string                `json:"domain,omitempty"`
	ErrorPattern    recovery.ErrorPattern `json:"error_pattern,omitempty"`
	Elapsed         time.Duration         `json:"elapsed_ns"`
}

func newResult(level Level) *ValidationResult {
	return &ValidationResult{
		Level:           level,
		Issues:          []Issue{},
		Recommendations: []string{},
		StageScores:     make(map[string]float64, 4),
	}
}

func (r *ValidationResult) addIssue(level Level, code, severity, message string) {
	r.Issues = append(r.Issues, Issue{Code: code, Message: message, Level: level, Severity: severity})
}

// HasIssue 是否存在指定代码的问题
func (r *ValidationResult) HasIssue(code string) bool {
	for _, i := range r.Issues {
		if i.Code == code {
			return true
		}
	}
	return false
}

// finish derives recommendations (one per distinct code, in issue order) and
// the overall confidence from the stage scores.
func (r *ValidationResult) finish(stages []string) {
	seen := make(map[string]bool, len(r.Issues))
	for _, i := range r.Issues {
		if seen[i.Code] {
			continue
		}
		seen[i.Code] = true
		if rec, ok := recommendations[i.Code]; ok {
			r.Recommendations = append(r.Recommendations, rec)
		}
	}

	sum := 0.0
	for _, s := range stages {
		sum += r.StageScores[s]
	}
	if len(stages) > 0 {
		r.Confidence = clamp01(sum / float64(len(stages)))
	}
}

func clamp01(v float64) float64 {
	return max(0, min(1, v))
}
