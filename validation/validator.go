package validation

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/BaSui01/agentquorum/agent"
	"github.com/BaSui01/agentquorum/internal/metrics"
	"github.com/BaSui01/agentquorum/llm"
	"github.com/BaSui01/agentquorum/recovery"
	"github.com/BaSui01/agentquorum/tracing"
	"github.com/BaSui01/agentquorum/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Config 验证器配置
type Config struct {
	MinLength int `json:"min_length" yaml:"min_length"`
	MaxLength int `json:"max_length" yaml:"max_length"`
	// ConfidenceThreshold is the minimum agreement at the consensus level.
	ConfidenceThreshold float64       `json:"confidence_threshold" yaml:"confidence_threshold"`
	MaxVariance         float64       `json:"max_variance" yaml:"max_variance"`
	Timeout             time.Duration `json:"timeout" yaml:"timeout"`
	ErrorKeywords       []string      `json:"error_keywords" yaml:"error_keywords"`
	// ModelOverride replaces every validator agent's model when set.
	ModelOverride string `json:"model_override,omitempty" yaml:"model_override"`
}

// DefaultConfig 返回默认验证配置
func DefaultConfig() Config {
	return Config{
		MinLength:           10,
		MaxLength:           10000,
		ConfidenceThreshold: 0.7,
		MaxVariance:         0.3,
		Timeout:             30 * time.Second,
		ErrorKeywords:       []string{"error", "todo", "fixme", "not implemented"},
	}
}

// Response is the answer under validation.
type Response struct {
	Request string `json:"request,omitempty"`
	Content string `json:"content"`
	// Domain selects the comprehensive checks; empty falls back to vars["domain"].
	Domain string `json:"domain,omitempty"`
}

// Validator 交叉验证器
type Validator struct {
	provider llm.Provider
	cfg      Config
	keywords *regexp.Regexp
	tracer   *tracing.Tracer
	metrics  *metrics.Collector
	logger   *zap.Logger
	now      func() time.Time
}

// Option 验证器选项
type Option func(*Validator)

// WithTracer 设置追踪器
func WithTracer(t *tracing.Tracer) Option {
	return func(v *Validator) { v.tracer = t }
}

// WithMetrics 设置指标收集器
func WithMetrics(c *metrics.Collector) Option {
	return func(v *Validator) { v.metrics = c }
}

// NewValidator 创建验证器
func NewValidator(provider llm.Provider, cfg Config, logger *zap.Logger, opts ...Option) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxVariance <= 0 {
		cfg.MaxVariance = 0.3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	v := &Validator{
		provider: provider,
		cfg:      cfg,
		keywords: compileKeywords(cfg.ErrorKeywords),
		logger:   logger.With(zap.String("component", "cross_validator")),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate runs every check up to level. A timeout <= 0 uses Config.Timeout.
// Levels outside the known range are clamped.
func (v *Validator) Validate(ctx context.Context, resp Response, validators []*agent.Agent, level Level, vars agent.Variables, timeout time.Duration) *ValidationResult {
	level = level.clamp()
	if timeout <= 0 {
		timeout = v.cfg.Timeout
	}
	start := v.now()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res := newResult(level)
	res.Domain = resolveDomain(resp, vars)
	validators = nonNil(validators)

	stages := []string{"basic"}
	res.StageScores["basic"] = v.basicChecks(resp.Content, res)

	consensusOK := true
	if level >= LevelSemantic {
		stages = append(stages, "semantic")
		first, ok := v.semanticStage(ctx, resp, res, validators, vars)

		if level >= LevelConsensus {
			stages = append(stages, "consensus")
			consensusOK = v.consensusStage(ctx, resp, res, validators, vars, first, ok)
		}
	}
	if level >= LevelComprehensive {
		stages = append(stages, "domain")
		res.StageScores["domain"] = domainChecks(res.Domain, resp.Content, res)
	}

	res.finish(stages)
	res.Passed = res.Confidence >= level.Threshold() && consensusOK
	res.Elapsed = v.now().Sub(start)
	if !res.Passed {
		res.ErrorPattern = recovery.PatternValidationError
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			res.ErrorPattern = recovery.PatternTimeout
		}
	}

	v.record(ctx, resp, res)
	return res
}

// semanticStage scores the answer with the first validator and returns its score.
func (v *Validator) semanticStage(ctx context.Context, resp Response, res *ValidationResult, validators []*agent.Agent, vars agent.Variables) (float64, bool) {
	if len(validators) == 0 {
		res.addIssue(LevelSemantic, CodeNoValidator, "high", "no validator agent available")
		res.StageScores["semantic"] = 0
		return 0, false
	}
	first := validators[0]
	scores, err := v.score(ctx, first, resp, res.Domain, vars)
	if err != nil {
		res.addIssue(LevelSemantic, CodeValidatorFailed, "high", fmt.Sprintf("%s: %v", first.Name, err))
		res.StageScores["semantic"] = 0
		return 0, false
	}
	for _, issue := range scores.Issues {
		res.addIssue(LevelSemantic, CodeValidatorIssue, "medium", fmt.Sprintf("%s: %s", first.Name, issue))
	}
	res.StageScores["semantic"] = scores.Mean()
	return scores.Mean(), true
}

// consensusStage scores the remaining validators concurrently and reports
// whether the agreement requirements hold.
func (v *Validator) consensusStage(ctx context.Context, resp Response, res *ValidationResult, validators []*agent.Agent, vars agent.Variables, first float64, firstOK bool) bool {
	res.ConsensusScores = make(map[string]float64, len(validators))
	if firstOK {
		res.ConsensusScores[validators[0].Name] = first
	}

	type scored struct {
		scores Scores
		err    error
	}
	var rest []scored
	if len(validators) > 1 {
		rest = make([]scored, len(validators)-1)
		var g errgroup.Group
		for i, a := range validators[1:] {
			g.Go(func() error {
				s, err := v.score(ctx, a, resp, res.Domain, vars)
				rest[i] = scored{scores: s, err: err}
				return nil
			})
		}
		_ = g.Wait()
	}

	for i, r := range rest {
		name := validators[i+1].Name
		if r.err != nil {
			res.addIssue(LevelConsensus, CodeValidatorFailed, "high", fmt.Sprintf("%s: %v", name, r.err))
			continue
		}
		for _, issue := range r.scores.Issues {
			res.addIssue(LevelConsensus, CodeValidatorIssue, "medium", fmt.Sprintf("%s: %s", name, issue))
		}
		res.ConsensusScores[name] = r.scores.Mean()
	}

	values := make([]float64, 0, len(res.ConsensusScores))
	seen := make(map[string]bool, len(validators))
	for _, a := range validators {
		if s, ok := res.ConsensusScores[a.Name]; ok && !seen[a.Name] {
			seen[a.Name] = true
			values = append(values, s)
		}
	}
	if len(values) < 2 {
		res.addIssue(LevelConsensus, CodeInsufficientValidators, "high",
			fmt.Sprintf("consensus needs at least 2 scored validators, got %d", len(values)))
		res.StageScores["consensus"] = mean(values)
		return false
	}

	res.Variance, res.Agreement = agreement(values)
	res.StageScores["consensus"] = mean(values)
	if res.Variance >= v.cfg.MaxVariance || res.Agreement < v.cfg.ConfidenceThreshold {
		res.addIssue(LevelConsensus, CodeLowAgreement, "medium",
			fmt.Sprintf("validator agreement %.2f (variance %.3f) below threshold %.2f", res.Agreement, res.Variance, v.cfg.ConfidenceThreshold))
		return false
	}
	return true
}

// score asks one validator agent to rate the answer.
func (v *Validator) score(ctx context.Context, a *agent.Agent, resp Response, domain string, vars agent.Variables) (Scores, error) {
	model := a.Model
	if v.cfg.ModelOverride != "" {
		model = v.cfg.ModelOverride
	}
	traceID, _ := types.TraceID(ctx)
	req := &llm.ChatRequest{
		TraceID: traceID,
		Model:   model,
		Messages: []llm.Message{
			types.NewSystemMessage(a.RenderInstructions(vars) + "\n\n" + scoringInstructions),
			types.NewUserMessage(scoringPrompt(resp, domain)),
		},
		Metadata: map[string]string{"validator": a.Name},
	}
	out, err := v.provider.Completion(ctx, req)
	if err != nil {
		return Scores{}, err
	}
	msg, ok := out.FirstMessage()
	if !ok {
		return Scores{}, errors.New("validator returned no choices")
	}
	return ParseScores(msg.Content)
}

func (v *Validator) record(ctx context.Context, resp Response, res *ValidationResult) {
	v.metrics.RecordValidation(res.Level.String(), res.Passed, res.Confidence)
	if res.ErrorPattern != "" {
		v.metrics.RecordErrorPattern(string(res.ErrorPattern))
	}
	v.tracer.Log(ctx, tracing.Record{
		Operation: tracing.OpValidation,
		Input:     map[string]any{"request": resp.Request, "content": resp.Content, "level": res.Level.String()},
		Output: map[string]any{
			"passed":       res.Passed,
			"confidence":   res.Confidence,
			"issues":       len(res.Issues),
			"stage_scores": res.StageScores,
		},
		Duration:     res.Elapsed,
		ErrorPattern: res.ErrorPattern,
		Metadata:     map[string]any{"domain": res.Domain},
	})
	v.logger.Debug("validation finished",
		zap.String("level", res.Level.String()),
		zap.Bool("passed", res.Passed),
		zap.Float64("confidence", res.Confidence),
		zap.Int("issues", len(res.Issues)),
	)
}

func resolveDomain(resp Response, vars agent.Variables) string {
	if resp.Domain != "" {
		return resp.Domain
	}
	if d, ok := vars.String("domain"); ok && d != "" {
		return d
	}
	return DomainGeneral
}

func nonNil(agents []*agent.Agent) []*agent.Agent {
	out := make([]*agent.Agent, 0, len(agents))
	for _, a := range agents {
		if a != nil {
			out = append(out, a)
		}
	}
	return out
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
