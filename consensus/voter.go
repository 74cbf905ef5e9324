package consensus

import (
	"context"
	"errors"
	"fmt"
	"strconv"
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

// Voter 通过多视角意见投票选择 Agent
type Voter struct {
	provider     llm.Provider
	scorer       ConfidenceScorer
	perspectives []Perspective
	tracer       *tracing.Tracer
	metrics      *metrics.Collector
	logger       *zap.Logger
	now          func() time.Time
}

// Option 投票器选项
type Option func(*Voter)

// WithScorer replaces the heuristic confidence scorer.
func WithScorer(s ConfidenceScorer) Option {
	return func(v *Voter) { v.scorer = s }
}

// WithTracer logs every opinion and the final decision.
func WithTracer(t *tracing.Tracer) Option {
	return func(v *Voter) { v.tracer = t }
}

// WithMetrics 设置指标收集器
func WithMetrics(c *metrics.Collector) Option {
	return func(v *Voter) { v.metrics = c }
}

// WithPerspectives sets the default perspectives used when a VotingConfig has none.
func WithPerspectives(p ...Perspective) Option {
	return func(v *Voter) { v.perspectives = append([]Perspective(nil), p...) }
}

// NewVoter 创建投票器
func NewVoter(provider llm.Provider, logger *zap.Logger, opts ...Option) *Voter {
	if logger == nil {
		logger = zap.NewNop()
	}
	v := &Voter{
		provider:     provider,
		scorer:       NewHeuristicScorer(),
		perspectives: DefaultPerspectives(),
		logger:       logger.With(zap.String("component", "consensus_voter")),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	if len(v.perspectives) == 0 {
		v.perspectives = DefaultPerspectives()
	}
	return v
}

// Vote gathers opinions and resolves them into a selection. An error is
// returned only for an invalid config or an empty candidate list; every other
// failure is reported through VotingResult.ErrorPattern.
func (v *Voter) Vote(ctx context.Context, message string, candidates []*agent.Agent, cfg VotingConfig) (*VotingResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, types.NewError(types.ErrNoCandidates, "vote requires at least one candidate agent")
	}
	for _, c := range candidates {
		if err := c.Validate(); err != nil {
			return nil, types.NewError(types.ErrInvalidConfig, "invalid candidate").WithCause(err)
		}
	}

	start := v.now()
	voteCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	perspectives := cfg.Perspectives
	if len(perspectives) == 0 {
		perspectives = v.perspectives
	}
	run := &ballot{
		voter:        v,
		message:      message,
		candidates:   candidates,
		cfg:          cfg,
		perspectives: perspectives,
		tally:        newTally(candidates, cfg.WinningVoteCount),
	}

	interrupted := false
	for round := 0; round < cfg.rounds() && run.tally.winner == ""; round++ {
		offset := round * cfg.CandidateCount
		if cfg.Parallel {
			interrupted = run.collectParallel(voteCtx, offset)
		} else {
			interrupted = run.collectSequential(voteCtx, offset)
		}
		if interrupted {
			break
		}
	}

	pattern := recovery.PatternUnknown
	if interrupted {
		pattern = recovery.Classify(voteCtx.Err(), map[string]any{"operation": "consensus_vote"})
	}
	result := run.tally.resolve(cfg, interrupted, pattern)
	result.Elapsed = v.now().Sub(start)

	v.record(ctx, message, candidates, result)
	return result, nil
}

func (v *Voter) record(ctx context.Context, message string, candidates []*agent.Agent, res *VotingResult) {
	v.metrics.RecordVote(string(res.Method), res.ConsensusReached, res.Elapsed)
	if res.ErrorPattern != "" {
		v.metrics.RecordErrorPattern(string(res.ErrorPattern))
	}
	v.tracer.Log(ctx, tracing.Record{
		Operation: tracing.OpVote,
		Input: map[string]any{
			"message":    message,
			"candidates": agent.Names(candidates),
		},
		Output: map[string]any{
			"selected_agent": res.Selected,
			"method":         string(res.Method),
			"vote_count":     res.VoteCount,
		},
		Duration:     res.Elapsed,
		ErrorPattern: res.ErrorPattern,
		Metadata: map[string]any{
			"consensus_reached": res.ConsensusReached,
			"confidence":        res.Confidence,
			"votes_collected":   len(res.RawVotes),
		},
	})

	fields := []zap.Field{
		zap.String("method", string(res.Method)),
		zap.String("selected", res.Selected),
		zap.Bool("consensus", res.ConsensusReached),
		zap.Float64("confidence", res.Confidence),
		zap.Int("votes", len(res.RawVotes)),
		zap.Duration("elapsed", res.Elapsed),
	}
	if res.ErrorPattern != "" {
		v.logger.Warn("vote resolved without consensus", append(fields, zap.String("error_pattern", string(res.ErrorPattern)))...)
		return
	}
	v.logger.Debug("vote resolved", fields...)
}

// ballot holds the state of one Vote call.
type ballot struct {
	voter        *Voter
	message      string
	candidates   []*agent.Agent
	cfg          VotingConfig
	perspectives []Perspective
	tally        *tally
}

func (b *ballot) done() bool {
	return b.cfg.EarlyTermination && b.tally.winner != ""
}

// collectParallel runs one round concurrently. Votes are tallied in arrival
// order; after early termination or the deadline, late votes are discarded.
// It reports whether the round was cut short by the context.
func (b *ballot) collectParallel(ctx context.Context, offset int) bool {
	roundCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	n := b.cfg.CandidateCount
	votes := make(chan Vote, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		index := offset + i
		g.Go(func() error {
			votes <- b.opinion(roundCtx, index)
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(votes)
	}()

	for {
		select {
		case vote, ok := <-votes:
			if !ok {
				return false
			}
			if ctx.Err() != nil {
				return true
			}
			b.tally.add(vote)
			if b.done() {
				return false
			}
		case <-ctx.Done():
			return true
		}
	}
}

// collectSequential runs one round one opinion at a time, each bounded by
// timeout / candidate_count.
func (b *ballot) collectSequential(ctx context.Context, offset int) bool {
	sub := b.cfg.Timeout / time.Duration(b.cfg.CandidateCount)
	for i := 0; i < b.cfg.CandidateCount; i++ {
		if ctx.Err() != nil {
			return true
		}
		opCtx, cancel := context.WithTimeout(ctx, sub)
		vote := b.opinion(opCtx, offset+i)
		cancel()
		if ctx.Err() != nil {
			return true
		}
		b.tally.add(vote)
		if b.done() {
			return false
		}
	}
	return false
}

func (b *ballot) opinion(ctx context.Context, index int) Vote {
	v := b.voter
	p := b.perspectives[index%len(b.perspectives)]
	vote := Vote{Index: index, Perspective: p.Name}

	traceID, _ := types.TraceID(ctx)
	req := &llm.ChatRequest{
		TraceID: traceID,
		Model:   b.cfg.Model,
		Messages: []llm.Message{
			types.NewSystemMessage(votePrompt(p, b.candidates)),
			types.NewUserMessage(b.message),
		},
		Metadata: map[string]string{
			"perspective":   p.Name,
			"opinion_index": strconv.Itoa(index),
		},
	}

	start := v.now()
	resp, err := v.provider.Completion(ctx, req)
	vote.Duration = v.now().Sub(start)

	var pattern recovery.ErrorPattern
	switch {
	case err != nil:
		vote.Error = err.Error()
		pattern = recovery.Classify(err, map[string]any{"operation": "vote_opinion"})
	default:
		msg, ok := resp.FirstMessage()
		if !ok {
			vote.Error = "empty response"
			pattern = recovery.PatternMalformedOutput
			break
		}
		vote.Response = msg.Content
		vote.Confidence = v.scorer.Score(msg.Content)
		if c, ok := MatchCandidate(msg.Content, b.candidates); ok {
			vote.Candidate = c.Name
			vote.Valid = true
		}
	}

	v.tracer.Log(ctx, tracing.Record{
		Operation:    tracing.OpOpinion,
		Input:        map[string]any{"perspective": p.Name, "opinion_index": index},
		Output:       vote.Response,
		Duration:     vote.Duration,
		ErrorPattern: pattern,
		Metadata: map[string]any{
			"candidate":  vote.Candidate,
			"valid":      vote.Valid,
			"confidence": vote.Confidence,
		},
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		v.logger.Debug("opinion failed",
			zap.Int("index", index),
			zap.String("perspective", p.Name),
			zap.Error(err))
	}
	return vote
}

// String 便于日志输出
func (r *VotingResult) String() string {
	return fmt.Sprintf("%s(%s, confidence=%.2f, consensus=%t)", r.Method, r.Selected, r.Confidence, r.ConsensusReached)
}
