package consensus

import (
	"fmt"
	"time"

	"github.com/BaSui01/agentquorum/types"
)

// VotingConfig 投票配置
type VotingConfig struct {
	WinningVoteCount         int           `json:"winning_vote_count" yaml:"winning_vote_count"`
	CandidateCount           int           `json:"candidate_count" yaml:"candidate_count"`
	MaxRounds                int           `json:"max_rounds" yaml:"max_rounds"`
	Timeout                  time.Duration `json:"timeout" yaml:"timeout"`
	Parallel                 bool          `json:"parallel" yaml:"parallel"`
	EarlyTermination         bool          `json:"early_termination" yaml:"early_termination"`
	ConfidenceThreshold      float64       `json:"confidence_threshold" yaml:"confidence_threshold"`
	FallbackToMajority       bool          `json:"fallback_to_majority" yaml:"fallback_to_majority"`
	FallbackToBestConfidence bool          `json:"fallback_to_best_confidence" yaml:"fallback_to_best_confidence"`
	AllowSingleAgentFallback bool          `json:"allow_single_agent_fallback" yaml:"allow_single_agent_fallback"`

	// Model gathers the opinions.
	Model string `json:"model" yaml:"model"`
	// DefaultAgent names the candidate chosen by the single-agent fallback.
	DefaultAgent string `json:"default_agent,omitempty" yaml:"default_agent"`
	// Perspectives overrides the voter's perspectives for this vote.
	Perspectives []Perspective `json:"perspectives,omitempty" yaml:"perspectives"`
}

// DefaultVotingConfig 返回默认投票配置
func DefaultVotingConfig() VotingConfig {
	return VotingConfig{
		WinningVoteCount:         2,
		CandidateCount:           3,
		MaxRounds:                1,
		Timeout:                  30 * time.Second,
		Parallel:                 true,
		EarlyTermination:         true,
		ConfidenceThreshold:      0.6,
		FallbackToMajority:       true,
		FallbackToBestConfidence: true,
		AllowSingleAgentFallback: true,
		Model:                    "gpt-4o-mini",
	}
}

// Validate checks the quorum invariants. MaxRounds 0 is read as 1.
func (c VotingConfig) Validate() error {
	switch {
	case c.WinningVoteCount < 1:
		return invalidConfig("winning_vote_count must be >= 1, got %d", c.WinningVoteCount)
	case c.CandidateCount < c.WinningVoteCount:
		return invalidConfig("candidate_count (%d) must be >= winning_vote_count (%d)", c.CandidateCount, c.WinningVoteCount)
	case c.MaxRounds < 0:
		return invalidConfig("max_rounds must be >= 0, got %d", c.MaxRounds)
	case c.Timeout <= 0:
		return invalidConfig("timeout must be positive, got %s", c.Timeout)
	case c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1:
		return invalidConfig("confidence_threshold must be within [0,1], got %v", c.ConfidenceThreshold)
	}
	for i, p := range c.Perspectives {
		if p.Name == "" {
			return invalidConfig("perspective %d has no name", i)
		}
	}
	return nil
}

func (c VotingConfig) rounds() int {
	if c.MaxRounds < 1 {
		return 1
	}
	return c.MaxRounds
}

func invalidConfig(format string, args ...any) error {
	return types.NewError(types.ErrInvalidConfig, "invalid voting config: "+fmt.Sprintf(format, args...))
}
