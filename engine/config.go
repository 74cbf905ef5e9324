package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/agentquorum/consensus"
	"github.com/BaSui01/agentquorum/llm/retry"
	"github.com/BaSui01/agentquorum/types"
)

// HandoffPolicy decides what happens when one turn produces several handoffs.
type HandoffPolicy string

const (
	HandoffLastWins       HandoffPolicy = "last_wins"
	HandoffRejectMultiple HandoffPolicy = "reject_multiple"
	HandoffVote           HandoffPolicy = "vote"
)

// ParseHandoffPolicy 解析交接策略，空字符串返回默认值
func ParseHandoffPolicy(s string) (HandoffPolicy, error) {
	switch p := HandoffPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return HandoffLastWins, nil
	case HandoffLastWins, HandoffRejectMultiple, HandoffVote:
		return p, nil
	default:
		return "", fmt.Errorf("unknown handoff policy %q", s)
	}
}

// RetryConfig 模型调用重试配置
type RetryConfig struct {
	MaxRetries   int           `json:"max_retries" yaml:"max_retries"`
	InitialDelay time.Duration `json:"initial_delay" yaml:"initial_delay"`
	MaxDelay     time.Duration `json:"max_delay" yaml:"max_delay"`
	Multiplier   float64       `json:"multiplier" yaml:"multiplier"`
	Jitter       bool          `json:"jitter" yaml:"jitter"`
}

func (c RetryConfig) policy() *retry.RetryPolicy {
	return &retry.RetryPolicy{
		MaxRetries:   c.MaxRetries,
		InitialDelay: c.InitialDelay,
		MaxDelay:     c.MaxDelay,
		Multiplier:   c.Multiplier,
		Jitter:       c.Jitter,
	}
}

// Config 对话引擎配置
type Config struct {
	// MaxTurns 默认轮次上限，Run 传入 maxTurns <= 0 时使用
	MaxTurns int `json:"max_turns" yaml:"max_turns"`
	// ModelOverride replaces the active agent's model on every request.
	ModelOverride string        `json:"model_override,omitempty" yaml:"model_override"`
	HandoffPolicy HandoffPolicy `json:"handoff_policy" yaml:"handoff_policy"`
	Retry         RetryConfig   `json:"retry" yaml:"retry"`
	// Voting is used by Route and by the vote handoff policy.
	Voting consensus.VotingConfig `json:"voting" yaml:"voting"`
}

// DefaultConfig 返回默认引擎配置
func DefaultConfig() Config {
	return Config{
		MaxTurns:      10,
		HandoffPolicy: HandoffLastWins,
		Retry: RetryConfig{
			MaxRetries:   3,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     10 * time.Second,
			Multiplier:   2.0,
			Jitter:       true,
		},
		Voting: consensus.DefaultVotingConfig(),
	}
}

// Validate 校验配置
func (c Config) Validate() error {
	if c.MaxTurns < 0 {
		return types.NewError(types.ErrInvalidConfig, "max_turns must not be negative")
	}
	if c.Retry.MaxRetries < 0 {
		return types.NewError(types.ErrInvalidConfig, "retry.max_retries must not be negative")
	}
	if _, err := ParseHandoffPolicy(string(c.HandoffPolicy)); err != nil {
		return types.NewError(types.ErrInvalidConfig, err.Error())
	}
	if c.HandoffPolicy == HandoffVote {
		if err := c.Voting.Validate(); err != nil {
			return err
		}
	}
	return nil
}
