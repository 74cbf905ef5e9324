package tracing

import (
	"time"

	"github.com/BaSui01/agentquorum/recovery"
)

// Operation names logged by the orchestration components.
const (
	OpTurn       = "turn"
	OpModelCall  = "model_call"
	OpToolCall   = "tool_call"
	OpHandoff    = "handoff"
	OpVote       = "consensus_vote"
	OpOpinion    = "vote_opinion"
	OpValidation = "validation"
	OpRecovery   = "recovery"
)

// TraceEntry is one append-only record of an orchestration operation.
// Field names are stable; new fields are only ever added.
type TraceEntry struct {
	ID           string                `json:"id" yaml:"id"`
	Timestamp    time.Time             `json:"timestamp" yaml:"timestamp"`
	WorkerID     string                `json:"worker_id" yaml:"worker_id"`
	SessionID    string                `json:"session_id" yaml:"session_id"`
	Operation    string                `json:"operation" yaml:"operation"`
	AgentName    string                `json:"agent_name,omitempty" yaml:"agent_name,omitempty"`
	Input        any                   `json:"input,omitempty" yaml:"input,omitempty"`
	Output       any                   `json:"output,omitempty" yaml:"output,omitempty"`
	Duration     time.Duration         `json:"duration_ns" yaml:"duration_ns"`
	ErrorPattern recovery.ErrorPattern `json:"error_pattern,omitempty" yaml:"error_pattern,omitempty"`
	Metadata     map[string]any        `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// IsError reports whether the entry records a failure.
func (e TraceEntry) IsError() bool {
	return e.ErrorPattern != ""
}

// Record is the caller-supplied part of a TraceEntry.
type Record struct {
	Operation    string
	AgentName    string
	Input        any
	Output       any
	Duration     time.Duration
	ErrorPattern recovery.ErrorPattern
	Metadata     map[string]any
}
