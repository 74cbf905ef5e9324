package recovery

import "maps"

// Action is a recommended recovery action.
type Action string

const (
	ActionRetryWithStructure       Action = "retry_with_structure"
	ActionRedecompose              Action = "redecompose"
	ActionReduceComplexityAndRetry Action = "reduce_complexity_and_retry"
	ActionFallbackToConfidence     Action = "fallback_to_confidence"
	ActionRouteToAlternateAgent    Action = "route_to_alternate_agent"
	ActionSkipAndProceed           Action = "skip_and_proceed"
	ActionRequestMoreValidation    Action = "request_more_validation"
	ActionReduceTaskSize           Action = "reduce_task_size"
	ActionReduceDepth              Action = "reduce_depth"
	ActionRequestMoreContext       Action = "request_more_context"
	ActionGenericRetry             Action = "generic_retry"
	ActionEscalateToHuman          Action = "escalate_to_human"
)

// Strategy is the recovery recommendation for one failure.
type Strategy struct {
	Pattern    ErrorPattern   `json:"pattern" yaml:"pattern"`
	Action     Action         `json:"action" yaml:"action"`
	Parameters map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	MaxRetries int            `json:"max_retries" yaml:"max_retries"`

	// Attempt is the failure count for (operation, pattern) including this one.
	Attempt   int  `json:"attempt" yaml:"attempt"`
	Escalated bool `json:"escalated" yaml:"escalated"`
}

// Retryable reports whether the action asks the caller to try the operation again.
func (s Strategy) Retryable() bool {
	if s.Escalated {
		return false
	}
	switch s.Action {
	case ActionRetryWithStructure, ActionReduceComplexityAndRetry, ActionRouteToAlternateAgent,
		ActionReduceTaskSize, ActionGenericRetry:
		return true
	default:
		return false
	}
}

func (s Strategy) clone() Strategy {
	s.Parameters = maps.Clone(s.Parameters)
	return s
}

// DefaultStrategies returns the default recovery record of every pattern.
func DefaultStrategies() map[ErrorPattern]Strategy {
	table := map[ErrorPattern]Strategy{
		PatternMalformedOutput: {
			Action:     ActionRetryWithStructure,
			Parameters: map[string]any{"enforce_json": true, "temperature": 0.0},
			MaxRetries: 3,
		},
		PatternSchemaViolation: {
			Action:     ActionRetryWithStructure,
			Parameters: map[string]any{"include_schema": true},
			MaxRetries: 2,
		},
		PatternNonIndependentSubtasks: {
			Action:     ActionRedecompose,
			Parameters: map[string]any{"enforce_independence": true},
			MaxRetries: 2,
		},
		PatternAmbiguousComposition: {
			Action:     ActionRedecompose,
			Parameters: map[string]any{"explicit_composition": true},
			MaxRetries: 2,
		},
		PatternAtomicMiscalculation: {
			Action:     ActionReduceComplexityAndRetry,
			Parameters: map[string]any{"complexity_factor": 0.5},
			MaxRetries: 2,
		},
		PatternComposedMiscalculation: {
			Action:     ActionReduceComplexityAndRetry,
			Parameters: map[string]any{"complexity_factor": 0.5, "verify_composition": true},
			MaxRetries: 2,
		},
		PatternConsensusFailure: {
			Action:     ActionFallbackToConfidence,
			Parameters: map[string]any{"min_confidence": 0.6},
			MaxRetries: 1,
		},
		PatternLowConfidence: {
			Action:     ActionRequestMoreValidation,
			Parameters: map[string]any{"additional_validators": 2},
			MaxRetries: 2,
		},
		PatternAgentUnavailable: {
			Action:     ActionRouteToAlternateAgent,
			Parameters: map[string]any{"backoff_seconds": 1.0},
			MaxRetries: 3,
		},
		PatternValidationError: {
			Action:     ActionRequestMoreValidation,
			Parameters: map[string]any{"additional_validators": 1},
			MaxRetries: 2,
		},
		PatternCoordinationFailure: {
			Action:     ActionSkipAndProceed,
			Parameters: map[string]any{"log_failure": true},
			MaxRetries: 1,
		},
		PatternTimeout: {
			Action:     ActionReduceTaskSize,
			Parameters: map[string]any{"size_factor": 0.5, "timeout_multiplier": 1.5},
			MaxRetries: 2,
		},
		PatternResourceExhaustion: {
			Action:     ActionReduceTaskSize,
			Parameters: map[string]any{"size_factor": 0.25, "backoff_seconds": 5.0},
			MaxRetries: 1,
		},
		PatternDecompositionDepthExceeded: {
			Action:     ActionReduceDepth,
			Parameters: map[string]any{"max_depth_delta": -1},
			MaxRetries: 1,
		},
		PatternContextLoss: {
			Action:     ActionRequestMoreContext,
			Parameters: map[string]any{"restore_history": true},
			MaxRetries: 2,
		},
		PatternInsufficientContext: {
			Action:     ActionRequestMoreContext,
			Parameters: map[string]any{"expand_context": true},
			MaxRetries: 2,
		},
		PatternUnknown: {
			Action:     ActionGenericRetry,
			Parameters: map[string]any{"backoff_seconds": 1.0},
			MaxRetries: 3,
		},
	}
	for p, s := range table {
		s.Pattern = p
		table[p] = s
	}
	return table
}
