package recovery

// ErrorPattern is the closed failure taxonomy. Values are stable JSON names.
type ErrorPattern string

const (
	PatternMalformedOutput            ErrorPattern = "malformed_output"
	PatternNonIndependentSubtasks     ErrorPattern = "non_independent_subtasks"
	PatternAmbiguousComposition       ErrorPattern = "ambiguous_composition"
	PatternAtomicMiscalculation       ErrorPattern = "atomic_miscalculation"
	PatternComposedMiscalculation     ErrorPattern = "composed_miscalculation"
	PatternTimeout                    ErrorPattern = "timeout_error"
	PatternConsensusFailure           ErrorPattern = "consensus_failure"
	PatternAgentUnavailable           ErrorPattern = "agent_unavailable"
	PatternValidationError            ErrorPattern = "validation_error"
	PatternLowConfidence              ErrorPattern = "low_confidence"
	PatternResourceExhaustion         ErrorPattern = "resource_exhaustion"
	PatternDecompositionDepthExceeded ErrorPattern = "decomposition_depth_exceeded"
	PatternCoordinationFailure        ErrorPattern = "coordination_failure"
	PatternContextLoss                ErrorPattern = "context_loss"
	PatternInsufficientContext        ErrorPattern = "insufficient_context"
	PatternSchemaViolation            ErrorPattern = "schema_violation"
	PatternUnknown                    ErrorPattern = "unknown_error"
)

// AllPatterns lists every pattern, catch-all last.
func AllPatterns() []ErrorPattern {
	return []ErrorPattern{
		PatternMalformedOutput,
		PatternNonIndependentSubtasks,
		PatternAmbiguousComposition,
		PatternAtomicMiscalculation,
		PatternComposedMiscalculation,
		PatternTimeout,
		PatternConsensusFailure,
		PatternAgentUnavailable,
		PatternValidationError,
		PatternLowConfidence,
		PatternResourceExhaustion,
		PatternDecompositionDepthExceeded,
		PatternCoordinationFailure,
		PatternContextLoss,
		PatternInsufficientContext,
		PatternSchemaViolation,
		PatternUnknown,
	}
}

// Valid reports whether p belongs to the taxonomy.
func (p ErrorPattern) Valid() bool {
	for _, known := range AllPatterns() {
		if p == known {
			return true
		}
	}
	return false
}

// Severity 错误严重程度
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Severity grades the pattern for trace summaries.
func (p ErrorPattern) Severity() Severity {
	switch p {
	case PatternResourceExhaustion, PatternCoordinationFailure, PatternContextLoss:
		return SeverityCritical
	case PatternTimeout, PatternConsensusFailure, PatternAgentUnavailable,
		PatternDecompositionDepthExceeded, PatternComposedMiscalculation:
		return SeverityHigh
	case PatternMalformedOutput, PatternSchemaViolation, PatternValidationError,
		PatternNonIndependentSubtasks, PatternAmbiguousComposition,
		PatternAtomicMiscalculation, PatternInsufficientContext, PatternUnknown:
		return SeverityMedium
	default:
		return SeverityLow
	}
}
