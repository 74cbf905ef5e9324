package engine

import (
	"context"

	"github.com/BaSui01/agentquorum/agent"
	"github.com/BaSui01/agentquorum/recovery"
	"github.com/BaSui01/agentquorum/tracing"
	"github.com/BaSui01/agentquorum/types"
	"go.uber.org/zap"
)

// resolveHandoff picks the next active agent from the handoffs requested in one
// turn, in result order. nil keeps the current agent.
func (e *Engine) resolveHandoff(ctx context.Context, st *state, requested []*agent.Agent) *agent.Agent {
	valid := make([]*agent.Agent, 0, len(requested))
	for _, a := range requested {
		if err := a.Validate(); err != nil {
			e.logger.Warn("ignoring invalid handoff target", zap.Error(err))
			continue
		}
		valid = append(valid, a)
	}
	if len(valid) == 0 {
		return nil
	}

	targets := distinct(valid)
	if len(targets) == 1 {
		return valid[len(valid)-1]
	}

	switch e.cfg.HandoffPolicy {
	case HandoffRejectMultiple:
		e.tracer.Log(ctx, tracing.Record{
			Operation:    tracing.OpHandoff,
			AgentName:    st.active.Name,
			Input:        map[string]any{"requested": agent.Names(targets)},
			ErrorPattern: recovery.PatternCoordinationFailure,
			Metadata:     map[string]any{"run_id": st.runID, "turn": st.turns, "policy": string(HandoffRejectMultiple)},
		})
		e.metrics.RecordErrorPattern(string(recovery.PatternCoordinationFailure))
		e.logger.Warn("multiple handoffs rejected",
			zap.String("agent", st.active.Name),
			zap.Strings("requested", agent.Names(targets)))
		return nil

	case HandoffVote:
		message, ok := types.LastUserMessage(st.history)
		if !ok {
			message = st.history[len(st.history)-1].Content
		}
		res, err := e.voter.Vote(ctx, message, targets, e.cfg.Voting)
		if err != nil {
			e.logger.Warn("handoff vote failed", zap.Error(err))
			return nil
		}
		if res.SelectedAgent == nil {
			e.logger.Warn("handoff vote selected no agent",
				zap.String("error_pattern", string(res.ErrorPattern)))
			return nil
		}
		return res.SelectedAgent

	default:
		return valid[len(valid)-1]
	}
}

// distinct keeps the first agent of every name, preserving order.
func distinct(agents []*agent.Agent) []*agent.Agent {
	seen := make(map[string]struct{}, len(agents))
	out := make([]*agent.Agent, 0, len(agents))
	for _, a := range agents {
		if _, ok := seen[a.Name]; ok {
			continue
		}
		seen[a.Name] = struct{}{}
		out = append(out, a)
	}
	return out
}
