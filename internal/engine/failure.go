package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/runbookhq/runbookengine/internal/interact"
	"github.com/runbookhq/runbookengine/internal/metrics"
	"github.com/runbookhq/runbookengine/internal/rbtypes"
)

// resolveFailure runs the failure-resolution loop for nodeID's attempt
// (spec.md §4.6.2) after a NOK outcome. It loops on retry, recording a
// brand-new attempt each time, until the node reaches a terminal status
// or the run is aborted.
func (e *Engine) resolveFailure(ctx context.Context, nodeID string, attempt int) error {
	n, _ := e.runbook.NodeByID(nodeID)

	for {
		allowRetry := attempt <= e.Config.MaxRetries
		allowSkip := !n.Critical

		if n.Critical && !allowRetry {
			e.nodeState[nodeID] = statusNOK
			e.hadCriticalNOK = true
			e.Logger.Error("critical node exhausted retries, run failing", slog.String("node_id", nodeID), slog.Int("attempt", attempt))
			return nil
		}

		exec, err := e.Store.LatestAttempt(ctx, e.workflowName, e.runID, nodeID)
		exception := ""
		if err == nil && exec != nil {
			exception = exec.Exception
		}

		choice, err := e.Interactor.Decide(ctx, interact.FailureContext{
			NodeID: nodeID, Attempt: attempt, MaxRetries: e.Config.MaxRetries,
			Critical: n.Critical, Exception: exception,
			AllowRetry: allowRetry, AllowSkip: allowSkip,
		})
		if err != nil {
			e.Logger.Error("interactor failed, forcing abort for safety", slog.String("node_id", nodeID), slog.Any("error", err))
			choice = interact.ChoiceAbort
		}

		switch choice {
		case interact.ChoiceRetry:
			if !allowRetry {
				e.Logger.Error("retry chosen but not allowed, forcing abort", slog.String("node_id", nodeID))
				return e.recordAbort(ctx, nodeID, attempt)
			}
			failedKey := rbtypes.ExecutionKey{WorkflowName: e.workflowName, RunID: e.runID, NodeID: nodeID, Attempt: attempt}
			if err := e.Store.SetOperatorDecision(ctx, failedKey, interact.ToOperatorDecision(choice)); err != nil {
				return err
			}
			next, outcome, err := e.runOneAttempt(ctx, nodeID)
			if err != nil {
				return err
			}
			attempt = next
			if outcome.Status == "OK" {
				metrics.NodesOKTotal.With(prometheus.Labels{"workflow_name": e.workflowName}).Inc()
				e.nodeState[nodeID] = statusOK
				return nil
			}
			metrics.NodesNOKTotal.With(prometheus.Labels{"workflow_name": e.workflowName}).Inc()
			continue

		case interact.ChoiceSkip:
			if !allowSkip {
				e.Logger.Error("skip chosen on a critical node, forcing abort", slog.String("node_id", nodeID))
				return e.recordAbort(ctx, nodeID, attempt)
			}
			return e.recordSkipDecision(ctx, nodeID)

		case interact.ChoiceAbort:
			return e.recordAbort(ctx, nodeID, attempt)

		default:
			return e.recordAbort(ctx, nodeID, attempt)
		}
	}
}

// recordSkipDecision writes the synthetic SKIPPED/decision=skip row
// spec.md §4.6.2 describes for an operator-chosen skip.
func (e *Engine) recordSkipDecision(ctx context.Context, nodeID string) error {
	now := time.Now().UTC()
	attempt, err := e.Store.BeginAttempt(ctx, e.workflowName, e.runID, nodeID, now)
	if err != nil {
		return err
	}
	key := rbtypes.ExecutionKey{WorkflowName: e.workflowName, RunID: e.runID, NodeID: nodeID, Attempt: attempt}
	if err := e.Store.FinishAttempt(ctx, key, rbtypes.NodeSkipped, rbtypes.DecisionSkip, "operator skipped", nil, "", "", "", now, 0); err != nil {
		return err
	}
	e.nodeState[nodeID] = statusSkipped
	metrics.NodesSkippedTotal.With(prometheus.Labels{"workflow_name": e.workflowName}).Inc()
	return nil
}

// recordAbort writes the synthetic NOK/decision=abort row spec.md §4.6.2
// describes: node-level status has no ABORTED value, so the node's
// terminal status is NOK and the run-level ABORTED transition happens in
// finalize via e.aborted.
func (e *Engine) recordAbort(ctx context.Context, nodeID string, _ int) error {
	now := time.Now().UTC()
	attempt, err := e.Store.BeginAttempt(ctx, e.workflowName, e.runID, nodeID, now)
	if err != nil {
		return err
	}
	key := rbtypes.ExecutionKey{WorkflowName: e.workflowName, RunID: e.runID, NodeID: nodeID, Attempt: attempt}
	if err := e.Store.FinishAttempt(ctx, key, rbtypes.NodeNOK, rbtypes.DecisionAbort, "operator aborted", nil, "aborted by operator", "", "", now, 0); err != nil {
		return err
	}
	e.nodeState[nodeID] = statusNOK
	e.aborted = true
	return nil
}
