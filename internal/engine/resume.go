package engine

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/runbookhq/runbookengine/internal/rberrors"
	"github.com/runbookhq/runbookengine/internal/rbtypes"
	"github.com/runbookhq/runbookengine/internal/variables"
)

// Resume continues an ABORTED run (spec.md §4.6.3): it rejects any other
// status, reseeds in-memory node state from the persisted executions, and
// re-enters the dispatch loop. New attempts are always appended, never
// reusing a prior attempt number.
func (e *Engine) Resume(ctx context.Context, runID int64, overrides variables.ResolvedVariables) (*rbtypes.Run, error) {
	run, err := e.Store.GetRun(ctx, e.workflowName, runID)
	if err != nil {
		return nil, err
	}

	switch run.Status {
	case rbtypes.RunOK:
		return nil, &rberrors.StateError{Kind: rberrors.CodeNotResumableOK, Message: "run already succeeded"}
	case rbtypes.RunNOK:
		return nil, &rberrors.StateError{Kind: rberrors.CodeNotResumableNOK, Message: "run already failed"}
	case rbtypes.RunRunning:
		return nil, &rberrors.StateError{Kind: rberrors.CodeNotResumableRun, Message: "run is still in progress"}
	case rbtypes.RunAborted:
		// resumable
	default:
		return nil, &rberrors.StateError{Kind: rberrors.CodeNotResumableRun, Message: "unknown run status"}
	}

	var snapshot map[string]any
	if err := json.Unmarshal([]byte(run.VariablesJSON), &snapshot); err != nil {
		return nil, &rberrors.StoreError{Op: "unmarshal_variables", Cause: err}
	}
	vars := variables.ResolvedVariables(snapshot).Clone()
	for k, v := range overrides {
		vars[k] = v
	}

	if run.RunbookDigest != "" && run.RunbookDigest != e.runbook.Digest() {
		e.Logger.Warn("runbook changed since the run being resumed was created",
			slog.String("workflow_name", e.workflowName), slog.Int64("run_id", runID),
			slog.String("persisted_digest", run.RunbookDigest), slog.String("current_digest", e.runbook.Digest()))
	}

	e.runID = runID
	e.vars = vars
	e.Logger = e.Logger.With(slog.String("workflow_name", e.workflowName), slog.Int64("run_id", runID))

	execs, err := e.Store.ExecutionsFor(ctx, e.workflowName, runID)
	if err != nil {
		return nil, err
	}
	latest := map[string]rbtypes.NodeExecution{}
	for _, ex := range execs {
		prev, ok := latest[ex.NodeID]
		if !ok || ex.Attempt > prev.Attempt {
			latest[ex.NodeID] = ex
		}
	}

	for _, n := range e.runbook.Nodes {
		ex, ok := latest[n.ID]
		if !ok {
			e.nodeState[n.ID] = statusPending
			continue
		}
		switch ex.Status {
		case rbtypes.NodeOK:
			e.nodeState[n.ID] = statusOK
		case rbtypes.NodeSkipped:
			e.nodeState[n.ID] = statusSkipped
		default:
			// NOK or PENDING attempts are retried fresh on resume; the
			// failed attempt stays in history but does not block dispatch.
			e.nodeState[n.ID] = statusPending
		}
	}

	e.aborted = false
	e.hadCriticalNOK = false

	if err := e.Store.SetRunStatus(ctx, e.workflowName, runID, rbtypes.RunRunning); err != nil {
		return nil, err
	}
	e.Logger.Info("run resumed")

	if err := e.acquireLock(runID); err != nil {
		return nil, err
	}
	defer e.releaseLock()

	return e.dispatchLoop(ctx)
}
