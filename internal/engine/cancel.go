package engine

import (
	"context"
	"time"

	"github.com/runbookhq/runbookengine/internal/rbtypes"
)

// cancelInFlight closes out every node still RUNNING or PENDING with a
// cancelled NOK attempt (spec.md §4.6.4), guaranteeing their execution
// rows are persisted before the Run transitions to ABORTED in finalize.
// A StoreError here is fatal to the loop, same as everywhere else a live
// run touches the Store (spec.md §4.1/§7): the caller leaves the Run
// RUNNING for manual repair rather than finalize over an incomplete set
// of cancellation rows.
func (e *Engine) cancelInFlight(ctx context.Context, order []string) error {
	now := time.Now().UTC()
	for _, id := range order {
		switch e.nodeState[id] {
		case statusRunning, statusPending:
		default:
			continue
		}

		attempt, err := e.Store.BeginAttempt(ctx, e.workflowName, e.runID, id, now)
		if err != nil {
			return err
		}
		key := rbtypes.ExecutionKey{WorkflowName: e.workflowName, RunID: e.runID, NodeID: id, Attempt: attempt}
		if err := e.Store.FinishAttempt(ctx, key, rbtypes.NodeNOK, rbtypes.DecisionNone, "cancelled", nil, "cancelled", "", "", now, 0); err != nil {
			return err
		}
		e.nodeState[id] = statusNOK
	}
	return nil
}
