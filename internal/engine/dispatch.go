package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/runbookhq/runbookengine/internal/metrics"
	"github.com/runbookhq/runbookengine/internal/rbtypes"
	"github.com/runbookhq/runbookengine/internal/runner"
	"github.com/runbookhq/runbookengine/internal/variables"
)

// dispatchLoop implements spec.md §4.6.1 steps 1-6: repeatedly compute
// the runnable set, evaluate `when`, start nodes, and resolve failures,
// until every node has reached a terminal status.
func (e *Engine) dispatchLoop(ctx context.Context) (*rbtypes.Run, error) {
	order := e.p.Order()

	for {
		if ctx.Err() != nil {
			if err := e.cancelInFlight(context.Background(), order); err != nil {
				return nil, err
			}
			e.aborted = true
			return e.finalize(context.Background())
		}

		runnable := e.settleAndFindRunnable(order)
		toExecute, err := e.evaluateWhenAndSkipRequests(ctx, runnable)
		if err != nil {
			return nil, err
		}

		if len(toExecute) == 0 {
			if e.allTerminal(order) {
				return e.finalize(ctx)
			}
			// Nothing runnable this tick but not everything terminal:
			// every remaining node is blocked on an upstream attempt
			// that has not finished yet. Since dispatch is synchronous
			// per tick, this only happens if settle logic has a gap;
			// treat it as settled to avoid spinning forever.
			return e.finalize(ctx)
		}

		if !e.Config.ParallelExecution {
			toExecute = toExecute[:1]
		}

		for _, id := range toExecute {
			e.nodeState[id] = statusRunning
		}

		if err := e.runBatch(ctx, toExecute); err != nil {
			return nil, err
		}

		if e.aborted {
			return e.finalize(ctx)
		}
	}
}

// settleAndFindRunnable walks nodes in topological order, propagating
// PRUNED through permanently-unsatisfiable edges (spec.md §4.6.1 step 1),
// and returns the ids whose every edge is satisfied right now.
func (e *Engine) settleAndFindRunnable(order []string) []string {
	var runnable []string
	for _, id := range order {
		st := e.nodeState[id]
		if st.terminal() || st == statusRunning {
			continue
		}

		deadEdge := false
		allResolved := true
		for _, edge := range e.p.DependsOn(id) {
			up := e.nodeState[edge.Upstream]
			if !up.terminal() {
				allResolved = false
				continue
			}
			if !satisfied(up, edge.Condition) {
				deadEdge = true
			}
		}

		switch {
		case deadEdge:
			e.nodeState[id] = statusPruned
			e.Logger.Debug("node pruned", slog.String("node_id", id))
		case allResolved:
			runnable = append(runnable, id)
		}
	}
	return runnable
}

// evaluateWhenAndSkipRequests applies spec.md §4.6.1 step 2: a
// skip-requested node or one whose `when` renders falsy becomes SKIPPED
// with a synthetic execution row; everything else proceeds to dispatch.
// A StoreError while recording a synthetic row is fatal to the loop
// (spec.md §4.1/§7), not a reason to skip a different node.
func (e *Engine) evaluateWhenAndSkipRequests(ctx context.Context, runnable []string) ([]string, error) {
	var toExecute []string
	for _, id := range runnable {
		n, _ := e.runbook.NodeByID(id)

		if n.SkipRequest {
			if err := e.recordSyntheticSkip(ctx, id); err != nil {
				return nil, err
			}
			continue
		}

		if n.When != "" {
			rendered, err := e.templater().Render("nodes."+id+".when", n.When)
			if err != nil {
				e.Logger.Error("when render failed, treating as falsy", slog.String("node_id", id), slog.Any("error", err))
				if err := e.recordSyntheticSkip(ctx, id); err != nil {
					return nil, err
				}
				continue
			}
			if variables.RenderedFalsy(rendered) {
				if err := e.recordSyntheticSkip(ctx, id); err != nil {
					return nil, err
				}
				continue
			}
		}

		toExecute = append(toExecute, id)
	}
	return toExecute, nil
}

func (e *Engine) recordSyntheticSkip(ctx context.Context, nodeID string) error {
	now := time.Now().UTC()
	attempt, err := e.Store.BeginAttempt(ctx, e.workflowName, e.runID, nodeID, now)
	if err != nil {
		return err
	}
	key := rbtypes.ExecutionKey{WorkflowName: e.workflowName, RunID: e.runID, NodeID: nodeID, Attempt: attempt}
	if err := e.Store.FinishAttempt(ctx, key, rbtypes.NodeSkipped, rbtypes.DecisionNone, "skipped", nil, "", "", "", now, 0); err != nil {
		return err
	}
	e.nodeState[nodeID] = statusSkipped
	metrics.NodesSkippedTotal.With(prometheus.Labels{"workflow_name": e.workflowName}).Inc()
	return nil
}

func (e *Engine) allTerminal(order []string) bool {
	for _, id := range order {
		if !e.nodeState[id].terminal() {
			return false
		}
	}
	return true
}

// runBatch executes ids concurrently, waits for them all, then resolves
// any NOK outcomes one at a time via the failure-resolution loop
// (spec.md §4.6.1 step 5: "blocks parallel dispatch until resolved"). A
// StoreError surfaced by any attempt is fatal to the whole batch (spec.md
// §4.1/§7), even if other attempts in the batch succeeded.
func (e *Engine) runBatch(ctx context.Context, ids []string) error {
	type attemptResult struct {
		nodeID  string
		attempt int
		outcome runner.Outcome
		err     error
	}
	results := make([]attemptResult, len(ids))

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			attempt, outcome, err := e.runOneAttempt(ctx, id)
			results[i] = attemptResult{id, attempt, outcome, err}
		}(i, id)
	}
	wg.Wait()

	for _, r := range results {
		if r.err != nil {
			return r.err
		}
		if e.aborted {
			return nil
		}
		if r.outcome.Status == runner.OK {
			e.nodeState[r.nodeID] = statusOK
			metrics.NodesOKTotal.With(prometheus.Labels{"workflow_name": e.workflowName}).Inc()
			continue
		}
		metrics.NodesNOKTotal.With(prometheus.Labels{"workflow_name": e.workflowName}).Inc()
		if err := e.resolveFailure(ctx, r.nodeID, r.attempt); err != nil {
			return err
		}
	}
	return nil
}

// runOneAttempt performs a single BeginAttempt/run/FinishAttempt cycle
// (spec.md §4.6.1 step 4) and returns the attempt number and outcome so
// the caller can decide whether the failure-resolution loop applies. A
// non-nil error here is always a StoreError and is fatal to the run.
func (e *Engine) runOneAttempt(ctx context.Context, nodeID string) (int, runner.Outcome, error) {
	n, _ := e.runbook.NodeByID(nodeID)
	start := time.Now().UTC()

	attempt, err := e.Store.BeginAttempt(ctx, e.workflowName, e.runID, nodeID, start)
	if err != nil {
		return 0, runner.Outcome{}, err
	}

	params, err := e.renderParams(n)
	if err != nil {
		outcome := runner.Outcome{Status: runner.NOK, Exception: err.Error()}
		if ferr := e.finishAttempt(ctx, nodeID, attempt, start, outcome); ferr != nil {
			return attempt, runner.Outcome{}, ferr
		}
		return attempt, outcome, nil
	}

	nodeCtx, cancel := context.WithTimeout(ctx, time.Duration(e.nodeTimeout(n))*time.Second)
	defer cancel()

	r := e.Runners[n.Kind]
	outcome := r.Run(nodeCtx, params)
	if ferr := e.finishAttempt(ctx, nodeID, attempt, start, outcome); ferr != nil {
		return attempt, runner.Outcome{}, ferr
	}
	return attempt, outcome, nil
}

func (e *Engine) finishAttempt(ctx context.Context, nodeID string, attempt int, start time.Time, outcome runner.Outcome) error {
	end := time.Now().UTC()
	status := rbtypes.NodeOK
	if outcome.Status == runner.NOK {
		status = rbtypes.NodeNOK
	}
	key := rbtypes.ExecutionKey{WorkflowName: e.workflowName, RunID: e.runID, NodeID: nodeID, Attempt: attempt}
	return e.Store.FinishAttempt(ctx, key, status, rbtypes.DecisionNone, outcome.ResultText, outcome.ExitCode, outcome.Exception, outcome.Stdout, outcome.Stderr, end, end.Sub(start).Milliseconds())
}
