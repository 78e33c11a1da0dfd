// Package engine implements the Engine orchestrator from spec.md §4.6:
// the run-level state machine, dispatch loop, failure-resolution loop,
// resume semantics, and cancellation handling. It is the largest single
// component, composing every other package in internal/.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/runbookhq/runbookengine/internal/interact"
	"github.com/runbookhq/runbookengine/internal/metrics"
	"github.com/runbookhq/runbookengine/internal/plan"
	"github.com/runbookhq/runbookengine/internal/rberrors"
	"github.com/runbookhq/runbookengine/internal/rbtypes"
	"github.com/runbookhq/runbookengine/internal/runner"
	"github.com/runbookhq/runbookengine/internal/store"
	"github.com/runbookhq/runbookengine/internal/variables"
	"github.com/runbookhq/runbookengine/internal/xlog"
)

// status is the engine's in-memory view of a node's progress through a
// run. Only OK, NOK, SKIPPED, PENDING are ever persisted (rbtypes.NodeStatus);
// RUNNING and PRUNED exist only in this package, the latter corresponding
// to the "not run" pseudo-status in spec.md §4.6.1.
type status string

const (
	statusPending status = "PENDING"
	statusRunning status = "RUNNING"
	statusOK      status = "OK"
	statusNOK     status = "NOK"
	statusSkipped status = "SKIPPED"
	statusPruned  status = "PRUNED"
)

func (s status) terminal() bool {
	switch s {
	case statusOK, statusNOK, statusSkipped, statusPruned:
		return true
	default:
		return false
	}
}

// Config is the subset of rbconfig.EngineConfig the dispatch loop
// consults directly (spec.md §4.6.1: "configuration {max_retries,
// default_timeout, parallel_execution, interactive_mode}").
type Config struct {
	MaxRetries        int
	DefaultTimeout    time.Duration
	ParallelExecution bool
	InteractiveMode   bool

	// LogDir is where the per-run advisory lock file lives (SPEC_FULL
	// §12). Empty disables locking, which the in-memory store tests rely
	// on since they have no directory of their own.
	LogDir string
}

// Engine owns one run's dispatch loop. Construct a fresh Engine per run
// (spec.md §9: "test suites instantiate an engine per test with an
// in-memory store").
type Engine struct {
	Store      store.Store
	Runners    map[rbtypes.NodeKind]runner.Runner
	Interactor interact.Interactor
	Config     Config
	Logger     *slog.Logger

	runbook      *rbtypes.Runbook
	p            *plan.Plan
	workflowName string
	runID        int64
	vars         variables.ResolvedVariables

	nodeState      map[string]status
	aborted        bool
	hadCriticalNOK bool

	lock *store.RunLock
}

// New prepares an Engine to run rb. It does not create the Run row or
// start dispatch; call Start for that.
func New(rb *rbtypes.Runbook, workflowName string, st store.Store, runners map[rbtypes.NodeKind]runner.Runner, interactor interact.Interactor, cfg Config, logger *slog.Logger) (*Engine, error) {
	p, err := plan.Build(rb)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = xlog.Discard()
	}
	return &Engine{
		Store: st, Runners: runners, Interactor: interactor, Config: cfg, Logger: logger,
		runbook: rb, p: p, workflowName: workflowName,
		nodeState: map[string]status{},
	}, nil
}

// Start creates the Run row (RUNNING, trigger=run) and runs the dispatch
// loop to completion (spec.md §4.6.1).
func (e *Engine) Start(ctx context.Context, vars variables.ResolvedVariables) (*rbtypes.Run, error) {
	varsJSON, err := json.Marshal(map[string]any(vars))
	if err != nil {
		return nil, &rberrors.StoreError{Op: "marshal_variables", Cause: err}
	}

	runID, err := e.Store.CreateRun(ctx, e.workflowName, rbtypes.TriggerRun, string(varsJSON), e.runbook.Digest())
	if err != nil {
		return nil, err
	}
	e.runID = runID
	e.vars = vars
	for _, n := range e.runbook.Nodes {
		e.nodeState[n.ID] = statusPending
	}

	e.Logger = xlog.WithRun(e.Logger, e.workflowName, runID)
	e.Logger.Info("run started", slog.String("correlation_id", uuid.NewString()))

	if err := e.acquireLock(runID); err != nil {
		return nil, err
	}
	defer e.releaseLock()

	return e.dispatchLoop(ctx)
}

// finalize computes the Run's terminal status and counters and persists
// them (spec.md §4.6.1 step 7).
func (e *Engine) finalize(ctx context.Context) (*rbtypes.Run, error) {
	var okN, nokN, skippedN int
	for _, n := range e.runbook.Nodes {
		switch e.nodeState[n.ID] {
		case statusOK:
			okN++
		case statusNOK:
			nokN++
		case statusSkipped:
			skippedN++
		}
	}

	var final rbtypes.RunStatus
	switch {
	case e.aborted:
		final = rbtypes.RunAborted
	case e.hadCriticalNOK:
		final = rbtypes.RunNOK
	default:
		final = rbtypes.RunOK
	}

	end := time.Now().UTC()
	if err := e.Store.UpdateRunStatus(ctx, e.workflowName, e.runID, final, okN, nokN, skippedN, &end); err != nil {
		return nil, err
	}

	run, err := e.Store.GetRun(ctx, e.workflowName, e.runID)
	if err != nil {
		return nil, err
	}

	duration := end.Sub(run.StartTime)
	metrics.RunDurationSeconds.With(prometheus.Labels{"workflow_name": e.workflowName, "status": string(final)}).Observe(duration.Seconds())
	e.Logger.Info("run finished", slog.String("status", string(final)), slog.Int("ok", okN), slog.Int("nok", nokN), slog.Int("skipped", skippedN))

	return run, nil
}

// nodeLookup implements variables.NodeStatusLookup against live nodeState,
// wired into the Templater for has_succeeded/has_failed.
type nodeLookup struct{ e *Engine }

func (l nodeLookup) HasSucceeded(nodeID string) bool { return l.e.nodeState[nodeID] == statusOK }
func (l nodeLookup) HasFailed(nodeID string) bool    { return l.e.nodeState[nodeID] == statusNOK }

func (e *Engine) templater() *variables.Templater {
	return &variables.Templater{Vars: e.vars, Lookup: nodeLookup{e}}
}

func (e *Engine) nodeTimeout(n rbtypes.NodeDescriptor) int {
	if n.TimeoutSecs > 0 {
		return n.TimeoutSecs
	}
	return int(e.Config.DefaultTimeout / time.Second)
}

func satisfied(up status, cond rbtypes.Condition) bool {
	switch cond {
	case rbtypes.ConditionSuccess:
		return up == statusOK
	case rbtypes.ConditionFailure:
		return up == statusNOK
	default:
		return up == statusOK || up == statusSkipped
	}
}

// acquireLock takes the per-run advisory lock (SPEC_FULL §12), unless
// LogDir is unset, in which case locking is skipped entirely.
func (e *Engine) acquireLock(runID int64) error {
	if e.Config.LogDir == "" {
		return nil
	}
	l, err := store.AcquireRunLock(e.Config.LogDir, e.workflowName, runID)
	if err != nil {
		return &rberrors.StoreError{Op: "acquire_run_lock", Cause: err}
	}
	e.lock = l
	return nil
}

// releaseLock drops the lock taken by acquireLock, logging rather than
// failing the run if the unlock itself errors — the run's terminal
// status has already been persisted by the time this runs.
func (e *Engine) releaseLock() {
	if e.lock == nil {
		return
	}
	if err := e.lock.Release(); err != nil {
		e.Logger.Error("releasing run lock", slog.Any("error", err))
	}
	e.lock = nil
}

func envFromVars(vars variables.ResolvedVariables) map[string]string {
	out := make(map[string]string, len(vars))
	for k, v := range vars {
		out[k] = fmt.Sprintf("%v", v)
	}
	return out
}
