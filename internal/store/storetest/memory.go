// Package storetest provides an in-memory store.Store for Engine tests,
// so they exercise the real port contract without ever
// touching disk (SPEC_FULL §10.4).
package storetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/runbookhq/runbookengine/internal/rberrors"
	"github.com/runbookhq/runbookengine/internal/rbtypes"
	"github.com/runbookhq/runbookengine/internal/store"
)

type runKey struct {
	workflow string
	runID    int64
}

// Memory is a store.Store backed entirely by in-process maps, guarded by
// a single mutex — adequate for tests, which never need sqlite's
// durability or concurrent-writer serialization.
type Memory struct {
	mu         sync.Mutex
	runs       map[runKey]*rbtypes.Run
	executions map[runKey][]*rbtypes.NodeExecution
}

var _ store.Store = (*Memory)(nil)

func New() *Memory {
	return &Memory{
		runs:       map[runKey]*rbtypes.Run{},
		executions: map[runKey][]*rbtypes.NodeExecution{},
	}
}

func (m *Memory) CreateRun(_ context.Context, workflowName string, trigger rbtypes.Trigger, variablesJSON, runbookDigest string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var maxID int64
	for k := range m.runs {
		if k.workflow == workflowName && k.runID > maxID {
			maxID = k.runID
		}
	}
	runID := maxID + 1
	m.runs[runKey{workflowName, runID}] = &rbtypes.Run{
		WorkflowName:  workflowName,
		RunID:         runID,
		StartTime:     time.Now().UTC(),
		Status:        rbtypes.RunRunning,
		Trigger:       trigger,
		VariablesJSON: variablesJSON,
		RunbookDigest: runbookDigest,
	}
	return runID, nil
}

func (m *Memory) LatestRunFor(_ context.Context, workflowName string) (*rbtypes.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var latest *rbtypes.Run
	for k, r := range m.runs {
		if k.workflow != workflowName {
			continue
		}
		if latest == nil || r.RunID > latest.RunID {
			latest = r
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (m *Memory) GetRun(_ context.Context, workflowName string, runID int64) (*rbtypes.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.runs[runKey{workflowName, runID}]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *Memory) UpdateRunStatus(_ context.Context, workflowName string, runID int64, status rbtypes.RunStatus, nodesOK, nodesNOK, nodesSkipped int, endTime *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.runs[runKey{workflowName, runID}]
	if !ok {
		return &rberrors.StoreError{Op: "update_run_status", Cause: errNotFound(workflowName, runID)}
	}
	r.Status = status
	r.NodesOK, r.NodesNOK, r.NodesSkipped = nodesOK, nodesNOK, nodesSkipped
	r.EndTime = endTime
	return nil
}

func (m *Memory) SetRunStatus(_ context.Context, workflowName string, runID int64, status rbtypes.RunStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.runs[runKey{workflowName, runID}]
	if !ok {
		return &rberrors.StoreError{Op: "set_run_status", Cause: errNotFound(workflowName, runID)}
	}
	r.Status = status
	return nil
}

func (m *Memory) BeginAttempt(_ context.Context, workflowName string, runID int64, nodeID string, startTime time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := runKey{workflowName, runID}
	maxAttempt := 0
	for _, e := range m.executions[key] {
		if e.NodeID == nodeID && e.Attempt > maxAttempt {
			maxAttempt = e.Attempt
		}
	}
	attempt := maxAttempt + 1
	m.executions[key] = append(m.executions[key], &rbtypes.NodeExecution{
		WorkflowName: workflowName,
		RunID:        runID,
		NodeID:       nodeID,
		Attempt:      attempt,
		StartTime:    startTime,
		Status:       rbtypes.NodePending,
		OperatorDecision: rbtypes.DecisionNone,
	})
	return attempt, nil
}

func (m *Memory) FinishAttempt(_ context.Context, key rbtypes.ExecutionKey, status rbtypes.NodeStatus, decision rbtypes.OperatorDecision, resultText string, exitCode *int, exception, stdout, stderr string, endTime time.Time, durationMS int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rk := runKey{key.WorkflowName, key.RunID}
	for _, e := range m.executions[rk] {
		if e.NodeID == key.NodeID && e.Attempt == key.Attempt {
			e.EndTime = &endTime
			e.Status = status
			e.OperatorDecision = decision
			e.ResultText = resultText
			e.ExitCode = exitCode
			e.Exception = exception
			e.Stdout = stdout
			e.Stderr = stderr
			e.DurationMS = durationMS
			return nil
		}
	}
	return &rberrors.StoreError{Op: "finish_attempt", Cause: errNotFound(key.WorkflowName, key.RunID)}
}

func (m *Memory) SetOperatorDecision(_ context.Context, key rbtypes.ExecutionKey, decision rbtypes.OperatorDecision) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rk := runKey{key.WorkflowName, key.RunID}
	for _, e := range m.executions[rk] {
		if e.NodeID == key.NodeID && e.Attempt == key.Attempt {
			e.OperatorDecision = decision
			return nil
		}
	}
	return &rberrors.StoreError{Op: "set_operator_decision", Cause: errNotFound(key.WorkflowName, key.RunID)}
}

func (m *Memory) LatestAttempt(_ context.Context, workflowName string, runID int64, nodeID string) (*rbtypes.NodeExecution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var latest *rbtypes.NodeExecution
	for _, e := range m.executions[runKey{workflowName, runID}] {
		if e.NodeID != nodeID {
			continue
		}
		if latest == nil || e.Attempt > latest.Attempt {
			latest = e
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (m *Memory) ExecutionsFor(_ context.Context, workflowName string, runID int64) ([]rbtypes.NodeExecution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	src := m.executions[runKey{workflowName, runID}]
	out := make([]rbtypes.NodeExecution, len(src))
	for i, e := range src {
		out[i] = *e
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].NodeID != out[j].NodeID {
			return out[i].NodeID < out[j].NodeID
		}
		return out[i].Attempt < out[j].Attempt
	})
	return out, nil
}

type notFoundError struct {
	workflowName string
	runID        int64
}

func (e notFoundError) Error() string {
	return "run not found: " + e.workflowName
}

func errNotFound(workflowName string, runID int64) error {
	return notFoundError{workflowName, runID}
}
