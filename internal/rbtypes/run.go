package rbtypes

import "time"

// RunStatus is the terminal-or-running state of a Run.
type RunStatus string

const (
	RunRunning RunStatus = "RUNNING"
	RunOK      RunStatus = "OK"
	RunNOK     RunStatus = "NOK"
	RunAborted RunStatus = "ABORTED"
)

// Terminal reports whether status is one a Run never leaves (spec.md §3 invariants).
func (s RunStatus) Terminal() bool {
	return s == RunOK || s == RunNOK || s == RunAborted
}

// Trigger records why a Run was created.
type Trigger string

const (
	TriggerRun    Trigger = "run"
	TriggerResume Trigger = "resume"
)

// Run is the (workflow_name, run_id) row described in spec.md §3 and §6.
type Run struct {
	WorkflowName string
	RunID        int64
	StartTime    time.Time
	EndTime      *time.Time
	Status       RunStatus
	Trigger      Trigger

	NodesOK      int
	NodesNOK     int
	NodesSkipped int

	VariablesJSON  string
	RunbookDigest  string
}

// NodeStatus is the terminal-or-pending state of one NodeExecution attempt.
type NodeStatus string

const (
	NodeOK      NodeStatus = "OK"
	NodeNOK     NodeStatus = "NOK"
	NodeSkipped NodeStatus = "SKIPPED"
	NodePending NodeStatus = "PENDING"
)

// OperatorDecision is the choice made in the failure-resolution loop,
// or "none" for attempts that never reached it.
type OperatorDecision string

const (
	DecisionNone  OperatorDecision = "none"
	DecisionOK    OperatorDecision = "ok"
	DecisionNOK   OperatorDecision = "nok"
	DecisionRetry OperatorDecision = "retry"
	DecisionSkip  OperatorDecision = "skip"
	DecisionAbort OperatorDecision = "abort"
)

// NodeExecution is one attempt record, PK (workflow_name, run_id, node_id, attempt).
type NodeExecution struct {
	WorkflowName string
	RunID        int64
	NodeID       string
	Attempt      int

	StartTime time.Time
	EndTime   *time.Time

	Status           NodeStatus
	OperatorDecision OperatorDecision

	ResultText string
	ExitCode   *int
	Exception  string
	Stdout     string
	Stderr     string
	DurationMS int64
}

// ExecutionKey is the primary key as a comparable value, handy for map keys in
// in-memory Store implementations and tests.
type ExecutionKey struct {
	WorkflowName string
	RunID        int64
	NodeID       string
	Attempt      int
}

func (e *NodeExecution) Key() ExecutionKey {
	return ExecutionKey{e.WorkflowName, e.RunID, e.NodeID, e.Attempt}
}
