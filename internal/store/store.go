// Package store implements the Store port from spec.md §4.1/§6: durable,
// transactional persistence of Runs and NodeExecutions. Sqlite was chosen
// over the teacher's file-based jsondb approach (which has no surviving
// source in this pack to adapt) because spec.md §6 explicitly allows "a
// key-value or relational implementation" and the PK/transactional
// language maps directly onto SQL.
package store

import (
	"context"
	"time"

	"github.com/runbookhq/runbookengine/internal/rbtypes"
)

// Store is the durable persistence port the Engine depends on (spec.md §4.1).
type Store interface {
	// CreateRun inserts a new Run row with status RUNNING and run_id the
	// next integer for workflowName (monotonic per workflow).
	CreateRun(ctx context.Context, workflowName string, trigger rbtypes.Trigger, variablesJSON, runbookDigest string) (runID int64, err error)

	LatestRunFor(ctx context.Context, workflowName string) (*rbtypes.Run, error)
	GetRun(ctx context.Context, workflowName string, runID int64) (*rbtypes.Run, error)

	UpdateRunStatus(ctx context.Context, workflowName string, runID int64, status rbtypes.RunStatus, nodesOK, nodesNOK, nodesSkipped int, endTime *time.Time) error

	// SetRunStatus is the narrow write used by the status-override external
	// command to rehabilitate orphaned RUNNING rows (spec.md §4.1).
	SetRunStatus(ctx context.Context, workflowName string, runID int64, status rbtypes.RunStatus) error

	// BeginAttempt inserts a PENDING execution row, attempt = 1 + the
	// current max attempt for (workflowName, runID, nodeID).
	BeginAttempt(ctx context.Context, workflowName string, runID int64, nodeID string, startTime time.Time) (attempt int, err error)

	FinishAttempt(ctx context.Context, key rbtypes.ExecutionKey, status rbtypes.NodeStatus, decision rbtypes.OperatorDecision, resultText string, exitCode *int, exception, stdout, stderr string, endTime time.Time, durationMS int64) error

	// SetOperatorDecision updates the operator_decision on an already
	// finished attempt row, used by the failure-resolution loop to record
	// what the operator chose about a NOK attempt after the fact (spec.md
	// §4.6.2): the raw outcome is persisted via FinishAttempt with
	// decision=none the moment the runner returns, then this call
	// overwrites it once Decide() returns.
	SetOperatorDecision(ctx context.Context, key rbtypes.ExecutionKey, decision rbtypes.OperatorDecision) error

	LatestAttempt(ctx context.Context, workflowName string, runID int64, nodeID string) (*rbtypes.NodeExecution, error)
	ExecutionsFor(ctx context.Context, workflowName string, runID int64) ([]rbtypes.NodeExecution, error)
}
