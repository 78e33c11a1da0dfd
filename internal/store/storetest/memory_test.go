package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runbookhq/runbookengine/internal/rbtypes"
)

func TestMemory_CreateRunIncrementsPerWorkflow(t *testing.T) {
	m := New()
	ctx := context.Background()

	id1, err := m.CreateRun(ctx, "deploy", rbtypes.TriggerRun, "{}", "digest")
	require.NoError(t, err)
	assert.Equal(t, int64(1), id1)

	id2, err := m.CreateRun(ctx, "deploy", rbtypes.TriggerRun, "{}", "digest")
	require.NoError(t, err)
	assert.Equal(t, int64(2), id2)

	otherID, err := m.CreateRun(ctx, "rollback", rbtypes.TriggerRun, "{}", "digest")
	require.NoError(t, err)
	assert.Equal(t, int64(1), otherID)
}

func TestMemory_AttemptNumberingIsDense(t *testing.T) {
	m := New()
	ctx := context.Background()
	runID, _ := m.CreateRun(ctx, "deploy", rbtypes.TriggerRun, "{}", "digest")

	a1, err := m.BeginAttempt(ctx, "deploy", runID, "build", time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, a1)

	require.NoError(t, m.FinishAttempt(ctx, rbtypes.ExecutionKey{WorkflowName: "deploy", RunID: runID, NodeID: "build", Attempt: a1},
		rbtypes.NodeNOK, rbtypes.DecisionRetry, "", nil, "boom", "", "", time.Now(), 10))

	a2, err := m.BeginAttempt(ctx, "deploy", runID, "build", time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, a2)

	execs, err := m.ExecutionsFor(ctx, "deploy", runID)
	require.NoError(t, err)
	require.Len(t, execs, 2)
	assert.Equal(t, 1, execs[0].Attempt)
	assert.Equal(t, 2, execs[1].Attempt)
}

func TestMemory_LatestAttemptReflectsMostRecent(t *testing.T) {
	m := New()
	ctx := context.Background()
	runID, _ := m.CreateRun(ctx, "deploy", rbtypes.TriggerRun, "{}", "digest")

	a1, _ := m.BeginAttempt(ctx, "deploy", runID, "build", time.Now())
	_ = m.FinishAttempt(ctx, rbtypes.ExecutionKey{WorkflowName: "deploy", RunID: runID, NodeID: "build", Attempt: a1}, rbtypes.NodeNOK, rbtypes.DecisionRetry, "", nil, "boom", "", "", time.Now(), 10)
	a2, _ := m.BeginAttempt(ctx, "deploy", runID, "build", time.Now())
	_ = m.FinishAttempt(ctx, rbtypes.ExecutionKey{WorkflowName: "deploy", RunID: runID, NodeID: "build", Attempt: a2}, rbtypes.NodeOK, rbtypes.DecisionNone, "done", nil, "", "", "", time.Now(), 10)

	latest, err := m.LatestAttempt(ctx, "deploy", runID, "build")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 2, latest.Attempt)
	assert.Equal(t, rbtypes.NodeOK, latest.Status)
}

func TestMemory_UpdateAndSetRunStatus(t *testing.T) {
	m := New()
	ctx := context.Background()
	runID, _ := m.CreateRun(ctx, "deploy", rbtypes.TriggerRun, "{}", "digest")

	end := time.Now()
	require.NoError(t, m.UpdateRunStatus(ctx, "deploy", runID, rbtypes.RunOK, 3, 0, 0, &end))
	run, err := m.GetRun(ctx, "deploy", runID)
	require.NoError(t, err)
	assert.Equal(t, rbtypes.RunOK, run.Status)
	assert.Equal(t, 3, run.NodesOK)

	require.NoError(t, m.SetRunStatus(ctx, "deploy", runID, rbtypes.RunAborted))
	run, _ = m.GetRun(ctx, "deploy", runID)
	assert.Equal(t, rbtypes.RunAborted, run.Status)
}

func TestMemory_GetRunMissing(t *testing.T) {
	m := New()
	run, err := m.GetRun(context.Background(), "ghost", 1)
	require.NoError(t, err)
	assert.Nil(t, run)
}
