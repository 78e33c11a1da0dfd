package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runbookhq/runbookengine/internal/rbtypes"
)

func openTest(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "runs.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_CreateRunAndFetch(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	runID, err := s.CreateRun(ctx, "deploy", rbtypes.TriggerRun, `{"ENV":"prod"}`, "abc123")
	require.NoError(t, err)
	assert.Equal(t, int64(1), runID)

	run, err := s.GetRun(ctx, "deploy", runID)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, rbtypes.RunRunning, run.Status)
	assert.Equal(t, "abc123", run.RunbookDigest)
}

func TestSQLiteStore_BeginFinishAttemptRoundtrip(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	runID, err := s.CreateRun(ctx, "deploy", rbtypes.TriggerRun, "{}", "digest")
	require.NoError(t, err)

	attempt, err := s.BeginAttempt(ctx, "deploy", runID, "build", time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, attempt)

	code := 0
	key := rbtypes.ExecutionKey{WorkflowName: "deploy", RunID: runID, NodeID: "build", Attempt: attempt}
	require.NoError(t, s.FinishAttempt(ctx, key, rbtypes.NodeOK, rbtypes.DecisionNone, "built", &code, "", "out", "", time.Now(), 42))

	latest, err := s.LatestAttempt(ctx, "deploy", runID, "build")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, rbtypes.NodeOK, latest.Status)
	assert.Equal(t, "built", latest.ResultText)
	assert.Equal(t, 0, *latest.ExitCode)
}

func TestSQLiteStore_RunIDsIncrementPerWorkflow(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	id1, err := s.CreateRun(ctx, "deploy", rbtypes.TriggerRun, "{}", "d")
	require.NoError(t, err)
	id2, err := s.CreateRun(ctx, "deploy", rbtypes.TriggerRun, "{}", "d")
	require.NoError(t, err)
	otherID, err := s.CreateRun(ctx, "rollback", rbtypes.TriggerRun, "{}", "d")
	require.NoError(t, err)

	assert.Equal(t, int64(1), id1)
	assert.Equal(t, int64(2), id2)
	assert.Equal(t, int64(1), otherID)
}

func TestSQLiteStore_UpdateRunStatus(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	runID, _ := s.CreateRun(ctx, "deploy", rbtypes.TriggerRun, "{}", "d")

	end := time.Now()
	require.NoError(t, s.UpdateRunStatus(ctx, "deploy", runID, rbtypes.RunOK, 2, 1, 0, &end))

	run, err := s.GetRun(ctx, "deploy", runID)
	require.NoError(t, err)
	assert.Equal(t, rbtypes.RunOK, run.Status)
	assert.Equal(t, 2, run.NodesOK)
	assert.Equal(t, 1, run.NodesNOK)
	require.NotNil(t, run.EndTime)
}

func TestSQLiteStore_ExecutionsForOrdersByNodeThenAttempt(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	runID, _ := s.CreateRun(ctx, "deploy", rbtypes.TriggerRun, "{}", "d")

	a1, _ := s.BeginAttempt(ctx, "deploy", runID, "build", time.Now())
	require.NoError(t, s.FinishAttempt(ctx, rbtypes.ExecutionKey{WorkflowName: "deploy", RunID: runID, NodeID: "build", Attempt: a1}, rbtypes.NodeNOK, rbtypes.DecisionRetry, "", nil, "boom", "", "", time.Now(), 5))
	a2, _ := s.BeginAttempt(ctx, "deploy", runID, "build", time.Now())
	require.NoError(t, s.FinishAttempt(ctx, rbtypes.ExecutionKey{WorkflowName: "deploy", RunID: runID, NodeID: "build", Attempt: a2}, rbtypes.NodeOK, rbtypes.DecisionNone, "ok", nil, "", "", "", time.Now(), 5))

	execs, err := s.ExecutionsFor(ctx, "deploy", runID)
	require.NoError(t, err)
	require.Len(t, execs, 2)
	assert.Equal(t, 1, execs[0].Attempt)
	assert.Equal(t, 2, execs[1].Attempt)
}
