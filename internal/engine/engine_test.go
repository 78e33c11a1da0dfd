package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runbookhq/runbookengine/internal/interact"
	"github.com/runbookhq/runbookengine/internal/rbtypes"
	"github.com/runbookhq/runbookengine/internal/runner"
	"github.com/runbookhq/runbookengine/internal/store/storetest"
	"github.com/runbookhq/runbookengine/internal/variables"
	"github.com/runbookhq/runbookengine/internal/xlog"
)

// scriptedRunner returns a fixed sequence of outcomes per call, one per
// invocation, repeating the last entry once exhausted.
type scriptedRunner struct {
	outcomes []runner.Outcome
	calls    int
}

func (r *scriptedRunner) Run(_ context.Context, _ runner.Params) runner.Outcome {
	i := r.calls
	if i >= len(r.outcomes) {
		i = len(r.outcomes) - 1
	}
	r.calls++
	return r.outcomes[i]
}

func okRunner() *scriptedRunner {
	return &scriptedRunner{outcomes: []runner.Outcome{{Status: runner.OK, ResultText: "ok"}}}
}

func nokRunner() *scriptedRunner {
	return &scriptedRunner{outcomes: []runner.Outcome{{Status: runner.NOK, Exception: "boom"}}}
}

func newTestEngine(t *testing.T, rb *rbtypes.Runbook, runners map[rbtypes.NodeKind]runner.Runner, interactor interact.Interactor, cfg Config) (*Engine, *storetest.Memory) {
	t.Helper()
	st := storetest.New()
	e, err := New(rb, "demo", st, runners, interactor, cfg, xlog.Discard())
	require.NoError(t, err)
	return e, st
}

func linearRunbook() *rbtypes.Runbook {
	return &rbtypes.Runbook{
		Title: "demo",
		Nodes: []rbtypes.NodeDescriptor{
			{ID: "a", Kind: rbtypes.KindCommand, Depends: rbtypes.DependsExpr{Omitted: true}, Command: rbtypes.CommandPayload{Command: "echo a"}},
			{ID: "b", Kind: rbtypes.KindCommand, Depends: rbtypes.DependsExpr{Omitted: true}, Command: rbtypes.CommandPayload{Command: "echo b"}},
		},
	}
}

func TestEngine_LinearHappyPath(t *testing.T) {
	rb := linearRunbook()
	runners := map[rbtypes.NodeKind]runner.Runner{rbtypes.KindCommand: okRunner()}
	e, st := newTestEngine(t, rb, runners, interact.NonInteractive{}, Config{MaxRetries: 1, DefaultTimeout: 5 * time.Second})

	run, err := e.Start(context.Background(), variables.ResolvedVariables{})
	require.NoError(t, err)
	assert.Equal(t, rbtypes.RunOK, run.Status)
	assert.Equal(t, 2, run.NodesOK)

	execs, err := st.ExecutionsFor(context.Background(), "demo", run.RunID)
	require.NoError(t, err)
	assert.Len(t, execs, 2)
}

func TestEngine_RetryThenSuccess(t *testing.T) {
	rb := &rbtypes.Runbook{Nodes: []rbtypes.NodeDescriptor{
		{ID: "a", Kind: rbtypes.KindCommand, Command: rbtypes.CommandPayload{Command: "flaky"}},
	}}
	flaky := &scriptedRunner{outcomes: []runner.Outcome{
		{Status: runner.NOK, Exception: "first try fails"},
		{Status: runner.OK, ResultText: "second try ok"},
	}}
	runners := map[rbtypes.NodeKind]runner.Runner{rbtypes.KindCommand: flaky}

	e, _ := newTestEngine(t, rb, runners, &alwaysRetryThenAbort{}, Config{MaxRetries: 2, DefaultTimeout: 5 * time.Second})
	run, err := e.Start(context.Background(), variables.ResolvedVariables{})
	require.NoError(t, err)
	assert.Equal(t, rbtypes.RunOK, run.Status)
	assert.Equal(t, 2, flaky.calls)
}

// alwaysRetryThenAbort always offers retry while allowed, else aborts —
// used to drive the retry loop deterministically in tests.
type alwaysRetryThenAbort struct{}

func (alwaysRetryThenAbort) Decide(_ context.Context, fc interact.FailureContext) (interact.Choice, error) {
	if fc.AllowRetry {
		return interact.ChoiceRetry, nil
	}
	return interact.ChoiceAbort, nil
}
func (alwaysRetryThenAbort) AskManual(_ context.Context, _, _, _ string) (bool, string, error) {
	return true, "", nil
}

func TestEngine_NonCriticalSkipAfterExhaustedRetries(t *testing.T) {
	rb := &rbtypes.Runbook{Nodes: []rbtypes.NodeDescriptor{
		{ID: "a", Kind: rbtypes.KindCommand, Command: rbtypes.CommandPayload{Command: "always fails"}},
		{ID: "b", Kind: rbtypes.KindCommand, Command: rbtypes.CommandPayload{Command: "echo b"}, Depends: rbtypes.DependsExpr{Tokens: []string{"a"}}},
	}}
	// "a" fails on its only attempt; "b", run second, succeeds.
	script := &scriptedRunner{outcomes: []runner.Outcome{
		{Status: runner.NOK, Exception: "boom"},
		{Status: runner.OK, ResultText: "ok"},
	}}
	runners := map[rbtypes.NodeKind]runner.Runner{rbtypes.KindCommand: script}
	e, _ := newTestEngine(t, rb, runners, interact.NonInteractive{}, Config{MaxRetries: 0, DefaultTimeout: 5 * time.Second})

	run, err := e.Start(context.Background(), variables.ResolvedVariables{})
	require.NoError(t, err)
	assert.Equal(t, rbtypes.RunOK, run.Status)
	assert.Equal(t, 1, run.NodesSkipped)
}

func TestEngine_CriticalFailureFailsRun(t *testing.T) {
	rb := &rbtypes.Runbook{Nodes: []rbtypes.NodeDescriptor{
		{ID: "a", Kind: rbtypes.KindCommand, Critical: true, Command: rbtypes.CommandPayload{Command: "always fails"}},
	}}
	runners := map[rbtypes.NodeKind]runner.Runner{rbtypes.KindCommand: nokRunner()}
	e, _ := newTestEngine(t, rb, runners, interact.NonInteractive{}, Config{MaxRetries: 0, DefaultTimeout: 5 * time.Second})

	run, err := e.Start(context.Background(), variables.ResolvedVariables{})
	require.NoError(t, err)
	assert.Equal(t, rbtypes.RunNOK, run.Status)
	assert.Equal(t, 1, run.NodesNOK)
}

func TestEngine_ConditionalBranchingPrunesFailureEdge(t *testing.T) {
	rb := &rbtypes.Runbook{Nodes: []rbtypes.NodeDescriptor{
		{ID: "a", Kind: rbtypes.KindCommand, Command: rbtypes.CommandPayload{Command: "ok"}},
		{ID: "on_fail", Kind: rbtypes.KindCommand, Command: rbtypes.CommandPayload{Command: "cleanup"},
			Depends: rbtypes.DependsExpr{Tokens: []string{"a:failure"}}},
		{ID: "on_ok", Kind: rbtypes.KindCommand, Command: rbtypes.CommandPayload{Command: "next"},
			Depends: rbtypes.DependsExpr{Tokens: []string{"a:success"}}},
	}}
	runners := map[rbtypes.NodeKind]runner.Runner{rbtypes.KindCommand: okRunner()}
	e, _ := newTestEngine(t, rb, runners, interact.NonInteractive{}, Config{MaxRetries: 0, DefaultTimeout: 5 * time.Second})

	run, err := e.Start(context.Background(), variables.ResolvedVariables{})
	require.NoError(t, err)
	assert.Equal(t, rbtypes.RunOK, run.Status)
	assert.Equal(t, 2, run.NodesOK) // a, on_ok
	assert.Equal(t, statusPruned, e.nodeState["on_fail"])
}

func TestEngine_ResumeRejectsNonAbortedRun(t *testing.T) {
	rb := linearRunbook()
	runners := map[rbtypes.NodeKind]runner.Runner{rbtypes.KindCommand: okRunner()}
	e, _ := newTestEngine(t, rb, runners, interact.NonInteractive{}, Config{MaxRetries: 0, DefaultTimeout: 5 * time.Second})

	run, err := e.Start(context.Background(), variables.ResolvedVariables{})
	require.NoError(t, err)
	require.Equal(t, rbtypes.RunOK, run.Status)

	_, err = e.Resume(context.Background(), run.RunID, nil)
	require.Error(t, err)
}

func TestEngine_ResumeContinuesAfterAbort(t *testing.T) {
	rb := &rbtypes.Runbook{Nodes: []rbtypes.NodeDescriptor{
		{ID: "a", Kind: rbtypes.KindCommand, Command: rbtypes.CommandPayload{Command: "fails once"}},
		{ID: "b", Kind: rbtypes.KindCommand, Command: rbtypes.CommandPayload{Command: "echo b"}, Depends: rbtypes.DependsExpr{Tokens: []string{"a"}}},
	}}
	flaky := &scriptedRunner{outcomes: []runner.Outcome{{Status: runner.NOK, Exception: "fails once"}}}
	runners := map[rbtypes.NodeKind]runner.Runner{rbtypes.KindCommand: flaky}
	// With no retries left the operator aborts, leaving the run ABORTED.
	e, st := newTestEngine(t, rb, runners, &alwaysRetryThenAbort{}, Config{MaxRetries: 0, DefaultTimeout: 5 * time.Second})

	run, err := e.Start(context.Background(), variables.ResolvedVariables{})
	require.NoError(t, err)
	require.Equal(t, rbtypes.RunAborted, run.Status)

	// node "a" now succeeds on resume.
	flaky.outcomes = []runner.Outcome{{Status: runner.OK, ResultText: "ok this time"}}
	flaky.calls = 0

	e2, err := New(rb, "demo", st, runners, interact.NonInteractive{}, Config{MaxRetries: 0, DefaultTimeout: 5 * time.Second}, xlog.Discard())
	require.NoError(t, err)
	resumed, err := e2.Resume(context.Background(), run.RunID, nil)
	require.NoError(t, err)
	assert.Equal(t, rbtypes.RunOK, resumed.Status)
	assert.Equal(t, 2, resumed.NodesOK)
}

func TestEngine_ResolvedVariableRendersIntoCommand(t *testing.T) {
	var captured runner.Params
	capture := &capturingRunner{outcome: runner.Outcome{Status: runner.OK}, captured: &captured}
	rb := &rbtypes.Runbook{Nodes: []rbtypes.NodeDescriptor{
		{ID: "a", Kind: rbtypes.KindCommand, Command: rbtypes.CommandPayload{Command: "deploy --env={{.ENV}}"}},
	}}
	runners := map[rbtypes.NodeKind]runner.Runner{rbtypes.KindCommand: capture}
	e, _ := newTestEngine(t, rb, runners, interact.NonInteractive{}, Config{MaxRetries: 0, DefaultTimeout: 5 * time.Second})

	_, err := e.Start(context.Background(), variables.ResolvedVariables{"ENV": "staging"})
	require.NoError(t, err)
	assert.Equal(t, "deploy --env=staging", captured.Command)
}

type capturingRunner struct {
	outcome  runner.Outcome
	captured *runner.Params
}

func (r *capturingRunner) Run(_ context.Context, p runner.Params) runner.Outcome {
	*r.captured = p
	return r.outcome
}
