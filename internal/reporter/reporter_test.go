package reporter

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/runbookhq/runbookengine/internal/rbtypes"
)

func TestBuild(t *testing.T) {
	start := time.Now()
	end := start.Add(5 * time.Second)
	run := &rbtypes.Run{
		WorkflowName: "deploy", RunID: 3, Status: rbtypes.RunOK,
		NodesOK: 2, NodesNOK: 0, NodesSkipped: 1,
		StartTime: start, EndTime: &end,
	}
	s := Build(run)
	assert.Equal(t, "deploy", s.WorkflowName)
	assert.Equal(t, int64(3), s.RunID)
	assert.Equal(t, 5*time.Second, s.Duration)
}

func TestPrint_ContainsWorkflowAndCounters(t *testing.T) {
	var buf bytes.Buffer
	Print(&buf, Summary{WorkflowName: "deploy", RunID: 1, Status: rbtypes.RunOK, NodesOK: 2, NodesNOK: 0, NodesSkipped: 1})
	out := buf.String()
	assert.Contains(t, out, "deploy")
	assert.Contains(t, out, "ok=2")
	assert.Contains(t, out, "nok=0")
	assert.Contains(t, out, "skipped=1")
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(rbtypes.RunOK))
	assert.Equal(t, 1, ExitCode(rbtypes.RunNOK))
	assert.Equal(t, 2, ExitCode(rbtypes.RunAborted))
}
