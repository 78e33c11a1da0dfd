// Package reporter renders a one-line run summary, analogous to the
// teacher's reporter.ReportSummary but returning a plain struct so tests
// can assert on it without capturing stdout (SPEC_FULL §12).
package reporter

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/runbookhq/runbookengine/internal/rbtypes"
)

// Summary is the terminal view of one finished Run.
type Summary struct {
	WorkflowName string
	RunID        int64
	Status       rbtypes.RunStatus
	NodesOK      int
	NodesNOK     int
	NodesSkipped int
	Duration     time.Duration
}

// Build derives a Summary from a finished Run.
func Build(run *rbtypes.Run) Summary {
	s := Summary{
		WorkflowName: run.WorkflowName,
		RunID:        run.RunID,
		Status:       run.Status,
		NodesOK:      run.NodesOK,
		NodesNOK:     run.NodesNOK,
		NodesSkipped: run.NodesSkipped,
	}
	if run.EndTime != nil {
		s.Duration = run.EndTime.Sub(run.StartTime)
	}
	return s
}

// Print writes one colorized line to w, the only use of fatih/color in
// this codebase (spec.md's CLI/progress-rendering Non-goal excludes
// anything richer, per SPEC_FULL §10.5).
func Print(w io.Writer, s Summary) {
	var paint func(format string, a ...any) string
	switch s.Status {
	case rbtypes.RunOK:
		paint = color.New(color.FgGreen).SprintfFunc()
	case rbtypes.RunNOK:
		paint = color.New(color.FgRed).SprintfFunc()
	case rbtypes.RunAborted:
		paint = color.New(color.FgYellow).SprintfFunc()
	default:
		paint = fmt.Sprintf
	}

	fmt.Fprintln(w, paint("%s #%d %s  ok=%d nok=%d skipped=%d  %s",
		s.WorkflowName, s.RunID, s.Status, s.NodesOK, s.NodesNOK, s.NodesSkipped, s.Duration.Round(time.Millisecond)))
}

// ExitCode maps a finished Run's status to the convention in spec.md §6.
func ExitCode(status rbtypes.RunStatus) int {
	switch status {
	case rbtypes.RunOK:
		return 0
	case rbtypes.RunNOK:
		return 1
	case rbtypes.RunAborted:
		return 2
	default:
		return 1
	}
}
