package runner

import (
	"bytes"
	"context"
	"io"
	"os"
	"time"

	"github.com/runbookhq/runbookengine/internal/rberrors"
)

// CommandRunner executes a Command node via a ProcessRunner (spec.md §4.5).
type CommandRunner struct {
	Process ProcessRunner
	// GracePeriod bounds how long Exec is given to unwind cooperatively
	// after the node's timeout elapses before the outcome is forced to
	// exception="timeout" regardless of whether Exec has returned.
	GracePeriod time.Duration
}

func NewCommandRunner(p ProcessRunner) *CommandRunner {
	return &CommandRunner{Process: p, GracePeriod: 5 * time.Second}
}

func (r *CommandRunner) Run(ctx context.Context, p Params) Outcome {
	runCtx, cancel := WithTimeout(ctx, p)
	defer cancel()

	var stdout, stderr io.Writer
	var outBuf, errBuf bytes.Buffer
	if p.Interactive {
		// tty passthrough: live line-by-line capture is not available,
		// so stdout/stderr go straight to the terminal and ResultText
		// is populated from a final, empty capture (spec.md §4.5).
		stdout, stderr = os.Stdout, os.Stderr
	} else {
		stdout = io.MultiWriter(&outBuf)
		stderr = io.MultiWriter(&errBuf)
	}

	type result struct {
		exitCode int
		err      error
	}
	done := make(chan result, 1)
	go func() {
		code, err := r.Process.Exec(runCtx, p.Command, p.Env, stdout, stderr)
		done <- result{code, err}
	}()

	var res result
	select {
	case res = <-done:
	case <-runCtx.Done():
		// Grace period: SIGTERM-equivalent already delivered via runCtx
		// cancellation; give Exec a window to unwind before this attempt
		// is forced to a timeout outcome regardless of its eventual return.
		select {
		case res = <-done:
		case <-time.After(r.GracePeriod):
			// Exec is still writing to outBuf/errBuf from its goroutine;
			// reading them here would race, so this outcome carries no
			// captured output.
			return Outcome{
				Status:    NOK,
				Exception: (&rberrors.RunnerError{Kind: rberrors.CodeTimeout, Message: "command timed out"}).Error(),
			}
		}
	}

	exitCode, err := res.exitCode, res.err
	if err != nil {
		if runCtx.Err() != nil {
			return Outcome{
				Status:    NOK,
				Exception: (&rberrors.RunnerError{Kind: rberrors.CodeTimeout, Message: "command timed out"}).Error(),
				Stdout:    outBuf.String(),
				Stderr:    errBuf.String(),
			}
		}
		return Outcome{
			Status:    NOK,
			Exception: (&rberrors.RunnerError{Kind: rberrors.CodeProcessFailed, Message: err.Error()}).Error(),
			Stdout:    outBuf.String(),
			Stderr:    errBuf.String(),
		}
	}

	status := OK
	if exitCode != 0 {
		status = NOK
	}
	code := exitCode
	out := Outcome{
		Status:     status,
		ExitCode:   &code,
		Stdout:     outBuf.String(),
		Stderr:     errBuf.String(),
		ResultText: outBuf.String(),
	}
	if status == NOK {
		out.Exception = (&rberrors.RunnerError{Kind: rberrors.CodeProcessFailed, Message: "non-zero exit"}).Error()
	}
	return out
}
