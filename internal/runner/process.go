package runner

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// ProcessRunner is the port CommandRunner delegates to for actually
// executing a shell command (spec.md §1 "shell subprocess primitives are
// abstracted via a ProcessRunner port"). Parameterizing on this interface
// is what lets tests run CommandRunner without a real shell.
type ProcessRunner interface {
	// Exec runs command with env added to its environment, streaming to stdout/stderr as it
	// runs (for live display) while the caller also captures the full
	// text via those same writers. Exec honors ctx: on cancellation it
	// terminates the command and returns ctx.Err().
	Exec(ctx context.Context, command string, env map[string]string, stdout, stderr io.Writer) (exitCode int, err error)
}

// ShInterpRunner is the default ProcessRunner, built on mvdan.cc/sh/v3's
// pure-Go POSIX shell interpreter rather than forking /bin/sh: it keeps
// command execution portable and lets ctx cancellation kill in-flight
// builtins and subprocesses without relying on process-group signaling.
type ShInterpRunner struct{}

func (ShInterpRunner) Exec(ctx context.Context, command string, env map[string]string, stdout, stderr io.Writer) (int, error) {
	file, err := syntax.NewParser().Parse(bytes.NewReader([]byte(command)), "")
	if err != nil {
		return -1, err
	}

	environ := os.Environ()
	for k, v := range env {
		environ = append(environ, k+"="+v)
	}

	runner, err := interp.New(
		interp.StdIO(nil, stdout, stderr),
		interp.Env(expand.ListEnviron(environ...)),
	)
	if err != nil {
		return -1, err
	}

	runErr := runner.Run(ctx, file)
	if runErr == nil {
		return 0, nil
	}

	var status interp.ExitStatus
	if errors.As(runErr, &status) {
		return int(status), nil
	}
	if ctx.Err() != nil {
		return -1, ctx.Err()
	}
	return -1, runErr
}
