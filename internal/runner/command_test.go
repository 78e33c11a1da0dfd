package runner

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProcess struct {
	exitCode int
	err      error
	wroteOut string
	wroteErr string
}

func (f *fakeProcess) Exec(_ context.Context, _ string, _ map[string]string, stdout, stderr io.Writer) (int, error) {
	if f.wroteOut != "" {
		stdout.Write([]byte(f.wroteOut))
	}
	if f.wroteErr != "" {
		stderr.Write([]byte(f.wroteErr))
	}
	return f.exitCode, f.err
}

func TestCommandRunner_Success(t *testing.T) {
	r := NewCommandRunner(&fakeProcess{exitCode: 0, wroteOut: "hi\n"})
	out := r.Run(context.Background(), Params{Command: "echo hi"})
	require.Equal(t, OK, out.Status)
	assert.Equal(t, "hi\n", out.Stdout)
	assert.Equal(t, 0, *out.ExitCode)
}

func TestCommandRunner_NonZeroExit(t *testing.T) {
	r := NewCommandRunner(&fakeProcess{exitCode: 7})
	out := r.Run(context.Background(), Params{Command: "false"})
	require.Equal(t, NOK, out.Status)
	assert.Equal(t, 7, *out.ExitCode)
	assert.NotEmpty(t, out.Exception)
}

func TestCommandRunner_ProcessError(t *testing.T) {
	r := NewCommandRunner(&fakeProcess{exitCode: -1, err: errors.New("boom")})
	out := r.Run(context.Background(), Params{Command: "???"})
	require.Equal(t, NOK, out.Status)
	assert.Contains(t, out.Exception, "boom")
}

func TestCommandRunner_Timeout(t *testing.T) {
	blocking := &blockingProcess{}
	r := NewCommandRunner(blocking)
	out := r.Run(context.Background(), Params{Command: "sleep 10", TimeoutSecs: 1})
	require.Equal(t, NOK, out.Status)
	assert.Contains(t, out.Exception, "timeout")
}

type blockingProcess struct{}

func (blockingProcess) Exec(ctx context.Context, _ string, _ map[string]string, _, _ io.Writer) (int, error) {
	<-ctx.Done()
	return -1, ctx.Err()
}
