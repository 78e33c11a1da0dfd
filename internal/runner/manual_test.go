package runner

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAsker struct {
	ok   bool
	note string
	err  error
}

func (f fakeAsker) AskManual(_ context.Context, _, _, _ string) (bool, string, error) {
	return f.ok, f.note, f.err
}

func TestManualRunner_OK(t *testing.T) {
	r := NewManualRunner(fakeAsker{ok: true, note: "looks good"})
	out := r.Run(context.Background(), Params{NodeID: "approve"})
	require.Equal(t, OK, out.Status)
	assert.Equal(t, "looks good", out.ResultText)
}

func TestManualRunner_NOK(t *testing.T) {
	r := NewManualRunner(fakeAsker{ok: false, note: "blocked"})
	out := r.Run(context.Background(), Params{NodeID: "approve"})
	require.Equal(t, NOK, out.Status)
	assert.Equal(t, "blocked", out.ResultText)
}

func TestManualRunner_AskerError(t *testing.T) {
	r := NewManualRunner(fakeAsker{err: errors.New("stdin closed")})
	out := r.Run(context.Background(), Params{NodeID: "approve"})
	require.Equal(t, NOK, out.Status)
	assert.Contains(t, out.Exception, "stdin closed")
}
