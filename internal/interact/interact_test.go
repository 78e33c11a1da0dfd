package interact

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNonInteractive_SkipsWhenAllowed(t *testing.T) {
	c, err := NonInteractive{}.Decide(context.Background(), FailureContext{AllowSkip: true})
	require.NoError(t, err)
	assert.Equal(t, ChoiceSkip, c)
}

func TestNonInteractive_AbortsWhenSkipNotAllowed(t *testing.T) {
	c, err := NonInteractive{}.Decide(context.Background(), FailureContext{AllowSkip: false})
	require.NoError(t, err)
	assert.Equal(t, ChoiceAbort, c)
}

func TestNonInteractive_ManualAlwaysErrors(t *testing.T) {
	_, _, err := NonInteractive{}.AskManual(context.Background(), "n1", "d", "")
	require.Error(t, err)
}

func TestTerminal_Decide(t *testing.T) {
	in := strings.NewReader("retry\n")
	var out bytes.Buffer
	term := NewTerminal(in, &out)
	c, err := term.Decide(context.Background(), FailureContext{NodeID: "n1", AllowRetry: true, AllowSkip: true})
	require.NoError(t, err)
	assert.Equal(t, ChoiceRetry, c)
	assert.Contains(t, out.String(), "n1")
}

func TestTerminal_DecideRejectsUnlistedChoice(t *testing.T) {
	in := strings.NewReader("retry\n")
	var out bytes.Buffer
	term := NewTerminal(in, &out)
	_, err := term.Decide(context.Background(), FailureContext{NodeID: "n1", AllowRetry: false, AllowSkip: false})
	require.Error(t, err)
}

func TestTerminal_AskManual(t *testing.T) {
	in := strings.NewReader("ok looks fine\n")
	var out bytes.Buffer
	term := NewTerminal(in, &out)
	ok, note, err := term.AskManual(context.Background(), "approve", "check dashboard", "")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "looks fine", note)
}

func TestToOperatorDecision(t *testing.T) {
	assert.Equal(t, "retry", string(ToOperatorDecision(ChoiceRetry)))
	assert.Equal(t, "skip", string(ToOperatorDecision(ChoiceSkip)))
	assert.Equal(t, "abort", string(ToOperatorDecision(ChoiceAbort)))
}
