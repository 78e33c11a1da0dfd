// Package interact implements the Interactor port the Engine consults for
// the failure-resolution loop (spec.md §4.6.2) and for ManualRunner's
// operator prompt (spec.md §4.5). Grounded on the teacher's terminal
// prompt idiom (agent/agent.go's stdin-driven confirmation loop) adapted
// from a yes/no gate into a retry/skip/abort choice set.
package interact

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/runbookhq/runbookengine/internal/rbtypes"
)

// Choice is one of the options offered in the failure-resolution loop.
type Choice string

const (
	ChoiceRetry Choice = "retry"
	ChoiceSkip  Choice = "skip"
	ChoiceAbort Choice = "abort"
)

// FailureContext describes the failed attempt the operator is being asked
// to resolve, enough detail to render a useful prompt.
type FailureContext struct {
	NodeID      string
	Attempt     int
	MaxRetries  int
	Critical    bool
	Exception   string
	AllowRetry  bool
	AllowSkip   bool
}

// Interactor is the port the Engine's failure-resolution loop and
// ManualRunner consult for operator decisions (spec.md §4.6.2, §4.5).
type Interactor interface {
	// Decide offers fc's available choices (fc.AllowRetry/AllowSkip gate
	// which of retry/skip are valid; abort is always offered) and returns
	// the operator's pick.
	Decide(ctx context.Context, fc FailureContext) (Choice, error)
	// AskManual implements runner.ManualAsker for ManualRunner.
	AskManual(ctx context.Context, nodeID, description, promptAfter string) (ok bool, note string, err error)
}

// NonInteractive auto-decides without any operator present: per spec.md
// §4.6.2, when the choice set is empty (non-interactive mode) a
// non-critical node is force-skipped. A critical node cannot be skipped,
// so Decide aborts it while it still has retries left; once its retries
// are exhausted the Engine escalates to Run NOK without consulting Decide.
type NonInteractive struct{}

func (NonInteractive) Decide(_ context.Context, fc FailureContext) (Choice, error) {
	if fc.AllowSkip {
		return ChoiceSkip, nil
	}
	return ChoiceAbort, nil
}

func (NonInteractive) AskManual(_ context.Context, nodeID, _, _ string) (bool, string, error) {
	return false, "", fmt.Errorf("manual node %q requires an operator but the engine is running non-interactively", nodeID)
}

// Terminal is a bufio-driven Interactor reading operator decisions from a
// terminal, the default when EngineConfig.InteractiveMode is true.
type Terminal struct {
	In  io.Reader
	Out io.Writer
}

func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{In: in, Out: out}
}

func (t *Terminal) Decide(ctx context.Context, fc FailureContext) (Choice, error) {
	opts := []string{}
	if fc.AllowRetry {
		opts = append(opts, string(ChoiceRetry))
	}
	if fc.AllowSkip {
		opts = append(opts, string(ChoiceSkip))
	}
	opts = append(opts, string(ChoiceAbort))

	fmt.Fprintf(t.Out, "node %q failed (attempt %d): %s\nchoose [%s]: ", fc.NodeID, fc.Attempt, fc.Exception, strings.Join(opts, "/"))

	line, err := t.readLine(ctx)
	if err != nil {
		return "", err
	}
	choice := Choice(strings.ToLower(strings.TrimSpace(line)))
	for _, o := range opts {
		if string(choice) == o {
			return choice, nil
		}
	}
	return "", fmt.Errorf("unrecognized choice %q, expected one of %v", line, opts)
}

func (t *Terminal) AskManual(ctx context.Context, nodeID, description, promptAfter string) (bool, string, error) {
	fmt.Fprintf(t.Out, "manual step %q: %s\n", nodeID, description)
	if promptAfter != "" {
		fmt.Fprintln(t.Out, promptAfter)
	}
	fmt.Fprint(t.Out, "ok/nok, optional note: ")

	line, err := t.readLine(ctx)
	if err != nil {
		return false, "", err
	}
	fields := strings.SplitN(strings.TrimSpace(line), " ", 2)
	decision := strings.ToLower(fields[0])
	note := ""
	if len(fields) == 2 {
		note = fields[1]
	}
	switch decision {
	case "ok":
		return true, note, nil
	case "nok":
		return false, note, nil
	default:
		return false, "", fmt.Errorf("unrecognized manual decision %q, expected ok or nok", decision)
	}
}

func (t *Terminal) readLine(ctx context.Context) (string, error) {
	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		scanner := bufio.NewScanner(t.In)
		if scanner.Scan() {
			ch <- result{scanner.Text(), nil}
			return
		}
		ch <- result{"", scanner.Err()}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		return r.line, r.err
	}
}

// ToOperatorDecision maps a failure-resolution Choice onto the
// NodeExecution.OperatorDecision value persisted on the attempt row.
func ToOperatorDecision(c Choice) rbtypes.OperatorDecision {
	switch c {
	case ChoiceRetry:
		return rbtypes.DecisionRetry
	case ChoiceSkip:
		return rbtypes.DecisionSkip
	case ChoiceAbort:
		return rbtypes.DecisionAbort
	default:
		return rbtypes.DecisionNone
	}
}
