package runner

import (
	"context"

	"github.com/runbookhq/runbookengine/internal/rberrors"
)

// ManualAsker presents a manual node's prompt to the operator and waits
// for an ok/nok decision plus an optional free-text note. Defined here,
// narrowly, so ManualRunner does not import internal/interact (which in
// turn depends on runner.Outcome's sibling types); the Engine wires a
// concrete interact.Interactor in through this interface.
type ManualAsker interface {
	AskManual(ctx context.Context, nodeID, description, promptAfter string) (ok bool, note string, err error)
}

// ManualRunner presents the node's description/prompt and waits for
// operator input (spec.md §4.5).
type ManualRunner struct {
	Asker ManualAsker
}

func NewManualRunner(a ManualAsker) *ManualRunner {
	return &ManualRunner{Asker: a}
}

func (r *ManualRunner) Run(ctx context.Context, p Params) Outcome {
	runCtx, cancel := WithTimeout(ctx, p)
	defer cancel()

	ok, note, err := r.Asker.AskManual(runCtx, p.NodeID, p.Description, p.PromptAfter)
	if err != nil {
		if runCtx.Err() != nil {
			return Outcome{
				Status:    NOK,
				Exception: (&rberrors.RunnerError{Kind: rberrors.CodeManualTimeout, Message: "manual step timed out"}).Error(),
			}
		}
		return Outcome{
			Status:    NOK,
			Exception: (&rberrors.RunnerError{Kind: rberrors.CodeProcessFailed, Message: err.Error()}).Error(),
		}
	}

	if ok {
		return Outcome{Status: OK, ResultText: note}
	}
	return Outcome{Status: NOK, ResultText: note, Exception: "operator marked nok"}
}
