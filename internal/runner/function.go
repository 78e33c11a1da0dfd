package runner

import (
	"context"
	"fmt"

	"github.com/runbookhq/runbookengine/internal/rberrors"
)

// Plugin is one registered function provider. Execute must validate
// params against its own declared schema before doing any work (spec.md
// §4.5); a schema mismatch is reported as a plain error and wrapped by
// FunctionRunner into a RunnerError(plugin_failed).
type Plugin interface {
	Execute(ctx context.Context, function string, params map[string]any, config map[string]any) (resultText string, err error)
}

// PluginRegistry is the closed-enumeration port spec.md §9 substitutes
// for the source's dynamic function loading: no arbitrary code loading,
// only plugins registered ahead of time.
type PluginRegistry interface {
	Lookup(name string) (Plugin, bool)
}

// FunctionRunner invokes a Function node's plugin (spec.md §4.5).
type FunctionRunner struct {
	Registry PluginRegistry
}

func NewFunctionRunner(reg PluginRegistry) *FunctionRunner {
	return &FunctionRunner{Registry: reg}
}

func (r *FunctionRunner) Run(ctx context.Context, p Params) Outcome {
	runCtx, cancel := WithTimeout(ctx, p)
	defer cancel()

	plugin, ok := r.Registry.Lookup(p.Plugin)
	if !ok {
		return Outcome{
			Status:    NOK,
			Exception: (&rberrors.RunnerError{Kind: rberrors.CodePluginFailed, Message: fmt.Sprintf("unknown plugin %q", p.Plugin)}).Error(),
		}
	}

	resultCh := make(chan struct {
		text string
		err  error
	}, 1)
	go func() {
		text, err := plugin.Execute(runCtx, p.Function, p.FuncParams, p.PluginConfig)
		resultCh <- struct {
			text string
			err  error
		}{text, err}
	}()

	select {
	case <-runCtx.Done():
		return Outcome{
			Status:    NOK,
			Exception: (&rberrors.RunnerError{Kind: rberrors.CodeTimeout, Message: "function timed out"}).Error(),
		}
	case res := <-resultCh:
		if res.err != nil {
			return Outcome{
				Status:    NOK,
				Exception: (&rberrors.RunnerError{Kind: rberrors.CodePluginFailed, Message: res.err.Error()}).Error(),
			}
		}
		return Outcome{Status: OK, ResultText: res.text}
	}
}
