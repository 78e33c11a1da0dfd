package engine

import (
	"fmt"

	"github.com/runbookhq/runbookengine/internal/rbtypes"
	"github.com/runbookhq/runbookengine/internal/runner"
	"github.com/runbookhq/runbookengine/internal/variables"
)

// renderParams templates every field of n that spec.md §4.3 marks
// templated, coerces Function parameters, and merges the run's resolved
// variables into the process environment (spec.md §4.5).
func (e *Engine) renderParams(n rbtypes.NodeDescriptor) (runner.Params, error) {
	t := e.templater()

	p := runner.Params{
		NodeID:      n.ID,
		TimeoutSecs: e.nodeTimeout(n),
		Interactive: n.Command.Interactive,
		Plugin:      n.Function.Plugin,
		Function:    n.Function.Function,
		Description: n.Manual.Description,
		PromptAfter: n.Manual.PromptAfter,
		PluginConfig: e.runbook.PluginConfig[n.Function.Plugin],
		Env:          envFromVars(e.vars),
	}

	switch n.Kind {
	case rbtypes.KindCommand:
		cmd, err := t.Render(fmt.Sprintf("nodes.%s.command", n.ID), n.Command.Command)
		if err != nil {
			return runner.Params{}, err
		}
		p.Command = cmd

	case rbtypes.KindManual:
		desc, err := t.Render(fmt.Sprintf("nodes.%s.description", n.ID), n.Manual.Description)
		if err != nil {
			return runner.Params{}, err
		}
		p.Description = desc

	case rbtypes.KindFunc:
		params := make(map[string]any, len(n.Function.Params))
		for key, raw := range n.Function.Params {
			rendered, err := t.Render(fmt.Sprintf("nodes.%s.params.%s", n.ID, key), raw)
			if err != nil {
				return runner.Params{}, err
			}
			params[key] = variables.InferAndCoerce(rendered)
		}
		p.FuncParams = params
	}

	return p, nil
}
