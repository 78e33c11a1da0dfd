// Package variables implements the VariableResolver and Templater
// described in spec.md §4.2-§4.3: merging variable sources by precedence,
// validating against declared VariableSpecs, and rendering templated
// fields against the resulting ResolvedVariables.
package variables

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"dario.cat/mergo"
	"golang.org/x/term"

	"github.com/runbookhq/runbookengine/internal/rbtypes"
	"github.com/runbookhq/runbookengine/internal/rberrors"
)

// ResolvedVariables is the frozen, typed mapping handed to the Templater
// and to every Runner invocation.
type ResolvedVariables map[string]any

// Clone returns a shallow copy, used by Engine.Resume to overlay caller
// overrides onto a Run's persisted snapshot without mutating it.
func (r ResolvedVariables) Clone() ResolvedVariables {
	out := make(ResolvedVariables, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Prompter asks the operator for a missing required variable. The default
// TerminalPrompter reads from stdin; tests supply a canned Prompter.
type Prompter interface {
	Prompt(ctx context.Context, spec rbtypes.VariableSpec) (string, error)
}

// TerminalPrompter reads one line from in, printing the spec's
// description (if any) to out first.
type TerminalPrompter struct {
	In  io.Reader
	Out io.Writer
}

func (p TerminalPrompter) Prompt(_ context.Context, spec rbtypes.VariableSpec) (string, error) {
	if p.Out != nil {
		prompt := spec.Name
		if spec.Description != "" {
			prompt = fmt.Sprintf("%s (%s)", spec.Name, spec.Description)
		}
		fmt.Fprintf(p.Out, "%s: ", prompt)
	}
	scanner := bufio.NewScanner(p.In)
	if !scanner.Scan() {
		return "", scanner.Err()
	}
	return strings.TrimSpace(scanner.Text()), nil
}

// Resolver computes the ResolvedVariables mapping for a Runbook.
type Resolver struct {
	Specs []rbtypes.VariableSpec

	// Overrides are explicit key/value pairs, e.g. from the CLI (highest precedence).
	Overrides map[string]string
	// VarsFile holds entries loaded from a variables file by the caller.
	VarsFile map[string]string
	// EnvPrefix scrapes process environment variables named
	// EnvPrefix+NAME into the NAME variable.
	EnvPrefix string
	// Interactive enables prompting for missing required variables.
	Interactive bool
	// Prompter is used when Interactive is true and the process is
	// attached to a terminal. Defaults to TerminalPrompter{os.Stdin, os.Stdout}.
	Prompter Prompter
}

// isTTY reports whether the process looks interactively attached; a
// standalone func so tests can stub it.
var isTTY = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) }

// Resolve merges the configured sources (spec.md §4.2) and returns the
// frozen, typed ResolvedVariables, or a *rberrors.VariableError.
func (r *Resolver) Resolve(ctx context.Context) (ResolvedVariables, error) {
	raw, err := r.mergedRawStrings()
	if err != nil {
		return nil, err
	}

	prompter := r.Prompter
	if prompter == nil {
		prompter = TerminalPrompter{In: os.Stdin, Out: os.Stdout}
	}

	out := make(ResolvedVariables, len(r.Specs))
	for _, spec := range r.Specs {
		val, present, err := r.resolveOne(ctx, spec, raw, prompter)
		if err != nil {
			return nil, err
		}
		if !present {
			continue
		}
		out[spec.Name] = val
	}
	return out, nil
}

// mergedRawStrings merges overrides, vars-file, and environment-scraped
// values (the three string-keyed sources) via mergo, highest precedence
// last so WithOverride lets it win.
func (r *Resolver) mergedRawStrings() (map[string]string, error) {
	merged := map[string]string{}
	env := r.scrapeEnv()

	for _, layer := range []map[string]string{env, r.VarsFile, r.Overrides} {
		if layer == nil {
			continue
		}
		if err := mergo.Merge(&merged, layer, mergo.WithOverride); err != nil {
			return nil, &rberrors.StoreError{Op: "merge_variables", Cause: err}
		}
	}
	return merged, nil
}

func (r *Resolver) scrapeEnv() map[string]string {
	out := map[string]string{}
	if r.EnvPrefix == "" {
		return out
	}
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(k, r.EnvPrefix) {
			continue
		}
		out[strings.TrimPrefix(k, r.EnvPrefix)] = v
	}
	return out
}

func (r *Resolver) resolveOne(ctx context.Context, spec rbtypes.VariableSpec, raw map[string]string, prompter Prompter) (any, bool, error) {
	if s, ok := raw[spec.Name]; ok {
		return r.coerceAndValidate(spec, s)
	}

	if spec.Required && r.Interactive && isTTY() {
		s, err := prompter.Prompt(ctx, spec)
		if err != nil {
			return nil, false, err
		}
		if s != "" {
			return r.coerceAndValidate(spec, s)
		}
	}

	if spec.Default != nil {
		return r.validateTyped(spec, spec.Default)
	}

	if spec.Required {
		return nil, false, &rberrors.VariableError{
			Kind:     rberrors.CodeMissingRequired,
			Variable: spec.Name,
			Message:  "no value supplied and no default declared",
		}
	}
	return nil, false, nil
}

func (r *Resolver) coerceAndValidate(spec rbtypes.VariableSpec, s string) (any, bool, error) {
	val, err := Coerce(s, spec.Type)
	if err != nil {
		return nil, false, &rberrors.VariableError{
			Kind:     rberrors.CodeCoercionFailed,
			Variable: spec.Name,
			Message:  err.Error(),
		}
	}
	return r.validateTyped(spec, val)
}

func (r *Resolver) validateTyped(spec rbtypes.VariableSpec, val any) (any, bool, error) {
	if len(spec.Choices) > 0 {
		match := false
		for _, c := range spec.Choices {
			if fmt.Sprintf("%v", val) == c {
				match = true
				break
			}
		}
		if !match {
			return nil, false, &rberrors.VariableError{
				Kind:     rberrors.CodeBadChoice,
				Variable: spec.Name,
				Message:  fmt.Sprintf("%v is not one of %v", val, spec.Choices),
			}
		}
	}
	if spec.Min != nil || spec.Max != nil {
		n, ok := toFloat(val)
		if ok {
			if spec.Min != nil && n < *spec.Min {
				return nil, false, &rberrors.VariableError{Kind: rberrors.CodeOutOfRange, Variable: spec.Name, Message: fmt.Sprintf("%v < min %v", val, *spec.Min)}
			}
			if spec.Max != nil && n > *spec.Max {
				return nil, false, &rberrors.VariableError{Kind: rberrors.CodeOutOfRange, Variable: spec.Name, Message: fmt.Sprintf("%v > max %v", val, *spec.Max)}
			}
		}
	}
	return val, true, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
