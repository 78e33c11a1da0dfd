package variables

import (
	"strings"
	"text/template"

	sprig "github.com/go-task/slim-sprig/v3"

	"github.com/runbookhq/runbookengine/internal/rberrors"
)

// NodeStatusLookup lets a rendered template consult the live state of
// other nodes in the run, via the two runtime predicates required by
// spec.md §4.3. Implemented by the Engine at call time; declared
// here to avoid an import cycle.
type NodeStatusLookup interface {
	HasSucceeded(nodeID string) bool
	HasFailed(nodeID string) bool
}

type noopLookup struct{}

func (noopLookup) HasSucceeded(string) bool { return false }
func (noopLookup) HasFailed(string) bool    { return false }

// Templater renders templated runbook fields against ResolvedVariables
// and, when supplied, a NodeStatusLookup for has_succeeded/has_failed.
//
// Delimiter convention follows the teacher's tested syntax
// (`{{.NAME}}`, `{{.NAME | upper}}`, `{{if .NAME}}...{{end}}`,
// `{{range .ITEMS}}...{{end}}`) built on text/template, rather than bare
// Jinja-style `{{NAME}}` delimiters — spec.md §9 allows any library
// providing equivalent semantics (substitution, defaults, filters,
// conditionals, loops, the two runtime predicates).
type Templater struct {
	Vars   ResolvedVariables
	Lookup NodeStatusLookup
}

// Render renders tmplText against t.Vars, t.Lookup, wrapping failures as
// *rberrors.TemplateError naming fieldPath.
func (t *Templater) Render(fieldPath, tmplText string) (string, error) {
	if tmplText == "" {
		return "", nil
	}
	lookup := t.Lookup
	if lookup == nil {
		lookup = noopLookup{}
	}

	funcs := sprig.TxtFuncMap()
	funcs["has_succeeded"] = lookup.HasSucceeded
	funcs["has_failed"] = lookup.HasFailed

	tmpl, err := template.New(fieldPath).Option("missingkey=zero").Funcs(funcs).Parse(tmplText)
	if err != nil {
		return "", &rberrors.TemplateError{FieldPath: fieldPath, Cause: err}
	}

	var sb strings.Builder
	data := map[string]any(t.Vars)
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", &rberrors.TemplateError{FieldPath: fieldPath, Cause: err}
	}
	return sb.String(), nil
}

// RenderedFalsy returns true when rendered is one of the falsy literals
// spec.md §4.6.1 step 2 names for `when` gating.
func RenderedFalsy(rendered string) bool {
	switch strings.TrimSpace(rendered) {
	case "false", "0", "no", "":
		return true
	default:
		return false
	}
}
