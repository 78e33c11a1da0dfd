// Package rberrors implements the error taxonomy from spec.md §7 as typed
// structs, one per subsystem, each carrying a stable Code consumed by the
// CLI for exit-code mapping (spec.md §6) and by logs for triage, following
// the teacher's one-error-type-per-subsystem convention (internal/agent/errors.go).
package rberrors

import "fmt"

// Code is a stable, user-facing error identifier.
type Code string

const (
	CodeParse              Code = "parse_error"
	CodeUnknownNode        Code = "unknown_node"
	CodeCycle              Code = "cycle"
	CodeCriticalAndSkip    Code = "critical_and_skip"
	CodeMissingField       Code = "missing_field"
	CodeMissingRequired    Code = "missing_required"
	CodeBadChoice          Code = "bad_choice"
	CodeCoercionFailed     Code = "coercion_failed"
	CodeOutOfRange         Code = "out_of_range"
	CodeTemplate           Code = "template_error"
	CodeStore              Code = "store_error"
	CodeTimeout            Code = "timeout"
	CodeProcessFailed      Code = "process_failed"
	CodePluginFailed       Code = "plugin_failed"
	CodeCancelled          Code = "cancelled"
	CodeManualTimeout      Code = "manual_timeout"
	CodeNotResumableOK     Code = "not_resumable_ok"
	CodeNotResumableNOK    Code = "not_resumable_nok"
	CodeNotResumableRun    Code = "not_resumable_running"
	CodeRunbookChanged     Code = "runbook_changed"
)

// ParseError wraps a failure from the external surface parser.
type ParseError struct {
	Context string
	Cause   error
}

func (e *ParseError) Error() string { return fmt.Sprintf("parse error: %s: %v", e.Context, e.Cause) }
func (e *ParseError) Unwrap() error { return e.Cause }
func (e *ParseError) Code() Code    { return CodeParse }

// PlanError reports a validation failure from the Planner (spec.md §4.4).
type PlanError struct {
	Kind    Code // CodeUnknownNode | CodeCycle | CodeCriticalAndSkip | CodeMissingField
	NodeID  string
	Path    []string // cycle path, when Kind == CodeCycle
	Field   string   // missing field name, when Kind == CodeMissingField
	Message string
}

func (e *PlanError) Error() string {
	switch e.Kind {
	case CodeCycle:
		return fmt.Sprintf("plan error: cycle detected: %v", e.Path)
	case CodeUnknownNode:
		return fmt.Sprintf("plan error: node %q references unknown node %q", e.NodeID, e.Message)
	case CodeCriticalAndSkip:
		return fmt.Sprintf("plan error: node %q is both critical and skip-requested", e.NodeID)
	case CodeMissingField:
		return fmt.Sprintf("plan error: node %q missing required field %q", e.NodeID, e.Field)
	default:
		return fmt.Sprintf("plan error: %s", e.Message)
	}
}
func (e *PlanError) Code() Code { return e.Kind }

// VariableError reports a failure from the VariableResolver (spec.md §4.2).
type VariableError struct {
	Kind     Code // CodeMissingRequired | CodeBadChoice | CodeCoercionFailed | CodeOutOfRange
	Variable string
	Message  string
}

func (e *VariableError) Error() string {
	return fmt.Sprintf("variable error (%s): %s: %s", e.Kind, e.Variable, e.Message)
}
func (e *VariableError) Code() Code { return e.Kind }

// TemplateError wraps a render failure, naming the field path that failed.
type TemplateError struct {
	FieldPath string
	Cause     error
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("template error at %s: %v", e.FieldPath, e.Cause)
}
func (e *TemplateError) Unwrap() error { return e.Cause }
func (e *TemplateError) Code() Code    { return CodeTemplate }

// StoreError wraps any I/O failure from the Store. The Engine treats any
// StoreError during a live run as fatal (spec.md §4.1).
type StoreError struct {
	Op    string
	Cause error
}

func (e *StoreError) Error() string { return fmt.Sprintf("store error during %s: %v", e.Op, e.Cause) }
func (e *StoreError) Unwrap() error { return e.Cause }
func (e *StoreError) Code() Code    { return CodeStore }

// RunnerError reports a node attempt's runner-level failure. Per spec.md
// §7, these never propagate to the dispatch loop — they are captured and
// become a terminal NOK outcome on the attempt.
type RunnerError struct {
	Kind    Code // CodeTimeout | CodeProcessFailed | CodePluginFailed | CodeCancelled | CodeManualTimeout
	Message string
}

func (e *RunnerError) Error() string { return fmt.Sprintf("runner error (%s): %s", e.Kind, e.Message) }
func (e *RunnerError) Code() Code    { return e.Kind }

// StateError reports an Engine-level state transition rejected by the
// invariants in spec.md §3/§4.6.3 (resume rules).
type StateError struct {
	Kind    Code // CodeNotResumableOK | CodeNotResumableNOK | CodeNotResumableRun | CodeRunbookChanged
	Message string
}

func (e *StateError) Error() string { return fmt.Sprintf("state error (%s): %s", e.Kind, e.Message) }
func (e *StateError) Code() Code    { return e.Kind }
