// Package rbtypes holds the data model shared by every core component:
// the Runbook description loaded by the (external) parser, and the
// Run/NodeExecution rows persisted by the Store.
package rbtypes

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"
)

// NodeKind identifies which Runner variant handles a NodeDescriptor.
type NodeKind string

const (
	KindManual  NodeKind = "manual"
	KindCommand NodeKind = "command"
	KindFunc    NodeKind = "function"
)

// Condition qualifies a dependency edge: which terminal status of the
// upstream node satisfies this edge.
type Condition string

const (
	ConditionAny     Condition = ""        // OK or SKIPPED satisfy
	ConditionSuccess Condition = "success" // only OK satisfies
	ConditionFailure Condition = "failure" // only NOK satisfies
)

// DependsOn is one resolved dependency edge: an upstream node id plus its
// condition qualifier. Produced by the Planner's DAG expansion (spec.md
// §4.4), never by the parser directly.
type DependsOn struct {
	NodeID    string
	Condition Condition
}

// DependsExpr is a node's dependency expression exactly as the (external)
// parser recorded it, before the Planner expands it into concrete edges.
// Tokens holds each raw entry of the expression unparsed: "^", "*", a bare
// node id, or "node_id:success"/"node_id:failure". Omitted distinguishes a
// field the author left out entirely (edge to the previous declared node,
// or none for the first node) from an explicit empty list, which the
// Planner expands to no edges at all.
type DependsExpr struct {
	Omitted bool
	Tokens  []string
}

// ManualPayload is the kind-specific payload for a Manual node.
type ManualPayload struct {
	Description string
	PromptAfter string
}

// CommandPayload is the kind-specific payload for a Command node.
type CommandPayload struct {
	Command     string
	Interactive bool
}

// FunctionPayload is the kind-specific payload for a Function node.
type FunctionPayload struct {
	Plugin       string
	Function     string
	Params       map[string]string // raw, pre-template, pre-coercion
	PluginConfig map[string]any
}

// NodeDescriptor is one node in the runbook, as handed to the core by
// the (external) parser.
type NodeDescriptor struct {
	ID          string
	Kind        NodeKind
	Depends     DependsExpr
	Critical    bool
	SkipRequest bool
	TimeoutSecs int
	When        string // template; falsy render => SKIPPED
	Description string

	Manual   ManualPayload
	Command  CommandPayload
	Function FunctionPayload
}

// VarType is the declared type of a VariableSpec.
type VarType string

const (
	VarString VarType = "string"
	VarInt    VarType = "int"
	VarFloat  VarType = "float"
	VarBool   VarType = "bool"
	VarList   VarType = "list"
	VarDict   VarType = "dict"
)

// VariableSpec declares one runbook variable.
type VariableSpec struct {
	Name        string
	Default     any
	Required    bool
	Choices     []string
	Type        VarType
	Min         *float64
	Max         *float64
	Description string
	Sensitive   bool // supplemental to spec.md, see SPEC_FULL §10.1; no log handler reads it
}

// Runbook is the immutable, fully-loaded workflow description.
type Runbook struct {
	Title       string
	Description string
	Version     string
	Author      string
	CreatedAt   time.Time

	Nodes     []NodeDescriptor
	Variables []VariableSpec

	// PluginConfig holds runbook.plugin_config.<plugin_name> tables.
	PluginConfig map[string]map[string]any
}

// NodeByID returns the descriptor for id, or false if absent.
func (r *Runbook) NodeByID(id string) (NodeDescriptor, bool) {
	for _, n := range r.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return NodeDescriptor{}, false
}

// Digest is a stable hash of the runbook's structural content, used by
// Engine.Resume to detect whether the source file changed since the run
// that is being resumed was created.
func (r *Runbook) Digest() string {
	h := sha256.New()
	fmt.Fprintf(h, "title=%s\nversion=%s\n", r.Title, r.Version)
	for _, n := range r.Nodes {
		deps := append([]string(nil), n.Depends.Tokens...)
		sort.Strings(deps)
		fmt.Fprintf(h, "node=%s kind=%s critical=%t skip=%t when=%s omitted=%t deps=%v cmd=%s fn=%s/%s\n",
			n.ID, n.Kind, n.Critical, n.SkipRequest, n.When, n.Depends.Omitted, deps,
			n.Command.Command, n.Function.Plugin, n.Function.Function)
	}
	for _, v := range r.Variables {
		fmt.Fprintf(h, "var=%s type=%s required=%t default=%v\n", v.Name, v.Type, v.Required, v.Default)
	}
	return hex.EncodeToString(h.Sum(nil))
}
