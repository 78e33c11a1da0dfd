// Package plan implements the Planner (spec.md §4.4): DAG expansion of
// each node's raw dependency expression into concrete edges, validation,
// and stable topological layering. Grounded on the teacher's tested
// digraph construction (internal/digraph/builder_test.go) with cycle
// detection hand-rolled from Kahn's algorithm — see DESIGN.md for why no
// pack example supplies a graph library.
package plan

import (
	"fmt"
	"sort"
	"strings"

	"github.com/runbookhq/runbookengine/internal/rberrors"
	"github.com/runbookhq/runbookengine/internal/rbtypes"
)

// Edge is one expanded, validated dependency: Node depends on Upstream,
// satisfied only when Upstream finishes matching Condition.
type Edge struct {
	Node      string
	Upstream  string
	Condition rbtypes.Condition
}

// Plan is the Planner's output: the validated edge set plus a stable
// topological layering of the runbook's nodes.
type Plan struct {
	Runbook *rbtypes.Runbook

	// Edges holds every expanded dependency, keyed by the downstream node.
	Edges map[string][]Edge
	// Dependents is the inverse of Edges: for each node, the nodes that
	// depend on it. The Engine's dispatch loop reads Edges (via DependsOn),
	// not this map.
	Dependents map[string][]string
	// Layers is the stable topological order: Layers[i] may run in
	// parallel once Layers[0..i-1] have all reached a terminal status.
	Layers [][]string
}

// DependsOn returns the expanded edges for nodeID, or nil.
func (p *Plan) DependsOn(nodeID string) []Edge { return p.Edges[nodeID] }

// Order flattens Layers into one stable topological order, the sequence
// the Engine's dispatch loop walks every tick.
func (p *Plan) Order() []string {
	var order []string
	for _, layer := range p.Layers {
		order = append(order, layer...)
	}
	return order
}

// Build validates rb and produces its Plan, or the first *rberrors.PlanError found.
func Build(rb *rbtypes.Runbook) (*Plan, error) {
	order := make(map[string]int, len(rb.Nodes))
	for i, n := range rb.Nodes {
		if _, dup := order[n.ID]; dup {
			return nil, &rberrors.PlanError{Kind: rberrors.CodeMissingField, NodeID: n.ID, Message: "duplicate node id"}
		}
		order[n.ID] = i
	}

	edges := make(map[string][]Edge, len(rb.Nodes))
	dependents := make(map[string][]string, len(rb.Nodes))

	for i, n := range rb.Nodes {
		if err := validateFields(n); err != nil {
			return nil, err
		}
		if n.Critical && n.SkipRequest {
			return nil, &rberrors.PlanError{Kind: rberrors.CodeCriticalAndSkip, NodeID: n.ID}
		}

		expanded, err := expand(n, i, rb.Nodes)
		if err != nil {
			return nil, err
		}
		for _, e := range expanded {
			if _, ok := order[e.Upstream]; !ok {
				return nil, &rberrors.PlanError{Kind: rberrors.CodeUnknownNode, NodeID: n.ID, Message: e.Upstream}
			}
			edges[n.ID] = append(edges[n.ID], e)
			dependents[e.Upstream] = append(dependents[e.Upstream], n.ID)
		}
	}

	layers, err := layer(rb.Nodes, edges)
	if err != nil {
		return nil, err
	}

	return &Plan{Runbook: rb, Edges: edges, Dependents: dependents, Layers: layers}, nil
}

// expand materializes node n's dependency expression (spec.md §4.4) using
// decl, its index in declaration order, and all, the full declared node list.
func expand(n rbtypes.NodeDescriptor, decl int, all []rbtypes.NodeDescriptor) ([]Edge, error) {
	switch {
	case n.Depends.Omitted:
		if decl == 0 {
			return nil, nil
		}
		return []Edge{{Node: n.ID, Upstream: all[decl-1].ID, Condition: rbtypes.ConditionAny}}, nil

	case len(n.Depends.Tokens) == 1 && n.Depends.Tokens[0] == "^":
		if decl == 0 {
			return nil, nil
		}
		return []Edge{{Node: n.ID, Upstream: all[decl-1].ID, Condition: rbtypes.ConditionAny}}, nil

	case len(n.Depends.Tokens) == 1 && n.Depends.Tokens[0] == "*":
		edges := make([]Edge, 0, decl)
		for i := 0; i < decl; i++ {
			edges = append(edges, Edge{Node: n.ID, Upstream: all[i].ID, Condition: rbtypes.ConditionAny})
		}
		return edges, nil

	default:
		edges := make([]Edge, 0, len(n.Depends.Tokens))
		for _, tok := range n.Depends.Tokens {
			id, cond := splitToken(tok)
			edges = append(edges, Edge{Node: n.ID, Upstream: id, Condition: cond})
		}
		return edges, nil
	}
}

func splitToken(tok string) (string, rbtypes.Condition) {
	if id, ok := strings.CutSuffix(tok, ":success"); ok {
		return id, rbtypes.ConditionSuccess
	}
	if id, ok := strings.CutSuffix(tok, ":failure"); ok {
		return id, rbtypes.ConditionFailure
	}
	return tok, rbtypes.ConditionAny
}

func validateFields(n rbtypes.NodeDescriptor) error {
	switch n.Kind {
	case rbtypes.KindCommand:
		if strings.TrimSpace(n.Command.Command) == "" {
			return &rberrors.PlanError{Kind: rberrors.CodeMissingField, NodeID: n.ID, Field: "command"}
		}
	case rbtypes.KindFunc:
		if n.Function.Plugin == "" {
			return &rberrors.PlanError{Kind: rberrors.CodeMissingField, NodeID: n.ID, Field: "plugin"}
		}
		if n.Function.Function == "" {
			return &rberrors.PlanError{Kind: rberrors.CodeMissingField, NodeID: n.ID, Field: "function"}
		}
	case rbtypes.KindManual:
		// description is optional; nothing required beyond the id/kind already checked.
	default:
		return &rberrors.PlanError{Kind: rberrors.CodeMissingField, NodeID: n.ID, Field: "kind", Message: fmt.Sprintf("unknown kind %q", n.Kind)}
	}
	return nil
}

// layer runs Kahn's algorithm over edges, breaking ties lexicographically
// on declaration order so the result is stable across runs (spec.md §4.4).
// A non-empty remainder after the loop means a cycle; its path is recovered
// by walking first-found remaining edges back to a repeated node.
func layer(nodes []rbtypes.NodeDescriptor, edges map[string][]Edge) ([][]string, error) {
	declOrder := make(map[string]int, len(nodes))
	indegree := make(map[string]int, len(nodes))
	for i, n := range nodes {
		declOrder[n.ID] = i
		indegree[n.ID] = 0
	}
	for node, es := range edges {
		indegree[node] = len(es)
	}

	remaining := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		remaining[n.ID] = true
	}

	var layers [][]string
	for len(remaining) > 0 {
		var ready []string
		for id := range remaining {
			if indegree[id] == 0 {
				ready = append(ready, id)
			}
		}
		if len(ready) == 0 {
			return nil, &rberrors.PlanError{Kind: rberrors.CodeCycle, Path: cyclePath(nodes, edges, remaining)}
		}
		sort.Slice(ready, func(i, j int) bool { return declOrder[ready[i]] < declOrder[ready[j]] })
		layers = append(layers, ready)

		for _, id := range ready {
			delete(remaining, id)
		}
		for node := range remaining {
			count := 0
			for _, e := range edges[node] {
				if remaining[e.Upstream] {
					count++
				}
			}
			indegree[node] = count
		}
	}
	return layers, nil
}

// cyclePath walks downstream->upstream edges starting from the
// lowest-declaration-order remaining node until a node repeats, giving a
// human-readable witness path for the PlanError.
func cyclePath(nodes []rbtypes.NodeDescriptor, edges map[string][]Edge, remaining map[string]bool) []string {
	var start string
	for _, n := range nodes {
		if remaining[n.ID] {
			start = n.ID
			break
		}
	}
	seen := map[string]bool{start: true}
	path := []string{start}
	cur := start
	for {
		es := edges[cur]
		var next string
		for _, e := range es {
			if remaining[e.Upstream] {
				next = e.Upstream
				break
			}
		}
		if next == "" {
			break
		}
		path = append(path, next)
		if seen[next] {
			break
		}
		seen[next] = true
		cur = next
	}
	return path
}
