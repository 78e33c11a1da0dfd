package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runbookhq/runbookengine/internal/rberrors"
	"github.com/runbookhq/runbookengine/internal/rbtypes"
)

func node(id string, depends ...string) rbtypes.NodeDescriptor {
	n := rbtypes.NodeDescriptor{ID: id, Kind: rbtypes.KindManual}
	if depends == nil {
		n.Depends = rbtypes.DependsExpr{Omitted: true}
	} else {
		n.Depends = rbtypes.DependsExpr{Tokens: depends}
	}
	return n
}

func TestBuild_ImplicitChain(t *testing.T) {
	rb := &rbtypes.Runbook{Nodes: []rbtypes.NodeDescriptor{
		node("a"),
		node("b"),
		node("c"),
	}}
	p, err := Build(rb)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a"}, {"b"}, {"c"}}, p.Layers)
	assert.Equal(t, "a", p.DependsOn("b")[0].Upstream)
}

func TestBuild_Wildcard(t *testing.T) {
	rb := &rbtypes.Runbook{Nodes: []rbtypes.NodeDescriptor{
		node("a"),
		node("b"),
		node("c", "*"),
	}}
	p, err := Build(rb)
	require.NoError(t, err)
	deps := p.DependsOn("c")
	require.Len(t, deps, 2)
	assert.ElementsMatch(t, []string{"a", "b"}, []string{deps[0].Upstream, deps[1].Upstream})
}

func TestBuild_ConditionQualifiers(t *testing.T) {
	rb := &rbtypes.Runbook{Nodes: []rbtypes.NodeDescriptor{
		node("a"),
		node("cleanup", "a:failure"),
	}}
	p, err := Build(rb)
	require.NoError(t, err)
	deps := p.DependsOn("cleanup")
	require.Len(t, deps, 1)
	assert.Equal(t, rbtypes.ConditionFailure, deps[0].Condition)
}

func TestBuild_IndependentNodesShareALayer(t *testing.T) {
	rb := &rbtypes.Runbook{Nodes: []rbtypes.NodeDescriptor{
		node("a"),
		node("b", "a"),
		node("c", "a"),
	}}
	p, err := Build(rb)
	require.NoError(t, err)
	require.Len(t, p.Layers, 2)
	assert.Equal(t, []string{"b", "c"}, p.Layers[1])
}

func TestBuild_UnknownNode(t *testing.T) {
	rb := &rbtypes.Runbook{Nodes: []rbtypes.NodeDescriptor{
		node("a", "ghost"),
	}}
	_, err := Build(rb)
	var perr *rberrors.PlanError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, rberrors.CodeUnknownNode, perr.Kind)
}

func TestBuild_Cycle(t *testing.T) {
	rb := &rbtypes.Runbook{Nodes: []rbtypes.NodeDescriptor{
		node("a", "c"),
		node("b", "a"),
		node("c", "b"),
	}}
	_, err := Build(rb)
	var perr *rberrors.PlanError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, rberrors.CodeCycle, perr.Kind)
	assert.NotEmpty(t, perr.Path)
}

func TestBuild_CriticalAndSkipRejected(t *testing.T) {
	n := node("a")
	n.Critical = true
	n.SkipRequest = true
	rb := &rbtypes.Runbook{Nodes: []rbtypes.NodeDescriptor{n}}
	_, err := Build(rb)
	var perr *rberrors.PlanError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, rberrors.CodeCriticalAndSkip, perr.Kind)
}

func TestBuild_MissingCommandField(t *testing.T) {
	n := node("a")
	n.Kind = rbtypes.KindCommand
	rb := &rbtypes.Runbook{Nodes: []rbtypes.NodeDescriptor{n}}
	_, err := Build(rb)
	var perr *rberrors.PlanError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, rberrors.CodeMissingField, perr.Kind)
	assert.Equal(t, "command", perr.Field)
}

func TestBuild_DuplicateNodeID(t *testing.T) {
	rb := &rbtypes.Runbook{Nodes: []rbtypes.NodeDescriptor{node("a"), node("a")}}
	_, err := Build(rb)
	require.Error(t, err)
}
