package graph_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brightforge/modelengine/internal/ids"
	"github.com/brightforge/modelengine/internal/scene/graph"
	"github.com/brightforge/modelengine/internal/scene/node"
)

func TestAddNodeRegistersRootAndIndices(t *testing.T) {
	g := graph.New()
	root := node.NewTransformation(ids.New(), ids.New(), nil, ids.Identity4())
	g.AddNode(root)

	require.Len(t, g.Roots, 1)
	got, ok := g.NodeBySharedID(root.SharedID)
	require.True(t, ok)
	require.Equal(t, root.UniqueID, got.UniqueID)

	diff := g.Diff()
	require.Contains(t, diff.Added, root.SharedID)
	require.Contains(t, diff.Current, root.UniqueID)
}

func TestRemoveNodeDetachesChildrenAndQueuesDeletion(t *testing.T) {
	g := graph.New()
	parentShared := ids.New()
	parent := node.NewTransformation(ids.New(), parentShared, nil, ids.Identity4())
	childShared := ids.New()
	child := node.NewTransformation(ids.New(), childShared, []ids.UUID{parentShared}, ids.Identity4())
	g.AddNode(parent)
	g.AddNode(child)
	require.Len(t, g.Children(parentShared), 1)

	g.RemoveNode(parentShared)

	_, ok := g.NodeBySharedID(parentShared)
	require.False(t, ok)
	require.Empty(t, g.Children(parentShared))
	// child remains resolvable; its Parents entry still names the removed
	// shared id, matching the "children become detached" invariant (4.3).
	stillThere, ok := g.NodeBySharedID(childShared)
	require.True(t, ok)
	require.Contains(t, stillThere.Parents, parentShared)

	require.Len(t, g.ToDelete(), 1)
	diff := g.Diff()
	require.Contains(t, diff.Removed, parentShared)
}

func TestAddInheritanceIsIdempotentAndKeepsDiffSetsDisjoint(t *testing.T) {
	g := graph.New()
	parentShared := ids.New()
	parent := node.NewTransformation(ids.New(), parentShared, nil, ids.Identity4())
	childShared := ids.New()
	child := node.NewTransformation(ids.New(), childShared, nil, ids.Identity4())
	g.AddNode(parent)
	g.AddNode(child)

	g.AddInheritance(parentShared, childShared, false)
	g.AddInheritance(parentShared, childShared, false)

	got, _ := g.NodeBySharedID(childShared)
	require.Len(t, got.Parents, 1)
	// child was added in this session, so it stays in Added and is not
	// also marked modified (the diff sets are disjoint, 4.3).
	require.Contains(t, g.Diff().Added, childShared)
	require.NotContains(t, g.Diff().Modified, childShared)
}

func TestApplyScaleFactorScalesRootMatrix(t *testing.T) {
	g := graph.New()
	root := node.NewTransformation(ids.New(), ids.New(), nil, ids.Identity4())
	g.AddNode(root)

	g.ApplyScaleFactor(2)

	require.Equal(t, float32(2), root.Transformation.Matrix[0][0])
	require.Equal(t, float32(2), root.Transformation.Matrix[1][1])
}
