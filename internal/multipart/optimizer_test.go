package multipart_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brightforge/modelengine/internal/ids"
	"github.com/brightforge/modelengine/internal/multipart"
	"github.com/brightforge/modelengine/internal/scene/graph"
	"github.com/brightforge/modelengine/internal/scene/node"
)

func triangle() node.Mesh {
	return node.Mesh{
		Vertices:  []ids.Vec3{{X: 0, Y: 0, Z: 0}, {X: 1, Y: 0, Z: 0}, {X: 0, Y: 1, Z: 0}},
		Faces:     [][]int32{{0, 1, 2}},
		Primitive: node.PrimitiveTriangles,
		Bounds:    ids.Bounds{Min: ids.Vec3{}, Max: ids.Vec3{X: 1, Y: 1, Z: 0}},
	}
}

func translateX(x float32) ids.Matrix4 {
	m := ids.Identity4()
	m[0][3] = x
	return m
}

// TestOptimizeMergesThreeInstancesIntoOneSupermesh reproduces 8's worked
// example: a triangle instanced three times under (0,0,0), (10,0,0),
// (20,0,0) packs into one supermesh of 9 vertices, 3 faces, 3 mappings
// whose vertex ranges are [0,3), [3,6), [6,9).
func TestOptimizeMergesThreeInstancesIntoOneSupermesh(t *testing.T) {
	def := graph.New()
	root := node.NewTransformation(ids.New(), ids.New(), nil, ids.Identity4())
	def.AddNode(root)

	meshShared := ids.New()
	for i, offset := range []float32{0, 10, 20} {
		xform := node.NewTransformation(ids.New(), ids.New(), []ids.UUID{root.SharedID}, translateX(offset))
		def.AddNode(xform)
		mesh := node.NewMesh(ids.New(), meshShared, []ids.UUID{xform.SharedID}, triangle())
		_ = i
		def.AddNode(mesh)
	}

	result, err := multipart.Optimize(def)
	require.NoError(t, err)
	require.False(t, result.MissingNodes)

	var supermeshes []*node.Node
	for _, uid := range result.Graph.Roots {
		rootNode, _ := result.Graph.NodeByUnique(uid)
		for _, child := range result.Graph.Children(rootNode.SharedID) {
			if child.Kind == node.KindSupermesh {
				supermeshes = append(supermeshes, child)
			}
		}
	}
	require.Len(t, supermeshes, 1)

	sm := supermeshes[0].Supermesh
	require.Len(t, sm.Vertices, 9)
	require.Len(t, sm.Faces, 3)
	require.Len(t, sm.MeshMap, 3)
	require.Equal(t, 0, sm.MeshMap[0].VertexStart)
	require.Equal(t, 3, sm.MeshMap[1].VertexStart)
	require.Equal(t, 6, sm.MeshMap[2].VertexStart)
	require.Equal(t, float32(10), sm.Vertices[3].X)
	require.Equal(t, float32(20), sm.Vertices[6].X)
}

// TestOptimizeSplitsAcrossVertexBudget reproduces 8's 30 000-instance
// scenario: ceil(90000/65535) = 2 supermeshes, each within budget.
func TestOptimizeSplitsAcrossVertexBudget(t *testing.T) {
	def := graph.New()
	root := node.NewTransformation(ids.New(), ids.New(), nil, ids.Identity4())
	def.AddNode(root)

	meshShared := ids.New()
	for i := 0; i < 30000; i++ {
		xform := node.NewTransformation(ids.New(), ids.New(), []ids.UUID{root.SharedID}, translateX(float32(i)))
		def.AddNode(xform)
		mesh := node.NewMesh(ids.New(), meshShared, []ids.UUID{xform.SharedID}, triangle())
		def.AddNode(mesh)
	}

	result, err := multipart.Optimize(def)
	require.NoError(t, err)

	var supermeshes []*node.Node
	rootNode, _ := result.Graph.NodeByUnique(result.Graph.Roots[0])
	for _, child := range result.Graph.Children(rootNode.SharedID) {
		if child.Kind == node.KindSupermesh {
			supermeshes = append(supermeshes, child)
		}
	}
	require.Len(t, supermeshes, 2)
	for _, sm := range supermeshes {
		require.LessOrEqual(t, len(sm.Supermesh.Vertices), 65535)
	}
}

func TestOptimizeSkipsUnknownPrimitiveAndFlagsMissingNodes(t *testing.T) {
	def := graph.New()
	root := node.NewTransformation(ids.New(), ids.New(), nil, ids.Identity4())
	def.AddNode(root)

	bad := triangle()
	bad.Primitive = node.PrimitiveUnknown
	mesh := node.NewMesh(ids.New(), ids.New(), []ids.UUID{root.SharedID}, bad)
	def.AddNode(mesh)

	result, err := multipart.Optimize(def)
	require.NoError(t, err)
	require.True(t, result.MissingNodes)
}
