package node_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brightforge/modelengine/internal/ids"
	"github.com/brightforge/modelengine/internal/scene/node"
)

func TestSerialiseMeshRoutesBuffersToSideChannel(t *testing.T) {
	m := node.Mesh{
		Vertices:  []ids.Vec3{{X: 0, Y: 0, Z: 0}, {X: 1, Y: 0, Z: 0}, {X: 0, Y: 1, Z: 0}},
		Faces:     [][]int32{{0, 1, 2}},
		Primitive: node.PrimitiveTriangles,
		Bounds:    ids.Bounds{Min: ids.Vec3{}, Max: ids.Vec3{X: 1, Y: 1, Z: 0}},
	}
	n := node.NewMesh(ids.New(), ids.New(), nil, m)
	doc := node.Serialise(n, "mydb", "proj1")

	require.NotEmpty(t, doc.Binary["vertices"].Bytes)
	require.NotEmpty(t, doc.Binary["faces"].Bytes)

	f, ok := doc.Get("vertex_count")
	require.True(t, ok)
	require.Equal(t, int32(3), f.Value)
}

func TestBakeTransformsVerticesAndRenormalisesNormals(t *testing.T) {
	m := node.Mesh{
		Vertices:  []ids.Vec3{{X: 1, Y: 0, Z: 0}},
		Normals:   []ids.Vec3{{X: 1, Y: 0, Z: 0}},
		Faces:     [][]int32{{0}},
		Primitive: node.PrimitiveTriangles,
	}
	world := ids.Identity4()
	world[0][3] = 5 // translate x by 5

	baked := node.Bake(m, world)
	require.Equal(t, float32(6), baked.Vertices[0].X)
	require.InDelta(t, 1.0, float64(baked.Normals[0].Length()), 1e-6)
}

func TestSEqualDetectsNameChange(t *testing.T) {
	shared := ids.New()
	a := node.NewTransformation(ids.New(), shared, nil, ids.Identity4())
	b := node.NewTransformation(ids.New(), shared, nil, ids.Identity4())
	require.True(t, node.SEqual(a, b))

	b.Name = "renamed"
	require.False(t, node.SEqual(a, b))
}
