package selection_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brightforge/modelengine/internal/document"
	"github.com/brightforge/modelengine/internal/ids"
	"github.com/brightforge/modelengine/internal/scene/graph"
	"github.com/brightforge/modelengine/internal/scene/node"
	"github.com/brightforge/modelengine/internal/selection"
)

func buildScene() (*graph.Graph, ids.UUID, ids.UUID) {
	g := graph.New()
	rootShared := ids.New()
	root := node.NewTransformation(ids.New(), rootShared, nil, ids.Identity4())
	g.AddNode(root)

	meshShared := ids.New()
	mesh := node.NewMesh(ids.New(), meshShared, []ids.UUID{rootShared}, node.Mesh{
		Vertices:  []ids.Vec3{{X: 0}, {X: 1}, {X: 0, Y: 1}},
		Faces:     [][]int32{{0, 1, 2}},
		Primitive: node.PrimitiveTriangles,
	})
	g.AddNode(mesh)

	meta := &node.Node{
		Base: node.Base{UniqueID: ids.New(), SharedID: ids.New(), Kind: node.KindMetadata, Parents: []ids.UUID{meshShared}},
		Metadata: &node.Metadata{Entries: []node.MetadataEntry{
			{Key: "ifc_guid", Value: ids.NewStringVariant("abc123")},
		}},
	}
	g.AddNode(meta)

	return g, rootShared, meshShared
}

func TestGenerateFoldsMetadataIntoOwningNode(t *testing.T) {
	g, _, meshShared := buildScene()

	trees := selection.Generate(g)
	require.Len(t, trees, 1)

	root := trees[0]
	require.Equal(t, node.KindTransformation, root.Kind)
	require.Len(t, root.Children, 1)

	meshNode := root.Children[0]
	mesh, ok := g.NodeBySharedID(meshShared)
	require.True(t, ok)
	require.Equal(t, mesh.UniqueID, meshNode.UniqueID)
	require.Len(t, meshNode.Metadata, 1)
	require.Equal(t, "ifc_guid", meshNode.Metadata[0].Key)
	require.Empty(t, meshNode.Children)
}

func TestGenerateSkipsNonSelectableChildren(t *testing.T) {
	g, rootShared, _ := buildScene()

	matShared := ids.New()
	mat := &node.Node{
		Base:     node.Base{UniqueID: ids.New(), SharedID: matShared, Kind: node.KindMaterial, Parents: []ids.UUID{rootShared}},
		Material: &node.Material{Opacity: 1},
	}
	g.AddNode(mat)

	trees := selection.Generate(g)
	require.Len(t, trees, 1)
	require.Len(t, trees[0].Children, 1, "material child must not appear in the selection tree")
}

func TestSerialiseNestsChildrenAndMetadata(t *testing.T) {
	g, _, _ := buildScene()
	trees := selection.Generate(g)
	require.Len(t, trees, 1)

	doc := selection.Serialise(trees[0])
	children, ok := doc.Get("children")
	require.True(t, ok)
	arr, ok := children.Value.([]document.Field)
	require.True(t, ok)
	require.Len(t, arr, 1)

	childDoc, ok := arr[0].Value.(*document.Document)
	require.True(t, ok)
	meta, ok := childDoc.Get("metadata")
	require.True(t, ok)
	metaArr, ok := meta.Value.([]document.Field)
	require.True(t, ok)
	require.Len(t, metaArr, 1)
	require.Equal(t, "ifc_guid", metaArr[0].Label)
}
