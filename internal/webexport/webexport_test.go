package webexport_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brightforge/modelengine/internal/blob/memblob"
	"github.com/brightforge/modelengine/internal/ids"
	"github.com/brightforge/modelengine/internal/scene/graph"
	"github.com/brightforge/modelengine/internal/scene/node"
	"github.com/brightforge/modelengine/internal/webexport"
)

func buildOptimized() (*graph.Graph, *node.Node) {
	g := graph.New()

	matShared := ids.New()
	mat := &node.Node{
		Base:     node.Base{UniqueID: ids.New(), SharedID: matShared, Kind: node.KindMaterial},
		Material: &node.Material{Opacity: 0.5},
	}
	g.AddNode(mat)

	meshID := ids.New()
	sm := node.NewSupermesh(ids.New(), ids.New(), []ids.UUID{matShared}, node.Supermesh{
		Mesh: node.Mesh{
			Vertices:  []ids.Vec3{{X: 0}, {X: 1}, {Y: 1}},
			Faces:     [][]int32{{0, 1, 2}},
			Primitive: node.PrimitiveTriangles,
			Bounds:    ids.Bounds{Min: ids.Vec3{}, Max: ids.Vec3{X: 1, Y: 1}},
		},
		MeshMap: []node.MeshMapping{
			{MeshID: meshID, VertexStart: 0, VertexCount: 3, Min: ids.Vec3{}, Max: ids.Vec3{X: 1, Y: 1}},
		},
		IDMap: []float32{0, 0, 0},
	})
	g.AddNode(sm)

	return g, sm
}

func TestExportSupermeshWritesAssetAndMapping(t *testing.T) {
	g, sm := buildOptimized()
	store := memblob.New()

	assetPath, jsonPath, meta, err := webexport.ExportSupermesh(context.Background(), store, g, sm, "db", "proj")
	require.NoError(t, err)
	require.NotEmpty(t, assetPath)
	require.NotEmpty(t, jsonPath)
	require.Equal(t, 3, meta.NumVertices)
	require.Equal(t, 1, meta.NumFaces)

	assetBytes, err := store.Get(context.Background(), assetPath)
	require.NoError(t, err)
	require.NotEmpty(t, assetBytes)

	mappingBytes, err := store.Get(context.Background(), jsonPath)
	require.NoError(t, err)

	var decoded struct {
		NumIDs  int `json:"numIds"`
		Mapping []struct {
			Usage string `json:"usage"`
		} `json:"mapping"`
	}
	require.NoError(t, json.Unmarshal(mappingBytes, &decoded))
	require.Equal(t, 1, decoded.NumIDs)
	require.Len(t, decoded.Mapping, 1)
	require.Equal(t, "transparent", decoded.Mapping[0].Usage, "opacity 0.5 material must mark the mapping transparent")
}

func TestBuildManifestAndDocumentRoundTripShape(t *testing.T) {
	revID := ids.New()
	m := webexport.BuildManifest(revID, "db", "model", ids.Vec3{X: 1}, []string{"a1"}, []string{"j1"}, []webexport.AssetMeta{
		{NumVertices: 3, NumFaces: 1, Primitive: node.PrimitiveTriangles},
	})
	doc := webexport.ManifestDocument(m)

	idField, ok := doc.Get("_id")
	require.True(t, ok)
	require.Equal(t, revID, idField.Value)

	dbField, ok := doc.Get("database")
	require.True(t, ok)
	require.Equal(t, "db", dbField.Value)
}
