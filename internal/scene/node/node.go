// Package node implements the scene graph's node model (3.3): a tagged
// variant over value-typed node records plus a dispatch table for
// per-type behaviour, replacing the BSON-wrapper inheritance the source
// used (9: "Typed polymorphism over documents").
package node

import (
	"math"

	"github.com/brightforge/modelengine/internal/ids"
)

// Kind tags which of the payload pointers on Node is populated.
type Kind string

const (
	KindTransformation Kind = "transformation"
	KindMesh           Kind = "mesh"
	KindSupermesh      Kind = "supermesh"
	KindMaterial       Kind = "material"
	KindTexture        Kind = "texture"
	KindMetadata       Kind = "metadata"
	KindReference      Kind = "reference"
	KindRevision       Kind = "revision"
)

// PrimitiveKind is a mesh's face arity (3.3).
type PrimitiveKind int32

const (
	PrimitiveUnknown   PrimitiveKind = 0
	PrimitiveLines     PrimitiveKind = 2
	PrimitiveTriangles PrimitiveKind = 3
)

// Base fields every node carries (3.3).
type Base struct {
	UniqueID ids.UUID
	SharedID ids.UUID
	Kind     Kind
	Name     string
	// Parents holds shared ids; empty for roots.
	Parents []ids.UUID
}

// Transformation carries a row-major 4x4 matrix.
type Transformation struct {
	Matrix ids.Matrix4
}

// MeshMapping is one entry of a Supermesh's mesh_map (3.3, 4.2 step 5).
type MeshMapping struct {
	MeshID       ids.UUID
	MaterialID   ids.UUID
	VertexStart  int
	VertexCount  int
	TriangleFrom int
	TriangleTo   int
	Min, Max     ids.Vec3
}

// Mesh is the common payload shape for Mesh and (embedded in) Supermesh
// nodes (3.3).
type Mesh struct {
	Vertices  []ids.Vec3
	Normals   []ids.Vec3 // optional; nil if absent
	UVs       [][]ids.Vec2
	Faces     [][]int32 // each entry is one face's vertex indices
	Primitive PrimitiveKind
	Bounds    ids.Bounds
}

// Supermesh extends Mesh with the id-map and mesh_map produced by the
// multipart optimizer (4.2 step 5-6).
type Supermesh struct {
	Mesh
	MeshMap []MeshMapping
	// IDMap assigns a dense per-vertex id of the contained mesh (0,1,2…)
	// so the viewer can colour by original mesh (4.2 step 6).
	IDMap []float32
}

// Material fields are float64 so NaN can mark "absent" at the document
// boundary (9: "NaN-as-absence for material fields").
type Material struct {
	Diffuse, Specular, Emissive, Ambient [4]float64 // rgba; Ambient[3] etc may be NaN
	Opacity                              float64
	Shininess, ShininessStrength         float64
	LineWeight                           float64
	TwoSided, Wireframe                  bool
}

// IsTransparent reports whether the material's opacity marks it
// transparent (4.2 step 3: "transparency flag is true iff opacity < 1").
func (m Material) IsTransparent() bool {
	if math.IsNaN(m.Opacity) {
		return false
	}
	return m.Opacity < 1
}

type Texture struct {
	Bytes     []byte
	Width     int
	Height    int
	Extension string
}

type MetadataEntry struct {
	Key   string
	Value ids.Variant
}

type Metadata struct {
	Entries []MetadataEntry
}

// Reference points at a sub-scene (3.3).
type Reference struct {
	Owner      string // database name
	Project    string
	RevisionID ids.UUID // zero-UUID => head of master
	Unique     bool
}

// UploadStatus is the revision status state machine (6.4).
type UploadStatus string

const (
	StatusComplete        UploadStatus = "COMPLETE"
	StatusGenDefault      UploadStatus = "GEN_DEFAULT"
	StatusGenSelTree      UploadStatus = "GEN_SEL_TREE"
	StatusGenWebStash     UploadStatus = "GEN_WEB_STASH"
	StatusMissingBundles  UploadStatus = "MISSING_BUNDLES"
	StatusError           UploadStatus = "ERROR"
)

type Revision struct {
	Author      string
	Message     string
	Tag         string
	TimestampMS int64
	WorldOffset ids.Vec3
	Files       []string
	Status      UploadStatus
	Incomplete  bool
}

// Node is a tagged-variant record: exactly one of the payload pointers
// matching Kind is non-nil.
type Node struct {
	Base

	Transformation *Transformation
	Mesh           *Mesh
	Supermesh      *Supermesh
	Material       *Material
	Texture        *Texture
	Metadata       *Metadata
	Reference      *Reference
	Revision       *Revision
}

// NewTransformation builds a root or inner transformation node.
func NewTransformation(uniqueID, sharedID ids.UUID, parents []ids.UUID, m ids.Matrix4) *Node {
	return &Node{
		Base:           Base{UniqueID: uniqueID, SharedID: sharedID, Kind: KindTransformation, Parents: parents},
		Transformation: &Transformation{Matrix: m},
	}
}

// NewMesh builds a mesh node from mesh as given; the face arity is taken
// from mesh.Primitive and is not inferred or checked against Faces.
func NewMesh(uniqueID, sharedID ids.UUID, parents []ids.UUID, mesh Mesh) *Node {
	return &Node{
		Base: Base{UniqueID: uniqueID, SharedID: sharedID, Kind: KindMesh, Parents: parents},
		Mesh: &mesh,
	}
}

// NewSupermesh builds a supermesh node, the leaf kind the multipart
// optimizer emits in place of instanced meshes (4.2 step 7).
func NewSupermesh(uniqueID, sharedID ids.UUID, parents []ids.UUID, sm Supermesh) *Node {
	return &Node{
		Base:      Base{UniqueID: uniqueID, SharedID: sharedID, Kind: KindSupermesh, Parents: parents},
		Supermesh: &sm,
	}
}
