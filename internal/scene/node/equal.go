package node

import (
	"math"

	"github.com/brightforge/modelengine/internal/ids"
)

// SEqual reports whether a and b carry the same content, irrespective of
// UniqueID. It compares kind, shared id, name and parents, then a per-kind
// subset of the payload: meshes by primitive, vertex positions and face
// count (face indices, normals, UVs and a supermesh's id map are not
// compared), revisions by author, message, tag and status.
func SEqual(a, b *Node) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Kind != b.Kind || a.SharedID != b.SharedID || a.Name != b.Name {
		return false
	}
	if !uuidSliceEqual(a.Parents, b.Parents) {
		return false
	}
	switch a.Kind {
	case KindTransformation:
		return a.Transformation.Matrix == b.Transformation.Matrix
	case KindMesh:
		return meshEqual(*a.Mesh, *b.Mesh)
	case KindSupermesh:
		return meshEqual(a.Supermesh.Mesh, b.Supermesh.Mesh) && meshMapEqual(a.Supermesh.MeshMap, b.Supermesh.MeshMap)
	case KindMaterial:
		return materialEqual(*a.Material, *b.Material)
	case KindTexture:
		return a.Texture.Width == b.Texture.Width && a.Texture.Height == b.Texture.Height &&
			a.Texture.Extension == b.Texture.Extension && bytesEqual(a.Texture.Bytes, b.Texture.Bytes)
	case KindMetadata:
		return metadataEqual(a.Metadata.Entries, b.Metadata.Entries)
	case KindReference:
		return *a.Reference == *b.Reference
	case KindRevision:
		return a.Revision.Author == b.Revision.Author && a.Revision.Message == b.Revision.Message &&
			a.Revision.Tag == b.Revision.Tag && a.Revision.Status == b.Revision.Status
	default:
		return false
	}
}

func uuidSliceEqual(a, b []ids.UUID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func meshEqual(a, b Mesh) bool {
	if a.Primitive != b.Primitive || len(a.Vertices) != len(b.Vertices) || len(a.Faces) != len(b.Faces) {
		return false
	}
	for i := range a.Vertices {
		if a.Vertices[i] != b.Vertices[i] {
			return false
		}
	}
	return true
}

func meshMapEqual(a, b []MeshMapping) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func materialEqual(a, b Material) bool {
	eq := func(x, y float64) bool {
		if math.IsNaN(x) && math.IsNaN(y) {
			return true
		}
		return x == y
	}
	return a.Diffuse == b.Diffuse && a.Specular == b.Specular && a.Emissive == b.Emissive && a.Ambient == b.Ambient &&
		eq(a.Opacity, b.Opacity) && eq(a.Shininess, b.Shininess) && eq(a.ShininessStrength, b.ShininessStrength) &&
		eq(a.LineWeight, b.LineWeight) && a.TwoSided == b.TwoSided && a.Wireframe == b.Wireframe
}

func metadataEqual(a, b []MetadataEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Key != b[i].Key || a[i].Value != b[i].Value {
			return false
		}
	}
	return true
}
