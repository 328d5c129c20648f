package node

import "github.com/brightforge/modelengine/internal/ids"

// Bake emits a new Mesh with vertices and normals transformed into world
// space by world (4.2 step 2). Normals are transformed by world's
// inverse-transpose with translation zeroed, then renormalised; face
// indices are unchanged.
func Bake(m Mesh, world ids.Matrix4) Mesh {
	out := Mesh{
		Faces:     m.Faces,
		Primitive: m.Primitive,
		UVs:       m.UVs,
	}
	out.Vertices = make([]ids.Vec3, len(m.Vertices))
	bounds := ids.EmptyBounds()
	for i, v := range m.Vertices {
		wp := world.TransformPoint(v)
		out.Vertices[i] = wp
		bounds = bounds.Extend(wp)
	}
	out.Bounds = bounds

	if m.Normals != nil {
		normalMatrix := world.InverseTranspose()
		out.Normals = make([]ids.Vec3, len(m.Normals))
		for i, n := range m.Normals {
			wn := normalMatrix.TransformDirection(n)
			out.Normals[i] = wn.Normalized()
		}
	}
	return out
}
