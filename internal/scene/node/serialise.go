package node

import (
	"math"

	"github.com/brightforge/modelengine/internal/blob"
	"github.com/brightforge/modelengine/internal/document"
	"github.com/brightforge/modelengine/internal/ids"
)

// Serialise encodes a Node into a persistable Document, routing large
// binary payloads (mesh vertex/face/normal/UV buffers, texture bytes)
// through the builder's binary side-channel with deterministic logical
// names (6.2: "/{db}/{project}/{unique_id}_{label}").
func Serialise(n *Node, database, project string) *document.Document {
	id := n.UniqueID.String()
	b := document.NewBuilder(id).
		AppendUUID("_id", n.UniqueID).
		AppendUUID("shared_id", n.SharedID).
		AppendString("type", string(n.Kind))
	if n.Name != "" {
		b.AppendString("name", n.Name)
	}
	parentFields := make([]document.Field, 0, len(n.Parents))
	for _, p := range n.Parents {
		parentFields = append(parentFields, document.Field{Label: "p", Kind: document.KindUUID, Value: p})
	}
	b.AppendArray("parents", parentFields)

	logical := func(label string) string { return blob.LogicalName(database, project, id, label) }

	switch n.Kind {
	case KindTransformation:
		b.AppendMatrix4("matrix", n.Transformation.Matrix)
	case KindMesh:
		serialiseMesh(b, *n.Mesh, logical)
	case KindSupermesh:
		serialiseMesh(b, n.Supermesh.Mesh, logical)
		serialiseMeshMap(b, n.Supermesh.MeshMap)
		b.AppendLargeArray("id_map", logical("id_map"), float32sToBytes(n.Supermesh.IDMap))
	case KindMaterial:
		serialiseMaterial(b, *n.Material)
	case KindTexture:
		b.AppendLargeArray("bytes", logical("bytes"), n.Texture.Bytes).
			AppendInt32("width", int32(n.Texture.Width)).
			AppendInt32("height", int32(n.Texture.Height)).
			AppendString("extension", n.Texture.Extension)
	case KindMetadata:
		entries := make([]document.Field, 0, len(n.Metadata.Entries))
		for _, e := range n.Metadata.Entries {
			entries = append(entries, document.Field{Label: e.Key, Kind: document.KindDocument, Value: variantToDocument(e.Key, e.Value)})
		}
		b.AppendArray("entries", entries)
	case KindReference:
		b.AppendString("owner", n.Reference.Owner).
			AppendString("project", n.Reference.Project).
			AppendUUID("revision_id", n.Reference.RevisionID).
			AppendBool("unique", n.Reference.Unique)
	case KindRevision:
		b.AppendString("author", n.Revision.Author).
			AppendString("message", n.Revision.Message).
			AppendString("tag", n.Revision.Tag).
			AppendTime("timestamp", document.FromMillis(n.Revision.TimestampMS)).
			AppendVec3("world_offset", n.Revision.WorldOffset, true).
			AppendString("status", string(n.Revision.Status)).
			AppendBool("incomplete", n.Revision.Incomplete)
		files := make([]document.Field, 0, len(n.Revision.Files))
		for _, f := range n.Revision.Files {
			files = append(files, document.Field{Label: "f", Kind: document.KindString, Value: f})
		}
		b.AppendArray("files", files)
	}

	return b.Finalize()
}

func serialiseMesh(b *document.Builder, m Mesh, logical func(string) string) {
	b.AppendInt32("vertex_count", int32(len(m.Vertices))).
		AppendLargeArray("vertices", logical("vertices"), vec3sToBytes(m.Vertices)).
		AppendLargeArray("faces", logical("faces"), facesToBytes(m.Faces)).
		AppendInt32("primitive", int32(m.Primitive))
	if m.Normals != nil {
		b.AppendLargeArray("normals", logical("normals"), vec3sToBytes(m.Normals))
	}
	if len(m.UVs) > 0 {
		b.AppendInt32("uv_channel_count", int32(len(m.UVs)))
		for i, ch := range m.UVs {
			b.AppendLargeArray(uvLabel(i), logical(uvLabel(i)), vec2sToBytes(ch))
		}
	}
	b.AppendArray("bounds", []document.Field{
		{Label: "min", Kind: document.KindVec3, Value: m.Bounds.Min},
		{Label: "max", Kind: document.KindVec3, Value: m.Bounds.Max},
	})
}

func uvLabel(channel int) string {
	return "uv" + itoa(channel)
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	digits := []byte{}
	for i > 0 {
		digits = append([]byte{byte('0' + i%10)}, digits...)
		i /= 10
	}
	return string(digits)
}

func serialiseMeshMap(b *document.Builder, m []MeshMapping) {
	entries := make([]document.Field, 0, len(m))
	for _, e := range m {
		entries = append(entries, document.Field{Label: "m", Kind: document.KindDocument, Value: document.NewBuilder("").
			AppendUUID("mesh_id", e.MeshID).
			AppendUUID("material_id", e.MaterialID).
			AppendInt32("vertex_start", int32(e.VertexStart)).
			AppendInt32("vertex_count", int32(e.VertexCount)).
			AppendInt32("triangle_from", int32(e.TriangleFrom)).
			AppendInt32("triangle_to", int32(e.TriangleTo)).
			AppendVec3("min", e.Min, true).
			AppendVec3("max", e.Max, true).
			Finalize(),
		})
	}
	b.AppendArray("mesh_map", entries)
}

// channelLabels names the rgba sub-fields of a serialised colour.
var channelLabels = [4]string{"r", "g", "b", "a"}

// appendColor writes only the non-NaN channels of c, preserving the
// NaN-as-absence rule at the document boundary (9: a field whose current
// value is NaN must be omitted on serialise and default to NaN on read).
func appendColor(b *document.Builder, label string, c [4]float64) {
	fields := make([]document.Field, 0, 4)
	for i, v := range c {
		if math.IsNaN(v) {
			continue
		}
		fields = append(fields, document.Field{Label: channelLabels[i], Kind: document.KindDouble, Value: v})
	}
	b.AppendArray(label, fields)
}

// appendOptionalDouble omits label entirely when v is NaN (9: NaN-as-absence).
func appendOptionalDouble(b *document.Builder, label string, v float64) {
	if math.IsNaN(v) {
		return
	}
	b.AppendDouble(label, v)
}

func serialiseMaterial(b *document.Builder, m Material) {
	appendColor(b, "diffuse", m.Diffuse)
	appendColor(b, "specular", m.Specular)
	appendColor(b, "emissive", m.Emissive)
	appendColor(b, "ambient", m.Ambient)
	appendOptionalDouble(b, "opacity", m.Opacity)
	appendOptionalDouble(b, "shininess", m.Shininess)
	appendOptionalDouble(b, "shininess_strength", m.ShininessStrength)
	appendOptionalDouble(b, "line_weight", m.LineWeight)
	b.AppendBool("two_sided", m.TwoSided).
		AppendBool("wireframe", m.Wireframe)
}

func variantToDocument(key string, v ids.Variant) *document.Document {
	b := document.NewBuilder(key)
	switch v.Kind {
	case ids.VariantBool:
		b.AppendBool("value", v.B)
	case ids.VariantInt32:
		b.AppendInt32("value", v.I32)
	case ids.VariantInt64:
		b.AppendInt64("value", v.I64)
	case ids.VariantDouble:
		b.AppendDouble("value", v.F64)
	case ids.VariantString:
		b.AppendString("value", v.S)
	case ids.VariantUUID:
		b.AppendUUID("value", v.U)
	case ids.VariantTimestamp:
		b.AppendTime("value", v.T)
	}
	b.AppendString("kind", string(v.Kind))
	return b.Finalize()
}
