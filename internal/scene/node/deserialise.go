package node

import (
	"context"

	"github.com/brightforge/modelengine/internal/document"
	"github.com/brightforge/modelengine/internal/ids"
	"github.com/brightforge/modelengine/internal/modelerr"
)

// Deserialise is the inverse of Serialise: it reconstructs a Node from a
// persisted Document, resolving any binary-side-channel or blob-ref fields
// through r (4.1, 3.3). Only the fields the node's Kind carries are read;
// a document whose type is not a known Kind returns a Corruption error.
func Deserialise(ctx context.Context, r *document.Reader, doc *document.Document) (*Node, error) {
	base, err := readBase(r)
	if err != nil {
		return nil, err
	}
	n := &Node{Base: base}

	switch base.Kind {
	case KindTransformation:
		m, err := r.GetMatrix4("matrix")
		if err != nil {
			return nil, err
		}
		n.Transformation = &Transformation{Matrix: m}
	case KindMesh:
		m, err := readMesh(ctx, r)
		if err != nil {
			return nil, err
		}
		n.Mesh = &m
	case KindSupermesh:
		m, err := readMesh(ctx, r)
		if err != nil {
			return nil, err
		}
		meshMap, err := readMeshMap(r)
		if err != nil {
			return nil, err
		}
		idMap, err := document.GetBinaryFieldAsVector[float32](ctx, r, "id_map", len(m.Vertices))
		if err != nil {
			return nil, err
		}
		n.Supermesh = &Supermesh{Mesh: m, MeshMap: meshMap, IDMap: idMap}
	case KindMaterial:
		mat, err := readMaterial(r)
		if err != nil {
			return nil, err
		}
		n.Material = &mat
	case KindTexture:
		tex, err := readTexture(ctx, r)
		if err != nil {
			return nil, err
		}
		n.Texture = &tex
	case KindMetadata:
		meta, err := readMetadata(r)
		if err != nil {
			return nil, err
		}
		n.Metadata = &meta
	case KindReference:
		ref, err := readReference(r)
		if err != nil {
			return nil, err
		}
		n.Reference = &ref
	case KindRevision:
		rev, err := readRevision(r)
		if err != nil {
			return nil, err
		}
		n.Revision = &rev
	default:
		return nil, modelerr.New(modelerr.CodeCorruption, "node.Deserialise", "unknown node kind: "+string(base.Kind), nil)
	}
	return n, nil
}

// SparseNode is the minimal-fields projection of a node the clash
// pipeline's sparse scene load reads (4.6 step 1: "minimal fields
// (parents, matrix, type, blob ref, bounds)"), without resolving any
// vertex/face/texture binary payload.
type SparseNode struct {
	Base
	Matrix *ids.Matrix4 // set for KindTransformation
	Bounds *ids.Bounds  // set for KindMesh/KindSupermesh
}

// ReadSparse reads only the fields a sparse scene load needs, leaving
// mesh vertex/face/UV buffers untouched.
func ReadSparse(r *document.Reader) (SparseNode, error) {
	base, err := readBase(r)
	if err != nil {
		return SparseNode{}, err
	}
	out := SparseNode{Base: base}
	switch base.Kind {
	case KindTransformation:
		m, err := r.GetMatrix4("matrix")
		if err != nil {
			return SparseNode{}, err
		}
		out.Matrix = &m
	case KindMesh, KindSupermesh:
		b, err := r.GetBoundsField("bounds")
		if err != nil {
			return SparseNode{}, err
		}
		out.Bounds = &b
	}
	return out, nil
}

func readBase(r *document.Reader) (Base, error) {
	uniqueID, err := r.GetUUID("_id")
	if err != nil {
		return Base{}, err
	}
	sharedID, err := r.GetUUID("shared_id")
	if err != nil {
		return Base{}, err
	}
	kindStr, err := r.GetString("type")
	if err != nil {
		return Base{}, err
	}
	name, _ := r.GetString("name")
	parents, err := readUUIDArray(r, "parents", "p")
	if err != nil {
		return Base{}, err
	}
	return Base{UniqueID: uniqueID, SharedID: sharedID, Kind: Kind(kindStr), Name: name, Parents: parents}, nil
}

func readUUIDArray(r *document.Reader, label, elemLabel string) ([]ids.UUID, error) {
	fields, err := r.GetArray(label)
	if err != nil {
		if modelerr.Is(err, modelerr.CodeNotFound) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]ids.UUID, 0, len(fields))
	for _, f := range fields {
		u, ok := f.Value.(ids.UUID)
		if !ok {
			return nil, modelerr.New(modelerr.CodeCorruption, "node.readUUIDArray", "array element is not a uuid: "+label, nil)
		}
		out = append(out, u)
	}
	_ = elemLabel
	return out, nil
}

func readMesh(ctx context.Context, r *document.Reader) (Mesh, error) {
	vertexCount, err := r.GetInt("vertex_count")
	if err != nil {
		return Mesh{}, err
	}
	vertices, err := document.GetBinaryFieldAsVector[float32](ctx, r, "vertices", int(vertexCount)*3)
	if err != nil {
		return Mesh{}, err
	}
	faceBytes, err := r.GetRawBinary(ctx, "faces")
	if err != nil {
		return Mesh{}, err
	}
	primitive, err := r.GetInt("primitive")
	if err != nil {
		return Mesh{}, err
	}
	bounds, err := r.GetBoundsField("bounds")
	if err != nil {
		return Mesh{}, err
	}

	m := Mesh{
		Vertices:  floatsToVec3s(vertices),
		Faces:     bytesToFaces(faceBytes),
		Primitive: PrimitiveKind(primitive),
		Bounds:    bounds,
	}

	if normals, err := document.GetBinaryFieldAsVector[float32](ctx, r, "normals", int(vertexCount)*3); err == nil {
		m.Normals = floatsToVec3s(normals)
	}

	if uvChannels, err := r.GetInt("uv_channel_count"); err == nil {
		m.UVs = make([][]ids.Vec2, 0, uvChannels)
		for i := int64(0); i < uvChannels; i++ {
			raw, err := document.GetBinaryFieldAsVector[float32](ctx, r, uvLabel(int(i)), int(vertexCount)*2)
			if err != nil {
				return Mesh{}, err
			}
			m.UVs = append(m.UVs, floatsToVec2s(raw))
		}
	}
	return m, nil
}

func floatsToVec3s(flat []float32) []ids.Vec3 {
	n := len(flat) / 3
	out := make([]ids.Vec3, n)
	for i := 0; i < n; i++ {
		out[i] = ids.Vec3{X: flat[i*3], Y: flat[i*3+1], Z: flat[i*3+2]}
	}
	return out
}

func floatsToVec2s(flat []float32) []ids.Vec2 {
	n := len(flat) / 2
	out := make([]ids.Vec2, n)
	for i := 0; i < n; i++ {
		out[i] = ids.Vec2{X: flat[i*2], Y: flat[i*2+1]}
	}
	return out
}

func readMeshMap(r *document.Reader) ([]MeshMapping, error) {
	fields, err := r.GetArray("mesh_map")
	if err != nil {
		return nil, err
	}
	out := make([]MeshMapping, 0, len(fields))
	for _, f := range fields {
		sub, ok := f.Value.(*document.Document)
		if !ok {
			return nil, modelerr.New(modelerr.CodeCorruption, "node.readMeshMap", "mesh_map entry is not a document", nil)
		}
		sr := document.NewReader(sub, nil, nil)
		meshID, err := sr.GetUUID("mesh_id")
		if err != nil {
			return nil, err
		}
		materialID, err := sr.GetUUID("material_id")
		if err != nil {
			return nil, err
		}
		vertexStart, err := sr.GetInt("vertex_start")
		if err != nil {
			return nil, err
		}
		vertexCount, err := sr.GetInt("vertex_count")
		if err != nil {
			return nil, err
		}
		triFrom, err := sr.GetInt("triangle_from")
		if err != nil {
			return nil, err
		}
		triTo, err := sr.GetInt("triangle_to")
		if err != nil {
			return nil, err
		}
		min, err := sr.GetVec3("min")
		if err != nil {
			return nil, err
		}
		max, err := sr.GetVec3("max")
		if err != nil {
			return nil, err
		}
		out = append(out, MeshMapping{
			MeshID: meshID, MaterialID: materialID,
			VertexStart: int(vertexStart), VertexCount: int(vertexCount),
			TriangleFrom: int(triFrom), TriangleTo: int(triTo),
			Min: min, Max: max,
		})
	}
	return out, nil
}

func readMaterial(r *document.Reader) (Material, error) {
	readColor := func(label string) [4]float64 {
		c := [4]float64{nanFloat(), nanFloat(), nanFloat(), nanFloat()}
		fields, err := r.GetArray(label)
		if err != nil {
			return c
		}
		for _, f := range fields {
			v, ok := f.Value.(float64)
			if !ok {
				continue
			}
			switch f.Label {
			case "r":
				c[0] = v
			case "g":
				c[1] = v
			case "b":
				c[2] = v
			case "a":
				c[3] = v
			}
		}
		return c
	}
	m := Material{
		Diffuse:  readColor("diffuse"),
		Specular: readColor("specular"),
		Emissive: readColor("emissive"),
		Ambient:  readColor("ambient"),
	}
	m.Opacity = readDoubleOrNaN(r, "opacity")
	m.Shininess = readDoubleOrNaN(r, "shininess")
	m.ShininessStrength = readDoubleOrNaN(r, "shininess_strength")
	m.LineWeight = readDoubleOrNaN(r, "line_weight")
	m.TwoSided, _ = r.GetBool("two_sided")
	m.Wireframe, _ = r.GetBool("wireframe")
	return m, nil
}

func readDoubleOrNaN(r *document.Reader, label string) float64 {
	v, err := r.GetDouble(label)
	if err != nil {
		return nanFloat()
	}
	return v
}

func nanFloat() float64 {
	var z float64
	return z / z
}

func readTexture(ctx context.Context, r *document.Reader) (Texture, error) {
	raw, err := r.GetRawBinary(ctx, "bytes")
	if err != nil {
		return Texture{}, err
	}
	width, err := r.GetInt("width")
	if err != nil {
		return Texture{}, err
	}
	height, err := r.GetInt("height")
	if err != nil {
		return Texture{}, err
	}
	ext, err := r.GetString("extension")
	if err != nil {
		return Texture{}, err
	}
	return Texture{Bytes: raw, Width: int(width), Height: int(height), Extension: ext}, nil
}

func readMetadata(r *document.Reader) (Metadata, error) {
	fields, err := r.GetArray("entries")
	if err != nil {
		return Metadata{}, err
	}
	out := Metadata{Entries: make([]MetadataEntry, 0, len(fields))}
	for _, f := range fields {
		sub, ok := f.Value.(*document.Document)
		if !ok {
			return Metadata{}, modelerr.New(modelerr.CodeCorruption, "node.readMetadata", "entry is not a document", nil)
		}
		sr := document.NewReader(sub, nil, nil)
		kindStr, err := sr.GetString("kind")
		if err != nil {
			return Metadata{}, err
		}
		v, err := variantFromReader(sr, ids.VariantKind(kindStr))
		if err != nil {
			return Metadata{}, err
		}
		out.Entries = append(out.Entries, MetadataEntry{Key: f.Label, Value: v})
	}
	return out, nil
}

func variantFromReader(r *document.Reader, kind ids.VariantKind) (ids.Variant, error) {
	switch kind {
	case ids.VariantBool:
		v, err := r.GetBool("value")
		return ids.NewBoolVariant(v), err
	case ids.VariantInt32:
		v, err := r.GetInt("value")
		return ids.NewInt32Variant(int32(v)), err
	case ids.VariantInt64:
		v, err := r.GetInt("value")
		return ids.NewInt64Variant(v), err
	case ids.VariantDouble:
		v, err := r.GetDouble("value")
		return ids.NewDoubleVariant(v), err
	case ids.VariantString:
		v, err := r.GetString("value")
		return ids.NewStringVariant(v), err
	case ids.VariantUUID:
		v, err := r.GetUUID("value")
		return ids.NewUUIDVariant(v), err
	case ids.VariantTimestamp:
		ms, err := r.GetTimeStampField("value")
		if err != nil {
			return ids.Variant{}, err
		}
		return ids.NewTimestampVariant(document.FromMillis(ms)), nil
	default:
		return ids.Variant{}, modelerr.New(modelerr.CodeCorruption, "node.variantFromReader", "unknown variant kind: "+string(kind), nil)
	}
}

func readReference(r *document.Reader) (Reference, error) {
	owner, err := r.GetString("owner")
	if err != nil {
		return Reference{}, err
	}
	project, err := r.GetString("project")
	if err != nil {
		return Reference{}, err
	}
	revisionID, err := r.GetUUID("revision_id")
	if err != nil {
		return Reference{}, err
	}
	unique, err := r.GetBool("unique")
	if err != nil {
		return Reference{}, err
	}
	return Reference{Owner: owner, Project: project, RevisionID: revisionID, Unique: unique}, nil
}

func readRevision(r *document.Reader) (Revision, error) {
	author, err := r.GetString("author")
	if err != nil {
		return Revision{}, err
	}
	message, _ := r.GetString("message")
	tag, _ := r.GetString("tag")
	ts, err := r.GetTimeStampField("timestamp")
	if err != nil {
		return Revision{}, err
	}
	offset, err := r.GetVec3("world_offset")
	if err != nil {
		return Revision{}, err
	}
	statusStr, err := r.GetString("status")
	if err != nil {
		return Revision{}, err
	}
	incomplete, _ := r.GetBool("incomplete")
	fileFields, err := r.GetArray("files")
	if err != nil {
		fileFields = nil
	}
	files := make([]string, 0, len(fileFields))
	for _, f := range fileFields {
		if s, ok := f.Value.(string); ok {
			files = append(files, s)
		}
	}
	return Revision{
		Author: author, Message: message, Tag: tag, TimestampMS: ts,
		WorldOffset: offset, Files: files, Status: UploadStatus(statusStr), Incomplete: incomplete,
	}, nil
}
