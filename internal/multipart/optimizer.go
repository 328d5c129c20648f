// Package multipart implements the supermesh optimizer (4.2): a
// deterministic, pure function of a default scene graph that flattens
// instanced meshes into world-space supermeshes bounded by a vertex
// budget, producing the mesh-mapping and id-map tables the viewer
// consumes. Grounded on the teacher's batch-processing passes in
// internal/jobs (stage-by-stage, pure transform of an input aggregate into
// a derived one) generalised from "video segment batching" to "mesh
// instance batching".
package multipart

import (
	"fmt"
	"math"
	"sort"

	"github.com/brightforge/modelengine/internal/ids"
	"github.com/brightforge/modelengine/internal/modelerr"
	"github.com/brightforge/modelengine/internal/scene/graph"
	"github.com/brightforge/modelengine/internal/scene/node"
)

// Vertex budgets (4.2 step 4, 8 Testable Properties "Vertex budget").
const (
	vertexBudgetTriangles = 65535
	vertexBudgetLines     = 65535 / 4
)

// instance is one (mesh, accumulated world matrix) pair discovered by the
// depth-first walk (4.2 step 1).
type instance struct {
	mesh     *node.Node
	world    ids.Matrix4
	material *node.Node // nil if the mesh carries no material parent
	texture  *node.Node // nil if the mesh carries no texture parent
}

// baked is one instance after step 2, still tagged with its source so
// step 5 can record the original mesh shared id in its mapping entry.
type baked struct {
	mesh   node.Mesh
	source *instance
}

// Result is the output of Optimize: the optimized graph plus the missing
// nodes status bit recorded separately so callers can merge it into the
// default graph's own status without mutating the input.
type Result struct {
	Graph        *graph.Graph
	MissingNodes bool
}

// Optimize walks def from its roots, bakes every mesh instance into world
// space, buckets and packs them into supermeshes, and returns a fresh
// optimized graph whose leaves are those supermeshes (4.2). def is never
// mutated.
func Optimize(def *graph.Graph) (*Result, error) {
	instances := collectInstances(def)

	buckets, bucketOrder := bucketInstances(instances)

	out := graph.New()
	rootID := ids.New()
	rootShared := ids.New()
	out.AddNode(node.NewTransformation(rootID, rootShared, nil, ids.Identity4()))

	texturesByContent := map[string]*node.Node{}
	missing := false

	for _, key := range bucketOrder {
		group := buckets[key]
		bakedMeshes, groupMissing, err := bakeAndSplit(group)
		if err != nil {
			return nil, err
		}
		missing = missing || groupMissing
		if len(bakedMeshes) == 0 {
			continue
		}

		stashMaterial := duplicateMaterial(out, rootShared, group[0].material)
		stashTexture := duplicateTexture(out, rootShared, group[0].texture, texturesByContent)

		budget := vertexBudgetTriangles
		if key.primitive == node.PrimitiveLines {
			budget = vertexBudgetLines
		}
		supermeshes := pack(bakedMeshes, budget, stashMaterial)
		parents := []ids.UUID{rootShared}
		if stashMaterial != ids.Nil {
			parents = append(parents, stashMaterial)
		}
		if stashTexture != ids.Nil {
			parents = append(parents, stashTexture)
		}
		for _, sm := range supermeshes {
			sn := node.NewSupermesh(ids.New(), ids.New(), parents, *sm)
			out.AddNode(sn)
		}
	}

	return &Result{Graph: out, MissingNodes: missing}, nil
}

// collectInstances performs step 1: depth-first walk from every root,
// accumulating the world matrix, visiting children in the order the graph
// stores them (deterministic, matches input order).
func collectInstances(def *graph.Graph) []instance {
	var out []instance
	var walk func(n *node.Node, world ids.Matrix4)
	walk = func(n *node.Node, world ids.Matrix4) {
		if n == nil {
			return
		}
		switch n.Kind {
		case node.KindTransformation:
			world = world.Mul(n.Transformation.Matrix)
		case node.KindMesh:
			mat, tex := materialAndTexture(def, n)
			out = append(out, instance{mesh: n, world: world, material: mat, texture: tex})
			return
		default:
			return
		}
		for _, child := range def.Children(n.SharedID) {
			walk(child, world)
		}
	}
	for _, rootUID := range def.Roots {
		if n, ok := def.NodeByUnique(rootUID); ok {
			walk(n, ids.Identity4())
		}
	}
	return out
}

// materialAndTexture resolves a mesh's associated material/texture nodes
// via its Parents list: 3.3 defines Parents generically as "shared ids",
// not restricted to transformation ancestors, so a mesh may list a
// material and/or texture node as an additional parent alongside its
// transformation chain.
func materialAndTexture(g *graph.Graph, mesh *node.Node) (*node.Node, *node.Node) {
	var mat, tex *node.Node
	for _, p := range mesh.Parents {
		n, ok := g.NodeBySharedID(p)
		if !ok {
			continue
		}
		switch n.Kind {
		case node.KindMaterial:
			mat = n
		case node.KindTexture:
			tex = n
		}
	}
	return mat, tex
}

// bucketKey groups baked meshes per step 3: (material-group fingerprint,
// primitive kind, transparency flag, textured flag).
type bucketKey struct {
	materialFP  string
	primitive   node.PrimitiveKind
	transparent bool
	textured    bool
}

func bucketInstances(instances []instance) (map[bucketKey][]*instance, []bucketKey) {
	buckets := map[bucketKey][]*instance{}
	var order []bucketKey
	for i := range instances {
		inst := &instances[i]
		key := bucketKey{
			materialFP:  materialFingerprint(inst.material),
			primitive:   inst.mesh.Mesh.Primitive,
			transparent: isTransparent(inst.material),
			textured:    inst.texture != nil,
		}
		if _, ok := buckets[key]; !ok {
			order = append(order, key)
		}
		buckets[key] = append(buckets[key], inst)
	}
	return buckets, order
}

func isTransparent(mat *node.Node) bool {
	if mat == nil || mat.Material == nil {
		return false
	}
	return mat.Material.IsTransparent()
}

// materialFingerprint derives a stable grouping key from a material's
// content so two distinct material node instances with identical values
// are co-bucketable (4.2 step 3: "two meshes are co-bucketable iff their
// fingerprints match").
func materialFingerprint(mat *node.Node) string {
	if mat == nil || mat.Material == nil {
		return "no-material"
	}
	m := mat.Material
	parts := make([]string, 0, 16)
	appendChannel := func(c [4]float64) {
		for _, v := range c {
			parts = append(parts, floatKey(v))
		}
	}
	appendChannel(m.Diffuse)
	appendChannel(m.Specular)
	appendChannel(m.Emissive)
	appendChannel(m.Ambient)
	parts = append(parts,
		floatKey(m.Opacity), floatKey(m.Shininess), floatKey(m.ShininessStrength), floatKey(m.LineWeight),
		fmt.Sprintf("%t", m.TwoSided), fmt.Sprintf("%t", m.Wireframe),
	)
	return ids.Fingerprint(parts...)
}

func floatKey(v float64) string {
	if math.IsNaN(v) {
		return "nan"
	}
	return fmt.Sprintf("%.9g", v)
}

// bakeAndSplit performs step 2 for every instance in a bucket, then splits
// any single baked mesh whose vertex count exceeds the arity's budget
// along face-group boundaries (4.2 Failure: "a mesh that cannot be split
// (one face > budget) is a fatal input error").
func bakeAndSplit(group []*instance) ([]baked, bool, error) {
	budget := vertexBudgetTriangles
	if len(group) > 0 && group[0].mesh.Mesh.Primitive == node.PrimitiveLines {
		budget = vertexBudgetLines
	}

	var out []baked
	missing := false
	for _, inst := range group {
		m := inst.mesh.Mesh
		if m.Primitive != node.PrimitiveTriangles && m.Primitive != node.PrimitiveLines {
			missing = true
			continue
		}
		bakedMesh := node.Bake(*m, inst.world)
		if len(bakedMesh.Vertices) <= budget {
			out = append(out, baked{mesh: bakedMesh, source: inst})
			continue
		}
		pieces, err := splitMesh(bakedMesh, budget)
		if err != nil {
			return nil, missing, err
		}
		for _, p := range pieces {
			out = append(out, baked{mesh: p, source: inst})
		}
	}
	return out, missing, nil
}

// splitMesh divides m's faces into groups whose cumulative distinct-vertex
// count stays within budget, each group re-indexed into its own
// self-contained Mesh. A single face touching more distinct vertices than
// budget cannot be split and is a fatal input error.
func splitMesh(m node.Mesh, budget int) ([]node.Mesh, error) {
	var out []node.Mesh
	var faceGroup [][]int32
	remap := map[int32]int32{}
	var vertices []ids.Vec3
	var normals []ids.Vec3
	hasNormals := m.Normals != nil

	flush := func() {
		if len(faceGroup) == 0 {
			return
		}
		bounds := ids.EmptyBounds()
		for _, v := range vertices {
			bounds = bounds.Extend(v)
		}
		piece := node.Mesh{
			Vertices:  vertices,
			Faces:     faceGroup,
			Primitive: m.Primitive,
			Bounds:    bounds,
		}
		if hasNormals {
			piece.Normals = normals
		}
		out = append(out, piece)
		faceGroup = nil
		remap = map[int32]int32{}
		vertices = nil
		normals = nil
	}

	for _, face := range m.Faces {
		if len(face) > budget {
			return nil, modelerr.New(modelerr.CodeInvalidInput, "multipart.splitMesh",
				"a single face exceeds the vertex budget and cannot be split", nil)
		}
		newCount := 0
		for _, vi := range face {
			if _, ok := remap[vi]; !ok {
				newCount++
			}
		}
		if len(vertices)+newCount > budget {
			flush()
		}
		newFace := make([]int32, len(face))
		for i, vi := range face {
			ni, ok := remap[vi]
			if !ok {
				ni = int32(len(vertices))
				remap[vi] = ni
				vertices = append(vertices, m.Vertices[vi])
				if hasNormals {
					normals = append(normals, m.Normals[vi])
				}
			}
			newFace[i] = ni
		}
		faceGroup = append(faceGroup, newFace)
	}
	flush()
	return out, nil
}

// pack performs steps 4-6: greedily append baked meshes into an open
// supermesh until the vertex budget would be exceeded, re-indexing into
// concatenated buffers and recording a mesh_mapping + id-map entry per
// contained piece.
func pack(bakedMeshes []baked, vertexBudget int, stashMaterial ids.UUID) []*node.Supermesh {
	var result []*node.Supermesh
	var current *node.Supermesh

	closeCurrent := func() {
		if current == nil {
			return
		}
		sort.SliceStable(current.MeshMap, func(i, j int) bool {
			return current.MeshMap[i].VertexStart < current.MeshMap[j].VertexStart
		})
		result = append(result, current)
		current = nil
	}

	for _, b := range bakedMeshes {
		if current != nil && len(current.Vertices)+len(b.mesh.Vertices) > vertexBudget {
			closeCurrent()
		}
		if current == nil {
			current = &node.Supermesh{Mesh: node.Mesh{Primitive: b.mesh.Primitive, Bounds: ids.EmptyBounds()}}
		}

		vertexStart := len(current.Vertices)
		triangleFrom := len(current.Faces)
		denseID := float32(len(current.MeshMap))

		current.Vertices = append(current.Vertices, b.mesh.Vertices...)
		if b.mesh.Normals != nil {
			current.Normals = append(current.Normals, b.mesh.Normals...)
		}
		for i, channel := range b.mesh.UVs {
			for len(current.UVs) <= i {
				current.UVs = append(current.UVs, nil)
			}
			current.UVs[i] = append(current.UVs[i], channel...)
		}
		for _, face := range b.mesh.Faces {
			remapped := make([]int32, len(face))
			for i, vi := range face {
				remapped[i] = vi + int32(vertexStart)
			}
			current.Faces = append(current.Faces, remapped)
		}
		for range b.mesh.Vertices {
			current.IDMap = append(current.IDMap, denseID)
		}
		current.Bounds = current.Bounds.Union(b.mesh.Bounds)

		current.MeshMap = append(current.MeshMap, node.MeshMapping{
			MeshID:       b.source.mesh.SharedID,
			MaterialID:   stashMaterial,
			VertexStart:  vertexStart,
			VertexCount:  len(b.mesh.Vertices),
			TriangleFrom: triangleFrom,
			TriangleTo:   len(current.Faces),
			Min:          b.mesh.Bounds.Min,
			Max:          b.mesh.Bounds.Max,
		})
	}
	closeCurrent()
	return result
}

// duplicateMaterial emits a fresh stash-local material node (4.2 step 7:
// "duplicated material... nodes, parented directly under the optimized
// root") carrying src's values, or the zero UUID if the bucket has no
// material.
func duplicateMaterial(out *graph.Graph, rootShared ids.UUID, src *node.Node) ids.UUID {
	if src == nil || src.Material == nil {
		return ids.Nil
	}
	shared := ids.New()
	mat := *src.Material
	n := &node.Node{
		Base:     node.Base{UniqueID: ids.New(), SharedID: shared, Kind: node.KindMaterial, Parents: []ids.UUID{rootShared}},
		Material: &mat,
	}
	out.AddNode(n)
	return shared
}

// duplicateTexture emits (or reuses) a stash-local texture node, deduped
// by binary content across the whole optimizer run (4.2 step 7: "Texture
// nodes are deduplicated by binary content").
func duplicateTexture(out *graph.Graph, rootShared ids.UUID, src *node.Node, seen map[string]*node.Node) ids.UUID {
	if src == nil || src.Texture == nil {
		return ids.Nil
	}
	key := ids.Fingerprint(string(src.Texture.Bytes))
	if existing, ok := seen[key]; ok {
		return existing.SharedID
	}
	shared := ids.New()
	tex := *src.Texture
	n := &node.Node{
		Base:    node.Base{UniqueID: ids.New(), SharedID: shared, Kind: node.KindTexture, Parents: []ids.UUID{rootShared}},
		Texture: &tex,
	}
	out.AddNode(n)
	seen[key] = n
	return shared
}
