package clash

import (
	"context"

	"github.com/brightforge/modelengine/internal/blob"
	"github.com/brightforge/modelengine/internal/bvh"
	"github.com/brightforge/modelengine/internal/document"
	"github.com/brightforge/modelengine/internal/ids"
	"github.com/brightforge/modelengine/internal/modelerr"
	"github.com/brightforge/modelengine/internal/platform/logger"
	"github.com/brightforge/modelengine/internal/scene/node"
	"github.com/brightforge/modelengine/internal/store"
)

// meshInstance is one mesh reference resolved to a world matrix and
// world-space bounds by the sparse scene load (4.6 step 1).
type meshInstance struct {
	compositeID ids.UUID
	container   string
	uniqueID    ids.UUID
	world       ids.Matrix4
	bounds      ids.Bounds
}

// loadSet performs the sparse scene load for one set (4.6 step 1): for
// every mesh reference, read the minimal fields (parents, matrix, type,
// bounds) of the mesh plus every ancestor transformation, premultiplying
// bottom-up into a single world matrix. No vertex/face/texture payload is
// touched at this stage.
func loadSet(ctx context.Context, db store.DocumentStore, containers map[string]ContainerRef, composites []CompositeObject) ([]meshInstance, error) {
	cache := map[string]node.SparseNode{}
	var out []meshInstance
	for _, co := range composites {
		for _, mr := range co.Meshes {
			cref, ok := containers[mr.Container]
			if !ok {
				return nil, modelerr.New(modelerr.CodeInvalidInput, "clash.loadSet", "unknown container: "+mr.Container, nil)
			}
			coll := cref.Project + store.CollSceneSuffix

			doc, err := db.FindOneByUniqueID(ctx, cref.Database, coll, mr.UniqueID)
			if err != nil {
				return nil, err
			}
			sparse, err := node.ReadSparse(document.NewReader(doc, nil, nil))
			if err != nil {
				return nil, err
			}
			if sparse.Bounds == nil {
				return nil, modelerr.New(modelerr.CodeInvalidInput, "clash.loadSet", "mesh reference is not a mesh or supermesh: "+mr.UniqueID.String(), nil)
			}

			world, err := worldMatrix(ctx, db, cref.Database, coll, mr.Container, sparse.Parents, cache)
			if err != nil {
				return nil, err
			}

			out = append(out, meshInstance{
				compositeID: co.ID,
				container:   mr.Container,
				uniqueID:    mr.UniqueID,
				world:       world,
				bounds:      sparse.Bounds.Transform(world),
			})
		}
	}
	return out, nil
}

// worldMatrix walks parents up to the nearest transformation ancestor and
// recurses, premultiplying bottom-up (4.6 step 1). cache, keyed by
// container+shared id, avoids refetching an ancestor shared by several
// mesh references within the same container. A parent that cannot be
// resolved is skipped rather than treated as an error, since a mesh may
// list non-transformation parents (material, texture) alongside its
// transformation ancestor (3.3's generic "Parents" convention).
func worldMatrix(ctx context.Context, db store.DocumentStore, database, coll, container string, parents []ids.UUID, cache map[string]node.SparseNode) (ids.Matrix4, error) {
	for _, p := range parents {
		key := container + "|" + p.String()
		sparse, ok := cache[key]
		if !ok {
			doc, err := db.FindOneBySharedID(ctx, database, coll, p, "")
			if err != nil {
				continue
			}
			sparse, err = node.ReadSparse(document.NewReader(doc, nil, nil))
			if err != nil {
				return ids.Matrix4{}, err
			}
			cache[key] = sparse
		}
		if sparse.Kind != node.KindTransformation || sparse.Matrix == nil {
			continue
		}
		parentWorld, err := worldMatrix(ctx, db, database, coll, container, sparse.Parents, cache)
		if err != nil {
			return ids.Matrix4{}, err
		}
		return parentWorld.Mul(*sparse.Matrix), nil
	}
	return ids.Identity4(), nil
}

// loadedMesh is one mesh's full geometry, baked into world space, with a
// per-triangle BVH ready for the narrowphase (4.6 steps 4-5).
type loadedMesh struct {
	triangles []ids.Triangle
	bvh       *bvh.BVH
}

// loadMeshTriangles performs the per-pair preparation (4.6 step 4):
// loading the mesh's full geometry (dereferencing any blob-ref payload),
// baking it into world space with the instance's premultiplied matrix,
// and building a per-mesh triangle BVH with a leaf size of one.
func loadMeshTriangles(ctx context.Context, db store.DocumentStore, blobs blob.Store, log *logger.Logger, inst meshInstance, cref ContainerRef) (*loadedMesh, error) {
	coll := cref.Project + store.CollSceneSuffix
	doc, err := db.FindOneByUniqueID(ctx, cref.Database, coll, inst.uniqueID)
	if err != nil {
		return nil, err
	}
	r := document.NewReader(doc, blobs, log)
	n, err := node.Deserialise(ctx, r, doc)
	if err != nil {
		return nil, err
	}

	var mesh node.Mesh
	switch {
	case n.Mesh != nil:
		mesh = *n.Mesh
	case n.Supermesh != nil:
		mesh = n.Supermesh.Mesh
	default:
		return nil, modelerr.New(modelerr.CodeInvalidInput, "clash.loadMeshTriangles", "reference is not a mesh or supermesh: "+inst.uniqueID.String(), nil)
	}

	baked := node.Bake(mesh, inst.world)
	tris := trianglesOf(baked)
	bounds := make([]ids.Bounds, len(tris))
	centroids := make([]ids.Vec3, len(tris))
	for i, t := range tris {
		bounds[i] = t.Bounds()
		centroids[i] = t.Centroid()
	}
	return &loadedMesh{triangles: tris, bvh: bvh.Build(bounds, centroids, 1)}, nil
}

// trianglesOf fan-triangulates every face (triangles pass through
// unchanged; any wider polygon face is split from its first vertex).
// Line-primitive meshes contribute no clash-testable triangles.
func trianglesOf(m node.Mesh) []ids.Triangle {
	if m.Primitive != node.PrimitiveTriangles {
		return nil
	}
	var out []ids.Triangle
	for _, f := range m.Faces {
		if len(f) < 3 {
			continue
		}
		v0 := m.Vertices[f[0]]
		for i := 1; i+1 < len(f); i++ {
			out = append(out, ids.Triangle{A: v0, B: m.Vertices[f[i]], C: m.Vertices[f[i+1]]})
		}
	}
	return out
}
