package clash_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brightforge/modelengine/internal/clash"
	"github.com/brightforge/modelengine/internal/ids"
	"github.com/brightforge/modelengine/internal/platform/logger"
	"github.com/brightforge/modelengine/internal/scene/node"
	"github.com/brightforge/modelengine/internal/store"
	"github.com/brightforge/modelengine/internal/store/memstore"
)

func testLogger(t *testing.T) *logger.Logger {
	log, err := logger.New("test")
	require.NoError(t, err)
	return log
}

// putMesh persists a standalone mesh node (no transformation parent, so its
// world matrix is the identity) into database/project's scene collection
// and returns its unique id.
func putMesh(t *testing.T, db store.DocumentStore, database, project string, mesh node.Mesh) ids.UUID {
	n := node.NewMesh(ids.New(), ids.New(), nil, mesh)
	doc := node.Serialise(n, database, project)
	_, err := db.UpsertDocument(context.Background(), database, project+store.CollSceneSuffix, doc, true)
	require.NoError(t, err)
	return n.UniqueID
}

func triangleMesh(verts [3]ids.Vec3) node.Mesh {
	b := ids.EmptyBounds()
	for _, v := range verts {
		b = b.Extend(v)
	}
	return node.Mesh{
		Vertices:  verts[:],
		Faces:     [][]int32{{0, 1, 2}},
		Primitive: node.PrimitiveTriangles,
		Bounds:    b,
	}
}

// cubeMesh returns a closed unit cube (12 triangles, two per face) with min
// corner at origin, translated by offset.
func cubeMesh(offset ids.Vec3) node.Mesh {
	corners := [8]ids.Vec3{
		{X: 0, Y: 0, Z: 0}, {X: 1, Y: 0, Z: 0}, {X: 1, Y: 1, Z: 0}, {X: 0, Y: 1, Z: 0},
		{X: 0, Y: 0, Z: 1}, {X: 1, Y: 0, Z: 1}, {X: 1, Y: 1, Z: 1}, {X: 0, Y: 1, Z: 1},
	}
	verts := make([]ids.Vec3, 8)
	for i, c := range corners {
		verts[i] = c.Add(offset)
	}
	faces := [][]int32{
		{0, 1, 2}, {0, 2, 3}, // bottom
		{4, 6, 5}, {4, 7, 6}, // top
		{0, 4, 5}, {0, 5, 1}, // front
		{3, 2, 6}, {3, 6, 7}, // back
		{0, 3, 7}, {0, 7, 4}, // left
		{1, 5, 6}, {1, 6, 2}, // right
	}
	b := ids.EmptyBounds()
	for _, v := range verts {
		b = b.Extend(v)
	}
	return node.Mesh{Vertices: verts, Faces: faces, Primitive: node.PrimitiveTriangles, Bounds: b}
}

func newContainer(t *testing.T) (store.DocumentStore, clash.ContainerRef, string) {
	mem := memstore.New()
	db := mem.Handler()
	ref := clash.ContainerRef{Database: "db", Project: "proj"}
	return db, ref, "c1"
}

func singleMeshComposite(t *testing.T, db store.DocumentStore, ref clash.ContainerRef, container string, mesh node.Mesh) clash.CompositeObject {
	uid := putMesh(t, db, ref.Database, ref.Project, mesh)
	return clash.CompositeObject{
		ID:     ids.New(),
		Meshes: []clash.MeshRef{{Container: container, UniqueID: uid}},
	}
}

// TestRunClearanceRespectsTolerance reproduces 8's worked scenario: two
// single-triangle composites in parallel planes 0.5 apart. A tolerance of
// 1.0 finds the clash with the triangles' true separation; a tolerance of
// 0.25 finds nothing, since it never bounds the pair.
func TestRunClearanceRespectsTolerance(t *testing.T) {
	db, ref, container := newContainer(t)
	containers := map[string]clash.ContainerRef{container: ref}

	low := triangleMesh([3]ids.Vec3{{X: 0, Y: 0, Z: 0}, {X: 1, Y: 0, Z: 0}, {X: 0, Y: 1, Z: 0}})
	high := triangleMesh([3]ids.Vec3{{X: 0, Y: 0, Z: 0.5}, {X: 1, Y: 0, Z: 0.5}, {X: 0, Y: 1, Z: 0.5}})

	setA := []clash.CompositeObject{singleMeshComposite(t, db, ref, container, low)}
	setB := []clash.CompositeObject{singleMeshComposite(t, db, ref, container, high)}

	report, err := clash.Run(context.Background(), db, nil, testLogger(t), clash.Config{
		Type: clash.TypeClearance, Tolerance: 1.0, SetA: setA, SetB: setB, Containers: containers,
	})
	require.NoError(t, err)
	require.Len(t, report.Clashes, 1)
	require.InDelta(t, 0.5, report.Clashes[0].Positions[1].Sub(report.Clashes[0].Positions[0]).Length(), 1e-4)

	report, err = clash.Run(context.Background(), db, nil, testLogger(t), clash.Config{
		Type: clash.TypeClearance, Tolerance: 0.25, SetA: setA, SetB: setB, Containers: containers,
	})
	require.NoError(t, err)
	require.Empty(t, report.Clashes)
}

// TestRunHardDetectsCrossingTriangles exercises the Hard path: two
// triangles whose planes (z=0 and y=0) cross through each other's
// interior are reported as touching.
func TestRunHardDetectsCrossingTriangles(t *testing.T) {
	db, ref, container := newContainer(t)
	containers := map[string]clash.ContainerRef{container: ref}

	flat := triangleMesh([3]ids.Vec3{{X: -1, Y: -1, Z: 0}, {X: 1, Y: -1, Z: 0}, {X: 0, Y: 1, Z: 0}})
	upright := triangleMesh([3]ids.Vec3{{X: -1, Y: 0, Z: -1}, {X: 1, Y: 0, Z: -1}, {X: 0, Y: 0, Z: 1}})

	setA := []clash.CompositeObject{singleMeshComposite(t, db, ref, container, flat)}
	setB := []clash.CompositeObject{singleMeshComposite(t, db, ref, container, upright)}

	report, err := clash.Run(context.Background(), db, nil, testLogger(t), clash.Config{
		Type: clash.TypeHard, Tolerance: 1e-4, SetA: setA, SetB: setB, Containers: containers,
	})
	require.NoError(t, err)
	require.Len(t, report.Clashes, 1)
}

// TestRunHardReportsPenetrationVector reproduces 8's worked scenario 6: two
// unit cubes, the second offset by (0.5, 0, 0) so it overlaps the first by
// half its width. The Hard report's penetration vector (Positions[1] -
// Positions[0]) must point along X with magnitude at least 0.5 - eps.
func TestRunHardReportsPenetrationVector(t *testing.T) {
	db, ref, container := newContainer(t)
	containers := map[string]clash.ContainerRef{container: ref}

	cubeA := cubeMesh(ids.Vec3{})
	cubeB := cubeMesh(ids.Vec3{X: 0.5})

	setA := []clash.CompositeObject{singleMeshComposite(t, db, ref, container, cubeA)}
	setB := []clash.CompositeObject{singleMeshComposite(t, db, ref, container, cubeB)}

	report, err := clash.Run(context.Background(), db, nil, testLogger(t), clash.Config{
		Type: clash.TypeHard, Tolerance: 1e-4, SetA: setA, SetB: setB, Containers: containers,
	})
	require.NoError(t, err)
	require.Len(t, report.Clashes, 1)

	positions := report.Clashes[0].Positions
	require.Len(t, positions, 2)
	penetration := positions[1].Sub(positions[0])
	require.GreaterOrEqual(t, float64(penetration.Length()), 0.5-1e-2)

	direction := penetration.Normalized()
	require.InDelta(t, 1.0, math.Abs(float64(direction.X)), 0.05)
	require.InDelta(t, 0.0, float64(direction.Y), 0.05)
	require.InDelta(t, 0.0, float64(direction.Z), 0.05)
}

// TestRunIsSymmetricUnderSetSwap reproduces 8's Symmetry property: swapping
// setA and setB produces the same fingerprint for the same pair.
func TestRunIsSymmetricUnderSetSwap(t *testing.T) {
	db, ref, container := newContainer(t)
	containers := map[string]clash.ContainerRef{container: ref}

	flat := triangleMesh([3]ids.Vec3{{X: -1, Y: -1, Z: 0}, {X: 1, Y: -1, Z: 0}, {X: 0, Y: 1, Z: 0}})
	upright := triangleMesh([3]ids.Vec3{{X: -1, Y: 0, Z: -1}, {X: 1, Y: 0, Z: -1}, {X: 0, Y: 0, Z: 1}})

	compA := singleMeshComposite(t, db, ref, container, flat)
	compB := singleMeshComposite(t, db, ref, container, upright)

	forward, err := clash.Run(context.Background(), db, nil, testLogger(t), clash.Config{
		Type: clash.TypeHard, Tolerance: 1e-4,
		SetA: []clash.CompositeObject{compA}, SetB: []clash.CompositeObject{compB}, Containers: containers,
	})
	require.NoError(t, err)
	require.Len(t, forward.Clashes, 1)

	swapped, err := clash.Run(context.Background(), db, nil, testLogger(t), clash.Config{
		Type: clash.TypeHard, Tolerance: 1e-4,
		SetA: []clash.CompositeObject{compB}, SetB: []clash.CompositeObject{compA}, Containers: containers,
	})
	require.NoError(t, err)
	require.Len(t, swapped.Clashes, 1)

	require.Equal(t, forward.Clashes[0].Fingerprint, swapped.Clashes[0].Fingerprint)
}

// TestRunNoSelfClashWithinASet reproduces 8's "no self-clash within a set"
// property: two overlapping composites both placed in setA, with setB
// empty, never get compared against each other.
func TestRunNoSelfClashWithinASet(t *testing.T) {
	db, ref, container := newContainer(t)
	containers := map[string]clash.ContainerRef{container: ref}

	flat := triangleMesh([3]ids.Vec3{{X: -1, Y: -1, Z: 0}, {X: 1, Y: -1, Z: 0}, {X: 0, Y: 1, Z: 0}})
	upright := triangleMesh([3]ids.Vec3{{X: -1, Y: 0, Z: -1}, {X: 1, Y: 0, Z: -1}, {X: 0, Y: 0, Z: 1}})

	setA := []clash.CompositeObject{
		singleMeshComposite(t, db, ref, container, flat),
		singleMeshComposite(t, db, ref, container, upright),
	}

	report, err := clash.Run(context.Background(), db, nil, testLogger(t), clash.Config{
		Type: clash.TypeHard, Tolerance: 1e-4, SetA: setA, SetB: nil, Containers: containers,
	})
	require.NoError(t, err)
	require.Empty(t, report.Clashes)
}
