package clash

import (
	"github.com/brightforge/modelengine/internal/bvh"
	"github.com/brightforge/modelengine/internal/ids"
)

// clearanceNarrowphase finds the closest pair of triangles between two
// meshes (4.6 step 5-6, Clearance): the same distance-query pair
// traversal used at the top level, tracking the best (shortest) line seen
// so far in the closure alongside the running bound it feeds back into
// the traversal's own pruning.
func clearanceNarrowphase(tolerance float32, a, b *loadedMesh) (bool, ids.Line) {
	running := tolerance
	var best ids.Line
	found := false
	bvh.PairTraverseDistance(a.bvh, b.bvh, tolerance, func(ai, bj int) float32 {
		l := ids.ClosestTriangleTriangle(a.triangles[ai], b.triangles[bj])
		d := l.Length()
		if d < running {
			running, best, found = d, l, true
		}
		return d
	})
	return found, best
}

// hardNarrowphase reports whether any triangle pair between the two
// meshes touches within eps (4.6 step 5-6, Hard): the intersect-query pair
// traversal with tau=0 visits every candidate pair whose AABBs overlap at
// all, and the triangle-level touching test refines it.
func hardNarrowphase(eps float32, a, b *loadedMesh) bool {
	any := false
	bvh.PairTraverseIntersect(a.bvh, b.bvh, 0, func(ai, bj int) {
		if any {
			return
		}
		if touch, _ := ids.TrianglesTouch(a.triangles[ai], b.triangles[bj], eps); touch {
			any = true
		}
	})
	return any
}

// accumulator composes every mesh-pair narrowphase hit contributing to one
// (composite A, composite B) pair into a single composite clash (4.6 step
// 7). Clearance keeps the shortest line seen; Hard keeps every contributing
// mesh instance's actual world-space triangles (keyed by instance index, so
// an instance touched by several pairs only contributes its geometry once),
// since PolyDepth needs the real triangle soups, not a bounds union, to
// estimate a penetration depth.
type accumulator struct {
	idA, idB ids.UUID

	hasClearance bool
	bestLine     ids.Line

	hasHard    bool
	trianglesA map[int][]ids.Triangle
	trianglesB map[int][]ids.Triangle
}

func newAccumulator(idA, idB ids.UUID) *accumulator {
	return &accumulator{idA: idA, idB: idB, trianglesA: map[int][]ids.Triangle{}, trianglesB: map[int][]ids.Triangle{}}
}

func (a *accumulator) recordClearance(line ids.Line) {
	if !a.hasClearance || line.Length() < a.bestLine.Length() {
		a.hasClearance = true
		a.bestLine = line
	}
}

func (a *accumulator) recordHard(instA int, trisA []ids.Triangle, instB int, trisB []ids.Triangle) {
	a.hasHard = true
	a.trianglesA[instA] = trisA
	a.trianglesB[instB] = trisB
}

// result builds the composite clash this accumulator represents, if it
// ever recorded a hit (4.6 step 8).
func (a *accumulator) result() (CompositeClash, bool) {
	switch {
	case a.hasClearance:
		positions := []ids.Vec3{a.bestLine.A, a.bestLine.B}
		return CompositeClash{IDA: a.idA, IDB: a.idB, Positions: positions, Fingerprint: fingerprint(a.idA, a.idB, positions)}, true
	case a.hasHard:
		contact, axis, depth := estimatePenetration(flattenTriangles(a.trianglesA), flattenTriangles(a.trianglesB))
		positions := []ids.Vec3{contact, contact.Add(axis.Scale(depth))}
		return CompositeClash{IDA: a.idA, IDB: a.idB, Positions: positions, Fingerprint: fingerprint(a.idA, a.idB, positions)}, true
	default:
		return CompositeClash{}, false
	}
}

func flattenTriangles(byInstance map[int][]ids.Triangle) []ids.Triangle {
	var out []ids.Triangle
	for _, tris := range byInstance {
		out = append(out, tris...)
	}
	return out
}
