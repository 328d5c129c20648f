package clash

import (
	"math"

	"github.com/brightforge/modelengine/internal/bvh"
	"github.com/brightforge/modelengine/internal/ids"
)

// polyDepthIterations bounds the conservative-advancement walk (4.6 step 7:
// PolyDepth "can run for as long or as little as needed"); the walk also
// exits early once it converges on a contact configuration, so this only
// caps the pathological case of a walk that never quite reaches one.
const polyDepthIterations = 48

// polyDepthEpsilon is the distance below which two triangle sets are
// treated as touching rather than still separated. It is a fixed
// constant, independent of the configured Tolerance that the Hard
// narrowphase's touching test uses.
const polyDepthEpsilon = 1e-4

// polyDepth estimates the penetration depth between two triangle soups
// using the PolyDepth iterative contact-space projection algorithm (Je,
// Tang, Lee, Lee, Kim, "PolyDepth: Real-time Penetration Depth Computation
// using Iterative Contact-Space Projection", ACM ToG 2012), restricted to
// translation-only motion the way the reference implementation restricts
// it ("we do not consider rotations"). Starting from a configuration qs
// where a translated copy of a is certainly free of b, it walks the
// translation back toward the identity configuration (a's actual pose) by
// conservative-advancement CCD, stopping the instant it reaches contact;
// the remaining offset from identity is the penetration vector.
type polyDepth struct {
	a, b       []ids.Triangle
	bvhA, bvhB *bvh.BVH
	qs, qt     ids.Vec3
}

func newPolyDepth(a, b []ids.Triangle) *polyDepth {
	pd := &polyDepth{
		a:    a,
		b:    b,
		bvhA: bvh.Build(boundsOfTriangles(a), centroidsOfTriangles(a), 1),
		bvhB: bvh.Build(boundsOfTriangles(b), centroidsOfTriangles(b), 1),
	}
	pd.qs = pd.findInitialFreeConfiguration()
	pd.qt = pd.qs
	return pd
}

func boundsOfTriangles(ts []ids.Triangle) []ids.Bounds {
	out := make([]ids.Bounds, len(ts))
	for i, t := range ts {
		out[i] = t.Bounds()
	}
	return out
}

func centroidsOfTriangles(ts []ids.Triangle) []ids.Vec3 {
	out := make([]ids.Vec3, len(ts))
	for i, t := range ts {
		out[i] = t.Centroid()
	}
	return out
}

// findInitialFreeConfiguration translates a's root bounds out of b's along
// the minimum-overlap axis, the seed RepoPolyDepth::findInitialFreeConfiguration
// uses so the CCD walk in iterate is guaranteed to start collision-free.
func (pd *polyDepth) findInitialFreeConfiguration() ids.Vec3 {
	if len(pd.bvhA.Nodes) == 0 || len(pd.bvhB.Nodes) == 0 {
		return ids.Vec3{}
	}
	boundsA := pd.bvhA.Nodes[pd.bvhA.Root()].Bounds
	boundsB := pd.bvhB.Nodes[pd.bvhB.Root()].Bounds
	axis, depth := minimumSeparatingAxis(boundsA, boundsB)
	if depth <= 0 {
		return ids.Vec3{}
	}
	return axis.Scale(depth * 1.05)
}

// minimumSeparatingAxis returns the axis and distance of least overlap
// between two AABBs, oriented to point from b's center toward a's center
// (the direction that separates a from b).
func minimumSeparatingAxis(a, b ids.Bounds) (ids.Vec3, float32) {
	min := ids.Vec3{X: maxF(a.Min.X, b.Min.X), Y: maxF(a.Min.Y, b.Min.Y), Z: maxF(a.Min.Z, b.Min.Z)}
	max := ids.Vec3{X: minF(a.Max.X, b.Max.X), Y: minF(a.Max.Y, b.Max.Y), Z: minF(a.Max.Z, b.Max.Z)}
	if min.X > max.X || min.Y > max.Y || min.Z > max.Z {
		return ids.Vec3{}, 0
	}
	ext := ids.Vec3{X: max.X - min.X, Y: max.Y - min.Y, Z: max.Z - min.Z}

	axis, depth := ids.Vec3{X: 1}, ext.X
	if ext.Y < depth {
		axis, depth = ids.Vec3{Y: 1}, ext.Y
	}
	if ext.Z < depth {
		axis, depth = ids.Vec3{Z: 1}, ext.Z
	}

	toward := a.Center().Sub(b.Center())
	if dot(axis, toward) < 0 {
		axis = axis.Scale(-1)
	}
	return axis, depth
}

// refitA rebuilds bvhA's leaf bounds under translation q, the bottom-up
// refit (4.5) RepoPolyDepth::BvhRefitter performs before every query against
// a moved configuration.
func (pd *polyDepth) refitA(q ids.Vec3) {
	pd.bvhA.Refit(func(prims []int) ids.Bounds {
		out := ids.EmptyBounds()
		for _, i := range prims {
			out = out.Union(translateTriangle(pd.a[i], q).Bounds())
		}
		return out
	})
}

func translateTriangle(t ids.Triangle, q ids.Vec3) ids.Triangle {
	return ids.Triangle{A: t.A.Add(q), B: t.B.Add(q), C: t.C.Add(q)}
}

// distance returns the minimum distance between a translated by q and b,
// refitting bvhA first so the broadphase bound reflects the moved
// configuration.
func (pd *polyDepth) distance(q ids.Vec3) float32 {
	pd.refitA(q)
	bound := boundsDiagonal(pd.bvhA, pd.bvhB)
	return bvh.PairTraverseDistance(pd.bvhA, pd.bvhB, bound, func(ai, bj int) float32 {
		ta := translateTriangle(pd.a[ai], q)
		return ids.ClosestTriangleTriangle(ta, pd.b[bj]).Length()
	})
}

func boundsDiagonal(a, b *bvh.BVH) float32 {
	if len(a.Nodes) == 0 || len(b.Nodes) == 0 {
		return 0
	}
	u := a.Nodes[a.Root()].Bounds.Union(b.Nodes[b.Root()].Bounds)
	return u.Diagonal().Length() + 1
}

// intersects reports whether a translated by q genuinely interpenetrates b
// (rather than merely touching), by the separating-axis test, run over
// every candidate pair the broadphase still considers overlapping.
func (pd *polyDepth) intersects(q ids.Vec3) bool {
	pd.refitA(q)
	found := false
	bvh.PairTraverseIntersect(pd.bvhA, pd.bvhB, 0, func(ai, bj int) {
		if found {
			return
		}
		ta := translateTriangle(pd.a[ai], q)
		if ids.TriangleIntersects(ta, pd.b[bj]) {
			found = true
		}
	})
	return found
}

// iterate walks qt from qs toward the identity configuration by
// conservative-advancement CCD (4.6 step 7): each step advances by exactly
// the current minimum distance, the largest translation guaranteed not to
// introduce a new collision, stopping as soon as that distance drops to
// (near) zero. The walk never crosses into collision: if it were to land
// inside b's volume it will have stopped at the contact configuration one
// step earlier.
func (pd *polyDepth) iterate(n int) {
	q := pd.qs
	target := ids.Vec3{}
	for i := 0; i < n; i++ {
		delta := target.Sub(q)
		dist := delta.Length()
		if dist <= polyDepthEpsilon {
			q = target
			break
		}
		d := pd.distance(q)
		if d <= polyDepthEpsilon {
			if pd.intersects(q) {
				// A previous conservative step overshot by less than
				// polyDepthEpsilon; back off along the direction just
				// walked rather than report a colliding contact.
				q = q.Sub(delta.Scale(polyDepthEpsilon / dist))
			}
			break
		}
		step := d
		if step > dist {
			step = dist
		}
		q = q.Add(delta.Scale(step / dist))
	}
	pd.qt = q
}

// penetrationVector returns the direction and magnitude of the offset
// still separating qt from the identity configuration: since iterate
// stopped at the first contact reached while walking from the free
// configuration qs toward identity, this is exactly how far a must move to
// escape b from its actual (identity) pose.
func (pd *polyDepth) penetrationVector() (ids.Vec3, float32) {
	mag := pd.qt.Length()
	if mag <= polyDepthEpsilon {
		return ids.Vec3{}, 0
	}
	return pd.qt.Scale(1 / mag), mag
}

// contactPoint returns the midpoint of the closest pair of triangles at
// the converged contact configuration qt, reported as Positions[0] of a
// Hard CompositeClash.
func (pd *polyDepth) contactPoint() ids.Vec3 {
	pd.refitA(pd.qt)
	bound := boundsDiagonal(pd.bvhA, pd.bvhB)
	var best ids.Line
	bestD := float32(math.MaxFloat32)
	bvh.PairTraverseDistance(pd.bvhA, pd.bvhB, bound, func(ai, bj int) float32 {
		ta := translateTriangle(pd.a[ai], pd.qt)
		l := ids.ClosestTriangleTriangle(ta, pd.b[bj])
		d := l.Length()
		if d < bestD {
			bestD = d
			best = l
		}
		return d
	})
	return best.A.Add(best.B).Scale(0.5)
}

// estimatePenetration runs PolyDepth to completion over every triangle
// contributing to a Hard composite clash (4.6 step 7: "PolyDepth iterative
// contact-space projection... over all contributing triangles") and
// returns a contact point plus penetration direction and depth.
func estimatePenetration(a, b []ids.Triangle) (contact, axis ids.Vec3, depth float32) {
	if len(a) == 0 || len(b) == 0 {
		return ids.Vec3{}, ids.Vec3{}, 0
	}
	pd := newPolyDepth(a, b)
	pd.iterate(polyDepthIterations)
	axis, depth = pd.penetrationVector()
	contact = pd.contactPoint()
	return contact, axis, depth
}

func dot(a, b ids.Vec3) float32 { return a.X*b.X + a.Y*b.Y + a.Z*b.Z }

func maxF(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

func minF(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}
