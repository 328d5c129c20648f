package ids

import "math"

// Triangle is three world-space vertices, the narrowphase primitive of the
// clash pipeline's per-mesh BVHs.
type Triangle struct {
	A, B, C Vec3
}

// Bounds returns the triangle's axis-aligned bounds.
func (t Triangle) Bounds() Bounds {
	return EmptyBounds().Extend(t.A).Extend(t.B).Extend(t.C)
}

// Centroid returns the triangle's centroid, used as the BVH build's split
// key.
func (t Triangle) Centroid() Vec3 {
	return t.A.Add(t.B).Add(t.C).Scale(1.0 / 3.0)
}

// Line is a segment between two points, used to report the shortest
// clearance between two triangles.
type Line struct {
	A, B Vec3
}

// Length returns the segment's length.
func (l Line) Length() float32 {
	return l.B.Sub(l.A).Length()
}

// ClosestSegmentSegment returns the closest points on segments p1p2 and
// p3p4 and the line connecting them. Standard closest-point-between-
// segments solution (robust to parallel/degenerate segments via clamping).
func ClosestSegmentSegment(p1, p2, p3, p4 Vec3) Line {
	d1 := p2.Sub(p1)
	d2 := p4.Sub(p3)
	r := p1.Sub(p3)
	a := float64(d1.Dot(d1))
	e := float64(d2.Dot(d2))
	f := float64(d2.Dot(r))

	const eps = 1e-12
	var s, t float64

	if a <= eps && e <= eps {
		return Line{A: p1, B: p3}
	}
	if a <= eps {
		s = 0
		t = clamp01(f / e)
	} else {
		c := float64(d1.Dot(r))
		if e <= eps {
			t = 0
			s = clamp01(-c / a)
		} else {
			b := float64(d1.Dot(d2))
			denom := a*e - b*b
			if denom != 0 {
				s = clamp01((b*f - c*e) / denom)
			} else {
				s = 0
			}
			t = (b*s + f) / e
			if t < 0 {
				t = 0
				s = clamp01(-c / a)
			} else if t > 1 {
				t = 1
				s = clamp01((b - c) / a)
			}
		}
	}

	closest1 := p1.Add(d1.Scale(float32(s)))
	closest2 := p3.Add(d2.Scale(float32(t)))
	return Line{A: closest1, B: closest2}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ClosestPointOnTriangle returns the point on t closest to p (Ericson,
// "Real-Time Collision Detection" 2004, 5.1.5), walking the barycentric
// Voronoi regions of the triangle rather than projecting onto its plane,
// so it stays correct when the closest feature is an edge or a vertex.
func ClosestPointOnTriangle(p Vec3, t Triangle) Vec3 {
	ab := t.B.Sub(t.A)
	ac := t.C.Sub(t.A)
	ap := p.Sub(t.A)

	d1 := ab.Dot(ap)
	d2 := ac.Dot(ap)
	if d1 <= 0 && d2 <= 0 {
		return t.A
	}

	bp := p.Sub(t.B)
	d3 := ab.Dot(bp)
	d4 := ac.Dot(bp)
	if d3 >= 0 && d4 <= d3 {
		return t.B
	}

	vc := d1*d4 - d3*d2
	if vc <= 0 && d1 >= 0 && d3 <= 0 {
		return t.A.Add(ab.Scale(d1 / (d1 - d3)))
	}

	cp := p.Sub(t.C)
	d5 := ab.Dot(cp)
	d6 := ac.Dot(cp)
	if d6 >= 0 && d5 <= d6 {
		return t.C
	}

	vb := d5*d2 - d1*d6
	if vb <= 0 && d2 >= 0 && d6 <= 0 {
		return t.A.Add(ac.Scale(d2 / (d2 - d6)))
	}

	va := d3*d6 - d5*d4
	if va <= 0 && (d4-d3) >= 0 && (d5-d6) >= 0 {
		w := (d4 - d3) / ((d4 - d3) + (d5 - d6))
		return t.B.Add(t.C.Sub(t.B).Scale(w))
	}

	denom := 1 / (va + vb + vc)
	v := vb * denom
	w := vc * denom
	return t.A.Add(ab.Scale(v)).Add(ac.Scale(w))
}

// ClosestTriangleTriangle returns the shortest segment between two
// triangles (the clash pipeline's Clearance narrowphase, 4.6 step 6, and
// the candidate-pair test PolyDepth's distance query runs at every CCD
// step). Tests all fifteen candidates a true closest-point solution
// requires: the nine edge-pairs plus each triangle's three vertices
// projected onto the other triangle, so a vertex resting over the
// interior of the opposing face (no edge pair sees it) is still found.
func ClosestTriangleTriangle(a, b Triangle) Line {
	edgesA := [3][2]Vec3{{a.A, a.B}, {a.B, a.C}, {a.C, a.A}}
	edgesB := [3][2]Vec3{{b.A, b.B}, {b.B, b.C}, {b.C, b.A}}

	best := Line{}
	bestDist := float32(math.MaxFloat32)
	consider := func(l Line) {
		d := l.B.Sub(l.A).LengthSq()
		if d < bestDist {
			bestDist = d
			best = l
		}
	}

	for _, ea := range edgesA {
		for _, eb := range edgesB {
			consider(ClosestSegmentSegment(ea[0], ea[1], eb[0], eb[1]))
		}
	}
	for _, p := range [3]Vec3{a.A, a.B, a.C} {
		consider(Line{A: p, B: ClosestPointOnTriangle(p, b)})
	}
	for _, p := range [3]Vec3{b.A, b.B, b.C} {
		consider(Line{A: ClosestPointOnTriangle(p, a), B: p})
	}
	return best
}

// TrianglesTouch reports whether two triangles are within eps of each
// other (Hard clash "touching" narrowphase test, 4.6 step 6).
func TrianglesTouch(a, b Triangle, eps float32) (bool, Line) {
	best := ClosestTriangleTriangle(a, b)
	d := best.B.Sub(best.A).LengthSq()
	return float64(d) <= float64(eps)*float64(eps), best
}

// TriangleIntersects reports whether two triangles overlap, by the
// separating axis theorem (Moller, "A Fast Triangle-Triangle Intersection
// Test", 1997): two triangles are disjoint iff some axis among their two
// face normals and the nine pairwise edge cross products separates their
// projections. PolyDepth's Collision classification uses this to tell
// genuine interpenetration (this returns true) apart from mere contact
// (ClosestTriangleTriangle returns a near-zero but non-crossing gap).
func TriangleIntersects(a, b Triangle) bool {
	edgesA := [3]Vec3{a.B.Sub(a.A), a.C.Sub(a.B), a.A.Sub(a.C)}
	edgesB := [3]Vec3{b.B.Sub(b.A), b.C.Sub(b.B), b.A.Sub(b.C)}

	axes := make([]Vec3, 0, 11)
	axes = append(axes, edgesA[0].Cross(edgesA[1]), edgesB[0].Cross(edgesB[1]))
	for _, ea := range edgesA {
		for _, eb := range edgesB {
			axes = append(axes, ea.Cross(eb))
		}
	}

	for _, axis := range axes {
		if axis.LengthSq() < 1e-12 {
			continue
		}
		minA, maxA := projectTriangle(a, axis)
		minB, maxB := projectTriangle(b, axis)
		if maxA < minB || maxB < minA {
			return false
		}
	}
	return true
}

func projectTriangle(t Triangle, axis Vec3) (min, max float32) {
	pa, pb, pc := t.A.Dot(axis), t.B.Dot(axis), t.C.Dot(axis)
	min, max = pa, pa
	for _, v := range [2]float32{pb, pc} {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}
