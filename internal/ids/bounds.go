package ids

// Bounds is an axis-aligned bounding box. The zero value is not a valid
// bounds (Min > Max componentwise is meaningless); use EmptyBounds to seed
// an accumulator.
type Bounds struct {
	Min, Max Vec3
}

// EmptyBounds returns a bounds primed for Extend: Min at +inf, Max at -inf,
// so the first Extend call establishes real values.
func EmptyBounds() Bounds {
	const inf = float32(3.0e38)
	return Bounds{Min: Vec3{inf, inf, inf}, Max: Vec3{-inf, -inf, -inf}}
}

// Valid reports whether min <= max componentwise (3.3 bounds invariant).
func (b Bounds) Valid() bool {
	return b.Min.X <= b.Max.X && b.Min.Y <= b.Max.Y && b.Min.Z <= b.Max.Z
}

// Extend grows the bounds to include p.
func (b Bounds) Extend(p Vec3) Bounds {
	return Bounds{Min: b.Min.Min(p), Max: b.Max.Max(p)}
}

// Union returns the bounds enclosing both b and o.
func (b Bounds) Union(o Bounds) Bounds {
	return Bounds{Min: b.Min.Min(o.Min), Max: b.Max.Max(o.Max)}
}

// Center returns the midpoint of the bounds.
func (b Bounds) Center() Vec3 {
	return b.Min.Add(b.Max).Scale(0.5)
}

// Diagonal returns Max - Min.
func (b Bounds) Diagonal() Vec3 {
	return b.Max.Sub(b.Min)
}

// SurfaceArea returns the surface area, used by the BVH's SAH cost function.
func (b Bounds) SurfaceArea() float32 {
	d := b.Diagonal()
	if d.X < 0 || d.Y < 0 || d.Z < 0 {
		return 0
	}
	return 2 * (d.X*d.Y + d.Y*d.Z + d.Z*d.X)
}

// Transform applies m to every corner of b and returns the bounds of the
// transformed corners (conservative re-bound after a non-axis-aligned
// transform).
func (b Bounds) Transform(m Matrix4) Bounds {
	corners := [8]Vec3{
		{b.Min.X, b.Min.Y, b.Min.Z}, {b.Max.X, b.Min.Y, b.Min.Z},
		{b.Min.X, b.Max.Y, b.Min.Z}, {b.Max.X, b.Max.Y, b.Min.Z},
		{b.Min.X, b.Min.Y, b.Max.Z}, {b.Max.X, b.Min.Y, b.Max.Z},
		{b.Min.X, b.Max.Y, b.Max.Z}, {b.Max.X, b.Max.Y, b.Max.Z},
	}
	out := EmptyBounds()
	for _, c := range corners {
		out = out.Extend(m.TransformPoint(c))
	}
	return out
}

// DistanceSqTo returns the squared distance between the closest points of
// b and o (0 if they overlap), used by the BVH distance-query pair
// traversal operator.
func (b Bounds) DistanceSqTo(o Bounds) float32 {
	d := float32(0)
	for axis := 0; axis < 3; axis++ {
		bMin, bMax := component(b.Min, axis), component(b.Max, axis)
		oMin, oMax := component(o.Min, axis), component(o.Max, axis)
		var gap float32
		switch {
		case oMin > bMax:
			gap = oMin - bMax
		case bMin > oMax:
			gap = bMin - oMax
		default:
			gap = 0
		}
		d += gap * gap
	}
	return d
}

func (b Bounds) overlapWith(o Bounds) (Bounds, bool) {
	min := b.Min.Max(o.Min)
	max := b.Max.Min(o.Max)
	if min.X > max.X || min.Y > max.Y || min.Z > max.Z {
		return Bounds{}, false
	}
	return Bounds{Min: min, Max: max}, true
}

// OverlapDiagonalSqWith returns the squared diagonal length of the
// intersection of b and o, and whether they overlap at all.
func (b Bounds) OverlapDiagonalSqWith(o Bounds) (float32, bool) {
	ov, ok := b.overlapWith(o)
	if !ok {
		return 0, false
	}
	return ov.Diagonal().LengthSq(), true
}

func component(v Vec3, axis int) float32 {
	switch axis {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}
