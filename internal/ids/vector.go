package ids

import "math"

// Vec3 is a 3D single-precision vector: mesh vertices/normals, world
// offsets, bounds corners.
type Vec3 struct {
	X, Y, Z float32
}

// Vec2 is a 2D single-precision vector: UV coordinates.
type Vec2 struct {
	X, Y float32
}

func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }
func (v Vec3) Scale(s float32) Vec3 {
	return Vec3{v.X * s, v.Y * s, v.Z * s}
}

func (v Vec3) Dot(o Vec3) float32 { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }

func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{
		X: v.Y*o.Z - v.Z*o.Y,
		Y: v.Z*o.X - v.X*o.Z,
		Z: v.X*o.Y - v.Y*o.X,
	}
}

func (v Vec3) LengthSq() float32 { return v.Dot(v) }

func (v Vec3) Length() float32 { return float32(math.Sqrt(float64(v.LengthSq()))) }

// Normalized returns v scaled to unit length; the zero vector is returned
// unchanged rather than dividing by zero.
func (v Vec3) Normalized() Vec3 {
	l := v.Length()
	if l == 0 {
		return v
	}
	return v.Scale(1 / l)
}

func (v Vec3) Min(o Vec3) Vec3 {
	return Vec3{minF(v.X, o.X), minF(v.Y, o.Y), minF(v.Z, o.Z)}
}

func (v Vec3) Max(o Vec3) Vec3 {
	return Vec3{maxF(v.X, o.X), maxF(v.Y, o.Y), maxF(v.Z, o.Z)}
}

func minF(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func maxF(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
