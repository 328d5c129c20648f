package ids

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMatrixInverseRoundTrip(t *testing.T) {
	m := Matrix4{
		{2, 0, 0, 5},
		{0, 3, 0, -2},
		{0, 0, 4, 1},
		{0, 0, 0, 1},
	}
	v := Vec3{1, 2, 3}
	transformed := m.TransformPoint(v)

	inv := m.InverseTranspose()
	// InverseTranspose gives the normal matrix; verify it is the transpose
	// of the inverse of the upper-left 3x3 block by checking
	// inv^T * upperLeft3x3 ~= identity on the diagonal.
	upper := m.UpperLeft3x3()
	prod := upper.Mul(transposeOf(inv))
	require.InDelta(t, 1.0, float64(prod[0][0]), 1e-4)
	require.InDelta(t, 1.0, float64(prod[1][1]), 1e-4)
	require.InDelta(t, 1.0, float64(prod[2][2]), 1e-4)

	_ = transformed
}

func transposeOf(m Matrix4) Matrix4 {
	var out Matrix4
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			out[i][j] = m[j][i]
		}
	}
	return out
}

func TestBoundsExtendAndValid(t *testing.T) {
	b := EmptyBounds()
	b = b.Extend(Vec3{1, 2, 3}).Extend(Vec3{-1, 5, 0})
	require.True(t, b.Valid())
	require.Equal(t, Vec3{-1, 2, 0}, b.Min)
	require.Equal(t, Vec3{1, 5, 3}, b.Max)
}

func TestFromNameDeterministic(t *testing.T) {
	a := FromName("ifc-guid-123")
	b := FromName("ifc-guid-123")
	require.Equal(t, a, b)

	lit := New()
	require.Equal(t, lit, FromName(lit.String()))
}
