package geometry

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertMatNear(t *testing.T, want, got Mat3, tol float64) {
	t.Helper()
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			assert.InDelta(t, want[i][j], got[i][j], tol, "element (%d,%d)", i, j)
		}
	}
}

func TestRodriguesRoundTrip(t *testing.T) {
	for _, v := range []r3.Vector{
		{},
		{X: 0.1},
		{X: 0.3, Y: -0.2, Z: 0.5},
		{Y: math.Pi / 2},
		{X: 1, Y: 1, Z: 1},
		{Z: math.Pi - 1e-8},
	} {
		r := Rodrigues(v)
		assert.InDelta(t, 1, r.Det(), 1e-12)
		assertMatNear(t, r, Rodrigues(r.RotationVector()), 1e-6)
	}
}

func TestRodriguesRotatesAboutAxis(t *testing.T) {
	r := Rodrigues(r3.Vector{Z: math.Pi / 2})
	got := r.Apply(r3.Vector{X: 1})
	assert.InDelta(t, 0, got.X, 1e-12)
	assert.InDelta(t, 1, got.Y, 1e-12)
	assert.InDelta(t, 0, got.Z, 1e-12)
}

func TestInverse(t *testing.T) {
	m := Mat3{{2, 0, 1}, {0, 3, 2}, {0, 0, 1}}
	inv, ok := m.Inverse()
	require.True(t, ok)
	assertMatNear(t, Identity3(), m.Mul(inv), 1e-12)

	_, ok = Mat3{{1, 2, 3}, {2, 4, 6}, {0, 0, 1}}.Inverse()
	assert.False(t, ok)
}

func TestOrthonormalize(t *testing.T) {
	r := Rodrigues(r3.Vector{X: 0.2, Y: 0.1, Z: -0.3})
	noisy := r
	noisy[0][1] += 1e-3
	noisy[2][0] -= 1e-3

	got := noisy.Orthonormalize()
	assertMatNear(t, Identity3(), got.Mul(got.T()), 1e-12)
	assert.InDelta(t, 1, got.Det(), 1e-12)
	assertMatNear(t, r, got, 2e-3)
}

func TestFlatRoundTrip(t *testing.T) {
	m := Mat3{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}}
	assert.Equal(t, m, Mat3FromFlat(m.Flat()))
}
