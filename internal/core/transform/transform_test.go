package transform

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
)

func TestMul(t *testing.T) {
	t.Run("identity parent", func(t *testing.T) {
		child := FromXYZ(1, 2, 3).WithScale(mgl64.Vec3{2, 2, 2})
		assert.True(t, Identity().Mul(child).ApproxEqual(child, 1e-12))
	})

	t.Run("rotated and translated parent", func(t *testing.T) {
		parent := FromXYZ(10, 0, 0).WithRotation(mgl64.QuatRotate(math.Pi/2, mgl64.Vec3{0, 1, 0}))
		got := parent.Mul(FromXYZ(0, 0, -1))
		assertVecNear(t, mgl64.Vec3{9, 0, 0}, got.Translation, 1e-12)
		assertVecNear(t, mgl64.Vec3{-1, 0, 0}, got.Forward(), 1e-12)
	})

	t.Run("scale multiplies", func(t *testing.T) {
		parent := FromScale(mgl64.Vec3{2, 3, 4})
		got := parent.Mul(FromXYZ(1, 1, 1).WithScale(mgl64.Vec3{0.5, 2, 1}))
		assert.Equal(t, mgl64.Vec3{2, 3, 4}, got.Translation)
		assert.Equal(t, mgl64.Vec3{1, 6, 4}, got.Scale)
	})

	t.Run("matches the matrix form", func(t *testing.T) {
		tr := FromXYZ(1, -2, 3).
			WithRotation(mgl64.QuatRotate(0.3, mgl64.Vec3{1, 1, 0}.Normalize())).
			WithScale(mgl64.Vec3{2, 2, 2})
		p := mgl64.Vec3{0.5, 4, -1}
		want := tr.Mat4().Mul4x1(p.Vec4(1)).Vec3()
		assertVecNear(t, want, tr.TransformPoint(p), 1e-12)
	})
}

func TestLookingAt(t *testing.T) {
	cam := FromXYZ(0, 0, 8).LookingAt(mgl64.Vec3{}, mgl64.Vec3{0, 1, 0})
	assertVecNear(t, mgl64.Vec3{0, 0, -1}, cam.Forward(), 1e-12)

	cam = FromXYZ(8, 0, 0).LookingAt(mgl64.Vec3{}, mgl64.Vec3{0, 1, 0})
	assertVecNear(t, mgl64.Vec3{-1, 0, 0}, cam.Forward(), 1e-12)
	assertVecNear(t, mgl64.Vec3{0, 1, 0}, cam.Up(), 1e-12)
	assertVecNear(t, mgl64.Vec3{0, 0, -1}, cam.Right(), 1e-12)

	// Degenerate directions keep the rotation.
	same := FromXYZ(1, 1, 1)
	assert.Equal(t, same, same.LookingAt(mgl64.Vec3{1, 1, 1}, mgl64.Vec3{0, 1, 0}))
	assert.Equal(t, same, same.LookingAt(mgl64.Vec3{1, 5, 1}, mgl64.Vec3{0, 1, 0}))
}

func TestApproxEqualAndScale(t *testing.T) {
	q := mgl64.QuatRotate(1, mgl64.Vec3{0, 0, 1})
	a := FromRotation(q)
	b := FromRotation(q.Scale(-1))
	assert.True(t, a.ApproxEqual(b, 1e-12))
	assert.False(t, a.ApproxEqual(FromXYZ(0, 0, 1e-3), 1e-6))

	// Rounding noise around an exact zero is tolerated.
	noisy := FromXYZ(9, 0, -2.220446049250313e-16)
	assert.True(t, noisy.ApproxEqual(FromXYZ(9, 0, 0), 1e-12))
	assert.False(t, noisy.ApproxEqual(FromXYZ(9, 0, 1e-9), 1e-12))

	assert.Equal(t, 3.0, FromScale(mgl64.Vec3{1, -3, 2}).MaxScale())
	assert.Equal(t, mgl64.Vec3{2, -6, 0}, MulElem(mgl64.Vec3{1, 2, 3}, mgl64.Vec3{2, -3, 0}))
}

// assertVecNear compares per axis with an absolute tolerance, so expected
// zeros accept rounding noise.
func assertVecNear(t *testing.T, want, got mgl64.Vec3, delta float64) {
	t.Helper()
	assert.InDeltaSlice(t, want[:], got[:], delta, "got %v", got)
}
