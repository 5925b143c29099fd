// Package transform is the local translation/rotation/scale carried by every
// spatial entity. Only translation is cell-aware; rotation and scale compose
// as ordinary TRS transforms.
package transform

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

type Transform struct {
	Translation mgl64.Vec3
	Rotation    mgl64.Quat
	Scale       mgl64.Vec3
}

func Identity() Transform {
	return Transform{
		Rotation: mgl64.QuatIdent(),
		Scale:    mgl64.Vec3{1, 1, 1},
	}
}

func FromXYZ(x, y, z float64) Transform {
	return FromTranslation(mgl64.Vec3{x, y, z})
}

func FromTranslation(v mgl64.Vec3) Transform {
	t := Identity()
	t.Translation = v
	return t
}

func FromScale(v mgl64.Vec3) Transform {
	t := Identity()
	t.Scale = v
	return t
}

func FromRotation(q mgl64.Quat) Transform {
	t := Identity()
	t.Rotation = q
	return t
}

func (t Transform) WithTranslation(v mgl64.Vec3) Transform {
	t.Translation = v
	return t
}

func (t Transform) WithRotation(q mgl64.Quat) Transform {
	t.Rotation = q
	return t
}

func (t Transform) WithScale(v mgl64.Vec3) Transform {
	t.Scale = v
	return t
}

// LookingAt rotates t so that its forward axis (-Z) points at target, keeping
// up as close to the given up vector as possible. A degenerate direction
// leaves the rotation unchanged.
func (t Transform) LookingAt(target, up mgl64.Vec3) Transform {
	dir := target.Sub(t.Translation)
	if dir.Len() == 0 {
		return t
	}
	f := dir.Normalize()
	r := f.Cross(up)
	if r.Len() == 0 {
		return t
	}
	r = r.Normalize()
	u := r.Cross(f)
	m := mgl64.Mat4{
		r[0], r[1], r[2], 0,
		u[0], u[1], u[2], 0,
		-f[0], -f[1], -f[2], 0,
		0, 0, 0, 1,
	}
	t.Rotation = mgl64.Mat4ToQuat(m).Normalize()
	return t
}

func (t Transform) Forward() mgl64.Vec3 { return t.Rotation.Rotate(mgl64.Vec3{0, 0, -1}) }

func (t Transform) Right() mgl64.Vec3 { return t.Rotation.Rotate(mgl64.Vec3{1, 0, 0}) }

func (t Transform) Up() mgl64.Vec3 { return t.Rotation.Rotate(mgl64.Vec3{0, 1, 0}) }

// Mat4 returns translation * rotation * scale.
func (t Transform) Mat4() mgl64.Mat4 {
	return mgl64.Translate3D(t.Translation[0], t.Translation[1], t.Translation[2]).
		Mul4(t.Rotation.Mat4()).
		Mul4(mgl64.Scale3D(t.Scale[0], t.Scale[1], t.Scale[2]))
}

// TransformPoint maps a point from t's local space into its parent space.
func (t Transform) TransformPoint(p mgl64.Vec3) mgl64.Vec3 {
	return t.Translation.Add(t.Rotation.Rotate(MulElem(t.Scale, p)))
}

// Mul composes parent t with child c, giving c expressed in t's parent space.
// Non-uniform parent scale combined with child rotation is approximated the
// same way most engines do: scales multiply component-wise.
func (t Transform) Mul(c Transform) Transform {
	return Transform{
		Translation: t.TransformPoint(c.Translation),
		Rotation:    t.Rotation.Mul(c.Rotation).Normalize(),
		Scale:       MulElem(t.Scale, c.Scale),
	}
}

// MaxScale is the largest absolute scale component.
func (t Transform) MaxScale() float64 {
	return math.Max(math.Abs(t.Scale[0]), math.Max(math.Abs(t.Scale[1]), math.Abs(t.Scale[2])))
}

// ApproxEqual reports whether every component of t is within eps of o. q and
// -q describe the same rotation.
func (t Transform) ApproxEqual(o Transform, eps float64) bool {
	return within(t.Translation, o.Translation, eps) &&
		within(t.Scale, o.Scale, eps) &&
		(quatWithin(t.Rotation, o.Rotation, eps) || quatWithin(t.Rotation, o.Rotation.Scale(-1), eps))
}

func within(a, b mgl64.Vec3, eps float64) bool {
	return math.Abs(a[0]-b[0]) <= eps && math.Abs(a[1]-b[1]) <= eps && math.Abs(a[2]-b[2]) <= eps
}

func quatWithin(a, b mgl64.Quat, eps float64) bool {
	return math.Abs(a.W-b.W) <= eps && within(a.V, b.V, eps)
}

func MulElem(a, b mgl64.Vec3) mgl64.Vec3 {
	return mgl64.Vec3{a[0] * b[0], a[1] * b[1], a[2] * b[2]}
}
