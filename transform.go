package sceneio

import (
	"math"

	dmat "github.com/flywave/go3d/float64/mat4"
	"github.com/flywave/go3d/float64/quaternion"
	dvec3 "github.com/flywave/go3d/float64/vec3"
)

// Transform is a translation/rotation/scale triple. Rotations are unit
// quaternions in {x,y,z,w} order. The zero value is not usable; start from
// IdentityTransform.
type Transform struct {
	Translation dvec3.T
	Rotation    quaternion.T
	Scale       dvec3.T
}

func IdentityTransform() Transform {
	return Transform{
		Rotation: quaternion.T{0, 0, 0, 1},
		Scale:    dvec3.T{1, 1, 1},
	}
}

// TransformFromMatrix decomposes an affine matrix back into TRS. A negative
// determinant folds into a negated X scale.
func TransformFromMatrix(m *dmat.T) Transform {
	tra := dvec3.T{m[3][0], m[3][1], m[3][2]}

	cols := [3]dvec3.T{
		{m[0][0], m[0][1], m[0][2]},
		{m[1][0], m[1][1], m[1][2]},
		{m[2][0], m[2][1], m[2][2]},
	}
	sc := dvec3.T{cols[0].Length(), cols[1].Length(), cols[2].Length()}
	if det3(m) < 0 {
		sc[0] = -sc[0]
	}
	for i := 0; i < 3; i++ {
		if sc[i] != 0 {
			cols[i] = cols[i].Scaled(1 / sc[i])
		}
	}
	return Transform{Translation: tra, Rotation: quatFromColumns(cols), Scale: sc}
}

// Mat4 composes the transform into a matrix applying scale, then rotation,
// then translation.
func (t *Transform) Mat4() dmat.T {
	return *dmat.Compose(&t.Translation, &t.Rotation, &t.Scale)
}

// TransformPosition applies scale, rotation and translation to a point.
func (t *Transform) TransformPosition(p dvec3.T) dvec3.T {
	s := dvec3.T{p[0] * t.Scale[0], p[1] * t.Scale[1], p[2] * t.Scale[2]}
	r := rotateVec(t.Rotation, s)
	return dvec3.T{r[0] + t.Translation[0], r[1] + t.Translation[1], r[2] + t.Translation[2]}
}

// TransformVector applies scale and rotation only, for directions.
func (t *Transform) TransformVector(v dvec3.T) dvec3.T {
	s := dvec3.T{v[0] * t.Scale[0], v[1] * t.Scale[1], v[2] * t.Scale[2]}
	return rotateVec(t.Rotation, s)
}

// Mul returns a transform equivalent to applying a first, then b.
func Mul(a, b *Transform) Transform {
	return Transform{
		Translation: b.TransformPosition(a.Translation),
		Rotation:    quatMul(b.Rotation, a.Rotation),
		Scale:       dvec3.T{a.Scale[0] * b.Scale[0], a.Scale[1] * b.Scale[1], a.Scale[2] * b.Scale[2]},
	}
}

// Inverse assumes a unit rotation and per-axis non-zero scale; a zero scale
// component inverts to zero, matching the convention of the engine this
// format family interoperates with.
func (t *Transform) Inverse() Transform {
	invRot := quatConj(t.Rotation)
	invScale := dvec3.T{safeRcp(t.Scale[0]), safeRcp(t.Scale[1]), safeRcp(t.Scale[2])}
	rt := rotateVec(invRot, dvec3.T{-t.Translation[0], -t.Translation[1], -t.Translation[2]})
	return Transform{
		Translation: dvec3.T{rt[0] * invScale[0], rt[1] * invScale[1], rt[2] * invScale[2]},
		Rotation:    invRot,
		Scale:       invScale,
	}
}

// ConcatRotation pre-multiplies delta onto the rotation, leaving translation
// and scale untouched.
func (t *Transform) ConcatRotation(delta quaternion.T) {
	t.Rotation = quatMul(delta, t.Rotation)
}

func safeRcp(v float64) float64 {
	if v == 0 {
		return 0
	}
	return 1 / v
}

func quatMul(a, b quaternion.T) quaternion.T {
	return quaternion.T{
		a[3]*b[0] + a[0]*b[3] + a[1]*b[2] - a[2]*b[1],
		a[3]*b[1] - a[0]*b[2] + a[1]*b[3] + a[2]*b[0],
		a[3]*b[2] + a[0]*b[1] - a[1]*b[0] + a[2]*b[3],
		a[3]*b[3] - a[0]*b[0] - a[1]*b[1] - a[2]*b[2],
	}
}

func quatConj(q quaternion.T) quaternion.T {
	return quaternion.T{-q[0], -q[1], -q[2], q[3]}
}

func quatAxisAngle(axis dvec3.T, radians float64) quaternion.T {
	s, c := math.Sin(radians/2), math.Cos(radians/2)
	return quaternion.T{axis[0] * s, axis[1] * s, axis[2] * s, c}
}

// rotateVec rotates v by unit quaternion q: v + 2w(q×v) + 2(q×(q×v)).
func rotateVec(q quaternion.T, v dvec3.T) dvec3.T {
	u := dvec3.T{q[0], q[1], q[2]}
	c1 := dvec3.Cross(&u, &v)
	c1[0] += q[3] * v[0]
	c1[1] += q[3] * v[1]
	c1[2] += q[3] * v[2]
	c2 := dvec3.Cross(&u, &c1)
	return dvec3.T{v[0] + 2*c2[0], v[1] + 2*c2[1], v[2] + 2*c2[2]}
}

// det3 is the determinant of the upper-left 3x3 of an affine matrix.
func det3(m *dmat.T) float64 {
	return m[0][0]*(m[1][1]*m[2][2]-m[2][1]*m[1][2]) -
		m[1][0]*(m[0][1]*m[2][2]-m[2][1]*m[0][2]) +
		m[2][0]*(m[0][1]*m[1][2]-m[1][1]*m[0][2])
}

// normalMat3 is the inverse-transpose of the upper-left 3x3, used to carry
// normals through a non-uniform transform. Returns false when singular.
func normalMat3(m *dmat.T) ([3][3]float64, bool) {
	a := [3][3]float64{
		{m[0][0], m[1][0], m[2][0]},
		{m[0][1], m[1][1], m[2][1]},
		{m[0][2], m[1][2], m[2][2]},
	}
	det := a[0][0]*(a[1][1]*a[2][2]-a[1][2]*a[2][1]) -
		a[0][1]*(a[1][0]*a[2][2]-a[1][2]*a[2][0]) +
		a[0][2]*(a[1][0]*a[2][1]-a[1][1]*a[2][0])
	if det == 0 {
		return [3][3]float64{}, false
	}
	inv := 1 / det
	var c [3][3]float64
	c[0][0] = (a[1][1]*a[2][2] - a[1][2]*a[2][1]) * inv
	c[0][1] = (a[1][2]*a[2][0] - a[1][0]*a[2][2]) * inv
	c[0][2] = (a[1][0]*a[2][1] - a[1][1]*a[2][0]) * inv
	c[1][0] = (a[0][2]*a[2][1] - a[0][1]*a[2][2]) * inv
	c[1][1] = (a[0][0]*a[2][2] - a[0][2]*a[2][0]) * inv
	c[1][2] = (a[0][1]*a[2][0] - a[0][0]*a[2][1]) * inv
	c[2][0] = (a[0][1]*a[1][2] - a[0][2]*a[1][1]) * inv
	c[2][1] = (a[0][2]*a[1][0] - a[0][0]*a[1][2]) * inv
	c[2][2] = (a[0][0]*a[1][1] - a[0][1]*a[1][0]) * inv
	// c holds inverse-transpose(a) row-major.
	return c, true
}

// mulNormal applies the inverse-transpose (as produced by normalMat3) to a
// direction and renormalizes.
func mulNormal(nm *[3][3]float64, v dvec3.T) dvec3.T {
	out := dvec3.T{
		nm[0][0]*v[0] + nm[0][1]*v[1] + nm[0][2]*v[2],
		nm[1][0]*v[0] + nm[1][1]*v[1] + nm[1][2]*v[2],
		nm[2][0]*v[0] + nm[2][1]*v[1] + nm[2][2]*v[2],
	}
	if l := out.Length(); l > 0 {
		out = out.Scaled(1 / l)
	}
	return out
}

// quatFromColumns builds a unit quaternion from three orthonormal basis
// columns (Shepperd's method).
func quatFromColumns(c [3]dvec3.T) quaternion.T {
	m00, m01, m02 := c[0][0], c[1][0], c[2][0]
	m10, m11, m12 := c[0][1], c[1][1], c[2][1]
	m20, m21, m22 := c[0][2], c[1][2], c[2][2]

	trace := m00 + m11 + m22
	var q quaternion.T
	switch {
	case trace > 0:
		s := math.Sqrt(trace+1) * 2
		q = quaternion.T{(m21 - m12) / s, (m02 - m20) / s, (m10 - m01) / s, s / 4}
	case m00 > m11 && m00 > m22:
		s := math.Sqrt(1+m00-m11-m22) * 2
		q = quaternion.T{s / 4, (m01 + m10) / s, (m02 + m20) / s, (m21 - m12) / s}
	case m11 > m22:
		s := math.Sqrt(1+m11-m00-m22) * 2
		q = quaternion.T{(m01 + m10) / s, s / 4, (m12 + m21) / s, (m02 - m20) / s}
	default:
		s := math.Sqrt(1+m22-m00-m11) * 2
		q = quaternion.T{(m02 + m20) / s, (m12 + m21) / s, s / 4, (m10 - m01) / s}
	}
	return q
}
