package sceneio

import (
	"math"
	"testing"

	dvec3 "github.com/flywave/go3d/float64/vec3"
	"github.com/stretchr/testify/assert"
)

const eps = 1e-9

func assertVecNear(t *testing.T, want, got dvec3.T, tol float64) {
	t.Helper()
	for i := 0; i < 3; i++ {
		assert.InDelta(t, want[i], got[i], tol, "component %d", i)
	}
}

func TestTransformMulOrder(t *testing.T) {
	// a: translate +X, b: rotate 90 deg around Z. Apply a then b: the
	// translated point swings onto +Y.
	a := IdentityTransform()
	a.Translation = dvec3.T{1, 0, 0}
	b := IdentityTransform()
	b.Rotation = quatAxisAngle(dvec3.T{0, 0, 1}, math.Pi/2)

	ab := Mul(&a, &b)
	got := ab.TransformPosition(dvec3.T{0, 0, 0})
	assertVecNear(t, dvec3.T{0, 1, 0}, got, eps)
}

func TestTransformInverseRoundTrip(t *testing.T) {
	tr := IdentityTransform()
	tr.Translation = dvec3.T{3, -2, 5}
	tr.Rotation = quatAxisAngle(dvec3.T{0, 1, 0}, 0.7)
	tr.Scale = dvec3.T{2, 2, 2}

	inv := tr.Inverse()
	both := Mul(&tr, &inv)

	p := dvec3.T{1.5, -4, 2}
	assertVecNear(t, p, both.TransformPosition(p), 1e-9)
}

func TestTransformMatrixDecompose(t *testing.T) {
	tr := IdentityTransform()
	tr.Translation = dvec3.T{1, 2, 3}
	tr.Rotation = quatAxisAngle(dvec3.T{1, 0, 0}, 0.5)
	tr.Scale = dvec3.T{2, 3, 4}

	m := tr.Mat4()
	back := TransformFromMatrix(&m)

	p := dvec3.T{-1, 0.5, 2}
	assertVecNear(t, tr.TransformPosition(p), back.TransformPosition(p), 1e-9)
}

func TestCorrectionRoundTrip(t *testing.T) {
	corr, ok := CorrectionPreset("blender")
	assert.True(t, ok)

	fwd := corr.Transform()
	inv := fwd.Inverse()
	both := Mul(&fwd, &inv)

	p := dvec3.T{10, -20, 30}
	assertVecNear(t, p, both.TransformPosition(p), 1e-6)
}

func TestCorrectionZeroScaleIsNoop(t *testing.T) {
	var corr Correction
	tr := corr.Transform()
	p := dvec3.T{1, 2, 3}
	assertVecNear(t, p, tr.TransformPosition(p), eps)
}

func TestCorrectionApplyAtRoot(t *testing.T) {
	corr := Correction{ScaleFactor: 0.01, RollX: RotPlus90}
	root := IdentityTransform()
	adjusted := corr.Apply(root)

	// unit Y in scene space ends up on Z, shrunk by the scale factor
	got := adjusted.TransformPosition(dvec3.T{0, 1, 0})
	assertVecNear(t, dvec3.T{0, 0, 0.01}, got, 1e-9)
}

func TestNormalMatrixNonUniformScale(t *testing.T) {
	tr := IdentityTransform()
	tr.Scale = dvec3.T{2, 1, 1}
	m := tr.Mat4()

	nm, ok := normalMat3(&m)
	assert.True(t, ok)

	// a 45 deg surface normal must stay perpendicular to the scaled
	// surface, which the plain linear map would not preserve
	n := mulNormal(&nm, dvec3.T{1, 1, 0})
	surface := mulDir(&m, dvec3.T{-1, 1, 0})
	dot := n[0]*surface[0] + n[1]*surface[1] + n[2]*surface[2]
	assert.InDelta(t, 0, dot, eps)
	assert.InDelta(t, 1, n.Length(), eps)
}

func TestDet3NegativeOnMirror(t *testing.T) {
	tr := IdentityTransform()
	tr.Scale = dvec3.T{-1, 1, 1}
	m := tr.Mat4()
	assert.Less(t, det3(&m), 0.0)
}
