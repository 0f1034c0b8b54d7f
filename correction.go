package sceneio

import (
	"math"

	"github.com/flywave/go3d/float64/quaternion"
	dvec3 "github.com/flywave/go3d/float64/vec3"
)

// RotationStep is a coarse per-axis correction angle.
type RotationStep int

const (
	RotZero RotationStep = iota
	RotMinus90
	RotPlus90
)

func (r RotationStep) Radians() float64 {
	switch r {
	case RotMinus90:
		return -math.Pi / 2
	case RotPlus90:
		return math.Pi / 2
	}
	return 0
}

// Correction is the transform adjustment applied exactly once, at the scene
// root, when binding for a codec. It covers the axis and unit conventions
// that differ between tools: per-axis mirroring, quarter-turn rotations and
// a uniform scale. A zero ScaleFactor is treated as 1 so the zero value is
// a no-op correction.
type Correction struct {
	FlipX bool `yaml:"flip_x"`
	FlipY bool `yaml:"flip_y"`
	FlipZ bool `yaml:"flip_z"`

	RollX  RotationStep `yaml:"roll_x"`
	PitchY RotationStep `yaml:"pitch_y"`
	YawZ   RotationStep `yaml:"yaw_z"`

	ScaleFactor float64 `yaml:"scale_factor"`
}

func (c Correction) scaleFactor() float64 {
	if c.ScaleFactor == 0 {
		return 1
	}
	return c.ScaleFactor
}

// Rotation concatenates the three axis quarter-turns into one quaternion,
// Z then Y then X.
func (c Correction) Rotation() quaternion.T {
	q := quatAxisAngle(dvec3.T{0, 0, 1}, c.YawZ.Radians())
	q = quatMul(quatAxisAngle(dvec3.T{0, 1, 0}, c.PitchY.Radians()), q)
	q = quatMul(quatAxisAngle(dvec3.T{1, 0, 0}, c.RollX.Radians()), q)
	return q
}

// ScaleVector is the per-axis scale including mirror flips.
func (c Correction) ScaleVector() dvec3.T {
	f := c.scaleFactor()
	s := dvec3.T{f, f, f}
	if c.FlipX {
		s[0] = -s[0]
	}
	if c.FlipY {
		s[1] = -s[1]
	}
	if c.FlipZ {
		s[2] = -s[2]
	}
	return s
}

// Transform renders the correction as a standalone transform.
func (c Correction) Transform() Transform {
	t := IdentityTransform()
	t.Rotation = c.Rotation()
	t.Scale = c.ScaleVector()
	return t
}

// Apply folds the correction into a root transform: the scale is multiplied
// component-wise and the rotation is pre-concatenated.
func (c Correction) Apply(root Transform) Transform {
	s := c.ScaleVector()
	root.Scale = dvec3.T{root.Scale[0] * s[0], root.Scale[1] * s[1], root.Scale[2] * s[2]}
	root.ConcatRotation(c.Rotation())
	return root
}

// CorrectionPreset returns a named convention preset. "blender" converts a
// Y-up centimeter source to Blender's Z-up meters.
func CorrectionPreset(name string) (Correction, bool) {
	switch name {
	case "none", "":
		return Correction{ScaleFactor: 1}, true
	case "blender":
		return Correction{RollX: RotPlus90, ScaleFactor: 0.01}, true
	}
	return Correction{}, false
}
