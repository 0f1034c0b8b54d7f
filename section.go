package sceneio

import (
	"github.com/flywave/go3d/vec2"
	"github.com/flywave/go3d/vec3"
)

// Section is one material-tagged batch of triangles as produced by a
// source. The attribute slices are parallel: every one must match the
// position count. Indices is a flat triangle list into the attribute
// arrays. MeshToWorld places the section's object space in the world.
type Section struct {
	Material    MaterialHandle
	MeshToWorld Transform

	Positions []vec3.T
	Normals   []vec3.T
	Tangents  []vec3.T
	UV0       []vec2.T
	Colors    [][4]float32

	Indices []uint32
}

// Validate checks the parallel-array and triangle invariants. Every defect
// found is reported to slog; a section with any defect is unusable and the
// containing source is skipped as a whole.
func (s *Section) Validate(source string, index int, slog *sessionLog) bool {
	ok := true
	numVerts := len(s.Positions)
	check := func(prop string, n int) {
		if n != numVerts {
			slog.Warnf("%s section %d: %s count %d does not match vertex count %d", source, index, prop, n, numVerts)
			ok = false
		}
	}
	check("normal", len(s.Normals))
	check("tangent", len(s.Tangents))
	check("uv0", len(s.UV0))
	check("color", len(s.Colors))
	if len(s.Indices)%3 != 0 {
		slog.Warnf("%s section %d: index count %d is not a multiple of 3", source, index, len(s.Indices))
		ok = false
	}
	return ok
}

// Append moves other's vertices and triangles into s, offsetting the
// indices. Both sections must already share the same material handle and
// live in the same space. Optional attributes present on only one side are
// zero-padded on the other so the parallel-array invariant survives.
func (s *Section) Append(other *Section) {
	offset := len(s.Positions)
	s.Positions = append(s.Positions, other.Positions...)
	s.Normals = appendPadded(s.Normals, other.Normals, offset, len(other.Positions))
	s.Tangents = appendPadded(s.Tangents, other.Tangents, offset, len(other.Positions))
	s.UV0 = appendPadded(s.UV0, other.UV0, offset, len(other.Positions))
	s.Colors = appendPadded(s.Colors, other.Colors, offset, len(other.Positions))
	for _, idx := range other.Indices {
		s.Indices = append(s.Indices, idx+uint32(offset))
	}
}

func appendPadded[E any](dst, src []E, dstVerts, srcVerts int) []E {
	if len(dst) == 0 && len(src) == 0 {
		return dst
	}
	if len(dst) == 0 {
		dst = make([]E, dstVerts)
	}
	if len(src) == 0 {
		return append(dst, make([]E, srcVerts)...)
	}
	return append(dst, src...)
}

// NumTriangles is the flat index count divided by three.
func (s *Section) NumTriangles() int { return len(s.Indices) / 3 }
