package sceneio

import (
	"testing"

	"github.com/flywave/go3d/vec2"
	"github.com/flywave/go3d/vec3"
	"github.com/stretchr/testify/assert"
)

type testMaterial struct {
	name    string
	texture string
}

func (m *testMaterial) MaterialName() string { return m.name }

func (m *testMaterial) DiffuseTexturePath() string { return m.texture }

func triSection(mat MaterialHandle, offset float32) *Section {
	return &Section{
		Material:    mat,
		MeshToWorld: IdentityTransform(),
		Positions:   []vec3.T{{offset, 0, 0}, {offset + 1, 0, 0}, {offset, 1, 0}},
		Normals:     []vec3.T{{0, 0, 1}, {0, 0, 1}, {0, 0, 1}},
		Tangents:    []vec3.T{{1, 0, 0}, {1, 0, 0}, {1, 0, 0}},
		UV0:         []vec2.T{{0, 0}, {1, 0}, {0, 1}},
		Colors:      [][4]float32{{1, 1, 1, 1}, {1, 1, 1, 1}, {1, 1, 1, 1}},
		Indices:     []uint32{0, 1, 2},
	}
}

func TestSectionValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Section)
		ok     bool
	}{
		{"valid", func(s *Section) {}, true},
		{"no vertices", func(s *Section) { s.Positions = nil }, false},
		{"normal count mismatch", func(s *Section) { s.Normals = s.Normals[:2] }, false},
		{"uv count mismatch", func(s *Section) { s.UV0 = append(s.UV0, vec2.T{}) }, false},
		// no indices is still a valid (degenerate) section
		{"no triangles", func(s *Section) { s.Indices = nil }, true},
		{"partial triangle", func(s *Section) { s.Indices = []uint32{0, 1} }, false},
		{"missing attribute arrays", func(s *Section) { s.Normals = nil; s.UV0 = nil }, false},
		{"fully empty", func(s *Section) { *s = Section{} }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sec := triSection(nil, 0)
			tt.mutate(sec)
			slog := &sessionLog{}
			assert.Equal(t, tt.ok, sec.Validate("src", 0, slog))
			if !tt.ok {
				assert.NotEmpty(t, slog.String())
			}
		})
	}
}

func TestSectionAppendOffsetsIndices(t *testing.T) {
	a := triSection(nil, 0)
	b := triSection(nil, 5)

	a.Append(b)

	assert.Len(t, a.Positions, 6)
	assert.Len(t, a.Normals, 6)
	assert.Len(t, a.UV0, 6)
	assert.Equal(t, []uint32{0, 1, 2, 3, 4, 5}, a.Indices)
	assert.Equal(t, 2, a.NumTriangles())
}

func TestSectionAppendPadsMissingAttributes(t *testing.T) {
	a := triSection(nil, 0)
	b := triSection(nil, 5)
	b.Normals = nil
	b.Colors = [][4]float32{{1, 0, 0, 1}, {1, 0, 0, 1}, {1, 0, 0, 1}}

	a.Append(b)

	assert.Len(t, a.Normals, 6)
	assert.Equal(t, vec3.T{}, a.Normals[5])
	assert.Len(t, a.Colors, 6)
	assert.Equal(t, [4]float32{1, 1, 1, 1}, a.Colors[0])
	assert.Equal(t, [4]float32{1, 0, 0, 1}, a.Colors[3])
}
