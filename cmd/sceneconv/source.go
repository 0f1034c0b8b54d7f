package main

import (
	"fmt"

	sceneio "github.com/flywave/go-sceneio"
)

// importedMaterial adapts an imported material record to the export-side
// material handle.
type importedMaterial struct {
	name string
}

func (m *importedMaterial) MaterialName() string { return m.name }

// materialHandles builds one shared handle per imported material so the
// exporter's identity dedup folds sections back together.
func materialHandles(infos []sceneio.MaterialInfo) []*importedMaterial {
	out := make([]*importedMaterial, len(infos))
	for i, info := range infos {
		out[i] = &importedMaterial{name: info.Name}
	}
	return out
}

// importedSource feeds one imported mesh back into the export pipeline.
type importedSource struct {
	mesh      *sceneio.MeshInfo
	ordinal   int
	materials []*importedMaterial
}

func newImportedSource(mesh *sceneio.MeshInfo, ordinal int, materials []*importedMaterial) *importedSource {
	return &importedSource{mesh: mesh, ordinal: ordinal, materials: materials}
}

func (s *importedSource) Name() string {
	if s.mesh.Name != "" {
		return s.mesh.Name
	}
	return fmt.Sprintf("mesh_%d", s.ordinal)
}

func (s *importedSource) HierarchicalNodeName() string {
	return "root." + s.Name()
}

func (s *importedSource) MeshData(lod int, skipIfLODMissing bool) ([]*sceneio.Section, bool) {
	sections := make([]*sceneio.Section, 0, len(s.mesh.Sections))
	for i := range s.mesh.Sections {
		src := &s.mesh.Sections[i]
		// attribute arrays a format does not carry are padded so the
		// section passes the exporter's parallel-array validation
		n := len(src.Positions)
		sec := &sceneio.Section{
			MeshToWorld: sceneio.IdentityTransform(),
			Positions:   src.Positions,
			Normals:     padded(src.Normals, n),
			Tangents:    padded(src.Tangents, n),
			UV0:         padded(src.UV0, n),
			Colors:      padded(src.Colors, n),
			Indices:     src.Indices,
		}
		if src.MaterialIndex >= 0 && src.MaterialIndex < len(s.materials) {
			sec.Material = s.materials[src.MaterialIndex]
		}
		sections = append(sections, sec)
	}
	return sections, true
}

func padded[E any](src []E, n int) []E {
	if len(src) == n {
		return src
	}
	out := make([]E, n)
	copy(out, src)
	return out
}
