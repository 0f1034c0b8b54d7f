package sceneio

import (
	"fmt"

	dmat "github.com/flywave/go3d/float64/mat4"
	dvec3 "github.com/flywave/go3d/float64/vec3"
	"github.com/flywave/go3d/vec3"
)

// buildMeshes turns every node's gathered sections into scene-owned meshes,
// pre-order. Sections are rebased from their object space into node space,
// grouped by material handle in first-insertion order and, when requested,
// folded into one section per group before emission.
func (s *Scene) buildMeshes(combineSameMaterial bool, slog *sessionLog) {
	for _, node := range s.root.flatten(nil) {
		if len(node.sections) == 0 {
			if len(node.children) == 0 {
				slog.Infof("node %q is empty", node.HierarchicalName())
			}
			continue
		}
		s.buildNode(node, combineSameMaterial, slog)
	}
}

func (s *Scene) buildNode(node *Node, combineSameMaterial bool, slog *sessionLog) {
	rebased := make([]*Section, 0, len(node.sections))
	worldToNode := node.worldTransform.Inverse()
	for _, sec := range node.sections {
		objToNode := Mul(&sec.MeshToWorld, &worldToNode)
		rebased = append(rebased, rebaseSection(sec, &objToNode))
	}

	// first-insertion-order grouping by handle identity
	groupOf := map[MaterialHandle]int{}
	var groups [][]*Section
	for _, sec := range rebased {
		idx, ok := groupOf[sec.Material]
		if !ok {
			idx = len(groups)
			groupOf[sec.Material] = idx
			groups = append(groups, nil)
		}
		groups[idx] = append(groups[idx], sec)
	}

	emitted := 0
	for _, group := range groups {
		if combineSameMaterial {
			head := group[0]
			for _, sec := range group[1:] {
				head.Append(sec)
			}
			group = group[:1]
		}
		for _, sec := range group {
			idx := uint32(len(s.meshes))
			s.meshes = append(s.meshes, emitMesh(node, sec, emitted, s.materialIndexFor(sec.Material)))
			node.meshIndices = append(node.meshIndices, idx)
			emitted++
		}
	}
	slog.Infof("node %q: %d sections into %d meshes", node.HierarchicalName(), len(node.sections), emitted)
	node.sections = nil
}

// rebaseSection carries a section from its object space into node space.
// Positions move affinely; normals and tangents by the linear part only,
// renormalized.
func rebaseSection(sec *Section, objToNode *Transform) *Section {
	m := objToNode.Mat4()
	out := &Section{
		Material: sec.Material,
		UV0:      sec.UV0,
		Colors:   sec.Colors,
		Indices:  sec.Indices,
	}
	out.Positions = make([]vec3.T, len(sec.Positions))
	for i, p := range sec.Positions {
		v := m.MulVec3(&dvec3.T{float64(p[0]), float64(p[1]), float64(p[2])})
		out.Positions[i] = vec3.T{float32(v[0]), float32(v[1]), float32(v[2])}
	}
	out.Normals = rebaseDirections(sec.Normals, &m)
	out.Tangents = rebaseDirections(sec.Tangents, &m)
	return out
}

func rebaseDirections(dirs []vec3.T, m *dmat.T) []vec3.T {
	if len(dirs) == 0 {
		return nil
	}
	out := make([]vec3.T, len(dirs))
	for i, d := range dirs {
		v := mulDir(m, dvec3.T{float64(d[0]), float64(d[1]), float64(d[2])})
		if l := v.Length(); l > 0 {
			v = v.Scaled(1 / l)
		}
		out[i] = vec3.T{float32(v[0]), float32(v[1]), float32(v[2])}
	}
	return out
}

// mulDir applies only the linear part of an affine matrix.
func mulDir(m *dmat.T, v dvec3.T) dvec3.T {
	return dvec3.T{
		m[0][0]*v[0] + m[1][0]*v[1] + m[2][0]*v[2],
		m[0][1]*v[0] + m[1][1]*v[1] + m[2][1]*v[2],
		m[0][2]*v[0] + m[1][2]*v[1] + m[2][2]*v[2],
	}
}

// emitMesh freezes one node-space section into owned storage. Normals and
// bitangents are always allocated full-length, and the flat index list
// expands to three-index face records.
func emitMesh(node *Node, sec *Section, ordinal int, materialIndex uint32) *builtMesh {
	m := &builtMesh{
		name:          fmt.Sprintf("%s_%d", node.name, ordinal),
		materialIndex: materialIndex,
		positions:     sec.Positions,
		colors:        sec.Colors,
		uv0:           sec.UV0,
	}
	if len(sec.Normals) != 0 {
		m.normals = sec.Normals
	} else {
		m.normals = make([]vec3.T, len(sec.Positions))
	}
	m.tangents = sec.Tangents
	m.bitangents = make([]vec3.T, len(sec.Positions))
	m.faces = make([]ForeignFace, 0, len(sec.Indices)/3)
	for i := 0; i+2 < len(sec.Indices); i += 3 {
		m.faces = append(m.faces, ForeignFace{Indices: [3]uint32{sec.Indices[i], sec.Indices[i+1], sec.Indices[i+2]}})
	}
	return m
}
