package sceneio

import (
	"strings"

	"github.com/flywave/go3d/vec2"
	"github.com/flywave/go3d/vec3"
)

// defaultMaterialName is used when a handle is nil or reports an empty name.
const defaultMaterialName = "Unknown"

// TexturedMaterialHandle is optionally implemented by handles that can name
// a diffuse texture file; the path is carried into the bound material.
type TexturedMaterialHandle interface {
	MaterialHandle
	DiffuseTexturePath() string
}

// builtMesh is scene-owned mesh storage produced by the build step. The
// bound foreign structure only ever aliases these slices.
type builtMesh struct {
	name          string
	materialIndex uint32

	positions  []vec3.T
	normals    []vec3.T
	tangents   []vec3.T
	bitangents []vec3.T
	colors     [][4]float32
	uv0        []vec2.T
	faces      []ForeignFace
}

// Scene owns the export tree and the mesh/material pools the builder fills.
// It is not safe for concurrent mutation; the exporter serializes access.
type Scene struct {
	root *Node

	meshes   []*builtMesh
	matOrder []MaterialHandle
	matIndex map[MaterialHandle]uint32

	foreign *ForeignScene
}

func NewScene() *Scene {
	return &Scene{
		root:     newRootNode(),
		matIndex: map[MaterialHandle]uint32{},
	}
}

func (s *Scene) Root() *Node { return s.root }

// findOrCreate resolves a hierarchical name against the root. A leading
// "root" component addresses the root itself.
func (s *Scene) findOrCreate(hierarchicalName string) *Node {
	path := hierarchicalName
	if path == rootNodeName {
		return s.root
	}
	path = strings.TrimPrefix(path, rootNodeName+".")
	return s.root.FindOrCreate(path)
}

// AddNode ensures the node at hierarchicalName exists and assigns its world
// transform. Addressing the root leaves its transform alone; that slot
// belongs to the correction step.
func (s *Scene) AddNode(hierarchicalName string, world Transform) *Node {
	node := s.findOrCreate(hierarchicalName)
	if !node.IsRoot() {
		node.SetWorldTransform(world)
	}
	return node
}

// AddExportObject attaches a source below the node it names, or below
// nodeNameOverride when non-empty.
func (s *Scene) AddExportObject(src Exportable, nodeNameOverride string) *Node {
	name := nodeNameOverride
	if name == "" {
		name = src.HierarchicalNodeName()
	}
	node := s.findOrCreate(name)
	node.attachSource(src)
	return node
}

// AddObjectIfExportable attaches obj when it implements Exportable and
// reports whether it did.
func (s *Scene) AddObjectIfExportable(obj interface{}) bool {
	src, ok := obj.(Exportable)
	if !ok {
		return false
	}
	s.AddExportObject(src, "")
	return true
}

// NumSources counts attached sources over the whole tree.
func (s *Scene) NumSources() int { return s.root.numSources() }

// materialIndexFor dedups by handle identity: the first time a handle is
// seen it is appended, afterwards the stored index is reused.
func (s *Scene) materialIndexFor(h MaterialHandle) uint32 {
	if idx, ok := s.matIndex[h]; ok {
		return idx
	}
	idx := uint32(len(s.matOrder))
	s.matOrder = append(s.matOrder, h)
	s.matIndex[h] = idx
	return idx
}

// resetRunState drops everything a previous run produced, keeping the tree
// and its sources.
func (s *Scene) resetRunState() {
	s.unbind()
	s.root.resetRunState()
	s.meshes = nil
	s.matOrder = nil
	s.matIndex = map[MaterialHandle]uint32{}
}

// Clear releases the whole tree, unbinding first.
func (s *Scene) Clear() {
	s.unbind()
	s.root.clear()
	s.root = newRootNode()
	s.meshes = nil
	s.matOrder = nil
	s.matIndex = map[MaterialHandle]uint32{}
}

// bind freshly computes the foreign structure: relative node transforms
// with the correction folded into the root, mesh views aliasing the owned
// buffers and the deduped material records. The owned pools must not be
// mutated until unbind.
func (s *Scene) bind(correction Correction) *ForeignScene {
	if s.foreign != nil {
		panic("sceneio: bind while already bound")
	}
	fs := &ForeignScene{}
	fs.Root = s.bindNode(s.root, correction)
	for _, m := range s.meshes {
		fs.Meshes = append(fs.Meshes, &ForeignMesh{
			Name:            m.name,
			MaterialIndex:   m.materialIndex,
			Vertices:        m.positions,
			Normals:         m.normals,
			Tangents:        m.tangents,
			Bitangents:      m.bitangents,
			Colors:          m.colors,
			TexCoords:       m.uv0,
			NumUVComponents: 2,
			Faces:           m.faces,
		})
	}
	for _, h := range s.matOrder {
		fs.Materials = append(fs.Materials, bindMaterial(h))
	}
	s.foreign = fs
	return fs
}

func (s *Scene) bindNode(n *Node, correction Correction) *ForeignNode {
	var rel Transform
	if n.IsRoot() {
		rel = correction.Apply(n.worldTransform)
	} else {
		rel = n.relativeTransform()
	}
	fn := &ForeignNode{
		Name:        n.name,
		Transform:   rel.Mat4(),
		MeshIndices: n.meshIndices,
	}
	n.foreign = fn
	for _, child := range n.children {
		fn.Children = append(fn.Children, s.bindNode(child, correction))
	}
	return fn
}

func bindMaterial(h MaterialHandle) *ForeignMaterial {
	name := defaultMaterialName
	if h != nil {
		if n := h.MaterialName(); n != "" {
			name = n
		}
	}
	fm := &ForeignMaterial{Name: name}
	fm.SetString(MatKeyName, name)
	fm.SetInt(MatKeyTwoSided, 1)
	fm.SetFloat(MatKeyShininess, 0)
	if th, ok := h.(TexturedMaterialHandle); ok {
		if path := th.DiffuseTexturePath(); path != "" {
			fm.SetString(TexKeyDiffuse, path)
		}
	}
	return fm
}

// unbind nils every foreign view so nothing can reach the owned buffers
// through a stale structure. Safe to call when not bound.
func (s *Scene) unbind() {
	if s.foreign == nil {
		return
	}
	for _, m := range s.foreign.Meshes {
		m.release()
	}
	s.foreign.Meshes = nil
	s.foreign.Materials = nil
	s.foreign.Textures = nil
	s.foreign.Root = nil
	s.foreign = nil
	s.root.unbind()
}
