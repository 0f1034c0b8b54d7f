package sceneio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"path/filepath"
	"strings"

	dmat "github.com/flywave/go3d/float64/mat4"
	"github.com/flywave/go3d/float64/quaternion"
	dvec3 "github.com/flywave/go3d/float64/vec3"
	"github.com/flywave/go3d/vec2"
	"github.com/flywave/go3d/vec3"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
)

// gltfCodec reads and writes glTF 2.0, text or binary by extension. Node
// transforms travel as TRS; the export side re-decomposes the bound
// matrices rather than writing matrix nodes.
type gltfCodec struct{}

func (c *gltfCodec) FormatID() string     { return "gltf" }
func (c *gltfCodec) Extensions() []string { return []string{"gltf", "glb"} }
func (c *gltfCodec) CanExport() bool      { return true }
func (c *gltfCodec) CanImport() bool      { return true }

func (c *gltfCodec) Export(scene *ForeignScene, path string, progress ProgressFunc) error {
	doc := &gltf.Document{
		Asset: gltf.Asset{Version: "2.0", Generator: "go-sceneio"},
	}

	for _, fm := range scene.Materials {
		doc.Materials = append(doc.Materials, exportGltfMaterial(fm))
	}

	// one gltf mesh per foreign mesh, one primitive each
	written := 0
	meshIndex := make([]uint32, len(scene.Meshes))
	for i, fm := range scene.Meshes {
		prim := &gltf.Primitive{
			Attributes: map[string]uint32{
				"POSITION": modeler.WritePosition(doc, vec3ToArr(fm.Vertices)),
			},
			Material: gltf.Index(fm.MaterialIndex),
		}
		if len(fm.Normals) != 0 {
			prim.Attributes["NORMAL"] = modeler.WriteNormal(doc, vec3ToArr(fm.Normals))
		}
		if len(fm.TexCoords) != 0 {
			uvs := make([][2]float32, len(fm.TexCoords))
			for j, uv := range fm.TexCoords {
				uvs[j] = [2]float32{uv[0], uv[1]}
			}
			prim.Attributes["TEXCOORD_0"] = modeler.WriteTextureCoord(doc, uvs)
		}
		indices := make([]uint32, 0, len(fm.Faces)*3)
		for _, f := range fm.Faces {
			indices = append(indices, f.Indices[0], f.Indices[1], f.Indices[2])
		}
		prim.Indices = gltf.Index(modeler.WriteIndices(doc, indices))

		meshIndex[i] = uint32(len(doc.Meshes))
		doc.Meshes = append(doc.Meshes, &gltf.Mesh{Name: fm.Name, Primitives: []*gltf.Primitive{prim}})
		written++
		if progress != nil {
			progress(Progress{Phase: PhaseWritingFile, Current: written, Max: len(scene.Meshes)})
		}
	}

	rootIdx := exportGltfNode(doc, scene.Root, meshIndex)
	doc.Scenes = append(doc.Scenes, &gltf.Scene{Nodes: []uint32{rootIdx}})
	doc.Scene = gltf.Index(0)

	if strings.EqualFold(filepath.Ext(path), ".glb") {
		return gltf.SaveBinary(doc, path)
	}
	return gltf.Save(doc, path)
}

// exportGltfNode emits the subtree bottom-up so child indices exist before
// the parent records them. A node with several meshes hangs extra child
// nodes since a gltf node carries at most one mesh.
func exportGltfNode(doc *gltf.Document, n *ForeignNode, meshIndex []uint32) uint32 {
	var children []uint32
	for _, child := range n.Children {
		children = append(children, exportGltfNode(doc, child, meshIndex))
	}

	trs := TransformFromMatrix(&n.Transform)
	nd := &gltf.Node{
		Name:        n.Name,
		Children:    children,
		Translation: [3]float32{float32(trs.Translation[0]), float32(trs.Translation[1]), float32(trs.Translation[2])},
		Rotation:    [4]float32{float32(trs.Rotation[0]), float32(trs.Rotation[1]), float32(trs.Rotation[2]), float32(trs.Rotation[3])},
		Scale:       [3]float32{float32(trs.Scale[0]), float32(trs.Scale[1]), float32(trs.Scale[2])},
	}
	if len(n.MeshIndices) > 0 {
		nd.Mesh = gltf.Index(meshIndex[n.MeshIndices[0]])
		for _, extra := range n.MeshIndices[1:] {
			doc.Nodes = append(doc.Nodes, &gltf.Node{
				Name:     n.Name + "_mesh",
				Mesh:     gltf.Index(meshIndex[extra]),
				Rotation: [4]float32{0, 0, 0, 1},
				Scale:    [3]float32{1, 1, 1},
			})
			nd.Children = append(nd.Children, uint32(len(doc.Nodes)-1))
		}
	}
	doc.Nodes = append(doc.Nodes, nd)
	return uint32(len(doc.Nodes) - 1)
}

func exportGltfMaterial(fm *ForeignMaterial) *gltf.Material {
	base := [4]float32{1, 1, 1, 1}
	if diff, ok := fm.Color(MatKeyColorDiffuse); ok {
		base = diff
	}
	var metallic, roughness float32 = 0, 1
	mt := &gltf.Material{
		Name: fm.Name,
		PBRMetallicRoughness: &gltf.PBRMetallicRoughness{
			BaseColorFactor: &base,
			MetallicFactor:  &metallic,
			RoughnessFactor: &roughness,
		},
	}
	if ts, ok := fm.Int(MatKeyTwoSided); ok && ts != 0 {
		mt.DoubleSided = true
	}
	return mt
}

func vec3ToArr[V ~[3]float32](vs []V) [][3]float32 {
	out := make([][3]float32, len(vs))
	for i, v := range vs {
		out[i] = [3]float32(v)
	}
	return out
}

func (c *gltfCodec) Import(path string, progress ProgressFunc) (*ForeignScene, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, err
	}
	if len(doc.Scenes) == 0 {
		return nil, fmt.Errorf("gltf %s has no scene", path)
	}

	scene := &ForeignScene{Root: &ForeignNode{Name: rootNodeName, Transform: dmat.Ident}}
	imp := &gltfImport{doc: doc, scene: scene, progress: progress}
	if err := imp.importMaterials(); err != nil {
		return nil, err
	}
	if err := imp.importMeshes(); err != nil {
		return nil, err
	}
	for _, n := range doc.Scenes[0].Nodes {
		child, err := imp.importNode(n)
		if err != nil {
			return nil, err
		}
		scene.Root.Children = append(scene.Root.Children, child)
	}
	return scene, nil
}

type gltfImport struct {
	doc      *gltf.Document
	scene    *ForeignScene
	progress ProgressFunc

	// meshRange maps a gltf mesh index to its foreign meshes, one per
	// primitive
	meshRange [][]uint32
}

func (g *gltfImport) importNode(idx uint32) (*ForeignNode, error) {
	nd := g.doc.Nodes[idx]
	fn := &ForeignNode{Name: nd.Name, Transform: nodeTRSMatrix(nd)}
	if nd.Mesh != nil && int(*nd.Mesh) < len(g.meshRange) {
		fn.MeshIndices = append(fn.MeshIndices, g.meshRange[*nd.Mesh]...)
	}
	for _, cn := range nd.Children {
		child, err := g.importNode(cn)
		if err != nil {
			return nil, err
		}
		fn.Children = append(fn.Children, child)
	}
	return fn, nil
}

func nodeTRSMatrix(nd *gltf.Node) dmat.T {
	tra := dvec3.T{float64(nd.Translation[0]), float64(nd.Translation[1]), float64(nd.Translation[2])}
	rot := quaternion.T{float64(nd.Rotation[0]), float64(nd.Rotation[1]), float64(nd.Rotation[2]), float64(nd.Rotation[3])}
	if rot == (quaternion.T{}) {
		rot = quaternion.T{0, 0, 0, 1}
	}
	sc := dvec3.T{float64(nd.Scale[0]), float64(nd.Scale[1]), float64(nd.Scale[2])}
	if sc == (dvec3.T{}) {
		sc = dvec3.T{1, 1, 1}
	}
	return *dmat.Compose(&tra, &rot, &sc)
}

func (g *gltfImport) importMeshes() error {
	g.meshRange = make([][]uint32, len(g.doc.Meshes))
	for mi, mh := range g.doc.Meshes {
		for pi, ps := range mh.Primitives {
			if ps.Indices == nil {
				continue
			}
			fm := &ForeignMesh{
				Name:            fmt.Sprintf("%s_%d", mh.Name, pi),
				NumUVComponents: 2,
			}
			if ps.Material != nil {
				fm.MaterialIndex = *ps.Material
			}
			indices, err := g.readIndices(g.doc.Accessors[*ps.Indices])
			if err != nil {
				return err
			}
			for i := 0; i+2 < len(indices); i += 3 {
				fm.Faces = append(fm.Faces, ForeignFace{Indices: [3]uint32{indices[i], indices[i+1], indices[i+2]}})
			}
			if idx, ok := ps.Attributes["POSITION"]; ok {
				if err := g.readVec3(g.doc.Accessors[idx], &fm.Vertices); err != nil {
					return err
				}
			}
			if idx, ok := ps.Attributes["NORMAL"]; ok {
				if err := g.readVec3(g.doc.Accessors[idx], &fm.Normals); err != nil {
					return err
				}
			}
			if idx, ok := ps.Attributes["TEXCOORD_0"]; ok {
				if err := g.readVec2(g.doc.Accessors[idx], &fm.TexCoords); err != nil {
					return err
				}
			}
			g.meshRange[mi] = append(g.meshRange[mi], uint32(len(g.scene.Meshes)))
			g.scene.Meshes = append(g.scene.Meshes, fm)
		}
		if g.progress != nil {
			g.progress(Progress{Phase: PhaseReadingFile, Current: mi + 1, Max: len(g.doc.Meshes)})
		}
	}
	return nil
}

// accessorReader positions a byte reader at an accessor's data window.
func (g *gltfImport) accessorReader(acc *gltf.Accessor) (*bytes.Buffer, error) {
	if acc.BufferView == nil {
		return nil, fmt.Errorf("sparse accessors are not supported")
	}
	bv := g.doc.BufferViews[*acc.BufferView]
	buffer := g.doc.Buffers[bv.Buffer]
	return bytes.NewBuffer(buffer.Data[int(bv.ByteOffset+acc.ByteOffset):int(bv.ByteOffset+bv.ByteLength)]), nil
}

func (g *gltfImport) readIndices(acc *gltf.Accessor) ([]uint32, error) {
	bf, err := g.accessorReader(acc)
	if err != nil {
		return nil, err
	}
	out := make([]uint32, 0, int(acc.Count))
	switch acc.ComponentType {
	case gltf.ComponentUshort:
		var v uint16
		for i := 0; i < int(acc.Count); i++ {
			if err := binary.Read(bf, binary.LittleEndian, &v); err != nil {
				return nil, err
			}
			out = append(out, uint32(v))
		}
	case gltf.ComponentUint:
		var v uint32
		for i := 0; i < int(acc.Count); i++ {
			if err := binary.Read(bf, binary.LittleEndian, &v); err != nil {
				return nil, err
			}
			out = append(out, v)
		}
	default:
		return nil, fmt.Errorf("unsupported index component type %d", acc.ComponentType)
	}
	return out, nil
}

func (g *gltfImport) readVec3(acc *gltf.Accessor, out *[]vec3.T) error {
	bf, err := g.accessorReader(acc)
	if err != nil {
		return err
	}
	var v [3]float32
	for i := 0; i < int(acc.Count); i++ {
		if err := binary.Read(bf, binary.LittleEndian, &v); err != nil {
			return err
		}
		*out = append(*out, vec3.T(v))
	}
	return nil
}

func (g *gltfImport) readVec2(acc *gltf.Accessor, out *[]vec2.T) error {
	bf, err := g.accessorReader(acc)
	if err != nil {
		return err
	}
	var v [2]float32
	for i := 0; i < int(acc.Count); i++ {
		if err := binary.Read(bf, binary.LittleEndian, &v); err != nil {
			return err
		}
		*out = append(*out, vec2.T(v))
	}
	return nil
}

func (g *gltfImport) importMaterials() error {
	for _, mt := range g.doc.Materials {
		fm := &ForeignMaterial{Name: mt.Name}
		if fm.Name == "" {
			fm.Name = defaultMaterialName
		}
		fm.SetString(MatKeyName, fm.Name)
		if mt.DoubleSided {
			fm.SetInt(MatKeyTwoSided, 1)
		}
		if pbr := mt.PBRMetallicRoughness; pbr != nil {
			if pbr.BaseColorFactor != nil {
				fm.SetColor(MatKeyColorDiffuse, [4]float32{
					float32(pbr.BaseColorFactor[0]),
					float32(pbr.BaseColorFactor[1]),
					float32(pbr.BaseColorFactor[2]),
					float32(pbr.BaseColorFactor[3]),
				})
				fm.SetFloat(MatKeyOpacity, float32(pbr.BaseColorFactor[3]))
			}
			if pbr.BaseColorTexture != nil {
				if ref, ok := g.embedTexture(pbr.BaseColorTexture.Index); ok {
					fm.SetString(TexKeyDiffuse, ref)
				}
			}
		}
		if mt.NormalTexture != nil && mt.NormalTexture.Index != nil {
			if ref, ok := g.embedTexture(*mt.NormalTexture.Index); ok {
				fm.SetString(TexKeyNormals, ref)
			}
		}
		g.scene.Materials = append(g.scene.Materials, fm)
	}
	return nil
}

// embedTexture copies a gltf image's bytes into the foreign texture pool
// and returns the "*N" reference.
func (g *gltfImport) embedTexture(texIdx uint32) (string, bool) {
	if int(texIdx) >= len(g.doc.Textures) {
		return "", false
	}
	src := g.doc.Textures[texIdx].Source
	if src == nil || int(*src) >= len(g.doc.Images) {
		return "", false
	}
	img := g.doc.Images[*src]
	if img.BufferView == nil {
		return "", false
	}
	view := g.doc.BufferViews[*img.BufferView]
	buffer := g.doc.Buffers[view.Buffer]
	data := buffer.Data[view.ByteOffset : view.ByteOffset+view.ByteLength]
	hint := strings.TrimPrefix(img.MimeType, "image/")
	g.scene.Textures = append(g.scene.Textures, &ForeignTexture{FormatHint: hint, Data: append([]byte(nil), data...)})
	return fmt.Sprintf("*%d", len(g.scene.Textures)-1), true
}
