package sceneio

import (
	"fmt"
	"os"
	"path/filepath"

	dmat "github.com/flywave/go3d/float64/mat4"
	"github.com/flywave/go3d/vec2"
	"github.com/flywave/go3d/vec3"
	fbx "github.com/flywave/ofbx"
)

// fbxCodec reads FBX through ofbx. Geometry arrives corner-expanded per
// material batch; every mesh hangs under a root child carrying its global
// matrix. Writing FBX is not supported.
type fbxCodec struct{}

func (c *fbxCodec) FormatID() string     { return "fbx" }
func (c *fbxCodec) Extensions() []string { return []string{"fbx"} }
func (c *fbxCodec) CanExport() bool      { return false }
func (c *fbxCodec) CanImport() bool      { return true }

func (c *fbxCodec) Export(scene *ForeignScene, path string, progress ProgressFunc) error {
	return fmt.Errorf("fbx export is not supported")
}

func (c *fbxCodec) Import(path string, progress ProgressFunc) (*ForeignScene, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	fbxScene, err := fbx.Load(f)
	if err != nil {
		return nil, err
	}

	scene := &ForeignScene{Root: &ForeignNode{Name: rootNodeName, Transform: dmat.Ident}}
	baseDir := filepath.Dir(path)

	for mi, mh := range fbxScene.Meshes {
		gm := fbx.GetGlobalMatrix(mh)
		node := &ForeignNode{
			Name:      mh.Name(),
			Transform: dmat.FromArray(gm.ToArray()),
		}

		matBase := uint32(len(scene.Materials))
		for _, mt := range mh.Materials {
			scene.Materials = append(scene.Materials, importFbxMaterial(mt, baseDir))
		}

		g := mh.Geometry
		batches := g.Materials
		if len(batches) == 0 {
			batches = make([]int, len(g.Faces))
		}
		// corner-expand into one mesh per material batch
		meshOf := map[int]*ForeignMesh{}
		var batchOrder []int
		for i, face := range g.Faces {
			batch := 0
			if i < len(batches) {
				batch = batches[i]
			}
			fm, ok := meshOf[batch]
			if !ok {
				idx := matBase
				if batch < len(mh.Materials) {
					idx = matBase + uint32(batch)
				}
				fm = &ForeignMesh{
					Name:            fmt.Sprintf("%s_%d", mh.Name(), batch),
					MaterialIndex:   idx,
					NumUVComponents: 2,
				}
				meshOf[batch] = fm
				batchOrder = append(batchOrder, batch)
			}
			base := uint32(len(fm.Vertices))
			for ci, vi := range face {
				v := g.Vertices[vi]
				fm.Vertices = append(fm.Vertices, vec3.T{float32(v[0]), float32(v[1]), float32(v[2])})
				corner := i*3 + ci
				if corner < len(g.Normals) {
					n := g.Normals[corner]
					fm.Normals = append(fm.Normals, vec3.T{float32(n[0]), float32(n[1]), float32(n[2])})
				}
				if g.UVs[0] != nil && corner < len(g.UVs[0]) {
					uv := g.UVs[0][corner]
					fm.TexCoords = append(fm.TexCoords, vec2.T{float32(uv[0]), float32(uv[1])})
				}
			}
			if len(face) >= 3 {
				fm.Faces = append(fm.Faces, ForeignFace{Indices: [3]uint32{base, base + 1, base + 2}})
			}
		}
		if len(mh.Materials) == 0 && len(meshOf) > 0 {
			scene.Materials = append(scene.Materials, defaultForeignMaterial())
		}
		for _, batch := range batchOrder {
			node.MeshIndices = append(node.MeshIndices, uint32(len(scene.Meshes)))
			scene.Meshes = append(scene.Meshes, meshOf[batch])
		}
		scene.Root.Children = append(scene.Root.Children, node)
		if progress != nil {
			progress(Progress{Phase: PhaseReadingFile, Current: mi + 1, Max: len(fbxScene.Meshes)})
		}
	}
	if len(scene.Meshes) == 0 {
		return nil, fmt.Errorf("%s contains no meshes", path)
	}
	return scene, nil
}

func importFbxMaterial(mt *fbx.Material, baseDir string) *ForeignMaterial {
	fm := &ForeignMaterial{Name: defaultMaterialName}
	fm.SetString(MatKeyName, fm.Name)
	fm.SetColor(MatKeyColorDiffuse, [4]float32{
		float32(mt.DiffuseColor.R),
		float32(mt.DiffuseColor.G),
		float32(mt.DiffuseColor.B),
		1,
	})
	if mt.Textures[0] != nil {
		_, fileName := filepath.Split(string(mt.Textures[0].GetFileName()))
		fm.SetString(TexKeyDiffuse, filepath.Join(baseDir, fileName))
	}
	if mt.Textures[1] != nil {
		_, fileName := filepath.Split(string(mt.Textures[1].GetFileName()))
		fm.SetString(TexKeyNormals, filepath.Join(baseDir, fileName))
	}
	return fm
}

func defaultForeignMaterial() *ForeignMaterial {
	fm := &ForeignMaterial{Name: defaultMaterialName}
	fm.SetString(MatKeyName, fm.Name)
	fm.SetColor(MatKeyColorDiffuse, [4]float32{0.8, 0.8, 0.8, 1})
	return fm
}
