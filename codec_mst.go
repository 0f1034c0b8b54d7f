package sceneio

import (
	"fmt"
	"os"

	mst "github.com/flywave/go-mst"
	dmat "github.com/flywave/go3d/float64/mat4"
)

// mstCodec reads and writes the mst intermediate mesh container. The node
// tree flattens into one mst mesh node per node-mesh instance; material
// batches map onto face-group batch ids.
type mstCodec struct{}

func (c *mstCodec) FormatID() string     { return "mst" }
func (c *mstCodec) Extensions() []string { return []string{"mst"} }
func (c *mstCodec) CanExport() bool      { return true }
func (c *mstCodec) CanImport() bool      { return true }

func (c *mstCodec) Export(scene *ForeignScene, path string, progress ProgressFunc) error {
	mesh := mst.NewMesh()
	texID := 0
	for _, fm := range scene.Materials {
		mesh.Materials = append(mesh.Materials, exportMstMaterial(fm, &texID))
	}

	total := len(scene.Meshes)
	written := 0
	scene.VisitMeshes(func(node *ForeignNode, fm *ForeignMesh, composed *dmat.T) {
		nd := &mst.MeshNode{}
		for _, v := range fm.Vertices {
			nd.Vertices = append(nd.Vertices, transformPos32(composed, v))
		}
		nd.Normals = append(nd.Normals, fm.Normals...)
		nd.TexCoords = append(nd.TexCoords, fm.TexCoords...)
		tg := &mst.MeshTriangle{Batchid: int32(fm.MaterialIndex)}
		for _, f := range fm.Faces {
			tg.Faces = append(tg.Faces, &mst.Face{Vertex: f.Indices})
		}
		nd.FaceGroup = append(nd.FaceGroup, tg)
		mesh.Nodes = append(mesh.Nodes, nd)
		written++
		if progress != nil {
			progress(Progress{Phase: PhaseWritingFile, Current: written, Max: total})
		}
	})

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	mst.MeshMarshal(f, mesh)
	return f.Close()
}

// exportMstMaterial maps a bound material onto the mst material hierarchy:
// phong when a shininess is carried, pbr otherwise.
func exportMstMaterial(fm *ForeignMaterial, texID *int) mst.MeshMaterial {
	color := [3]byte{200, 200, 200}
	transparency := float32(0)
	if diff, ok := fm.Color(MatKeyColorDiffuse); ok {
		color = [3]byte{byte(diff[0] * 255), byte(diff[1] * 255), byte(diff[2] * 255)}
		transparency = 1 - diff[3]
	}
	if op, ok := fm.Float(MatKeyOpacity); ok {
		transparency = 1 - op
	}

	texMtl := mst.TextureMaterial{
		BaseMaterial: mst.BaseMaterial{Color: color, Transparency: transparency},
	}
	if path, ok := fm.String(TexKeyDiffuse); ok {
		if tex, err := mstTextureFromFile(path, *texID); err == nil {
			texMtl.Texture = tex
			*texID = *texID + 1
		}
	}

	if shininess, ok := fm.Float(MatKeyShininess); ok && shininess > 0 {
		phong := &mst.PhongMaterial{}
		phong.TextureMaterial = texMtl
		phong.Diffuse = color
		phong.Shininess = shininess
		if spec, ok := fm.Color(MatKeyColorSpecular); ok {
			phong.Specular = [3]byte{byte(spec[0] * 255), byte(spec[1] * 255), byte(spec[2] * 255)}
		}
		return phong
	}
	pbr := &mst.PbrMaterial{Metallic: 0, Roughness: 1}
	pbr.TextureMaterial = texMtl
	return pbr
}

func (c *mstCodec) Import(path string, progress ProgressFunc) (*ForeignScene, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	mesh := mst.MeshUnMarshal(f)
	if mesh == nil {
		return nil, fmt.Errorf("not a valid mst file: %s", path)
	}

	scene := &ForeignScene{Root: &ForeignNode{Name: rootNodeName, Transform: dmat.Ident}}
	for i, mtl := range mesh.Materials {
		fm := &ForeignMaterial{Name: fmt.Sprintf("material_%d", i)}
		fm.SetString(MatKeyName, fm.Name)
		cl := mtl.GetColor()
		fm.SetColor(MatKeyColorDiffuse, [4]float32{float32(cl[0]) / 255, float32(cl[1]) / 255, float32(cl[2]) / 255, 1})
		scene.Materials = append(scene.Materials, fm)
	}

	for i, nd := range mesh.Nodes {
		// one foreign mesh per face group; the vertex arrays are shared
		// since group faces index the whole node pool
		for j, tg := range nd.FaceGroup {
			fm := &ForeignMesh{
				Name:            fmt.Sprintf("node_%d_%d", i, j),
				MaterialIndex:   uint32(tg.Batchid),
				Vertices:        nd.Vertices,
				Normals:         nd.Normals,
				TexCoords:       nd.TexCoords,
				NumUVComponents: 2,
			}
			for _, face := range tg.Faces {
				fm.Faces = append(fm.Faces, ForeignFace{Indices: face.Vertex})
			}
			scene.Root.MeshIndices = append(scene.Root.MeshIndices, uint32(len(scene.Meshes)))
			scene.Meshes = append(scene.Meshes, fm)
		}
		if progress != nil {
			progress(Progress{Phase: PhaseReadingFile, Current: i + 1, Max: len(mesh.Nodes)})
		}
	}
	return scene, nil
}
