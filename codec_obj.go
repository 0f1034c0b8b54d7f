package sceneio

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gobj "github.com/flywave/go-obj"
	dmat "github.com/flywave/go3d/float64/mat4"
	"github.com/flywave/go3d/vec2"
	"github.com/flywave/go3d/vec3"
)

// objCodec reads Wavefront OBJ through go-obj and writes the text form
// directly, with a sibling MTL file when materials exist.
type objCodec struct{}

func (c *objCodec) FormatID() string     { return "obj" }
func (c *objCodec) Extensions() []string { return []string{"obj"} }
func (c *objCodec) CanExport() bool      { return true }
func (c *objCodec) CanImport() bool      { return true }

func (c *objCodec) Export(scene *ForeignScene, path string, progress ProgressFunc) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	mtlName := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + ".mtl"
	if len(scene.Materials) > 0 {
		fmt.Fprintf(w, "mtllib %s\n", mtlName)
	}

	vertBase, uvBase, normBase := 1, 1, 1
	written := 0
	scene.VisitMeshes(func(node *ForeignNode, fm *ForeignMesh, composed *dmat.T) {
		fmt.Fprintf(w, "o %s\n", fm.Name)
		if int(fm.MaterialIndex) < len(scene.Materials) {
			fmt.Fprintf(w, "usemtl %s\n", scene.Materials[fm.MaterialIndex].Name)
		}
		for _, v := range fm.Vertices {
			p := transformPos32(composed, v)
			fmt.Fprintf(w, "v %g %g %g\n", p[0], p[1], p[2])
		}
		for _, uv := range fm.TexCoords {
			fmt.Fprintf(w, "vt %g %g\n", uv[0], uv[1])
		}
		for _, n := range fm.Normals {
			fmt.Fprintf(w, "vn %g %g %g\n", n[0], n[1], n[2])
		}
		hasUV, hasNorm := len(fm.TexCoords) > 0, len(fm.Normals) > 0
		for _, face := range fm.Faces {
			w.WriteString("f")
			for _, idx := range face.Indices {
				switch {
				case hasUV && hasNorm:
					fmt.Fprintf(w, " %d/%d/%d", vertBase+int(idx), uvBase+int(idx), normBase+int(idx))
				case hasUV:
					fmt.Fprintf(w, " %d/%d", vertBase+int(idx), uvBase+int(idx))
				case hasNorm:
					fmt.Fprintf(w, " %d//%d", vertBase+int(idx), normBase+int(idx))
				default:
					fmt.Fprintf(w, " %d", vertBase+int(idx))
				}
			}
			w.WriteString("\n")
		}
		vertBase += len(fm.Vertices)
		uvBase += len(fm.TexCoords)
		normBase += len(fm.Normals)
		written++
		if progress != nil {
			progress(Progress{Phase: PhaseWritingFile, Current: written, Max: len(scene.Meshes)})
		}
	})
	if err := w.Flush(); err != nil {
		return err
	}
	if len(scene.Materials) > 0 {
		return writeMtlFile(filepath.Join(filepath.Dir(path), mtlName), scene.Materials)
	}
	return nil
}

func writeMtlFile(path string, materials []*ForeignMaterial) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	for _, fm := range materials {
		fmt.Fprintf(w, "newmtl %s\n", fm.Name)
		if diff, ok := fm.Color(MatKeyColorDiffuse); ok {
			fmt.Fprintf(w, "Kd %g %g %g\n", diff[0], diff[1], diff[2])
		}
		if spec, ok := fm.Color(MatKeyColorSpecular); ok {
			fmt.Fprintf(w, "Ks %g %g %g\n", spec[0], spec[1], spec[2])
		}
		if op, ok := fm.Float(MatKeyOpacity); ok {
			fmt.Fprintf(w, "d %g\n", op)
		}
		if ns, ok := fm.Float(MatKeyShininess); ok {
			fmt.Fprintf(w, "Ns %g\n", ns)
		}
		if tex, ok := fm.String(TexKeyDiffuse); ok && !strings.HasPrefix(tex, "*") {
			fmt.Fprintf(w, "map_Kd %s\n", tex)
		}
		w.WriteString("\n")
	}
	return w.Flush()
}

func (c *objCodec) Import(path string, progress ProgressFunc) (*ForeignScene, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	reader := &gobj.ObjReader{}
	if err := reader.Read(f); err != nil {
		return nil, err
	}

	scene := &ForeignScene{Root: &ForeignNode{Name: rootNodeName, Transform: dmat.Ident}}

	// corner-expanded mesh per material, first-use order
	meshOf := map[string]*ForeignMesh{}
	var order []string
	for _, face := range reader.F {
		name := face.Material
		if name == "" {
			name = "default"
		}
		fm, ok := meshOf[name]
		if !ok {
			fm = &ForeignMesh{Name: name, MaterialIndex: uint32(len(order)), NumUVComponents: 2}
			meshOf[name] = fm
			order = append(order, name)
		}
		for _, tri := range triangulateFan(len(face.Corners)) {
			base := uint32(len(fm.Vertices))
			var pos [3]vec3.T
			for i, ci := range tri {
				pos[i] = vertexAt(reader, face.Corners[ci].VertexIndex)
			}
			for i, ci := range tri {
				corner := face.Corners[ci]
				fm.Vertices = append(fm.Vertices, pos[i])
				if corner.TexcoordIndex >= 0 && corner.TexcoordIndex < len(reader.VT) {
					fm.TexCoords = append(fm.TexCoords, reader.VT[corner.TexcoordIndex])
				} else {
					fm.TexCoords = append(fm.TexCoords, vec2.T{})
				}
				if corner.NormalIndex >= 0 && corner.NormalIndex < len(reader.VN) {
					fm.Normals = append(fm.Normals, reader.VN[corner.NormalIndex])
				} else {
					fm.Normals = append(fm.Normals, faceNormal(pos))
				}
			}
			fm.Faces = append(fm.Faces, ForeignFace{Indices: [3]uint32{base, base + 1, base + 2}})
		}
	}

	var mtlData map[string]*gobj.Material
	if reader.MTL != "" {
		mtlPath := reader.MTL
		if !filepath.IsAbs(mtlPath) {
			mtlPath = filepath.Join(filepath.Dir(path), mtlPath)
		}
		if loaded, err := gobj.ReadMaterials(mtlPath); err == nil {
			mtlData = loaded
		}
	}
	for _, name := range order {
		scene.Materials = append(scene.Materials, importObjMaterial(name, mtlData[name]))
		fm := meshOf[name]
		scene.Root.MeshIndices = append(scene.Root.MeshIndices, uint32(len(scene.Meshes)))
		scene.Meshes = append(scene.Meshes, fm)
		if progress != nil {
			progress(Progress{Phase: PhaseReadingFile, Current: len(scene.Meshes), Max: len(order)})
		}
	}
	if len(scene.Meshes) == 0 {
		return nil, fmt.Errorf("%s contains no faces", path)
	}
	return scene, nil
}

func importObjMaterial(name string, objMat *gobj.Material) *ForeignMaterial {
	fm := &ForeignMaterial{Name: name}
	fm.SetString(MatKeyName, name)
	if objMat == nil {
		fm.SetColor(MatKeyColorDiffuse, [4]float32{0.8, 0.8, 0.8, 1})
		return fm
	}
	fm.SetColor(MatKeyColorDiffuse, colorProp(objMat.Diffuse, float32(objMat.Opacity)))
	fm.SetColor(MatKeyColorSpecular, colorProp(objMat.Specular, 1))
	fm.SetColor(MatKeyColorEmissive, colorProp(objMat.Emissive, 1))
	fm.SetFloat(MatKeyOpacity, float32(objMat.Opacity))
	fm.SetFloat(MatKeyShininess, float32(objMat.Shininess))
	if objMat.DiffuseTexture != "" {
		fm.SetString(TexKeyDiffuse, objMat.DiffuseTexture)
	}
	if objMat.BumpTexture != "" {
		fm.SetString(TexKeyHeight, objMat.BumpTexture)
	}
	return fm
}

func colorProp(c []float32, alpha float32) [4]float32 {
	if len(c) < 3 {
		return [4]float32{1, 1, 1, alpha}
	}
	return [4]float32{c[0], c[1], c[2], alpha}
}

// triangulateFan fans an n-corner polygon into corner-index triples.
func triangulateFan(n int) [][3]int {
	if n < 3 {
		return nil
	}
	out := make([][3]int, 0, n-2)
	for i := 1; i < n-1; i++ {
		out = append(out, [3]int{0, i, i + 1})
	}
	return out
}

func vertexAt(reader *gobj.ObjReader, idx int) vec3.T {
	if idx >= 0 && idx < len(reader.V) {
		return reader.V[idx]
	}
	return vec3.T{}
}
