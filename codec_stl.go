package sceneio

import (
	"fmt"
	"path/filepath"
	"strings"

	stl "github.com/flywave/go-stl"
	dmat "github.com/flywave/go3d/float64/mat4"
	"github.com/flywave/go3d/vec3"
)

// stlCodec reads and writes STL. The format has no scene graph or
// materials: export bakes every mesh into one triangle soup, import yields
// a single default-material mesh under the root.
type stlCodec struct{}

func (c *stlCodec) FormatID() string     { return "stl" }
func (c *stlCodec) Extensions() []string { return []string{"stl"} }
func (c *stlCodec) CanExport() bool      { return true }
func (c *stlCodec) CanImport() bool      { return true }

func (c *stlCodec) Export(scene *ForeignScene, path string, progress ProgressFunc) error {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	solid := &stl.Solid{Name: name}

	written := 0
	scene.VisitMeshes(func(node *ForeignNode, fm *ForeignMesh, composed *dmat.T) {
		for _, face := range fm.Faces {
			var tri stl.Triangle
			for i, idx := range face.Indices {
				if int(idx) >= len(fm.Vertices) {
					return
				}
				tri.Vertices[i] = transformPos32(composed, fm.Vertices[idx])
			}
			tri.Normal = faceNormal(tri.Vertices)
			solid.Triangles = append(solid.Triangles, tri)
		}
		written++
		if progress != nil {
			progress(Progress{Phase: PhaseWritingFile, Current: written, Max: len(scene.Meshes)})
		}
	})
	if len(solid.Triangles) == 0 {
		return fmt.Errorf("no triangles to write")
	}
	return solid.WriteFile(path)
}

func faceNormal(v [3]vec3.T) vec3.T {
	e1 := vec3.Sub(&v[1], &v[0])
	e2 := vec3.Sub(&v[2], &v[0])
	n := vec3.Cross(&e1, &e2)
	if l := n.Length(); l > 0 {
		n = n.Scaled(1 / l)
	}
	return n
}

func (c *stlCodec) Import(path string, progress ProgressFunc) (*ForeignScene, error) {
	solid, err := stl.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(solid.Triangles) == 0 {
		return nil, fmt.Errorf("%s contains no triangles", path)
	}

	name := solid.Name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	fm := &ForeignMesh{Name: name, MaterialIndex: 0, NumUVComponents: 2}
	for ti, tri := range solid.Triangles {
		base := uint32(len(fm.Vertices))
		for _, v := range tri.Vertices {
			fm.Vertices = append(fm.Vertices, v)
			fm.Normals = append(fm.Normals, tri.Normal)
		}
		fm.Faces = append(fm.Faces, ForeignFace{Indices: [3]uint32{base, base + 1, base + 2}})
		if progress != nil && (ti+1)%4096 == 0 {
			progress(Progress{Phase: PhaseReadingFile, Current: ti + 1, Max: len(solid.Triangles)})
		}
	}

	scene := &ForeignScene{
		Root:      &ForeignNode{Name: rootNodeName, Transform: dmat.Ident, MeshIndices: []uint32{0}},
		Meshes:    []*ForeignMesh{fm},
		Materials: []*ForeignMaterial{defaultForeignMaterial()},
	}
	return scene, nil
}
