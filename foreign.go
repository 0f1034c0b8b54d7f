package sceneio

import (
	dmat "github.com/flywave/go3d/float64/mat4"
	dvec3 "github.com/flywave/go3d/float64/vec3"
	"github.com/flywave/go3d/vec2"
	"github.com/flywave/go3d/vec3"
)

// ForeignScene is the flat structure handed to codecs. During an export it
// only exists inside the bind window: its mesh buffers alias the scene's
// owned arrays and are nil'd again at unbind. Codecs treat it as read-only
// on export and build a fresh one on import.
type ForeignScene struct {
	Root      *ForeignNode
	Meshes    []*ForeignMesh
	Materials []*ForeignMaterial
	Textures  []*ForeignTexture
}

// ForeignNode mirrors one scene node. Transform is relative to the parent;
// the root carries the correction-adjusted root transform.
type ForeignNode struct {
	Name        string
	Transform   dmat.T
	Children    []*ForeignNode
	MeshIndices []uint32
}

// ForeignFace is a single triangle. Flat section indices expand to these
// three-index records at bind time.
type ForeignFace struct {
	Indices [3]uint32
}

// ForeignMesh is one material batch. On export the attribute slices are
// views over scene-owned storage.
type ForeignMesh struct {
	Name          string
	MaterialIndex uint32

	Vertices   []vec3.T
	Normals    []vec3.T
	Tangents   []vec3.T
	Bitangents []vec3.T
	Colors     [][4]float32
	TexCoords  []vec2.T
	// NumUVComponents is the component count of TexCoords; always 2 here.
	NumUVComponents int

	Faces []ForeignFace
}

func (m *ForeignMesh) release() {
	m.Vertices = nil
	m.Normals = nil
	m.Tangents = nil
	m.Bitangents = nil
	m.Colors = nil
	m.TexCoords = nil
	m.Faces = nil
}

// Material property keys, following the assimp key convention the original
// interchange layer speaks.
const (
	MatKeyName               = "?mat.name"
	MatKeyTwoSided           = "$mat.twosided"
	MatKeyWireframe          = "$mat.wireframe"
	MatKeyShadingModel       = "$mat.shadingm"
	MatKeyBlendFunc          = "$mat.blend"
	MatKeyOpacity            = "$mat.opacity"
	MatKeyTransparencyFactor = "$mat.transparencyfactor"
	MatKeyBumpScaling        = "$mat.bumpscaling"
	MatKeyShininess          = "$mat.shininess"
	MatKeyShininessStrength  = "$mat.shinpercent"
	MatKeyReflectivity       = "$mat.reflectivity"
	MatKeyRefraction         = "$mat.refracti"
	MatKeyColorDiffuse       = "$clr.diffuse"
	MatKeyColorSpecular      = "$clr.specular"
	MatKeyColorEmissive      = "$clr.emissive"
	MatKeyColorTransparent   = "$clr.transparent"
	MatKeyColorReflective    = "$clr.reflective"
)

// Texture stack keys; a string prop holds either an embedded-texture
// reference "*N" or a path relative to the scene file.
const (
	TexKeyDiffuse   = "$tex.diffuse"
	TexKeySpecular  = "$tex.specular"
	TexKeyEmissive  = "$tex.emissive"
	TexKeyHeight    = "$tex.height"
	TexKeyNormals   = "$tex.normals"
	TexKeyShininess = "$tex.shininess"
	TexKeyOpacity   = "$tex.opacity"
	TexKeyLightmap  = "$tex.lightmap"
	TexKeyBaseColor = "$tex.basecolor"
	TexKeyMetalness = "$tex.metalness"
	TexKeyRoughness = "$tex.roughness"
)

type propKind int

const (
	propFloat propKind = iota
	propInt
	propColor
	propString
)

type materialProp struct {
	key   string
	kind  propKind
	f     float32
	i     int
	color [4]float32
	str   string
}

// ForeignMaterial is a keyed property bag plus a display name.
type ForeignMaterial struct {
	Name  string
	props []materialProp
}

func (m *ForeignMaterial) SetFloat(key string, v float32) {
	m.props = append(m.props, materialProp{key: key, kind: propFloat, f: v})
}

func (m *ForeignMaterial) SetInt(key string, v int) {
	m.props = append(m.props, materialProp{key: key, kind: propInt, i: v})
}

func (m *ForeignMaterial) SetColor(key string, v [4]float32) {
	m.props = append(m.props, materialProp{key: key, kind: propColor, color: v})
}

func (m *ForeignMaterial) SetString(key string, v string) {
	m.props = append(m.props, materialProp{key: key, kind: propString, str: v})
}

func (m *ForeignMaterial) Float(key string) (float32, bool) {
	for i := range m.props {
		if m.props[i].key == key && m.props[i].kind == propFloat {
			return m.props[i].f, true
		}
	}
	return 0, false
}

func (m *ForeignMaterial) Int(key string) (int, bool) {
	for i := range m.props {
		if m.props[i].key == key {
			switch m.props[i].kind {
			case propInt:
				return m.props[i].i, true
			case propFloat:
				return int(m.props[i].f), true
			}
		}
	}
	return 0, false
}

func (m *ForeignMaterial) Color(key string) ([4]float32, bool) {
	for i := range m.props {
		if m.props[i].key == key && m.props[i].kind == propColor {
			return m.props[i].color, true
		}
	}
	return [4]float32{}, false
}

func (m *ForeignMaterial) String(key string) (string, bool) {
	for i := range m.props {
		if m.props[i].key == key && m.props[i].kind == propString {
			return m.props[i].str, true
		}
	}
	return "", false
}

// ForeignTexture holds encoded image bytes embedded in the scene.
// FormatHint follows the usual three-letter convention ("png", "jpg").
type ForeignTexture struct {
	FormatHint string
	Data       []byte
}

// VisitMeshes walks the node tree composing matrices top-down and calls fn
// once per node-mesh instance. Flattening codecs are built on this.
func (s *ForeignScene) VisitMeshes(fn func(node *ForeignNode, mesh *ForeignMesh, composed *dmat.T)) {
	if s.Root == nil {
		return
	}
	ident := dmat.Ident
	s.visitNode(s.Root, &ident, fn)
}

func (s *ForeignScene) visitNode(n *ForeignNode, parent *dmat.T, fn func(*ForeignNode, *ForeignMesh, *dmat.T)) {
	var composed dmat.T
	composed.AssignMul(parent, &n.Transform)
	for _, idx := range n.MeshIndices {
		if int(idx) < len(s.Meshes) {
			fn(n, s.Meshes[idx], &composed)
		}
	}
	for _, child := range n.Children {
		s.visitNode(child, &composed, fn)
	}
}

// transformPos32 carries a float32 position through a float64 matrix.
func transformPos32(m *dmat.T, v vec3.T) vec3.T {
	dv := m.MulVec3(&dvec3.T{float64(v[0]), float64(v[1]), float64(v[2])})
	return vec3.T{float32(dv[0]), float32(dv[1]), float32(dv[2])}
}
