package sceneio

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	dmat "github.com/flywave/go3d/float64/mat4"
	"github.com/flywave/go3d/float64/quaternion"
	dvec3 "github.com/flywave/go3d/float64/vec3"
	"github.com/flywave/go3d/vec2"
	fvec3 "github.com/flywave/go3d/vec3"
)

// normalizeHalfExtent is the target largest half-extent after import
// normalization.
const normalizeHalfExtent = 50.0

// Importer reads scene files through the registered codecs and flattens
// them into engine-agnostic mesh and material records. The synchronous path
// runs on the calling goroutine; the asynchronous path runs on a worker and
// delivers progress and the terminal result through Poll.
type Importer struct {
	mu     sync.Mutex
	busy   bool
	events chan func()
	done   func(ImportResult)
}

func NewImporter() *Importer { return &Importer{} }

func (im *Importer) IsBusy() bool {
	im.mu.Lock()
	defer im.mu.Unlock()
	return im.busy
}

// Import runs synchronously and returns the terminal result. A busy
// importer rejects immediately.
func (im *Importer) Import(param ImportParam) ImportResult {
	im.mu.Lock()
	if im.busy {
		im.mu.Unlock()
		return ImportResult{Success: false, Error: ErrBusy.Error()}
	}
	im.busy = true
	im.mu.Unlock()

	result := runImport(param)

	im.mu.Lock()
	im.busy = false
	im.mu.Unlock()
	return result
}

// ImportAsync starts a worker run; the caller drains Poll on the owning
// goroutine until the done callback fires.
func (im *Importer) ImportAsync(param ImportParam, done func(ImportResult)) error {
	im.mu.Lock()
	if im.busy {
		im.mu.Unlock()
		return ErrBusy
	}
	im.busy = true
	im.events = make(chan func(), 16)
	im.done = done
	im.mu.Unlock()

	progress := param.Progress
	if progress != nil {
		param.Progress = func(p Progress) {
			im.events <- func() { progress(p) }
		}
	}
	go func() {
		result := runImport(param)
		im.events <- func() { im.finish(result) }
	}()
	return nil
}

func (im *Importer) finish(result ImportResult) {
	im.mu.Lock()
	done := im.done
	im.events = nil
	im.done = nil
	im.busy = false
	im.mu.Unlock()
	if done != nil {
		done(result)
	}
}

// Poll drains pending worker events; returns false once the run finished.
func (im *Importer) Poll() bool {
	im.mu.Lock()
	events := im.events
	im.mu.Unlock()
	if events == nil {
		return false
	}
	for {
		select {
		case fn := <-events:
			fn()
			im.mu.Lock()
			drained := im.events == nil
			im.mu.Unlock()
			if drained {
				return false
			}
		default:
			return true
		}
	}
}

func runImport(param ImportParam) ImportResult {
	slog := &sessionLog{}
	result := ImportResult{}

	codec, err := codecFor(param.FormatID, param.File)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	if !codec.CanImport() {
		result.Error = fmt.Sprintf("format %q cannot import", codec.FormatID())
		return result
	}
	if param.Progress != nil {
		param.Progress(Progress{Phase: PhaseReadingFile})
	}
	foreign, err := codec.Import(param.File, param.Progress)
	if err != nil {
		slog.Errorf("read %s: %v", param.File, err)
		result.Error = err.Error()
		result.Log = slog.String()
		return result
	}
	if foreign == nil || foreign.Root == nil || len(foreign.Meshes) == 0 {
		slog.Errorf("%s contains no meshes", param.File)
		result.Error = "no meshes in file"
		result.Log = slog.String()
		return result
	}

	walker := &importWalker{
		foreign: foreign,
		param:   param,
		slog:    slog,
		numMesh: len(foreign.Meshes),
	}
	base := param.BaseTransform
	if base.Rotation == (quaternion.T{}) {
		base = IdentityTransform()
	}
	baseMat := base.Mat4()
	walker.walk(foreign.Root, &baseMat)

	result.Meshes = walker.meshes
	applyMeshMerge(&result, param.MeshMethod)
	applySectionMerge(&result, param.SectionMethod)
	if param.Normalize {
		normalizeMeshes(result.Meshes)
	}
	if param.ImportMaterials && param.SectionMethod != SectionMergeAll {
		result.Materials = importMaterials(foreign, filepath.Dir(param.File), param.Progress, slog)
	}

	slog.Infof("imported %s: %d meshes, %d materials", param.File, len(result.Meshes), len(result.Materials))
	result.Success = true
	result.Log = slog.String()
	return result
}

type importWalker struct {
	foreign *ForeignScene
	param   ImportParam
	slog    *sessionLog

	meshes  []MeshInfo
	numMesh int
	seen    int
}

// walk composes transforms top-down (world = parent * local) and emits one
// mesh record per node-mesh instance.
func (w *importWalker) walk(node *ForeignNode, parent *dmat.T) {
	var composed dmat.T
	composed.AssignMul(parent, &node.Transform)

	for _, meshIdx := range node.MeshIndices {
		if int(meshIdx) >= len(w.foreign.Meshes) {
			w.slog.Warnf("node %q references missing mesh %d", node.Name, meshIdx)
			continue
		}
		fm := w.foreign.Meshes[meshIdx]
		name := fm.Name
		if name == "" {
			name = node.Name
		}
		w.meshes = append(w.meshes, MeshInfo{
			Name:     name,
			Sections: []SectionInfo{importSection(w.foreign, fm, &composed)},
		})
		w.seen++
		if w.param.Progress != nil {
			w.param.Progress(Progress{Phase: PhaseImportingMeshes, Current: w.seen, Max: w.numMesh})
		}
	}
	for _, child := range node.Children {
		w.walk(child, &composed)
	}
}

// importSection bakes one foreign mesh into world space. Positions move
// affinely, normals and tangents through the inverse-transpose, and a
// negative determinant flips the triangle winding. The V texture
// coordinate is negated to land in the top-left UV convention.
func importSection(foreign *ForeignScene, fm *ForeignMesh, composed *dmat.T) SectionInfo {
	sec := SectionInfo{MaterialIndex: int(fm.MaterialIndex)}
	if int(fm.MaterialIndex) < len(foreign.Materials) {
		sec.MaterialName = foreign.Materials[fm.MaterialIndex].Name
	}

	sec.Positions = make([]fvec3.T, len(fm.Vertices))
	for i, v := range fm.Vertices {
		p := composed.MulVec3(&dvec3.T{float64(v[0]), float64(v[1]), float64(v[2])})
		sec.Positions[i] = fvec3.T{float32(p[0]), float32(p[1]), float32(p[2])}
	}
	if nm, ok := normalMat3(composed); ok {
		sec.Normals = importDirections(fm.Normals, &nm)
		sec.Tangents = importDirections(fm.Tangents, &nm)
	} else {
		sec.Normals = append(sec.Normals, fm.Normals...)
		sec.Tangents = append(sec.Tangents, fm.Tangents...)
	}
	if len(fm.TexCoords) != 0 {
		sec.UV0 = make([]vec2.T, 0, len(fm.TexCoords))
		for _, uv := range fm.TexCoords {
			sec.UV0 = append(sec.UV0, vec2.T{uv[0], -uv[1]})
		}
	}
	sec.Colors = append(sec.Colors, fm.Colors...)

	flip := det3(composed) < 0
	sec.Indices = make([]uint32, 0, len(fm.Faces)*3)
	for _, f := range fm.Faces {
		if flip {
			sec.Indices = append(sec.Indices, f.Indices[0], f.Indices[2], f.Indices[1])
		} else {
			sec.Indices = append(sec.Indices, f.Indices[0], f.Indices[1], f.Indices[2])
		}
	}
	return sec
}

func importDirections(dirs []fvec3.T, nm *[3][3]float64) []fvec3.T {
	if len(dirs) == 0 {
		return nil
	}
	out := make([]fvec3.T, len(dirs))
	for i, d := range dirs {
		v := mulNormal(nm, dvec3.T{float64(d[0]), float64(d[1]), float64(d[2])})
		out[i] = fvec3.T{float32(v[0]), float32(v[1]), float32(v[2])}
	}
	return out
}

// applyMeshMerge folds every mesh into one nameless record when requested.
func applyMeshMerge(result *ImportResult, method MeshMergeMethod) {
	if method != MeshMerge || len(result.Meshes) <= 1 {
		if method == MeshMerge && len(result.Meshes) == 1 {
			result.Meshes[0].Name = ""
		}
		return
	}
	merged := MeshInfo{}
	for _, m := range result.Meshes {
		merged.Sections = append(merged.Sections, m.Sections...)
	}
	result.Meshes = []MeshInfo{merged}
}

// applySectionMerge folds sections within each mesh. Same-material merging
// keys on the material name; full merging drops the material association.
func applySectionMerge(result *ImportResult, method SectionMergeMethod) {
	if method == SectionKeepSeparate {
		return
	}
	for mi := range result.Meshes {
		mesh := &result.Meshes[mi]
		if len(mesh.Sections) <= 1 && method == SectionMergeSameMaterial {
			continue
		}
		switch method {
		case SectionMergeSameMaterial:
			order := []string{}
			groups := map[string]*SectionInfo{}
			for i := range mesh.Sections {
				sec := &mesh.Sections[i]
				head, ok := groups[sec.MaterialName]
				if !ok {
					cp := *sec
					groups[sec.MaterialName] = &cp
					order = append(order, sec.MaterialName)
					continue
				}
				appendSectionInfo(head, sec)
			}
			mesh.Sections = mesh.Sections[:0]
			for _, name := range order {
				mesh.Sections = append(mesh.Sections, *groups[name])
			}
		case SectionMergeAll:
			head := mesh.Sections[0]
			for i := 1; i < len(mesh.Sections); i++ {
				appendSectionInfo(&head, &mesh.Sections[i])
			}
			head.MaterialName = ""
			head.MaterialIndex = -1
			mesh.Sections = []SectionInfo{head}
		}
	}
}

func appendSectionInfo(dst, src *SectionInfo) {
	offset := len(dst.Positions)
	dst.Positions = append(dst.Positions, src.Positions...)
	dst.Normals = appendPadded(dst.Normals, src.Normals, offset, len(src.Positions))
	dst.Tangents = appendPadded(dst.Tangents, src.Tangents, offset, len(src.Positions))
	dst.UV0 = appendPadded(dst.UV0, src.UV0, offset, len(src.Positions))
	dst.Colors = appendPadded(dst.Colors, src.Colors, offset, len(src.Positions))
	for _, idx := range src.Indices {
		dst.Indices = append(dst.Indices, idx+uint32(offset))
	}
}

// normalizeMeshes recenters everything on the origin and scales uniformly
// so the largest half-extent becomes normalizeHalfExtent.
func normalizeMeshes(meshes []MeshInfo) {
	var bounds Bounds
	for mi := range meshes {
		for si := range meshes[mi].Sections {
			for _, p := range meshes[mi].Sections[si].Positions {
				bounds.Extend(dvec3.T{float64(p[0]), float64(p[1]), float64(p[2])})
			}
		}
	}
	if !bounds.Valid() {
		return
	}
	center := bounds.Center()
	scale := 1.0
	if he := bounds.MaxHalfExtent(); he > 0 {
		scale = normalizeHalfExtent / he
	}
	for mi := range meshes {
		for si := range meshes[mi].Sections {
			positions := meshes[mi].Sections[si].Positions
			for i, p := range positions {
				positions[i] = fvec3.T{
					float32((float64(p[0]) - center[0]) * scale),
					float32((float64(p[1]) - center[1]) * scale),
					float32((float64(p[2]) - center[2]) * scale),
				}
			}
		}
	}
}

var scalarKeys = []struct {
	key  string
	name string
}{
	{MatKeyOpacity, "Opacity"},
	{MatKeyTransparencyFactor, "Transparency"},
	{MatKeyBumpScaling, "BumpScaling"},
	{MatKeyShininess, "Shininess"},
	{MatKeyShininessStrength, "ShininessStrength"},
	{MatKeyReflectivity, "Reflectivity"},
	{MatKeyRefraction, "Refraction"},
}

var vectorKeys = []struct {
	key  string
	name string
}{
	{MatKeyColorDiffuse, "Diffuse"},
	{MatKeyColorSpecular, "Specular"},
	{MatKeyColorEmissive, "Emissive"},
	{MatKeyColorTransparent, "Transparent"},
	{MatKeyColorReflective, "Reflective"},
}

var textureKeys = []struct {
	key  string
	name string
}{
	{TexKeyDiffuse, "Diffuse"},
	{TexKeySpecular, "Specular"},
	{TexKeyEmissive, "Emissive"},
	{TexKeyHeight, "Height"},
	{TexKeyNormals, "Normals"},
	{TexKeyShininess, "Shininess"},
	{TexKeyOpacity, "Opacity"},
	{TexKeyLightmap, "Lightmap"},
	{TexKeyBaseColor, "BaseColor"},
	{TexKeyMetalness, "Metalness"},
	{TexKeyRoughness, "Roughness"},
}

// importMaterials extracts the parameter sets of every foreign material.
// Unknown shading and blend modes keep their raw integer.
func importMaterials(foreign *ForeignScene, baseDir string, progress ProgressFunc, slog *sessionLog) []MaterialInfo {
	out := make([]MaterialInfo, 0, len(foreign.Materials))
	for i, fm := range foreign.Materials {
		info := MaterialInfo{Name: fm.Name}
		if v, ok := fm.Int(MatKeyTwoSided); ok {
			info.TwoSided = v != 0
		}
		if v, ok := fm.Int(MatKeyWireframe); ok {
			info.Wireframe = v != 0
		}
		if v, ok := fm.Int(MatKeyShadingModel); ok {
			info.ShadingModel = v
		}
		if v, ok := fm.Int(MatKeyBlendFunc); ok {
			info.BlendMode = v
		}
		for _, sk := range scalarKeys {
			if v, ok := fm.Float(sk.key); ok {
				info.Scalars = append(info.Scalars, ScalarParam{Name: sk.name, Value: v})
			}
		}
		for _, vk := range vectorKeys {
			if v, ok := fm.Color(vk.key); ok {
				info.Vectors = append(info.Vectors, VectorParam{Name: vk.name, Value: v})
			}
		}
		for _, tk := range textureKeys {
			ref, ok := fm.String(tk.key)
			if !ok {
				continue
			}
			tex, err := resolveTexture(foreign, baseDir, ref)
			if err != nil {
				slog.Warnf("material %q texture %s: %v", fm.Name, tk.name, err)
				continue
			}
			tex.Name = tk.name
			info.Textures = append(info.Textures, tex)
		}
		out = append(out, info)
		if progress != nil {
			progress(Progress{Phase: PhaseImportingMaterials, Current: i + 1, Max: len(foreign.Materials)})
		}
	}
	return out
}

// resolveTexture loads either an embedded texture reference "*N" or a file
// relative to the scene.
func resolveTexture(foreign *ForeignScene, baseDir, ref string) (TextureParam, error) {
	if strings.HasPrefix(ref, "*") {
		idx, err := strconv.Atoi(ref[1:])
		if err != nil || idx < 0 || idx >= len(foreign.Textures) {
			return TextureParam{}, fmt.Errorf("bad embedded texture reference %q", ref)
		}
		return TextureParam{FormatHint: foreign.Textures[idx].FormatHint, Data: foreign.Textures[idx].Data}, nil
	}
	path := sanitizeTexturePath(ref)
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return TextureParam{}, err
	}
	return TextureParam{Data: data}, nil
}

// sanitizeTexturePath strips OBJ bump-map options ("-bm <factor>") that
// some writers leave glued to the file name.
func sanitizeTexturePath(ref string) string {
	if !strings.Contains(ref, "-bm") {
		return strings.TrimSpace(ref)
	}
	fields := strings.Fields(ref)
	out := make([]string, 0, len(fields))
	for i := 0; i < len(fields); i++ {
		if fields[i] == "-bm" {
			i++ // swallow the factor too
			continue
		}
		out = append(out, fields[i])
	}
	return strings.Join(out, " ")
}
