package sceneio

import (
	"errors"

	"github.com/flywave/go3d/float64/vec3"
	"github.com/flywave/go3d/vec2"
	fvec3 "github.com/flywave/go3d/vec3"
)

var (
	// ErrBusy is returned when an export or import is requested while a
	// previous async run has not reached a terminal state yet.
	ErrBusy = errors.New("sceneio: operation already in progress")
	// ErrFileExists is returned when the target file exists and the
	// parameters disallow overwriting it.
	ErrFileExists = errors.New("sceneio: target file exists")
)

// MaterialHandle identifies a surface material owned by the caller. Handles
// are compared by identity, never by content: two distinct handles with the
// same name produce two material records. A nil handle is allowed and maps
// to the default material record.
type MaterialHandle interface {
	MaterialName() string
}

// Exportable is implemented by anything that can contribute mesh sections
// to an export. MeshData may refuse by returning ok=false; a refusing,
// empty or invalid source is skipped as a whole and counted in the result.
type Exportable interface {
	Name() string
	HierarchicalNodeName() string
	MeshData(lod int, skipIfLODMissing bool) (sections []*Section, ok bool)
}

type ProgressPhase int

const (
	PhaseNothing ProgressPhase = iota
	PhaseReadingFile
	PhaseWritingFile
	PhasePostProcessing
	PhaseGatheringMeshes
	PhaseImportingMeshes
	PhaseImportingMaterials
)

func (p ProgressPhase) String() string {
	switch p {
	case PhaseReadingFile:
		return "ReadingFile"
	case PhaseWritingFile:
		return "WritingFile"
	case PhasePostProcessing:
		return "PostProcessing"
	case PhaseGatheringMeshes:
		return "GatheringMeshes"
	case PhaseImportingMeshes:
		return "ImportingMeshes"
	case PhaseImportingMaterials:
		return "ImportingMaterials"
	}
	return "Nothing"
}

// Progress reports how far a phase has advanced. Max may be zero when the
// total is unknown up front.
type Progress struct {
	Phase   ProgressPhase
	Current int
	Max     int
}

type ProgressFunc func(Progress)

// ExportParam controls a single export run.
type ExportParam struct {
	// File is the target path; its extension selects the codec unless
	// FormatID is set explicitly.
	File     string
	FormatID string
	// LOD selects which level of detail sources are asked for.
	LOD int
	// SkipLODNotValid passes the refusal policy through to the sources.
	SkipLODNotValid bool
	// CombineSameMaterial appends sections sharing a material handle into
	// one section per node.
	CombineSameMaterial bool
	OverrideExisting    bool
	Correction          Correction
	Progress            ProgressFunc
}

// AsyncExportParam wraps ExportParam for the incremental path.
type AsyncExportParam struct {
	ExportParam
	// NumGatherPerTick is how many sources each GatherTick call drains.
	// Values below 1 are clamped to 1.
	NumGatherPerTick int
}

// ExportResult is the terminal outcome of an export run. Log accumulates
// the per-source diagnostics; Error is empty on success.
type ExportResult struct {
	Success           bool
	Error             string
	Log               string
	NumSourcesSkipped int
}

// MeshMergeMethod controls whether imported meshes stay separate.
type MeshMergeMethod int

const (
	MeshKeepSeparate MeshMergeMethod = iota
	MeshMerge
)

// SectionMergeMethod controls how sections of one mesh are folded.
type SectionMergeMethod int

const (
	SectionKeepSeparate SectionMergeMethod = iota
	// SectionMergeSameMaterial folds sections whose materials share a
	// name. Material records survive.
	SectionMergeSameMaterial
	// SectionMergeAll folds everything into one section and drops the
	// material records entirely.
	SectionMergeAll
)

// ImportParam controls a single import run.
type ImportParam struct {
	File            string
	FormatID        string
	MeshMethod      MeshMergeMethod
	SectionMethod   SectionMergeMethod
	ImportMaterials bool
	// Normalize recenters the result and scales it so the largest
	// half-extent is normalizeHalfExtent.
	Normalize bool
	// BaseTransform is applied on top of every root-level node transform.
	BaseTransform Transform
	Progress      ProgressFunc
}

// SectionInfo is one imported material-tagged primitive batch.
type SectionInfo struct {
	MaterialName  string
	MaterialIndex int
	Positions     []fvec3.T
	Normals       []fvec3.T
	Tangents      []fvec3.T
	UV0           []vec2.T
	Colors        [][4]float32
	Indices       []uint32
}

type MeshInfo struct {
	Name     string
	Sections []SectionInfo
}

type ScalarParam struct {
	Name  string
	Value float32
}

type VectorParam struct {
	Name  string
	Value [4]float32
}

// TextureParam carries raw encoded texture bytes, either embedded in the
// source file or loaded from a path next to it.
type TextureParam struct {
	Name string
	// FormatHint is the compressed-format hint ("png", "jpg", ...) when
	// the bytes came embedded; empty for file loads.
	FormatHint string
	Data       []byte
}

type MaterialInfo struct {
	Name         string
	TwoSided     bool
	Wireframe    bool
	ShadingModel int
	BlendMode    int
	Scalars      []ScalarParam
	Vectors      []VectorParam
	Textures     []TextureParam
}

// ImportResult is the terminal outcome of an import run.
type ImportResult struct {
	Success   bool
	Error     string
	Log       string
	Meshes    []MeshInfo
	Materials []MaterialInfo
}

// Bounds accumulates an axis-aligned box over imported geometry.
type Bounds struct {
	Min, Max vec3.T
	valid    bool
}

func (b *Bounds) Extend(p vec3.T) {
	if !b.valid {
		b.Min, b.Max = p, p
		b.valid = true
		return
	}
	for i := 0; i < 3; i++ {
		if p[i] < b.Min[i] {
			b.Min[i] = p[i]
		}
		if p[i] > b.Max[i] {
			b.Max[i] = p[i]
		}
	}
}

func (b *Bounds) Valid() bool { return b.valid }

func (b *Bounds) Center() vec3.T {
	return vec3.T{(b.Min[0] + b.Max[0]) / 2, (b.Min[1] + b.Max[1]) / 2, (b.Min[2] + b.Max[2]) / 2}
}

func (b *Bounds) MaxHalfExtent() float64 {
	m := 0.0
	for i := 0; i < 3; i++ {
		if e := (b.Max[i] - b.Min[i]) / 2; e > m {
			m = e
		}
	}
	return m
}
