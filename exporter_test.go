package sceneio

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	dmat "github.com/flywave/go3d/float64/mat4"
	"github.com/flywave/go3d/vec3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	name     string
	node     string
	sections []*Section
	refuse   bool
}

func (f *fakeSource) Name() string                 { return f.name }
func (f *fakeSource) HierarchicalNodeName() string { return f.node }

func (f *fakeSource) MeshData(lod int, skip bool) ([]*Section, bool) {
	if f.refuse {
		return nil, false
	}
	return f.sections, true
}

// captureCodec records what was bound during the codec window; the views
// are nil afterwards, so everything of interest is copied out.
type captureCodec struct {
	err error

	numMeshes    int
	numMaterials int
	matNames     []string
	matIndices   []uint32
	vertexCounts []int
	bitanCounts  []int
	rootName     string
	rootMat      dmat.T
	texPath      string
}

func (c *captureCodec) FormatID() string     { return "capture" }
func (c *captureCodec) Extensions() []string { return []string{"capture"} }
func (c *captureCodec) CanExport() bool      { return true }
func (c *captureCodec) CanImport() bool      { return false }

func (c *captureCodec) Import(path string, progress ProgressFunc) (*ForeignScene, error) {
	return nil, errors.New("not supported")
}

func (c *captureCodec) Export(scene *ForeignScene, path string, progress ProgressFunc) error {
	c.numMeshes = len(scene.Meshes)
	c.numMaterials = len(scene.Materials)
	for _, m := range scene.Materials {
		c.matNames = append(c.matNames, m.Name)
		if tex, ok := m.String(TexKeyDiffuse); ok {
			c.texPath = tex
		}
	}
	for _, m := range scene.Meshes {
		c.matIndices = append(c.matIndices, m.MaterialIndex)
		c.vertexCounts = append(c.vertexCounts, len(m.Vertices))
		c.bitanCounts = append(c.bitanCounts, len(m.Bitangents))
	}
	c.rootName = scene.Root.Name
	c.rootMat = scene.Root.Transform
	return c.err
}

func exportTo(t *testing.T, scene *Scene, codec *captureCodec, param ExportParam) ExportResult {
	t.Helper()
	RegisterCodec(codec)
	if param.File == "" {
		param.File = filepath.Join(t.TempDir(), "out.capture")
	}
	param.FormatID = "capture"
	return NewExporter(scene).Export(param)
}

func TestExportSkipAccounting(t *testing.T) {
	scene := NewScene()
	scene.AddExportObject(&fakeSource{name: "refuses", node: "root.a", refuse: true}, "")
	scene.AddExportObject(&fakeSource{name: "empty", node: "root.a"}, "")
	scene.AddExportObject(&fakeSource{name: "good", node: "root.a",
		sections: []*Section{triSection(nil, 0)}}, "")

	codec := &captureCodec{}
	result := exportTo(t, scene, codec, ExportParam{})

	require.True(t, result.Success, result.Error)
	assert.Equal(t, 2, result.NumSourcesSkipped)
	assert.Equal(t, 1, codec.numMeshes)
	assert.Contains(t, result.Log, "refuses")
	assert.Contains(t, result.Log, "empty")
}

func TestExportNothingToExport(t *testing.T) {
	scene := NewScene()
	scene.AddExportObject(&fakeSource{name: "refuses", node: "root.a", refuse: true}, "")

	result := exportTo(t, scene, &captureCodec{}, ExportParam{})
	assert.False(t, result.Success)
	assert.Equal(t, "nothing to export", result.Error)
}

func TestExportGroupingFirstInsertionOrder(t *testing.T) {
	red := &testMaterial{name: "red"}
	blue := &testMaterial{name: "blue"}

	scene := NewScene()
	scene.AddExportObject(&fakeSource{name: "s", node: "root.n", sections: []*Section{
		triSection(red, 0), triSection(blue, 1), triSection(red, 2),
	}}, "")

	codec := &captureCodec{}
	result := exportTo(t, scene, codec, ExportParam{})

	require.True(t, result.Success, result.Error)
	assert.Equal(t, []string{"red", "blue"}, codec.matNames)
	// without combining each section stays its own mesh, ordered by
	// material group
	assert.Equal(t, []uint32{0, 0, 1}, codec.matIndices)
	assert.Equal(t, 3, codec.numMeshes)
}

func TestExportCombineSameMaterial(t *testing.T) {
	red := &testMaterial{name: "red"}
	blue := &testMaterial{name: "blue"}

	scene := NewScene()
	scene.AddExportObject(&fakeSource{name: "s", node: "root.n", sections: []*Section{
		triSection(red, 0), triSection(blue, 1), triSection(red, 2),
	}}, "")

	codec := &captureCodec{}
	result := exportTo(t, scene, codec, ExportParam{CombineSameMaterial: true})

	require.True(t, result.Success, result.Error)
	assert.Equal(t, 2, codec.numMeshes)
	assert.Equal(t, []uint32{0, 1}, codec.matIndices)
	assert.Equal(t, []int{6, 3}, codec.vertexCounts)
}

func TestExportMaterialDedupByIdentity(t *testing.T) {
	// two distinct handles with the same name stay two records
	red1 := &testMaterial{name: "red"}
	red2 := &testMaterial{name: "red", texture: "red.png"}

	scene := NewScene()
	scene.AddExportObject(&fakeSource{name: "s", node: "root.n", sections: []*Section{
		triSection(red1, 0), triSection(red2, 1), triSection(red1, 2),
	}}, "")

	codec := &captureCodec{}
	result := exportTo(t, scene, codec, ExportParam{})

	require.True(t, result.Success, result.Error)
	assert.Equal(t, 2, codec.numMaterials)
	assert.Equal(t, "red.png", codec.texPath)
}

func TestExportNilMaterialDefaults(t *testing.T) {
	scene := NewScene()
	scene.AddExportObject(&fakeSource{name: "s", node: "root.n",
		sections: []*Section{triSection(nil, 0)}}, "")

	codec := &captureCodec{}
	result := exportTo(t, scene, codec, ExportParam{})

	require.True(t, result.Success, result.Error)
	assert.Equal(t, []string{"Unknown"}, codec.matNames)
}

func TestExportBitangentsZeroFilled(t *testing.T) {
	// bitangents are never sourced; every bound mesh carries a
	// zero-filled array matching the vertex count
	scene := NewScene()
	scene.AddExportObject(&fakeSource{name: "s", node: "root.n",
		sections: []*Section{triSection(nil, 0)}}, "")

	codec := &captureCodec{}
	result := exportTo(t, scene, codec, ExportParam{})

	require.True(t, result.Success, result.Error)
	assert.Equal(t, []int{3}, codec.bitanCounts)
}

func TestEmitMeshBitangentsWithoutTangents(t *testing.T) {
	scene := NewScene()
	node := scene.AddNode("root.n", IdentityTransform())
	sec := triSection(nil, 0)
	sec.Tangents = nil

	m := emitMesh(node, sec, 0, 0)

	assert.Empty(t, m.tangents)
	require.Len(t, m.bitangents, 3)
	assert.Equal(t, vec3.T{}, m.bitangents[0])
}

func TestExportBusyRejection(t *testing.T) {
	scene := NewScene()
	scene.AddExportObject(&fakeSource{name: "s", node: "root.n",
		sections: []*Section{triSection(nil, 0)}}, "")

	codec := &captureCodec{}
	RegisterCodec(codec)
	exp := NewExporter(scene)

	dir := t.TempDir()
	var asyncResult *ExportResult
	err := exp.ExportAsync(AsyncExportParam{
		ExportParam:      ExportParam{File: filepath.Join(dir, "a.capture"), FormatID: "capture"},
		NumGatherPerTick: 1,
	}, func(r ExportResult) { asyncResult = &r })
	require.NoError(t, err)
	require.True(t, exp.IsBusy())

	// a second start is rejected without touching the run in flight
	rejected := exp.Export(ExportParam{File: filepath.Join(dir, "b.capture"), FormatID: "capture"})
	assert.False(t, rejected.Success)
	assert.Equal(t, ErrBusy.Error(), rejected.Error)
	assert.ErrorIs(t, exp.ExportAsync(AsyncExportParam{}, nil), ErrBusy)
	assert.Empty(t, scene.meshes)
	assert.Empty(t, scene.matOrder)

	for !exp.GatherTick() {
	}
	waitForAsync(t, exp)
	require.NotNil(t, asyncResult)
	assert.True(t, asyncResult.Success, asyncResult.Error)
	assert.False(t, exp.IsBusy())
}

func TestExportAsyncMatchesSync(t *testing.T) {
	build := func() *Scene {
		red := &testMaterial{name: "red"}
		scene := NewScene()
		scene.AddExportObject(&fakeSource{name: "a", node: "root.x",
			sections: []*Section{triSection(red, 0)}}, "")
		scene.AddExportObject(&fakeSource{name: "b", node: "root.x",
			sections: []*Section{triSection(red, 1), triSection(nil, 2)}}, "")
		scene.AddExportObject(&fakeSource{name: "c", node: "root.y", refuse: true}, "")
		return scene
	}

	syncCodec := &captureCodec{}
	syncResult := exportTo(t, build(), syncCodec, ExportParam{})
	require.True(t, syncResult.Success, syncResult.Error)

	asyncCodec := &captureCodec{}
	RegisterCodec(asyncCodec)
	exp := NewExporter(build())
	var asyncResult *ExportResult
	err := exp.ExportAsync(AsyncExportParam{
		ExportParam:      ExportParam{File: filepath.Join(t.TempDir(), "o.capture"), FormatID: "capture"},
		NumGatherPerTick: 1,
	}, func(r ExportResult) { asyncResult = &r })
	require.NoError(t, err)
	ticks := 0
	for !exp.GatherTick() {
		ticks++
	}
	assert.GreaterOrEqual(t, ticks, 2)
	waitForAsync(t, exp)

	require.NotNil(t, asyncResult)
	assert.Equal(t, syncResult.Success, asyncResult.Success)
	assert.Equal(t, syncResult.NumSourcesSkipped, asyncResult.NumSourcesSkipped)
	assert.Equal(t, syncCodec.matIndices, asyncCodec.matIndices)
	assert.Equal(t, syncCodec.vertexCounts, asyncCodec.vertexCounts)
}

func TestExportUnbindsAfterCodec(t *testing.T) {
	scene := NewScene()
	scene.AddExportObject(&fakeSource{name: "s", node: "root.n",
		sections: []*Section{triSection(nil, 0)}}, "")

	var bound *ForeignScene
	codec := &captureCodec{}
	RegisterCodec(codec)
	RegisterCodec(&hookCodec{hook: func(fs *ForeignScene) { bound = fs }})

	result := NewExporter(scene).Export(ExportParam{
		File:     filepath.Join(t.TempDir(), "o.hook"),
		FormatID: "hook",
	})
	require.True(t, result.Success, result.Error)
	require.NotNil(t, bound)
	assert.Nil(t, bound.Root)
	assert.Nil(t, bound.Meshes)
}

func TestExportCodecErrorStillUnbinds(t *testing.T) {
	scene := NewScene()
	scene.AddExportObject(&fakeSource{name: "s", node: "root.n",
		sections: []*Section{triSection(nil, 0)}}, "")

	codec := &captureCodec{err: errors.New("disk full")}
	result := exportTo(t, scene, codec, ExportParam{})

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "disk full")
	assert.False(t, NewExporter(scene).IsBusy())
	// a rerun works because the previous run unwound completely
	again := exportTo(t, scene, &captureCodec{}, ExportParam{})
	assert.True(t, again.Success, again.Error)
}

func TestExportCorrectionAppliedAtRootOnly(t *testing.T) {
	scene := NewScene()
	scene.AddExportObject(&fakeSource{name: "s", node: "root.n",
		sections: []*Section{triSection(nil, 0)}}, "")

	codec := &captureCodec{}
	result := exportTo(t, scene, codec, ExportParam{
		Correction: Correction{ScaleFactor: 2},
	})

	require.True(t, result.Success, result.Error)
	assert.Equal(t, "root", codec.rootName)
	assert.InDelta(t, 2.0, codec.rootMat[0][0], eps)
	assert.InDelta(t, 2.0, codec.rootMat[1][1], eps)
	assert.InDelta(t, 2.0, codec.rootMat[2][2], eps)
}

func TestExportRefusesExistingFile(t *testing.T) {
	scene := NewScene()
	scene.AddExportObject(&fakeSource{name: "s", node: "root.n",
		sections: []*Section{triSection(nil, 0)}}, "")

	path := filepath.Join(t.TempDir(), "out.capture")
	require.NoError(t, os.WriteFile(path, []byte("occupied"), 0o644))

	codec := &captureCodec{}
	result := exportTo(t, scene, codec, ExportParam{File: path})
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "exists")

	result = exportTo(t, scene, codec, ExportParam{File: path, OverrideExisting: true})
	assert.True(t, result.Success, result.Error)
}

type hookCodec struct {
	hook func(*ForeignScene)
}

func (c *hookCodec) FormatID() string     { return "hook" }
func (c *hookCodec) Extensions() []string { return []string{"hook"} }
func (c *hookCodec) CanExport() bool      { return true }
func (c *hookCodec) CanImport() bool      { return false }

func (c *hookCodec) Import(path string, progress ProgressFunc) (*ForeignScene, error) {
	return nil, errors.New("not supported")
}

func (c *hookCodec) Export(scene *ForeignScene, path string, progress ProgressFunc) error {
	c.hook(scene)
	return nil
}

func waitForAsync(t *testing.T, exp *Exporter) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for exp.IsBusy() {
		exp.Poll()
		if time.Now().After(deadline) {
			t.Fatal("async export did not finish")
		}
		time.Sleep(time.Millisecond)
	}
}
