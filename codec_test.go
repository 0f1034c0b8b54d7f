package sceneio

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecLookup(t *testing.T) {
	c, err := codecFor("", "model.glb")
	require.NoError(t, err)
	assert.Equal(t, "gltf", c.FormatID())

	c, err = codecFor("stl", "whatever.bin")
	require.NoError(t, err)
	assert.Equal(t, "stl", c.FormatID())

	_, err = codecFor("", "model.step")
	assert.Error(t, err)
	_, err = codecFor("", "noextension")
	assert.Error(t, err)
}

func TestFormatLists(t *testing.T) {
	assert.Contains(t, ExportFormats(), "gltf")
	assert.Contains(t, ImportFormats(), "fbx")
	assert.NotContains(t, ExportFormats(), "fbx")
}

func TestGlbRoundTrip(t *testing.T) {
	red := &testMaterial{name: "red"}
	blue := &testMaterial{name: "blue"}
	scene := NewScene()
	scene.AddExportObject(&fakeSource{name: "s", node: "root.part",
		sections: []*Section{triSection(red, 0), triSection(blue, 3)}}, "")

	path := filepath.Join(t.TempDir(), "scene.glb")
	result := NewExporter(scene).Export(ExportParam{File: path})
	require.True(t, result.Success, result.Error)

	imported := NewImporter().Import(ImportParam{File: path, ImportMaterials: true})
	require.True(t, imported.Success, imported.Error)
	assert.Len(t, imported.Meshes, 2)
	require.Len(t, imported.Materials, 2)
	names := []string{imported.Materials[0].Name, imported.Materials[1].Name}
	assert.ElementsMatch(t, []string{"red", "blue"}, names)

	total := 0
	for _, m := range imported.Meshes {
		for _, sec := range m.Sections {
			total += len(sec.Positions)
		}
	}
	assert.Equal(t, 6, total)
}

func TestMstRoundTrip(t *testing.T) {
	scene := NewScene()
	scene.AddExportObject(&fakeSource{name: "s", node: "root.part",
		sections: []*Section{triSection(&testMaterial{name: "m"}, 0)}}, "")

	path := filepath.Join(t.TempDir(), "scene.mst")
	result := NewExporter(scene).Export(ExportParam{File: path})
	require.True(t, result.Success, result.Error)

	imported := NewImporter().Import(ImportParam{File: path})
	require.True(t, imported.Success, imported.Error)
	require.Len(t, imported.Meshes, 1)
	sec := imported.Meshes[0].Sections[0]
	assert.Len(t, sec.Positions, 3)
	assert.Equal(t, []uint32{0, 1, 2}, sec.Indices)
}
