package sceneio

import (
	"testing"

	dvec3 "github.com/flywave/go3d/float64/vec3"
	"github.com/stretchr/testify/assert"
)

func TestFindOrCreateIdempotent(t *testing.T) {
	root := newRootNode()

	a := root.FindOrCreate("walls.north")
	b := root.FindOrCreate("walls.north")
	assert.Same(t, a, b)
	assert.Len(t, root.Children(), 1)

	c := root.FindOrCreate("walls.south")
	assert.NotSame(t, a, c)
	assert.Len(t, root.Children()[0].Children(), 2)
}

func TestFindOrCreateCaseSensitive(t *testing.T) {
	root := newRootNode()
	a := root.FindOrCreate("Walls")
	b := root.FindOrCreate("walls")
	assert.NotSame(t, a, b)
}

func TestHierarchicalName(t *testing.T) {
	root := newRootNode()
	leaf := root.FindOrCreate("building.floor2.desk")

	assert.Equal(t, "root", root.HierarchicalName())
	assert.Equal(t, "root.building.floor2.desk", leaf.HierarchicalName())
}

func TestSceneFindOrCreateStripsRootPrefix(t *testing.T) {
	scene := NewScene()
	a := scene.findOrCreate("root.props.crate")
	b := scene.Root().FindOrCreate("props.crate")
	assert.Same(t, a, b)
	assert.Same(t, scene.Root(), scene.findOrCreate("root"))
}

func TestRootTransformIsReserved(t *testing.T) {
	root := newRootNode()
	assert.Panics(t, func() { root.SetWorldTransform(IdentityTransform()) })
}

func TestRelativeTransform(t *testing.T) {
	scene := NewScene()
	parent := scene.AddNode("a", translated(dvec3.T{10, 0, 0}))
	child := scene.AddNode("a.b", translated(dvec3.T{10, 5, 0}))

	rel := child.relativeTransform()
	assertVecNear(t, dvec3.T{0, 5, 0}, rel.Translation, eps)

	// parent relative transform equals its world transform under an
	// identity root
	relParent := parent.relativeTransform()
	assertVecNear(t, dvec3.T{10, 0, 0}, relParent.Translation, eps)
}

func TestFlattenPreOrder(t *testing.T) {
	root := newRootNode()
	root.FindOrCreate("a.b")
	root.FindOrCreate("a.c")
	root.FindOrCreate("d")

	var names []string
	for _, n := range root.flatten(nil) {
		names = append(names, n.Name())
	}
	assert.Equal(t, []string{"root", "a", "b", "c", "d"}, names)
}

func TestClearReleasesTree(t *testing.T) {
	scene := NewScene()
	scene.AddExportObject(&fakeSource{name: "s", node: "root.a"}, "")
	assert.Equal(t, 1, scene.NumSources())

	scene.Clear()
	assert.Equal(t, 0, scene.NumSources())
	assert.Empty(t, scene.Root().Children())
}

func translated(v dvec3.T) Transform {
	tr := IdentityTransform()
	tr.Translation = v
	return tr
}
