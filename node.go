package sceneio

import "strings"

// rootNodeName is how the unnamed scene root renders in hierarchical names
// and in the bound structure.
const rootNodeName = "root"

// Node is one entry of the export tree. Nodes carry a world transform;
// relative transforms are derived only when binding. The gather fields are
// ephemeral per-run state.
type Node struct {
	name           string
	worldTransform Transform

	parent   *Node
	children []*Node

	sources []Exportable

	// meshIndices point into the owning scene's mesh pool once built.
	meshIndices []uint32

	// gathered sections plus the resume cursor for incremental gathering.
	sections        []*Section
	nextGatherIndex int

	foreign *ForeignNode
}

func newRootNode() *Node {
	return &Node{name: rootNodeName, worldTransform: IdentityTransform()}
}

func (n *Node) Name() string              { return n.name }
func (n *Node) WorldTransform() Transform { return n.worldTransform }
func (n *Node) Parent() *Node             { return n.parent }
func (n *Node) Children() []*Node         { return n.children }
func (n *Node) IsRoot() bool              { return n.parent == nil }

// HierarchicalName is the dot-separated path from the root, which always
// renders as "root" regardless of its stored name.
func (n *Node) HierarchicalName() string {
	if n.IsRoot() {
		return rootNodeName
	}
	return n.parent.HierarchicalName() + "." + n.name
}

// FindOrCreate walks the dot-separated path below n, creating missing
// nodes. Name matching is case-sensitive and takes the first match among
// siblings. An empty path returns n itself. Created nodes inherit the
// parent's world transform until one is assigned.
func (n *Node) FindOrCreate(path string) *Node {
	if path == "" {
		return n
	}
	current := n
	for _, part := range strings.Split(path, ".") {
		if part == "" {
			continue
		}
		var next *Node
		for _, child := range current.children {
			if child.name == part {
				next = child
				break
			}
		}
		if next == nil {
			next = &Node{
				name:           part,
				worldTransform: current.worldTransform,
				parent:         current,
			}
			current.children = append(current.children, next)
		}
		current = next
	}
	return current
}

// SetWorldTransform assigns the node's placement. Panics on the root: the
// root transform is reserved for the correction step.
func (n *Node) SetWorldTransform(t Transform) {
	if n.IsRoot() {
		panic("sceneio: root transform is owned by the correction step")
	}
	n.worldTransform = t
}

func (n *Node) attachSource(src Exportable) {
	n.sources = append(n.sources, src)
}

// relativeTransform is the node's transform in parent space:
// inverse(parent.world) composed after node.world. The root returns its
// world transform unchanged.
func (n *Node) relativeTransform() Transform {
	if n.IsRoot() {
		return n.worldTransform
	}
	inv := n.parent.worldTransform.Inverse()
	return Mul(&n.worldTransform, &inv)
}

// flatten appends n and all descendants pre-order.
func (n *Node) flatten(out []*Node) []*Node {
	out = append(out, n)
	for _, child := range n.children {
		out = child.flatten(out)
	}
	return out
}

// numSources counts attached sources across the subtree.
func (n *Node) numSources() int {
	total := len(n.sources)
	for _, child := range n.children {
		total += child.numSources()
	}
	return total
}

// clear tears the subtree down bottom-up, unbinding before children are
// released so no foreign view outlives its storage.
func (n *Node) clear() {
	n.unbind()
	for _, child := range n.children {
		child.clear()
		child.parent = nil
	}
	n.children = nil
	n.sources = nil
	n.resetRunState()
}

// resetRunState drops per-run gather and build output across the subtree.
func (n *Node) resetRunState() {
	n.sections = nil
	n.nextGatherIndex = 0
	n.meshIndices = nil
	for _, child := range n.children {
		child.resetRunState()
	}
}

func (n *Node) unbind() {
	n.foreign = nil
	for _, child := range n.children {
		child.unbind()
	}
}
