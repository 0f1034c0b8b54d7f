package sceneio

// gatherState drives section collection over the flattened node list. The
// bulk path drains it in one call; the incremental path resumes at the node
// cursor and each node's nextGatherIndex.
type gatherState struct {
	nodes      []*Node
	nodeCursor int

	lod             int
	skipLODNotValid bool

	total      int
	done       int
	numSkipped int
}

func newGatherState(scene *Scene, lod int, skipLODNotValid bool) *gatherState {
	return &gatherState{
		nodes:           scene.root.flatten(nil),
		lod:             lod,
		skipLODNotValid: skipLODNotValid,
		total:           scene.NumSources(),
	}
}

func (g *gatherState) finished() bool {
	return g.nodeCursor >= len(g.nodes)
}

// step gathers up to count sources and returns how many it visited. A
// source that refuses, returns nothing, or returns any invalid section is
// skipped as a whole.
func (g *gatherState) step(count int, slog *sessionLog, progress ProgressFunc) int {
	if count < 1 {
		count = 1
	}
	visited := 0
	for visited < count && g.nodeCursor < len(g.nodes) {
		node := g.nodes[g.nodeCursor]
		if node.nextGatherIndex >= len(node.sources) {
			g.nodeCursor++
			continue
		}
		src := node.sources[node.nextGatherIndex]
		node.nextGatherIndex++
		g.gatherSource(node, src, slog)
		visited++
		g.done++
		if progress != nil {
			progress(Progress{Phase: PhaseGatheringMeshes, Current: g.done, Max: g.total})
		}
	}
	return visited
}

// all drains the remaining sources in one go.
func (g *gatherState) all(slog *sessionLog, progress ProgressFunc) {
	for !g.finished() {
		g.step(g.total, slog, progress)
	}
}

func (g *gatherState) gatherSource(node *Node, src Exportable, slog *sessionLog) {
	sections, ok := src.MeshData(g.lod, g.skipLODNotValid)
	if !ok {
		slog.Infof("skipping %q: source refused LOD %d", src.Name(), g.lod)
		g.numSkipped++
		return
	}
	if len(sections) == 0 {
		slog.Infof("skipping %q: no sections", src.Name())
		g.numSkipped++
		return
	}
	for i, sec := range sections {
		if !sec.Validate(src.Name(), i, slog) {
			slog.Infof("skipping %q: section %d invalid", src.Name(), i)
			g.numSkipped++
			return
		}
	}
	node.sections = append(node.sections, sections...)
}
