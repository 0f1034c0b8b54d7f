package sceneio

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

type exportState int

const (
	stateIdle exportState = iota
	statePreparing
	stateGathering
	stateBuilding
	stateBinding
	stateCodecCall
	stateUnbinding
	statePostProcessing
)

// Exporter drives the export pipeline over one scene:
// Idle → Preparing → Gathering → Building → Binding → CodecCall →
// Unbinding → PostProcessing → Idle. The synchronous path runs the whole
// chain on the calling goroutine. The asynchronous path gathers on the
// owning goroutine via GatherTick, hands the remaining phases to a worker
// and marshals progress and the terminal result back through Poll.
//
// An exporter is owned by one goroutine; only the phases behind the worker
// run elsewhere, and they never touch the tree after gathering ends.
type Exporter struct {
	scene *Scene

	mu    sync.Mutex
	state exportState

	// async run state
	gather *gatherState
	slog   *sessionLog
	param  AsyncExportParam
	codec  Codec
	events chan func()
	done   func(ExportResult)
}

func NewExporter(scene *Scene) *Exporter {
	if scene == nil {
		scene = NewScene()
	}
	return &Exporter{scene: scene}
}

func (e *Exporter) Scene() *Scene { return e.scene }

// IsBusy reports whether a run is in flight. While busy every Export call
// is rejected and the scene pools stay untouched by the rejected call.
func (e *Exporter) IsBusy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state != stateIdle
}

func (e *Exporter) setState(s exportState) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// Export runs the whole pipeline synchronously and returns the terminal
// result. A busy exporter rejects immediately.
func (e *Exporter) Export(param ExportParam) ExportResult {
	e.mu.Lock()
	if e.state != stateIdle {
		e.mu.Unlock()
		return ExportResult{Success: false, Error: ErrBusy.Error()}
	}
	e.state = statePreparing
	e.mu.Unlock()

	slog := &sessionLog{}
	codec, err := e.prepare(param, slog)
	if err != nil {
		e.setState(stateIdle)
		return ExportResult{Success: false, Error: err.Error(), Log: slog.String()}
	}

	e.setState(stateGathering)
	gather := newGatherState(e.scene, param.LOD, param.SkipLODNotValid)
	gather.all(slog, param.Progress)

	result := e.finishExport(param, codec, gather, slog)
	e.setState(stateIdle)
	return result
}

// prepare validates the target, resolves the codec and resets per-run
// state. Runs under statePreparing.
func (e *Exporter) prepare(param ExportParam, slog *sessionLog) (Codec, error) {
	codec, err := codecFor(param.FormatID, param.File)
	if err != nil {
		return nil, err
	}
	if !codec.CanExport() {
		return nil, fmt.Errorf("format %q cannot export", codec.FormatID())
	}
	if !param.OverrideExisting {
		if _, err := os.Stat(param.File); err == nil {
			return nil, fmt.Errorf("%w: %s", ErrFileExists, param.File)
		}
	}
	if dir := filepath.Dir(param.File); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create target directory: %w", err)
		}
	}
	e.scene.resetRunState()
	slog.Infof("exporting %d sources to %s (%s)", e.scene.NumSources(), param.File, codec.FormatID())
	return codec, nil
}

// finishExport runs Building through PostProcessing. The unbind is
// unconditional so no foreign view survives a codec failure.
func (e *Exporter) finishExport(param ExportParam, codec Codec, gather *gatherState, slog *sessionLog) ExportResult {
	result := ExportResult{NumSourcesSkipped: gather.numSkipped}

	e.setState(stateBuilding)
	e.scene.buildMeshes(param.CombineSameMaterial, slog)
	if len(e.scene.meshes) == 0 {
		slog.Errorf("nothing to export: all %d sources were skipped or empty", gather.total)
		result.Error = "nothing to export"
		result.Log = slog.String()
		return result
	}

	e.setState(stateBinding)
	foreign := e.scene.bind(param.Correction)

	e.setState(stateCodecCall)
	err := callCodecExport(codec, foreign, param.File, param.Progress)

	e.setState(stateUnbinding)
	e.scene.unbind()

	e.setState(statePostProcessing)
	if param.Progress != nil {
		param.Progress(Progress{Phase: PhasePostProcessing, Current: 1, Max: 1})
	}
	if err != nil {
		slog.Errorf("codec %s: %v", codec.FormatID(), err)
		result.Error = err.Error()
	} else {
		slog.Infof("wrote %s: %d meshes, %d materials, %d sources skipped",
			param.File, len(e.scene.meshes), len(e.scene.matOrder), gather.numSkipped)
		result.Success = true
	}
	result.Log = slog.String()
	return result
}

// callCodecExport converts codec panics into errors so a misbehaving codec
// cannot take down the pipeline while the scene is bound.
func callCodecExport(codec Codec, foreign *ForeignScene, path string, progress ProgressFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("codec panic: %v", r)
		}
	}()
	return codec.Export(foreign, path, progress)
}

// ExportAsync starts an incremental run. The caller keeps ticking
// GatherTick until it reports done, then keeps calling Poll until the done
// callback fires. Both must run on the goroutine that owns the exporter.
func (e *Exporter) ExportAsync(param AsyncExportParam, done func(ExportResult)) error {
	e.mu.Lock()
	if e.state != stateIdle {
		e.mu.Unlock()
		return ErrBusy
	}
	e.state = statePreparing
	e.mu.Unlock()

	slog := &sessionLog{}
	codec, err := e.prepare(param.ExportParam, slog)
	if err != nil {
		e.setState(stateIdle)
		return err
	}
	if param.NumGatherPerTick < 1 {
		param.NumGatherPerTick = 1
	}

	e.slog = slog
	e.param = param
	e.codec = codec
	e.gather = newGatherState(e.scene, param.LOD, param.SkipLODNotValid)
	e.events = make(chan func(), 16)
	e.done = done
	e.setState(stateGathering)
	return nil
}

// GatherTick advances the gathering phase by up to NumGatherPerTick sources
// and reports whether gathering (not the whole run) is finished. Once it
// returns true the remaining phases run on a worker; the caller only needs
// Poll from then on.
func (e *Exporter) GatherTick() (finished bool) {
	e.mu.Lock()
	if e.state != stateGathering {
		e.mu.Unlock()
		return true
	}
	e.mu.Unlock()

	e.gather.step(e.param.NumGatherPerTick, e.slog, e.param.Progress)
	if !e.gather.finished() {
		return false
	}

	e.setState(stateBuilding)
	go e.runWorker()
	return true
}

// runWorker owns Building through PostProcessing off the owning goroutine.
// Progress and the terminal result travel back through the event channel.
func (e *Exporter) runWorker() {
	progress := e.param.Progress
	var marshaled ProgressFunc
	if progress != nil {
		marshaled = func(p Progress) {
			e.events <- func() { progress(p) }
		}
	}
	param := e.param.ExportParam
	param.Progress = marshaled

	result := e.finishExport(param, e.codec, e.gather, e.slog)
	e.events <- func() { e.finish(result) }
}

func (e *Exporter) finish(result ExportResult) {
	e.mu.Lock()
	done := e.done
	e.gather = nil
	e.slog = nil
	e.codec = nil
	e.events = nil
	e.done = nil
	e.state = stateIdle
	e.mu.Unlock()
	if done != nil {
		done(result)
	}
}

// Poll drains pending worker events on the owning goroutine: progress
// callbacks and, eventually, the done callback. Returns false once the run
// has reached a terminal state.
func (e *Exporter) Poll() bool {
	e.mu.Lock()
	events := e.events
	e.mu.Unlock()
	if events == nil {
		return false
	}
	for {
		select {
		case fn := <-events:
			fn()
			e.mu.Lock()
			drained := e.events == nil
			e.mu.Unlock()
			if drained {
				return false
			}
		default:
			return true
		}
	}
}
