package vkframe

import (
	"log"
	"sync/atomic"

	"github.com/vkframe/vkframe/internal/syncutil"
)

// defaultQueueCapacity is the bounded MPMC queue capacity used for
// frame-scoped and cross-frame async dispatch when a Description does
// not override it. The distilled interface names only frame_threads and
// async_threads; this repo adds an explicit capacity knob (§8 testable
// property 7 exercises a capacity of 4 directly).
const defaultQueueCapacity = 8

// Device is the top-level scheduler: it enumerates queue families, maps
// engine-capability masks to family indices, owns one EngineManager per
// family, owns the worker pool, and implements dispatch/flush (§4.5).
type Device struct {
	backend Backend
	log     *log.Logger

	engines       []*EngineManager
	engineMapping [engineMappingSize]int // family index, or -1 if unsupported

	frames       int
	frameThreads int
	asyncThreads int

	frameAsyncQueue *syncutil.MPMCQueue[*WorkPiece]
	asyncQueue      *syncutil.MPMCQueue[*WorkPiece]
	workers         *workerPool

	disposed atomic.Bool

	frameIndex  int
	frameNumber uint64

	// currentTarget is the render target Presenter.BeginFrame most
	// recently acquired, exposed so a Technique's OnDispatch (which only
	// ever sees a *Device) can still address "the current render target"
	// the way S1 describes, without needing a reference back to the
	// Presenter that owns it.
	currentTarget RenderTargetHandle

	techniques map[Technique]bool
}

// CurrentRenderTarget reports the render target most recently acquired by
// Presenter.BeginFrame, or the zero handle if nothing has been acquired
// yet (offline devices with no presenter never set this).
func (d *Device) CurrentRenderTarget() RenderTargetHandle { return d.currentTarget }

// newDevice builds the engine-capability mapping from the backend's
// queue families and starts the worker pool. queueCapacity<=0 falls back
// to defaultQueueCapacity.
func newDevice(backend Backend, logger *log.Logger, frames, frameThreads, asyncThreads, queueCapacity int) (*Device, error) {
	if logger == nil {
		logger = log.Default()
	}
	families := backend.QueueFamilies()
	if len(families) == 0 {
		return nil, &ConfigurationError{Reason: "backend exposes no queue families"}
	}
	if queueCapacity <= 0 {
		queueCapacity = defaultQueueCapacity
	}

	d := &Device{
		backend:         backend,
		log:             logger,
		frames:          frames,
		frameThreads:    frameThreads,
		asyncThreads:    asyncThreads,
		frameAsyncQueue: syncutil.NewMPMCQueue[*WorkPiece](queueCapacity),
		asyncQueue:      syncutil.NewMPMCQueue[*WorkPiece](queueCapacity),
		techniques:      make(map[Technique]bool),
	}

	d.engines = make([]*EngineManager, len(families))
	for i, fam := range families {
		em, err := newEngineManager(backend, fam, frames, frameThreads, asyncThreads)
		if err != nil {
			return nil, err
		}
		d.engines[i] = em
		logger.Printf("vkframe: engine manager ready for family %d (capabilities %s, %d slots)", fam.Index, fam.Capabilities, len(em.managers))
	}

	for mask := 0; mask < engineMappingSize; mask++ {
		d.engineMapping[mask] = resolveEngineMapping(families, EngineType(mask))
	}

	d.workers = newWorkerPool(d, frameThreads, asyncThreads)
	d.workers.start()

	return d, nil
}

// resolveEngineMapping returns the family index minimising
// popcount(family.Capabilities) subject to family.Capabilities being a
// superset of mask, ties broken by the smallest family index; -1 if no
// family qualifies.
func resolveEngineMapping(families []QueueFamilyInfo, mask EngineType) int {
	best := -1
	bestPop := 1 << 30
	for _, fam := range families {
		if !fam.Capabilities.Has(mask) {
			continue
		}
		pop := fam.Capabilities.popcount()
		if pop < bestPop {
			bestPop = pop
			best = fam.Index
		}
	}
	return best
}

// createWorkPiece resolves process's engine index and builds a WorkPiece
// for it, failing with ConfigurationError if no family supports the
// process's required capability mask.
func (d *Device) createWorkPiece(process Process, mode DispatchMode) (*WorkPiece, error) {
	mask := process.RequiredEngines()
	engineIndex := d.engineMapping[mask]
	if engineIndex < 0 {
		return nil, &ConfigurationError{Reason: "no queue family supports capability mask " + mask.String()}
	}
	return newWorkPiece(process, mode, engineIndex, d.frameNumber, d.frameIndex), nil
}

// Dispatch creates a work piece for process and routes it for population
// according to mode, degrading ASYNC->ASYNC_FRAME->MAIN_THREAD when the
// corresponding worker count is zero (§4.5).
func (d *Device) Dispatch(process Process, mode DispatchMode) (CPUTask, error) {
	mode = d.degrade(mode)

	wp, err := d.createWorkPiece(process, mode)
	if err != nil {
		return CPUTask{}, err
	}

	switch mode {
	case MainThread:
		wp.setManagerIndex(d.engines[wp.engineIndex].mainThreadManagerIndex(d.frameIndex))
		if err := d.engines[wp.engineIndex].dispatch(wp); err != nil {
			return CPUTask{piece: wp}, err
		}
	case AsyncFrame:
		d.frameAsyncQueue.Produce(wp)
	case Async:
		d.asyncQueue.Produce(wp)
	}
	return CPUTask{piece: wp}, nil
}

func (d *Device) degrade(mode DispatchMode) DispatchMode {
	if mode == Async && d.asyncThreads == 0 {
		mode = AsyncFrame
	}
	if mode == AsyncFrame && d.frameThreads == 0 {
		mode = MainThread
	}
	return mode
}

// Flush waits on every cpuTask's population latch, marks each piece's
// slot for flush on its owning engine, then asks every engine manager to
// flush its marked slots (waiting additionally on waitingGPU), combining
// the results into the children of a fresh union GPU-task.
func (d *Device) Flush(cpuTasks []CPUTask, waitingGPU []*GPUTask) (*GPUTask, error) {
	engineSet := make(map[int]bool)
	for _, t := range cpuTasks {
		if t.piece == nil {
			continue
		}
		if err := t.Wait(); err != nil {
			return nil, err
		}
		d.engines[t.piece.engineIndex].markForFlush(t.piece.managerIndex)
		engineSet[t.piece.engineIndex] = true
	}

	var results []*GPUTask
	for engineIdx := range engineSet {
		if err := d.engines[engineIdx].flushMarked(d.frameNumber, waitingGPU, &results); err != nil {
			return nil, err
		}
	}
	return CombineGPUTasks(results...), nil
}

// CurrentFrameIndex reports the current frame slot (0..frames-1).
func (d *Device) CurrentFrameIndex() int { return d.frameIndex }

// NumberOfFrames reports the number of frame-in-flight slots.
func (d *Device) NumberOfFrames() int { return d.frames }

// LoadTechnique binds tech to this device and fires OnLoad. Calling it
// twice for the same technique is a ConfigurationError.
func (d *Device) LoadTechnique(tech Technique) error {
	if d.techniques[tech] {
		return &ConfigurationError{Reason: "technique already loaded on this device"}
	}
	d.techniques[tech] = true
	return tech.OnLoad(d)
}

// DispatchTechnique fires OnDispatch for tech, which must have been
// bound with LoadTechnique first.
func (d *Device) DispatchTechnique(tech Technique) error {
	if !d.techniques[tech] {
		return &ConfigurationError{Reason: "technique dispatched before being loaded"}
	}
	return tech.OnDispatch(d)
}

// Close disposes the device: it sets disposed, unblocks every worker
// with a shutdown sentinel, and joins the worker pool. Outstanding
// submissions are left for the caller to have already flushed; Close
// does not flush on the caller's behalf.
func (d *Device) Close() error {
	if !d.disposed.CompareAndSwap(false, true) {
		return nil
	}
	d.log.Printf("vkframe: device closing, joining worker pool")
	d.workers.stop()
	for _, e := range d.engines {
		e.close()
	}
	return d.backend.Close()
}
