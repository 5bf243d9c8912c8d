package vkframe

import "sync"

// EngineManager owns every CommandQueueManager slot bound to one queue
// family (§4.3): frames*(frameThreads+1) frame-scoped slots (one
// MAIN_THREAD slot plus frameThreads ASYNC_FRAME slots per frame),
// followed by asyncThreads cross-frame slots whose index never changes
// across frames.
type EngineManager struct {
	backend      Backend
	family       QueueFamilyInfo
	frames       int
	frameThreads int
	asyncThreads int

	managers []*CommandQueueManager

	mu     sync.Mutex
	marked map[int]bool
}

func newEngineManager(backend Backend, family QueueFamilyInfo, frames, frameThreads, asyncThreads int) (*EngineManager, error) {
	if frames < 1 {
		frames = 1
	}
	slotCount := frames*(frameThreads+1) + asyncThreads
	asyncStart := frames * (frameThreads + 1)

	queueCount := family.QueueCount
	if queueCount < 1 {
		queueCount = 1
	}
	locks := make([]*sync.Mutex, queueCount)
	for i := range locks {
		locks[i] = &sync.Mutex{}
	}

	managers := make([]*CommandQueueManager, slotCount)
	for idx := 0; idx < slotCount; idx++ {
		pool, err := backend.CreateCommandPool(family.Index)
		if err != nil {
			return nil, &BackendError{Op: "CreateCommandPool", Err: err}
		}
		queueIdx := idx % queueCount
		queue := backend.Queue(family.Index, queueIdx)
		throwIfAbandoned := idx >= asyncStart
		cqm := newCommandQueueManager(backend, pool, queue, family.Capabilities, idx, throwIfAbandoned)
		cqm.submitLock = locks[queueIdx]
		managers[idx] = cqm
	}

	return &EngineManager{
		backend:      backend,
		family:       family,
		frames:       frames,
		frameThreads: frameThreads,
		asyncThreads: asyncThreads,
		managers:     managers,
		marked:       make(map[int]bool),
	}, nil
}

// mainThreadManagerIndex, asyncFrameManagerIndex and asyncManagerIndex
// implement the worker-pool index formulas of §4.4.
func (e *EngineManager) mainThreadManagerIndex(frameIndex int) int {
	return frameIndex * (e.frameThreads + 1)
}

func (e *EngineManager) asyncFrameManagerIndex(frameIndex, t int) int {
	return frameIndex*(e.frameThreads+1) + t
}

func (e *EngineManager) asyncManagerIndex(t int) int {
	return e.frames*(e.frameThreads+1) + (t - e.frameThreads - 1)
}

// dispatch records work_piece.process against the slot named by
// work_piece.managerIndex, then marks the piece population-complete.
func (e *EngineManager) dispatch(wp *WorkPiece) error {
	mgr := e.managers[wp.managerIndex]
	cl, err := mgr.populating(wp)
	if err != nil {
		return err
	}
	facade := newCommandListManager(e.backend, cl, mgr.capabilities)
	err = wp.process.Populate(facade)
	wp.markPopulationCompleted(err)
	return err
}

// flush waits for population and submits every frame-scoped slot
// (MAIN_THREAD plus ASYNC_FRAME) belonging to frameIndex, with no
// cross-task wait dependencies, returning the union of the resulting
// GPU-tasks.
func (e *EngineManager) flush(epoch uint64, frameIndex int) (*GPUTask, error) {
	base := frameIndex * (e.frameThreads + 1)
	tasks := make([]*GPUTask, 0, e.frameThreads+1)
	for w := base; w < base+e.frameThreads+1; w++ {
		mgr := e.managers[w]
		if err := mgr.waitForPopulation(); err != nil {
			return nil, err
		}
		task, err := mgr.submitCurrent(epoch, nil)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return CombineGPUTasks(tasks...), nil
}

// waitForCompletion retires every frame-scoped slot belonging to
// frameIndex, then cleans every cross-frame async slot.
func (e *EngineManager) waitForCompletion(epoch uint64, frameIndex int) error {
	base := frameIndex * (e.frameThreads + 1)
	for w := base; w < base+e.frameThreads+1; w++ {
		if err := e.managers[w].waitForPendings(); err != nil {
			return err
		}
	}
	for w := e.frames * (e.frameThreads + 1); w < len(e.managers); w++ {
		if err := e.managers[w].clean(epoch); err != nil {
			return err
		}
	}
	return nil
}

// markForFlush records that managerIdx holds a piece a Device.Flush
// caller is waiting on.
func (e *EngineManager) markForFlush(managerIdx int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.marked[managerIdx] = true
}

// flushMarked submits every slot marked since the last call, waiting on
// waitingGPU in addition to each slot's own population, and appends the
// resulting per-slot GPU-tasks to out.
func (e *EngineManager) flushMarked(epoch uint64, waitingGPU []*GPUTask, out *[]*GPUTask) error {
	e.mu.Lock()
	marked := e.marked
	e.marked = make(map[int]bool)
	e.mu.Unlock()

	for idx := range marked {
		mgr := e.managers[idx]
		if err := mgr.waitForPopulation(); err != nil {
			return err
		}
		task, err := mgr.submitCurrent(epoch, waitingGPU)
		if err != nil {
			return err
		}
		*out = append(*out, task)
	}
	return nil
}

// submitEmpty submits a no-op command list on the first manager slot of
// frameIndex (the main-rendering slot), used by Presenter to gate frame
// boundaries on swap-chain semaphores.
func (e *EngineManager) submitEmpty(epoch uint64, frameIndex int, waits []SemaphoreHandle, signal *SemaphoreHandle) (*GPUTask, error) {
	mgr := e.managers[e.mainThreadManagerIndex(frameIndex)]
	return mgr.submitEmpty(epoch, waits, signal)
}

// capabilities reports this family's engine capabilities.
func (e *EngineManager) capabilities() EngineType { return e.family.Capabilities }

// close releases every slot's command pool. Callers must only call this
// once the worker pool has been joined and no goroutine can still reach
// any of these managers.
func (e *EngineManager) close() {
	for _, m := range e.managers {
		m.close()
	}
}
