package vkframe

import (
	"sync"
)

// CommandQueueManager owns one command pool on one queue family and
// serves exactly one (frame, worker) or (cross-frame, worker) slot (§3,
// §4.2). It recycles command buffers, accumulates populated work, submits
// batches, and tracks in-flight submissions.
type CommandQueueManager struct {
	backend      Backend
	pool         PoolHandle
	queue        QueueHandle
	capabilities EngineType

	// throwErrorIfAbandoned is true iff this manager serves a cross-frame
	// async worker slot (§3's CommandQueueManager.throw_error_if_abandoned).
	throwErrorIfAbandoned bool

	// managerIndex identifies this slot for error messages only.
	managerIndex int

	// submitLock is shared by every manager in the family that round-robins
	// onto the same native queue, since the queue itself is externally
	// synchronised (§5, Shared-resource policy): only one submission at a
	// time per queue.
	submitLock *sync.Mutex

	mu        sync.Mutex
	reusable  []*CommandListHandle
	recording *CommandListHandle
	populated []*WorkPiece

	submittedBuffers []*CommandListHandle
	submittedTasks   []*GPUTask
	// submittedEpoch[i] is the device frame number at which
	// submittedTasks[i] was submitted, parallel to submittedTasks.
	submittedEpoch []uint64
}

func newCommandQueueManager(backend Backend, pool PoolHandle, queue QueueHandle, caps EngineType, managerIndex int, throwIfAbandoned bool) *CommandQueueManager {
	return &CommandQueueManager{
		backend:               backend,
		pool:                  pool,
		queue:                 queue,
		capabilities:          caps,
		managerIndex:          managerIndex,
		throwErrorIfAbandoned: throwIfAbandoned,
	}
}

// peek returns the current recording handle, creating one on demand by
// popping from reusable (whenever it is non-empty — §9's resolution of
// Open Question (i)) or allocating fresh from the pool.
func (m *CommandQueueManager) peek() (*CommandListHandle, error) {
	if m.recording != nil {
		return m.recording, nil
	}
	var cl *CommandListHandle
	if n := len(m.reusable); n > 0 {
		cl = m.reusable[n-1]
		m.reusable = m.reusable[:n-1]
	} else {
		cb, err := m.backend.AllocateCommandBuffer(m.pool)
		if err != nil {
			return nil, &BackendError{Op: "AllocateCommandBuffer", Err: err}
		}
		cl = newCommandListHandle(m.backend, cb)
	}
	if err := cl.Open(); err != nil {
		return nil, err
	}
	m.recording = cl
	return cl, nil
}

// populating appends the work piece to the populated list and returns the
// current recording handle for it to record into. Guards populated and
// recording against concurrent submit.
func (m *CommandQueueManager) populating(wp *WorkPiece) (*CommandListHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cl, err := m.peek()
	if err != nil {
		return nil, err
	}
	m.populated = append(m.populated, wp)
	return cl, nil
}

// waitForPopulation awaits every currently-populated work piece's latch,
// over a snapshot taken under the lock; a piece appended by a populating
// call after the snapshot is not waited on. It returns the first
// population error encountered, if any, but still waits on every piece
// in the snapshot.
func (m *CommandQueueManager) waitForPopulation() error {
	m.mu.Lock()
	snapshot := make([]*WorkPiece, len(m.populated))
	copy(snapshot, m.populated)
	m.mu.Unlock()

	var first error
	for _, wp := range snapshot {
		if err := wp.waitPopulated(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// submitCurrent submits the current recording buffer (if any), waiting
// on the union of native semaphores pulled from every unfinished task in
// waitFor. If there is no recording buffer, it returns a trivially
// finished GPU-task without touching the backend. epoch is the device's
// current frame number, recorded against the submission for later
// abandonment bookkeeping.
func (m *CommandQueueManager) submitCurrent(epoch uint64, waitFor []*GPUTask) (*GPUTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.submitCurrentLocked(epoch, waitFor)
}

func (m *CommandQueueManager) submitCurrentLocked(epoch uint64, waitFor []*GPUTask) (*GPUTask, error) {
	if m.recording == nil {
		return newFinishedGPUTask(), nil
	}
	cl := m.recording
	if err := cl.Close(); err != nil {
		return nil, err
	}

	sem, err := m.backend.CreateSemaphore()
	if err != nil {
		return nil, &BackendError{Op: "CreateSemaphore", Err: err}
	}

	waits := collectWaitSemaphores(waitFor)
	if err := m.submitLocked(func() error {
		return m.backend.Submit(m.queue, []CommandBufferHandle{cl.Native()}, waits, &sem)
	}); err != nil {
		return nil, &BackendError{Op: "Submit", Err: err}
	}
	if err := cl.markSubmitted(); err != nil {
		return nil, err
	}

	task := newSemaphoreGPUTask(m.backend, sem)

	m.submittedBuffers = append(m.submittedBuffers, cl)
	m.submittedTasks = append(m.submittedTasks, task)
	m.submittedEpoch = append(m.submittedEpoch, epoch)
	for _, wp := range m.populated {
		wp.markSubmitted()
	}
	m.populated = nil
	m.recording = nil

	return task, nil
}

// submitEmpty opens, closes and submits a fresh command buffer carrying
// no recorded commands, used by Presenter to gate frame boundaries on
// swap-chain semaphores without going through the normal work-piece
// population path.
func (m *CommandQueueManager) submitEmpty(epoch uint64, waits []SemaphoreHandle, signal *SemaphoreHandle) (*GPUTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cl, err := m.peek()
	if err != nil {
		return nil, err
	}
	if err := cl.Close(); err != nil {
		return nil, err
	}

	var sem SemaphoreHandle
	var out *SemaphoreHandle
	if signal != nil {
		sem = *signal
		out = &sem
	} else {
		created, err := m.backend.CreateSemaphore()
		if err != nil {
			return nil, &BackendError{Op: "CreateSemaphore", Err: err}
		}
		sem = created
		out = &sem
	}

	if err := m.submitLocked(func() error {
		return m.backend.Submit(m.queue, []CommandBufferHandle{cl.Native()}, waits, out)
	}); err != nil {
		return nil, &BackendError{Op: "Submit", Err: err}
	}
	if err := cl.markSubmitted(); err != nil {
		return nil, err
	}

	task := newSemaphoreGPUTask(m.backend, *out)
	tracked := task
	if signal != nil {
		// signal belongs to the caller; track it through a union, which
		// owns no semaphore, so retiring this slot never destroys it.
		tracked = CombineGPUTasks(task)
	}
	m.submittedBuffers = append(m.submittedBuffers, cl)
	m.submittedTasks = append(m.submittedTasks, tracked)
	m.submittedEpoch = append(m.submittedEpoch, epoch)
	m.recording = nil
	return task, nil
}

// submitLocked runs fn while holding submitLock, if one is set; tests
// that construct a manager directly without a shared queue lock run fn
// unguarded.
func (m *CommandQueueManager) submitLocked(fn func() error) error {
	if m.submitLock == nil {
		return fn()
	}
	m.submitLock.Lock()
	defer m.submitLock.Unlock()
	return fn()
}

// waitForPendings waits on every unfinished submitted GPU-task, then
// resets and recycles every submitted buffer. This is the per-frame
// "make this slot ready to be reused" step.
func (m *CommandQueueManager) waitForPendings() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range m.submittedTasks {
		t.Wait()
		t.release()
	}
	for _, cl := range m.submittedBuffers {
		if err := cl.Reset(); err != nil {
			return err
		}
		m.reusable = append(m.reusable, cl)
	}
	m.submittedBuffers = nil
	m.submittedTasks = nil
	m.submittedEpoch = nil
	return nil
}

// clean reaps finished submitted tasks on cross-frame async slots and
// detects abandonment. Go has no destructor-driven refcount to inspect,
// so abandonment is approximated by frame epochs instead: a piece that
// is still sitting un-submitted, or a task still un-finished, a full
// frame boundary after it was enqueued has outlived any plausible caller
// still holding its CPUTask/GPUTask (the canonical usage always flushes
// and waits within the same frame it dispatched in, see S3 in §8). epoch
// is the device's current frame number.
func (m *CommandQueueManager) clean(epoch uint64) error {
	if !m.throwErrorIfAbandoned {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.submittedBuffers[:0:0]
	keptTasks := m.submittedTasks[:0:0]
	keptEpoch := m.submittedEpoch[:0:0]
	for i, t := range m.submittedTasks {
		if t.Finished() {
			t.release()
			if err := m.submittedBuffers[i].Reset(); err != nil {
				return err
			}
			m.reusable = append(m.reusable, m.submittedBuffers[i])
			continue
		}
		if epoch > m.submittedEpoch[i] {
			return &AbandonedAsyncTask{
				ManagerIndex: m.managerIndex,
				Detail:       "submitted GPU-task was never waited on across a frame boundary",
			}
		}
		kept = append(kept, m.submittedBuffers[i])
		keptTasks = append(keptTasks, t)
		keptEpoch = append(keptEpoch, m.submittedEpoch[i])
	}
	m.submittedBuffers = kept
	m.submittedTasks = keptTasks
	m.submittedEpoch = keptEpoch

	for _, wp := range m.populated {
		if epoch > wp.enqueuedEpoch {
			return &AbandonedAsyncTask{
				ManagerIndex: m.managerIndex,
				Detail:       "populating work piece was never flushed across a frame boundary",
			}
		}
	}
	return nil
}

// close releases this slot's command pool. Callers must only call this
// after every worker that could still be populating into this manager
// has been joined and every submission retired, since destroying the
// pool invalidates every command buffer allocated from it.
func (m *CommandQueueManager) close() {
	m.backend.DestroyCommandPool(m.pool)
}
