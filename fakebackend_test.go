package vkframe

import "sync"

// fakeBackend is an in-process Backend with no GPU behind it, used by
// every test in this package. Submits are synchronous: a Submit call
// signals its output semaphore immediately unless the test has called
// holdCompletion, which leaves the semaphore unsignalled until released
// explicitly with completePending. This lets abandonment scenarios in
// §8 keep a "submitted but never waited on" GPU-task around on purpose.
type fakeBackend struct {
	mu sync.Mutex

	families []QueueFamilyInfo

	nextID  uint64
	pools   map[uint64]bool
	buffers map[uint64]fakeBuffer
	sems    map[uint64]*fakeSem

	width, height int

	nextImage int
	presented []RenderTargetHandle

	hold bool

	clearCalls int
	lastClear  map[int][4]float32
	closed     bool
}

type fakeBuffer struct {
	pool  uint64
	state CommandListState
}

type fakeSem struct {
	mu        sync.Mutex
	cond      *sync.Cond
	signalled bool
}

func newFakeSem() *fakeSem {
	s := &fakeSem{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *fakeSem) signal() {
	s.mu.Lock()
	s.signalled = true
	s.mu.Unlock()
	s.cond.Broadcast()
}

func (s *fakeSem) wait() {
	s.mu.Lock()
	for !s.signalled {
		s.cond.Wait()
	}
	s.mu.Unlock()
}

// newFakeBackend builds a backend exposing families, defaulting to a
// single family supporting every engine with two queues if none are
// given.
func newFakeBackend(families ...QueueFamilyInfo) *fakeBackend {
	if len(families) == 0 {
		families = []QueueFamilyInfo{
			{Index: 0, Capabilities: EngineTransfer | EngineCompute | EngineGraphics, QueueCount: 2, PresentCapable: true},
		}
	}
	return &fakeBackend{
		families:  families,
		pools:     make(map[uint64]bool),
		buffers:   make(map[uint64]fakeBuffer),
		sems:      make(map[uint64]*fakeSem),
		lastClear: make(map[int][4]float32),
		width:     640,
		height:    480,
	}
}

func (b *fakeBackend) QueueFamilies() []QueueFamilyInfo { return b.families }

func (b *fakeBackend) Queue(familyIndex, queueIndex int) QueueHandle {
	return QueueHandle{id: uint64(familyIndex)<<32 | uint64(uint32(queueIndex))}
}

func (b *fakeBackend) CreateCommandPool(familyIndex int) (PoolHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.pools[id] = true
	return PoolHandle{id: id}, nil
}

func (b *fakeBackend) DestroyCommandPool(pool PoolHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.pools, pool.id)
}

func (b *fakeBackend) AllocateCommandBuffer(pool PoolHandle) (CommandBufferHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.buffers[id] = fakeBuffer{pool: pool.id, state: CommandListInitial}
	return CommandBufferHandle{id: id}, nil
}

func (b *fakeBackend) BeginCommandBuffer(cb CommandBufferHandle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	e := b.buffers[cb.id]
	e.state = CommandListRecording
	b.buffers[cb.id] = e
	return nil
}

func (b *fakeBackend) EndCommandBuffer(cb CommandBufferHandle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	e := b.buffers[cb.id]
	e.state = CommandListExecutable
	b.buffers[cb.id] = e
	return nil
}

func (b *fakeBackend) ResetCommandBuffer(cb CommandBufferHandle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	e := b.buffers[cb.id]
	e.state = CommandListInitial
	b.buffers[cb.id] = e
	return nil
}

func (b *fakeBackend) ClearColor(cb CommandBufferHandle, target RenderTargetHandle, rgba [4]float32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clearCalls++
	b.lastClear[target.Index] = rgba
	return nil
}

// lastClearColor reports the most recent ClearColor call recorded against
// targetIndex, for scenario tests that have no real framebuffer to read
// pixels back from.
func (b *fakeBackend) lastClearColor(targetIndex int) ([4]float32, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.lastClear[targetIndex]
	return v, ok
}

func (b *fakeBackend) CreateSemaphore() (SemaphoreHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.sems[id] = newFakeSem()
	return SemaphoreHandle{id: id}, nil
}

func (b *fakeBackend) DestroySemaphore(sem SemaphoreHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sems, sem.id)
}

func (b *fakeBackend) WaitSemaphore(sem SemaphoreHandle) error {
	b.mu.Lock()
	s := b.sems[sem.id]
	b.mu.Unlock()
	if s == nil {
		return nil
	}
	s.wait()
	return nil
}

func (b *fakeBackend) Submit(queue QueueHandle, cbs []CommandBufferHandle, waits []SemaphoreHandle, signal *SemaphoreHandle) error {
	for _, w := range waits {
		if err := b.WaitSemaphore(w); err != nil {
			return err
		}
	}
	if signal == nil {
		return nil
	}
	b.mu.Lock()
	s := b.sems[signal.id]
	hold := b.hold
	b.mu.Unlock()
	if s == nil {
		return nil
	}
	if !hold {
		s.signal()
	}
	return nil
}

// holdCompletion makes future Submit calls leave their signal semaphore
// unsignalled, so a GPU-task submitted afterwards never becomes Finished
// until completePending is called.
func (b *fakeBackend) holdCompletion(hold bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hold = hold
}

// completePending signals every semaphore created so far, releasing any
// GPU-task currently blocked in Wait.
func (b *fakeBackend) completePending() {
	b.mu.Lock()
	sems := make([]*fakeSem, 0, len(b.sems))
	for _, s := range b.sems {
		sems = append(sems, s)
	}
	b.mu.Unlock()
	for _, s := range sems {
		s.signal()
	}
}

func (b *fakeBackend) AcquireNextImage(renderReady SemaphoreHandle) (RenderTargetHandle, error) {
	b.mu.Lock()
	idx := b.nextImage
	b.nextImage++
	s := b.sems[renderReady.id]
	b.mu.Unlock()
	if s != nil {
		s.signal()
	}
	return RenderTargetHandle{id: uint64(idx) + 1, Index: idx % 3}, nil
}

func (b *fakeBackend) Present(queue QueueHandle, wait SemaphoreHandle, image RenderTargetHandle) error {
	if err := b.WaitSemaphore(wait); err != nil {
		return err
	}
	b.mu.Lock()
	b.presented = append(b.presented, image)
	b.mu.Unlock()
	return nil
}

func (b *fakeBackend) RenderTargetSize() (int, int) { return b.width, b.height }

func (b *fakeBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
