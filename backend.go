package vkframe

// Backend is the opaque-operations boundary standing in for the raw GPU
// API (§1/§2a of the design spec): command buffers, queues, semaphores
// and the swap chain are assumed available through this interface, and
// the scheduler never reaches past it into a concrete GPU binding. The
// production implementation is backend_vulkan.go; tests use a fakeBackend
// that needs no GPU at all.
type Backend interface {
	// QueueFamilies reports the queue families exposed by the device,
	// in family-index order.
	QueueFamilies() []QueueFamilyInfo

	// Queue returns the queueIndex'th queue of the given family. Families
	// expose at least one queue; callers pick queueIndex modulo the
	// family's queue count to round-robin.
	Queue(familyIndex, queueIndex int) QueueHandle

	// CreateCommandPool allocates a command pool bound to one queue
	// family. Pools are never shared across goroutines.
	CreateCommandPool(familyIndex int) (PoolHandle, error)
	DestroyCommandPool(pool PoolHandle)

	// AllocateCommandBuffer allocates one primary command buffer from
	// pool, in the Initial state.
	AllocateCommandBuffer(pool PoolHandle) (CommandBufferHandle, error)

	// BeginCommandBuffer/EndCommandBuffer/ResetCommandBuffer implement
	// the Initial->Recording, Recording->Executable and
	// OnGPU->Initial transitions at the backend level. CommandListHandle
	// is responsible for rejecting illegal transitions before they ever
	// reach here.
	BeginCommandBuffer(cb CommandBufferHandle) error
	EndCommandBuffer(cb CommandBufferHandle) error
	ResetCommandBuffer(cb CommandBufferHandle) error

	// ClearColor records a clear-colour command into cb, which must be
	// in the Recording state.
	ClearColor(cb CommandBufferHandle, target RenderTargetHandle, rgba [4]float32) error

	CreateSemaphore() (SemaphoreHandle, error)
	DestroySemaphore(sem SemaphoreHandle)
	// WaitSemaphore blocks until sem has been signalled by the device.
	WaitSemaphore(sem SemaphoreHandle) error

	// Submit submits the given command buffers (in order) to queue,
	// waiting on every semaphore in waits (stage "all commands") and, if
	// signal is non-nil, signalling it on completion.
	Submit(queue QueueHandle, cbs []CommandBufferHandle, waits []SemaphoreHandle, signal *SemaphoreHandle) error

	// AcquireNextImage acquires the next swap-chain render target,
	// signalling renderReady once the image is actually available.
	AcquireNextImage(renderReady SemaphoreHandle) (RenderTargetHandle, error)
	// Present enqueues a present of image on queue after waiting on wait.
	Present(queue QueueHandle, wait SemaphoreHandle, image RenderTargetHandle) error

	// RenderTargetSize reports the swap chain's image dimensions.
	RenderTargetSize() (width, height int)

	// Close releases all backend resources.
	Close() error
}

// QueueFamilyInfo describes one hardware queue family.
type QueueFamilyInfo struct {
	Index        int
	Capabilities EngineType
	QueueCount   int

	// PresentCapable reports whether this family can present to the
	// backend's surface. Presentation support is queried per-surface by
	// the native API and is independent of the Transfer/Compute/
	// Graphics/Raytracing capability bits, so it is tracked separately
	// rather than folded into Capabilities (§3 owns a distinct
	// present-capable family index; Presenter resolves it from this
	// field rather than assuming the graphics family always presents).
	PresentCapable bool
}

// The handle types below are intentionally distinct structs rather than
// a shared opaque alias, so that passing the wrong kind of handle into a
// Backend method is a compile error rather than a runtime one.

// PoolHandle identifies a backend command pool.
type PoolHandle struct{ id uint64 }

// CommandBufferHandle identifies a backend command buffer.
type CommandBufferHandle struct{ id uint64 }

// SemaphoreHandle identifies a backend semaphore.
type SemaphoreHandle struct{ id uint64 }

// QueueHandle identifies one native queue.
type QueueHandle struct{ id uint64 }

// RenderTargetHandle identifies one swap-chain image.
type RenderTargetHandle struct {
	id    uint64
	Index int
}

// IsZero reports whether h is the zero value (no command buffer).
func (h CommandBufferHandle) IsZero() bool { return h.id == 0 }
