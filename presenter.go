package vkframe

import "log"

// PresentMode selects how the presenter acquires and shows its render
// targets (§6).
type PresentMode int

const (
	// Offline never touches a real window or swap chain presentation;
	// render targets are produced and consumed entirely off-screen.
	Offline PresentMode = iota
	// NewWindow opens a new platform window via glfw.
	NewWindow
	// ExistingWindow binds to a window/surface the caller already owns.
	ExistingWindow
)

// ImageUsage is a bitset of swap-chain image usage flags (§6).
type ImageUsage uint8

const (
	UsageTransferSrc  ImageUsage = 1 << 0
	UsageTransferDst  ImageUsage = 1 << 1
	UsageSampled      ImageUsage = 1 << 2
	UsageStorage      ImageUsage = 1 << 3
	UsageRenderTarget ImageUsage = 1 << 4
	UsageDepthStencil ImageUsage = 1 << 5
)

// Resolution is a plain width/height pair.
type Resolution struct {
	Width, Height int
}

// Description configures Presenter.CreateNew (§6, verbatim field list).
type Description struct {
	Mode               PresentMode
	Frames             int
	FrameThreads       int
	AsyncThreads       int
	PresentationFormat string
	ImageUsage         ImageUsage
	WindowName         string
	Resolution         Resolution
	ExistingWindow     Window

	// QueueCapacity overrides the bounded-MPMC capacity used for both
	// dispatch queues; <=0 uses defaultQueueCapacity. Not named by the
	// distilled interface, added so §8's backpressure scenario can be
	// configured directly.
	QueueCapacity int

	Backend Backend
	Logger  *log.Logger
}

// Presenter specialises Device with swap-chain ownership and the
// begin_frame/end_frame frame-boundary protocol (§4.6).
type Presenter struct {
	*Device
	window Window

	imageReadyToRender  []SemaphoreHandle
	imageReadyToPresent []SemaphoreHandle

	// presentEngineIndex is the family resolved by resolvePresentFamily:
	// the family the backend reports as present-capable, preferring one
	// that is also graphics-capable, falling back to the graphics
	// family when the backend has no present-capable family at all
	// (Offline mode with no real surface).
	presentEngineIndex int

	current RenderTargetHandle
}

// CreateNew builds a Presenter from desc. Frames<1 is treated as 1.
func CreateNew(desc Description) (*Presenter, error) {
	if desc.Backend == nil {
		return nil, &ConfigurationError{Reason: "Description.Backend is required"}
	}
	frames := desc.Frames
	if frames < 1 {
		frames = 1
	}

	var win Window
	switch desc.Mode {
	case NewWindow:
		w, err := newGLFWWindow(desc.WindowName, desc.Resolution.Width, desc.Resolution.Height)
		if err != nil {
			return nil, err
		}
		win = w
	case ExistingWindow:
		if desc.ExistingWindow == nil {
			return nil, &ConfigurationError{Reason: "EXISTING_WINDOW mode requires Description.ExistingWindow"}
		}
		win = desc.ExistingWindow
	case Offline:
		win = newHeadlessWindow()
	default:
		return nil, &ConfigurationError{Reason: "unsupported presentation mode"}
	}

	d, err := newDevice(desc.Backend, desc.Logger, frames, desc.FrameThreads, desc.AsyncThreads, desc.QueueCapacity)
	if err != nil {
		return nil, err
	}

	p := &Presenter{Device: d, window: win}
	p.presentEngineIndex = resolvePresentFamily(desc.Backend.QueueFamilies(), d.engineMapping[EngineGraphics])
	p.imageReadyToRender = make([]SemaphoreHandle, frames)
	p.imageReadyToPresent = make([]SemaphoreHandle, frames)
	for i := 0; i < frames; i++ {
		sem, err := desc.Backend.CreateSemaphore()
		if err != nil {
			return nil, &BackendError{Op: "CreateSemaphore", Err: err}
		}
		p.imageReadyToRender[i] = sem
		sem, err = desc.Backend.CreateSemaphore()
		if err != nil {
			return nil, &BackendError{Op: "CreateSemaphore", Err: err}
		}
		p.imageReadyToPresent[i] = sem
	}
	return p, nil
}

// Window returns the presenter's window.
func (p *Presenter) Window() Window { return p.window }

// resolvePresentFamily picks the family Presenter submits its frame-gating
// and present-triggering command lists on: the present-capable family
// that is also graphics-capable if one exists, else any present-capable
// family, else graphicsFamily (which itself may be -1, deferred to
// presentingEngine to report as a ConfigurationError) when the backend
// reports no present-capable family at all.
func resolvePresentFamily(families []QueueFamilyInfo, graphicsFamily int) int {
	anyPresentCapable := -1
	for _, fam := range families {
		if !fam.PresentCapable {
			continue
		}
		if fam.Capabilities.Has(EngineGraphics) {
			return fam.Index
		}
		if anyPresentCapable < 0 {
			anyPresentCapable = fam.Index
		}
	}
	if anyPresentCapable >= 0 {
		return anyPresentCapable
	}
	return graphicsFamily
}

// presentingEngine is the engine manager backing presentation: the
// family resolved by resolvePresentFamily at construction time.
func (p *Presenter) presentingEngine() (*EngineManager, error) {
	if p.presentEngineIndex < 0 {
		return nil, &ConfigurationError{Reason: "no queue family supports presentation"}
	}
	return p.engines[p.presentEngineIndex], nil
}

// BeginFrame retires every engine's slots for the current frame index,
// acquires the next swap-chain image, and submits a no-op command list
// on the main-rendering queue gated on that image's readiness (§4.6).
func (p *Presenter) BeginFrame() error {
	for _, e := range p.engines {
		if err := e.waitForCompletion(p.frameNumber, p.frameIndex); err != nil {
			return err
		}
	}

	ready := p.imageReadyToRender[p.frameIndex]
	target, err := p.backend.AcquireNextImage(ready)
	if err != nil {
		return &BackendError{Op: "AcquireNextImage", Err: err}
	}
	p.current = target
	p.currentTarget = target

	re, err := p.presentingEngine()
	if err != nil {
		return err
	}
	if _, err := re.submitEmpty(p.frameNumber, p.frameIndex, []SemaphoreHandle{ready}, nil); err != nil {
		return err
	}
	return nil
}

// EndFrame flushes every engine's slots for the current frame, submits
// a no-op command list signalling this frame's present semaphore, then
// presents and advances to the next frame slot (§4.6).
func (p *Presenter) EndFrame() error {
	for _, e := range p.engines {
		if _, err := e.flush(p.frameNumber, p.frameIndex); err != nil {
			return err
		}
	}

	signal := p.imageReadyToPresent[p.frameIndex]
	re, err := p.presentingEngine()
	if err != nil {
		return err
	}
	if _, err := re.submitEmpty(p.frameNumber, p.frameIndex, nil, &signal); err != nil {
		return err
	}

	queue := p.backend.Queue(re.family.Index, 0)
	if err := p.backend.Present(queue, signal, p.current); err != nil {
		return &BackendError{Op: "Present", Err: err}
	}

	p.frameIndex = (p.frameIndex + 1) % p.frames
	p.frameNumber++
	return nil
}

// CurrentRenderTarget returns the swap-chain image acquired by the most
// recent BeginFrame call.
func (p *Presenter) CurrentRenderTarget() RenderTargetHandle { return p.current }

// RenderTargetWidth and RenderTargetHeight report the swap chain's
// image dimensions.
func (p *Presenter) RenderTargetWidth() int {
	w, _ := p.backend.RenderTargetSize()
	return w
}

func (p *Presenter) RenderTargetHeight() int {
	_, h := p.backend.RenderTargetSize()
	return h
}
