package vkframe

import "github.com/vkframe/vkframe/internal/syncutil"

// DispatchMode selects which thread populates a work piece.
type DispatchMode int

const (
	// MainThread populates the work piece inline, on whichever goroutine
	// called Device.Dispatch.
	MainThread DispatchMode = iota
	// AsyncFrame populates the work piece on a frame-scoped worker; the
	// work piece belongs to the frame that was current at dispatch time.
	AsyncFrame
	// Async populates the work piece on a cross-frame worker; the work
	// piece's manager slot is stable across frames.
	Async
)

func (m DispatchMode) String() string {
	switch m {
	case MainThread:
		return "MainThread"
	case AsyncFrame:
		return "AsyncFrame"
	case Async:
		return "Async"
	default:
		return "Unknown"
	}
}

// WorkState is one of the monotonically-advancing states a WorkPiece
// passes through: DISPATCHED -> POPULATION_COMPLETED -> SUBMITTED.
type WorkState int32

const (
	WorkDispatched WorkState = iota
	WorkPopulationCompleted
	WorkSubmitted
)

func (s WorkState) String() string {
	switch s {
	case WorkDispatched:
		return "Dispatched"
	case WorkPopulationCompleted:
		return "PopulationCompleted"
	case WorkSubmitted:
		return "Submitted"
	default:
		return "Unknown"
	}
}

// WorkPiece is the scheduler's atom: one unit of command recording from
// Dispatch to Submit. See §3 of the design spec for the field-level
// invariants reproduced in the comments below.
type WorkPiece struct {
	process Process
	mode    DispatchMode

	// engineIndex is resolved at creation time from process's required
	// engines. The worker pool's shutdown sentinel is a zero-value
	// WorkPiece, recognised by its nil process rather than by engineIndex.
	engineIndex int

	// managerIndex is set exactly once, before any worker touches the
	// chosen engine manager's command-queue-manager array.
	managerIndex int

	state WorkState

	afterPopulated *syncutil.Latch

	// populateErr holds any error returned by process.Populate, surfaced
	// to the caller through CPUTask.Wait.
	populateErr error

	// enqueuedEpoch is the device's frame number at dispatch time. A
	// cross-frame async manager's clean() compares this against the
	// current epoch to decide whether a still-unsubmitted piece has sat
	// across a frame boundary for longer than the caller should plausibly
	// still be holding its CPUTask — see CommandQueueManager.clean.
	enqueuedEpoch uint64

	// frameIndexAtDispatch is the frame slot (0..frames-1) that was
	// current when this piece was dispatched; ASYNC_FRAME pieces are
	// always populated against this frame's slots, even if the frame
	// advances before a worker picks the piece up.
	frameIndexAtDispatch int
}

func newWorkPiece(process Process, mode DispatchMode, engineIndex int, enqueuedEpoch uint64, frameIndexAtDispatch int) *WorkPiece {
	return &WorkPiece{
		process:              process,
		mode:                 mode,
		engineIndex:          engineIndex,
		managerIndex:         -1,
		state:                WorkDispatched,
		afterPopulated:       syncutil.NewLatch(),
		enqueuedEpoch:        enqueuedEpoch,
		frameIndexAtDispatch: frameIndexAtDispatch,
	}
}

// State reports the work piece's current state.
func (w *WorkPiece) State() WorkState { return w.state }

// setManagerIndex assigns the manager slot exactly once.
func (w *WorkPiece) setManagerIndex(idx int) {
	w.managerIndex = idx
}

// markPopulationCompleted advances DISPATCHED->POPULATION_COMPLETED and
// signals the population latch. Called exactly once, by whichever
// goroutine performed the population (main thread or a worker). err, if
// non-nil, is whatever the process's Populate call returned; it is
// surfaced later through CPUTask.Wait.
func (w *WorkPiece) markPopulationCompleted(err error) {
	w.populateErr = err
	w.state = WorkPopulationCompleted
	w.afterPopulated.Done()
}

// markSubmitted advances POPULATION_COMPLETED->SUBMITTED. Called by the
// CommandQueueManager that owns this piece's slot, while holding that
// manager's mutex.
func (w *WorkPiece) markSubmitted() {
	w.state = WorkSubmitted
}

// waitPopulated blocks until this piece's population has completed and
// returns whatever error the population raised.
func (w *WorkPiece) waitPopulated() error {
	w.afterPopulated.Wait()
	return w.populateErr
}
