package vkframe

// Window is a passive interface over whatever windowing system owns the
// presentation surface. §1 treats window-system integration as an
// external collaborator: this repo never reaches past the three
// operations the distilled interface names.
type Window interface {
	IsClosed() bool
	PollEvents()
	Time() float64
}

// headlessWindow backs OFFLINE presentation (EXISTING_WINDOW mode uses
// the caller's Description.ExistingWindow instead); it reports closed
// only after Close and Time is a monotonic counter of PollEvents calls,
// since there is no real clock source to read without a platform window.
type headlessWindow struct {
	closed bool
	ticks  float64
}

func newHeadlessWindow() *headlessWindow { return &headlessWindow{} }

func (w *headlessWindow) IsClosed() bool { return w.closed }
func (w *headlessWindow) PollEvents()    { w.ticks++ }
func (w *headlessWindow) Time() float64  { return w.ticks }

// Close marks the window closed, so a run loop polling IsClosed on an
// OFFLINE presenter's window can end deterministically instead of waiting
// on a real window manager's close event. Presenter itself never calls it.
func (w *headlessWindow) Close() { w.closed = true }
