package vkframe

// CPUTask is a handle for "population finished": it shares ownership of
// a WorkPiece's population latch, keeping the work piece (and therefore
// its Process) alive until at least population has completed.
type CPUTask struct {
	piece *WorkPiece
}

// Wait blocks until the underlying work piece's population has
// completed, returning whatever error the process's Populate call
// produced.
func (t CPUTask) Wait() error {
	if t.piece == nil {
		return nil
	}
	return t.piece.waitPopulated()
}

// done reports whether population has completed, without blocking.
func (t CPUTask) done() bool {
	return t.piece == nil || t.piece.afterPopulated.IsDone()
}
