package vkframe

// CommandListState is one of the four states a CommandListHandle may be
// in. Allowed transitions: Initial->Recording (Open), Recording->Executable
// (Close), Executable->OnGPU (markSubmitted), OnGPU->Initial (Reset, only
// after the GPU has signalled completion).
type CommandListState int

const (
	CommandListInitial CommandListState = iota
	CommandListRecording
	CommandListExecutable
	CommandListOnGPU
)

func (s CommandListState) String() string {
	switch s {
	case CommandListInitial:
		return "Initial"
	case CommandListRecording:
		return "Recording"
	case CommandListExecutable:
		return "Executable"
	case CommandListOnGPU:
		return "OnGPU"
	default:
		return "Unknown"
	}
}

// CommandListHandle wraps one native command buffer with the state
// machine described in §3. Opening an OnGPU or Executable buffer, or
// resetting a buffer that is not OnGPU, is a programming error reported
// as ResourceStateError.
type CommandListHandle struct {
	backend Backend
	native  CommandBufferHandle
	state   CommandListState
}

func newCommandListHandle(backend Backend, native CommandBufferHandle) *CommandListHandle {
	return &CommandListHandle{backend: backend, native: native, state: CommandListInitial}
}

// Native exposes the backend handle, for use by CommandListManager facades
// recording real commands.
func (c *CommandListHandle) Native() CommandBufferHandle { return c.native }

// State reports the current state.
func (c *CommandListHandle) State() CommandListState { return c.state }

// Open transitions Initial->Recording.
func (c *CommandListHandle) Open() error {
	if c.state != CommandListInitial {
		return &ResourceStateError{From: c.state.String(), To: CommandListRecording.String()}
	}
	if err := c.backend.BeginCommandBuffer(c.native); err != nil {
		return &BackendError{Op: "BeginCommandBuffer", Err: err}
	}
	c.state = CommandListRecording
	return nil
}

// Close transitions Recording->Executable.
func (c *CommandListHandle) Close() error {
	if c.state != CommandListRecording {
		return &ResourceStateError{From: c.state.String(), To: CommandListExecutable.String()}
	}
	if err := c.backend.EndCommandBuffer(c.native); err != nil {
		return &BackendError{Op: "EndCommandBuffer", Err: err}
	}
	c.state = CommandListExecutable
	return nil
}

// markSubmitted transitions Executable->OnGPU. Called by the
// CommandQueueManager immediately after a successful backend submit.
func (c *CommandListHandle) markSubmitted() error {
	if c.state != CommandListExecutable {
		return &ResourceStateError{From: c.state.String(), To: CommandListOnGPU.String()}
	}
	c.state = CommandListOnGPU
	return nil
}

// Reset transitions OnGPU->Initial. Must only be called after the GPU has
// signalled completion of the submission that used this buffer.
func (c *CommandListHandle) Reset() error {
	if c.state != CommandListOnGPU {
		return &ResourceStateError{From: c.state.String(), To: CommandListInitial.String()}
	}
	if err := c.backend.ResetCommandBuffer(c.native); err != nil {
		return &BackendError{Op: "ResetCommandBuffer", Err: err}
	}
	c.state = CommandListInitial
	return nil
}
