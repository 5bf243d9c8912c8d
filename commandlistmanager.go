package vkframe

// CommandListManager is the facade handed to Process.Populate: a view
// over one CommandListHandle tagged with the capability mask of the
// command-queue manager that owns it. Go has no run-time up-casting of
// structs the way the distilled interface's as<T>() implies, so this is
// one concrete type; As checks a capability mask and returns the same
// manager, and Graphics/Compute/Transfer/Raytracing use As to build the
// narrower typed wrappers, each only exposing the methods valid for that
// engine.
type CommandListManager struct {
	backend      Backend
	handle       *CommandListHandle
	capabilities EngineType
}

func newCommandListManager(backend Backend, handle *CommandListHandle, capabilities EngineType) *CommandListManager {
	return &CommandListManager{backend: backend, handle: handle, capabilities: capabilities}
}

// EngineType reports the capabilities backing this manager's underlying
// command-queue-manager slot.
func (m *CommandListManager) EngineType() EngineType { return m.capabilities }

// Native exposes the underlying command buffer for facades that need to
// record directly against the backend.
func (m *CommandListManager) Native() CommandBufferHandle { return m.handle.Native() }

// As reinterprets the manager as required, failing with CapabilityMismatch
// if required is not a subset of the manager's capabilities.
func (m *CommandListManager) As(required EngineType) (*CommandListManager, error) {
	if !m.capabilities.Has(required) {
		return nil, &CapabilityMismatch{Have: m.capabilities, Want: required}
	}
	return m, nil
}

// Graphics reinterprets the manager as a GraphicsManager, the thin
// wrapper that exposes Clear.
func (m *CommandListManager) Graphics() (GraphicsManager, error) {
	v, err := m.As(EngineGraphics)
	if err != nil {
		return GraphicsManager{}, err
	}
	return GraphicsManager{m: v}, nil
}

// Compute reinterprets the manager as a ComputeManager.
func (m *CommandListManager) Compute() (ComputeManager, error) {
	v, err := m.As(EngineCompute)
	if err != nil {
		return ComputeManager{}, err
	}
	return ComputeManager{m: v}, nil
}

// Transfer reinterprets the manager as a TransferManager.
func (m *CommandListManager) Transfer() (TransferManager, error) {
	v, err := m.As(EngineTransfer)
	if err != nil {
		return TransferManager{}, err
	}
	return TransferManager{m: v}, nil
}

// Raytracing reinterprets the manager as a RaytracingManager. Per §9
// Open Question (ii), raytracing implies graphics in its capability
// mask, matching the source even though a real RT queue family need not
// itself expose graphics.
func (m *CommandListManager) Raytracing() (RaytracingManager, error) {
	v, err := m.As(EngineRaytracing | EngineGraphics)
	if err != nil {
		return RaytracingManager{}, err
	}
	return RaytracingManager{m: v}, nil
}

// GraphicsManager is the only facade with a concrete recording
// primitive named by the external interface: Clear.
type GraphicsManager struct {
	m *CommandListManager
}

// Clear records a clear-colour command against target.
func (g GraphicsManager) Clear(target RenderTargetHandle, rgba [4]float32) error {
	if err := g.m.backend.ClearColor(g.m.Native(), target, rgba); err != nil {
		return &BackendError{Op: "ClearColor", Err: err}
	}
	return nil
}

// ComputeManager is a capability-gated view with no additional recording
// primitives defined by this repo.
type ComputeManager struct {
	m *CommandListManager
}

// TransferManager is a capability-gated view with no additional recording
// primitives defined by this repo.
type TransferManager struct {
	m *CommandListManager
}

// RaytracingManager is a capability-gated view with no additional
// recording primitives defined by this repo.
type RaytracingManager struct {
	m *CommandListManager
}
