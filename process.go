package vkframe

// Process is the application-supplied unit of command recording. A
// Process names the engines it needs (RequiredEngines) and records its
// commands by calling into the CommandListManager facade it is handed
// (Populate).
type Process interface {
	RequiredEngines() EngineType
	Populate(mgr *CommandListManager) error
}

// ProcessFunc adapts a plain function plus a fixed engine requirement
// into a Process, the common case for small inline recorders.
type ProcessFunc struct {
	Engines EngineType
	Fn      func(mgr *CommandListManager) error
}

func (p ProcessFunc) RequiredEngines() EngineType { return p.Engines }
func (p ProcessFunc) Populate(mgr *CommandListManager) error {
	if p.Fn == nil {
		return nil
	}
	return p.Fn(mgr)
}

// noopProcess requires no engines and records nothing. The worker pool's
// shutdown sentinels do not use it: they are zero-value WorkPieces with a
// nil process.
type noopProcess struct{}

func (noopProcess) RequiredEngines() EngineType            { return EngineNone }
func (noopProcess) Populate(mgr *CommandListManager) error { return nil }
