package common

import "errors"

var (
	ErrModulePaused = errors.New("module paused")
	ErrReentrancy   = errors.New("reentrant call rejected")
)

type PauseView interface {
	IsPaused(module string) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// CallGuard rejects nested entry into a guarded operation. The host executes
// operations strictly serialized, so a held token always means the current
// call re-entered itself (e.g. through a transfer hook) rather than a
// concurrent caller.
type CallGuard struct {
	entered bool
}

// Enter acquires the exclusive execution token. The caller must release it on
// every exit path, typically via defer.
func (g *CallGuard) Enter() error {
	if g == nil {
		return nil
	}
	if g.entered {
		return ErrReentrancy
	}
	g.entered = true
	return nil
}

// Exit releases the execution token.
func (g *CallGuard) Exit() {
	if g == nil {
		return
	}
	g.entered = false
}
