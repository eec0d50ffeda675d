package common

import "sync"

// PauseSet is a mutable PauseView used by the administrative surface to halt
// individual modules without touching their state.
type PauseSet struct {
	mu     sync.RWMutex
	paused map[string]bool
}

func NewPauseSet(initial []string) *PauseSet {
	set := &PauseSet{paused: make(map[string]bool)}
	for _, module := range initial {
		if module != "" {
			set.paused[module] = true
		}
	}
	return set
}

// IsPaused implements the PauseView interface.
func (p *PauseSet) IsPaused(module string) bool {
	if p == nil {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.paused[module]
}

// Pause halts the named module's mutating entry points.
func (p *PauseSet) Pause(module string) {
	if p == nil || module == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused[module] = true
}

// Resume lifts a pause.
func (p *PauseSet) Resume(module string) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.paused, module)
}
