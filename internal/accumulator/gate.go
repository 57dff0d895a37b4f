package accumulator

import (
	"fmt"
	"sync"
)

// Gate is the write capability handed to a Manager. While the gate is
// halted every mutation fails with ErrHalted; reads and verification are
// unaffected. Whoever holds the gate controls halting, so there is no
// process-wide read-only switch.
type Gate struct {
	mu     sync.RWMutex
	halted bool
	reason string
}

// NewGate returns an open gate.
func NewGate() *Gate {
	return &Gate{}
}

// Halt closes the gate.
func (g *Gate) Halt(reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.halted = true
	g.reason = reason
}

// Resume reopens the gate.
func (g *Gate) Resume() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.halted = false
	g.reason = ""
}

// Halted reports whether the gate is closed and why.
func (g *Gate) Halted() (bool, string) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.halted, g.reason
}

// check returns ErrHalted while the gate is closed.
func (g *Gate) check() error {
	if halted, reason := g.Halted(); halted {
		return fmt.Errorf("%s:\n%w", reason, ErrHalted)
	}
	return nil
}
