package cl

import "sync/atomic"

// guard makes Release of a wrapper issue the driver release exactly once.
type guard struct {
	released atomic.Bool
}

// take marks the wrapper released and reports whether this call did so.
func (g *guard) take() bool { return g.released.CompareAndSwap(false, true) }

func (g *guard) live() bool { return !g.released.Load() }
