// Package bus arbitrates the storage bus between the panel painter and storage
// mutations. While storage is parked no paint is in progress and none starts.
package bus

import (
	"sync"
	"sync/atomic"
)

// Gate is held shared by the painter for each paint and exclusively by the
// storage consumer for each erase, write, commit or format
type Gate struct {
	mu     sync.RWMutex
	parked atomic.Bool
	parks  atomic.Uint64
}

// Park waits for an in-flight paint to finish and blocks new ones until Unpark
func (g *Gate) Park() {
	g.mu.Lock()
	g.parked.Store(true)
	g.parks.Add(1)
}

// Unpark releases the painter
func (g *Gate) Unpark() {
	g.parked.Store(false)
	g.mu.Unlock()
}

// Paint runs fn while holding the painter side of the gate
func (g *Gate) Paint(fn func() error) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return fn()
}

// Parked reports whether storage currently holds the gate
func (g *Gate) Parked() bool { return g.parked.Load() }

// Parks counts how many times storage parked the painter
func (g *Gate) Parks() uint64 { return g.parks.Load() }
