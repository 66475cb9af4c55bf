// Package scripthandle is the content-addressed pool that hands out
// stable integer handles resources can hold onto across the network
// object-id space getting reused, per §4.7.6.
package scripthandle

import "sync"

// PoolSize is the number of slots in the handle pool.
const PoolSize = 1500

// Base is added to a pool index to form the externally visible
// handle, keeping it out of the network object-id range.
const Base = 0x20000

// Pool maps an entity's network handle to a stable script handle,
// scanning on first allocation to avoid duplicates after
// temporary-to-permanent transformations.
type Pool struct {
	mu      sync.Mutex
	byOwner map[uint32]int // entity handle -> pool index
	used    [PoolSize]bool
}

// New returns an empty Pool.
func New() *Pool {
	return &Pool{byOwner: make(map[uint32]int)}
}

// Get returns the existing handle for entityHandle, allocating one on
// first use. ok is false if the pool is exhausted.
func (p *Pool) Get(entityHandle uint32) (handle uint32, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if idx, found := p.byOwner[entityHandle]; found {
		return uint32(idx) + Base, true
	}

	for idx := 0; idx < PoolSize; idx++ {
		if !p.used[idx] {
			p.used[idx] = true
			p.byOwner[entityHandle] = idx
			return uint32(idx) + Base, true
		}
	}
	return 0, false
}

// Free releases the handle belonging to entityHandle, called when the
// owning entity is destroyed.
func (p *Pool) Free(entityHandle uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx, found := p.byOwner[entityHandle]
	if !found {
		return
	}
	p.used[idx] = false
	delete(p.byOwner, entityHandle)
}
