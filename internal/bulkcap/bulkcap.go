// Package bulkcap implements the probe-once bulk-capability cache
// (C9, §3): for each entity, whether UpsertMultiple/UpdateMultiple are
// supported by the target backend. The first write attempt against an
// entity probes the capability live; every subsequent write consults
// the cached result instead of re-probing, so at most one oversized
// batch is ever sent to an entity that turns out not to support bulk
// writes.
package bulkcap

import "sync"

// State is the tri-state result of a capability probe.
type State int32

const (
	Unknown State = iota
	Supported
	NotSupported
)

type capabilityEntry struct {
	createBulk State
	updateBulk State
	mu         sync.Mutex
}

// Cache holds one capabilityEntry per entity, safe for concurrent use.
// Probing an entity's capability is serialized per entity (via the
// entry's own mutex) so concurrent first-writers agree on a single
// observed result instead of racing two simultaneous probes; plain
// reads of an already-resolved state take the fast uncontended path.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*capabilityEntry
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{entries: make(map[string]*capabilityEntry)}
}

func (c *Cache) entry(entity string) *capabilityEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[entity]
	if !ok {
		e = &capabilityEntry{}
		c.entries[entity] = e
	}
	return e
}

// CreateBulk returns the cached create-bulk capability for entity.
func (c *Cache) CreateBulk(entity string) State {
	e := c.entry(entity)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.createBulk
}

// UpdateBulk returns the cached update-bulk capability for entity.
func (c *Cache) UpdateBulk(entity string) State {
	e := c.entry(entity)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.updateBulk
}

// ResolveCreateBulk sets entity's create-bulk capability the first
// time it is called; subsequent calls are no-ops, so a capability
// once observed never flips back to Unknown nor overwrites a prior
// observation made by a racing goroutine.
func (c *Cache) ResolveCreateBulk(entity string, s State) {
	e := c.entry(entity)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.createBulk == Unknown {
		e.createBulk = s
	}
}

// ResolveUpdateBulk is ResolveCreateBulk for the update-bulk capability.
func (c *Cache) ResolveUpdateBulk(entity string, s State) {
	e := c.entry(entity)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.updateBulk == Unknown {
		e.updateBulk = s
	}
}
