// Package idmap implements the concurrent entity → old GUID → new GUID
// remapping table (C8, §3): created empty at import start, mutated
// throughout every tier's write wave, and read by downstream tiers,
// the M:N pass, and the deferred-field pass. Reads vastly outnumber
// writes once a tier has completed, so the table is split into 32
// shards chosen by a hash of the entity name, each with its own
// RWMutex; different entities contend only when their hashes land on
// the same shard.
package idmap

import (
	"hash/fnv"
	"sync"

	"github.com/google/uuid"
)

const shardCount = 32

// IdMap is safe for concurrent use by multiple goroutines.
type IdMap struct {
	shards [shardCount]*shard
}

type shard struct {
	mu sync.RWMutex
	m  map[string]map[uuid.UUID]uuid.UUID // entity -> old -> new
}

// New returns an empty IdMap.
func New() *IdMap {
	im := &IdMap{}
	for i := range im.shards {
		im.shards[i] = &shard{m: make(map[string]map[uuid.UUID]uuid.UUID)}
	}
	return im
}

func (im *IdMap) shardFor(entity string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(entity))
	return im.shards[h.Sum32()%shardCount]
}

// Put records that oldID in entity now maps to newID. Last writer wins
// if called more than once for the same (entity, oldID) — matching the
// importer's idempotent re-run semantics, since a retried write always
// resolves to the same backend record.
func (im *IdMap) Put(entity string, oldID, newID uuid.UUID) {
	sh := im.shardFor(entity)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	byOld, ok := sh.m[entity]
	if !ok {
		byOld = make(map[uuid.UUID]uuid.UUID)
		sh.m[entity] = byOld
	}
	byOld[oldID] = newID
}

// Get returns the new GUID mapped from oldID in entity, if any.
func (im *IdMap) Get(entity string, oldID uuid.UUID) (uuid.UUID, bool) {
	sh := im.shardFor(entity)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	byOld, ok := sh.m[entity]
	if !ok {
		return uuid.UUID{}, false
	}
	newID, ok := byOld[oldID]
	return newID, ok
}

// Len returns the total number of (entity, oldID) -> newID entries
// recorded across all entities, for diagnostics and tests.
func (im *IdMap) Len() int {
	n := 0
	for _, sh := range im.shards {
		sh.mu.RLock()
		for _, byOld := range sh.m {
			n += len(byOld)
		}
		sh.mu.RUnlock()
	}
	return n
}

// EntityLen returns the number of entries recorded for a single entity.
func (im *IdMap) EntityLen(entity string) int {
	sh := im.shardFor(entity)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return len(sh.m[entity])
}
