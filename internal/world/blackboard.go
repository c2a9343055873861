// Package world holds the shared world state that behavior units and
// reaction strategies read when computing runnability, scores and trigger
// predicates.
//
// The scheduler never reads the blackboard directly. Collaborators refresh it
// before each tick, and units consult it through expressions.
package world

import (
	"maps"
	"slices"
	"sync"
)

// Blackboard provides a thread-safe key-value store for world state.
//
// Usage: Create with new(Blackboard). The internal map is lazily initialized
// on the first write operation via the init() method.
type Blackboard struct {
	mu      sync.RWMutex
	data    map[string]any
	version uint64
}

// init initializes the blackboard's internal map if needed.
// Called automatically on write operations, with b.mu held.
func (b *Blackboard) init() {
	if b.data == nil {
		b.data = make(map[string]any)
	}
}

// Get retrieves a value from the blackboard.
// Returns nil if the key doesn't exist.
func (b *Blackboard) Get(key string) any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.data == nil {
		return nil
	}
	return b.data[key]
}

// Lookup is Get with an explicit presence result.
func (b *Blackboard) Lookup(key string) (any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.data == nil {
		return nil, false
	}
	v, ok := b.data[key]
	return v, ok
}

// Set stores a value in the blackboard.
func (b *Blackboard) Set(key string, value any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.init()
	b.data[key] = value
	b.version++
}

// Apply stores every entry of values in a single write, bumping the version
// once. A nil value deletes the key.
func (b *Blackboard) Apply(values map[string]any) {
	if len(values) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.init()
	for k, v := range values {
		if v == nil {
			delete(b.data, k)
			continue
		}
		b.data[k] = v
	}
	b.version++
}

// Has returns true if the key exists in the blackboard.
func (b *Blackboard) Has(key string) bool {
	_, ok := b.Lookup(key)
	return ok
}

// Delete removes a key from the blackboard.
func (b *Blackboard) Delete(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.data == nil {
		return
	}
	if _, ok := b.data[key]; ok {
		delete(b.data, key)
		b.version++
	}
}

// Keys returns all keys in the blackboard, sorted.
func (b *Blackboard) Keys() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.data == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(b.data))
}

// Clear removes all entries from the blackboard.
func (b *Blackboard) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = make(map[string]any)
	b.version++
}

// Len returns the number of keys in the blackboard.
func (b *Blackboard) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.data)
}

// Version returns a counter incremented on every mutation. Units may use it
// to skip re-evaluating expressions when nothing changed.
func (b *Blackboard) Version() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.version
}

// Snapshot returns a shallow copy of the blackboard data.
//
// WARNING: This is a SHALLOW copy. Mutable values (slices, maps, pointers)
// are shared with the blackboard.
func (b *Blackboard) Snapshot() map[string]any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	result := make(map[string]any, len(b.data))
	maps.Copy(result, b.data)
	return result
}

// Env returns a snapshot merged with extra, for use as an expression
// environment. Entries in extra shadow world keys of the same name.
func (b *Blackboard) Env(extra map[string]any) map[string]any {
	env := b.Snapshot()
	maps.Copy(env, extra)
	return env
}
