package telemetry

import (
	"strings"
	"sync"
)

// DefaultRingSize is the default capacity of a Ring.
const DefaultRingSize = 1000

// Ring keeps the most recent transitions in memory.
type Ring struct {
	mu      sync.RWMutex
	entries []Transition
	maxSize int
}

// NewRing returns a ring holding up to size transitions.
func NewRing(size int) *Ring {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &Ring{entries: make([]Transition, 0, min(size, 64)), maxSize: size}
}

// Record implements Sink.
func (r *Ring) Record(t Transition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, t)
	if len(r.entries) > r.maxSize {
		r.entries = r.entries[len(r.entries)-r.maxSize:]
	}
	return nil
}

// All returns every buffered transition, oldest first.
func (r *Ring) All() []Transition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Transition, len(r.entries))
	copy(out, r.entries)
	return out
}

// Recent returns the most recent count transitions, oldest first.
func (r *Ring) Recent(count int) []Transition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if count <= 0 || count > len(r.entries) {
		count = len(r.entries)
	}
	out := make([]Transition, count)
	copy(out, r.entries[len(r.entries)-count:])
	return out
}

// Len returns the number of buffered transitions.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Search returns transitions whose unit ids, classes, trigger or reason
// contain query, case-insensitively.
func (r *Ring) Search(query string) []Transition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	query = strings.ToLower(query)
	var matches []Transition
	for _, t := range r.entries {
		for _, field := range []string{
			string(t.FromID), string(t.FromClass),
			string(t.ToID), string(t.ToClass),
			string(t.Trigger), string(t.Reason),
		} {
			if strings.Contains(strings.ToLower(field), query) {
				matches = append(matches, t)
				break
			}
		}
	}
	return matches
}

// Clear removes all transitions.
func (r *Ring) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = r.entries[:0]
}
