package condition

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/expr-lang/expr/vm"
)

// DefaultCacheSize is the default maximum number of entries in the program cache.
const DefaultCacheSize = 1000

// programs is the shared compiled-program cache. Definitions commonly repeat
// the same expression across units and strategies.
var programs = NewProgramCache(DefaultCacheSize)

// SetCacheSize sets the maximum size of the shared program cache.
// If the new size is smaller than the current size, the cache is truncated.
func SetCacheSize(size int) {
	programs.Resize(size)
}

// ClearCache removes every compiled program from the shared cache.
func ClearCache() {
	programs.Clear()
}

// Cache returns the shared program cache.
func Cache() *ProgramCache {
	return programs
}

// ProgramCache is a thread-safe LRU cache for expr-lang compiled programs.
type ProgramCache struct {
	mu        sync.Mutex
	cache     map[string]*list.Element
	lru       *list.List
	maxSize   int
	hitCount  int64
	missCount int64
}

// NewProgramCache creates a new LRU cache with the specified maximum size.
func NewProgramCache(maxSize int) *ProgramCache {
	if maxSize < 1 {
		maxSize = DefaultCacheSize
	}
	return &ProgramCache{
		cache:   make(map[string]*list.Element, maxSize),
		lru:     list.New(),
		maxSize: maxSize,
	}
}

type cacheEntry struct {
	key     string
	program *vm.Program
}

// Get retrieves a compiled program from the cache, marking it most recently
// used.
func (c *ProgramCache) Get(key string) (*vm.Program, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.cache[key]
	if !ok {
		c.missCount++
		return nil, false
	}
	c.hitCount++
	c.lru.MoveToFront(elem)
	return elem.Value.(*cacheEntry).program, true
}

// Put adds a compiled program to the cache.
// If the cache is at capacity, the least recently used entry is evicted.
func (c *ProgramCache) Put(key string, program *vm.Program) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.cache[key]; ok {
		c.lru.MoveToFront(elem)
		elem.Value.(*cacheEntry).program = program
		return
	}

	c.cache[key] = c.lru.PushFront(&cacheEntry{key: key, program: program})
	c.evict()
}

// Resize changes the maximum size of the cache.
func (c *ProgramCache) Resize(maxSize int) {
	if maxSize < 1 {
		maxSize = 1
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maxSize = maxSize
	c.evict()
}

// evict must be called with c.mu held.
func (c *ProgramCache) evict() {
	for c.lru.Len() > c.maxSize {
		elem := c.lru.Back()
		delete(c.cache, elem.Value.(*cacheEntry).key)
		c.lru.Remove(elem)
	}
}

// Clear removes all entries from the cache.
func (c *ProgramCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]*list.Element)
	c.lru.Init()
}

// Len returns the current number of entries in the cache.
func (c *ProgramCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Stats returns cache statistics for monitoring.
func (c *ProgramCache) Stats() (size int, hits, misses int64, ratio float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if total := c.hitCount + c.missCount; total > 0 {
		ratio = float64(c.hitCount) / float64(total)
	}
	return c.lru.Len(), c.hitCount, c.missCount, ratio
}

// String returns a human-readable description of cache stats.
func (c *ProgramCache) String() string {
	size, hits, misses, ratio := c.Stats()
	return fmt.Sprintf("ProgramCache{size=%d, hits=%d, misses=%d, hit_ratio=%.2f%%}",
		size, hits, misses, ratio*100)
}
