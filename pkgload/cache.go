package pkgload

import (
	"sort"
	"sync"
	"time"
)

// Cache memoizes package load outcomes for the process lifetime. A package
// appears in at most one of loaded/failed at any time: recording a success
// evicts a prior failure, so a package is never permanently blacklisted once
// a later load succeeds. Entries never expire; Clear is the only reset.
type Cache struct {
	mu       sync.RWMutex
	loaded   map[string]struct{}
	failed   map[string]string
	loadedAt map[string]time.Time
}

// NewCache returns an empty load cache.
func NewCache() *Cache {
	return &Cache{
		loaded:   make(map[string]struct{}),
		failed:   make(map[string]string),
		loadedAt: make(map[string]time.Time),
	}
}

// Has reports whether name has a recorded successful load.
func (c *Cache) Has(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.loaded[name]
	return ok
}

// Failure returns the recorded failure message for name, if any.
func (c *Cache) Failure(name string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	msg, ok := c.failed[name]
	return msg, ok
}

// RecordSuccess marks name as loaded, clearing any prior failure.
func (c *Cache) RecordSuccess(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.failed, name)
	c.loaded[name] = struct{}{}
	c.loadedAt[name] = time.Now()
}

// RecordFailure records a failure message for name. A name that already
// loaded successfully keeps its success entry.
func (c *Cache) RecordFailure(name, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.loaded[name]; ok {
		return
	}
	c.failed[name] = msg
}

// Clear drops all entries. Manual operation; nothing calls it automatically.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loaded = make(map[string]struct{})
	c.failed = make(map[string]string)
	c.loadedAt = make(map[string]time.Time)
}

// Stats describes the cache contents.
type Stats struct {
	Loaded []string
	Failed map[string]string
}

// Stats returns a snapshot of loaded and failed package names.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Stats{
		Loaded: make([]string, 0, len(c.loaded)),
		Failed: make(map[string]string, len(c.failed)),
	}
	for name := range c.loaded {
		s.Loaded = append(s.Loaded, name)
	}
	sort.Strings(s.Loaded)
	for name, msg := range c.failed {
		s.Failed[name] = msg
	}
	return s
}
