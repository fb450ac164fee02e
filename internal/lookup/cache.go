package lookup

import (
	"context"
	"sync"
)

// BuildFunc builds the index for a key on first use.
type BuildFunc func(ctx context.Context) *Index

// Cache holds the indexes of one run. Every read-modify-write goes through
// Do, which holds a single run-scoped lock so that concurrent writers see
// each other's merges. Caches are never shared between runs.
type Cache struct {
	runID string

	mu      sync.Mutex
	entries map[Key]*Index
}

// NewCache creates an empty cache for runID.
func NewCache(runID string) *Cache {
	return &Cache{
		runID:   runID,
		entries: make(map[Key]*Index),
	}
}

// RunID returns the owning run.
func (c *Cache) RunID() string {
	return c.runID
}

// Do gets or builds the index for key and calls fn with it, both under the
// run lock. fn may mutate the index; the mutation is visible to every later
// caller in the run. The error of fn is returned.
func (c *Cache) Do(ctx context.Context, key Key, build BuildFunc, fn func(*Index) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	idx, ok := c.entries[key]
	if !ok {
		if build != nil {
			idx = build(ctx)
		}
		if idx == nil {
			idx = NewIndex(key.Table, key.Field)
		}
		c.entries[key] = idx
	}
	if fn == nil {
		return nil
	}
	return fn(idx)
}

// Merge folds idx into the entry for its key, creating it when absent.
func (c *Cache) Merge(idx *Index) {
	if idx == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, ok := c.entries[idx.Key()]
	if !ok {
		c.entries[idx.Key()] = idx.Clone()
		return
	}
	existing.Merge(idx)
}

// Snapshot returns a copy of the entry for key.
func (c *Cache) Snapshot(key Key) (*Index, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return idx.Clone(), true
}

// Len returns the number of cached indexes.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
