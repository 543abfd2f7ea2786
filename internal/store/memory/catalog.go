// Package memory provides an in-memory catalog store for development and testing.
package memory

import (
	"context"
	"fmt"
	"sync"

	"reportwatch/internal/watch"
)

// Catalog keeps entries in insertion order behind a mutex.
type Catalog struct {
	mu      sync.RWMutex
	entries []watch.CatalogEntry
	byID    map[string]int
}

// New constructs an empty Catalog.
func New() *Catalog {
	return &Catalog{byID: make(map[string]int)}
}

// Append stores a new entry. Appending an existing id is a programmer error
// upstream (the report ledger gates duplicates) and is rejected.
func (c *Catalog) Append(_ context.Context, entry watch.CatalogEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.byID[entry.ID]; exists {
		return fmt.Errorf("catalog entry %s already exists", entry.ID)
	}
	c.byID[entry.ID] = len(c.entries)
	c.entries = append(c.entries, entry)
	return nil
}

// List returns all entries in commit order.
func (c *Catalog) List(_ context.Context) ([]watch.CatalogEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]watch.CatalogEntry, len(c.entries))
	copy(out, c.entries)
	return out, nil
}

// SetRead flips the read flag for one entry.
func (c *Catalog) SetRead(_ context.Context, id string, read bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx, ok := c.byID[id]
	if !ok {
		return fmt.Errorf("catalog entry %s not found", id)
	}
	c.entries[idx].IsRead = read
	return nil
}
