// Package pagecache holds rendered pages for the lifetime of one document.
package pagecache

import (
	"math"
	"sync"
)

// ScaleClass buckets render scales so that near-identical scales share an
// entry. It is the scale in hundredths.
type ScaleClass int

// ThumbClass is reserved for thumbnail renders.
const ThumbClass ScaleClass = -1

// ClassOf returns the class for a render scale.
func ClassOf(scale float64) ScaleClass {
	return ScaleClass(math.Round(scale * 100))
}

// Scale converts a class back to a render scale.
func (c ScaleClass) Scale() float64 { return float64(c) / 100 }

// Key identifies one rendered page of one document. Doc is the document
// digest, so a page rendered from a replaced document never answers for its
// successor.
type Key struct {
	Doc   string
	Page  int
	Scale ScaleClass
}

// Cache is an unbounded map from Key to rendered value. There is no eviction:
// it lives as long as the document and is cleared on reload or resize.
type Cache[V any] struct {
	mu      sync.RWMutex
	entries map[Key]V
	epoch   uint64
}

// New returns an empty cache.
func New[V any]() *Cache[V] {
	return &Cache[V]{entries: make(map[Key]V)}
}

func (c *Cache[V]) Get(k Key) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[k]
	return v, ok
}

// Put stores v under k, replacing any previous value.
func (c *Cache[V]) Put(k Key, v V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[k] = v
}

// Epoch changes every time the cache is cleared.
func (c *Cache[V]) Epoch() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epoch
}

// PutIfEpoch stores v only if the cache has not been cleared since epoch was
// read and k is still absent. It reports whether v was stored.
func (c *Cache[V]) PutIfEpoch(epoch uint64, k Key, v V) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return false
	}
	if _, ok := c.entries[k]; ok {
		return false
	}
	c.entries[k] = v
	return true
}

// Clear drops every entry.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[Key]V)
	c.epoch++
}

func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
