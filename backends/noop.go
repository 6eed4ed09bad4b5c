package backends

import (
	"context"

	"github.com/richardartoul/contentcache/cachekey"
)

// Noop is a Backend that stores nothing. It is used when the persistent
// tier is disabled so that the loader only runs with its volatile tier.
type Noop struct{}

// NewNoop creates a new Noop backend.
func NewNoop() *Noop {
	return &Noop{}
}

// Get always misses.
func (Noop) Get(context.Context, cachekey.Key) ([]byte, bool) { return nil, false }

// Put discards data.
func (Noop) Put(context.Context, cachekey.Key, []byte) {}

// Remove does nothing.
func (Noop) Remove(context.Context, cachekey.Key) {}

// Clear does nothing.
func (Noop) Clear(context.Context) {}
