package backends

import (
	"context"

	"github.com/richardartoul/contentcache/cachekey"
)

// Backend defines the interface for persistent cache tiers.
//
// Implementations can be swapped to use different storage mechanisms.
//
// Backends are best effort: every storage failure is converted into a miss
// (reads) or a silent no-op (writes) and is never returned to the caller.
// A backend must never be the only source of truth for the content it
// holds.
//
// Implementations must be safe for concurrent use. The loader guarantees
// that at most one remote fetch is in flight per key (see package dedupe),
// but reads, writes and eviction for a key may still overlap.
type Backend interface {
	// Get returns the content stored under key and whether it was a hit.
	Get(ctx context.Context, key cachekey.Key) ([]byte, bool)

	// Put stores data under key. Storing empty content is a no-op.
	Put(ctx context.Context, key cachekey.Key, data []byte)

	// Remove deletes the entry for key if present.
	Remove(ctx context.Context, key cachekey.Key)

	// Clear removes all entries.
	Clear(ctx context.Context)
}
