package backends

import (
	"context"
	"log/slog"
	"time"

	"github.com/richardartoul/contentcache/cachekey"
)

// Debug wraps any Backend and adds debug logging.
// This allows any backend implementation to have debug logging without
// coupling the debug logic to the backend implementation.
type Debug struct {
	backend Backend
	name    string
	logger  *slog.Logger
}

// NewDebug creates a new debug wrapper around an existing backend. name
// identifies the wrapped backend in log lines.
func NewDebug(backend Backend, name string, logger *slog.Logger) *Debug {
	return &Debug{
		backend: backend,
		name:    name,
		logger:  logger,
	}
}

// Get retrieves an object from the cache with debug logging.
func (d *Debug) Get(ctx context.Context, key cachekey.Key) ([]byte, bool) {
	start := time.Now()
	data, ok := d.backend.Get(ctx, key)
	duration := time.Since(start)

	if !ok {
		d.logger.DebugContext(ctx, "backend get: miss",
			"backend", d.name,
			"key", key,
			"duration", duration)
		return nil, false
	}

	d.logger.DebugContext(ctx, "backend get: hit",
		"backend", d.name,
		"key", key,
		"size", len(data),
		"duration", duration)
	return data, true
}

// Put stores an object in the cache with debug logging.
func (d *Debug) Put(ctx context.Context, key cachekey.Key, data []byte) {
	start := time.Now()
	d.backend.Put(ctx, key, data)

	d.logger.DebugContext(ctx, "backend put",
		"backend", d.name,
		"key", key,
		"size", len(data),
		"duration", time.Since(start))
}

// Remove deletes an object with debug logging.
func (d *Debug) Remove(ctx context.Context, key cachekey.Key) {
	start := time.Now()
	d.backend.Remove(ctx, key)

	d.logger.DebugContext(ctx, "backend remove",
		"backend", d.name,
		"key", key,
		"duration", time.Since(start))
}

// Clear removes all entries from the cache with debug logging.
func (d *Debug) Clear(ctx context.Context) {
	start := time.Now()
	d.backend.Clear(ctx)

	d.logger.DebugContext(ctx, "backend clear",
		"backend", d.name,
		"duration", time.Since(start))
}
