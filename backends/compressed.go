package backends

import (
	"bytes"
	"context"
	"io"

	"github.com/pierrec/lz4/v4"

	"github.com/richardartoul/contentcache/cachekey"
)

// Compressed wraps any Backend and stores content as lz4 frames. Entries
// that fail to decompress are treated as corrupt: they are removed and
// reported as a miss.
type Compressed struct {
	backend Backend
}

// NewCompressed creates a new compressing wrapper around an existing backend.
func NewCompressed(backend Backend) *Compressed {
	return &Compressed{
		backend: backend,
	}
}

// Get retrieves and decompresses an object.
func (c *Compressed) Get(ctx context.Context, key cachekey.Key) ([]byte, bool) {
	frame, ok := c.backend.Get(ctx, key)
	if !ok {
		return nil, false
	}

	data, err := io.ReadAll(lz4.NewReader(bytes.NewReader(frame)))
	if err != nil || len(data) == 0 {
		c.backend.Remove(ctx, key)
		return nil, false
	}
	return data, true
}

// Put compresses and stores an object. Empty content is a no-op.
func (c *Compressed) Put(ctx context.Context, key cachekey.Key, data []byte) {
	if len(data) == 0 {
		return
	}

	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return
	}
	if err := zw.Close(); err != nil {
		return
	}

	c.backend.Put(ctx, key, buf.Bytes())
}

// Remove deletes an object.
func (c *Compressed) Remove(ctx context.Context, key cachekey.Key) {
	c.backend.Remove(ctx, key)
}

// Clear removes all objects.
func (c *Compressed) Clear(ctx context.Context) {
	c.backend.Clear(ctx)
}
