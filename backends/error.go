package backends

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/richardartoul/contentcache/cachekey"
)

// Error wraps any Backend and randomly fails operations based on a
// configured percentage. Because backends never surface errors, a failed Get
// becomes a miss and a failed Put, Remove or Clear is dropped.
// This is useful for testing that callers tolerate a flaky persistent tier.
type Error struct {
	backend   Backend
	errorRate float64 // Percentage of operations that should fail (0.0 to 1.0)

	rng   *rand.Rand
	rngMu sync.Mutex // Protects rng access (rand.Rand is not thread-safe)

	getErrors    atomic.Int64
	putErrors    atomic.Int64
	removeErrors atomic.Int64
	clearErrors  atomic.Int64
}

// NewError creates a new error-injecting wrapper around an existing backend.
// errorRate should be between 0.0 (no errors) and 1.0 (all operations fail).
func NewError(backend Backend, errorRate float64) *Error {
	if errorRate < 0.0 {
		errorRate = 0.0
	}
	if errorRate > 1.0 {
		errorRate = 1.0
	}

	return &Error{
		backend:   backend,
		errorRate: errorRate,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// shouldError returns true if this operation should fail based on the error rate.
// This method is thread-safe.
func (e *Error) shouldError() bool {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return e.rng.Float64() < e.errorRate
}

// Get retrieves an object, potentially reporting a miss instead.
func (e *Error) Get(ctx context.Context, key cachekey.Key) ([]byte, bool) {
	if e.shouldError() {
		e.getErrors.Add(1)
		return nil, false
	}
	return e.backend.Get(ctx, key)
}

// Put stores an object, potentially dropping the write.
func (e *Error) Put(ctx context.Context, key cachekey.Key, data []byte) {
	if e.shouldError() {
		e.putErrors.Add(1)
		return
	}
	e.backend.Put(ctx, key, data)
}

// Remove deletes an object, potentially doing nothing.
func (e *Error) Remove(ctx context.Context, key cachekey.Key) {
	if e.shouldError() {
		e.removeErrors.Add(1)
		return
	}
	e.backend.Remove(ctx, key)
}

// Clear removes all entries, potentially doing nothing.
func (e *Error) Clear(ctx context.Context) {
	if e.shouldError() {
		e.clearErrors.Add(1)
		return
	}
	e.backend.Clear(ctx)
}

// GetStats returns the number of errors injected for each operation type.
// This method is thread-safe.
func (e *Error) GetStats() (getErrors, putErrors, removeErrors, clearErrors int64) {
	return e.getErrors.Load(), e.putErrors.Load(), e.removeErrors.Load(), e.clearErrors.Load()
}
