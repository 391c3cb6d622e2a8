// Package guard tracks trackers with a run in flight in this process.
package guard

import (
	"context"
	"sync"
	"sync/atomic"
)

// Guard admits at most one in-flight run per tracker ID.
type Guard interface {
	// Acquire atomically marks id as in flight. It returns false when id is
	// already held or the guard is at capacity.
	Acquire(ctx context.Context, id string) bool

	// Release clears id so a later run may acquire it. Releasing an id that is
	// not held is a no-op.
	Release(ctx context.Context, id string)

	// Held reports whether id is currently in flight.
	Held(id string) bool

	Size() int64
}

type inFlight struct {
	mu       sync.Mutex
	held     map[string]struct{}
	maxSize  int // 0 or negative = unbounded
	size     atomic.Int64
	acquired atomic.Int64
	rejected atomic.Int64
}

// New creates an in-memory guard.
func New(opts ...Option) Guard {
	g := &inFlight{
		held: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *inFlight) Acquire(_ context.Context, id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.held[id]; exists {
		g.rejected.Add(1)
		return false
	}
	// In-flight entries are never evicted; a full guard refuses new ids.
	if g.maxSize > 0 && len(g.held) >= g.maxSize {
		g.rejected.Add(1)
		return false
	}
	g.held[id] = struct{}{}
	g.size.Add(1)
	g.acquired.Add(1)
	return true
}

func (g *inFlight) Release(_ context.Context, id string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.held[id]; exists {
		delete(g.held, id)
		g.size.Add(-1)
	}
}

func (g *inFlight) Held(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, exists := g.held[id]
	return exists
}

func (g *inFlight) Size() int64 {
	return g.size.Load()
}

// Stats returns how many acquisitions succeeded and how many were refused.
// It is available on guards built by New.
func Stats(g Guard) (acquired, rejected int64) {
	if f, ok := g.(*inFlight); ok {
		return f.acquired.Load(), f.rejected.Load()
	}
	return 0, 0
}
