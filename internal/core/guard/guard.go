package guard

import (
	"context"
	"errors"
	"sync"
)

// ErrBusy is returned by Acquire when the key is already held.
var ErrBusy = errors.New("guard: key already held")

// Guard hands out exclusive, non-blocking holds on a key. It keeps one lesson
// generation in flight per conversation.
type Guard interface {
	// Acquire takes the key or fails with ErrBusy. The returned release func
	// is safe to call more than once.
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// MemoryGuard is a process-local Guard.
type MemoryGuard struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{held: make(map[string]struct{})}
}

func (g *MemoryGuard) Acquire(_ context.Context, key string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.held[key]; ok {
		return nil, ErrBusy
	}
	g.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.held, key)
			g.mu.Unlock()
		})
	}, nil
}

var _ Guard = (*MemoryGuard)(nil)
