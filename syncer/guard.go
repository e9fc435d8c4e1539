package syncer

import (
	"context"
	"errors"
	"sync"
)

// ErrPreempted is the cancellation cause of a background hold taken over by
// a synchronization run.
var ErrPreempted = errors.New("preempted by a synchronization run")

// Guard allows one run per repository at a time. Share one Guard between
// every Process and poller that touches the same repositories.
//
// Background work such as remote polling holds a key at low priority: a run
// acquiring the key cancels the background hold and takes over at once.
type Guard struct {
	mu     sync.Mutex
	active map[string]*hold
}

// hold is one owner of a key. cancel is set for background holds.
type hold struct {
	cancel context.CancelCauseFunc
}

// NewGuard creates an empty guard.
func NewGuard() *Guard {
	return &Guard{active: map[string]*hold{}}
}

// TryAcquire marks key as busy for a run. A background hold on key is
// cancelled with ErrPreempted. It returns false if another run holds key.
func (g *Guard) TryAcquire(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if h, busy := g.active[key]; busy {
		if h.cancel == nil {
			return false
		}
		h.cancel(ErrPreempted)
	}
	g.active[key] = &hold{}
	return true
}

// Release frees key held by a run. A background hold is left alone.
func (g *Guard) Release(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if h, ok := g.active[key]; ok && h.cancel == nil {
		delete(g.active, key)
	}
}

// AcquireBackground marks key as busy at low priority. The returned context
// is cancelled with ErrPreempted when a run takes key over; release frees
// key unless it was taken over. It returns false if key is already busy.
func (g *Guard) AcquireBackground(ctx context.Context, key string) (context.Context, func(), bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.active[key]; busy {
		return ctx, func() {}, false
	}

	holdCtx, cancel := context.WithCancelCause(ctx)
	h := &hold{cancel: cancel}
	g.active[key] = h
	release := func() {
		g.mu.Lock()
		if g.active[key] == h {
			delete(g.active, key)
		}
		g.mu.Unlock()
		cancel(context.Canceled)
	}
	return holdCtx, release, true
}

// Active reports whether key is busy.
func (g *Guard) Active(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, busy := g.active[key]
	return busy
}

// Preempted reports whether ctx, obtained from AcquireBackground, was
// cancelled because a run took the key over.
func Preempted(ctx context.Context) bool {
	return errors.Is(context.Cause(ctx), ErrPreempted)
}
