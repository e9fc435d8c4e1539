package syncer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/input-output-hk/catalyst-forge-libs/modelsync/conflict"
)

// EventType identifies a progress notification.
type EventType string

const (
	EventStartCommit EventType = "start-commit"
	EventEndCommit   EventType = "end-commit"
	EventStartPull   EventType = "start-pull"
	EventPullStatus  EventType = "pull-status"
	EventEndPull     EventType = "end-pull"
	EventStartPush   EventType = "start-push"
	EventEndPush     EventType = "end-push"
	EventLogMessage  EventType = "log-message"
	EventLogError    EventType = "log-error"

	// EventConflictResolution is emitted right before the resolver is asked
	// to decide on a merge conflict.
	EventConflictResolution EventType = "request-conflict-resolution"
)

// PullStatus is the detail of an EventPullStatus event.
type PullStatus string

const (
	PullOK             PullStatus = "ok"
	PullUpToDate       PullStatus = "up-to-date"
	PullError          PullStatus = "error"
	PullMergeCancelled PullStatus = "merge-cancelled"
)

// Event is a notification emitted during a run. Events of one run are
// delivered in order, on the goroutine executing the run.
type Event struct {
	Type EventType

	// Source identifies the repository, usually its local folder.
	Source string

	Summary string
	Detail  string

	// PullStatus is set on EventPullStatus events.
	PullStatus PullStatus

	Time time.Time
}

// Listener receives run events.
type Listener interface {
	OnEvent(Event)
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(Event)

// OnEvent implements Listener.
func (f ListenerFunc) OnEvent(e Event) {
	f(e)
}

// Listeners fans events out to every listener in order.
type Listeners []Listener

// OnEvent implements Listener.
func (ls Listeners) OnEvent(e Event) {
	for _, l := range ls {
		if l != nil {
			l.OnEvent(e)
		}
	}
}

// ChanListener turns events into a stream. Sends block when the buffer is
// full, so the consumer must keep reading until Close.
type ChanListener struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
}

// NewChanListener creates a listener with a buffer of size events.
func NewChanListener(size int) *ChanListener {
	return &ChanListener{ch: make(chan Event, size)}
}

// Events returns the event stream. It is closed by Close.
func (c *ChanListener) Events() <-chan Event {
	return c.ch
}

// OnEvent implements Listener. Events after Close are dropped.
func (c *ChanListener) OnEvent(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.ch <- e
}

// Close ends the stream.
func (c *ChanListener) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.ch)
	}
}

// LogListener writes events to a structured logger.
type LogListener struct {
	Logger *slog.Logger
}

// OnEvent implements Listener.
func (l LogListener) OnEvent(e Event) {
	if l.Logger == nil {
		return
	}
	attrs := []any{"event", string(e.Type), "source", e.Source}
	if e.PullStatus != "" {
		attrs = append(attrs, "status", string(e.PullStatus))
	}
	if e.Detail != "" {
		attrs = append(attrs, "detail", e.Detail)
	}

	switch e.Type {
	case EventLogError:
		l.Logger.Error(e.Summary, attrs...)
	case EventLogMessage, EventConflictResolution, EventPullStatus:
		l.Logger.Info(e.Summary, attrs...)
	default:
		l.Logger.Debug(e.Summary, attrs...)
	}
}

// Resolver decides a merge conflict. The handler is initialized; the
// resolver may inspect and resolve its files. Returning true finishes the
// merge, false abandons it and restores the local state.
type Resolver interface {
	ResolveConflicts(ctx context.Context, h *conflict.Handler) bool
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, h *conflict.Handler) bool

// ResolveConflicts implements Resolver.
func (f ResolverFunc) ResolveConflicts(ctx context.Context, h *conflict.Handler) bool {
	return f(ctx, h)
}

// KeepLocal is a Resolver that declines every merge.
var KeepLocal = ResolverFunc(func(context.Context, *conflict.Handler) bool { return false })

// PreferRemote is a Resolver that takes the remote side of every conflict.
var PreferRemote = ResolverFunc(func(_ context.Context, h *conflict.Handler) bool {
	return h.ResolveAll(conflict.ChooseTheirs) == nil
})
