package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultEmitWait bounds how long Emit waits for buffer space before giving
// up on an event other than progress.
const DefaultEmitWait = 5 * time.Second

// Channel delivers events over a buffered channel owned by the caller.
//
// When the buffer is full, Progress events are dropped at once since the next
// one supersedes them. Every other kind waits up to the emit wait for the
// consumer before it is dropped and counted, so a stalled consumer slows the
// protocol goroutines down but never wedges them.
type Channel struct {
	ch      chan Event
	wait    time.Duration
	done    chan struct{}
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

// NewChannel creates a Channel with the given buffer size and DefaultEmitWait.
func NewChannel(size int) *Channel {
	if size <= 0 {
		size = 1
	}
	return &Channel{
		ch:   make(chan Event, size),
		wait: DefaultEmitWait,
		done: make(chan struct{}),
	}
}

// SetEmitWait changes the wait for events other than progress. Zero drops
// them as soon as the buffer is full. Call it before the channel is shared.
func (c *Channel) SetEmitWait(d time.Duration) {
	c.wait = d
}

// C returns the receive side of the channel.
func (c *Channel) C() <-chan Event {
	return c.ch
}

// Emit implements Sink.
func (c *Channel) Emit(e Event) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}

	select {
	case c.ch <- e:
		return
	default:
	}

	if e.Kind != KindProgress && c.wait > 0 {
		timer := time.NewTimer(c.wait)
		defer timer.Stop()
		select {
		case c.ch <- e:
			return
		case <-c.done:
			return
		case <-timer.C:
		}
	}

	dropped := c.dropped.Add(1)
	logrus.WithFields(logrus.Fields{
		"function": "Channel.Emit",
		"kind":     e.Kind.String(),
		"dropped":  dropped,
	}).Warn("Event buffer full, dropping event")
}

// Dropped returns the number of events lost to a full buffer.
func (c *Channel) Dropped() uint64 {
	return c.dropped.Load()
}

// Close releases emits waiting for space, then closes the underlying channel.
// Later emits are ignored.
func (c *Channel) Close() {
	c.once.Do(func() { close(c.done) })
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.ch)
}
