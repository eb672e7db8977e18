// Package events defines the notifications produced by a wirechat connection.
//
// The core never reaches into UI state. It hands every observable change to a
// caller-owned Sink, which may render it, log it or forward it elsewhere.
package events

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Kind identifies the type of an Event.
type Kind uint8

const (
	// KindMessageReceived is a chat payload read from the stream.
	KindMessageReceived Kind = iota + 1
	// KindMessageSent is a chat payload written to the stream.
	KindMessageSent
	// KindTransferStarted marks the start of an incoming or outgoing transfer.
	KindTransferStarted
	// KindProgress reports a new transfer percentage.
	KindProgress
	// KindTransferCompleted marks a successful transfer.
	KindTransferCompleted
	// KindTransferFailed marks an aborted transfer.
	KindTransferFailed
	// KindConnectionLost is emitted once when the reader loop stops.
	KindConnectionLost
)

func (k Kind) String() string {
	switch k {
	case KindMessageReceived:
		return "message_received"
	case KindMessageSent:
		return "message_sent"
	case KindTransferStarted:
		return "transfer_started"
	case KindProgress:
		return "progress"
	case KindTransferCompleted:
		return "transfer_completed"
	case KindTransferFailed:
		return "transfer_failed"
	case KindConnectionLost:
		return "connection_lost"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Direction indicates whether a transfer is incoming or outgoing.
type Direction uint8

const (
	// DirectionNone is used by events unrelated to a transfer.
	DirectionNone Direction = iota
	// DirectionIncoming represents a file being received.
	DirectionIncoming
	// DirectionOutgoing represents a file being sent.
	DirectionOutgoing
)

func (d Direction) String() string {
	switch d {
	case DirectionIncoming:
		return "incoming"
	case DirectionOutgoing:
		return "outgoing"
	default:
		return "none"
	}
}

// Event is one notification. Only the fields relevant to Kind are set.
type Event struct {
	Kind      Kind
	Direction Direction

	// Payload holds the chat bytes for message events.
	Payload []byte

	// TransferID correlates the events of one transfer. It is local only.
	TransferID uuid.UUID
	Name       string
	Percent    int

	// Completion details.
	Path     string
	Size     uint64
	Digest   []byte
	MimeType string

	Err error
}

// Sink receives events. Implementations must be safe for concurrent use:
// the reader loop and the sender goroutine both emit.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

// Emit implements Sink.
func (f SinkFunc) Emit(e Event) { f(e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// MessageReceived builds a KindMessageReceived event.
func MessageReceived(payload []byte) Event {
	return Event{Kind: KindMessageReceived, Payload: payload}
}

// MessageSent builds a KindMessageSent event.
func MessageSent(payload []byte) Event {
	return Event{Kind: KindMessageSent, Payload: payload}
}

// ConnectionLost builds a KindConnectionLost event.
func ConnectionLost(err error) Event {
	return Event{Kind: KindConnectionLost, Err: err}
}

// Recorder is a Sink that keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	notify chan struct{}
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{notify: make(chan struct{}, 1)}
}

// Emit implements Sink.
func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()

	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Kinds returns the recorded event kinds in order.
func (r *Recorder) Kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Kind, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

// Filter returns the recorded events of the given kind.
func (r *Recorder) Filter(kind Kind) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Changed is signalled after each Emit. It is coalescing: several emits may
// produce one signal.
func (r *Recorder) Changed() <-chan struct{} {
	return r.notify
}
