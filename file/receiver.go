package file

import (
	"errors"
	"hash"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/opd-ai/wirechat/events"
	"github.com/opd-ai/wirechat/metrics"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"
)

// ErrPeerAborted is reported when the peer sends FILE_ERROR.
var ErrPeerAborted = errors.New("peer aborted transfer")

// ErrTransferSuperseded is reported when FILE_START arrives during a transfer.
var ErrTransferSuperseded = errors.New("transfer superseded by a new FILE_START")

// FrameSource is the part of the frame reader the receiver needs to consume a
// transfer header.
type FrameSource interface {
	ReadFrame() ([]byte, error)
	ReadSize() (uint64, error)
}

// ReceiverState is the state of the incoming transfer state machine.
type ReceiverState uint8

const (
	// StateIdle forwards ordinary frames as chat messages.
	StateIdle ReceiverState = iota
	// StateReceiving appends ordinary frames to the destination file.
	StateReceiving
)

func (s ReceiverState) String() string {
	if s == StateReceiving {
		return "receiving"
	}
	return "idle"
}

// Receiver reconstructs incoming files from the frame stream and forwards
// every other frame as a chat message.
//
// Completion is driven only by FILE_END. A peer that never sends it leaves the
// receiver in StateReceiving until the connection drops, even once the
// announced size has been reached.
//
// Receiver is owned by the reader loop and is not safe for concurrent use.
type Receiver struct {
	store Store
	sink  events.Sink

	state    ReceiverState
	id       uuid.UUID
	name     string
	expected uint64
	written  uint64
	out      Sink // nil while draining a failed transfer
	digest   hash.Hash
	prog     *progress
	warned   bool
}

// NewReceiver creates an idle receiver.
func NewReceiver(store Store, sink events.Sink) *Receiver {
	if sink == nil {
		sink = events.Discard
	}
	return &Receiver{store: store, sink: sink}
}

// State returns the current state.
func (r *Receiver) State() ReceiverState {
	return r.state
}

// Written returns the bytes received for the active transfer.
func (r *Receiver) Written() uint64 {
	return r.written
}

// Handle dispatches one decoded frame. Only errors from src are returned;
// they are fatal to the connection. Resource failures are reported as
// TransferFailed events and the receiver keeps consuming the transfer.
func (r *Receiver) Handle(payload []byte, src FrameSource) error {
	tag, ok := Classify(payload)
	if !ok {
		if r.state == StateReceiving {
			r.write(payload)
			return nil
		}
		r.sink.Emit(events.MessageReceived(payload))
		return nil
	}

	switch tag {
	case FileStart:
		return r.start(src)
	case FileEnd:
		r.finish()
	case FileError:
		r.abort()
	}
	return nil
}

// Abandon ends an in-flight transfer after the stream failed. The partial
// file is closed but keeps its incomplete marker.
func (r *Receiver) Abandon(cause error) {
	if r.state != StateReceiving {
		return
	}
	if r.out != nil {
		if err := r.out.Abandon(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function":  "Abandon",
				"file_name": r.name,
				"error":     err.Error(),
			}).Warn("Failed to close partial file")
		}
		logrus.WithFields(logrus.Fields{
			"function":  "Abandon",
			"file_name": r.name,
			"written":   r.written,
			"expected":  r.expected,
		}).Warn("Incoming transfer abandoned, partial file left incomplete")
		metrics.RecordTransfer(events.DirectionIncoming.String(), metrics.OutcomeAbandoned)
		r.emitFailed(cause)
	}
	r.reset()
}

func (r *Receiver) start(src FrameSource) error {
	if r.state == StateReceiving {
		r.failActive(ErrTransferSuperseded)
	}

	nameFrame, err := src.ReadFrame()
	if err != nil {
		return err
	}
	size, err := src.ReadSize()
	if err != nil {
		return err
	}

	r.state = StateReceiving
	r.id = uuid.New()
	r.name = string(nameFrame)
	r.expected = size
	r.written = 0
	r.prog = newProgress(size)
	r.warned = false

	logrus.WithFields(logrus.Fields{
		"function":    "start",
		"transfer_id": r.id.String(),
		"file_name":   r.name,
		"file_size":   size,
	}).Info("Incoming file transfer")

	clean, err := SanitizeName(r.name)
	if err != nil {
		r.drain(&TransferIOError{Op: "validate", Name: r.name, Err: err})
		return nil
	}
	r.name = clean

	out, err := r.store.Create(clean)
	if err != nil {
		r.drain(&TransferIOError{Op: "create", Name: clean, Err: err})
		return nil
	}
	digest, err := blake2b.New256(nil)
	if err != nil {
		_ = out.Discard()
		r.drain(&TransferIOError{Op: "digest", Name: clean, Err: err})
		return nil
	}
	r.out = out
	r.digest = digest

	r.sink.Emit(events.Event{
		Kind:       events.KindTransferStarted,
		Direction:  events.DirectionIncoming,
		TransferID: r.id,
		Name:       clean,
		Size:       size,
	})
	return nil
}

func (r *Receiver) write(payload []byte) {
	if r.out == nil {
		logrus.WithFields(logrus.Fields{
			"function":  "write",
			"file_name": r.name,
			"size":      len(payload),
		}).Debug("Dropping data frame of failed transfer")
		return
	}

	if _, err := r.out.Write(payload); err != nil {
		if discardErr := r.out.Discard(); discardErr != nil {
			logrus.WithFields(logrus.Fields{
				"function":  "write",
				"file_name": r.name,
				"error":     discardErr.Error(),
			}).Warn("Failed to discard partial file")
		}
		r.out = nil
		r.drain(&TransferIOError{Op: "write", Name: r.name, Err: err})
		return
	}
	r.digest.Write(payload)
	r.written += uint64(len(payload))

	percent, changed := r.prog.advance(len(payload))
	if r.prog.overrun() && !r.warned {
		r.warned = true
		logrus.WithFields(logrus.Fields{
			"function":  "write",
			"file_name": r.name,
			"written":   r.written,
			"expected":  r.expected,
		}).Warn("Peer sent more data than announced")
	}
	if changed {
		r.sink.Emit(events.Event{
			Kind:       events.KindProgress,
			Direction:  events.DirectionIncoming,
			TransferID: r.id,
			Name:       r.name,
			Percent:    percent,
		})
	}
}

// finish handles FILE_END. Without an active transfer nothing is written, but
// the event is still emitted with an empty name so peers that send a bare
// FILE_END are visible.
func (r *Receiver) finish() {
	if r.state != StateReceiving {
		logrus.WithFields(logrus.Fields{
			"function": "finish",
		}).Debug("FILE_END without an active transfer")
		r.sink.Emit(events.Event{
			Kind:      events.KindTransferCompleted,
			Direction: events.DirectionIncoming,
		})
		return
	}
	if r.out == nil {
		r.reset()
		return
	}

	path, err := r.out.Commit()
	if err != nil {
		r.out = nil
		r.emitFailed(&TransferIOError{Op: "commit", Name: r.name, Err: err})
		metrics.RecordTransfer(events.DirectionIncoming.String(), metrics.OutcomeFailed)
		r.reset()
		return
	}

	mime := "application/octet-stream"
	if m, err := mimetype.DetectFile(path); err == nil {
		mime = m.String()
	}

	logrus.WithFields(logrus.Fields{
		"function":    "finish",
		"transfer_id": r.id.String(),
		"file_name":   r.name,
		"path":        path,
		"written":     r.written,
		"expected":    r.expected,
		"mime_type":   mime,
	}).Info("File transfer completed")

	metrics.RecordTransfer(events.DirectionIncoming.String(), metrics.OutcomeCompleted)
	r.sink.Emit(events.Event{
		Kind:       events.KindTransferCompleted,
		Direction:  events.DirectionIncoming,
		TransferID: r.id,
		Name:       r.name,
		Path:       path,
		Size:       r.written,
		Digest:     r.digest.Sum(nil),
		MimeType:   mime,
	})
	r.reset()
}

func (r *Receiver) abort() {
	if r.state != StateReceiving {
		return
	}
	r.failActive(ErrPeerAborted)
}

// failActive discards the open destination and reports the failure. A
// transfer already draining was reported when it failed.
func (r *Receiver) failActive(cause error) {
	if r.out != nil {
		if err := r.out.Discard(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function":  "failActive",
				"file_name": r.name,
				"error":     err.Error(),
			}).Warn("Failed to discard partial file")
		}
		logrus.WithFields(logrus.Fields{
			"function":  "failActive",
			"file_name": r.name,
			"written":   r.written,
			"reason":    cause.Error(),
		}).Warn("Incoming transfer failed")
		metrics.RecordTransfer(events.DirectionIncoming.String(), metrics.OutcomeFailed)
		r.emitFailed(cause)
	}
	r.reset()
}

// drain reports a local failure and keeps consuming the transfer's frames so
// they are not mistaken for chat.
func (r *Receiver) drain(err error) {
	logrus.WithFields(logrus.Fields{
		"function":  "drain",
		"file_name": r.name,
		"error":     err.Error(),
	}).Error("Incoming transfer failed locally, draining remaining frames")
	r.out = nil
	metrics.RecordTransfer(events.DirectionIncoming.String(), metrics.OutcomeFailed)
	r.emitFailed(err)
}

func (r *Receiver) emitFailed(err error) {
	r.sink.Emit(events.Event{
		Kind:       events.KindTransferFailed,
		Direction:  events.DirectionIncoming,
		TransferID: r.id,
		Name:       r.name,
		Size:       r.written,
		Err:        err,
	})
}

func (r *Receiver) reset() {
	r.state = StateIdle
	r.id = uuid.Nil
	r.name = ""
	r.expected = 0
	r.written = 0
	r.out = nil
	r.digest = nil
	r.prog = nil
	r.warned = false
}
