package transport

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opd-ai/wirechat/events"
	"github.com/opd-ai/wirechat/limits"
	"github.com/opd-ai/wirechat/metrics"
	"github.com/sirupsen/logrus"
)

// writeDeadliner is implemented by net.Conn and the websocket stream.
type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

type writeRequest struct {
	kind   string
	data   []byte
	chat   bool
	result chan writeResult
}

type writeResult struct {
	written bool
	err     error
}

// Writer serializes every outbound write through a single goroutine so bytes
// from concurrent producers never interleave on the wire.
//
// While a transfer holds the busy flag, chat sends are dropped rather than
// queued. The busy check runs inside the writer goroutine, so a chat frame can
// never land between the frames of a transfer.
type Writer struct {
	w            io.Writer
	sink         events.Sink
	writeTimeout time.Duration

	reqs chan writeRequest
	quit chan struct{}
	done chan struct{}

	busy      atomic.Bool
	closeOnce sync.Once

	errMu sync.Mutex
	err   error
}

// NewWriter starts the writer goroutine for w. A nil sink discards events.
func NewWriter(w io.Writer, sink events.Sink) *Writer {
	if sink == nil {
		sink = events.Discard
	}
	wr := &Writer{
		w:    w,
		sink: sink,
		reqs: make(chan writeRequest),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go wr.run()
	return wr
}

// SetWriteTimeout arms a per-write deadline when the stream supports one.
// Call it before the writer is shared.
func (w *Writer) SetWriteTimeout(d time.Duration) {
	w.writeTimeout = d
}

// Busy reports whether a file transfer currently holds the stream.
func (w *Writer) Busy() bool {
	return w.busy.Load()
}

// Err returns the first write error, which is sticky.
func (w *Writer) Err() error {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	return w.err
}

// WriteMessage sends one chat payload as a frame.
// It returns false with a nil error when the send was dropped because a file
// transfer is active; callers treat that as a no-op.
func (w *Writer) WriteMessage(payload []byte) (bool, error) {
	if err := limits.ValidateChatMessage(payload); err != nil {
		return false, err
	}
	if w.busy.Load() {
		w.reject(len(payload))
		return false, nil
	}

	res := w.submit(writeRequest{kind: metrics.KindChat, data: EncodeFrame(payload), chat: true})
	if res.err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "WriteMessage",
			"size":     len(payload),
			"error":    res.err.Error(),
		}).Error("Exception during write")
		return false, res.err
	}
	if !res.written {
		return false, nil
	}

	w.sink.Emit(events.MessageSent(payload))
	return true, nil
}

// BeginTransfer sets the busy flag and returns the handle used for every
// write of one outgoing transfer. End must be called on every exit path.
func (w *Writer) BeginTransfer() (*TransferWriter, error) {
	select {
	case <-w.quit:
		return nil, ErrWriterClosed
	default:
	}
	if !w.busy.CompareAndSwap(false, true) {
		return nil, ErrTransferInProgress
	}
	logrus.WithFields(logrus.Fields{
		"function": "BeginTransfer",
	}).Debug("Stream reserved for file transfer")
	return &TransferWriter{w: w}, nil
}

// Close stops the writer goroutine. Pending and later writes fail with
// ErrWriterClosed. The underlying stream is left to its owner.
func (w *Writer) Close() error {
	w.closeOnce.Do(func() {
		close(w.quit)
	})
	return nil
}

// Done is closed once the writer goroutine has exited.
func (w *Writer) Done() <-chan struct{} {
	return w.done
}

func (w *Writer) reject(size int) {
	metrics.RecordChatRejected()
	logrus.WithFields(logrus.Fields{
		"function": "WriteMessage",
		"size":     size,
	}).Debug("Chat send dropped while file transfer is active")
}

func (w *Writer) submit(req writeRequest) writeResult {
	req.result = make(chan writeResult, 1)
	select {
	case w.reqs <- req:
	case <-w.quit:
		return writeResult{err: ErrWriterClosed}
	}
	return <-req.result
}

func (w *Writer) run() {
	defer close(w.done)
	for {
		select {
		case <-w.quit:
			return
		case req := <-w.reqs:
			req.result <- w.handle(req)
		}
	}
}

// handle runs on the writer goroutine only.
func (w *Writer) handle(req writeRequest) writeResult {
	if err := w.Err(); err != nil {
		return writeResult{err: err}
	}
	if req.chat && w.busy.Load() {
		w.reject(len(req.data) - limits.LengthPrefixLen)
		return writeResult{}
	}

	if w.writeTimeout > 0 {
		if d, ok := w.w.(writeDeadliner); ok {
			_ = d.SetWriteDeadline(time.Now().Add(w.writeTimeout))
		}
	}
	if _, err := w.w.Write(req.data); err != nil {
		connErr := newConnectionError("write "+req.kind, err)
		w.errMu.Lock()
		w.err = connErr
		w.errMu.Unlock()
		return writeResult{err: connErr}
	}
	metrics.RecordWrite(req.kind, len(req.data))
	return writeResult{written: true}
}

// TransferWriter is the write handle of one outgoing transfer. Its writes
// bypass the busy check that drops chat sends.
type TransferWriter struct {
	w       *Writer
	endOnce sync.Once
	ended   atomic.Bool
}

// WriteFrame sends payload as one frame. kind labels the write in metrics.
func (t *TransferWriter) WriteFrame(kind string, payload []byte) error {
	if t.ended.Load() {
		return ErrTransferEnded
	}
	return t.w.submit(writeRequest{kind: kind, data: EncodeFrame(payload)}).err
}

// WriteSize sends the raw 8 byte size field. It is the only unframed write
// in the protocol.
func (t *TransferWriter) WriteSize(size uint64) error {
	if t.ended.Load() {
		return ErrTransferEnded
	}
	return t.w.submit(writeRequest{kind: metrics.KindRaw, data: EncodeSize(size)}).err
}

// End releases the busy flag. It is idempotent.
func (t *TransferWriter) End() {
	t.endOnce.Do(func() {
		t.ended.Store(true)
		t.w.busy.Store(false)
		logrus.WithFields(logrus.Fields{
			"function": "TransferWriter.End",
		}).Debug("Stream released by file transfer")
	})
}
