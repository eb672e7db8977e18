package wirechat

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/opd-ai/wirechat/events"
	"github.com/opd-ai/wirechat/file"
	"github.com/opd-ai/wirechat/limits"
	"github.com/opd-ai/wirechat/metrics"
	"github.com/opd-ai/wirechat/transport"
	"github.com/sirupsen/logrus"
)

// ErrNilStream is returned by New when no stream is supplied.
var ErrNilStream = errors.New("wirechat: nil stream")

// ErrNilStore is returned by New when no file store is supplied.
var ErrNilStore = errors.New("wirechat: nil file store")

// Options contains the tunables of a connection.
type Options struct {
	// ReadTimeout bounds each frame read. Zero blocks indefinitely.
	ReadTimeout time.Duration
	// WriteTimeout bounds each write. Zero blocks indefinitely.
	WriteTimeout time.Duration
	// MaxFrameSize bounds a decoded frame payload.
	MaxFrameSize int
	// ChunkSize is the payload size of outgoing data frames, at most
	// limits.ChunkSize.
	ChunkSize int
}

// NewOptions returns the protocol defaults.
func NewOptions() *Options {
	return &Options{
		MaxFrameSize: limits.MaxFrameSize,
		ChunkSize:    limits.ChunkSize,
	}
}

// Conn is one chat session over a reliable byte stream.
//
// It owns a reader loop that turns incoming frames into events and file
// writes, and a single writer shared by chat sends and at most one outgoing
// file transfer.
type Conn struct {
	stream io.ReadWriteCloser
	sink   events.Sink
	opts   *Options

	reader   *transport.FrameReader
	writer   *transport.Writer
	receiver *file.Receiver
	sender   *file.Sender

	startOnce sync.Once
	closeOnce sync.Once
	done      chan struct{}
	senders   sync.WaitGroup

	errMu sync.Mutex
	err   error
}

// New wraps stream. The reader loop does not run until Start is called.
// store supplies destinations for incoming files and sources for outgoing
// ones; a nil sink discards events.
func New(stream io.ReadWriteCloser, store file.Store, sink events.Sink, options *Options) (*Conn, error) {
	if stream == nil {
		return nil, ErrNilStream
	}
	if store == nil {
		return nil, ErrNilStore
	}
	if options == nil {
		options = NewOptions()
	}
	if sink == nil {
		sink = events.Discard
	}

	reader := transport.NewFrameReader(stream, options.MaxFrameSize)
	reader.SetReadTimeout(options.ReadTimeout)
	writer := transport.NewWriter(stream, sink)
	writer.SetWriteTimeout(options.WriteTimeout)

	return &Conn{
		stream:   stream,
		sink:     sink,
		opts:     options,
		reader:   reader,
		writer:   writer,
		receiver: file.NewReceiver(store, sink),
		sender:   file.NewSender(store, sink, options.ChunkSize),
		done:     make(chan struct{}),
	}, nil
}

// Start launches the reader loop. Calls after the first are no-ops.
func (c *Conn) Start() {
	c.startOnce.Do(func() {
		go c.readLoop()
	})
}

// SendMessage sends one chat message. It reports false with a nil error when
// the message was dropped because a file transfer holds the stream.
func (c *Conn) SendMessage(msg []byte) (bool, error) {
	return c.writer.WriteMessage(msg)
}

// SendFile starts sending the file at path in the background. It fails with
// transport.ErrTransferInProgress when another transfer is active. Progress
// and the outcome are reported as events.
func (c *Conn) SendFile(path string) error {
	tw, err := c.writer.BeginTransfer()
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "SendFile",
			"path":     path,
			"error":    err.Error(),
		}).Warn("File send rejected")
		return err
	}

	c.senders.Add(1)
	go func() {
		defer c.senders.Done()
		_ = c.sender.Send(tw, path)
	}()
	return nil
}

// Busy reports whether an outgoing transfer holds the stream.
func (c *Conn) Busy() bool {
	return c.writer.Busy()
}

// Done is closed once the reader loop has stopped.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err returns the error that stopped the reader loop, or nil while it runs.
func (c *Conn) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Close closes the stream, stops the writer and waits for a running sender
// to exit. A started reader loop then stops with ConnectionLost.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.stream.Close()
		c.writer.Close()
		// Without a reader loop nothing else would close done.
		c.startOnce.Do(func() {
			close(c.done)
		})
	})
	c.senders.Wait()
	return err
}

func (c *Conn) readLoop() {
	defer close(c.done)

	for {
		payload, err := c.reader.ReadFrame()
		if err == nil {
			err = c.receiver.Handle(payload, c.reader)
		}
		if err != nil {
			c.terminate(err)
			return
		}
	}
}

// terminate runs on the reader goroutine once, after a fatal stream error.
func (c *Conn) terminate(err error) {
	c.receiver.Abandon(err)

	c.errMu.Lock()
	c.err = err
	c.errMu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "readLoop",
		"fatal":    transport.IsFatal(err),
		"error":    err.Error(),
	}).Warn("Connection lost")

	metrics.RecordConnectionLost()
	c.sink.Emit(events.ConnectionLost(err))

	c.closeOnce.Do(func() {
		if closeErr := c.stream.Close(); closeErr != nil {
			logrus.WithFields(logrus.Fields{
				"function": "readLoop",
				"error":    closeErr.Error(),
			}).Debug("Failed to close stream")
		}
		c.writer.Close()
	})
}
