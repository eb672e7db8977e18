package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrFrameTooLarge indicates a declared frame length above the decode bound.
	ErrFrameTooLarge = errors.New("frame too large")

	// ErrTransferInProgress indicates a second transfer was started while one holds the stream.
	ErrTransferInProgress = errors.New("file transfer already in progress")

	// ErrTransferEnded indicates a write through a TransferWriter after End.
	ErrTransferEnded = errors.New("file transfer already ended")

	// ErrWriterClosed indicates the connection writer has been shut down.
	ErrWriterClosed = errors.New("connection writer closed")
)

// ConnectionError reports a closed stream or an I/O failure. It is fatal to
// the connection.
type ConnectionError struct {
	Op  string // operation that caused the error
	Err error  // underlying error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// FrameError reports a malformed frame. It is fatal to the connection because
// the stream can no longer be resynchronized.
type FrameError struct {
	Op     string
	Length uint32
	Err    error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("frame %s (length %d): %v", e.Op, e.Length, e.Err)
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err ends the connection.
func IsFatal(err error) bool {
	var connErr *ConnectionError
	var frameErr *FrameError
	return errors.As(err, &connErr) || errors.As(err, &frameErr)
}

func newConnectionError(op string, err error) *ConnectionError {
	return &ConnectionError{Op: op, Err: err}
}
