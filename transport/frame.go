package transport

import (
	"encoding/binary"
	"io"
	"time"

	"github.com/opd-ai/wirechat/limits"
	"github.com/opd-ai/wirechat/metrics"
)

// EncodeFrame returns BE32(len(payload)) followed by payload.
func EncodeFrame(payload []byte) []byte {
	buf := make([]byte, limits.LengthPrefixLen+len(payload))
	binary.BigEndian.PutUint32(buf[:limits.LengthPrefixLen], uint32(len(payload)))
	copy(buf[limits.LengthPrefixLen:], payload)
	return buf
}

// EncodeSize returns the raw 8 byte big-endian size field of a transfer header.
func EncodeSize(size uint64) []byte {
	buf := make([]byte, limits.SizeFieldLen)
	binary.BigEndian.PutUint64(buf, size)
	return buf
}

// WriteFrame writes one encoded frame with a single Write call.
func WriteFrame(w io.Writer, payload []byte) error {
	if _, err := w.Write(EncodeFrame(payload)); err != nil {
		return newConnectionError("write frame", err)
	}
	return nil
}

// WriteSize writes the raw, unframed size field.
func WriteSize(w io.Writer, size uint64) error {
	if _, err := w.Write(EncodeSize(size)); err != nil {
		return newConnectionError("write size", err)
	}
	return nil
}

// readDeadliner is implemented by net.Conn and the websocket stream.
type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

// FrameReader decodes frames from a stream, accumulating across short reads.
// It is not safe for concurrent use; the reader loop owns it.
type FrameReader struct {
	r            io.Reader
	maxFrameSize uint32
	readTimeout  time.Duration

	header [limits.LengthPrefixLen]byte
	size   [limits.SizeFieldLen]byte
}

// NewFrameReader creates a FrameReader. A maxFrameSize <= 0 selects limits.MaxFrameSize.
func NewFrameReader(r io.Reader, maxFrameSize int) *FrameReader {
	if maxFrameSize <= 0 {
		maxFrameSize = limits.MaxFrameSize
	}
	return &FrameReader{r: r, maxFrameSize: uint32(maxFrameSize)}
}

// SetReadTimeout arms a per-frame read deadline when the stream supports one.
// Zero disables it and reads block indefinitely.
func (fr *FrameReader) SetReadTimeout(d time.Duration) {
	fr.readTimeout = d
}

// ReadFrame reads exactly one frame and returns its payload.
// Stream closure or I/O failure yields a *ConnectionError, including when a
// declared length cannot be read in full. A length above the bound yields a
// *FrameError without allocating.
func (fr *FrameReader) ReadFrame() ([]byte, error) {
	fr.armDeadline()

	if _, err := io.ReadFull(fr.r, fr.header[:]); err != nil {
		return nil, newConnectionError("read length", err)
	}
	length := binary.BigEndian.Uint32(fr.header[:])
	if length > fr.maxFrameSize {
		return nil, &FrameError{Op: "read", Length: length, Err: ErrFrameTooLarge}
	}

	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(fr.r, payload); err != nil {
			return nil, newConnectionError("read payload", err)
		}
	}
	metrics.RecordFrameRead(int(length))
	return payload, nil
}

// ReadSize reads the raw 8 byte big-endian size field that follows a file name.
func (fr *FrameReader) ReadSize() (uint64, error) {
	fr.armDeadline()

	if _, err := io.ReadFull(fr.r, fr.size[:]); err != nil {
		return 0, newConnectionError("read size", err)
	}
	return binary.BigEndian.Uint64(fr.size[:]), nil
}

func (fr *FrameReader) armDeadline() {
	if fr.readTimeout <= 0 {
		return
	}
	if d, ok := fr.r.(readDeadliner); ok {
		_ = d.SetReadDeadline(time.Now().Add(fr.readTimeout))
	}
}
