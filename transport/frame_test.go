package transport

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/opd-ai/wirechat/limits"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// partialReader simulates a stream socket that returns at most chunkSize
// bytes per Read call.
type partialReader struct {
	data      []byte
	readPos   int
	chunkSize int
	readCalls int
	failAfter error
}

func newPartialReader(data []byte, chunkSize int) *partialReader {
	return &partialReader{data: data, chunkSize: chunkSize}
}

func (p *partialReader) Read(b []byte) (int, error) {
	p.readCalls++

	remaining := len(p.data) - p.readPos
	if remaining == 0 {
		if p.failAfter != nil {
			return 0, p.failAfter
		}
		return 0, io.EOF
	}

	toRead := p.chunkSize
	if toRead > len(b) {
		toRead = len(b)
	}
	if toRead > remaining {
		toRead = remaining
	}

	n := copy(b, p.data[p.readPos:p.readPos+toRead])
	p.readPos += n
	return n, nil
}

func TestEncodeFrameLayout(t *testing.T) {
	encoded := EncodeFrame([]byte("hello"))
	assert.Equal(t, []byte{0, 0, 0, 5, 'h', 'e', 'l', 'l', 'o'}, encoded)
	assert.Equal(t, []byte{0, 0, 0, 0}, EncodeFrame(nil))
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0x09, 0xc4}, EncodeSize(2500))
}

func TestFrameRoundTrip(t *testing.T) {
	payloads := [][]byte{
		{},
		[]byte("hello"),
		[]byte("FILE_START"),
		bytes.Repeat([]byte{0xAB}, limits.ChunkSize),
		bytes.Repeat([]byte{0x01}, limits.MaxFrameSize),
	}

	for _, p := range payloads {
		var buf bytes.Buffer
		require.NoError(t, WriteFrame(&buf, p))

		fr := NewFrameReader(&buf, 0)
		got, err := fr.ReadFrame()
		require.NoError(t, err)
		assert.Equal(t, len(p), len(got))
		assert.True(t, bytes.Equal(p, got))
	}
}

// TestFramePartialReads verifies byte-at-a-time and misaligned delivery decode
// exactly like whole delivery.
func TestFramePartialReads(t *testing.T) {
	tests := []struct {
		name      string
		dataSize  int
		chunkSize int
	}{
		{name: "Single byte chunks", dataSize: 100, chunkSize: 1},
		{name: "Two byte chunks", dataSize: 256, chunkSize: 2},
		{name: "Three byte chunks (header not aligned)", dataSize: 1024, chunkSize: 3},
		{name: "Large frame with small chunks", dataSize: 4096, chunkSize: 7},
		{name: "Empty frame single bytes", dataSize: 0, chunkSize: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := make([]byte, tt.dataSize)
			for i := range payload {
				payload[i] = byte(i % 251)
			}
			var stream []byte
			stream = append(stream, EncodeFrame(payload)...)
			stream = append(stream, EncodeFrame([]byte("next"))...)

			pr := newPartialReader(stream, tt.chunkSize)
			fr := NewFrameReader(pr, 0)

			got, err := fr.ReadFrame()
			require.NoError(t, err)
			assert.Equal(t, payload, got)

			next, err := fr.ReadFrame()
			require.NoError(t, err)
			assert.Equal(t, []byte("next"), next)

			if tt.chunkSize < limits.LengthPrefixLen {
				assert.Greater(t, pr.readCalls, 2, "expected multiple short reads")
			}
		})
	}
}

func TestReadSizePartial(t *testing.T) {
	pr := newPartialReader(EncodeSize(1<<40+7), 3)
	fr := NewFrameReader(pr, 0)
	size, err := fr.ReadSize()
	require.NoError(t, err)
	assert.Equal(t, uint64(1<<40+7), size)
}

func TestReadFrameTooLarge(t *testing.T) {
	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, 2048)

	fr := NewFrameReader(bytes.NewReader(header), 1024)
	_, err := fr.ReadFrame()
	require.Error(t, err)

	var frameErr *FrameError
	require.True(t, errors.As(err, &frameErr))
	assert.Equal(t, uint32(2048), frameErr.Length)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
	assert.True(t, IsFatal(err))
}

func TestReadFrameGarbageLength(t *testing.T) {
	fr := NewFrameReader(bytes.NewReader([]byte{0xFF, 0xFF, 0xFF, 0xFF, 'x'}), 0)
	_, err := fr.ReadFrame()
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestReadFrameConnectionErrors(t *testing.T) {
	truncated := EncodeFrame([]byte("hello world"))[:8]
	boom := errors.New("socket reset")

	tests := []struct {
		name    string
		reader  io.Reader
		wantErr error
	}{
		{name: "clean_eof", reader: bytes.NewReader(nil), wantErr: io.EOF},
		{name: "short_length", reader: bytes.NewReader([]byte{0, 0}), wantErr: io.ErrUnexpectedEOF},
		{name: "truncated_payload", reader: bytes.NewReader(truncated), wantErr: io.ErrUnexpectedEOF},
		{name: "io_failure", reader: &partialReader{data: []byte{0, 0, 0, 9, 'a'}, chunkSize: 1, failAfter: boom}, wantErr: boom},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFrameReader(tt.reader, 0).ReadFrame()
			var connErr *ConnectionError
			require.True(t, errors.As(err, &connErr), "got %T: %v", err, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, IsFatal(err))
		})
	}
}

func TestReadSizeConnectionError(t *testing.T) {
	_, err := NewFrameReader(bytes.NewReader([]byte{1, 2, 3}), 0).ReadSize()
	var connErr *ConnectionError
	require.True(t, errors.As(err, &connErr))
	assert.Equal(t, "read size", connErr.Op)
}

func TestIsFatal(t *testing.T) {
	assert.False(t, IsFatal(nil))
	assert.False(t, IsFatal(errors.New("other")))
	assert.True(t, IsFatal(&ConnectionError{Op: "x", Err: io.EOF}))
}
