package file

import (
	"bytes"
	"errors"
	"io"
	"sync"

	"github.com/opd-ai/wirechat/metrics"
	"github.com/opd-ai/wirechat/transport"
)

// wire builds a byte stream the way a peer would put it on the wire.
type wire struct {
	bytes.Buffer
}

func (w *wire) frame(payload []byte) *wire {
	w.Write(transport.EncodeFrame(payload))
	return w
}

func (w *wire) text(s string) *wire {
	return w.frame([]byte(s))
}

func (w *wire) control(tag ControlTag) *wire {
	return w.frame(tag.Payload())
}

func (w *wire) header(name string, size uint64) *wire {
	w.control(FileStart).text(name)
	w.Write(transport.EncodeSize(size))
	return w
}

// feed runs a reader loop over stream until the first decode error.
func feed(r *Receiver, stream io.Reader) error {
	fr := transport.NewFrameReader(stream, 0)
	for {
		payload, err := fr.ReadFrame()
		if err != nil {
			return err
		}
		if err := r.Handle(payload, fr); err != nil {
			return err
		}
	}
}

// recordingStream implements TransferStream over a buffer.
type recordingStream struct {
	mu      sync.Mutex
	buf     bytes.Buffer
	ends    int
	kinds   []string
	failAt  int // fail the Nth write (1-based), 0 never
	writes  int
	failErr error
}

func (s *recordingStream) write(kind string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	s.kinds = append(s.kinds, kind)
	if s.failAt > 0 && s.writes >= s.failAt {
		return s.failErr
	}
	s.buf.Write(data)
	return nil
}

func (s *recordingStream) WriteFrame(kind string, payload []byte) error {
	return s.write(kind, transport.EncodeFrame(payload))
}

func (s *recordingStream) WriteSize(size uint64) error {
	return s.write(metrics.KindRaw, transport.EncodeSize(size))
}

func (s *recordingStream) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ends++
}

func (s *recordingStream) frames() *transport.FrameReader {
	s.mu.Lock()
	defer s.mu.Unlock()
	return transport.NewFrameReader(bytes.NewReader(append([]byte(nil), s.buf.Bytes()...)), 0)
}

var _ TransferStream = (*recordingStream)(nil)

// faultyStore wraps a DirStore and injects failures.
type faultyStore struct {
	*DirStore
	createErr  error
	failWrites bool
	openErr    error
	source     Source
}

func (s *faultyStore) Create(name string) (Sink, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	sink, err := s.DirStore.Create(name)
	if err != nil {
		return nil, err
	}
	if s.failWrites {
		return &failingSink{Sink: sink}, nil
	}
	return sink, nil
}

func (s *faultyStore) Open(path string) (Source, error) {
	if s.openErr != nil {
		return nil, s.openErr
	}
	if s.source != nil {
		return s.source, nil
	}
	return s.DirStore.Open(path)
}

type failingSink struct {
	Sink
}

func (f *failingSink) Write(p []byte) (int, error) {
	return 0, errors.New("disk full")
}

// brokenSource returns one good chunk and then a read error.
type brokenSource struct {
	reads  int
	closed bool
}

func (b *brokenSource) Read(p []byte) (int, error) {
	b.reads++
	if b.reads == 1 {
		for i := range p {
			p[i] = 'x'
		}
		return len(p), nil
	}
	return 0, errors.New("input/output error")
}

func (b *brokenSource) Close() error {
	b.closed = true
	return nil
}

func (b *brokenSource) Name() string { return "broken.bin" }

func (b *brokenSource) Size() uint64 { return 4096 }
