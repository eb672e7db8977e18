package file

import (
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/opd-ai/wirechat/events"
	"github.com/opd-ai/wirechat/limits"
	"github.com/opd-ai/wirechat/metrics"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"
)

// TransferStream is the exclusive write handle of one outgoing transfer.
// transport.TransferWriter implements it.
type TransferStream interface {
	WriteFrame(kind string, payload []byte) error
	WriteSize(size uint64) error
	End()
}

// SendJob is the state of one outgoing transfer. It is owned by the sending
// goroutine for its lifetime.
type SendJob struct {
	ID      uuid.UUID
	Path    string
	Name    string
	Total   uint64
	Written uint64
}

// Sender streams local files as FILE_START, name, size, data frames and a
// closing FILE_END or FILE_ERROR.
type Sender struct {
	store     Store
	sink      events.Sink
	chunkSize int
}

// NewSender creates a Sender. Data frames never exceed limits.ChunkSize bytes;
// a chunkSize outside (0, limits.ChunkSize] selects that default.
func NewSender(store Store, sink events.Sink, chunkSize int) *Sender {
	if sink == nil {
		sink = events.Discard
	}
	if chunkSize <= 0 || chunkSize > limits.ChunkSize {
		chunkSize = limits.ChunkSize
	}
	return &Sender{store: store, sink: sink, chunkSize: chunkSize}
}

// Send runs one transfer to completion or failure. The caller has already
// reserved the stream; Send releases it and closes the source on every path.
// Failures are reported as TransferFailed and returned.
func (s *Sender) Send(ts TransferStream, path string) (err error) {
	job := &SendJob{ID: uuid.New(), Path: path, Name: path}
	defer ts.End()

	defer func() {
		if r := recover(); r != nil {
			err = s.fail(ts, job, &TransferIOError{Op: "send", Name: job.Name, Err: panicError(r)})
		}
	}()

	src, err := s.store.Open(path)
	if err != nil {
		return s.fail(ts, job, &TransferIOError{Op: "open", Name: path, Err: err})
	}
	defer func() {
		if closeErr := src.Close(); closeErr != nil {
			logrus.WithFields(logrus.Fields{
				"function":  "Send",
				"file_name": job.Name,
				"error":     closeErr.Error(),
			}).Warn("Failed to close source file")
		}
	}()

	job.Name = src.Name()
	job.Total = src.Size()
	if err := limits.ValidateFileName(job.Name); err != nil {
		return s.fail(ts, job, &TransferIOError{Op: "validate", Name: job.Name, Err: err})
	}

	logrus.WithFields(logrus.Fields{
		"function":    "Send",
		"transfer_id": job.ID.String(),
		"file_name":   job.Name,
		"file_size":   job.Total,
	}).Info("Sending file")

	if err := s.writeHeader(ts, job); err != nil {
		return s.fail(ts, job, err)
	}
	s.sink.Emit(events.Event{
		Kind:       events.KindTransferStarted,
		Direction:  events.DirectionOutgoing,
		TransferID: job.ID,
		Name:       job.Name,
		Size:       job.Total,
	})

	digest, err := s.stream(ts, src, job)
	if err != nil {
		return s.fail(ts, job, err)
	}

	if err := ts.WriteFrame(metrics.KindControl, FileEnd.Payload()); err != nil {
		return s.fail(ts, job, err)
	}

	logrus.WithFields(logrus.Fields{
		"function":    "Send",
		"transfer_id": job.ID.String(),
		"file_name":   job.Name,
		"written":     job.Written,
	}).Info("File transfer completed")

	metrics.RecordTransfer(events.DirectionOutgoing.String(), metrics.OutcomeCompleted)
	s.sink.Emit(events.Event{
		Kind:       events.KindTransferCompleted,
		Direction:  events.DirectionOutgoing,
		TransferID: job.ID,
		Name:       job.Name,
		Path:       job.Path,
		Size:       job.Written,
		Digest:     digest,
	})
	return nil
}

func (s *Sender) writeHeader(ts TransferStream, job *SendJob) error {
	if err := ts.WriteFrame(metrics.KindControl, FileStart.Payload()); err != nil {
		return err
	}
	if err := ts.WriteFrame(metrics.KindName, []byte(job.Name)); err != nil {
		return err
	}
	return ts.WriteSize(job.Total)
}

func (s *Sender) stream(ts TransferStream, src io.Reader, job *SendJob) ([]byte, error) {
	digest, err := blake2b.New256(nil)
	if err != nil {
		return nil, err
	}
	prog := newProgress(job.Total)
	buf := make([]byte, s.chunkSize)

	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if err := ts.WriteFrame(metrics.KindData, buf[:n]); err != nil {
				return nil, err
			}
			digest.Write(buf[:n])
			job.Written += uint64(n)

			if percent, changed := prog.advance(n); changed {
				s.sink.Emit(events.Event{
					Kind:       events.KindProgress,
					Direction:  events.DirectionOutgoing,
					TransferID: job.ID,
					Name:       job.Name,
					Percent:    percent,
				})
			}
		}
		if readErr == io.EOF {
			return digest.Sum(nil), nil
		}
		if readErr != nil {
			return nil, &TransferIOError{Op: "read", Name: job.Name, Err: readErr}
		}
	}
}

// fail sends FILE_ERROR on a best-effort basis and reports the failure.
func (s *Sender) fail(ts TransferStream, job *SendJob, cause error) error {
	if err := ts.WriteFrame(metrics.KindControl, FileError.Payload()); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":  "fail",
			"file_name": job.Name,
			"error":     err.Error(),
		}).Debug("Could not send FILE_ERROR")
	}

	logrus.WithFields(logrus.Fields{
		"function":    "fail",
		"transfer_id": job.ID.String(),
		"file_name":   job.Name,
		"written":     job.Written,
		"error":       cause.Error(),
	}).Error("Outgoing file transfer failed")

	metrics.RecordTransfer(events.DirectionOutgoing.String(), metrics.OutcomeFailed)
	s.sink.Emit(events.Event{
		Kind:       events.KindTransferFailed,
		Direction:  events.DirectionOutgoing,
		TransferID: job.ID,
		Name:       job.Name,
		Size:       job.Written,
		Err:        cause,
	})
	return cause
}

func panicError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("panic during file transfer: %v", r)
}
