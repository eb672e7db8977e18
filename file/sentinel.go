package file

import "bytes"

// ControlTag identifies a control frame of the transfer protocol.
type ControlTag uint8

const (
	// FileStart opens a transfer. It is followed by a name frame and a raw size.
	FileStart ControlTag = iota + 1
	// FileEnd closes a transfer successfully.
	FileEnd
	// FileError aborts a transfer.
	FileError
)

// Sentinel payloads. They are compared by exact byte equality.
var (
	fileStartPayload = []byte("FILE_START")
	fileEndPayload   = []byte("FILE_END")
	fileErrorPayload = []byte("FILE_ERROR")
)

// Classify reports whether payload is one of the control sentinels.
//
// The protocol has no frame type tag, so a chat message whose bytes equal a
// sentinel is indistinguishable from a real control frame and is treated as
// one. This is the single place that decision is made.
func Classify(payload []byte) (ControlTag, bool) {
	switch {
	case bytes.Equal(payload, fileStartPayload):
		return FileStart, true
	case bytes.Equal(payload, fileEndPayload):
		return FileEnd, true
	case bytes.Equal(payload, fileErrorPayload):
		return FileError, true
	default:
		return 0, false
	}
}

// Payload returns a copy of the wire bytes for the tag.
func (t ControlTag) Payload() []byte {
	switch t {
	case FileStart:
		return append([]byte(nil), fileStartPayload...)
	case FileEnd:
		return append([]byte(nil), fileEndPayload...)
	case FileError:
		return append([]byte(nil), fileErrorPayload...)
	default:
		return nil
	}
}

func (t ControlTag) String() string {
	switch t {
	case FileStart:
		return "FILE_START"
	case FileEnd:
		return "FILE_END"
	case FileError:
		return "FILE_ERROR"
	default:
		return "UNKNOWN"
	}
}
