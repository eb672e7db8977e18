// Package limits provides centralized size limits for the wirechat protocol.
// This ensures consistent validation across the codec, the writer and the
// file transfer state machines.
package limits

import (
	"errors"
	"fmt"
)

const (
	// ChunkSize is the number of file bytes carried by one data frame.
	ChunkSize = 1024

	// MaxChatMessage is the largest chat payload accepted for sending.
	// Existing peers read every frame into a 1024 byte buffer, so larger
	// messages would break them.
	MaxChatMessage = 1024

	// MaxFileNameLength is the maximum allowed file name length in bytes.
	// The value (255) matches typical filesystem limits.
	MaxFileNameLength = 255

	// MaxFrameSize is the default upper bound for a decoded frame payload.
	// A declared length above it is a protocol error rather than an allocation.
	MaxFrameSize = 64 * 1024

	// SizeFieldLen is the width of the raw big-endian file size that follows
	// the file name frame.
	SizeFieldLen = 8

	// LengthPrefixLen is the width of the big-endian frame length prefix.
	LengthPrefixLen = 4
)

var (
	// ErrMessageEmpty indicates an empty value was provided where one is required
	ErrMessageEmpty = errors.New("empty message")

	// ErrMessageTooLarge indicates message exceeds maximum size
	ErrMessageTooLarge = errors.New("message too large")
)

// ValidateMessageSize validates a non-empty message against the specified maximum size.
// Returns an error with context including the actual and maximum sizes.
func ValidateMessageSize(message []byte, maxSize int) error {
	if len(message) == 0 {
		return ErrMessageEmpty
	}
	if len(message) > maxSize {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrMessageTooLarge, len(message), maxSize)
	}
	return nil
}

// ValidateChatMessage checks a chat payload against MaxChatMessage.
// Empty chat payloads are valid frames and are accepted.
func ValidateChatMessage(message []byte) error {
	if len(message) > MaxChatMessage {
		return fmt.Errorf("%w: chat size %d exceeds limit %d", ErrMessageTooLarge, len(message), MaxChatMessage)
	}
	return nil
}

// ValidateFileName checks the encoded length of a file name.
func ValidateFileName(name string) error {
	return ValidateMessageSize([]byte(name), MaxFileNameLength)
}
