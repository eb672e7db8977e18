// Package limits provides centralized size constants and validation functions
// for the wirechat protocol.
//
// # Size Hierarchy
//
//   - ChunkSize (1024 bytes): file data carried by a single frame.
//   - MaxChatMessage (1024 bytes): the largest chat payload a peer will send.
//     Older peers decode every frame into a fixed 1024 byte buffer.
//   - MaxFileNameLength (255 bytes): the file name frame of a transfer header.
//   - MaxFrameSize (64 KiB): the default decode bound. Anything above it is
//     rejected by the codec as a frame error before any allocation.
//
// # Validation Functions
//
//	if err := limits.ValidateChatMessage(msg); err != nil {
//	    // ErrMessageTooLarge
//	}
//
// For custom size limits, use the generic ValidateMessageSize function:
//
//	err := limits.ValidateMessageSize(data, 4096)
package limits
