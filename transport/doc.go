// Package transport carries wirechat frames over a reliable byte stream.
//
// # Wire format
//
// Every message is a frame: a 4 byte big-endian length followed by that many
// payload bytes. The only unframed value in the protocol is the 8 byte
// big-endian file size that follows the file name of a transfer header.
//
//	+---------------+------------------+
//	| length (BE32) | payload (length) |
//	+---------------+------------------+
//
// FrameReader accumulates across short reads, so TCP segmentation never
// splits or merges frames. A declared length above the configured bound is
// rejected with a *FrameError before anything is allocated.
//
// # Writing
//
// Writer owns the outbound half of the stream. All writes go through one
// goroutine, which keeps every frame contiguous on the wire:
//
//	w := transport.NewWriter(conn, sink)
//	defer w.Close()
//
//	sent, err := w.WriteMessage([]byte("hello"))
//
// A file transfer reserves the stream with BeginTransfer. While it is held,
// chat sends are dropped and WriteMessage reports sent == false:
//
//	tw, err := w.BeginTransfer()
//	if err != nil {
//	    return err // ErrTransferInProgress
//	}
//	defer tw.End()
//
// # Errors
//
// *ConnectionError and *FrameError are fatal to the connection; use IsFatal
// to test for either. Every other error is local to one operation.
//
// # Streams
//
// Listen, Accept and Dial provide TCP connections. WebSocketStream adapts a
// websocket connection into the same byte stream, so the framing is
// identical on both.
package transport
