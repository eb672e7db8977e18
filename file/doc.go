// Package file moves files across a wirechat connection.
//
// A transfer is announced by a FILE_START control frame, followed by a frame
// holding the file name and a raw 8 byte big-endian size. Data frames of up to
// limits.ChunkSize bytes follow, and the transfer ends with FILE_END, or FILE_ERROR
// when the sender gives up.
//
// Receiver is a two state machine driven by the reader loop. While idle it
// forwards every non-control frame as a chat message. While receiving it
// appends them to the destination file, which is written under a ".part"
// name until FILE_END commits it:
//
//	r := file.NewReceiver(store, sink)
//	for {
//	    payload, err := fr.ReadFrame()
//	    if err != nil {
//	        r.Abandon(err)
//	        return err
//	    }
//	    if err := r.Handle(payload, fr); err != nil {
//	        r.Abandon(err)
//	        return err
//	    }
//	}
//
// Control sentinels are matched exactly. A chat message whose bytes equal a
// sentinel is treated as control; the protocol has no escape.
//
// Sender streams one local file through a reserved transport handle and
// always releases it, whatever the outcome.
//
// Local failures (disk full, unreadable source, invalid name) surface as
// *TransferIOError inside a TransferFailed event and never end the connection.
package file
