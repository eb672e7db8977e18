// Package wirechat implements a peer-to-peer chat session with inline file
// transfer over any reliable, ordered byte stream.
//
// Chat messages and file data share one stream. Every message is a length
// prefixed frame; three exact ASCII payloads (FILE_START, FILE_END and
// FILE_ERROR) switch the receiving side between chat and file reception.
//
// # Usage
//
//	conn, err := net.Dial("tcp", "peer:7000")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	store, err := file.NewDirStore("downloads")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	ch := events.NewChannel(64)
//
//	c, err := wirechat.New(conn, store, ch, wirechat.NewOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	c.Start()
//	defer c.Close()
//
//	c.SendMessage([]byte("hello"))
//	c.SendFile("notes.txt")
//
//	for e := range ch.C() {
//	    fmt.Println(e.Kind, string(e.Payload))
//	}
//
// # Concurrency
//
// A Conn runs one reader goroutine, one writer goroutine and at most one file
// sender. While a file is being sent the stream belongs to it: SendMessage
// reports the message as dropped and a second SendFile fails with
// transport.ErrTransferInProgress.
//
// Any stream failure or malformed frame ends the session. An incoming file
// that was in flight is left on disk with a ".part" suffix, a
// ConnectionLost event is emitted and the stream is closed. There is no
// reconnection.
package wirechat
