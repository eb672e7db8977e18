package main

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/opd-ai/wirechat"
	"github.com/opd-ai/wirechat/config"
	"github.com/opd-ai/wirechat/events"
	"github.com/opd-ai/wirechat/file"
	"github.com/opd-ai/wirechat/transport"
	"github.com/sirupsen/logrus"
)

var errQuit = errors.New("quit")

// outboxRetry is how often queued outbox files are retried while a transfer
// holds the stream.
const outboxRetry = 250 * time.Millisecond

// supervisor runs one session at a time. In listen modes it accepts the next
// peer after a session ends.
type supervisor struct {
	cfg    config.Config
	store  file.Store
	lines  <-chan string
	outbox <-chan string
	out    *printer

	pending []string
}

func (s *supervisor) listenTCP(ctx context.Context) error {
	ln, err := transport.Listen(s.cfg.Listen)
	if err != nil {
		return err
	}
	defer ln.Close()
	s.out.status("listening on %s", ln.Addr())

	for {
		conn, err := ln.Accept(ctx)
		if err != nil {
			return err
		}
		if err := s.session(ctx, conn); err != nil {
			return err
		}
		s.out.status("waiting for the next peer")
	}
}

func (s *supervisor) listenWebSocket(ctx context.Context) error {
	streams := make(chan *transport.WebSocketStream)
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		ws, err := transport.UpgradeWebSocket(w, r)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "listenWebSocket",
				"remote":   r.RemoteAddr,
				"error":    err.Error(),
			}).Warn("Websocket upgrade failed")
			return
		}
		select {
		case streams <- ws:
		default:
			// a session is already running
			ws.Close()
		}
	})

	srv := &http.Server{Addr: s.cfg.WebSocketListen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	defer srv.Close()
	s.out.status("accepting websocket peers on %s", s.cfg.WebSocketListen)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			return err
		case ws := <-streams:
			if err := s.session(ctx, ws); err != nil {
				return err
			}
			s.out.status("waiting for the next peer")
		}
	}
}

// session runs one connection until it is lost. It returns nil when the peer
// went away, so a listener can accept again.
func (s *supervisor) session(ctx context.Context, stream io.ReadWriteCloser) error {
	ch := events.NewChannel(s.cfg.EventBuffer)
	conn, err := wirechat.New(stream, s.store, ch, s.cfg.Options())
	if err != nil {
		stream.Close()
		return err
	}
	conn.Start()
	defer conn.Close()
	defer ch.Close()
	s.out.status("connected")

	retry := time.NewTicker(outboxRetry)
	defer retry.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e := <-ch.C():
			s.out.event(e)
		case <-conn.Done():
			s.drain(ch)
			return nil
		case line, ok := <-s.lines:
			if !ok {
				return errQuit
			}
			if err := s.command(conn, line); err != nil {
				return err
			}
		case path, ok := <-s.outbox:
			if !ok {
				s.outbox = nil
				continue
			}
			s.pending = append(s.pending, path)
			s.flush(conn)
		case <-retry.C:
			s.flush(conn)
		}
	}
}

func (s *supervisor) drain(ch *events.Channel) {
	for {
		select {
		case e := <-ch.C():
			s.out.event(e)
		default:
			return
		}
	}
}

func (s *supervisor) command(conn *wirechat.Conn, line string) error {
	switch cmd, arg := parseCommand(line); cmd {
	case cmdQuit:
		return errQuit
	case cmdSend:
		if arg == "" {
			s.out.warn("usage: /send <path>")
			return nil
		}
		if err := conn.SendFile(arg); err != nil {
			s.out.warn("cannot send %s: %v", arg, err)
		}
	default:
		sent, err := conn.SendMessage([]byte(arg))
		if err != nil {
			s.out.warn("message not sent: %v", err)
		} else if !sent {
			s.out.warn("message dropped: a file transfer is in progress")
		}
	}
	return nil
}

// flush starts the oldest queued outbox file once the stream is free.
func (s *supervisor) flush(conn *wirechat.Conn) {
	if len(s.pending) == 0 || conn.Busy() {
		return
	}
	path := s.pending[0]
	err := conn.SendFile(path)
	if errors.Is(err, transport.ErrTransferInProgress) {
		return
	}
	s.pending = s.pending[1:]
	if err != nil {
		s.out.warn("cannot send %s: %v", path, err)
	}
}

type command uint8

const (
	cmdChat command = iota
	cmdSend
	cmdQuit
)

// parseCommand splits a stdin line into a command and its argument. Lines
// that are not commands are chat, returned unchanged.
func parseCommand(line string) (command, string) {
	trimmed := strings.TrimSpace(line)
	switch {
	case trimmed == "/quit":
		return cmdQuit, ""
	case trimmed == "/send":
		return cmdSend, ""
	case strings.HasPrefix(trimmed, "/send "):
		return cmdSend, strings.TrimSpace(strings.TrimPrefix(trimmed, "/send "))
	default:
		return cmdChat, line
	}
}

// readLines feeds stdin lines to every session in turn.
func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}
