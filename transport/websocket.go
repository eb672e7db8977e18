package transport

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// WebSocketStream adapts a websocket connection into a plain byte stream.
// Each Write becomes one binary message; Read concatenates binary messages and
// ignores any other message type. Frame boundaries are therefore still decided
// by the length prefix, never by websocket message boundaries.
type WebSocketStream struct {
	conn *websocket.Conn

	readMu sync.Mutex
	cur    io.Reader

	writeMu sync.Mutex
}

// NewWebSocketStream wraps an established websocket connection.
func NewWebSocketStream(conn *websocket.Conn) *WebSocketStream {
	return &WebSocketStream{conn: conn}
}

// DialWebSocket opens a websocket connection to url and wraps it.
func DialWebSocket(ctx context.Context, url string) (*WebSocketStream, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "DialWebSocket",
			"url":      url,
			"error":    err.Error(),
		}).Error("Websocket dial failed")
		return nil, err
	}
	return NewWebSocketStream(conn), nil
}

// UpgradeWebSocket upgrades an HTTP request and wraps the resulting connection.
func UpgradeWebSocket(w http.ResponseWriter, r *http.Request) (*WebSocketStream, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return NewWebSocketStream(conn), nil
}

// Read implements io.Reader.
func (s *WebSocketStream) Read(p []byte) (int, error) {
	s.readMu.Lock()
	defer s.readMu.Unlock()

	for {
		if s.cur == nil {
			mt, r, err := s.conn.NextReader()
			if err != nil {
				return 0, err
			}
			if mt != websocket.BinaryMessage {
				continue
			}
			s.cur = r
		}
		n, err := s.cur.Read(p)
		if err == io.EOF {
			s.cur = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

// Write implements io.Writer.
func (s *WebSocketStream) Write(p []byte) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close closes the underlying connection.
func (s *WebSocketStream) Close() error {
	return s.conn.Close()
}

// SetReadDeadline forwards to the websocket connection.
func (s *WebSocketStream) SetReadDeadline(t time.Time) error {
	return s.conn.SetReadDeadline(t)
}

// SetWriteDeadline forwards to the websocket connection.
func (s *WebSocketStream) SetWriteDeadline(t time.Time) error {
	return s.conn.SetWriteDeadline(t)
}
