package transport

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultDialTimeout bounds Dial when the context carries no deadline.
const DefaultDialTimeout = 10 * time.Second

// Listener accepts peer connections on a TCP address. Each accepted
// connection carries one independent chat session.
type Listener struct {
	listener   net.Listener
	listenAddr net.Addr

	mu     sync.Mutex
	closed bool
}

// Listen opens a TCP listener on listenAddr.
func Listen(listenAddr string) (*Listener, error) {
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Listen",
			"address":  listenAddr,
			"error":    err.Error(),
		}).Error("Failed to open listener")
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function": "Listen",
		"address":  ln.Addr().String(),
	}).Info("Listening for peers")

	return &Listener{listener: ln, listenAddr: ln.Addr()}, nil
}

// Accept waits for the next peer. Cancelling ctx closes the listener and
// unblocks the call.
func (l *Listener) Accept(ctx context.Context) (net.Conn, error) {
	stop := context.AfterFunc(ctx, func() {
		l.Close()
	})
	defer stop()

	conn, err := l.listener.Accept()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	configureConn(conn)

	logrus.WithFields(logrus.Fields{
		"function":    "Accept",
		"remote_addr": conn.RemoteAddr().String(),
	}).Info("Peer connected")
	return conn, nil
}

// Close stops accepting. It is safe to call more than once.
func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.listener.Close()
}

// Addr returns the address the listener is bound to.
func (l *Listener) Addr() net.Addr {
	return l.listenAddr
}

// Dial connects to a listening peer.
func Dial(ctx context.Context, addr string) (net.Conn, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultDialTimeout)
		defer cancel()
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Dial",
			"address":  addr,
			"error":    err.Error(),
		}).Error("Failed to connect to peer")
		return nil, err
	}
	configureConn(conn)
	return conn, nil
}

// configureConn disables Nagle so small chat frames are not delayed behind
// acknowledgements.
func configureConn(conn net.Conn) {
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
		_ = tcp.SetKeepAlive(true)
	}
}
