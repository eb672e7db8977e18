package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListenDialExchangesFrames(t *testing.T) {
	ln, err := Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	accepted := make(chan error, 1)
	go func() {
		conn, err := ln.Accept(ctx)
		if err != nil {
			accepted <- err
			return
		}
		defer conn.Close()
		accepted <- WriteFrame(conn, []byte("hi from listener"))
	}()

	conn, err := Dial(ctx, ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	payload, err := NewFrameReader(conn, 0).ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, "hi from listener", string(payload))
	require.NoError(t, <-accepted)
}

func TestAcceptStopsOnCancel(t *testing.T) {
	ln, err := Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := ln.Accept(ctx)
		errCh <- err
	}()

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Accept did not return after cancellation")
	}
	assert.NoError(t, ln.Close(), "second close is a no-op")
}

func TestDialRefused(t *testing.T) {
	ln, err := Listen("127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = Dial(ctx, addr)
	assert.Error(t, err)
}
