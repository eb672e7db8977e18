package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebSocketStreamCarriesFrames(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stream, err := UpgradeWebSocket(w, r)
		if err != nil {
			return
		}
		defer stream.Close()

		fr := NewFrameReader(stream, 0)
		for {
			payload, err := fr.ReadFrame()
			if err != nil {
				return
			}
			if err := WriteFrame(stream, append([]byte("echo:"), payload...)); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	stream, err := DialWebSocket(ctx, url)
	require.NoError(t, err)
	defer stream.Close()
	require.NoError(t, stream.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, stream.SetWriteDeadline(time.Now().Add(5*time.Second)))

	// Split one frame across two websocket messages.
	encoded := EncodeFrame([]byte("hello"))
	_, err = stream.Write(encoded[:3])
	require.NoError(t, err)
	_, err = stream.Write(encoded[3:])
	require.NoError(t, err)

	fr := NewFrameReader(stream, 0)
	got, err := fr.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, "echo:hello", string(got))
}

func TestDialWebSocketFails(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := DialWebSocket(ctx, "ws://127.0.0.1:1/nowhere")
	assert.Error(t, err)
}
