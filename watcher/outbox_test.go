package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startOutbox(t *testing.T) (*Outbox, string) {
	t.Helper()
	dir := t.TempDir()
	o, err := NewOutbox(context.Background(), dir, 50*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, o.Start())
	t.Cleanup(o.Stop)
	return o, dir
}

func expectFile(t *testing.T, o *Outbox) string {
	t.Helper()
	select {
	case path := <-o.Files():
		return path
	case <-time.After(3 * time.Second):
		t.Fatal("no outbox file reported")
		return ""
	}
}

func expectNothing(t *testing.T, o *Outbox, wait time.Duration) {
	t.Helper()
	select {
	case path := <-o.Files():
		t.Fatalf("unexpected outbox file %s", path)
	case <-time.After(wait):
	}
}

func TestOutboxReportsSettledFile(t *testing.T) {
	o, dir := startOutbox(t)

	path := filepath.Join(dir, "report.pdf")
	f, err := os.Create(path)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err = f.Write([]byte("chunk"))
		require.NoError(t, err)
	}
	require.NoError(t, f.Close())

	got := expectFile(t, o)
	want, err := filepath.Abs(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	expectNothing(t, o, 300*time.Millisecond)
}

func TestOutboxIgnoresHiddenAndPartialFiles(t *testing.T) {
	o, dir := startOutbox(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".swap"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "movie.mkv.part"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir"), 0o755))

	expectNothing(t, o, 300*time.Millisecond)
}

func TestOutboxDropsRemovedFile(t *testing.T) {
	o, dir := startOutbox(t)

	path := filepath.Join(dir, "temp.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	require.NoError(t, os.Remove(path))

	expectNothing(t, o, 300*time.Millisecond)
}

func TestOutboxStopClosesChannel(t *testing.T) {
	dir := t.TempDir()
	o, err := NewOutbox(context.Background(), dir, 0)
	require.NoError(t, err)
	require.NoError(t, o.Start())

	o.Stop()
	_, ok := <-o.Files()
	assert.False(t, ok)
	o.Stop()
}
