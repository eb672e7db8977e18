// Package watcher turns files dropped into a directory into send requests.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/opd-ai/wirechat/file"
	"github.com/sirupsen/logrus"
)

// DefaultDebounce is how long a file must stay unchanged before it is ready.
const DefaultDebounce = 500 * time.Millisecond

// Outbox watches one directory and reports regular files once writes to
// them have settled. Hidden files and incomplete ".part" files are ignored.
type Outbox struct {
	dir      string
	fsw      *fsnotify.Watcher
	debounce time.Duration
	ready    chan string

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOutbox creates a watcher for dir. A debounce <= 0 selects DefaultDebounce.
func NewOutbox(ctx context.Context, dir string, debounce time.Duration) (*Outbox, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Outbox{
		dir:      dir,
		fsw:      fsw,
		debounce: debounce,
		ready:    make(chan string, 64),
		timers:   make(map[string]*time.Timer),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Start begins watching. The directory must exist.
func (o *Outbox) Start() error {
	if err := o.fsw.Add(o.dir); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"function": "Outbox.Start",
		"dir":      o.dir,
	}).Info("Watching outbox")

	o.wg.Add(1)
	go o.loop()
	return nil
}

// Files delivers absolute paths of files ready to send. It is closed by Stop.
func (o *Outbox) Files() <-chan string {
	return o.ready
}

// Stop ends watching and closes the Files channel.
func (o *Outbox) Stop() {
	o.cancel()
	o.fsw.Close()
	o.wg.Wait()

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped {
		return
	}
	o.stopped = true
	for _, t := range o.timers {
		t.Stop()
	}
	o.timers = nil
	close(o.ready)
}

func (o *Outbox) loop() {
	defer o.wg.Done()
	for {
		select {
		case <-o.ctx.Done():
			return
		case ev, ok := <-o.fsw.Events:
			if !ok {
				return
			}
			o.handle(ev)
		case err, ok := <-o.fsw.Errors:
			if !ok {
				return
			}
			logrus.WithFields(logrus.Fields{
				"function": "Outbox.loop",
				"dir":      o.dir,
				"error":    err.Error(),
			}).Warn("Outbox watcher error")
		}
	}
}

func (o *Outbox) handle(ev fsnotify.Event) {
	if ignored(ev.Name) {
		return
	}
	switch {
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		o.schedule(ev.Name)
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		o.cancelPending(ev.Name)
	}
}

func ignored(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".") || strings.HasSuffix(base, file.PartSuffix)
}

// schedule restarts the quiet period of path.
func (o *Outbox) schedule(path string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped {
		return
	}
	if t, ok := o.timers[path]; ok {
		t.Stop()
	}
	o.timers[path] = time.AfterFunc(o.debounce, func() {
		o.fire(path)
	})
}

func (o *Outbox) cancelPending(path string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if t, ok := o.timers[path]; ok {
		t.Stop()
		delete(o.timers, path)
	}
}

func (o *Outbox) fire(path string) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		o.cancelPending(path)
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped {
		return
	}
	delete(o.timers, path)

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	select {
	case o.ready <- abs:
		logrus.WithFields(logrus.Fields{
			"function": "Outbox.fire",
			"path":     abs,
			"size":     info.Size(),
		}).Debug("Outbox file ready")
	default:
		logrus.WithFields(logrus.Fields{
			"function": "Outbox.fire",
			"path":     abs,
		}).Warn("Outbox queue full, dropping file")
	}
}
