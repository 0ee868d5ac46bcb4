// Package watch follows the active annotation directory and publishes record changes.
package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"image-annotator/api/internal/store"
)

const (
	OpWrite  = "write"
	OpRemove = "remove"
)

type Event struct {
	Filename string `json:"filename"`
	Op       string `json:"op"`
}

// Watcher watches one directory (non-recursively) at a time. Events for the same
// record are debounced so a save produces one Event.
type Watcher struct {
	log      *zap.Logger
	fs       *fsnotify.Watcher
	debounce time.Duration

	mu      sync.Mutex
	dir     string
	subs    map[chan Event]struct{}
	pending map[string]*time.Timer
	closed  bool
}

func New(log *zap.Logger, debounce time.Duration) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}
	return &Watcher{
		log:      log,
		fs:       fw,
		debounce: debounce,
		subs:     make(map[chan Event]struct{}),
		pending:  make(map[string]*time.Timer),
	}, nil
}

// Retarget switches the watch to dir. A directory that does not exist yet is
// remembered but not watched; call Retarget again once it has been created.
func (w *Watcher) Retarget(dir string) error {
	dir = filepath.Clean(dir)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errors.New("watcher closed")
	}
	if w.dir != "" {
		_ = w.fs.Remove(w.dir)
	}
	for name, t := range w.pending {
		t.Stop()
		delete(w.pending, name)
	}
	w.dir = dir
	if err := w.fs.Add(dir); err != nil {
		w.log.Warn("annotation dir not watched", zap.String("dir", dir), zap.Error(err))
		return err
	}
	w.log.Debug("watching annotation dir", zap.String("dir", dir))
	return nil
}

// Subscribe returns a buffered channel of events and a cancel func that must be called.
// Slow subscribers miss events rather than block the watcher.
func (w *Watcher) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 32)
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	w.subs[ch] = struct{}{}
	w.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			w.mu.Lock()
			defer w.mu.Unlock()
			if _, ok := w.subs[ch]; ok {
				delete(w.subs, ch)
				close(ch)
			}
		})
	}
}

// Run consumes filesystem events until ctx is done, then closes the watcher and
// all subscriber channels.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.shutdown()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || filepath.Dir(ev.Name) != w.dir {
		return
	}
	name, ok := store.RecordName(filepath.Base(ev.Name))
	if !ok {
		return
	}
	if t, ok := w.pending[name]; ok {
		t.Reset(w.debounce)
		return
	}
	path := ev.Name
	dir := w.dir
	w.pending[name] = time.AfterFunc(w.debounce, func() { w.fire(dir, name, path) })
}

func (w *Watcher) fire(dir, name, path string) {
	op := OpWrite
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		op = OpRemove
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || dir != w.dir {
		return
	}
	delete(w.pending, name)
	ev := Event{Filename: name, Op: op}
	for ch := range w.subs {
		select {
		case ch <- ev:
		default:
			w.log.Debug("dropping event for slow subscriber", zap.String("filename", name))
		}
	}
}

func (w *Watcher) shutdown() {
	w.mu.Lock()
	w.closed = true
	for name, t := range w.pending {
		t.Stop()
		delete(w.pending, name)
	}
	for ch := range w.subs {
		delete(w.subs, ch)
		close(ch)
	}
	w.mu.Unlock()
	_ = w.fs.Close()
}
