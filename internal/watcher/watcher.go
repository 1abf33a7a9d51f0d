// Package watcher provides file watching with debouncing using fsnotify.
// Editors tend to produce bursts of writes (truncate, write, chmod, rename);
// the debounce window collapses each burst into one callback.
package watcher

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the window during which events are coalesced.
const DefaultDebounce = 500 * time.Millisecond

// Event is one coalesced filesystem change.
type Event struct {
	Path string
	Op   fsnotify.Op
}

// Watcher invokes a callback with batches of debounced events.
type Watcher struct {
	fw       *fsnotify.Watcher
	callback func([]Event)
	debounce time.Duration

	mu      sync.Mutex
	pending []Event
	timer   *time.Timer

	closeOnce sync.Once
	done      chan struct{}
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounceDuration overrides the coalescing window.
func WithDebounceDuration(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// New creates a watcher and starts its event loop. The callback runs on the
// watcher's goroutine; it must not call back into the watcher.
func New(callback func([]Event), opts ...Option) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		fw:       fw,
		callback: callback,
		debounce: DefaultDebounce,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	go w.loop()
	return w, nil
}

// Add starts watching a file or directory.
func (w *Watcher) Add(path string) error {
	return w.fw.Add(path)
}

// Close stops the watcher. Pending debounced events are discarded.
func (w *Watcher) Close() {
	w.closeOnce.Do(func() {
		close(w.done)
		w.fw.Close()

		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.pending = nil
		w.mu.Unlock()
	})
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			// Chmod-only events carry no content change and are noisy on
			// some platforms.
			if ev.Op == fsnotify.Chmod {
				continue
			}
			w.enqueue(Event{Path: ev.Name, Op: ev.Op})
		case _, ok := <-w.fw.Errors:
			if !ok {
				return
			}
		}
	}
}

func (w *Watcher) enqueue(ev Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending = append(w.pending, ev)
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

func (w *Watcher) flush() {
	select {
	case <-w.done:
		return
	default:
	}

	w.mu.Lock()
	batch := w.pending
	w.pending = nil
	w.mu.Unlock()

	if len(batch) > 0 && w.callback != nil {
		w.callback(batch)
	}
}
