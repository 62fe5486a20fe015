// Package watch reports changes to a single file.
//
// The parent directory is watched rather than the file itself so editors
// that save by rename keep being followed. Bursts of changes are coalesced
// into one event after a quiet period.
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
)

// DefaultDelay is the quiet period before a change is reported.
const DefaultDelay = 100 * time.Millisecond

var (
	// ErrClosed is returned by Run after Close.
	ErrClosed = errors.New("watcher closed")

	// ErrPathNotExist is returned when the directory of the file is missing.
	ErrPathNotExist = errors.New("path does not exist")
)

// Op describes what happened to the file. Coalesced events combine ops.
type Op uint8

const (
	OpWrite Op = 1 << iota
	OpCreate
	OpRemove
	OpRename
)

// Has reports whether op includes other.
func (op Op) Has(other Op) bool {
	return op&other != 0
}

// String returns the string representation of the op.
func (op Op) String() string {
	var s string
	for _, n := range []struct {
		op   Op
		name string
	}{{OpWrite, "write"}, {OpCreate, "create"}, {OpRemove, "remove"}, {OpRename, "rename"}} {
		if op.Has(n.op) {
			if s != "" {
				s += "|"
			}
			s += n.name
		}
	}
	if s == "" {
		return "none"
	}
	return s
}

// Event is a debounced change of the watched file.
type Event struct {
	Path string
	Op   Op
	Time time.Time
}

// Watcher watches one file.
type Watcher struct {
	fsw    *fsnotify.Watcher
	path   string
	delay  time.Duration
	logger *zap.Logger

	events chan Event
	errors chan error

	mu      sync.Mutex
	closed  bool
	closeCh chan struct{}
	wg      sync.WaitGroup
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDelay sets the quiet period.
func WithDelay(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.delay = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// New starts watching path. The file itself need not exist yet.
func New(path string, opts ...Option) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(abs)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, ErrPathNotExist
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{
		fsw:     fsw,
		path:    abs,
		delay:   DefaultDelay,
		logger:  zap.NewNop(),
		events:  make(chan Event, 1),
		errors:  make(chan error, 8),
		closeCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	w.wg.Add(1)
	go w.loop()
	return w, nil
}

// Path returns the absolute path being watched.
func (w *Watcher) Path() string {
	return w.path
}

// Events returns the debounced event channel. It is closed by Close.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Errors returns watcher errors. It is closed by Close.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Close stops the watcher. Pending events are dropped.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.closeCh)
	w.mu.Unlock()

	err := w.fsw.Close()
	w.wg.Wait()
	close(w.events)
	close(w.errors)
	return err
}

// Run calls fn for every event until ctx is done, fn fails or the watcher
// is closed. Watcher errors are logged and do not stop Run.
func (w *Watcher) Run(ctx context.Context, fn func(Event) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.events:
			if !ok {
				return ErrClosed
			}
			if err := fn(ev); err != nil {
				return err
			}
		case err, ok := <-w.errors:
			if !ok {
				return ErrClosed
			}
			w.logger.Warn("watch error", zap.String("path", w.path), zap.Error(err))
		}
	}
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	var (
		timer   *time.Timer
		timerC  <-chan time.Time
		pending Op
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-w.closeCh:
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			op := convertOp(ev.Op)
			if op == 0 {
				continue
			}
			pending |= op
			if timer == nil {
				timer = time.NewTimer(w.delay)
			} else {
				timer.Reset(w.delay)
			}
			timerC = timer.C

		case <-timerC:
			timerC = nil
			ev := Event{Path: w.path, Op: pending, Time: time.Now()}
			pending = 0
			w.logger.Debug("file changed", zap.String("path", ev.Path), zap.Stringer("op", ev.Op))
			select {
			case w.events <- ev:
			case <-w.closeCh:
				return
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			default:
			}
		}
	}
}

func convertOp(fsOp fsnotify.Op) Op {
	var op Op
	if fsOp.Has(fsnotify.Create) {
		op |= OpCreate
	}
	if fsOp.Has(fsnotify.Write) {
		op |= OpWrite
	}
	if fsOp.Has(fsnotify.Remove) {
		op |= OpRemove
	}
	if fsOp.Has(fsnotify.Rename) {
		op |= OpRename
	}
	return op
}
