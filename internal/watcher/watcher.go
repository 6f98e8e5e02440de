// Package watcher reports debounced filesystem changes. It backs the
// reloadable signal file: editors often replace a file instead of writing it
// in place, so callers watch the parent directory and match by name.
package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/conneroisu/modloader/internal/logging"
	"github.com/fsnotify/fsnotify"
)

// Op is the kind of change seen for a path
type Op int

const (
	OpWrite Op = iota
	OpCreate
	OpRemove
)

func (o Op) String() string {
	switch o {
	case OpWrite:
		return "write"
	case OpCreate:
		return "create"
	case OpRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// Change is the settled state of one path after a quiet period
type Change struct {
	Path string
	Op   Op
}

// Handler receives each settled batch, in first-seen path order
type Handler func(ctx context.Context, changes []Change) error

// Matcher selects the paths a Watcher reports
type Matcher func(path string) bool

// BaseName matches paths whose final element is name
func BaseName(name string) Matcher {
	return func(path string) bool {
		return filepath.Base(path) == name
	}
}

// Watcher batches fsnotify events for matching paths and hands each batch to
// a Handler once no further event has arrived for the debounce delay.
type Watcher struct {
	fs      *fsnotify.Watcher
	delay   time.Duration
	match   Matcher
	handler Handler
	logger  logging.Logger

	closeOnce sync.Once
	closeErr  error
}

// New creates a watcher. A nil match reports every path.
func New(delay time.Duration, match Matcher, handler Handler, logger logging.Logger) (*Watcher, error) {
	if handler == nil {
		return nil, fmt.Errorf("watcher: nil handler")
	}
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watcher: %w", err)
	}
	if match == nil {
		match = func(string) bool { return true }
	}
	return &Watcher{
		fs:      fs,
		delay:   delay,
		match:   match,
		handler: handler,
		logger:  logging.OrNop(logger).WithComponent("watcher"),
	}, nil
}

// Add starts watching dir
func (w *Watcher) Add(dir string) error {
	clean, err := cleanDir(dir)
	if err != nil {
		return err
	}
	return w.fs.Add(clean)
}

// Start runs the event loop until ctx is done or Close is called
func (w *Watcher) Start(ctx context.Context) {
	go w.loop(ctx)
}

// Close releases the underlying watch. It is safe to call more than once.
func (w *Watcher) Close() error {
	w.closeOnce.Do(func() {
		w.closeErr = w.fs.Close()
	})
	return w.closeErr
}

func (w *Watcher) loop(ctx context.Context) {
	var (
		pending batch
		timer   *time.Timer
		fire    <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			op, relevant := classify(event.Op)
			if !relevant || !w.match(event.Name) {
				continue
			}
			pending.add(Change{Path: event.Name, Op: op})
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.delay)
			fire = timer.C

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn(ctx, err, "File watcher error")

		case <-fire:
			fire = nil
			changes := pending.drain()
			if err := w.handler(ctx, changes); err != nil {
				w.logger.Warn(ctx, err, "File change handler failed", "changes", len(changes))
			}
		}
	}
}

// classify maps an fsnotify op to the change it leaves behind. A rename
// moves the file away from its name, so it reads as a removal. Chmod alone
// is not a change.
func classify(op fsnotify.Op) (Op, bool) {
	switch {
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return OpRemove, true
	case op.Has(fsnotify.Create):
		return OpCreate, true
	case op.Has(fsnotify.Write):
		return OpWrite, true
	default:
		return 0, false
	}
}

// batch keeps the latest op per path in first-seen order
type batch struct {
	order []string
	ops   map[string]Op
}

func (b *batch) add(c Change) {
	if b.ops == nil {
		b.ops = make(map[string]Op)
	}
	if _, seen := b.ops[c.Path]; !seen {
		b.order = append(b.order, c.Path)
	}
	b.ops[c.Path] = c.Op
}

func (b *batch) drain() []Change {
	changes := make([]Change, 0, len(b.order))
	for _, path := range b.order {
		changes = append(changes, Change{Path: path, Op: b.ops[path]})
	}
	b.order = nil
	b.ops = nil
	return changes
}

func cleanDir(dir string) (string, error) {
	if strings.TrimSpace(dir) == "" {
		return "", fmt.Errorf("watcher: empty path")
	}
	for _, part := range strings.Split(filepath.ToSlash(dir), "/") {
		if part == ".." {
			return "", fmt.Errorf("watcher: path contains directory traversal: %s", dir)
		}
	}
	return filepath.Clean(dir), nil
}
