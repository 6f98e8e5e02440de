package signal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/conneroisu/modloader/internal/logging"
	"github.com/conneroisu/modloader/internal/watcher"
	"gopkg.in/yaml.v2"
)

// FileSource reads the signal from a YAML file such as
//
//	network: 3g
//	idle: true
//	save_data: false
//
// A missing file yields the fallback signal. Watch keeps the value current
// as the file changes and reverts to the fallback when the file is removed.
//
// The preload scheduler samples Current once, when it starts, so a reload
// does not change a run already in progress. Later readers, such as the
// /api/preload endpoint and the next scheduler run, see the new value.
type FileSource struct {
	path     string
	fallback Signal
	logger   logging.Logger

	current Signal
	mutex   sync.RWMutex

	w *watcher.Watcher
}

// NewFileSource creates a source backed by path and performs an initial read
func NewFileSource(path string, fallback Signal, logger logging.Logger) (*FileSource, error) {
	fs := &FileSource{
		path:     filepath.Clean(path),
		fallback: fallback,
		current:  fallback,
		logger:   logging.OrNop(logger).WithComponent("signal"),
	}
	if err := fs.Reload(); err != nil {
		return nil, err
	}
	return fs, nil
}

// Current returns the last successfully read signal
func (fs *FileSource) Current() Signal {
	fs.mutex.RLock()
	defer fs.mutex.RUnlock()
	return fs.current
}

// Path returns the signal file path
func (fs *FileSource) Path() string {
	return fs.path
}

// Reload re-reads the file. On a parse error the previous signal is kept.
func (fs *FileSource) Reload() error {
	signal, err := readSignalFile(fs.path, fs.fallback)
	if err != nil {
		return err
	}

	fs.mutex.Lock()
	fs.current = signal
	fs.mutex.Unlock()

	fs.logger.Debug(context.Background(), "Signal loaded",
		"path", fs.path,
		"network", signal.Network.String(),
		"idle", signal.Idle,
		"save_data", signal.SaveData)
	return nil
}

// Watch follows the file until ctx is done. A write or create reloads it; a
// removal reverts to the fallback.
func (fs *FileSource) Watch(ctx context.Context, debounce time.Duration) error {
	w, err := watcher.New(debounce, watcher.BaseName(filepath.Base(fs.path)), fs.apply, fs.logger)
	if err != nil {
		return fmt.Errorf("creating signal watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(fs.path)); err != nil {
		_ = w.Close()
		return fmt.Errorf("watching %s: %w", fs.path, err)
	}
	w.Start(ctx)

	fs.mutex.Lock()
	fs.w = w
	fs.mutex.Unlock()

	go func() {
		<-ctx.Done()
		_ = fs.Close()
	}()
	return nil
}

// Close stops watching
func (fs *FileSource) Close() error {
	fs.mutex.Lock()
	w := fs.w
	fs.w = nil
	fs.mutex.Unlock()

	if w == nil {
		return nil
	}
	return w.Close()
}

func (fs *FileSource) apply(ctx context.Context, changes []watcher.Change) error {
	for _, change := range changes {
		if filepath.Clean(change.Path) != fs.path {
			continue
		}
		if change.Op == watcher.OpRemove {
			fs.revert(ctx)
			continue
		}
		if err := fs.Reload(); err != nil {
			return err
		}
	}
	return nil
}

func (fs *FileSource) revert(ctx context.Context) {
	fs.mutex.Lock()
	fs.current = fs.fallback
	fs.mutex.Unlock()

	fs.logger.Warn(ctx, nil, "Signal file removed, using fallback",
		"path", fs.path,
		"network", fs.fallback.Network.String())
}

func readSignalFile(path string, fallback Signal) (Signal, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return fallback, nil
	}
	if err != nil {
		return fallback, fmt.Errorf("reading signal file: %w", err)
	}

	signal := fallback
	if err := yaml.Unmarshal(data, &signal); err != nil {
		return fallback, fmt.Errorf("parsing signal file %s: %w", path, err)
	}
	return signal, nil
}
