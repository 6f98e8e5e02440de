// Package loader resolves registered module descriptors into loaded modules.
//
// Each key has at most one in-flight load. Concurrent requests for a key that
// is loading share the pending Future; a loaded key is served from the record
// table without calling its LoadFunc again. A failed key stays failed until
// the next Request, which retries it.
package loader

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/conneroisu/modloader/internal/errors"
	"github.com/conneroisu/modloader/internal/events"
	"github.com/conneroisu/modloader/internal/logging"
	"github.com/conneroisu/modloader/internal/types"
)

// Lookup resolves a module key to its descriptor. *registry.ModuleRegistry
// satisfies it.
type Lookup interface {
	Get(key string) (types.ModuleDescriptor, bool)
}

type requestOutcome int

const (
	outcomeStarted requestOutcome = iota
	outcomeCoalesced
	outcomeCacheHit
	outcomeUnknown
)

type record struct {
	descriptor   types.ModuleDescriptor
	state        types.ModuleState
	handle       types.ModuleHandle
	pending      *Future
	lastError    error
	attempts     int
	loadedAt     time.Time
	lastDuration time.Duration
}

// ModuleLoader owns the process-wide module record table
type ModuleLoader struct {
	lookup   Lookup
	observer events.Observer
	logger   logging.Logger
	metrics  *LoadMetrics

	baseCtx context.Context
	timeout time.Duration

	records map[string]*record
	mutex   sync.Mutex
}

// Option configures a ModuleLoader
type Option func(*ModuleLoader)

// WithObserver sets the event observer
func WithObserver(observer events.Observer) Option {
	return func(l *ModuleLoader) {
		l.observer = events.OrNop(observer)
	}
}

// WithLogger sets the logger
func WithLogger(logger logging.Logger) Option {
	return func(l *ModuleLoader) {
		l.logger = logging.OrNop(logger).WithComponent("loader")
	}
}

// WithLoadTimeout bounds each LoadFunc invocation. Zero disables the bound.
func WithLoadTimeout(timeout time.Duration) Option {
	return func(l *ModuleLoader) {
		l.timeout = timeout
	}
}

// WithBaseContext sets the context loads run under. Loads never run under a
// requester's context.
func WithBaseContext(ctx context.Context) Option {
	return func(l *ModuleLoader) {
		if ctx != nil {
			l.baseCtx = ctx
		}
	}
}

// WithMetrics shares an existing metrics tracker
func WithMetrics(metrics *LoadMetrics) Option {
	return func(l *ModuleLoader) {
		if metrics != nil {
			l.metrics = metrics
		}
	}
}

// NewModuleLoader creates a loader resolving keys through lookup
func NewModuleLoader(lookup Lookup, opts ...Option) *ModuleLoader {
	l := &ModuleLoader{
		lookup:   lookup,
		observer: events.Nop{},
		logger:   logging.NopLogger{},
		metrics:  NewLoadMetrics(),
		baseCtx:  context.Background(),
		records:  make(map[string]*record),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Request returns a future for the module identified by key, starting a load
// when the key is not loaded and not already loading.
func (l *ModuleLoader) Request(key string) *Future {
	l.mutex.Lock()

	rec, exists := l.records[key]
	if !exists {
		descriptor, found := l.lookup.Get(key)
		if !found {
			l.mutex.Unlock()
			l.metrics.recordRequest(outcomeUnknown)
			return resolvedFuture(nil, errors.NewUnknownModuleError(key))
		}
		rec = &record{descriptor: descriptor, state: types.StateNotLoaded}
		l.records[key] = rec
	}

	switch rec.state {
	case types.StateLoaded:
		handle := rec.handle
		l.mutex.Unlock()
		l.metrics.recordRequest(outcomeCacheHit)
		return resolvedFuture(handle, nil)
	case types.StateLoading:
		future := rec.pending
		l.mutex.Unlock()
		l.metrics.recordRequest(outcomeCoalesced)
		return future
	}

	future := newFuture()
	rec.state = types.StateLoading
	rec.pending = future
	load := rec.descriptor.Load
	l.mutex.Unlock()

	l.metrics.recordRequest(outcomeStarted)
	l.observer.ModuleLoadStarted(key)
	go l.run(key, rec, load, future)

	return future
}

// Load requests key and waits for the result. Cancelling ctx abandons the
// wait only; the load keeps running and populates the record table.
func (l *ModuleLoader) Load(ctx context.Context, key string) (types.ModuleHandle, error) {
	return l.Request(key).Wait(ctx)
}

func (l *ModuleLoader) run(key string, rec *record, load types.LoadFunc, future *Future) {
	ctx := l.baseCtx
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	start := time.Now()
	handle, err := invoke(ctx, key, load)
	duration := time.Since(start)

	l.mutex.Lock()
	rec.pending = nil
	rec.lastDuration = duration
	var attempt int
	if err != nil {
		rec.attempts++
		attempt = rec.attempts
		err = errors.NewLoadError(key, attempt, err)
		rec.state = types.StateFailed
		rec.lastError = err
		rec.handle = nil
	} else {
		rec.state = types.StateLoaded
		rec.handle = handle
		rec.lastError = nil
		rec.attempts = 0
		rec.loadedAt = time.Now()
	}
	l.mutex.Unlock()

	// Observers run before waiters wake, so a waiter always sees the event
	l.metrics.recordResult(duration, err)
	if err != nil {
		l.logger.Debug(context.Background(), "Module load failed",
			"module", key,
			"attempt", attempt,
			"duration_ms", duration.Milliseconds())
		l.observer.ModuleLoadFailed(key, err, attempt)
	} else {
		l.logger.Debug(context.Background(), "Module loaded",
			"module", key,
			"duration_ms", duration.Milliseconds())
		l.observer.ModuleLoadSucceeded(key, duration)
	}

	future.resolve(handle, err)
}

// invoke calls load, turning a panic or a nil handle into an error
func invoke(ctx context.Context, key string, load types.LoadFunc) (handle types.ModuleHandle, err error) {
	defer func() {
		if r := recover(); r != nil {
			handle = nil
			err = errors.FromPanic(key, r)
		}
	}()

	handle, err = load(ctx)
	if err != nil {
		return nil, err
	}
	if handle == nil {
		return nil, errors.NewInternalError(errors.ErrCodeInternalError, "load function returned no module", nil).WithKey(key)
	}
	return handle, nil
}

// State returns the current state of key. Unknown keys report not_loaded and
// false.
func (l *ModuleLoader) State(key string) (types.ModuleState, bool) {
	snapshot, ok := l.Snapshot(key)
	return snapshot.State, ok
}

// Snapshot returns a copy of the record for key. Registered keys that were
// never requested report not_loaded.
func (l *ModuleLoader) Snapshot(key string) (types.ModuleSnapshot, bool) {
	l.mutex.Lock()
	rec, exists := l.records[key]
	if exists {
		snapshot := rec.snapshot(key)
		l.mutex.Unlock()
		return snapshot, true
	}
	l.mutex.Unlock()

	if _, found := l.lookup.Get(key); !found {
		return types.ModuleSnapshot{Key: key, State: types.StateNotLoaded}, false
	}
	return types.ModuleSnapshot{Key: key, State: types.StateNotLoaded}, true
}

// Snapshots returns a copy of every record created so far, sorted by key
func (l *ModuleLoader) Snapshots() []types.ModuleSnapshot {
	l.mutex.Lock()
	result := make([]types.ModuleSnapshot, 0, len(l.records))
	for key, rec := range l.records {
		result = append(result, rec.snapshot(key))
	}
	l.mutex.Unlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].Key < result[j].Key
	})
	return result
}

// Metrics returns the loader's metrics tracker
func (l *ModuleLoader) Metrics() *LoadMetrics {
	return l.metrics
}

func (r *record) snapshot(key string) types.ModuleSnapshot {
	return types.ModuleSnapshot{
		Key:          key,
		State:        r.state,
		Handle:       r.handle,
		Err:          r.lastError,
		Attempts:     r.attempts,
		LoadedAt:     r.loadedAt,
		LastDuration: r.lastDuration,
	}
}
