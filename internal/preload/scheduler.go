package preload

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/conneroisu/modloader/internal/errors"
	"github.com/conneroisu/modloader/internal/events"
	"github.com/conneroisu/modloader/internal/loader"
	"github.com/conneroisu/modloader/internal/logging"
	"github.com/conneroisu/modloader/internal/signal"
	"github.com/conneroisu/modloader/internal/types"
	"golang.org/x/sync/semaphore"
)

// DefaultConcurrency bounds outstanding preloads when no limit is given
const DefaultConcurrency = 2

// Catalog lists registered descriptors in registration order.
// *registry.ModuleRegistry satisfies it.
type Catalog interface {
	Snapshot() []types.ModuleDescriptor
}

// Requester starts module loads. *loader.ModuleLoader satisfies it.
type Requester interface {
	Request(key string) *loader.Future
	State(key string) (types.ModuleState, bool)
}

// Stats summarizes a scheduler run
type Stats struct {
	Strategy    string    `json:"strategy"`
	Concurrency int       `json:"concurrency"`
	Running     bool      `json:"running"`
	Candidates  int       `json:"candidates"`
	Submitted   int       `json:"submitted"`
	Skipped     int       `json:"skipped"`
	Succeeded   int       `json:"succeeded"`
	Failed      int       `json:"failed"`
	Cancelled   int       `json:"cancelled"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	FinishedAt  time.Time `json:"finished_at,omitempty"`
}

// PreloadScheduler runs a strategy's candidates through the loader once
type PreloadScheduler struct {
	catalog   Catalog
	requester Requester
	signals   signal.Source
	observer  events.Observer
	logger    logging.Logger
	handler   *errors.ErrorHandler

	started bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
	stats   Stats
	mutex   sync.Mutex
}

// SchedulerOption configures a PreloadScheduler
type SchedulerOption func(*PreloadScheduler)

// WithSignalSource sets where the runtime signal comes from
func WithSignalSource(source signal.Source) SchedulerOption {
	return func(s *PreloadScheduler) {
		if source != nil {
			s.signals = source
		}
	}
}

// WithObserver sets the observer receiving PreloadSkipped events
func WithObserver(observer events.Observer) SchedulerOption {
	return func(s *PreloadScheduler) {
		s.observer = events.OrNop(observer)
	}
}

// WithLogger sets the logger
func WithLogger(logger logging.Logger) SchedulerOption {
	return func(s *PreloadScheduler) {
		s.logger = logging.OrNop(logger).WithComponent("preload")
	}
}

// NewPreloadScheduler creates an idle scheduler
func NewPreloadScheduler(catalog Catalog, requester Requester, opts ...SchedulerOption) *PreloadScheduler {
	s := &PreloadScheduler{
		catalog:   catalog,
		requester: requester,
		signals:   signal.NewStaticSource(signal.Default()),
		observer:  events.Nop{},
		logger:    logging.NopLogger{},
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.handler = errors.NewErrorHandler(s.logger)
	return s
}

// Start selects candidates with strategy and submits them in the background,
// keeping at most concurrency preloads outstanding. A scheduler runs once;
// starting it again is an error. Starting a scheduler that was already
// stopped submits nothing and finishes immediately.
func (s *PreloadScheduler) Start(ctx context.Context, strategy Strategy, concurrency int) error {
	if strategy == nil {
		return errors.NewValidationError(errors.ErrCodeConfigInvalid, "preload strategy is required")
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	s.mutex.Lock()
	if s.started {
		s.mutex.Unlock()
		return errors.NewValidationError(errors.ErrCodeAlreadyStarted, "preload scheduler already started")
	}
	s.started = true

	if s.stopped {
		now := time.Now()
		s.stats = Stats{
			Strategy:    strategy.Name(),
			Concurrency: concurrency,
			StartedAt:   now,
			FinishedAt:  now,
		}
		close(s.done)
		s.mutex.Unlock()
		s.logger.Info(ctx, "Preload stopped before start", "strategy", strategy.Name())
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	modules := s.catalog.Snapshot()
	sig := s.signals.Current()
	tasks := strategy.SelectCandidates(modules, sig)
	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].Priority < tasks[j].Priority
	})

	var skips []Skip
	if reporter, ok := strategy.(SkipReporter); ok {
		skips = reporter.Skipped(modules, sig)
	}

	s.stats = Stats{
		Strategy:    strategy.Name(),
		Concurrency: concurrency,
		Running:     true,
		Candidates:  len(tasks),
		Skipped:     len(skips),
		StartedAt:   time.Now(),
	}
	s.mutex.Unlock()

	for _, skip := range skips {
		s.observer.PreloadSkipped(skip.Key, skip.Reason)
	}

	s.logger.Info(ctx, "Preload started",
		"strategy", strategy.Name(),
		"candidates", len(tasks),
		"concurrency", concurrency,
		"network", sig.Network.String())

	go s.run(runCtx, tasks, concurrency)
	return nil
}

func (s *PreloadScheduler) run(ctx context.Context, tasks []types.PreloadTask, concurrency int) {
	defer close(s.done)
	defer s.cancel()

	sem := semaphore.NewWeighted(int64(concurrency))
	var wg sync.WaitGroup

	for i, task := range tasks {
		if !s.waitUntil(ctx, task.NotBefore) || ctx.Err() != nil {
			s.update(func(st *Stats) { st.Cancelled += len(tasks) - i })
			break
		}
		if s.skipIfStarted(task.Key) {
			continue
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			s.update(func(st *Stats) { st.Cancelled += len(tasks) - i })
			break
		}
		// A foreground navigation may have requested the key while we waited
		if s.skipIfStarted(task.Key) {
			sem.Release(1)
			continue
		}

		future := s.requester.Request(task.Key)
		s.update(func(st *Stats) { st.Submitted++ })

		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			defer sem.Release(1)

			// In-flight loads always finish, even after Stop
			_, err := future.Wait(context.Background())
			if err != nil {
				s.update(func(st *Stats) { st.Failed++ })
				s.handler.Handle(context.Background(), err)
				return
			}
			s.update(func(st *Stats) { st.Succeeded++ })
		}(task.Key)
	}

	wg.Wait()

	s.update(func(st *Stats) {
		st.Running = false
		st.FinishedAt = time.Now()
	})
	stats := s.Stats()
	s.logger.Info(context.Background(), "Preload finished",
		"submitted", stats.Submitted,
		"succeeded", stats.Succeeded,
		"failed", stats.Failed,
		"skipped", stats.Skipped,
		"cancelled", stats.Cancelled)
}

// waitUntil blocks until t or until ctx is done. It reports false when the
// wait was cut short.
func (s *PreloadScheduler) waitUntil(ctx context.Context, t time.Time) bool {
	if t.IsZero() {
		return true
	}
	delay := time.Until(t)
	if delay <= 0 {
		return true
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// skipIfStarted reports and counts keys that need no preload
func (s *PreloadScheduler) skipIfStarted(key string) bool {
	state, known := s.requester.State(key)
	var reason string
	switch {
	case !known:
		reason = "unknown module"
	case state == types.StateLoaded:
		reason = "already loaded"
	case state == types.StateLoading:
		reason = "already loading"
	case state == types.StateFailed:
		// Failed keys retry on the next navigation, never in the background
		reason = "previously failed"
	default:
		return false
	}

	s.update(func(st *Stats) { st.Skipped++ })
	s.observer.PreloadSkipped(key, reason)
	return true
}

func (s *PreloadScheduler) update(fn func(*Stats)) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	fn(&s.stats)
}

// Stop cancels submissions that have not started yet. Loads already handed
// to the loader run to completion and populate its cache. A Stop before
// Start holds: the later Start submits nothing.
func (s *PreloadScheduler) Stop() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.stopped = true
	if s.cancel != nil {
		s.cancel()
	}
}

// Wait blocks until a started run has finished, or until ctx is done
func (s *PreloadScheduler) Wait(ctx context.Context) error {
	s.mutex.Lock()
	started := s.started
	s.mutex.Unlock()
	if !started {
		return nil
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when a started run has finished
func (s *PreloadScheduler) Done() <-chan struct{} {
	return s.done
}

// Stats returns a copy of the run statistics
func (s *PreloadScheduler) Stats() Stats {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.stats
}
