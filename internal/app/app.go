// Package app assembles a running modloader from configuration.
//
// Build wires the registry, transport, loader, navigation gate, signal
// source, event bus and preload scheduler together. Bootstrap performs the
// startup sequence: eager modules are loaded in the foreground, then the
// preload strategy is handed to the scheduler and runs in the background.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/conneroisu/modloader/internal/config"
	"github.com/conneroisu/modloader/internal/errors"
	"github.com/conneroisu/modloader/internal/events"
	"github.com/conneroisu/modloader/internal/fetch"
	"github.com/conneroisu/modloader/internal/gate"
	"github.com/conneroisu/modloader/internal/loader"
	"github.com/conneroisu/modloader/internal/logging"
	"github.com/conneroisu/modloader/internal/preload"
	"github.com/conneroisu/modloader/internal/registry"
	"github.com/conneroisu/modloader/internal/signal"
	"github.com/conneroisu/modloader/internal/types"
)

// SignalDebounce is how long signal file changes settle before a reload
const SignalDebounce = 100 * time.Millisecond

// App holds the assembled components
type App struct {
	Config    *config.Config
	Registry  *registry.ModuleRegistry
	Fetcher   fetch.Fetcher
	Loader    *loader.ModuleLoader
	Gate      *gate.NavigationGate
	Scheduler *preload.PreloadScheduler
	Strategy  preload.Strategy
	Signals   signal.Source
	Bus       *events.Bus

	logger     logging.Logger
	fileSource *signal.FileSource
	closers    []func() error
	cancel     context.CancelFunc
	closeOnce  sync.Once
}

// Option customizes Build
type Option func(*buildOptions)

type buildOptions struct {
	fetcher   fetch.Fetcher
	signals   signal.Source
	observers []events.Observer
	closers   []func() error
}

// WithFetcher replaces the fetcher derived from the loader config
func WithFetcher(f fetch.Fetcher) Option {
	return func(o *buildOptions) { o.fetcher = f }
}

// WithSignalSource replaces the signal source derived from the preload config
func WithSignalSource(s signal.Source) Option {
	return func(o *buildOptions) { o.signals = s }
}

// WithObserver adds an observer next to the event bus and log observer
func WithObserver(observer events.Observer) Option {
	return func(o *buildOptions) { o.observers = append(o.observers, observer) }
}

// WithCloser registers fn to run when the App is closed, such as closing a
// log file the App's logger writes to
func WithCloser(fn func() error) Option {
	return func(o *buildOptions) { o.closers = append(o.closers, fn) }
}

// Build assembles an App from cfg. The registry is sealed and every route is
// checked against it before Build returns.
func Build(cfg *config.Config, logger logging.Logger, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, "configuration is required")
	}
	logger = logging.OrNop(logger)

	options := &buildOptions{}
	for _, opt := range opts {
		opt(options)
	}

	fetcher := options.fetcher
	if fetcher == nil {
		var err error
		fetcher, err = fetch.New(fetch.Config{
			ModulesDir: cfg.Loader.ModulesDir,
			BaseURL:    cfg.Loader.BaseURL,
			Timeout:    cfg.Loader.Timeout,
			MaxSize:    cfg.Loader.MaxModuleSize,
		})
		if err != nil {
			return nil, err
		}
	}

	reg := registry.NewModuleRegistry()
	registrations := reg.Watch()
	for _, m := range cfg.Modules {
		if err := reg.Register(types.ModuleDescriptor{
			Key:    m.Key,
			Source: m.Source,
			Tags:   append([]string(nil), m.Tags...),
			Eager:  m.Eager,
			Load:   fetch.LoadFuncFor(fetcher, m.Key, m.Source),
		}); err != nil {
			return nil, err
		}
	}
	reg.Seal()
	// Seal closes the watch channel
	for event := range registrations {
		logger.Debug(context.Background(), "Module registered",
			"module", event.Key,
			"index", event.Index)
	}

	strategy, err := preload.NewStrategy(preload.Options{
		Name:        cfg.Preload.Strategy,
		AllowTags:   cfg.Preload.AllowTags,
		MinNetwork:  cfg.Preload.MinNetwork,
		RequireIdle: cfg.Preload.RequireIdle,
		Delay:       cfg.Preload.Delay,
		Stagger:     cfg.Preload.Stagger,
	})
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:   cfg,
		Registry: reg,
		Fetcher:  fetcher,
		Strategy: strategy,
		Bus:      events.NewBus(),
		logger:   logger.WithComponent("app"),
		closers:  options.closers,
	}

	a.Signals = options.signals
	if a.Signals == nil {
		if cfg.Preload.SignalFile != "" {
			fs, err := signal.NewFileSource(cfg.Preload.SignalFile, signal.Default(), logger)
			if err != nil {
				return nil, err
			}
			a.fileSource = fs
			a.Signals = fs
		} else {
			a.Signals = signal.NewStaticSource(signal.Default())
		}
	}

	observer := events.Multi(append([]events.Observer{a.Bus, events.NewLogObserver(logger)}, options.observers...))

	baseCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.Loader = loader.NewModuleLoader(reg,
		loader.WithBaseContext(baseCtx),
		loader.WithLoadTimeout(cfg.Loader.Timeout),
		loader.WithObserver(observer),
		loader.WithLogger(logger),
	)

	a.Gate = gate.NewNavigationGate(reg, a.Loader, cfg.RouteTable(), logger)
	if err := a.Gate.Validate(); err != nil {
		cancel()
		return nil, err
	}

	a.Scheduler = preload.NewPreloadScheduler(reg, a.Loader,
		preload.WithSignalSource(a.Signals),
		preload.WithObserver(observer),
		preload.WithLogger(logger),
	)

	a.logger.Info(context.Background(), "Application assembled",
		"modules", reg.Count(),
		"routes", len(cfg.Routes),
		"strategy", strategy.Name(),
		"fetcher", fmt.Sprintf("%T", fetcher))
	return a, nil
}

// EagerKeys returns the keys of modules marked eager, in registration order
func (a *App) EagerKeys() []string {
	var keys []string
	for _, d := range a.Registry.Snapshot() {
		if d.Eager {
			keys = append(keys, d.Key)
		}
	}
	return keys
}

// LoadEager loads every eager module concurrently and waits for all of them.
// The returned map holds the failures by key.
func (a *App) LoadEager(ctx context.Context) (map[string]error, error) {
	keys := a.EagerKeys()
	futures := make([]*loader.Future, len(keys))
	for i, key := range keys {
		futures[i] = a.Loader.Request(key)
	}

	failures := make(map[string]error)
	for i, future := range futures {
		if _, err := future.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return failures, ctx.Err()
			}
			failures[keys[i]] = err
		}
	}
	return failures, nil
}

// Bootstrap loads eager modules in the foreground, starts watching the
// signal file if one is configured, and starts background preloading.
// Eager failures are logged; the modules retry on their next request.
func (a *App) Bootstrap(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	timer := logging.StartOperation(a.logger, "bootstrap")

	failures, err := a.LoadEager(ctx)
	if err != nil {
		timer.EndWithError(ctx, err)
		return err
	}
	for key, ferr := range failures {
		a.logger.Warn(ctx, ferr, "Eager module failed to load", "module", key)
	}

	if a.fileSource != nil {
		if err := a.fileSource.Watch(ctx, SignalDebounce); err != nil {
			a.logger.Warn(ctx, err, "Signal file will not be watched", "path", a.fileSource.Path())
		}
	}

	if err := a.Scheduler.Start(ctx, a.Strategy, a.Config.Preload.Concurrency); err != nil {
		timer.EndWithError(ctx, err)
		return err
	}

	timer.End(ctx)
	return nil
}

// Close stops background preloading, waits for it to drain, and cancels
// loads still in flight
func (a *App) Close(ctx context.Context) error {
	var err error
	a.closeOnce.Do(func() {
		a.Scheduler.Stop()
		err = a.Scheduler.Wait(ctx)

		if a.fileSource != nil {
			if cerr := a.fileSource.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}
		a.cancel()

		for _, closer := range a.closers {
			if cerr := closer(); cerr != nil && err == nil {
				err = cerr
			}
		}
	})
	return err
}
