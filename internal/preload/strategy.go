// Package preload decides which modules to fetch ahead of navigation and
// drives those fetches through the loader with bounded concurrency.
package preload

import (
	"fmt"
	"strings"
	"time"

	"github.com/conneroisu/modloader/internal/errors"
	"github.com/conneroisu/modloader/internal/signal"
	"github.com/conneroisu/modloader/internal/types"
)

// Strategy names accepted by NewStrategy
const (
	StrategyEagerAll    = "eager-all"
	StrategyTagFiltered = "tag-filtered"
	StrategySignalAware = "signal-aware"
	StrategyNone        = "none"
)

// Strategy selects preload candidates. Implementations are pure: they only
// read the descriptors and the signal, and never touch the loader.
type Strategy interface {
	Name() string
	SelectCandidates(modules []types.ModuleDescriptor, sig signal.Signal) []types.PreloadTask
}

// Skip explains why a module was left out of a selection
type Skip struct {
	Key    string
	Reason string
}

// SkipReporter is implemented by strategies that can explain their
// exclusions. The scheduler reports each Skip as a PreloadSkipped event.
type SkipReporter interface {
	Skipped(modules []types.ModuleDescriptor, sig signal.Signal) []Skip
}

// EagerAll selects every module not already loaded at bootstrap
type EagerAll struct{}

func (EagerAll) Name() string { return StrategyEagerAll }

func (EagerAll) SelectCandidates(modules []types.ModuleDescriptor, _ signal.Signal) []types.PreloadTask {
	tasks := make([]types.PreloadTask, 0, len(modules))
	for i, m := range modules {
		if m.Eager {
			continue
		}
		tasks = append(tasks, types.PreloadTask{Key: m.Key, Priority: i})
	}
	return tasks
}

// TagFiltered selects modules carrying at least one allowed tag. An empty
// allow-list selects nothing.
type TagFiltered struct {
	Allow []string
}

func (s TagFiltered) Name() string { return StrategyTagFiltered }

func (s TagFiltered) SelectCandidates(modules []types.ModuleDescriptor, _ signal.Signal) []types.PreloadTask {
	tasks := make([]types.PreloadTask, 0)
	for i, m := range modules {
		if m.HasAnyTag(s.Allow) {
			tasks = append(tasks, types.PreloadTask{Key: m.Key, Priority: i})
		}
	}
	return tasks
}

func (s TagFiltered) Skipped(modules []types.ModuleDescriptor, _ signal.Signal) []Skip {
	var skips []Skip
	for _, m := range modules {
		if !m.HasAnyTag(s.Allow) {
			skips = append(skips, Skip{Key: m.Key, Reason: "no allowed tag"})
		}
	}
	return skips
}

// SignalAware behaves like TagFiltered while the signal is favorable and
// selects nothing otherwise.
type SignalAware struct {
	Allow       []string
	MinNetwork  signal.NetworkClass
	RequireIdle bool
}

func (s SignalAware) Name() string { return StrategySignalAware }

func (s SignalAware) SelectCandidates(modules []types.ModuleDescriptor, sig signal.Signal) []types.PreloadTask {
	if ok, _ := sig.Favorable(s.MinNetwork, s.RequireIdle); !ok {
		return []types.PreloadTask{}
	}
	return TagFiltered{Allow: s.Allow}.SelectCandidates(modules, sig)
}

func (s SignalAware) Skipped(modules []types.ModuleDescriptor, sig signal.Signal) []Skip {
	ok, reason := sig.Favorable(s.MinNetwork, s.RequireIdle)
	if ok {
		return TagFiltered{Allow: s.Allow}.Skipped(modules, sig)
	}

	skips := make([]Skip, 0, len(modules))
	for _, m := range modules {
		skips = append(skips, Skip{Key: m.Key, Reason: reason})
	}
	return skips
}

// Delayed defers every task of Inner: the i-th task may not be submitted
// before now+Initial+i*Step.
type Delayed struct {
	Inner   Strategy
	Initial time.Duration
	Step    time.Duration
	// Now defaults to time.Now
	Now func() time.Time
}

func (s Delayed) Name() string { return s.Inner.Name() + "+delayed" }

func (s Delayed) SelectCandidates(modules []types.ModuleDescriptor, sig signal.Signal) []types.PreloadTask {
	tasks := s.Inner.SelectCandidates(modules, sig)
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	start := now().Add(s.Initial)
	for i := range tasks {
		tasks[i].NotBefore = start.Add(time.Duration(i) * s.Step)
	}
	return tasks
}

func (s Delayed) Skipped(modules []types.ModuleDescriptor, sig signal.Signal) []Skip {
	if reporter, ok := s.Inner.(SkipReporter); ok {
		return reporter.Skipped(modules, sig)
	}
	return nil
}

// None disables preloading
type None struct{}

func (None) Name() string { return StrategyNone }

func (None) SelectCandidates([]types.ModuleDescriptor, signal.Signal) []types.PreloadTask {
	return []types.PreloadTask{}
}

// Options selects and parameterizes a strategy by name
type Options struct {
	Name        string
	AllowTags   []string
	MinNetwork  string
	RequireIdle bool
	Delay       time.Duration
	Stagger     time.Duration
}

// NewStrategy builds the strategy named by opts. An empty name selects
// eager-all. A positive Delay or Stagger wraps the result in Delayed.
func NewStrategy(opts Options) (Strategy, error) {
	var strategy Strategy

	switch strings.ToLower(strings.TrimSpace(opts.Name)) {
	case "", StrategyEagerAll:
		strategy = EagerAll{}
	case StrategyTagFiltered:
		strategy = TagFiltered{Allow: append([]string(nil), opts.AllowTags...)}
	case StrategySignalAware:
		minNetwork := signal.NetworkOffline
		if opts.MinNetwork != "" {
			class, err := signal.ParseNetworkClass(opts.MinNetwork)
			if err != nil {
				return nil, errors.WrapConfig(err, errors.ErrCodeConfigInvalid, "invalid preload.min_network")
			}
			minNetwork = class
		}
		strategy = SignalAware{
			Allow:       append([]string(nil), opts.AllowTags...),
			MinNetwork:  minNetwork,
			RequireIdle: opts.RequireIdle,
		}
	case StrategyNone:
		return None{}, nil
	default:
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("unknown preload strategy %q", opts.Name))
	}

	if opts.Delay > 0 || opts.Stagger > 0 {
		strategy = Delayed{Inner: strategy, Initial: opts.Delay, Step: opts.Stagger}
	}
	return strategy, nil
}

// Names lists the strategy names NewStrategy accepts
func Names() []string {
	return []string{StrategyEagerAll, StrategyTagFiltered, StrategySignalAware, StrategyNone}
}
