package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/conneroisu/modloader/internal/app"
	"github.com/conneroisu/modloader/internal/config"
	"github.com/conneroisu/modloader/internal/loader"
	"github.com/conneroisu/modloader/internal/preload"
	"github.com/conneroisu/modloader/internal/renderer"
	"github.com/conneroisu/modloader/internal/signal"
	"github.com/spf13/cobra"
)

var preloadCmd = &cobra.Command{
	Use:     "preload",
	Aliases: []string{"p"},
	Short:   "Run the preload strategy once and report",
	Long: `Load the eager modules, run the configured preload strategy to completion
and report what was preloaded, what was skipped and why, and the loader
metrics. Flags override the preload section of the configuration.

Examples:
  modloader preload                                     # Configured strategy
  modloader preload --strategy tag-filtered --allow-tags common
  modloader preload --strategy signal-aware --network 2g
  modloader preload -o json                             # Output as JSON`,
	RunE: runPreload,
}

var (
	preloadFlags       *OutputFlags
	preloadStrategy    string
	preloadAllowTags   []string
	preloadNetwork     string
	preloadSaveData    bool
	preloadBusy        bool
	preloadConcurrency int
	preloadTimeout     time.Duration
)

// preloadOutput is the structured form of the preload command
type preloadOutput struct {
	Strategy string                 `json:"strategy" yaml:"strategy"`
	Signal   signal.Signal          `json:"signal" yaml:"signal"`
	Stats    preload.Stats          `json:"stats" yaml:"stats"`
	Metrics  loader.MetricsSnapshot `json:"metrics" yaml:"metrics"`
	Skipped  []skipEntry            `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	Modules  []app.ModuleInfo       `json:"modules" yaml:"modules"`
}

type skipEntry struct {
	Key    string `json:"key" yaml:"key"`
	Reason string `json:"reason" yaml:"reason"`
}

// skipCollector records PreloadSkipped events
type skipCollector struct {
	skips chan skipEntry
}

func (c *skipCollector) ModuleLoadStarted(string)                  {}
func (c *skipCollector) ModuleLoadSucceeded(string, time.Duration) {}
func (c *skipCollector) ModuleLoadFailed(string, error, int)       {}
func (c *skipCollector) PreloadSkipped(key, reason string) {
	select {
	case c.skips <- skipEntry{Key: key, Reason: reason}:
	default:
	}
}

func (c *skipCollector) drain() []skipEntry {
	var entries []skipEntry
	for {
		select {
		case e := <-c.skips:
			entries = append(entries, e)
		default:
			return entries
		}
	}
}

func init() {
	rootCmd.AddCommand(preloadCmd)

	preloadFlags = AddOutputFlags(preloadCmd)
	addPreloadFlags(preloadCmd)
}

// addPreloadFlags registers the strategy and simulated signal overrides
func addPreloadFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&preloadStrategy, "strategy", "s", "",
		"Preload strategy ("+strings.Join(preload.Names(), "|")+")")
	cmd.Flags().StringSliceVar(&preloadAllowTags, "allow-tags", nil, "Tags eligible for preloading")
	cmd.Flags().StringVar(&preloadNetwork, "network", "", "Simulated network class (offline, slow-2g, 2g, 3g, 4g)")
	cmd.Flags().BoolVar(&preloadSaveData, "save-data", false, "Simulate data saving mode")
	cmd.Flags().BoolVar(&preloadBusy, "busy", false, "Simulate a busy (not idle) runtime")
	cmd.Flags().IntVarP(&preloadConcurrency, "concurrency", "c", 0, "Preload concurrency")
	cmd.Flags().DurationVar(&preloadTimeout, "timeout", 2*time.Minute, "Stop waiting for the run after this long")
	AddFlagValidation(cmd, "network", func(value string) error {
		_, err := signal.ParseNetworkClass(value)
		return err
	})
}

func runPreload(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := applyPreloadFlags(cmd, cfg); err != nil {
		return err
	}

	collector := &skipCollector{skips: make(chan skipEntry, 1024)}
	opts := []app.Option{app.WithObserver(collector)}
	if sig, ok, err := simulatedSignal(cmd); err != nil {
		return err
	} else if ok {
		opts = append(opts, app.WithSignalSource(signal.NewStaticSource(sig)))
	}

	a, _, err := buildAppFrom(cfg, opts...)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	ctx, cancel := context.WithTimeout(commandContext(cmd), preloadTimeout)
	defer cancel()

	if err := a.Bootstrap(ctx); err != nil {
		return fmt.Errorf("bootstrap failed: %w", err)
	}
	if err := a.Scheduler.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for preload: %w", err)
	}

	out := preloadOutput{
		Strategy: a.Strategy.Name(),
		Signal:   a.Signals.Current(),
		Stats:    a.Scheduler.Stats(),
		Metrics:  a.Loader.Metrics().GetSnapshot(),
		Skipped:  collector.drain(),
		Modules:  a.Modules(),
	}
	return writeStructured(cmd.OutOrStdout(), preloadFlags.Format, out, func(w io.Writer) error {
		return writePreloadTable(w, out)
	})
}

func applyPreloadFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("strategy") {
		cfg.Preload.Strategy = preloadStrategy
	}
	if flags.Changed("allow-tags") {
		cfg.Preload.AllowTags = preloadAllowTags
	}
	if flags.Changed("concurrency") {
		cfg.Preload.Concurrency = preloadConcurrency
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}
	return nil
}

// simulatedSignal builds a static signal from the signal flags. ok is false
// when none were given, leaving the configured source in place.
func simulatedSignal(cmd *cobra.Command) (sig signal.Signal, ok bool, err error) {
	flags := cmd.Flags()
	if !flags.Changed("network") && !flags.Changed("save-data") && !flags.Changed("busy") {
		return signal.Signal{}, false, nil
	}

	sig = signal.Default()
	if preloadNetwork != "" {
		if sig.Network, err = signal.ParseNetworkClass(preloadNetwork); err != nil {
			return signal.Signal{}, false, err
		}
	}
	sig.SaveData = preloadSaveData
	sig.Idle = !preloadBusy
	return sig, true, nil
}

func writePreloadTable(w io.Writer, out preloadOutput) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Strategy:\t%s\n", out.Strategy)
	fmt.Fprintf(tw, "Signal:\tnetwork=%s idle=%t save-data=%t\n", out.Signal.Network, out.Signal.Idle, out.Signal.SaveData)
	fmt.Fprintf(tw, "Candidates:\t%d\n", out.Stats.Candidates)
	fmt.Fprintf(tw, "Preloaded:\t%d succeeded, %d failed, %d skipped\n",
		out.Stats.Succeeded, out.Stats.Failed, out.Stats.Skipped)
	fmt.Fprintf(tw, "Loads:\t%d started, %d cache hits, %d coalesced, avg %s\n",
		out.Metrics.Started, out.Metrics.CacheHits, out.Metrics.Coalesced, out.Metrics.AverageDuration.Round(time.Microsecond))
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(out.Skipped) > 0 {
		fmt.Fprintln(w)
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "SKIPPED\tREASON")
		for _, s := range out.Skipped {
			fmt.Fprintf(tw, "%s\t%s\n", s.Key, s.Reason)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MODULE\tSTATE\tATTEMPTS\tDURATION")
	for _, m := range out.Modules {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%dms\n", m.Key, renderer.StateLabel(m.State), m.Attempts, m.LastDurationMs)
	}
	return tw.Flush()
}
