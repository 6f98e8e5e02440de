package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/conneroisu/modloader/internal/fetch"
	"github.com/conneroisu/modloader/internal/renderer"
	"github.com/conneroisu/modloader/internal/types"
	"github.com/spf13/cobra"
)

var resolveCmd = &cobra.Command{
	Use:     "resolve <route>",
	Aliases: []string{"r"},
	Short:   "Resolve a route and load its module",
	Long: `Resolve a route through the navigation gate exactly as the server does:
look up the module behind it, load it, and report the outcome.

Examples:
  modloader resolve /                     # Module behind the root route
  modloader resolve /reports/monthly      # Module behind a mapped route
  modloader resolve reports --timeout 2s  # Give up waiting after two seconds`,
	Args: cobra.ExactArgs(1),
	RunE: runResolve,
}

var (
	resolveFlags   *OutputFlags
	resolveTimeout time.Duration
)

// resolveOutput is the structured form of the resolve command
type resolveOutput struct {
	Route       string            `json:"route" yaml:"route"`
	Module      string            `json:"module" yaml:"module"`
	State       types.ModuleState `json:"state" yaml:"state"`
	Attempts    int               `json:"attempts" yaml:"attempts"`
	DurationMs  int64             `json:"duration_ms" yaml:"duration_ms"`
	ContentType string            `json:"content_type,omitempty" yaml:"content_type,omitempty"`
	Hash        string            `json:"hash,omitempty" yaml:"hash,omitempty"`
	Size        int64             `json:"size,omitempty" yaml:"size,omitempty"`
	Error       string            `json:"error,omitempty" yaml:"error,omitempty"`
}

func init() {
	rootCmd.AddCommand(resolveCmd)

	resolveFlags = AddOutputFlags(resolveCmd)
	resolveCmd.Flags().DurationVar(&resolveTimeout, "timeout", 30*time.Second, "Stop waiting for the module after this long")
}

func runResolve(cmd *cobra.Command, args []string) error {
	a, _, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	ctx := commandContext(cmd)
	if resolveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, resolveTimeout)
		defer cancel()
	}

	route := args[0]
	key := a.Gate.ModuleKey(route)

	start := time.Now()
	handle, resolveErr := a.Gate.Resolve(ctx, route)
	snapshot, _ := a.Loader.Snapshot(key)

	out := resolveOutput{
		Route:      route,
		Module:     key,
		State:      snapshot.State,
		Attempts:   snapshot.Attempts,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if module, ok := handle.(*fetch.Module); ok && module != nil {
		out.ContentType = module.ContentType
		out.Hash = module.Hash
		out.Size = module.Size
	}
	if resolveErr != nil {
		out.Error = resolveErr.Error()
	}

	if err := writeStructured(cmd.OutOrStdout(), resolveFlags.Format, out, func(w io.Writer) error {
		return writeResolveTable(w, out)
	}); err != nil {
		return err
	}

	if resolveErr != nil {
		return fmt.Errorf("resolving %s: %w", route, resolveErr)
	}
	return nil
}

func writeResolveTable(w io.Writer, out resolveOutput) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Route:\t%s\n", out.Route)
	fmt.Fprintf(tw, "Module:\t%s\n", out.Module)
	fmt.Fprintf(tw, "State:\t%s\n", renderer.StateLabel(out.State))
	fmt.Fprintf(tw, "Attempts:\t%d\n", out.Attempts)
	fmt.Fprintf(tw, "Duration:\t%dms\n", out.DurationMs)
	if out.Hash != "" {
		fmt.Fprintf(tw, "Hash:\t%s\n", out.Hash)
		fmt.Fprintf(tw, "Size:\t%d bytes\n", out.Size)
	}
	if out.Error != "" {
		fmt.Fprintf(tw, "Error:\t%s\n", out.Error)
	}
	return tw.Flush()
}
