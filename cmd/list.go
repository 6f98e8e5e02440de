package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/conneroisu/modloader/internal/app"
	"github.com/conneroisu/modloader/internal/gate"
	"github.com/conneroisu/modloader/internal/renderer"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"l"},
	Short:   "List registered modules and routes",
	Long: `List every module in the configuration in registration order, with its
source, tags and eager flag, followed by the route table.

Examples:
  modloader list                  # Table output
  modloader list -o json          # Output as JSON
  modloader list -t common        # Only modules tagged common
  modloader list --eager          # Only modules loaded at startup`,
	RunE: runList,
}

var (
	listFlags     *OutputFlags
	listTags      []string
	listEagerOnly bool
)

// listOutput is the structured form of the list command
type listOutput struct {
	Modules []app.ModuleInfo `json:"modules" yaml:"modules"`
	Routes  []gate.Route     `json:"routes" yaml:"routes"`
}

func init() {
	rootCmd.AddCommand(listCmd)

	listFlags = AddOutputFlags(listCmd)
	listCmd.Flags().StringSliceVarP(&listTags, "tag", "t", nil, "Only list modules carrying one of these tags")
	listCmd.Flags().BoolVar(&listEagerOnly, "eager", false, "Only list eager modules")
}

func runList(cmd *cobra.Command, args []string) error {
	a, _, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	out := listOutput{
		Modules: filterModules(a.Modules(), listTags, listEagerOnly),
		Routes:  a.Gate.Routes(),
	}

	return writeStructured(cmd.OutOrStdout(), listFlags.Format, out, func(w io.Writer) error {
		return writeListTable(w, out)
	})
}

func filterModules(modules []app.ModuleInfo, tags []string, eagerOnly bool) []app.ModuleInfo {
	filtered := make([]app.ModuleInfo, 0, len(modules))
	for _, m := range modules {
		if eagerOnly && !m.Eager {
			continue
		}
		if len(tags) > 0 && !hasAnyTag(m.Tags, tags) {
			continue
		}
		filtered = append(filtered, m)
	}
	return filtered
}

func hasAnyTag(have, want []string) bool {
	for _, h := range have {
		for _, w := range want {
			if h == w {
				return true
			}
		}
	}
	return false
}

func writeListTable(w io.Writer, out listOutput) error {
	if len(out.Modules) == 0 {
		fmt.Fprintln(w, "No modules found.")
	} else {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "KEY\tSOURCE\tTAGS\tEAGER\tSTATE")
		for _, m := range out.Modules {
			eager := ""
			if m.Eager {
				eager = "yes"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				m.Key, m.Source, strings.Join(m.Tags, ","), eager, renderer.StateLabel(m.State))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if len(out.Routes) > 0 {
		fmt.Fprintln(w)
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ROUTE\tMODULE")
		for _, r := range out.Routes {
			fmt.Fprintf(tw, "%s\t%s\n", r.Path, r.Module)
		}
		return tw.Flush()
	}
	return nil
}
