package cmd

import (
	"fmt"
	"io"

	"github.com/conneroisu/modloader/internal/version"
	"github.com/spf13/cobra"
)

var (
	versionFlags    *OutputFlags
	versionShort    bool
	versionDetailed bool
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long: `Display the modloader version, the commit it was built from, the build
time, the Go version and the target platform.

Examples:
  modloader version              # Show version
  modloader version --short      # Version only
  modloader version --detailed   # Every known build detail
  modloader version -o json      # Output as JSON`,
	RunE: runVersionCommand,
}

func init() {
	rootCmd.AddCommand(versionCmd)

	versionFlags = AddOutputFlags(versionCmd)
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "Show short version only")
	versionCmd.Flags().BoolVar(&versionDetailed, "detailed", false, "Show detailed version information")
	versionCmd.MarkFlagsMutuallyExclusive("short", "detailed")
}

func runVersionCommand(cmd *cobra.Command, args []string) error {
	info := version.GetBuildInfo()
	return writeStructured(cmd.OutOrStdout(), versionFlags.Format, info, func(w io.Writer) error {
		switch {
		case versionShort:
			_, err := fmt.Fprintln(w, info.Short())
			return err
		case versionDetailed:
			buildType := "development"
			if info.IsRelease() {
				buildType = "release"
			}
			_, err := fmt.Fprintf(w, "%s\nBuild type: %s\n", info.Detailed(), buildType)
			return err
		default:
			_, err := fmt.Fprintf(w, "modloader %s\nGo: %s\nPlatform: %s\n", info.Short(), info.GoVersion, info.Platform)
			return err
		}
	})
}
