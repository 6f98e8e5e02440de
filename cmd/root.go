// Package cmd provides the modloader command-line interface.
//
// Configuration System:
//
//	Settings are read from several sources with clear precedence:
//	1. Command-line flags (--config, --port, --log-level, etc.) - highest priority
//	2. MODLOADER_CONFIG_FILE environment variable - custom config file path
//	3. Individual environment variables (MODLOADER_SERVER_PORT, etc.)
//	4. Configuration file (.modloader.yml) - lowest priority
//
// Environment Variables:
//
//	MODLOADER_CONFIG_FILE: Path to custom configuration file
//	MODLOADER_SERVER_PORT: Override server port
//	MODLOADER_PRELOAD_STRATEGY: Override the preload strategy
//	MODLOADER_PRELOAD_ALLOW_TAGS: Space or comma separated allow-list
//	And the rest following the MODLOADER_<SECTION>_<OPTION> pattern
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "modloader",
	Short: "On-demand module loading with background preloading",
	Long: `modloader loads optional modules the first time a route needs them and
preloads the rest in the background according to a configurable strategy.

Commands:
  modloader serve                  Start the development server
  modloader list                   List registered modules and routes
  modloader resolve /reports       Resolve a route and load its module
  modloader preload                Run the preload strategy once and report
  modloader version                Show version information

Preload strategies: eager-all, tag-filtered, signal-aware, none`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .modloader.yml, can also use MODLOADER_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig points viper at the configuration file. A missing file is not
// an error; defaults and environment variables still apply.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("MODLOADER_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".modloader")
	}

	viper.SetEnvPrefix("MODLOADER")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
