package cmd

import (
	"context"
	"fmt"
	"os"
	ossignal "os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/conneroisu/modloader/internal/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Start the development server",
	Long: `Start the development server. Eager modules are loaded before the
server accepts requests; the preload strategy then runs in the background.

Open /navigate/<route> to load the module behind a route, / for the module
table, and /ws for a live stream of load events.

Examples:
  modloader serve                  # Serve using .modloader.yml
  modloader serve -p 3000          # Serve on port 3000
  modloader serve --host 0.0.0.0   # Listen on every interface`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 8080, "Port to serve on")
	serveCmd.Flags().String("host", "localhost", "Host to bind to")
	AddFlagValidation(serveCmd, "port", ValidatePort)

	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
}

func runServe(cmd *cobra.Command, args []string) error {
	a, logger, err := buildApp()
	if err != nil {
		return err
	}

	ctx, stop := ossignal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			logger.Warn(closeCtx, err, "Preloading did not stop cleanly")
		}
	}()

	if err := a.Bootstrap(ctx); err != nil {
		return fmt.Errorf("bootstrap failed: %w", err)
	}

	srv := server.New(a, logger)
	fmt.Fprintf(cmd.OutOrStdout(), "Starting modloader at http://%s:%d (strategy %s)\n",
		a.Config.Server.Host, a.Config.Server.Port, a.Strategy.Name())

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// ValidatePort accepts ports 0-65535; zero picks a free port
func ValidatePort(portStr string) error {
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid port number: %s", portStr)
	}
	if port < 0 || port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535, got %d", port)
	}
	return nil
}
