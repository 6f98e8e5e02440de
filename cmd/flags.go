package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/conneroisu/modloader/internal/app"
	"github.com/conneroisu/modloader/internal/config"
	"github.com/conneroisu/modloader/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Output formats understood by every command that prints structured data
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

var outputFormats = []string{FormatTable, FormatJSON, FormatYAML}

// OutputFlags are shared by commands that print results
type OutputFlags struct {
	Format string
}

// AddOutputFlags registers -o/--output on cmd, rejecting unknown formats
// at parse time
func AddOutputFlags(cmd *cobra.Command) *OutputFlags {
	flags := &OutputFlags{Format: FormatTable}
	cmd.Flags().StringVarP(&flags.Format, "output", "o", FormatTable,
		"Output format ("+strings.Join(outputFormats, "|")+")")
	AddFlagValidation(cmd, "output", ValidateFormat)
	return flags
}

// AddFlagValidation wraps a flag so that invalid values fail during parsing
func AddFlagValidation(cmd *cobra.Command, flagName string, validator func(string) error) {
	flag := cmd.Flags().Lookup(flagName)
	if flag == nil {
		return
	}
	flag.Value = &validatingValue{Value: flag.Value, validator: validator}
}

type validatingValue struct {
	pflag.Value
	validator func(string) error
}

func (v *validatingValue) Set(val string) error {
	if err := v.validator(val); err != nil {
		return err
	}
	return v.Value.Set(val)
}

// ValidateFormat accepts the known output formats
func ValidateFormat(format string) error {
	for _, f := range outputFormats {
		if strings.EqualFold(format, f) {
			return nil
		}
	}
	return fmt.Errorf("invalid output format %q, must be one of: %s",
		format, strings.Join(outputFormats, ", "))
}

// writeStructured prints v as JSON or YAML, or calls table for the table
// format
func writeStructured(w io.Writer, format string, v interface{}, table func(io.Writer) error) error {
	switch strings.ToLower(format) {
	case FormatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(v)
	case FormatYAML:
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(v); err != nil {
			return err
		}
		return encoder.Close()
	default:
		return table(w)
	}
}

// newLogger builds the process logger from the logging section. With a log
// file configured, lines go to stderr and, as JSON, to the file; the returned
// closer closes it.
func newLogger(cfg *config.Config) (logging.Logger, func() error, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logging.LevelInfo
	}
	stderr := logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: cfg.Logging.Format,
		Output: os.Stderr,
	})
	if cfg.Logging.File == "" {
		return stderr, func() error { return nil }, nil
	}

	f, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	file := logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: "json",
		Output: f,
	})
	return logging.NewMultiLogger(stderr, file), f.Close, nil
}

// buildApp loads the configuration and assembles the application from it
func buildApp(opts ...app.Option) (*app.App, logging.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return buildAppFrom(cfg, opts...)
}

func buildAppFrom(cfg *config.Config, opts ...app.Option) (*app.App, logging.Logger, error) {
	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	opts = append(opts, app.WithCloser(closeLog))

	a, err := app.Build(cfg, logger, opts...)
	if err != nil {
		_ = closeLog()
		return nil, nil, fmt.Errorf("failed to assemble modules: %w", err)
	}
	return a, logger, nil
}

// commandContext returns the context cobra was executed with
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
