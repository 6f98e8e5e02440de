// Package config provides configuration management for modloader using
// Viper for loading from files, environment variables and command-line flags.
//
// The configuration declares the module table (key, source, tags, eager),
// the route table consumed by the navigation gate, the preload strategy and
// its parameters, the transport used to fetch modules, and logging. YAML
// files are the primary source; every key can be overridden through a
// MODLOADER_ prefixed environment variable (MODLOADER_PRELOAD_STRATEGY).
package config

import (
	"strings"
	"time"

	"github.com/conneroisu/modloader/internal/errors"
	"github.com/spf13/viper"
)

// Config is the complete modloader configuration
type Config struct {
	Server  ServerConfig   `mapstructure:"server" yaml:"server"`
	Loader  LoaderConfig   `mapstructure:"loader" yaml:"loader"`
	Preload PreloadConfig  `mapstructure:"preload" yaml:"preload"`
	Modules []ModuleConfig `mapstructure:"modules" yaml:"modules"`
	Routes  []RouteConfig  `mapstructure:"routes" yaml:"routes"`
	Logging LoggingConfig  `mapstructure:"logging" yaml:"logging"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port" yaml:"port"`
	Host            string        `mapstructure:"host" yaml:"host"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

type LoaderConfig struct {
	// Timeout bounds a single module load; zero disables the bound
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
	ModulesDir    string        `mapstructure:"modules_dir" yaml:"modules_dir"`
	BaseURL       string        `mapstructure:"base_url" yaml:"base_url"`
	MaxModuleSize int64         `mapstructure:"max_module_size" yaml:"max_module_size"`
}

type PreloadConfig struct {
	Strategy    string        `mapstructure:"strategy" yaml:"strategy"`
	Concurrency int           `mapstructure:"concurrency" yaml:"concurrency"`
	AllowTags   []string      `mapstructure:"allow_tags" yaml:"allow_tags"`
	MinNetwork  string        `mapstructure:"min_network" yaml:"min_network"`
	RequireIdle bool          `mapstructure:"require_idle" yaml:"require_idle"`
	SignalFile  string        `mapstructure:"signal_file" yaml:"signal_file"`
	Delay       time.Duration `mapstructure:"delay" yaml:"delay"`
	Stagger     time.Duration `mapstructure:"stagger" yaml:"stagger"`
}

type ModuleConfig struct {
	Key    string   `mapstructure:"key" yaml:"key"`
	Source string   `mapstructure:"source" yaml:"source"`
	Tags   []string `mapstructure:"tags" yaml:"tags,omitempty"`
	Eager  bool     `mapstructure:"eager" yaml:"eager,omitempty"`
}

type RouteConfig struct {
	Path   string `mapstructure:"path" yaml:"path"`
	Module string `mapstructure:"module" yaml:"module"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	// File, when set, receives a JSON copy of every log line
	File string `mapstructure:"file" yaml:"file,omitempty"`
}

// Default values
const (
	DefaultPort            = 8080
	DefaultHost            = "localhost"
	DefaultShutdownTimeout = 10 * time.Second
	DefaultLoadTimeout     = 30 * time.Second
	DefaultModulesDir      = "./modules"
	DefaultMaxModuleSize   = 10 * 1024 * 1024
	DefaultStrategy        = "eager-all"
	DefaultConcurrency     = 2
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "text"
)

// SetDefaults registers default values on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", DefaultPort)
	v.SetDefault("server.host", DefaultHost)
	v.SetDefault("server.shutdown_timeout", DefaultShutdownTimeout)
	v.SetDefault("loader.timeout", DefaultLoadTimeout)
	v.SetDefault("loader.modules_dir", DefaultModulesDir)
	v.SetDefault("loader.max_module_size", DefaultMaxModuleSize)
	v.SetDefault("preload.strategy", DefaultStrategy)
	v.SetDefault("preload.concurrency", DefaultConcurrency)
	v.SetDefault("logging.level", DefaultLogLevel)
	v.SetDefault("logging.format", DefaultLogFormat)
	v.SetDefault("logging.file", "")
}

// Default returns a configuration holding only default values
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            DefaultPort,
			Host:            DefaultHost,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Loader: LoaderConfig{
			Timeout:       DefaultLoadTimeout,
			ModulesDir:    DefaultModulesDir,
			MaxModuleSize: DefaultMaxModuleSize,
		},
		Preload: PreloadConfig{
			Strategy:    DefaultStrategy,
			Concurrency: DefaultConcurrency,
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// Load reads the configuration from the global viper instance
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads and validates the configuration held by v
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.WrapConfig(err, errors.ErrCodeConfigInvalid, "decoding configuration")
	}

	// Environment overrides arrive as a single space or comma separated string
	if raw, ok := v.Get("preload.allow_tags").(string); ok {
		config.Preload.AllowTags = strings.FieldsFunc(raw, func(r rune) bool {
			return r == ',' || r == ' '
		})
	}

	if err := Validate(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate returns a config error describing every validation failure
func Validate(config *Config) error {
	result := ValidateConfigWithDetails(config)
	if result.HasErrors() {
		return errors.NewConfigError(errors.ErrCodeConfigInvalid, "invalid configuration:\n"+result.String()).
			WithContext("errors", len(result.Errors))
	}
	return nil
}

// Module returns the module entry for key
func (c *Config) Module(key string) (ModuleConfig, bool) {
	for _, m := range c.Modules {
		if m.Key == key {
			return m, true
		}
	}
	return ModuleConfig{}, false
}

// RouteTable returns the routes as a path to module key map
func (c *Config) RouteTable() map[string]string {
	table := make(map[string]string, len(c.Routes))
	for _, r := range c.Routes {
		table[r.Path] = r.Module
	}
	return table
}
