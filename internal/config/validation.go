package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/conneroisu/modloader/internal/logging"
	"github.com/conneroisu/modloader/internal/preload"
	"github.com/conneroisu/modloader/internal/signal"
)

// ValidationError represents a configuration validation error with suggestions
type ValidationError struct {
	Field       string
	Value       interface{}
	Message     string
	Suggestions []string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// ValidationResult holds the result of configuration validation
type ValidationResult struct {
	Valid    bool
	Errors   []ValidationError
	Warnings []ValidationError
}

// HasErrors returns true if there are any validation errors
func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings
func (vr *ValidationResult) HasWarnings() bool {
	return len(vr.Warnings) > 0
}

// String returns a formatted string of all validation issues
func (vr *ValidationResult) String() string {
	var builder strings.Builder

	if len(vr.Errors) > 0 {
		builder.WriteString("❌ Validation Errors:\n")
		for _, err := range vr.Errors {
			builder.WriteString(fmt.Sprintf("  • %s: %s\n", err.Field, err.Message))
			for _, suggestion := range err.Suggestions {
				builder.WriteString(fmt.Sprintf("    💡 %s\n", suggestion))
			}
		}
		builder.WriteString("\n")
	}

	if len(vr.Warnings) > 0 {
		builder.WriteString("⚠️  Validation Warnings:\n")
		for _, warning := range vr.Warnings {
			builder.WriteString(fmt.Sprintf("  • %s: %s\n", warning.Field, warning.Message))
			for _, suggestion := range warning.Suggestions {
				builder.WriteString(fmt.Sprintf("    💡 %s\n", suggestion))
			}
		}
	}

	return builder.String()
}

func (vr *ValidationResult) addError(field string, value interface{}, message string, suggestions ...string) {
	vr.Errors = append(vr.Errors, ValidationError{
		Field:       field,
		Value:       value,
		Message:     message,
		Suggestions: suggestions,
	})
}

func (vr *ValidationResult) addWarning(field string, value interface{}, message string, suggestions ...string) {
	vr.Warnings = append(vr.Warnings, ValidationError{
		Field:       field,
		Value:       value,
		Message:     message,
		Suggestions: suggestions,
	})
}

// ValidateConfigWithDetails performs comprehensive validation with detailed feedback
func ValidateConfigWithDetails(config *Config) *ValidationResult {
	result := &ValidationResult{
		Valid:    true,
		Errors:   []ValidationError{},
		Warnings: []ValidationError{},
	}

	validateServerConfigDetails(&config.Server, result)
	validateLoaderConfigDetails(&config.Loader, result)
	validatePreloadConfigDetails(&config.Preload, result)
	validateModulesDetails(config, result)
	validateRoutesDetails(config, result)
	validateLoggingConfigDetails(&config.Logging, result)

	result.Valid = !result.HasErrors()

	return result
}

func validateServerConfigDetails(config *ServerConfig, result *ValidationResult) {
	// Allow 0 for system-assigned ports in testing
	if config.Port < 0 || config.Port > 65535 {
		result.addError("server.port", config.Port,
			fmt.Sprintf("port %d is not in valid range 0-65535", config.Port),
			"Use a port between 1024-65535 for non-privileged access")
	}

	if config.Host != "" {
		if err := validateHostname(config.Host); err != nil {
			result.addError("server.host", config.Host, err.Error(),
				"Use localhost, an IP address or a plain hostname")
		}
	}

	if config.ShutdownTimeout < 0 {
		result.addError("server.shutdown_timeout", config.ShutdownTimeout, "must not be negative")
	}
}

func validateLoaderConfigDetails(config *LoaderConfig, result *ValidationResult) {
	if config.Timeout < 0 {
		result.addError("loader.timeout", config.Timeout, "must not be negative",
			"Use 0 to disable the load timeout")
	}

	if config.MaxModuleSize < 0 {
		result.addError("loader.max_module_size", config.MaxModuleSize, "must not be negative")
	}

	if config.BaseURL != "" {
		u, err := url.Parse(config.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			result.addError("loader.base_url", config.BaseURL, "must be an absolute http or https URL",
				"Example: https://cdn.example.com/modules/")
		}
		return
	}

	if err := validatePath(config.ModulesDir); err != nil {
		result.addError("loader.modules_dir", config.ModulesDir, err.Error())
		return
	}
	if !pathExists(config.ModulesDir) {
		result.addWarning("loader.modules_dir", config.ModulesDir, "directory does not exist",
			fmt.Sprintf("Create it with: mkdir -p %s", config.ModulesDir))
	}
}

func validatePreloadConfigDetails(config *PreloadConfig, result *ValidationResult) {
	name := strings.ToLower(strings.TrimSpace(config.Strategy))
	if name != "" && !contains(preload.Names(), name) {
		result.addError("preload.strategy", config.Strategy,
			fmt.Sprintf("unknown preload strategy %q", config.Strategy),
			"Available strategies: "+strings.Join(preload.Names(), ", "))
	}

	if config.Concurrency < 0 {
		result.addError("preload.concurrency", config.Concurrency, "must not be negative",
			fmt.Sprintf("Use 0 for the default of %d", preload.DefaultConcurrency))
	}

	if config.MinNetwork != "" {
		if _, err := signal.ParseNetworkClass(config.MinNetwork); err != nil {
			result.addError("preload.min_network", config.MinNetwork, err.Error(),
				"Use one of: offline, slow-2g, 2g, 3g, 4g")
		}
	}

	if config.Delay < 0 {
		result.addError("preload.delay", config.Delay, "must not be negative")
	}
	if config.Stagger < 0 {
		result.addError("preload.stagger", config.Stagger, "must not be negative")
	}

	switch name {
	case preload.StrategyTagFiltered, preload.StrategySignalAware:
		if len(config.AllowTags) == 0 {
			result.addWarning("preload.allow_tags", config.AllowTags,
				"empty allow-list: nothing will be preloaded",
				"Add tags such as [common] or use strategy none")
		}
	}

	if config.SignalFile != "" {
		if err := validatePath(config.SignalFile); err != nil {
			result.addError("preload.signal_file", config.SignalFile, err.Error())
		} else if name != preload.StrategySignalAware {
			result.addWarning("preload.signal_file", config.SignalFile,
				"signal file is only consulted by the signal-aware strategy")
		}
	}
}

var moduleKeyRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._/-]*$`)

func validateModulesDetails(config *Config, result *ValidationResult) {
	if len(config.Modules) == 0 {
		result.addWarning("modules", nil, "no modules configured")
		return
	}

	seen := make(map[string]int, len(config.Modules))
	for i, m := range config.Modules {
		field := fmt.Sprintf("modules[%d]", i)

		if !moduleKeyRegex.MatchString(m.Key) {
			result.addError(field+".key", m.Key, "key must be non-empty and contain only letters, digits, '.', '_', '/' or '-'")
		} else if prev, dup := seen[m.Key]; dup {
			result.addError(field+".key", m.Key,
				fmt.Sprintf("duplicate module key, first declared at modules[%d]", prev))
		} else {
			seen[m.Key] = i
		}

		if strings.TrimSpace(m.Source) == "" {
			result.addError(field+".source", m.Source, "source is required")
		} else if config.Loader.BaseURL == "" {
			if err := validatePath(m.Source); err != nil {
				result.addError(field+".source", m.Source, err.Error())
			} else if filepath.IsAbs(m.Source) {
				result.addError(field+".source", m.Source, "source must be relative to loader.modules_dir")
			} else if pathExists(config.Loader.ModulesDir) && !pathExists(filepath.Join(config.Loader.ModulesDir, m.Source)) {
				result.addWarning(field+".source", m.Source, "file not found in modules directory",
					"The module will fail to load until the file exists")
			}
		}

		for _, tag := range m.Tags {
			if strings.TrimSpace(tag) == "" {
				result.addError(field+".tags", m.Tags, "tags must not be empty")
				break
			}
		}
	}
}

func validateRoutesDetails(config *Config, result *ValidationResult) {
	paths := make(map[string]bool, len(config.Routes))
	for i, r := range config.Routes {
		field := fmt.Sprintf("routes[%d]", i)

		if strings.TrimSpace(r.Path) == "" {
			result.addError(field+".path", r.Path, "path is required", "Use / for the root route")
		} else if paths[r.Path] {
			result.addError(field+".path", r.Path, "duplicate route path")
		}
		paths[r.Path] = true

		if _, ok := config.Module(r.Module); !ok {
			result.addError(field+".module", r.Module, "route targets an unknown module",
				"Declare the module under modules or fix the key")
		}
	}
}

func validateLoggingConfigDetails(config *LoggingConfig, result *ValidationResult) {
	if _, err := logging.ParseLevel(config.Level); err != nil {
		result.addError("logging.level", config.Level, err.Error(),
			"Use one of: debug, info, warn, error")
	}

	switch config.Format {
	case "", "text", "json":
	default:
		result.addError("logging.format", config.Format, "format must be text or json")
	}

	if config.File != "" {
		if err := validatePath(config.File); err != nil {
			result.addError("logging.file", config.File, err.Error())
		}
	}
}

// Helper validation functions

func validateHostname(host string) error {
	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\"}
	for _, char := range dangerousChars {
		if strings.Contains(host, char) {
			return fmt.Errorf("contains dangerous character: %s", char)
		}
	}

	if net.ParseIP(host) != nil {
		return nil
	}

	if host == "localhost" {
		return nil
	}

	hostnameRegex := regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)
	if !hostnameRegex.MatchString(host) {
		return fmt.Errorf("invalid hostname format")
	}

	return nil
}

// validatePath validates a file path for security
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}

	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return fmt.Errorf("path contains traversal: %s", path)
		}
	}

	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'"}
	for _, char := range dangerousChars {
		if strings.Contains(path, char) {
			return fmt.Errorf("path contains dangerous character: %s", char)
		}
	}

	return nil
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
