package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/conneroisu/modloader/internal/config"
	"github.com/conneroisu/modloader/internal/errors"
	"github.com/conneroisu/modloader/internal/types"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const testConfigTemplate = `
loader:
  modules_dir: %MODULES%
  timeout: 5s
preload:
  strategy: tag-filtered
  allow_tags: [common]
modules:
  - {key: dashboard, source: dashboard.js, tags: [common], eager: true}
  - {key: reports, source: reports.js, tags: [common]}
  - {key: archive, source: archive.js, tags: [rare]}
  - {key: missing, source: missing.js, tags: [rare]}
routes:
  - {path: /, module: dashboard}
  - {path: /reports/monthly, module: reports}
logging:
  level: error
`

// setupProject writes a modules directory and a config file, and points the
// global viper instance at it
func setupProject(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	modulesDir := filepath.Join(dir, "modules")
	require.NoError(t, os.MkdirAll(modulesDir, 0o755))
	for _, name := range []string{"dashboard.js", "reports.js", "archive.js"} {
		content := "export default '" + strings.TrimSuffix(name, ".js") + "'"
		require.NoError(t, os.WriteFile(filepath.Join(modulesDir, name), []byte(content), 0o644))
	}

	configPath := filepath.Join(dir, ".modloader.yml")
	content := strings.ReplaceAll(testConfigTemplate, "%MODULES%", modulesDir)
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))

	viper.Reset()
	viper.SetConfigFile(configPath)
	require.NoError(t, viper.ReadInConfig())
	t.Cleanup(viper.Reset)

	return configPath
}

func newTestCommand() (*cobra.Command, *bytes.Buffer) {
	var buf bytes.Buffer
	c := &cobra.Command{}
	c.SetOut(&buf)
	return c, &buf
}

func withFormat(t *testing.T, flags *OutputFlags, format string) {
	t.Helper()
	old := flags.Format
	flags.Format = format
	t.Cleanup(func() { flags.Format = old })
}

func TestListCommand_Table(t *testing.T) {
	setupProject(t)
	withFormat(t, listFlags, FormatTable)

	c, out := newTestCommand()
	require.NoError(t, runList(c, nil))

	text := out.String()
	assert.Contains(t, text, "KEY")
	for _, key := range []string{"dashboard", "reports", "archive", "missing"} {
		assert.Contains(t, text, key)
	}
	assert.Contains(t, text, "Not Loaded")
	assert.Contains(t, text, "/reports/monthly")
	assert.Less(t, strings.Index(text, "dashboard"), strings.Index(text, "reports"))
}

func TestListCommand_JSONFilteredByTag(t *testing.T) {
	setupProject(t)
	withFormat(t, listFlags, FormatJSON)
	listTags = []string{"rare"}
	defer func() { listTags = nil }()

	c, out := newTestCommand()
	require.NoError(t, runList(c, nil))

	var result listOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	require.Len(t, result.Modules, 2)
	assert.Equal(t, "archive", result.Modules[0].Key)
	assert.Equal(t, "missing", result.Modules[1].Key)
	assert.Len(t, result.Routes, 2)
}

func TestListCommand_YAMLEagerOnly(t *testing.T) {
	setupProject(t)
	withFormat(t, listFlags, FormatYAML)
	listEagerOnly = true
	defer func() { listEagerOnly = false }()

	c, out := newTestCommand()
	require.NoError(t, runList(c, nil))

	var result listOutput
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &result))
	require.Len(t, result.Modules, 1)
	assert.Equal(t, "dashboard", result.Modules[0].Key)
	assert.True(t, result.Modules[0].Eager)
}

func TestListCommand_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, ".modloader.yml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
preload:
  strategy: sometimes
modules:
  - {key: dashboard, source: dashboard.js}
`), 0o644))

	viper.Reset()
	viper.SetConfigFile(configPath)
	require.NoError(t, viper.ReadInConfig())
	defer viper.Reset()

	c, _ := newTestCommand()
	err := runList(c, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load configuration")
}

func TestResolveCommand(t *testing.T) {
	setupProject(t)
	withFormat(t, resolveFlags, FormatJSON)

	c, out := newTestCommand()
	require.NoError(t, runResolve(c, []string{"/reports/monthly"}))

	var result resolveOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	assert.Equal(t, "reports", result.Module)
	assert.Equal(t, types.StateLoaded, result.State)
	assert.Zero(t, result.Attempts)
	assert.NotEmpty(t, result.Hash)
	assert.Equal(t, int64(len("export default 'reports'")), result.Size)
	assert.Empty(t, result.Error)
}

func TestResolveCommand_UnknownRoute(t *testing.T) {
	setupProject(t)
	withFormat(t, resolveFlags, FormatTable)

	c, out := newTestCommand()
	err := runResolve(c, []string{"/billing"})
	require.Error(t, err)
	assert.True(t, errors.IsRouteMisconfigured(err))
	assert.Contains(t, out.String(), "billing")
	assert.Contains(t, out.String(), "ERR_ROUTE_MISCONFIGURED")
}

func TestResolveCommand_LoadFailure(t *testing.T) {
	setupProject(t)
	withFormat(t, resolveFlags, FormatJSON)

	c, out := newTestCommand()
	err := runResolve(c, []string{"missing"})
	require.Error(t, err)
	assert.True(t, errors.IsLoadError(err))

	var result resolveOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	assert.Equal(t, types.StateFailed, result.State)
	assert.NotEmpty(t, result.Error)
}

func TestPreloadCommand_TagFiltered(t *testing.T) {
	setupProject(t)
	withFormat(t, preloadFlags, FormatJSON)

	c, out := newTestCommand()
	addPreloadFlags(c)
	require.NoError(t, runPreload(c, nil))

	var result preloadOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	assert.Equal(t, "tag-filtered", result.Strategy)
	assert.Equal(t, 2, result.Stats.Candidates)
	assert.Equal(t, 1, result.Stats.Succeeded)
	assert.False(t, result.Stats.Running)

	states := map[string]types.ModuleState{}
	for _, m := range result.Modules {
		states[m.Key] = m.State
	}
	assert.Equal(t, types.StateLoaded, states["dashboard"])
	assert.Equal(t, types.StateLoaded, states["reports"])
	assert.Equal(t, types.StateNotLoaded, states["archive"])
	assert.Equal(t, types.StateNotLoaded, states["missing"])

	assert.Contains(t, result.Skipped, skipEntry{Key: "archive", Reason: "no allowed tag"})
	assert.Contains(t, result.Skipped, skipEntry{Key: "dashboard", Reason: "already loaded"})
	assert.Equal(t, int64(2), result.Metrics.Succeeded)
}

func TestPreloadCommand_SimulatedSignal(t *testing.T) {
	setupProject(t)
	withFormat(t, preloadFlags, FormatTable)

	c, out := newTestCommand()
	addPreloadFlags(c)
	require.NoError(t, c.Flags().Set("strategy", "signal-aware"))
	require.NoError(t, c.Flags().Set("network", "2g"))
	require.NoError(t, c.Flags().Set("save-data", "true"))
	defer addPreloadFlags(&cobra.Command{})

	require.NoError(t, runPreload(c, nil))

	text := out.String()
	assert.Contains(t, text, "signal-aware")
	assert.Contains(t, text, "network=2g")
	assert.Contains(t, text, "Candidates:  0")
	assert.Contains(t, text, "save-data enabled")
	assert.Contains(t, text, "Not Loaded")
}

func TestPreloadCommand_RejectsUnknownStrategy(t *testing.T) {
	setupProject(t)

	c, _ := newTestCommand()
	addPreloadFlags(c)
	require.NoError(t, c.Flags().Set("strategy", "sometimes"))
	defer addPreloadFlags(&cobra.Command{})

	err := runPreload(c, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sometimes")
}

func TestPreloadFlags_RejectUnknownNetwork(t *testing.T) {
	c, _ := newTestCommand()
	addPreloadFlags(c)
	defer addPreloadFlags(&cobra.Command{})

	assert.Error(t, c.Flags().Set("network", "5g"))
	assert.NoError(t, c.Flags().Set("network", "slow-2g"))
}

func TestVersionCommand(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		withFormat(t, versionFlags, FormatJSON)
		c, out := newTestCommand()
		require.NoError(t, runVersionCommand(c, nil))

		var info map[string]interface{}
		require.NoError(t, json.Unmarshal(out.Bytes(), &info))
		assert.Equal(t, runtime.Version(), info["go_version"])
		assert.NotEmpty(t, info["version"])
	})

	t.Run("short", func(t *testing.T) {
		withFormat(t, versionFlags, FormatTable)
		versionShort = true
		defer func() { versionShort = false }()

		c, out := newTestCommand()
		require.NoError(t, runVersionCommand(c, nil))
		assert.Equal(t, 1, strings.Count(out.String(), "\n"))
	})

	t.Run("detailed", func(t *testing.T) {
		withFormat(t, versionFlags, FormatTable)
		versionDetailed = true
		defer func() { versionDetailed = false }()

		c, out := newTestCommand()
		require.NoError(t, runVersionCommand(c, nil))
		assert.Contains(t, out.String(), "Build type:")
		assert.Contains(t, out.String(), "Go: "+runtime.Version())
	})
}

func TestValidateFormat(t *testing.T) {
	for _, format := range []string{"table", "json", "yaml", "JSON"} {
		assert.NoError(t, ValidateFormat(format), format)
	}
	assert.Error(t, ValidateFormat("csv"))
	assert.Error(t, ValidateFormat(""))
}

func TestValidatePort(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"8080", false},
		{"0", false},
		{"65535", false},
		{"65536", true},
		{"-1", true},
		{"http", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if tt.wantErr {
				assert.Error(t, ValidatePort(tt.input))
			} else {
				assert.NoError(t, ValidatePort(tt.input))
			}
		})
	}
}

func TestAddOutputFlags(t *testing.T) {
	c := &cobra.Command{}
	flags := AddOutputFlags(c)

	assert.Equal(t, FormatTable, flags.Format)
	assert.Error(t, c.Flags().Set("output", "xml"))
	assert.Equal(t, FormatTable, flags.Format)
	require.NoError(t, c.Flags().Set("output", "yaml"))
	assert.Equal(t, FormatYAML, flags.Format)
}

func TestNewLogger_CopiesToLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "modloader.log")

	cfg := config.Default()
	cfg.Logging.Level = "warn"
	cfg.Logging.File = path

	logger, closeLog, err := newLogger(cfg)
	require.NoError(t, err)
	logger.WithComponent("loader").Warn(context.Background(), nil, "Slow origin", "module", "reports")
	logger.Info(context.Background(), "below the configured level")
	require.NoError(t, closeLog())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "Slow origin", entry["msg"])
	assert.Equal(t, "loader", entry["component"])
	assert.Equal(t, "reports", entry["module"])
}

func TestNewLogger_UnwritableLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.File = filepath.Join(t.TempDir(), "missing", "modloader.log")

	_, _, err := newLogger(cfg)
	assert.Error(t, err)
}

func TestInitConfig_EnvConfigFile(t *testing.T) {
	configPath := setupProject(t)
	viper.Reset()

	oldCfgFile := cfgFile
	cfgFile = ""
	defer func() { cfgFile = oldCfgFile }()

	t.Setenv("MODLOADER_CONFIG_FILE", configPath)
	t.Setenv("MODLOADER_SERVER_PORT", "9123")
	initConfig()

	assert.Equal(t, configPath, viper.ConfigFileUsed())
	assert.Equal(t, "tag-filtered", viper.GetString("preload.strategy"))
	assert.Equal(t, 9123, viper.GetInt("server.port"))
}

func TestRootCommand_Subcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "list", "resolve", "preload", "version"} {
		assert.True(t, names[want], want)
	}
}
