// Package version reports how the modloader binary was built.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

// Set at build time with -ldflags "-X github.com/conneroisu/modloader/internal/version.Version=..."
var (
	Version   = "dev"
	GitCommit = ""
	BuildTime = ""
)

// BuildInfo describes the running binary
type BuildInfo struct {
	Version   string    `json:"version" yaml:"version"`
	GitCommit string    `json:"git_commit,omitempty" yaml:"git_commit,omitempty"`
	Dirty     bool      `json:"dirty,omitempty" yaml:"dirty,omitempty"`
	BuildTime time.Time `json:"build_time,omitempty" yaml:"build_time,omitempty"`
	GoVersion string    `json:"go_version" yaml:"go_version"`
	Platform  string    `json:"platform" yaml:"platform"`
}

// vcsInfo is the subset of debug.BuildInfo settings we report
type vcsInfo struct {
	module   string
	revision string
	modified bool
	time     string
}

func readVCS() vcsInfo {
	var v vcsInfo
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return v
	}
	if info.Main.Version != "(devel)" {
		v.module = info.Main.Version
	}
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			v.revision = setting.Value
		case "vcs.modified":
			v.modified = setting.Value == "true"
		case "vcs.time":
			v.time = setting.Value
		}
	}
	return v
}

// GetBuildInfo merges the ldflags values with what the Go toolchain embedded.
// ldflags win when set.
func GetBuildInfo() *BuildInfo {
	return buildInfo(readVCS())
}

func buildInfo(vcs vcsInfo) *BuildInfo {
	info := &BuildInfo{
		Version:   Version,
		GitCommit: GitCommit,
		Dirty:     vcs.modified,
		BuildTime: parseBuildTime(BuildTime),
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}

	if info.Version == "" || info.Version == "dev" {
		switch {
		case vcs.module != "":
			info.Version = vcs.module
		case len(vcs.revision) >= 7:
			info.Version = "dev-" + vcs.revision[:7]
		default:
			info.Version = "dev"
		}
	}
	if info.GitCommit == "" {
		info.GitCommit = vcs.revision
	}
	if info.BuildTime.IsZero() {
		info.BuildTime = parseBuildTime(vcs.time)
	}
	return info
}

// ShortCommit returns the abbreviated commit hash, or "" when unknown
func (b *BuildInfo) ShortCommit() string {
	if len(b.GitCommit) > 7 {
		return b.GitCommit[:7]
	}
	return b.GitCommit
}

// IsRelease reports whether the binary was built from a tagged version
func (b *BuildInfo) IsRelease() bool {
	return b.Version != "dev" && !strings.HasPrefix(b.Version, "dev-")
}

// Short renders the one-line form shown by the health endpoint
func (b *BuildInfo) Short() string {
	commit := b.ShortCommit()
	if commit == "" || strings.HasSuffix(b.Version, commit) {
		return b.Version
	}
	return fmt.Sprintf("%s (%s)", b.Version, commit)
}

// Detailed renders every known field, one per line
func (b *BuildInfo) Detailed() string {
	lines := []string{"Version: " + b.Version}
	if b.GitCommit != "" {
		commit := b.GitCommit
		if b.Dirty {
			commit += " (dirty)"
		}
		lines = append(lines, "Commit: "+commit)
	}
	if !b.BuildTime.IsZero() {
		lines = append(lines, "Built: "+b.BuildTime.Format(time.RFC3339))
	}
	lines = append(lines, "Go: "+b.GoVersion, "Platform: "+b.Platform)
	return strings.Join(lines, "\n")
}

// GetShortVersion is shorthand for GetBuildInfo().Short()
func GetShortVersion() string {
	return GetBuildInfo().Short()
}

// GetDetailedVersion is shorthand for GetBuildInfo().Detailed()
func GetDetailedVersion() string {
	return GetBuildInfo().Detailed()
}

func parseBuildTime(value string) time.Time {
	if value == "" || value == "unknown" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}
