package version

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func withBuildVars(t *testing.T, version, commit, built string) {
	t.Helper()
	oldVersion, oldCommit, oldTime := Version, GitCommit, BuildTime
	Version, GitCommit, BuildTime = version, commit, built
	t.Cleanup(func() {
		Version, GitCommit, BuildTime = oldVersion, oldCommit, oldTime
	})
}

func TestBuildInfo_LdflagsWin(t *testing.T) {
	withBuildVars(t, "v1.2.0", "0123456789abcdef", "2026-03-01T10:00:00Z")

	info := buildInfo(vcsInfo{module: "v0.0.1", revision: "fedcba9876543210", time: "2020-01-01T00:00:00Z"})
	assert.Equal(t, "v1.2.0", info.Version)
	assert.Equal(t, "0123456789abcdef", info.GitCommit)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), info.BuildTime)
	assert.True(t, info.IsRelease())
	assert.Equal(t, "v1.2.0 (0123456)", info.Short())
}

func TestBuildInfo_FallsBackToVCS(t *testing.T) {
	withBuildVars(t, "dev", "", "")

	info := buildInfo(vcsInfo{revision: "fedcba9876543210", modified: true, time: "2025-12-24T08:30:00Z"})
	assert.Equal(t, "dev-fedcba9", info.Version)
	assert.Equal(t, "fedcba9876543210", info.GitCommit)
	assert.False(t, info.IsRelease())
	assert.Equal(t, "dev-fedcba9", info.Short())
	assert.False(t, info.BuildTime.IsZero())

	detailed := info.Detailed()
	assert.Contains(t, detailed, "Commit: fedcba9876543210 (dirty)")
	assert.Contains(t, detailed, "Built: 2025-12-24T08:30:00Z")
}

func TestBuildInfo_NothingKnown(t *testing.T) {
	withBuildVars(t, "", "", "unknown")

	info := buildInfo(vcsInfo{})
	assert.Equal(t, "dev", info.Version)
	assert.Empty(t, info.ShortCommit())
	assert.Equal(t, "dev", info.Short())
	assert.True(t, info.BuildTime.IsZero())

	lines := strings.Split(info.Detailed(), "\n")
	assert.Equal(t, "Version: dev", lines[0])
	assert.NotContains(t, info.Detailed(), "Commit:")
	assert.Contains(t, info.Platform, "/")
}

func TestParseBuildTime(t *testing.T) {
	tests := []struct {
		input string
		zero  bool
	}{
		{"2026-01-02T03:04:05Z", false},
		{"2026-01-02T03:04:05", false},
		{"2026-01-02 03:04:05", false},
		{"yesterday", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.zero, parseBuildTime(tt.input).IsZero())
		})
	}
}
