package preload

import (
	"context"
	"testing"
	"time"

	"github.com/conneroisu/modloader/internal/errors"
	"github.com/conneroisu/modloader/internal/signal"
	"github.com/conneroisu/modloader/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopLoad(context.Context) (types.ModuleHandle, error) {
	return "handle", nil
}

func sampleModules() []types.ModuleDescriptor {
	return []types.ModuleDescriptor{
		{Key: "shell", Load: noopLoad, Tags: []string{"common"}, Eager: true},
		{Key: "dashboard", Load: noopLoad, Tags: []string{"common"}},
		{Key: "reports", Load: noopLoad, Tags: []string{"rare"}},
		{Key: "settings", Load: noopLoad},
	}
}

func keysOf(tasks []types.PreloadTask) []string {
	keys := make([]string, 0, len(tasks))
	for _, task := range tasks {
		keys = append(keys, task.Key)
	}
	return keys
}

func TestEagerAll(t *testing.T) {
	tasks := EagerAll{}.SelectCandidates(sampleModules(), signal.Default())

	assert.Equal(t, []string{"dashboard", "reports", "settings"}, keysOf(tasks))
	for _, task := range tasks {
		assert.True(t, task.NotBefore.IsZero())
	}
	// Priority is the registration index
	assert.Equal(t, 1, tasks[0].Priority)
	assert.Equal(t, 3, tasks[2].Priority)

	// The signal is irrelevant
	offline := EagerAll{}.SelectCandidates(sampleModules(), signal.Signal{Network: signal.NetworkOffline})
	assert.Equal(t, tasks, offline)
}

func TestTagFiltered(t *testing.T) {
	tests := []struct {
		name     string
		allow    []string
		expected []string
	}{
		{"empty allow-list", nil, []string{}},
		{"common", []string{"common"}, []string{"shell", "dashboard"}},
		{"rare and common", []string{"rare", "common"}, []string{"shell", "dashboard", "reports"}},
		{"unmatched", []string{"beta"}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tasks := TagFiltered{Allow: tt.allow}.SelectCandidates(sampleModules(), signal.Default())
			assert.Equal(t, tt.expected, keysOf(tasks))
		})
	}
}

func TestTagFiltered_Skipped(t *testing.T) {
	skips := TagFiltered{Allow: []string{"rare"}}.Skipped(sampleModules(), signal.Default())

	require.Len(t, skips, 3)
	assert.Equal(t, Skip{Key: "shell", Reason: "no allowed tag"}, skips[0])
}

func TestSignalAware(t *testing.T) {
	strategy := SignalAware{
		Allow:       []string{"common"},
		MinNetwork:  signal.Network3G,
		RequireIdle: true,
	}

	tests := []struct {
		name     string
		signal   signal.Signal
		expected []string
	}{
		{"favorable", signal.Signal{Network: signal.Network4G, Idle: true}, []string{"shell", "dashboard"}},
		{"offline", signal.Signal{Network: signal.NetworkOffline, Idle: true}, []string{}},
		{"slow", signal.Signal{Network: signal.Network2G, Idle: true}, []string{}},
		{"save data", signal.Signal{Network: signal.Network4G, Idle: true, SaveData: true}, []string{}},
		{"busy", signal.Signal{Network: signal.Network4G}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tasks := strategy.SelectCandidates(sampleModules(), tt.signal)
			assert.Equal(t, tt.expected, keysOf(tasks))
		})
	}
}

func TestSignalAware_SkippedReportsSignal(t *testing.T) {
	strategy := SignalAware{Allow: []string{"common"}}

	skips := strategy.Skipped(sampleModules(), signal.Signal{Network: signal.NetworkOffline})
	require.Len(t, skips, 4)
	for _, skip := range skips {
		assert.Equal(t, "offline", skip.Reason)
	}

	skips = strategy.Skipped(sampleModules(), signal.Default())
	assert.Equal(t, []Skip{
		{Key: "reports", Reason: "no allowed tag"},
		{Key: "settings", Reason: "no allowed tag"},
	}, skips)
}

func TestDelayed(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	strategy := Delayed{
		Inner:   EagerAll{},
		Initial: time.Second,
		Step:    100 * time.Millisecond,
		Now:     func() time.Time { return now },
	}

	tasks := strategy.SelectCandidates(sampleModules(), signal.Default())
	require.Len(t, tasks, 3)
	assert.Equal(t, now.Add(time.Second), tasks[0].NotBefore)
	assert.Equal(t, now.Add(1200*time.Millisecond), tasks[2].NotBefore)
	assert.Equal(t, "eager-all+delayed", strategy.Name())

	// Delayed passes through the inner strategy's skip reasons
	delayedTags := Delayed{Inner: TagFiltered{Allow: []string{"rare"}}}
	assert.Len(t, delayedTags.Skipped(sampleModules(), signal.Default()), 3)
	assert.Nil(t, strategy.Skipped(sampleModules(), signal.Default()))
}

func TestNone(t *testing.T) {
	assert.Empty(t, None{}.SelectCandidates(sampleModules(), signal.Default()))
}

func TestNewStrategy(t *testing.T) {
	tests := []struct {
		name     string
		opts     Options
		expected string
		wantErr  bool
	}{
		{"default", Options{}, "eager-all", false},
		{"eager-all", Options{Name: "eager-all"}, "eager-all", false},
		{"tag-filtered", Options{Name: "Tag-Filtered", AllowTags: []string{"common"}}, "tag-filtered", false},
		{"signal-aware", Options{Name: "signal-aware", MinNetwork: "3g"}, "signal-aware", false},
		{"none", Options{Name: "none", Delay: time.Second}, "none", false},
		{"delayed", Options{Name: "eager-all", Stagger: time.Second}, "eager-all+delayed", false},
		{"bad network", Options{Name: "signal-aware", MinNetwork: "6g"}, "", true},
		{"unknown", Options{Name: "aggressive"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			strategy, err := NewStrategy(tt.opts)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsConfigError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, strategy.Name())
		})
	}
}

func TestNewStrategy_SignalAwareFields(t *testing.T) {
	strategy, err := NewStrategy(Options{
		Name:        "signal-aware",
		AllowTags:   []string{"common"},
		MinNetwork:  "3g",
		RequireIdle: true,
	})
	require.NoError(t, err)

	aware, ok := strategy.(SignalAware)
	require.True(t, ok)
	assert.Equal(t, signal.Network3G, aware.MinNetwork)
	assert.True(t, aware.RequireIdle)
	assert.Equal(t, []string{"common"}, aware.Allow)
}

func TestNames(t *testing.T) {
	for _, name := range Names() {
		_, err := NewStrategy(Options{Name: name})
		assert.NoError(t, err, name)
	}
}
