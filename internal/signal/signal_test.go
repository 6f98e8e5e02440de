package signal

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"
)

func TestNetworkClassOrdering(t *testing.T) {
	order := []NetworkClass{NetworkOffline, NetworkSlow2G, Network2G, Network3G, Network4G}
	for i := 1; i < len(order); i++ {
		assert.True(t, order[i].AtLeast(order[i-1]), "%s >= %s", order[i], order[i-1])
		assert.False(t, order[i-1].AtLeast(order[i]), "%s < %s", order[i-1], order[i])
	}
}

func TestParseNetworkClass(t *testing.T) {
	tests := []struct {
		input    string
		expected NetworkClass
		wantErr  bool
	}{
		{"offline", NetworkOffline, false},
		{"slow-2g", NetworkSlow2G, false},
		{"2G", Network2G, false},
		{" 3g ", Network3G, false},
		{"4g", Network4G, false},
		{"5g", NetworkOffline, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			class, err := ParseNetworkClass(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, class)
		})
	}
}

func TestSignal_Favorable(t *testing.T) {
	tests := []struct {
		name        string
		signal      Signal
		min         NetworkClass
		requireIdle bool
		ok          bool
		reason      string
	}{
		{"fast idle", Signal{Network: Network4G, Idle: true}, Network3G, true, true, ""},
		{"offline", Signal{Network: NetworkOffline, Idle: true}, NetworkOffline, false, false, "offline"},
		{"too slow", Signal{Network: Network2G}, Network3G, false, false, "network 2g below 3g"},
		{"save data", Signal{Network: Network4G, SaveData: true}, Network3G, false, false, "save-data enabled"},
		{"busy", Signal{Network: Network4G}, Network3G, true, false, "not idle"},
		{"busy allowed", Signal{Network: Network4G}, Network3G, false, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reason := tt.signal.Favorable(tt.min, tt.requireIdle)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestSignal_Encoding(t *testing.T) {
	s := Signal{Network: Network3G, Idle: true}

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{"network":"3g","idle":true,"save_data":false}`, string(data))

	var decoded Signal
	require.NoError(t, yaml.Unmarshal([]byte("network: slow-2g\nsave_data: true\n"), &decoded))
	assert.Equal(t, Signal{Network: NetworkSlow2G, SaveData: true}, decoded)

	assert.Error(t, yaml.Unmarshal([]byte("network: warp\n"), &decoded))
}

func TestStaticSource(t *testing.T) {
	source := NewStaticSource(Default())
	assert.Equal(t, Default(), source.Current())

	source.Set(Signal{Network: NetworkOffline})
	assert.Equal(t, NetworkOffline, source.Current().Network)
}

func TestFileSource_MissingFileUsesFallback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signal.yml")

	source, err := NewFileSource(path, Default(), nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), source.Current())
	assert.Equal(t, path, source.Path())
}

func TestFileSource_ReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signal.yml")
	require.NoError(t, os.WriteFile(path, []byte("network: 2g\nidle: false\n"), 0o644))

	source, err := NewFileSource(path, Default(), nil)
	require.NoError(t, err)
	assert.Equal(t, Signal{Network: Network2G}, source.Current())
}

func TestFileSource_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signal.yml")
	require.NoError(t, os.WriteFile(path, []byte("network: [\n"), 0o644))

	_, err := NewFileSource(path, Default(), nil)
	assert.Error(t, err)
}

func TestFileSource_ReloadKeepsPreviousOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signal.yml")
	require.NoError(t, os.WriteFile(path, []byte("network: 3g\n"), 0o644))

	source, err := NewFileSource(path, Default(), nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("network: warp\n"), 0o644))
	assert.Error(t, source.Reload())
	assert.Equal(t, Network3G, source.Current().Network)
}

func TestFileSource_Watch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signal.yml")
	require.NoError(t, os.WriteFile(path, []byte("network: 4g\nidle: true\n"), 0o644))

	source, err := NewFileSource(path, Default(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, source.Watch(ctx, 10*time.Millisecond))
	defer source.Close()

	require.NoError(t, os.WriteFile(path, []byte("network: offline\n"), 0o644))

	assert.Eventually(t, func() bool {
		return source.Current().Network == NetworkOffline
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFileSource_WatchRevertsToFallbackOnRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signal.yml")
	require.NoError(t, os.WriteFile(path, []byte("network: 2g\nsave_data: true\n"), 0o644))

	fallback := Signal{Network: Network3G, Idle: true}
	source, err := NewFileSource(path, fallback, nil)
	require.NoError(t, err)
	require.Equal(t, Signal{Network: Network2G, Idle: true, SaveData: true}, source.Current())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, source.Watch(ctx, 10*time.Millisecond))
	defer source.Close()

	require.NoError(t, os.Remove(path))
	assert.Eventually(t, func() bool {
		return source.Current() == fallback
	}, 2*time.Second, 10*time.Millisecond)

	// Recreating the file picks it up again
	require.NoError(t, os.WriteFile(path, []byte("network: slow-2g\n"), 0o644))
	assert.Eventually(t, func() bool {
		return source.Current().Network == NetworkSlow2G
	}, 2*time.Second, 10*time.Millisecond)
}
