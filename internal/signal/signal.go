// Package signal describes the runtime conditions preload strategies consult
// before fetching ahead of time: network class, idleness and data saving.
package signal

import (
	"fmt"
	"strings"
	"sync"
)

// NetworkClass is an ordered estimate of connection quality
type NetworkClass int

const (
	NetworkOffline NetworkClass = iota
	NetworkSlow2G
	Network2G
	Network3G
	Network4G
)

var networkNames = map[NetworkClass]string{
	NetworkOffline: "offline",
	NetworkSlow2G:  "slow-2g",
	Network2G:      "2g",
	Network3G:      "3g",
	Network4G:      "4g",
}

// String returns the string representation of the network class
func (n NetworkClass) String() string {
	if name, ok := networkNames[n]; ok {
		return name
	}
	return "unknown"
}

// AtLeast reports whether n is as good as or better than min
func (n NetworkClass) AtLeast(min NetworkClass) bool {
	return n >= min
}

// ParseNetworkClass converts a name such as "3g" to a NetworkClass
func ParseNetworkClass(s string) (NetworkClass, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for class, n := range networkNames {
		if n == name {
			return class, nil
		}
	}
	return NetworkOffline, fmt.Errorf("unknown network class %q", s)
}

// MarshalText implements encoding.TextMarshaler
func (n NetworkClass) MarshalText() ([]byte, error) {
	return []byte(n.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (n *NetworkClass) UnmarshalText(text []byte) error {
	class, err := ParseNetworkClass(string(text))
	if err != nil {
		return err
	}
	*n = class
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler for gopkg.in/yaml.v2
func (n *NetworkClass) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var name string
	if err := unmarshal(&name); err != nil {
		return err
	}
	return n.UnmarshalText([]byte(name))
}

// MarshalYAML implements yaml.Marshaler for gopkg.in/yaml.v2
func (n NetworkClass) MarshalYAML() (interface{}, error) {
	return n.String(), nil
}

// Signal is a snapshot of the runtime conditions
type Signal struct {
	Network  NetworkClass `yaml:"network" json:"network"`
	Idle     bool         `yaml:"idle" json:"idle"`
	SaveData bool         `yaml:"save_data" json:"save_data"`
}

// Default is the signal assumed when nothing better is known: a fast, idle
// connection with data saving off.
func Default() Signal {
	return Signal{Network: Network4G, Idle: true}
}

// Favorable reports whether preloading may proceed under s. When it may not,
// the returned reason names the first condition that failed.
func (s Signal) Favorable(minNetwork NetworkClass, requireIdle bool) (bool, string) {
	switch {
	case s.Network == NetworkOffline:
		return false, "offline"
	case !s.Network.AtLeast(minNetwork):
		return false, fmt.Sprintf("network %s below %s", s.Network, minNetwork)
	case s.SaveData:
		return false, "save-data enabled"
	case requireIdle && !s.Idle:
		return false, "not idle"
	}
	return true, ""
}

// Source supplies the current signal
type Source interface {
	Current() Signal
}

// StaticSource returns a fixed signal that can be replaced at runtime
type StaticSource struct {
	signal Signal
	mutex  sync.RWMutex
}

// NewStaticSource creates a source reporting s
func NewStaticSource(s Signal) *StaticSource {
	return &StaticSource{signal: s}
}

// Current returns the stored signal
func (s *StaticSource) Current() Signal {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.signal
}

// Set replaces the stored signal
func (s *StaticSource) Set(signal Signal) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.signal = signal
}
