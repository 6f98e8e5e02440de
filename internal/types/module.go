// Package types provides common type definitions shared by the registry,
// loader, preload scheduler and navigation gate. Keeping them here avoids
// circular dependencies between those packages.
package types

import (
	"context"
	"time"
)

// ModuleHandle is the loaded form of a module. Its shape is defined by the
// transport layer that produced it; the loader only stores and hands it out.
type ModuleHandle interface{}

// LoadFunc fetches a module. It is supplied by the transport layer and is
// never inspected beyond being invoked.
type LoadFunc func(ctx context.Context) (ModuleHandle, error)

// ModuleDescriptor describes a lazily loadable module. Descriptors are
// registered once at startup and never mutated afterwards.
type ModuleDescriptor struct {
	// Key uniquely identifies the module (e.g. "dashboard", "reports")
	Key string
	// Load fetches the module's handle
	Load LoadFunc
	// Tags classify the module for tag-based preload strategies
	Tags []string
	// Eager marks modules loaded in the foreground during bootstrap
	Eager bool
	// Source is the transport-level location the module was configured with
	Source string
}

// HasTag reports whether the descriptor carries the given tag.
func (d ModuleDescriptor) HasTag(tag string) bool {
	for _, t := range d.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// HasAnyTag reports whether the descriptor's tags intersect allow.
func (d ModuleDescriptor) HasAnyTag(allow []string) bool {
	for _, tag := range allow {
		if d.HasTag(tag) {
			return true
		}
	}
	return false
}

// ModuleState is the lifecycle state of a module record.
type ModuleState string

const (
	StateNotLoaded ModuleState = "not_loaded"
	StateLoading   ModuleState = "loading"
	StateLoaded    ModuleState = "loaded"
	StateFailed    ModuleState = "failed"
)

// String returns the string representation of the state
func (s ModuleState) String() string {
	return string(s)
}

// ModuleSnapshot is a read-only copy of a module record.
type ModuleSnapshot struct {
	Key          string        `json:"key"`
	State        ModuleState   `json:"state"`
	Handle       ModuleHandle  `json:"-"`
	Err          error         `json:"-"`
	Attempts     int           `json:"attempts"`
	LoadedAt     time.Time     `json:"loaded_at,omitempty"`
	LastDuration time.Duration `json:"last_duration"`
}

// ErrorMessage returns the last error message, or an empty string.
func (s ModuleSnapshot) ErrorMessage() string {
	if s.Err == nil {
		return ""
	}
	return s.Err.Error()
}

// PreloadTask is a single preload candidate produced by a strategy and
// consumed once by the scheduler.
type PreloadTask struct {
	Key      string
	Priority int
	// NotBefore defers submission until the given time; zero means now
	NotBefore time.Time
}
