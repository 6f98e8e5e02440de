package app

import (
	"time"

	"github.com/conneroisu/modloader/internal/fetch"
	"github.com/conneroisu/modloader/internal/types"
)

// ModuleInfo joins a module's registration with its current load record
type ModuleInfo struct {
	Key            string            `json:"key" yaml:"key"`
	Source         string            `json:"source" yaml:"source"`
	Tags           []string          `json:"tags" yaml:"tags,omitempty"`
	Eager          bool              `json:"eager" yaml:"eager,omitempty"`
	State          types.ModuleState `json:"state" yaml:"state"`
	Attempts       int               `json:"attempts" yaml:"attempts,omitempty"`
	Error          string            `json:"error,omitempty" yaml:"error,omitempty"`
	LoadedAt       *time.Time        `json:"loaded_at,omitempty" yaml:"loaded_at,omitempty"`
	LastDurationMs int64             `json:"last_duration_ms" yaml:"last_duration_ms,omitempty"`
	Hash           string            `json:"hash,omitempty" yaml:"hash,omitempty"`
	Size           int64             `json:"size,omitempty" yaml:"size,omitempty"`
}

// Modules describes every registered module in registration order
func (a *App) Modules() []ModuleInfo {
	descriptors := a.Registry.Snapshot()
	infos := make([]ModuleInfo, 0, len(descriptors))
	for _, d := range descriptors {
		infos = append(infos, a.describe(d))
	}
	return infos
}

// Module describes a single registered module
func (a *App) Module(key string) (ModuleInfo, bool) {
	d, ok := a.Registry.Get(key)
	if !ok {
		return ModuleInfo{}, false
	}
	return a.describe(d), true
}

// Snapshots returns a load record for every registered module, including
// those never requested
func (a *App) Snapshots() []types.ModuleSnapshot {
	keys := a.Registry.Keys()
	snapshots := make([]types.ModuleSnapshot, 0, len(keys))
	for _, key := range keys {
		snapshot, _ := a.Loader.Snapshot(key)
		snapshots = append(snapshots, snapshot)
	}
	return snapshots
}

func (a *App) describe(d types.ModuleDescriptor) ModuleInfo {
	snapshot, _ := a.Loader.Snapshot(d.Key)

	info := ModuleInfo{
		Key:            d.Key,
		Source:         d.Source,
		Tags:           d.Tags,
		Eager:          d.Eager,
		State:          snapshot.State,
		Attempts:       snapshot.Attempts,
		Error:          snapshot.ErrorMessage(),
		LastDurationMs: snapshot.LastDuration.Milliseconds(),
	}
	if !snapshot.LoadedAt.IsZero() {
		loadedAt := snapshot.LoadedAt
		info.LoadedAt = &loadedAt
	}
	if module, ok := snapshot.Handle.(*fetch.Module); ok && module != nil {
		info.Hash = module.Hash
		info.Size = module.Size
	}
	return info
}
