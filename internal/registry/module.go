// Package registry holds the static table of lazily loadable modules.
//
// The registry is populated once at startup, then sealed. After sealing it is
// read-only, so lookups take only a read lock and snapshots are plain copies
// in registration order.
package registry

import (
	"strings"
	"sync"
	"time"

	"github.com/conneroisu/modloader/internal/errors"
	"github.com/conneroisu/modloader/internal/types"
)

// ModuleRegistry maps module keys to their descriptors
type ModuleRegistry struct {
	modules  map[string]*entry
	order    []string
	sealed   bool
	mutex    sync.RWMutex
	watchers []chan RegistryEvent
}

type entry struct {
	descriptor   types.ModuleDescriptor
	index        int
	registeredAt time.Time
}

// RegistryEvent is emitted for every successful registration
type RegistryEvent struct {
	Key       string
	Index     int
	Timestamp time.Time
}

// NewModuleRegistry creates an empty, unsealed registry
func NewModuleRegistry() *ModuleRegistry {
	return &ModuleRegistry{
		modules:  make(map[string]*entry),
		order:    make([]string, 0),
		watchers: make([]chan RegistryEvent, 0),
	}
}

// Register adds a descriptor. Keys must be unique and registration must
// happen before Seal.
func (r *ModuleRegistry) Register(descriptor types.ModuleDescriptor) error {
	key := strings.TrimSpace(descriptor.Key)
	if key == "" {
		return errors.NewInvalidDescriptorError(descriptor.Key, "empty key")
	}
	if key != descriptor.Key {
		return errors.NewInvalidDescriptorError(descriptor.Key, "key has surrounding whitespace")
	}
	if descriptor.Load == nil {
		return errors.NewInvalidDescriptorError(key, "nil load function")
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.sealed {
		return errors.NewRegistrySealedError(key)
	}
	if _, exists := r.modules[key]; exists {
		return errors.NewDuplicateModuleError(key)
	}

	descriptor.Tags = append([]string(nil), descriptor.Tags...)
	e := &entry{
		descriptor:   descriptor,
		index:        len(r.order),
		registeredAt: time.Now(),
	}
	r.modules[key] = e
	r.order = append(r.order, key)

	event := RegistryEvent{Key: key, Index: e.index, Timestamp: e.registeredAt}
	for _, watcher := range r.watchers {
		select {
		case watcher <- event:
		default:
			// Skip if channel is full
		}
	}

	return nil
}

// RegisterAll registers descriptors in order, stopping at the first error
func (r *ModuleRegistry) RegisterAll(descriptors []types.ModuleDescriptor) error {
	for _, descriptor := range descriptors {
		if err := r.Register(descriptor); err != nil {
			return err
		}
	}
	return nil
}

// Seal makes the registry read-only
func (r *ModuleRegistry) Seal() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.sealed = true
	for _, watcher := range r.watchers {
		close(watcher)
	}
	r.watchers = nil
}

// Sealed reports whether Seal has been called
func (r *ModuleRegistry) Sealed() bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return r.sealed
}

// Get retrieves a descriptor by key
func (r *ModuleRegistry) Get(key string) (types.ModuleDescriptor, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	e, exists := r.modules[key]
	if !exists {
		return types.ModuleDescriptor{}, false
	}
	return e.descriptor, true
}

// Has reports whether key is registered
func (r *ModuleRegistry) Has(key string) bool {
	_, ok := r.Get(key)
	return ok
}

// Index returns the registration position of key, or -1
func (r *ModuleRegistry) Index(key string) int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if e, exists := r.modules[key]; exists {
		return e.index
	}
	return -1
}

// Snapshot returns every descriptor in registration order
func (r *ModuleRegistry) Snapshot() []types.ModuleDescriptor {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	result := make([]types.ModuleDescriptor, 0, len(r.order))
	for _, key := range r.order {
		result = append(result, r.modules[key].descriptor)
	}
	return result
}

// Keys returns every registered key in registration order
func (r *ModuleRegistry) Keys() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return append([]string(nil), r.order...)
}

// Watch returns a channel that receives registration events until the
// registry is sealed
func (r *ModuleRegistry) Watch() <-chan RegistryEvent {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	ch := make(chan RegistryEvent, 100)
	if r.sealed {
		close(ch)
		return ch
	}
	r.watchers = append(r.watchers, ch)
	return ch
}

// Count returns the number of registered modules
func (r *ModuleRegistry) Count() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return len(r.modules)
}
