package scenario

import (
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"
)

var (
	// ErrDuplicateScenario is returned when a name is registered twice.
	ErrDuplicateScenario = errors.New("duplicate scenario")

	// ErrNotFound is returned for an unknown scenario name.
	ErrNotFound = errors.New("scenario not found")

	// ErrRegistryLocked is returned when registering during an active run.
	ErrRegistryLocked = errors.New("scenario registry is locked")

	// ErrInvalidScenario is returned for a definition missing required fields.
	ErrInvalidScenario = errors.New("invalid scenario")
)

// Registry stores scenario definitions in registration order.
//
// Registry is safe for concurrent use. While locked (a run is active) it
// rejects registrations, so iterating it during a run always observes the
// same sequence.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]*Definition
	order  []*Definition
	locked bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Definition)}
}

// Register adds def. The registry keeps its own copy.
func (r *Registry) Register(def Definition) error {
	if strings.TrimSpace(def.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidScenario)
	}
	if def.Endpoint == "" {
		return fmt.Errorf("%w: scenario %q: endpoint is required", ErrInvalidScenario, def.Name)
	}
	if def.Method == "" {
		return fmt.Errorf("%w: scenario %q: method is required", ErrInvalidScenario, def.Name)
	}
	if def.PayloadSizeHint < 0 || def.Options.Retries < 0 || def.Options.Timeout < 0 || def.Options.Delay < 0 {
		return fmt.Errorf("%w: scenario %q: negative option", ErrInvalidScenario, def.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.locked {
		return fmt.Errorf("%w: cannot register %q", ErrRegistryLocked, def.Name)
	}
	if _, exists := r.byName[def.Name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateScenario, def.Name)
	}

	stored := def.clone()
	stored.Method = strings.ToUpper(stored.Method)
	r.byName[def.Name] = stored
	r.order = append(r.order, stored)
	return nil
}

// Get returns the definition registered under name.
func (r *Registry) Get(name string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return def, nil
}

// All yields every definition in registration order. The sequence is lazy
// and may be ranged over any number of times.
func (r *Registry) All() iter.Seq[*Definition] {
	return func(yield func(*Definition) bool) {
		for _, def := range r.snapshot() {
			if !yield(def) {
				return
			}
		}
	}
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	defs := r.snapshot()
	names := make([]string, len(defs))
	for i, def := range defs {
		names[i] = def.Name
	}
	return names
}

// Len returns the number of registered definitions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Select returns the definitions named in filter, in registration order.
// An empty filter selects everything.
func (r *Registry) Select(filter []string) ([]*Definition, error) {
	defs := r.snapshot()
	if len(filter) == 0 {
		return defs, nil
	}

	wanted := make(map[string]bool, len(filter))
	for _, name := range filter {
		if _, err := r.Get(name); err != nil {
			return nil, err
		}
		wanted[name] = true
	}

	selected := make([]*Definition, 0, len(wanted))
	for _, def := range defs {
		if wanted[def.Name] {
			selected = append(selected, def)
		}
	}
	return selected, nil
}

// Lock freezes the registry for the duration of a run.
func (r *Registry) Lock() {
	r.mu.Lock()
	r.locked = true
	r.mu.Unlock()
}

// Unlock re-enables registration.
func (r *Registry) Unlock() {
	r.mu.Lock()
	r.locked = false
	r.mu.Unlock()
}

// Locked reports whether a run holds the registry.
func (r *Registry) Locked() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.locked
}

func (r *Registry) snapshot() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Definition(nil), r.order...)
}
