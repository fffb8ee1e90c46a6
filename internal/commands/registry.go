package commands

import (
	"fmt"
	"maps"
	"slices"
	"sync"
)

// Registry maps command names and aliases to commands.
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]Command
	aliases map[string]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName:  make(map[string]Command),
		aliases: make(map[string]string),
	}
}

// Register adds c under its name and aliases.
// A name or alias that is already taken is an error.
func (r *Registry) Register(c Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, key := range append([]string{c.Name()}, c.Aliases()...) {
		if r.taken(key) {
			return fmt.Errorf("command name already registered: %s", key)
		}
	}
	r.byName[c.Name()] = c
	for _, alias := range c.Aliases() {
		r.aliases[alias] = c.Name()
	}
	return nil
}

func (r *Registry) taken(key string) bool {
	_, isName := r.byName[key]
	_, isAlias := r.aliases[key]
	return isName || isAlias
}

// Find looks up a command by name or alias.
func (r *Registry) Find(name string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if primary, ok := r.aliases[name]; ok {
		name = primary
	}
	cmd, ok := r.byName[name]
	return cmd, ok
}

// All returns every command sorted by name.
func (r *Registry) All() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Command, 0, len(r.byName))
	for _, name := range slices.Sorted(maps.Keys(r.byName)) {
		out = append(out, r.byName[name])
	}
	return out
}

// Split separates commands that work on the local store from the rest,
// each group sorted by name.
func (r *Registry) Split() (store, other []Command) {
	for _, c := range r.All() {
		if c.NeedsStore() {
			store = append(store, c)
		} else {
			other = append(other, c)
		}
	}
	return store, other
}

// DefaultRegistry holds the commands registered by this package's init functions.
var DefaultRegistry = NewRegistry()

// Register adds c to DefaultRegistry and panics on a duplicate name.
func Register(c Command) {
	if err := DefaultRegistry.Register(c); err != nil {
		panic(err)
	}
}
