package tool

import (
	"sync"

	"github.com/rs/zerolog"
)

// Factory constructs a plugin instance. Factories are enumerated at compile
// time (see internal/plugins); the registry never performs introspection.
type Factory func() (Plugin, error)

// Candidate pairs a name with its factory for discovery.
type Candidate struct {
	Name    string
	Factory Factory
}

// Registry holds the set of known plugins indexed by unique name. It is
// written once at startup and read on every dispatch, so a single RWMutex is
// enough. Registration order is preserved for List.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]Plugin
	order   []string
	log     zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		plugins: make(map[string]Plugin),
		log:     log.With().Str("component", "tool-registry").Logger(),
	}
}

// Register adds a plugin under its descriptor name. A name collision
// overwrites the previous entry: discovery order across plugin sources is
// not contractually ordered, so last-registered-wins is the tie-break and is
// surfaced as a warning rather than an error.
func (r *Registry) Register(plugin Plugin) {
	desc := plugin.Metadata()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.plugins[desc.Name]; exists {
		r.log.Warn().Str("tool", desc.Name).Msg("duplicate tool registration, overwriting previous entry")
	} else {
		r.order = append(r.order, desc.Name)
	}
	r.plugins[desc.Name] = plugin
}

// Lookup returns the plugin registered under name.
func (r *Registry) Lookup(name string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	plugin, ok := r.plugins[name]
	return plugin, ok
}

// List returns a snapshot of all descriptors in registration order.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	descriptors := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		descriptors = append(descriptors, r.plugins[name].Metadata())
	}
	return descriptors
}

// Discover registers every candidate from an already-enumerated list. A
// factory construction failure is logged and the remaining candidates
// continue; it never aborts discovery.
func (r *Registry) Discover(candidates []Candidate) {
	for _, candidate := range candidates {
		plugin, err := candidate.Factory()
		if err != nil {
			r.log.Error().Err(err).Str("tool", candidate.Name).Msg("plugin construction failed, skipping")
			continue
		}
		r.Register(plugin)
	}
}
