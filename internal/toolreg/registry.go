package toolreg

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Registry is a tool-id -> capability-bundle mapping, populated once at
// startup and immutable thereafter, per §4.2.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*compiledSchema
	built bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*compiledSchema)}
}

// Register compiles tool's schema and adds it to the registry. Returns an
// error if the schema fails to compile, or if Freeze has already been
// called.
func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.built {
		return fmt.Errorf("toolreg: registry is frozen, cannot register %s", t.ID())
	}
	cs, err := compile(t)
	if err != nil {
		return fmt.Errorf("toolreg: compiling schema for %s: %w", t.ID(), err)
	}
	r.tools[t.ID()] = cs
	return nil
}

// Freeze marks the registry immutable, per §4.2's "populated once at
// startup" contract. Register calls after Freeze fail.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.built = true
}

// Get resolves a tool by exact id match.
func (r *Registry) Get(id string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cs, ok := r.tools[id]
	if !ok {
		return nil, false
	}
	return cs.tool, true
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	_, ok := r.Get(id)
	return ok
}

// IDs returns every registered tool id, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.tools))
	for id := range r.tools {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Descriptor is the wire shape a registered tool advertises to a model
// provider.
type Descriptor struct {
	ID          string          `json:"id"`
	Description string          `json:"description"`
	Schema      json.RawMessage `json:"parameters_schema"`
}

// Descriptors returns every registered tool's advertisable shape.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.tools))
	for _, cs := range r.tools {
		out = append(out, Descriptor{ID: cs.tool.ID(), Description: cs.tool.Description(), Schema: cs.tool.Schema()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) validate(id string, args json.RawMessage) error {
	r.mu.RLock()
	cs, ok := r.tools[id]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("toolreg: unknown tool %s", id)
	}
	return cs.validate(args)
}
