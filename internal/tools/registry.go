package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"agentmux/pkg/logging"
)

// Tool is the executable unit agents invoke. Implementations wrap
// remote MCP tools, built-in operations, or test fakes.
type Tool interface {
	// Name returns the registered (possibly prefixed) tool name.
	Name() string
	// Description returns the human-readable tool description.
	Description() string
	// Schema returns the tool's parameter schema.
	Schema() ParameterSchema
	// Execute runs the tool with the given arguments.
	Execute(ctx context.Context, args map[string]interface{}) (string, error)
}

// Definition is a registered tool blueprint. Factory builds a fresh
// Tool instance per use, keeping any per-invocation state out of the
// registry.
type Definition struct {
	Name        string
	Description string
	Schema      ParameterSchema
	Factory     func() Tool
}

// Registry is a thread-safe catalog of tool definitions keyed by name.
type Registry struct {
	mu          sync.RWMutex
	definitions map[string]*Definition
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		definitions: make(map[string]*Definition),
	}
}

// Register stores a definition, overwriting any existing entry with the
// same name. Overwrites are logged so duplicate registrations from
// overlapping server prefixes are visible.
func (r *Registry) Register(def *Definition) error {
	if def == nil {
		return fmt.Errorf("definition must not be nil")
	}
	if def.Name == "" {
		return fmt.Errorf("tool definition is missing a name")
	}
	if def.Factory == nil {
		return fmt.Errorf("tool %q: definition is missing a factory", def.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.definitions[def.Name]; exists {
		logging.Warn("ToolRegistry", "Overwriting existing tool %q", def.Name)
	}
	r.definitions[def.Name] = def
	return nil
}

// Unregister removes a definition by name. Removing an absent tool is a
// no-op.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.definitions, name)
}

// Get returns the definition for a tool name, or false when absent.
func (r *Registry) Get(name string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.definitions[name]
	return def, ok
}

// List returns every definition, sorted by name.
func (r *Registry) List() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Definition, 0, len(r.definitions))
	for _, def := range r.definitions {
		result = append(result, def)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}

// Create builds a fresh Tool instance for a registered name.
func (r *Registry) Create(name string) (Tool, error) {
	def, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
	return def.Factory(), nil
}
