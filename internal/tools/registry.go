// ABOUTME: Thread-safe registry of MCP tools with JSON Schema validation at registration.
// ABOUTME: Preserves registration order for tools/list and rejects duplicate names.

package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// ErrToolRegistered indicates a tool with the same name already exists.
var ErrToolRegistered = errors.New("tool already registered")

// ErrToolNotFound indicates the named tool is not registered.
var ErrToolNotFound = errors.New("tool not found")

// Spec describes a tool as published by tools/list.
type Spec struct {
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	InputSchema  json.RawMessage `json:"inputSchema"`
	OutputSchema json.RawMessage `json:"outputSchema,omitempty"`

	// Hidden tools stay dispatchable but are not published by tools/list.
	Hidden bool `json:"-"`
}

type registeredTool struct {
	spec    Spec
	handler Handler
}

// Registry maintains the set of dispatchable tools.
type Registry struct {
	mu     sync.RWMutex
	order  []string
	tools  map[string]*registeredTool
	logger *slog.Logger
}

// NewRegistry creates an empty tool registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		tools:  make(map[string]*registeredTool),
		logger: logger.With("component", "tools"),
	}
}

// Register validates and stores a tool. Schemas are compiled once here so a
// malformed schema fails startup instead of the first tools/list.
func (r *Registry) Register(spec Spec, handler Handler) error {
	if spec.Name == "" {
		return fmt.Errorf("tool name must not be empty")
	}
	if handler == nil {
		return fmt.Errorf("tool %q has no handler", spec.Name)
	}
	if len(spec.InputSchema) > 0 {
		if _, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(spec.InputSchema)); err != nil {
			return fmt.Errorf("compiling input schema for %q: %w", spec.Name, err)
		}
	}
	if len(spec.OutputSchema) > 0 {
		if _, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(spec.OutputSchema)); err != nil {
			return fmt.Errorf("compiling output schema for %q: %w", spec.Name, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[spec.Name]; exists {
		return fmt.Errorf("%w: %s", ErrToolRegistered, spec.Name)
	}

	r.tools[spec.Name] = &registeredTool{spec: spec, handler: handler}
	r.order = append(r.order, spec.Name)

	r.logger.Debug("tool registered", "tool", spec.Name, "hidden", spec.Hidden)

	return nil
}

// Lookup returns the handler for a tool name.
func (r *Registry) Lookup(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	return t.handler, true
}

// List returns the published tool specs in registration order.
// Hidden tools are excluded.
func (r *Registry) List() []Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	specs := make([]Spec, 0, len(r.order))
	for _, name := range r.order {
		if t := r.tools[name]; !t.spec.Hidden {
			specs = append(specs, t.spec)
		}
	}
	return specs
}

// Names returns every dispatchable tool name in registration order,
// including hidden tools.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}
