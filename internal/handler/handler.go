// Package handler holds destination-specific hooks used while transforming
// records: custom mapping resolution and index preloading.
package handler

import (
	"context"
	"sync"

	"github.com/igualparatodos/multiwoven/internal/core"
	"github.com/igualparatodos/multiwoven/internal/lookup"
)

// CustomMappingInput is what a handler sees for one custom_mapping rule.
type CustomMappingInput struct {
	Sync    *core.SyncConfig
	Rule    *core.MappingRule
	Record  map[string]any
	Run     *core.Run
	Cache   *lookup.Cache
	Preload lookup.PreloadIndexes
}

// Handler resolves custom mapping rules for one destination connector.
type Handler interface {
	// TransformCustomMapping returns the value for the rule's path. A false
	// second result leaves the path unset.
	TransformCustomMapping(ctx context.Context, in *CustomMappingInput) (any, bool)

	// BuildCustomMappingIndexes preloads every index the sync's custom
	// mapping rules will need.
	BuildCustomMappingIndexes(ctx context.Context, sync *core.SyncConfig, run *core.Run, cache *lookup.Cache) (lookup.PreloadIndexes, error)
}

// Noop is the handler for connectors without custom mapping support.
type Noop struct{}

func (Noop) TransformCustomMapping(context.Context, *CustomMappingInput) (any, bool) {
	return nil, false
}

func (Noop) BuildCustomMappingIndexes(context.Context, *core.SyncConfig, *core.Run, *lookup.Cache) (lookup.PreloadIndexes, error) {
	return lookup.PreloadIndexes{}, nil
}

// Registry maps connector names to handlers.
type Registry struct {
	handlers map[string]Handler
	mu       sync.RWMutex
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds a handler for the given connector name.
// Panics if the name is already registered.
func (r *Registry) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[name]; exists {
		panic("destination handler already registered: " + name)
	}
	r.handlers[name] = h
}

// HandlerFor returns the handler for name, or Noop when none is registered.
func (r *Registry) HandlerFor(name string) Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if h, ok := r.handlers[name]; ok {
		return h
	}
	return Noop{}
}

// Has reports whether name has a registered handler.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[name]
	return ok
}

var defaultRegistry = NewRegistry()

// DefaultRegistry returns the global handler registry.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// Register adds a handler to the default registry.
func Register(name string, h Handler) {
	defaultRegistry.Register(name, h)
}
