package entity

import (
	"fmt"
	"sort"
	"sync"
)

// Factory returns a new, empty entity of one kind.
type Factory func() Model

type registration struct {
	schema  *Schema
	factory Factory
}

var (
	registryMu sync.RWMutex
	registry   = map[string]registration{}
)

// Register makes a kind constructible by name. Registering a kind twice
// replaces the earlier factory.
func Register(s *Schema, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[s.Kind] = registration{schema: s, factory: f}
}

// NewOf returns a new entity of the named kind.
func NewOf(kind string) (Model, error) {
	registryMu.RLock()
	r, ok := registry[kind]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return r.factory(), nil
}

// SchemaOf returns the schema registered for kind.
func SchemaOf(kind string) (*Schema, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	r, ok := registry[kind]
	return r.schema, ok
}

// Kinds lists the registered kinds in sorted order.
func Kinds() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	kinds := make([]string, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
