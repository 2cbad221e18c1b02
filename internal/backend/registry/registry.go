// Package registry provides backend factory registration and lookup.
//
// # Adding a New Backend
//
// Each backend package exposes an explicit registration function:
//
//	func RegisterFactory() {
//	    if registry.IsRegistered(BackendType) {
//	        return
//	    }
//	    registry.RegisterFactory(registry.BackendFactory{
//	        Type:           BackendType,
//	        Description:    "...",
//	        Create:         CreateFromConfig,
//	        ValidateConfig: ValidateConfig,
//	    })
//	}
//
// internal/registration wires the built-in backends so that no package relies
// on init() side effects.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/core/ports"
	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/pkg/config"
)

// BackendFactory defines how to create a backend of a specific type.
type BackendFactory struct {
	// Type is the backend type identifier used in configuration
	// (e.g., "textcompletion", "echo")
	Type string

	// Description provides a human-readable description of the backend
	Description string

	// Create instantiates a new backend from configuration.
	Create func(cfg config.BackendConfig) (ports.Invoker, error)

	// ValidateConfig performs backend-specific configuration validation.
	// Optional: if nil, no additional validation is performed.
	ValidateConfig func(cfg config.BackendConfig) error
}

var (
	factoryMu   sync.RWMutex
	factoryMap  = make(map[string]BackendFactory)
	factoryList []BackendFactory
)

// RegisterFactory registers a backend factory for a specific type.
// Panics if a factory with the same type is already registered.
func RegisterFactory(f BackendFactory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()

	if f.Type == "" {
		panic("backend factory type cannot be empty")
	}
	if f.Create == nil {
		panic(fmt.Sprintf("backend factory %q must have a Create function", f.Type))
	}

	if _, exists := factoryMap[f.Type]; exists {
		panic(fmt.Sprintf("backend factory %q already registered", f.Type))
	}

	factoryMap[f.Type] = f
	factoryList = append(factoryList, f)
}

// GetFactory returns the factory for a backend type, if registered.
func GetFactory(backendType string) (BackendFactory, bool) {
	factoryMu.RLock()
	defer factoryMu.RUnlock()

	f, ok := factoryMap[backendType]
	return f, ok
}

// ListBackendTypes returns all registered backend type names, sorted.
func ListBackendTypes() []string {
	factoryMu.RLock()
	defer factoryMu.RUnlock()

	types := make([]string, 0, len(factoryList))
	for _, f := range factoryList {
		types = append(types, f.Type)
	}
	sort.Strings(types)
	return types
}

// IsRegistered returns true if a backend type is registered.
func IsRegistered(backendType string) bool {
	_, ok := GetFactory(backendType)
	return ok
}

// Create builds a backend using the registered factory for cfg.Type.
func Create(cfg config.BackendConfig) (ports.Invoker, error) {
	f, ok := GetFactory(cfg.Type)
	if !ok {
		return nil, fmt.Errorf("unknown backend type: %s (registered types: %v)", cfg.Type, ListBackendTypes())
	}

	if f.ValidateConfig != nil {
		if err := f.ValidateConfig(cfg); err != nil {
			return nil, fmt.Errorf("invalid configuration for backend type %s: %w", cfg.Type, err)
		}
	}

	return f.Create(cfg)
}

// CreateAll builds every configured backend keyed by name.
func CreateAll(configs []config.BackendConfig) (map[string]ports.Invoker, error) {
	backends := make(map[string]ports.Invoker, len(configs))
	for _, cfg := range configs {
		b, err := Create(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create backend %s: %w", cfg.Name, err)
		}
		backends[cfg.Name] = b
	}
	return backends, nil
}

// ClearFactories removes all registered factories (for testing only).
func ClearFactories() {
	factoryMu.Lock()
	defer factoryMu.Unlock()

	factoryMap = make(map[string]BackendFactory)
	factoryList = nil
}
