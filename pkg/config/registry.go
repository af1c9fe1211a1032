package config

import (
	"fmt"
	"strings"
	"sync"
)

// Module represents an object built from a configuration section.
type Module interface {
	// GetName returns the module name (usually the section suffix).
	GetName() string
}

// ModuleFactory creates a module instance from a config section.
type ModuleFactory func(cfg *Config, section *Section) (Module, error)

// Registry maps section name prefixes to factories, in the manner of
// Klipper's load_config_prefix.
type Registry struct {
	mu       sync.RWMutex
	prefixes map[string]ModuleFactory
	loaded   map[string]Module
}

// NewRegistry creates a new module registry.
func NewRegistry() *Registry {
	return &Registry{
		prefixes: make(map[string]ModuleFactory),
		loaded:   make(map[string]Module),
	}
}

// RegisterPrefix adds a factory for sections starting with prefix.
// Example: RegisterPrefix("buffer_stepper ", f) matches [buffer_stepper feeder].
func (r *Registry) RegisterPrefix(prefix string, factory ModuleFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prefixes[prefix] = factory
}

// LoadModules builds a module for every matching section, in file order.
func (r *Registry) LoadModules(cfg *Config) ([]Module, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var modules []Module
	for _, name := range cfg.GetSectionNames() {
		if m, ok := r.loaded[name]; ok {
			modules = append(modules, m)
			continue
		}
		factory := r.factoryLocked(name)
		if factory == nil {
			continue
		}
		sec, err := cfg.GetSection(name)
		if err != nil {
			return nil, err
		}
		m, err := factory(cfg, sec)
		if err != nil {
			return nil, fmt.Errorf("failed to load module [%s]: %w", name, err)
		}
		r.loaded[name] = m
		modules = append(modules, m)
	}
	return modules, nil
}

func (r *Registry) factoryLocked(sectionName string) ModuleFactory {
	for prefix, factory := range r.prefixes {
		if strings.HasPrefix(sectionName, prefix) {
			return factory
		}
	}
	return nil
}

// GetModule returns a loaded module by section name, or nil if not found.
func (r *Registry) GetModule(section string) Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loaded[section]
}
