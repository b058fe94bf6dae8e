package core

import (
	"fmt"
	"sort"
	"sync"
)

// FeedInfo contains display information about a feed.
type FeedInfo struct {
	Key         string `json:"key" yaml:"key"`               // Unique identifier: "students"
	Group       string `json:"group" yaml:"group"`           // Sheet family: "Fees", "Fleet"
	Label       string `json:"label" yaml:"label"`           // Display name: "Students (fee sheet)"
	Sheet       string `json:"sheet,omitempty" yaml:"sheet"` // Default worksheet; empty means the first one
	Description string `json:"description,omitempty" yaml:"description"`
}

// FeedDefinition contains everything needed to import one kind of sheet.
type FeedDefinition struct {
	Info   FeedInfo `json:"info" yaml:"info"`
	Layout Layout   `json:"layout" yaml:"layout"`
}

var (
	registry   = make(map[string]FeedDefinition)
	registryMu sync.RWMutex
)

// Register adds a feed definition to the registry.
// Panics if the key is taken or the layout is invalid.
func Register(def FeedDefinition) {
	if err := TryRegister(def); err != nil {
		panic(err.Error())
	}
}

// TryRegister adds a feed definition, returning an error instead of panicking.
// Used for feeds loaded from files at runtime.
func TryRegister(def FeedDefinition) error {
	if def.Info.Key == "" {
		return fmt.Errorf("feed key is required")
	}
	if err := def.Layout.Validate(); err != nil {
		return fmt.Errorf("feed %s: %w", def.Info.Key, err)
	}
	if def.Info.Label == "" {
		def.Info.Label = def.Info.Key
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[def.Info.Key]; exists {
		return fmt.Errorf("feed already registered: %s", def.Info.Key)
	}

	registry[def.Info.Key] = def
	return nil
}

// Get returns a feed definition by key.
// Returns false if not found.
func Get(key string) (FeedDefinition, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	def, ok := registry[key]
	return def, ok
}

// Lookup is Get with an error wrapping ErrUnknownFeed.
func Lookup(key string) (FeedDefinition, error) {
	def, ok := Get(key)
	if !ok {
		return FeedDefinition{}, fmt.Errorf("%w: %s", ErrUnknownFeed, key)
	}
	return def, nil
}

// All returns all registered feed definitions.
// Sorted by group then by key for consistent ordering.
func All() []FeedDefinition {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]FeedDefinition, 0, len(registry))
	for _, def := range registry {
		result = append(result, def)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Info.Group != result[j].Info.Group {
			return result[i].Info.Group < result[j].Info.Group
		}
		return result[i].Info.Key < result[j].Info.Key
	})

	return result
}

// ByGroup returns all feed definitions for a specific group.
// Sorted by key for consistent ordering.
func ByGroup(group string) []FeedDefinition {
	registryMu.RLock()
	defer registryMu.RUnlock()

	var result []FeedDefinition
	for _, def := range registry {
		if def.Info.Group == group {
			result = append(result, def)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Info.Key < result[j].Info.Key
	})

	return result
}

// Groups returns all unique group names.
// Sorted alphabetically.
func Groups() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	seen := make(map[string]bool)
	for _, def := range registry {
		seen[def.Info.Group] = true
	}

	groups := make([]string, 0, len(seen))
	for g := range seen {
		groups = append(groups, g)
	}

	sort.Strings(groups)
	return groups
}

// FeedCount returns the number of registered feeds.
func FeedCount() int {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return len(registry)
}

// Clear removes all registered feeds.
// Primarily useful for testing.
func Clear() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]FeedDefinition)
}
