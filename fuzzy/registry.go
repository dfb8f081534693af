// Package fuzzy holds similarity hashes for fetched content.
package fuzzy

import (
	"sort"
	"strings"
)

// Hasher computes a fuzzy hash over in-memory content.
type Hasher interface {
	Name() string
	HashBytes(data []byte) (string, error)
}

var registry = map[string]Hasher{}

// Register adds a fuzzy hasher to the registry.
func Register(hasher Hasher) {
	if hasher == nil {
		return
	}
	registry[strings.ToLower(hasher.Name())] = hasher
}

// Lookup returns a registered hasher by name.
func Lookup(name string) (Hasher, bool) {
	hasher, ok := registry[strings.ToLower(name)]
	return hasher, ok
}

// Available returns the sorted names of registered hashers.
func Available() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Select resolves names to hashers, skipping unknown ones. With no names
// and enabled set, it falls back to tlsh.
func Select(names []string, enabled bool) (hashers []Hasher, unknown []string) {
	for _, name := range names {
		h, ok := Lookup(name)
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		hashers = append(hashers, h)
	}
	if len(hashers) == 0 && enabled {
		if h, ok := Lookup("tlsh"); ok {
			hashers = append(hashers, h)
		}
	}
	return hashers, unknown
}
