// Package voices catalogs the voice profiles found under a storage root. It is pure
// metadata: scanning never opens per-voice files or loads models.
package voices

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

const dirPermissions = 0o750

// Profile is one voice directory.
type Profile struct {
	Name string
	Path string
}

// Registry holds the catalog from the latest scan.
type Registry struct {
	root string

	mu       sync.RWMutex
	profiles map[string]Profile
}

// New creates an empty registry rooted at root.
func New(root string) *Registry {
	return &Registry{
		root:     root,
		profiles: make(map[string]Profile),
	}
}

// Root returns the storage root.
func (r *Registry) Root() string {
	return r.root
}

// Scan replaces the catalog with one profile per immediate subdirectory of the root,
// creating the root when it is missing. Hidden directories are ignored.
func (r *Registry) Scan() error {
	err := os.MkdirAll(r.root, dirPermissions)
	if err != nil {
		return fmt.Errorf("failed to create voices directory %s: %w", r.root, err)
	}

	entries, err := os.ReadDir(r.root)
	if err != nil {
		return fmt.Errorf("failed to read voices directory %s: %w", r.root, err)
	}

	next := make(map[string]Profile, len(entries))

	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		next[entry.Name()] = Profile{
			Name: entry.Name(),
			Path: filepath.Join(r.root, entry.Name()),
		}
	}

	r.mu.Lock()
	r.profiles = next
	r.mu.Unlock()

	return nil
}

// List returns the voice names in lexicographic order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.profiles))
	for name := range r.profiles {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Get returns the profile for name.
func (r *Registry) Get(name string) (Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	profile, ok := r.profiles[name]

	return profile, ok
}
