package collections

import (
	"sort"
	"sync"

	"github.com/grovetools/cryoview/errors"
)

// Registry looks collections up by name.
type Registry struct {
	mu    sync.RWMutex
	sites map[string]Collection
}

func NewRegistry() *Registry {
	return &Registry{sites: make(map[string]Collection)}
}

// Register adds c, replacing any collection with the same name.
func (r *Registry) Register(c Collection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sites[c.Name()] = c
}

func (r *Registry) Get(name string) (Collection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.sites[name]
	if !ok {
		return nil, errors.UnknownCollection(name)
	}
	return c, nil
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.sites))
	for name := range r.sites {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Default returns a registry holding every built-in collection.
func Default() *Registry {
	r := NewRegistry()
	for _, c := range []Collection{
		ActiveRecordings(),
		ArchivedRecordings(),
		TargetArchives(),
		ThreadDumps(),
		HeapDumps(),
		EventTemplates(),
		Rules(),
		Targets(),
	} {
		r.Register(c)
	}
	return r
}
