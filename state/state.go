// Package state persists per-user UI preferences between runs, currently
// the filters last applied to each collection.
package state

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/grovetools/cryoview/pkg/filter"
	"github.com/grovetools/cryoview/pkg/paths"
)

// State is the on-disk document.
type State struct {
	// Filters is keyed by Key(collection, scope).
	Filters map[string]filter.PredicateSet `yaml:"filters,omitempty"`
}

// Store reads and writes a state file.
type Store struct {
	path string
	mu   sync.Mutex
}

// Open returns a store backed by path.
func Open(path string) *Store {
	return &Store{path: path}
}

// Default returns the store at the user's state directory.
func Default() *Store {
	return Open(paths.StateFilePath())
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

// Key identifies a collection opened at a scope.
func Key(collection, scope string) string {
	if scope == "" {
		return collection
	}
	return collection + "@" + scope
}

// Load loads the state from the state file.
// Returns an empty state if the file doesn't exist.
func (s *Store) Load() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() (State, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return State{Filters: map[string]filter.PredicateSet{}}, nil
		}
		return State{}, fmt.Errorf("read state file: %w", err)
	}

	var st State
	if err := yaml.Unmarshal(data, &st); err != nil {
		return State{}, fmt.Errorf("parse state file: %w", err)
	}
	if st.Filters == nil {
		st.Filters = map[string]filter.PredicateSet{}
	}
	return st, nil
}

func (s *Store) save(st State) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	data, err := yaml.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	return nil
}

// Filters returns the saved filters for a collection, or nil.
func (s *Store) Filters(collection, scope string) (filter.PredicateSet, error) {
	st, err := s.Load()
	if err != nil {
		return nil, err
	}
	set, ok := st.Filters[Key(collection, scope)]
	if !ok {
		return nil, nil
	}
	return set.Clone(), nil
}

// SaveFilters records set for a collection. An inactive set removes the entry.
func (s *Store) SaveFilters(collection, scope string, set filter.PredicateSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.load()
	if err != nil {
		return err
	}
	key := Key(collection, scope)
	if set.Active() {
		st.Filters[key] = set.Clone()
	} else {
		delete(st.Filters, key)
	}
	return s.save(st)
}
