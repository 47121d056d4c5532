// Package collector provides background workers that drive the simulated world.
package collector

import (
	"context"

	"github.com/grovetools/cryoview/internal/devserver/store"
)

// Collector is a background worker that observes the world and emits updates.
type Collector interface {
	// Name returns the collector's name for logging.
	Name() string

	// Run blocks until ctx is canceled. It reads the store (thread-safe) and
	// emits changes on updates; the engine applies them.
	Run(ctx context.Context, st *store.Store, updates chan<- store.Update) error
}

// emit sends u unless ctx is done.
func emit(ctx context.Context, updates chan<- store.Update, u store.Update) bool {
	select {
	case updates <- u:
		return true
	case <-ctx.Done():
		return false
	}
}
