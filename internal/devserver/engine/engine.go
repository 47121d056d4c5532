// Package engine orchestrates the development server's collectors.
package engine

import (
	"context"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/grovetools/cryoview/internal/devserver/collector"
	"github.com/grovetools/cryoview/internal/devserver/store"
)

// Engine manages and runs all collectors.
type Engine struct {
	store      *store.Store
	collectors []collector.Collector
	logger     *logrus.Entry
}

func New(st *store.Store, logger *logrus.Entry) *Engine {
	return &Engine{
		store:  st,
		logger: logger,
	}
}

// Register adds a collector to the engine.
func (e *Engine) Register(c collector.Collector) {
	e.collectors = append(e.collectors, c)
}

// Start runs all collectors and blocks until ctx is canceled or a collector
// fails. Updates are applied by a single consumer, in arrival order.
func (e *Engine) Start(ctx context.Context) error {
	updates := make(chan store.Update, 100)
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case u := <-updates:
				e.logger.WithFields(logrus.Fields{
					"source": u.Source,
					"type":   u.Type,
					"jvm":    u.JvmID,
				}).Debug("Applying update")
				e.store.ApplyUpdate(u)
			}
		}
	})

	for _, c := range e.collectors {
		g.Go(func() error {
			e.logger.WithField("collector", c.Name()).Info("Starting collector")
			if err := c.Run(ctx, e.store, updates); err != nil {
				e.logger.WithField("collector", c.Name()).WithError(err).Error("Collector failed")
				return err
			}
			return nil
		})
	}

	return g.Wait()
}

// Store returns the engine's state store.
func (e *Engine) Store() *store.Store {
	return e.store
}
