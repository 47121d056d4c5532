package collector

import (
	"context"
	"time"

	"github.com/grovetools/cryoview/internal/devserver/store"
)

// DiscoveryCollector makes targets come and go. Each tick either adds the
// next simulated target or, once max targets are up, loses the oldest one.
type DiscoveryCollector struct {
	interval time.Duration
	max      int
	next     int
}

// NewDiscoveryCollector creates a collector that keeps at most max targets.
// Targets numbered up to seeded already exist.
func NewDiscoveryCollector(interval time.Duration, max, seeded int) *DiscoveryCollector {
	return &DiscoveryCollector{interval: interval, max: max, next: seeded + 1}
}

func (c *DiscoveryCollector) Name() string { return "discovery" }

func (c *DiscoveryCollector) Run(ctx context.Context, st *store.Store, updates chan<- store.Update) error {
	if c.interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if u, ok := c.step(st); ok && !emit(ctx, updates, u) {
				return nil
			}
		}
	}
}

func (c *DiscoveryCollector) step(st *store.Store) (store.Update, bool) {
	targets := st.Targets()
	if len(targets) >= c.max && len(targets) > 0 {
		return store.Update{Type: store.UpdateTargetLost, Source: c.Name(), JvmID: targets[0].JvmID}, true
	}
	t := store.SimulatedTarget(c.next)
	c.next++
	return store.Update{Type: store.UpdateTargetFound, Source: c.Name(), JvmID: t.JvmID, Target: t}, true
}
