package collector

import (
	"context"
	"time"

	"github.com/grovetools/cryoview/internal/devserver/store"
)

// RecordingCollector stops fixed-duration recordings whose time is up.
type RecordingCollector struct {
	interval time.Duration
}

func NewRecordingCollector(interval time.Duration) *RecordingCollector {
	if interval <= 0 {
		interval = time.Second
	}
	return &RecordingCollector{interval: interval}
}

func (c *RecordingCollector) Name() string { return "recording" }

func (c *RecordingCollector) Run(ctx context.Context, st *store.Store, updates chan<- store.Update) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for _, u := range c.expired(st) {
				if !emit(ctx, updates, u) {
					return nil
				}
			}
		}
	}
}

func (c *RecordingCollector) expired(st *store.Store) []store.Update {
	now := st.Now().UnixMilli()
	var out []store.Update
	for jvm, recs := range st.RunningRecordings() {
		for _, r := range recs {
			if r.StartTime+r.Duration <= now {
				out = append(out, store.Update{Type: store.UpdateRecordingStopped, Source: c.Name(), JvmID: jvm, Name: r.Name})
			}
		}
	}
	return out
}
