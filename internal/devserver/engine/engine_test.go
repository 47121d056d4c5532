package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/cryoview/internal/devserver/collector"
	"github.com/grovetools/cryoview/internal/devserver/store"
	"github.com/grovetools/cryoview/pkg/api"
)

type failing struct{}

func (failing) Name() string { return "failing" }

func (failing) Run(ctx context.Context, st *store.Store, updates chan<- store.Update) error {
	return fmt.Errorf("boom")
}

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

func TestEngineAppliesCollectorUpdates(t *testing.T) {
	st := store.New()
	st.Seed(1)
	_, err := st.StartRecording("jvm-0001", api.RecordingOptions{Name: "short", Duration: 1})
	require.NoError(t, err)

	e := New(st, quietLogger())
	e.Register(collector.NewRecordingCollector(5 * time.Millisecond))
	e.Register(collector.NewDiscoveryCollector(5*time.Millisecond, 3, 1))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Start(ctx) }()

	require.Eventually(t, func() bool {
		recs, err := st.Recordings("jvm-0001")
		return err == nil && len(recs) == 1 && !recs[0].State.Transient()
	}, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(st.Targets()) >= 2 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not stop")
	}
}

func TestEngineStopsOnCollectorFailure(t *testing.T) {
	e := New(store.New(), quietLogger())
	e.Register(failing{})
	e.Register(collector.NewRecordingCollector(time.Millisecond))
	assert.EqualError(t, e.Start(context.Background()), "boom")
}
