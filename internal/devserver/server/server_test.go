package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/cryoview/errors"
	"github.com/grovetools/cryoview/internal/devserver/engine"
	"github.com/grovetools/cryoview/internal/devserver/store"
	"github.com/grovetools/cryoview/pkg/api"
	"github.com/grovetools/cryoview/pkg/collections"
	"github.com/grovetools/cryoview/pkg/models"
	"github.com/grovetools/cryoview/pkg/notify"
)

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func newTestServer(t *testing.T, token string, targets int) (*Server, *store.Store, *httptest.Server) {
	t.Helper()
	st := store.New()
	st.Seed(targets)
	s := New(quietLogger(), token)
	s.SetEngine(engine.New(st, quietLogger()))
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.Shutdown(context.Background())
		ts.Close()
	})
	return s, st, ts
}

func TestRecordingRoutes(t *testing.T) {
	_, _, ts := newTestServer(t, "", 1)
	c := api.NewClient(ts.URL, "", api.WithRetries(0))
	ctx := context.Background()

	require.NoError(t, c.Health(ctx))
	targets, err := c.Targets(ctx)
	require.NoError(t, err)
	require.Len(t, targets, 1)

	rec, err := c.StartRecording(ctx, "jvm-0001", api.RecordingOptions{Name: "profile", Duration: 60000})
	require.NoError(t, err)
	assert.Equal(t, models.RecordingRunning, rec.State)

	_, err = c.StartRecording(ctx, "jvm-0001", api.RecordingOptions{Name: "profile"})
	assert.True(t, errors.Is(err, errors.ErrCodeBackendHTTP))
	_, err = c.StartRecording(ctx, "jvm-0404", api.RecordingOptions{Name: "x"})
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound))

	require.NoError(t, c.UpdateRecordingLabels(ctx, "jvm-0001", "profile", []models.Label{{Key: "team", Value: "core"}}))
	require.NoError(t, c.StopRecording(ctx, "jvm-0001", "profile"))
	recs, err := c.ActiveRecordings(ctx, "jvm-0001")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, models.RecordingStopped, recs[0].State)
	assert.Equal(t, "core", recs[0].Metadata.Labels[0].Value)

	archived, err := c.ArchiveRecording(ctx, "jvm-0001", "profile")
	require.NoError(t, err)
	all, err := c.ArchivedRecordings(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 1)
	summaries, err := c.ArchiveSummaries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summaries[0].Count)

	require.NoError(t, c.DeleteArchivedRecording(ctx, "jvm-0001", archived.Name))
	require.NoError(t, c.DeleteRecording(ctx, "jvm-0001", "profile"))
	err = c.DeleteRecording(ctx, "jvm-0001", "profile")
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound))
}

func TestDumpTemplateAndRuleRoutes(t *testing.T) {
	_, _, ts := newTestServer(t, "", 1)
	c := api.NewClient(ts.URL, "", api.WithRetries(0))
	ctx := context.Background()

	require.NoError(t, c.CreateThreadDump(ctx, "jvm-0001"))
	dumps, err := c.ThreadDumps(ctx, "jvm-0001")
	require.NoError(t, err)
	require.Len(t, dumps, 1)
	require.NoError(t, c.DeleteThreadDump(ctx, "jvm-0001", dumps[0].ThreadDumpID))

	require.NoError(t, c.CreateHeapDump(ctx, "jvm-0001"))
	heaps, err := c.HeapDumps(ctx, "jvm-0001")
	require.NoError(t, err)
	require.Len(t, heaps, 1)
	require.NoError(t, c.DeleteHeapDump(ctx, "jvm-0001", heaps[0].HeapDumpID))

	templates, err := c.EventTemplates(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, templates)
	err = c.DeleteEventTemplate(ctx, "Profiling")
	assert.True(t, errors.Is(err, errors.ErrCodeBackendHTTP))

	_, err = c.CreateRule(ctx, models.Rule{Name: "nightly", MatchExpression: "true", EventSpecifier: "Continuous"})
	require.NoError(t, err)
	require.NoError(t, c.SetRuleEnabled(ctx, "nightly", true))
	rules, err := c.Rules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.True(t, rules[0].Enabled)
	require.NoError(t, c.DeleteRule(ctx, "nightly"))
}

func TestBearerToken(t *testing.T) {
	_, _, ts := newTestServer(t, "s3cret", 1)
	ctx := context.Background()

	_, err := api.NewClient(ts.URL, "wrong", api.WithRetries(0)).Targets(ctx)
	assert.True(t, errors.Is(err, errors.ErrCodeAuthFailure))

	// Health and metrics stay open.
	require.NoError(t, api.NewClient(ts.URL, "", api.WithRetries(0)).Health(ctx))

	targets, err := api.NewClient(ts.URL, "s3cret").Targets(ctx)
	require.NoError(t, err)
	assert.Len(t, targets, 1)
}

func TestMetricsAndConfig(t *testing.T) {
	s, _, ts := newTestServer(t, "", 1)
	s.SetRunningConfig(&RunningConfig{Targets: 1, DiscoveryInterval: time.Second})

	_, err := api.NewClient(ts.URL, "").Targets(context.Background())
	require.NoError(t, err)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), `cryoview_devserver_requests_total{code="200",route="GET /api/v4/targets"} 1`)

	resp, err = http.Get(ts.URL + "/api/devserver/config")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), `"targets":1`))
}

func TestLiveCollectionAgainstServer(t *testing.T) {
	s, st, ts := newTestServer(t, "tok", 1)
	client := api.NewClient(ts.URL, "tok", api.WithRetries(0))

	ch := notify.NewWebsocketChannel(notify.WebsocketOptions{
		URL:        client.NotificationsURL(),
		Token:      "tok",
		MinBackoff: 5 * time.Millisecond,
		MaxBackoff: 20 * time.Millisecond,
	})
	ch.Start(context.Background())
	defer ch.Close()
	require.Eventually(t, ch.Connected, 2*time.Second, 5*time.Millisecond)

	validator, err := notify.NewValidator()
	require.NoError(t, err)
	h, err := collections.ActiveRecordings().Open(collections.Deps{
		Client:    client,
		Channel:   ch,
		Validator: validator,
	}, "jvm-0001", nil)
	require.NoError(t, err)
	require.NoError(t, h.Start(context.Background()))
	defer h.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	table, err := h.WaitLoaded(ctx)
	require.NoError(t, err)
	assert.Empty(t, table.Rows)

	_, err = client.StartRecording(context.Background(), "jvm-0001", api.RecordingOptions{Name: "live"})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(h.Current().Rows) == 1 }, 2*time.Second, 5*time.Millisecond)

	// Changes made while disconnected arrive through the reload after reconnecting.
	assert.Equal(t, 1, s.DropClients())
	_, err = st.StartRecording("jvm-0001", api.RecordingOptions{Name: "missed"})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(h.Current().Rows) == 2 }, 3*time.Second, 10*time.Millisecond)

	h.SelectAll()
	require.NoError(t, h.BulkAction(context.Background(), "stop", nil))
	running := st.RunningRecordings()
	assert.Empty(t, running["jvm-0001"])
}

func TestLiveCollectionStartedBeforeHandshake(t *testing.T) {
	st := store.New()
	st.Seed(1)
	s := New(quietLogger(), "")
	s.SetEngine(engine.New(st, quietLogger()))

	release := make(chan struct{})
	inner := s.Handler()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == api.NotificationsPath {
			<-release
		}
		inner.ServeHTTP(w, r)
	}))
	t.Cleanup(func() {
		s.Shutdown(context.Background())
		ts.Close()
	})
	client := api.NewClient(ts.URL, "", api.WithRetries(0))

	ch := notify.NewWebsocketChannel(notify.WebsocketOptions{
		URL:        client.NotificationsURL(),
		MinBackoff: 5 * time.Millisecond,
		MaxBackoff: 20 * time.Millisecond,
	})
	ch.Start(context.Background())
	defer ch.Close()

	validator, err := notify.NewValidator()
	require.NoError(t, err)
	h, err := collections.ActiveRecordings().Open(collections.Deps{
		Client:    client,
		Channel:   ch,
		Validator: validator,
	}, "jvm-0001", nil)
	require.NoError(t, err)
	require.NoError(t, h.Start(context.Background()))
	defer h.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	table, err := h.WaitLoaded(ctx)
	require.NoError(t, err)
	assert.Empty(t, table.Rows)
	assert.False(t, ch.Connected())

	// Created after the initial load but before any subscriber was attached.
	_, err = st.StartRecording("jvm-0001", api.RecordingOptions{Name: "early"})
	require.NoError(t, err)
	close(release)

	require.Eventually(t, ch.Connected, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(h.Current().Rows) == 1 }, 2*time.Second, 5*time.Millisecond)
}
