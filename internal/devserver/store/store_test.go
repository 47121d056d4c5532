package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/cryoview/errors"
	"github.com/grovetools/cryoview/pkg/api"
	"github.com/grovetools/cryoview/pkg/models"
	"github.com/grovetools/cryoview/pkg/notify"
)

func drain(ch chan Notification) []string {
	var out []string
	for {
		select {
		case n := <-ch:
			out = append(out, n.Category)
		default:
			return out
		}
	}
}

func fixedClock(st *Store) {
	t := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	st.SetClock(func() time.Time { return t })
}

func TestTargetLifecycle(t *testing.T) {
	st := New()
	ch := st.Subscribe()
	defer st.Unsubscribe(ch)

	st.Seed(2)
	st.AddTarget(SimulatedTarget(1))
	targets := st.Targets()
	require.Len(t, targets, 2)
	assert.Equal(t, "jvm-0001", targets[0].JvmID)
	assert.Equal(t, "app-2", targets[1].Alias)

	assert.True(t, st.RemoveTarget("jvm-0001"))
	assert.False(t, st.RemoveTarget("jvm-0001"))
	assert.Equal(t, []string{
		notify.TargetJvmDiscovery, notify.TargetJvmDiscovery, notify.TargetJvmDiscovery,
	}, drain(ch))

	_, err := st.Recordings("jvm-0001")
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound))
}

func TestRecordingLifecycle(t *testing.T) {
	st := New()
	fixedClock(st)
	st.Seed(1)
	ch := st.Subscribe()
	defer st.Unsubscribe(ch)

	rec, err := st.StartRecording("jvm-0001", api.RecordingOptions{Name: "profile", Duration: 30000})
	require.NoError(t, err)
	assert.Equal(t, models.RecordingRunning, rec.State)
	assert.False(t, rec.Continuous)

	_, err = st.StartRecording("jvm-0001", api.RecordingOptions{Name: "profile"})
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
	assert.Len(t, st.RunningRecordings()["jvm-0001"], 1)

	require.NoError(t, st.SetRecordingLabels("jvm-0001", "profile", []models.Label{{Key: "env", Value: "prod"}}))
	require.NoError(t, st.StopRecording("jvm-0001", "profile"))
	require.NoError(t, st.StopRecording("jvm-0001", "profile"))

	archived, err := st.ArchiveRecording("jvm-0001", "profile")
	require.NoError(t, err)
	assert.Equal(t, "app-1_profile_20260301T120000Z.jfr", archived.Name)
	assert.Equal(t, "prod", archived.Metadata.Labels[0].Value)
	assert.Len(t, st.Archives(""), 1)
	assert.Equal(t, 1, st.ArchiveSummaries()[0].Count)

	require.NoError(t, st.DeleteRecording("jvm-0001", "profile"))
	assert.True(t, errors.Is(st.DeleteRecording("jvm-0001", "profile"), errors.ErrCodeNotFound))
	require.NoError(t, st.DeleteArchive("jvm-0001", archived.Name))

	assert.Equal(t, []string{
		notify.ActiveRecordingCreated,
		notify.RecordingMetadataUpdated,
		notify.ActiveRecordingStopped,
		notify.ActiveRecordingSaved,
		notify.ActiveRecordingDeleted,
		notify.ArchivedRecordingDeleted,
	}, drain(ch))
}

func TestDumpsTemplatesAndRules(t *testing.T) {
	st := New()
	st.Seed(1)

	td, err := st.CreateThreadDump("jvm-0001")
	require.NoError(t, err)
	require.NoError(t, st.DeleteThreadDump("jvm-0001", td.ThreadDumpID))
	_, err = st.CreateHeapDump("jvm-9999")
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound))

	assert.True(t, errors.Is(st.DeleteTemplate("Profiling"), errors.ErrCodeInvalidInput))
	require.NoError(t, st.AddTemplate(models.EventTemplate{Name: "Mine"}))
	require.NoError(t, st.DeleteTemplate("Mine"))

	_, err = st.CreateRule(models.Rule{Name: "nightly", Enabled: true, MatchExpression: "true", EventSpecifier: "Continuous"})
	require.NoError(t, err)
	_, err = st.CreateRule(models.Rule{Name: "nightly"})
	assert.Error(t, err)

	st.ApplyUpdate(Update{Type: UpdateRuleTriggered, JvmID: "jvm-0001", Name: "nightly"})
	recs, err := st.Recordings("jvm-0001")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, RuleRecordingName("nightly"), recs[0].Name)
	assert.True(t, recs[0].Continuous)

	st.ApplyUpdate(Update{Type: UpdateRuleTriggered, JvmID: "jvm-0001", Name: "nightly"})
	assert.Len(t, st.Archives("jvm-0001"), 1)

	require.NoError(t, st.SetRuleEnabled("nightly", false))
	assert.False(t, st.Rules()[0].Enabled)
	require.NoError(t, st.DeleteRule("nightly"))
	assert.Empty(t, st.Rules())
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	st := New()
	ch := st.Subscribe()
	for i := 1; i <= 300; i++ {
		st.AddTarget(SimulatedTarget(i))
	}
	assert.Len(t, drain(ch), 256)
	st.Unsubscribe(ch)
	st.Unsubscribe(ch)
}
