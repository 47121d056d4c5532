package collector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/cryoview/internal/devserver/store"
	"github.com/grovetools/cryoview/pkg/api"
	"github.com/grovetools/cryoview/pkg/models"
)

func TestDiscoveryRotatesTargets(t *testing.T) {
	st := store.New()
	st.Seed(2)
	c := NewDiscoveryCollector(0, 3, 2)

	u, ok := c.step(st)
	require.True(t, ok)
	assert.Equal(t, store.UpdateTargetFound, u.Type)
	assert.Equal(t, "jvm-0003", u.Target.JvmID)
	st.ApplyUpdate(u)

	u, _ = c.step(st)
	assert.Equal(t, store.UpdateTargetLost, u.Type)
	assert.Equal(t, "jvm-0001", u.JvmID)
}

func TestRecordingExpiry(t *testing.T) {
	st := store.New()
	st.Seed(1)
	_, err := st.StartRecording("jvm-0001", api.RecordingOptions{Name: "done", Duration: 1})
	require.NoError(t, err)
	_, err = st.StartRecording("jvm-0001", api.RecordingOptions{Name: "long", Duration: 3600000})
	require.NoError(t, err)
	_, err = st.StartRecording("jvm-0001", api.RecordingOptions{Name: "forever"})
	require.NoError(t, err)

	c := NewRecordingCollector(0)
	require.Eventually(t, func() bool { return len(c.expired(st)) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, "done", c.expired(st)[0].Name)
}

func TestRuleFirings(t *testing.T) {
	st := store.New()
	st.Seed(2)
	_, err := st.CreateRule(models.Rule{Name: "r1", Enabled: true, MatchExpression: "app-2"})
	require.NoError(t, err)
	_, err = st.CreateRule(models.Rule{Name: "off", MatchExpression: "true"})
	require.NoError(t, err)

	ups := NewRuleCollector(0).firings(st)
	require.Len(t, ups, 1)
	assert.Equal(t, "jvm-0002", ups[0].JvmID)
	assert.Equal(t, "r1", ups[0].Name)
}

func TestMatches(t *testing.T) {
	target := store.SimulatedTarget(7)
	assert.True(t, Matches("true", target))
	assert.True(t, Matches("app-7", target))
	assert.False(t, Matches("", target))
	assert.False(t, Matches("db", target))
}
