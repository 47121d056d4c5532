package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/cryoview/pkg/filter"
)

func TestFiltersRoundTrip(t *testing.T) {
	s := Open(filepath.Join(t.TempDir(), "nested", "state.yml"))

	got, err := s.Filters("active-recordings", "jvm-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	set := filter.PredicateSet{"Name": {"profile"}, "Label": {"env=prod"}}
	require.NoError(t, s.SaveFilters("active-recordings", "jvm-1", set))
	require.NoError(t, s.SaveFilters("rules", "", filter.PredicateSet{"Enabled": {"true"}}))

	got, err = s.Filters("active-recordings", "jvm-1")
	require.NoError(t, err)
	assert.Equal(t, set, got)

	// Scopes are stored separately.
	got, err = s.Filters("active-recordings", "jvm-2")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.SaveFilters("active-recordings", "jvm-1", filter.PredicateSet{}))
	st, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"rules"}, keys(st.Filters))
}

func TestCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yml")
	require.NoError(t, os.WriteFile(path, []byte("filters: [unclosed"), 0644))

	_, err := Open(path).Filters("rules", "")
	assert.ErrorContains(t, err, "parse state file")
}

func TestKey(t *testing.T) {
	assert.Equal(t, "rules", Key("rules", ""))
	assert.Equal(t, "thread-dumps@jvm-9", Key("thread-dumps", "jvm-9"))
}

func keys(m map[string]filter.PredicateSet) []string {
	var out []string
	for k := range m {
		out = append(out, k)
	}
	return out
}
