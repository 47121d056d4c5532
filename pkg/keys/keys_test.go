package keys

import (
	"strings"
	"testing"

	"github.com/grovetools/cryoview/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestHashDeterministic(t *testing.T) {
	assert.Equal(t, Hash("rec.jfr", "1024"), Hash("rec.jfr", "1024"))
	assert.NotEqual(t, Hash("ab", "c"), Hash("a", "bc"))
	assert.True(t, strings.HasPrefix(Hash("x"), "h:"))
	assert.Len(t, Hash("x"), len("h:")+32)
}

func TestScopedKeysDistinguishParents(t *testing.T) {
	a := models.ArchivedRecording{JvmID: "jvm-a", Name: "profile.jfr"}
	b := models.ArchivedRecording{JvmID: "jvm-b", Name: "profile.jfr"}
	assert.NotEqual(t, ArchivedRecording(a), ArchivedRecording(b))
	assert.Equal(t, "jvm-a/profile.jfr", ArchivedRecording(a))
}

func TestUploadKeyIgnoresMutableFields(t *testing.T) {
	rec := models.ArchivedRecording{Name: "upload.jfr", Size: 42}
	relabeled := rec
	relabeled.Metadata.Labels = []models.Label{{Key: "env", Value: "prod"}}

	assert.Equal(t, ArchivedRecording(rec), ArchivedRecording(relabeled))
	assert.Equal(t, "uploads/upload.jfr", ArchivedRecording(rec))

	// Metadata updates carry no size.
	assert.Equal(t, ArchivedRecording(rec), ArchivedRecording(models.ArchivedRecording{Name: "upload.jfr"}))
	assert.NotEqual(t, ArchivedRecording(rec), ArchivedRecording(models.ArchivedRecording{Name: "other.jfr", Size: 42}))
}

func TestTargetFallback(t *testing.T) {
	assert.Equal(t, "abc", Target(models.Target{JvmID: "abc", ConnectURL: "service:jmx:rmi://x"}))
	assert.Equal(t, "service:jmx:rmi://x", Target(models.Target{ConnectURL: "service:jmx:rmi://x"}))
}

func TestEntityKeys(t *testing.T) {
	assert.Equal(t, "jvm/rec1", ActiveRecording(models.ActiveRecording{JvmID: "jvm", Name: "rec1"}))
	assert.Equal(t, "jvm/td-1", ThreadDump(models.ThreadDump{JvmID: "jvm", ThreadDumpID: "td-1"}))
	assert.Equal(t, "jvm/hd-1", HeapDump(models.HeapDump{JvmID: "jvm", HeapDumpID: "hd-1"}))
	assert.Equal(t, "CUSTOM/Profiling", EventTemplate(models.EventTemplate{Name: "Profiling", Type: models.TemplateCustom}))
	assert.Equal(t, "rule-a", Rule(models.Rule{Name: "rule-a"}))
	assert.Equal(t, Selection("a", "1"), Hash("a", "1"))
}
