package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeFieldsKeepsUntouchedFields(t *testing.T) {
	current := ActiveRecording{
		JvmID:     "jvm-1",
		Name:      "rec1",
		State:     RecordingRunning,
		StartTime: 1000,
		Duration:  30000,
		Metadata:  Metadata{Labels: []Label{{Key: "env", Value: "dev"}}},
	}
	patch := ActiveRecording{Metadata: Metadata{Labels: []Label{{Key: "env", Value: "prod"}}}}

	merged := MergeFields(current, patch, []string{"metadata"})

	assert.Equal(t, "prod", merged.Metadata.Labels[0].Value)
	assert.Equal(t, RecordingRunning, merged.State)
	assert.Equal(t, int64(1000), merged.StartTime)
	assert.Equal(t, int64(30000), merged.Duration)
	assert.Equal(t, "rec1", merged.Name)
	// current untouched
	assert.Equal(t, "dev", current.Metadata.Labels[0].Value)
}

func TestMergeFieldsMasks(t *testing.T) {
	current := Rule{Name: "r", Enabled: true, Description: "d"}
	patch := Rule{Name: "r", Enabled: false}

	assert.Equal(t, patch, MergeFields(current, patch, nil), "nil mask replaces")
	assert.Equal(t, current, MergeFields(current, patch, []string{}), "empty mask is a no-op")
	assert.Equal(t, current, MergeFields(current, patch, []string{"bogus"}))

	merged := MergeFields(current, patch, []string{"enabled"})
	assert.False(t, merged.Enabled)
	assert.Equal(t, "d", merged.Description)
}

func TestJSONFields(t *testing.T) {
	fields := JSONFields[HeapDump]()
	assert.ElementsMatch(t, []string{"jvmId", "heapDumpId", "downloadUrl", "size", "lastModified"}, fields)
}

func TestRecordingStateTransient(t *testing.T) {
	assert.True(t, RecordingRunning.Transient())
	assert.True(t, RecordingDelayed.Transient())
	assert.False(t, RecordingStopped.Transient())
	assert.False(t, RecordingState("").Transient())
}

func TestWireNames(t *testing.T) {
	var rec ArchivedRecording
	require.NoError(t, json.Unmarshal([]byte(`{"jvmId":"j","name":"a.jfr","size":12,"archivedTime":5,"metadata":{"labels":[{"key":"k","value":"v"}]}}`), &rec))
	assert.Equal(t, "a.jfr", rec.Name)
	assert.Equal(t, int64(12), rec.Size)
	assert.Equal(t, "k=v", FormatLabels(rec.Metadata.Labels))
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.5 KiB", FormatBytes(1536))
	assert.Equal(t, "2.0 MiB", FormatBytes(2*1024*1024))
}
