package notify

// Notification categories published by the diagnostics service.
const (
	ActiveRecordingCreated   = "ActiveRecordingCreated"
	ActiveRecordingStopped   = "ActiveRecordingStopped"
	ActiveRecordingDeleted   = "ActiveRecordingDeleted"
	ActiveRecordingSaved     = "ActiveRecordingSaved"
	SnapshotCreated          = "SnapshotCreated"
	RecordingMetadataUpdated = "RecordingMetadataUpdated"
	ArchivedRecordingCreated = "ArchivedRecordingCreated"
	ArchivedRecordingDeleted = "ArchivedRecordingDeleted"
	ThreadDumpSuccess        = "ThreadDumpSuccess"
	ThreadDumpDeleted        = "ThreadDumpDeleted"
	HeapDumpSuccess          = "HeapDumpSuccess"
	HeapDumpUploaded         = "HeapDumpUploaded"
	HeapDumpDeleted          = "HeapDumpDeleted"
	TemplateUploaded         = "TemplateUploaded"
	TemplateDeleted          = "TemplateDeleted"
	RuleCreated              = "RuleCreated"
	RuleUpdated              = "RuleUpdated"
	RuleDeleted              = "RuleDeleted"
	TargetJvmDiscovery       = "TargetJvmDiscovery"
)

// schemaFiles maps a category to its payload schema under schemas/.
var schemaFiles = map[string]string{
	ActiveRecordingCreated:   "active-recording.json",
	ActiveRecordingStopped:   "active-recording.json",
	ActiveRecordingDeleted:   "active-recording.json",
	SnapshotCreated:          "active-recording.json",
	RecordingMetadataUpdated: "recording-metadata.json",
	ActiveRecordingSaved:     "archived-recording.json",
	ArchivedRecordingCreated: "archived-recording.json",
	ArchivedRecordingDeleted: "archived-recording.json",
	ThreadDumpSuccess:        "thread-dump.json",
	ThreadDumpDeleted:        "thread-dump-deleted.json",
	HeapDumpSuccess:          "heap-dump.json",
	HeapDumpUploaded:         "heap-dump.json",
	HeapDumpDeleted:          "heap-dump-deleted.json",
	TemplateUploaded:         "template.json",
	TemplateDeleted:          "template.json",
	RuleCreated:              "rule.json",
	RuleUpdated:              "rule.json",
	RuleDeleted:              "rule.json",
	TargetJvmDiscovery:       "target-discovery.json",
}
