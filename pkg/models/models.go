// Package models holds the wire types of the JVM diagnostics service.
//
// JSON field names follow the service's REST and notification payloads, so a
// notification body can be decoded straight into these structs.
package models

import (
	"fmt"
	"strings"
	"time"
)

// Label is one key/value pair attached to a target or recording.
type Label struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// String renders the label as key=value.
func (l Label) String() string {
	return l.Key + "=" + l.Value
}

// Metadata carries user-editable attributes of recordings.
type Metadata struct {
	Labels []Label `json:"labels"`
}

// Annotations groups platform- and service-assigned target labels.
type Annotations struct {
	Platform []Label `json:"platform,omitempty"`
	Cryostat []Label `json:"cryostat,omitempty"`
}

// Target is a JVM discovered by the diagnostics service.
type Target struct {
	ID          int64       `json:"id,omitempty"`
	JvmID       string      `json:"jvmId"`
	ConnectURL  string      `json:"connectUrl"`
	Alias       string      `json:"alias"`
	Labels      []Label     `json:"labels,omitempty"`
	Annotations Annotations `json:"annotations"`
	Agent       bool        `json:"agent,omitempty"`
}

// RecordingState is the lifecycle state of an active flight recording.
type RecordingState string

const (
	RecordingNew      RecordingState = "NEW"
	RecordingDelayed  RecordingState = "DELAYED"
	RecordingStarting RecordingState = "STARTING"
	RecordingRunning  RecordingState = "RUNNING"
	RecordingStopping RecordingState = "STOPPING"
	RecordingStopped  RecordingState = "STOPPED"
	RecordingClosed   RecordingState = "CLOSED"
)

// Transient reports whether the server may still change the recording on its own.
func (s RecordingState) Transient() bool {
	switch s {
	case RecordingNew, RecordingDelayed, RecordingStarting, RecordingRunning, RecordingStopping:
		return true
	}
	return false
}

// ActiveRecording is a flight recording that exists inside a target JVM.
type ActiveRecording struct {
	JvmID       string         `json:"jvmId,omitempty"`
	RemoteID    int64          `json:"remoteId"`
	Name        string         `json:"name"`
	State       RecordingState `json:"state"`
	StartTime   int64          `json:"startTime"`
	Duration    int64          `json:"duration"`
	Continuous  bool           `json:"continuous"`
	ToDisk      bool           `json:"toDisk"`
	MaxSize     int64          `json:"maxSize"`
	MaxAge      int64          `json:"maxAge"`
	DownloadURL string         `json:"downloadUrl,omitempty"`
	ReportURL   string         `json:"reportUrl,omitempty"`
	Metadata    Metadata       `json:"metadata"`
}

// Started returns the recording start time.
func (r ActiveRecording) Started() time.Time {
	return time.UnixMilli(r.StartTime)
}

// ArchivedRecording is a recording copied out of a JVM into the service's storage.
type ArchivedRecording struct {
	JvmID        string   `json:"jvmId,omitempty"`
	Name         string   `json:"name"`
	DownloadURL  string   `json:"downloadUrl,omitempty"`
	ReportURL    string   `json:"reportUrl,omitempty"`
	Metadata     Metadata `json:"metadata"`
	Size         int64    `json:"size"`
	ArchivedTime int64    `json:"archivedTime"`
}

// ArchiveSummary is one row of the all-targets archive table: a target and
// the number of archives stored for it.
type ArchiveSummary struct {
	Target Target `json:"target"`
	Count  int    `json:"archivedCount"`
}

// ThreadDump is a captured thread dump for a target.
type ThreadDump struct {
	JvmID        string `json:"jvmId"`
	ThreadDumpID string `json:"threadDumpId"`
	DownloadURL  string `json:"downloadUrl,omitempty"`
	Size         int64  `json:"size"`
	LastModified int64  `json:"lastModified"`
}

// HeapDump is a captured heap dump for a target.
type HeapDump struct {
	JvmID        string `json:"jvmId"`
	HeapDumpID   string `json:"heapDumpId"`
	DownloadURL  string `json:"downloadUrl,omitempty"`
	Size         int64  `json:"size"`
	LastModified int64  `json:"lastModified"`
}

// TemplateType distinguishes where an event template comes from.
type TemplateType string

const (
	TemplateTarget TemplateType = "TARGET"
	TemplateCustom TemplateType = "CUSTOM"
	TemplatePreset TemplateType = "PRESET"
)

// EventTemplate is a JFR event configuration.
type EventTemplate struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Provider    string       `json:"provider"`
	Type        TemplateType `json:"type"`
}

// Rule is an automated recording rule.
type Rule struct {
	Name                  string `json:"name"`
	Description           string `json:"description"`
	MatchExpression       string `json:"matchExpression"`
	EventSpecifier        string `json:"eventSpecifier"`
	Enabled               bool   `json:"enabled"`
	ArchivalPeriodSeconds int    `json:"archivalPeriodSeconds"`
	InitialDelaySeconds   int    `json:"initialDelaySeconds"`
	PreservedArchives     int    `json:"preservedArchives"`
	MaxAgeSeconds         int    `json:"maxAgeSeconds"`
	MaxSizeBytes          int64  `json:"maxSizeBytes"`
}

// FormatLabels renders labels as a comma-separated key=value list.
func FormatLabels(labels []Label) string {
	parts := make([]string, len(labels))
	for i, l := range labels {
		parts[i] = l.String()
	}
	return strings.Join(parts, ",")
}

// FormatBytes renders a byte count with a binary unit suffix.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
