// Package store holds the simulated world of the development server.
package store

import "github.com/grovetools/cryoview/pkg/models"

// Notification is one push message for websocket clients.
type Notification struct {
	Category string
	Payload  interface{}
}

// UpdateType defines what a collector observed.
type UpdateType string

const (
	UpdateTargetFound      UpdateType = "target_found"
	UpdateTargetLost       UpdateType = "target_lost"
	UpdateRecordingStopped UpdateType = "recording_stopped"
	UpdateRuleTriggered    UpdateType = "rule_triggered"
)

// Update is a change requested by a collector and applied by the engine.
type Update struct {
	Type   UpdateType
	Source string // Which collector sent this update
	JvmID  string
	// Name is the recording name for UpdateRecordingStopped and the rule
	// name for UpdateRuleTriggered.
	Name   string
	Target models.Target
}

type recordingPayload struct {
	JvmID     string      `json:"jvmId"`
	Recording interface{} `json:"recording"`
}

type metadataPatch struct {
	Name     string          `json:"name"`
	Metadata models.Metadata `json:"metadata"`
}

type discoveryEvent struct {
	Kind       string        `json:"kind"`
	ServiceRef models.Target `json:"serviceRef"`
}

type discoveryPayload struct {
	Event discoveryEvent `json:"event"`
}

type threadDumpPayload struct {
	JvmID        string             `json:"jvmId"`
	ThreadDump   *models.ThreadDump `json:"threadDump,omitempty"`
	ThreadDumpID string             `json:"threadDumpId,omitempty"`
}

type heapDumpPayload struct {
	JvmID      string           `json:"jvmId"`
	HeapDump   *models.HeapDump `json:"heapDump,omitempty"`
	HeapDumpID string           `json:"heapDumpId,omitempty"`
}

type templatePayload struct {
	Template models.EventTemplate `json:"template"`
}

type rulePayload struct {
	Rule interface{} `json:"rule"`
}

type ruleToggle struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}
