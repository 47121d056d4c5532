// Package notify delivers push notifications from the diagnostics service
// and turns them into typed reconciler events.
//
// A Channel exposes per-category subscriptions. Each subscription has its own
// unbounded ordered queue, so a slow consumer never blocks the transport and
// never loses a message. A Demux validates and parses the messages of a fixed
// set of categories into live.Events.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// CategoryReconnected is emitted by a Channel after its transport reconnects.
// Messages may have been missed while disconnected, so consumers should resync.
const CategoryReconnected = "cryoview.Reconnected"

// Message is one notification.
type Message struct {
	Category   string
	ServerTime int64
	Payload    json.RawMessage
}

// Meta is the envelope header.
type Meta struct {
	Category   string   `json:"category"`
	Type       MetaType `json:"type"`
	ServerTime int64    `json:"serverTime"`
}

type MetaType struct {
	Type    string `json:"type"`
	SubType string `json:"subType"`
}

// Envelope is the wire form of a notification.
type Envelope struct {
	Meta    Meta            `json:"meta"`
	Message json.RawMessage `json:"message"`
}

// Decode parses a wire envelope.
func Decode(data []byte) (Message, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Message{}, fmt.Errorf("failed to decode notification: %w", err)
	}
	if env.Meta.Category == "" {
		return Message{}, fmt.Errorf("notification has no category")
	}
	payload := env.Message
	if len(bytes.TrimSpace(payload)) == 0 {
		payload = json.RawMessage("null")
	}
	return Message{Category: env.Meta.Category, ServerTime: env.Meta.ServerTime, Payload: payload}, nil
}

// Encode builds the wire envelope for payload. A zero serverTime is stamped
// with the current time.
func Encode(category string, serverTime int64, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", category, err)
	}
	if serverTime == 0 {
		serverTime = time.Now().Unix()
	}
	return json.Marshal(Envelope{
		Meta: Meta{
			Category:   category,
			Type:       MetaType{Type: "application", SubType: "json"},
			ServerTime: serverTime,
		},
		Message: raw,
	})
}

// NewMessage builds a Message from a payload value.
func NewMessage(category string, payload interface{}) (Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("failed to encode %s payload: %w", category, err)
	}
	return Message{Category: category, ServerTime: time.Now().Unix(), Payload: raw}, nil
}

// PresentFields lists the keys of the JSON object at path inside raw, in
// sorted order. It is how a partial payload becomes a merge field mask: keys
// absent from the payload are left untouched by the merge. An object with no
// keys yields an empty, non-nil mask.
func PresentFields(raw json.RawMessage, path ...string) ([]string, error) {
	current := raw
	for _, p := range path {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(current, &obj); err != nil {
			return nil, fmt.Errorf("field %q: %w", p, err)
		}
		next, ok := obj[p]
		if !ok {
			return nil, fmt.Errorf("field %q missing", p)
		}
		current = next
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(current, &obj); err != nil {
		return nil, fmt.Errorf("expected an object: %w", err)
	}
	if obj == nil {
		return nil, fmt.Errorf("expected an object, got null")
	}
	fields := make([]string, 0, len(obj))
	for k := range obj {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields, nil
}
