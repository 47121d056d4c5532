package collections

import (
	"encoding/json"
	"time"

	"github.com/grovetools/cryoview/pkg/models"
	"github.com/grovetools/cryoview/pkg/notify"
)

// Discovery event kinds.
const (
	discoveryFound    = "FOUND"
	discoveryModified = "MODIFIED"
	discoveryLost     = "LOST"
)

type discoveryPayload struct {
	Event struct {
		Kind       string        `json:"kind"`
		ServiceRef models.Target `json:"serviceRef"`
	} `json:"event"`
}

// placeholder returns the connect-URL keyed row a target occupied before the
// service assigned it a JVM id.
func placeholder(t models.Target) (models.Target, bool) {
	if t.JvmID == "" || t.ConnectURL == "" {
		return models.Target{}, false
	}
	return models.Target{ConnectURL: t.ConnectURL}, true
}

func decode[T any](msg notify.Message) (T, error) {
	var out T
	err := json.Unmarshal(msg.Payload, &out)
	return out, err
}

// inScope reports whether a notification about jvmID concerns a view
// scoped to scope. An empty scope sees every target.
func inScope(scope, jvmID string) bool {
	return scope == "" || scope == jvmID
}

func formatMillis(ms int64) string {
	if ms <= 0 {
		return "-"
	}
	return time.UnixMilli(ms).Local().Format("2006-01-02 15:04:05")
}
