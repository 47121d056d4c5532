package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/grovetools/cryoview/pkg/models"
)

// Route prefixes shared with the development server.
const (
	APIPrefix         = "/api/v4"
	HealthPath        = "/health"
	NotificationsPath = "/api/notifications"
)

// Recording operations carried by a RecordingPatch.
const (
	OperationStop = "STOP"
	OperationSave = "SAVE"
)

// RecordingOptions describes a recording to start.
type RecordingOptions struct {
	Name     string         `json:"name"`
	Template string         `json:"template,omitempty"`
	Duration int64          `json:"duration,omitempty"`
	ToDisk   bool           `json:"toDisk,omitempty"`
	MaxSize  int64          `json:"maxSize,omitempty"`
	MaxAge   int64          `json:"maxAge,omitempty"`
	Labels   []models.Label `json:"labels,omitempty"`
}

// RecordingPatch is the body of a recording PATCH.
type RecordingPatch struct {
	Operation string `json:"operation"`
}

// RulePatch toggles a rule.
type RulePatch struct {
	Enabled bool `json:"enabled"`
}

func targetPath(jvmID string) string {
	return APIPrefix + "/targets/" + escape(jvmID)
}

func ActiveRecordingsPath(jvmID string) string { return targetPath(jvmID) + "/recordings" }

func ActiveRecordingPath(jvmID, name string) string {
	return ActiveRecordingsPath(jvmID) + "/" + escape(name)
}

func RecordingLabelsPath(jvmID, name string) string {
	return ActiveRecordingPath(jvmID, name) + "/metadata/labels"
}

func ThreadDumpsPath(jvmID string) string { return targetPath(jvmID) + "/threaddumps" }

func ThreadDumpPath(jvmID, id string) string { return ThreadDumpsPath(jvmID) + "/" + escape(id) }

func HeapDumpsPath(jvmID string) string { return targetPath(jvmID) + "/heapdumps" }

func HeapDumpPath(jvmID, id string) string { return HeapDumpsPath(jvmID) + "/" + escape(id) }

func ArchivesPath(jvmID string) string {
	if jvmID == "" {
		return APIPrefix + "/archives"
	}
	return APIPrefix + "/archives?" + url.Values{"jvmId": {jvmID}}.Encode()
}

func ArchivePath(jvmID, name string) string {
	p := APIPrefix + "/archives/" + escape(name)
	if jvmID != "" {
		p += "?" + url.Values{"jvmId": {jvmID}}.Encode()
	}
	return p
}

const (
	TargetsPath        = APIPrefix + "/targets"
	ArchiveSummaryPath = APIPrefix + "/archives/summary"
	EventTemplatesPath = APIPrefix + "/event_templates"
	RulesPath          = APIPrefix + "/rules"
)

func EventTemplatePath(name string) string { return EventTemplatesPath + "/" + escape(name) }

func RulePath(name string) string { return RulesPath + "/" + escape(name) }

// Targets lists discovered targets.
func (c *Client) Targets(ctx context.Context) ([]models.Target, error) {
	var out []models.Target
	err := c.doJSON(ctx, http.MethodGet, TargetsPath, nil, &out)
	return out, err
}

// ActiveRecordings lists the recordings of one target.
func (c *Client) ActiveRecordings(ctx context.Context, jvmID string) ([]models.ActiveRecording, error) {
	var out []models.ActiveRecording
	err := c.doJSON(ctx, http.MethodGet, ActiveRecordingsPath(jvmID), nil, &out)
	return out, err
}

// StartRecording starts a recording on a target.
func (c *Client) StartRecording(ctx context.Context, jvmID string, opts RecordingOptions) (models.ActiveRecording, error) {
	var out models.ActiveRecording
	err := c.doJSON(ctx, http.MethodPost, ActiveRecordingsPath(jvmID), opts, &out)
	return out, err
}

// StopRecording stops a running recording.
func (c *Client) StopRecording(ctx context.Context, jvmID, name string) error {
	return c.doJSON(ctx, http.MethodPatch, ActiveRecordingPath(jvmID, name), RecordingPatch{Operation: OperationStop}, nil)
}

// ArchiveRecording saves a copy of an active recording to the archive.
func (c *Client) ArchiveRecording(ctx context.Context, jvmID, name string) (models.ArchivedRecording, error) {
	var out models.ArchivedRecording
	err := c.doJSON(ctx, http.MethodPatch, ActiveRecordingPath(jvmID, name), RecordingPatch{Operation: OperationSave}, &out)
	return out, err
}

func (c *Client) DeleteRecording(ctx context.Context, jvmID, name string) error {
	return c.doJSON(ctx, http.MethodDelete, ActiveRecordingPath(jvmID, name), nil, nil)
}

// UpdateRecordingLabels replaces the labels of an active recording.
func (c *Client) UpdateRecordingLabels(ctx context.Context, jvmID, name string, labels []models.Label) error {
	return c.doJSON(ctx, http.MethodPut, RecordingLabelsPath(jvmID, name), labels, nil)
}

// ArchivedRecordings lists archives of one target, or every archive when jvmID is empty.
func (c *Client) ArchivedRecordings(ctx context.Context, jvmID string) ([]models.ArchivedRecording, error) {
	var out []models.ArchivedRecording
	err := c.doJSON(ctx, http.MethodGet, ArchivesPath(jvmID), nil, &out)
	return out, err
}

func (c *Client) DeleteArchivedRecording(ctx context.Context, jvmID, name string) error {
	return c.doJSON(ctx, http.MethodDelete, ArchivePath(jvmID, name), nil, nil)
}

// ArchiveSummaries lists every target with its archive count.
func (c *Client) ArchiveSummaries(ctx context.Context) ([]models.ArchiveSummary, error) {
	var out []models.ArchiveSummary
	err := c.doJSON(ctx, http.MethodGet, ArchiveSummaryPath, nil, &out)
	return out, err
}

func (c *Client) ThreadDumps(ctx context.Context, jvmID string) ([]models.ThreadDump, error) {
	var out []models.ThreadDump
	err := c.doJSON(ctx, http.MethodGet, ThreadDumpsPath(jvmID), nil, &out)
	return out, err
}

// CreateThreadDump asks the target for a thread dump. The dump appears through a notification.
func (c *Client) CreateThreadDump(ctx context.Context, jvmID string) error {
	return c.doJSON(ctx, http.MethodPost, ThreadDumpsPath(jvmID), nil, nil)
}

func (c *Client) DeleteThreadDump(ctx context.Context, jvmID, id string) error {
	return c.doJSON(ctx, http.MethodDelete, ThreadDumpPath(jvmID, id), nil, nil)
}

func (c *Client) HeapDumps(ctx context.Context, jvmID string) ([]models.HeapDump, error) {
	var out []models.HeapDump
	err := c.doJSON(ctx, http.MethodGet, HeapDumpsPath(jvmID), nil, &out)
	return out, err
}

func (c *Client) CreateHeapDump(ctx context.Context, jvmID string) error {
	return c.doJSON(ctx, http.MethodPost, HeapDumpsPath(jvmID), nil, nil)
}

func (c *Client) DeleteHeapDump(ctx context.Context, jvmID, id string) error {
	return c.doJSON(ctx, http.MethodDelete, HeapDumpPath(jvmID, id), nil, nil)
}

func (c *Client) EventTemplates(ctx context.Context) ([]models.EventTemplate, error) {
	var out []models.EventTemplate
	err := c.doJSON(ctx, http.MethodGet, EventTemplatesPath, nil, &out)
	return out, err
}

// DeleteEventTemplate removes a custom template.
func (c *Client) DeleteEventTemplate(ctx context.Context, name string) error {
	return c.doJSON(ctx, http.MethodDelete, EventTemplatePath(name), nil, nil)
}

func (c *Client) Rules(ctx context.Context) ([]models.Rule, error) {
	var out []models.Rule
	err := c.doJSON(ctx, http.MethodGet, RulesPath, nil, &out)
	return out, err
}

func (c *Client) CreateRule(ctx context.Context, rule models.Rule) (models.Rule, error) {
	var out models.Rule
	err := c.doJSON(ctx, http.MethodPost, RulesPath, rule, &out)
	return out, err
}

// SetRuleEnabled enables or disables a rule.
func (c *Client) SetRuleEnabled(ctx context.Context, name string, enabled bool) error {
	return c.doJSON(ctx, http.MethodPatch, RulePath(name), RulePatch{Enabled: enabled}, nil)
}

func (c *Client) DeleteRule(ctx context.Context, name string) error {
	return c.doJSON(ctx, http.MethodDelete, RulePath(name), nil, nil)
}
