package store

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/grovetools/cryoview/errors"
	"github.com/grovetools/cryoview/pkg/api"
	"github.com/grovetools/cryoview/pkg/models"
	"github.com/grovetools/cryoview/pkg/notify"
)

// Store is the in-memory world of the development server.
// It is thread-safe and fans every change out to subscribers as a notification.
type Store struct {
	mu          sync.RWMutex
	targets     map[string]models.Target
	recordings  map[string][]models.ActiveRecording
	archives    []models.ArchivedRecording
	threadDumps map[string][]models.ThreadDump
	heapDumps   map[string][]models.HeapDump
	templates   []models.EventTemplate
	rules       []models.Rule
	nextID      int64
	subscribers map[chan Notification]struct{}
	now         func() time.Time
}

// New creates an empty world with the preset event templates.
func New() *Store {
	return &Store{
		targets:     make(map[string]models.Target),
		recordings:  make(map[string][]models.ActiveRecording),
		threadDumps: make(map[string][]models.ThreadDump),
		heapDumps:   make(map[string][]models.HeapDump),
		templates: []models.EventTemplate{
			{Name: "ALL", Description: "Enable all available events in the target JVM", Provider: "Cryostat", Type: models.TemplatePreset},
			{Name: "Continuous", Description: "Low overhead configuration safe for continuous use", Provider: "Oracle", Type: models.TemplateTarget},
			{Name: "Profiling", Description: "Low overhead configuration for profiling", Provider: "Oracle", Type: models.TemplateTarget},
		},
		subscribers: make(map[chan Notification]struct{}),
		now:         time.Now,
	}
}

// SetClock replaces the time source.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Subscribe creates a new subscription channel for notifications.
func (s *Store) Subscribe() chan Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan Notification, 256)
	s.subscribers[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (s *Store) Unsubscribe(ch chan Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subscribers[ch]; ok {
		delete(s.subscribers, ch)
		close(ch)
	}
}

// broadcast must be called with s.mu held.
func (s *Store) broadcast(category string, payload interface{}) {
	n := Notification{Category: category, Payload: payload}
	for ch := range s.subscribers {
		select {
		case ch <- n:
		default:
			// Slow clients miss notifications and recover on reconnect.
		}
	}
}

// ApplyUpdate performs a collector's change.
func (s *Store) ApplyUpdate(u Update) {
	switch u.Type {
	case UpdateTargetFound:
		s.AddTarget(u.Target)
	case UpdateTargetLost:
		s.RemoveTarget(u.JvmID)
	case UpdateRecordingStopped:
		_ = s.StopRecording(u.JvmID, u.Name)
	case UpdateRuleTriggered:
		_ = s.triggerRule(u.JvmID, u.Name)
	}
}

func notFound(what, name string) error {
	return errors.New(errors.ErrCodeNotFound, fmt.Sprintf("%s %q not found", what, name))
}

func invalid(format string, args ...interface{}) error {
	return errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf(format, args...))
}

// Targets returns every target ordered by id.
func (s *Store) Targets() []models.Target {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Target, 0, len(s.targets))
	for _, t := range s.targets {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Target looks a target up by JVM id.
func (s *Store) Target(jvmID string) (models.Target, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.targets[jvmID]
	return t, ok
}

// AddTarget registers t and announces it. Known targets are ignored.
func (s *Store) AddTarget(t models.Target) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.targets[t.JvmID]; ok {
		return
	}
	s.nextID++
	if t.ID == 0 {
		t.ID = s.nextID
	}
	s.targets[t.JvmID] = t
	s.broadcast(notify.TargetJvmDiscovery, discoveryPayload{Event: discoveryEvent{Kind: "FOUND", ServiceRef: t}})
}

// RemoveTarget forgets a target with its recordings and dumps. Archives survive.
func (s *Store) RemoveTarget(jvmID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.targets[jvmID]
	if !ok {
		return false
	}
	delete(s.targets, jvmID)
	delete(s.recordings, jvmID)
	delete(s.threadDumps, jvmID)
	delete(s.heapDumps, jvmID)
	s.broadcast(notify.TargetJvmDiscovery, discoveryPayload{Event: discoveryEvent{Kind: "LOST", ServiceRef: t}})
	return true
}

// Recordings lists the active recordings of a target.
func (s *Store) Recordings(jvmID string) ([]models.ActiveRecording, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.targets[jvmID]; !ok {
		return nil, notFound("target", jvmID)
	}
	return append([]models.ActiveRecording{}, s.recordings[jvmID]...), nil
}

// RunningRecordings lists fixed-duration recordings still running, by target.
func (s *Store) RunningRecordings() map[string][]models.ActiveRecording {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]models.ActiveRecording)
	for jvm, recs := range s.recordings {
		for _, r := range recs {
			if r.State == models.RecordingRunning && !r.Continuous {
				out[jvm] = append(out[jvm], r)
			}
		}
	}
	return out
}

// Now returns the store clock.
func (s *Store) Now() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.now()
}

func (s *Store) findRecording(jvmID, name string) (int, error) {
	if _, ok := s.targets[jvmID]; !ok {
		return -1, notFound("target", jvmID)
	}
	for i, r := range s.recordings[jvmID] {
		if r.Name == name {
			return i, nil
		}
	}
	return -1, notFound("recording", name)
}

// StartRecording creates a running recording.
func (s *Store) StartRecording(jvmID string, opts api.RecordingOptions) (models.ActiveRecording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startRecording(jvmID, opts)
}

func (s *Store) startRecording(jvmID string, opts api.RecordingOptions) (models.ActiveRecording, error) {
	if strings.TrimSpace(opts.Name) == "" {
		return models.ActiveRecording{}, invalid("recording name is required")
	}
	if _, ok := s.targets[jvmID]; !ok {
		return models.ActiveRecording{}, notFound("target", jvmID)
	}
	for _, r := range s.recordings[jvmID] {
		if r.Name == opts.Name {
			return models.ActiveRecording{}, invalid("recording %q already exists", opts.Name)
		}
	}
	s.nextID++
	rec := models.ActiveRecording{
		JvmID:      jvmID,
		RemoteID:   s.nextID,
		Name:       opts.Name,
		State:      models.RecordingRunning,
		StartTime:  s.now().UnixMilli(),
		Duration:   opts.Duration,
		Continuous: opts.Duration == 0,
		ToDisk:     opts.ToDisk,
		MaxSize:    opts.MaxSize,
		MaxAge:     opts.MaxAge,
		Metadata:   models.Metadata{Labels: append([]models.Label{}, opts.Labels...)},
	}
	if opts.Template != "" {
		rec.Metadata.Labels = append(rec.Metadata.Labels, models.Label{Key: "template.name", Value: opts.Template})
	}
	s.recordings[jvmID] = append(s.recordings[jvmID], rec)
	s.broadcast(notify.ActiveRecordingCreated, recordingPayload{JvmID: jvmID, Recording: rec})
	return rec, nil
}

// StopRecording stops a running recording. Stopping a stopped recording is a no-op.
func (s *Store) StopRecording(jvmID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, err := s.findRecording(jvmID, name)
	if err != nil {
		return err
	}
	rec := &s.recordings[jvmID][i]
	if rec.State == models.RecordingStopped {
		return nil
	}
	rec.State = models.RecordingStopped
	if rec.Continuous {
		rec.Duration = s.now().UnixMilli() - rec.StartTime
	}
	s.broadcast(notify.ActiveRecordingStopped, recordingPayload{JvmID: jvmID, Recording: *rec})
	return nil
}

// ArchiveRecording copies a recording into the archive.
func (s *Store) ArchiveRecording(jvmID, name string) (models.ArchivedRecording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.archiveRecording(jvmID, name)
}

func (s *Store) archiveRecording(jvmID, name string) (models.ArchivedRecording, error) {
	i, err := s.findRecording(jvmID, name)
	if err != nil {
		return models.ArchivedRecording{}, err
	}
	rec := s.recordings[jvmID][i]
	now := s.now()
	elapsed := now.UnixMilli() - rec.StartTime
	if elapsed < 1 {
		elapsed = 1
	}
	archived := models.ArchivedRecording{
		JvmID:        jvmID,
		Name:         fmt.Sprintf("%s_%s_%s.jfr", s.targets[jvmID].Alias, rec.Name, now.UTC().Format("20060102T150405Z")),
		Metadata:     models.Metadata{Labels: append([]models.Label{}, rec.Metadata.Labels...)},
		Size:         elapsed * 64,
		ArchivedTime: now.UnixMilli(),
	}
	for _, a := range s.archives {
		if a.JvmID == jvmID && a.Name == archived.Name {
			return models.ArchivedRecording{}, invalid("archive %q already exists", archived.Name)
		}
	}
	s.archives = append(s.archives, archived)
	s.broadcast(notify.ActiveRecordingSaved, recordingPayload{JvmID: jvmID, Recording: archived})
	return archived, nil
}

func (s *Store) DeleteRecording(jvmID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, err := s.findRecording(jvmID, name)
	if err != nil {
		return err
	}
	rec := s.recordings[jvmID][i]
	s.recordings[jvmID] = append(s.recordings[jvmID][:i:i], s.recordings[jvmID][i+1:]...)
	s.broadcast(notify.ActiveRecordingDeleted, recordingPayload{JvmID: jvmID, Recording: rec})
	return nil
}

// SetRecordingLabels replaces the labels of an active recording.
func (s *Store) SetRecordingLabels(jvmID, name string, labels []models.Label) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, err := s.findRecording(jvmID, name)
	if err != nil {
		return err
	}
	meta := models.Metadata{Labels: append([]models.Label{}, labels...)}
	s.recordings[jvmID][i].Metadata = meta
	s.broadcast(notify.RecordingMetadataUpdated, recordingPayload{
		JvmID:     jvmID,
		Recording: metadataPatch{Name: name, Metadata: meta},
	})
	return nil
}

// Archives lists archives of one target, or all of them when jvmID is empty.
func (s *Store) Archives(jvmID string) []models.ArchivedRecording {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.ArchivedRecording{}
	for _, a := range s.archives {
		if jvmID == "" || a.JvmID == jvmID {
			out = append(out, a)
		}
	}
	return out
}

// ArchiveSummaries lists every known target with its archive count.
func (s *Store) ArchiveSummaries() []models.ArchiveSummary {
	targets := s.Targets()
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int)
	for _, a := range s.archives {
		counts[a.JvmID]++
	}
	out := make([]models.ArchiveSummary, len(targets))
	for i, t := range targets {
		out[i] = models.ArchiveSummary{Target: t, Count: counts[t.JvmID]}
	}
	return out
}

// DeleteArchive removes an archive. An empty jvmID matches the first archive
// with that name.
func (s *Store) DeleteArchive(jvmID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, a := range s.archives {
		if a.Name == name && (jvmID == "" || a.JvmID == jvmID) {
			s.archives = append(s.archives[:i:i], s.archives[i+1:]...)
			s.broadcast(notify.ArchivedRecordingDeleted, recordingPayload{JvmID: a.JvmID, Recording: a})
			return nil
		}
	}
	return notFound("archive", name)
}

func (s *Store) ThreadDumps(jvmID string) ([]models.ThreadDump, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.targets[jvmID]; !ok {
		return nil, notFound("target", jvmID)
	}
	return append([]models.ThreadDump{}, s.threadDumps[jvmID]...), nil
}

// CreateThreadDump captures a dump and announces it.
func (s *Store) CreateThreadDump(jvmID string) (models.ThreadDump, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.targets[jvmID]; !ok {
		return models.ThreadDump{}, notFound("target", jvmID)
	}
	d := models.ThreadDump{
		JvmID:        jvmID,
		ThreadDumpID: uuid.NewString(),
		Size:         int64(48*1024 + len(s.threadDumps[jvmID])*512),
		LastModified: s.now().UnixMilli(),
	}
	s.threadDumps[jvmID] = append(s.threadDumps[jvmID], d)
	s.broadcast(notify.ThreadDumpSuccess, threadDumpPayload{JvmID: jvmID, ThreadDump: &d})
	return d, nil
}

func (s *Store) DeleteThreadDump(jvmID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dumps := s.threadDumps[jvmID]
	for i, d := range dumps {
		if d.ThreadDumpID == id {
			s.threadDumps[jvmID] = append(dumps[:i:i], dumps[i+1:]...)
			s.broadcast(notify.ThreadDumpDeleted, threadDumpPayload{JvmID: jvmID, ThreadDumpID: id})
			return nil
		}
	}
	return notFound("thread dump", id)
}

func (s *Store) HeapDumps(jvmID string) ([]models.HeapDump, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.targets[jvmID]; !ok {
		return nil, notFound("target", jvmID)
	}
	return append([]models.HeapDump{}, s.heapDumps[jvmID]...), nil
}

// CreateHeapDump captures a heap dump and announces it.
func (s *Store) CreateHeapDump(jvmID string) (models.HeapDump, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.targets[jvmID]; !ok {
		return models.HeapDump{}, notFound("target", jvmID)
	}
	d := models.HeapDump{
		JvmID:        jvmID,
		HeapDumpID:   uuid.NewString(),
		Size:         64 << 20,
		LastModified: s.now().UnixMilli(),
	}
	s.heapDumps[jvmID] = append(s.heapDumps[jvmID], d)
	s.broadcast(notify.HeapDumpSuccess, heapDumpPayload{JvmID: jvmID, HeapDump: &d})
	return d, nil
}

func (s *Store) DeleteHeapDump(jvmID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dumps := s.heapDumps[jvmID]
	for i, d := range dumps {
		if d.HeapDumpID == id {
			s.heapDumps[jvmID] = append(dumps[:i:i], dumps[i+1:]...)
			s.broadcast(notify.HeapDumpDeleted, heapDumpPayload{JvmID: jvmID, HeapDumpID: id})
			return nil
		}
	}
	return notFound("heap dump", id)
}

func (s *Store) Templates() []models.EventTemplate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.EventTemplate{}, s.templates...)
}

// AddTemplate uploads a custom template.
func (s *Store) AddTemplate(t models.EventTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.Type = models.TemplateCustom
	for _, existing := range s.templates {
		if existing.Type == t.Type && existing.Name == t.Name {
			return invalid("template %q already exists", t.Name)
		}
	}
	s.templates = append(s.templates, t)
	s.broadcast(notify.TemplateUploaded, templatePayload{Template: t})
	return nil
}

// DeleteTemplate removes a custom template. Target and preset templates
// cannot be deleted.
func (s *Store) DeleteTemplate(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.templates {
		if t.Name != name {
			continue
		}
		if t.Type != models.TemplateCustom {
			return invalid("template %q is not a custom template", name)
		}
		s.templates = append(s.templates[:i:i], s.templates[i+1:]...)
		s.broadcast(notify.TemplateDeleted, templatePayload{Template: t})
		return nil
	}
	return notFound("template", name)
}

func (s *Store) Rules() []models.Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Rule{}, s.rules...)
}

func (s *Store) CreateRule(r models.Rule) (models.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(r.Name) == "" {
		return models.Rule{}, invalid("rule name is required")
	}
	for _, existing := range s.rules {
		if existing.Name == r.Name {
			return models.Rule{}, invalid("rule %q already exists", r.Name)
		}
	}
	s.rules = append(s.rules, r)
	s.broadcast(notify.RuleCreated, rulePayload{Rule: r})
	return r, nil
}

// SetRuleEnabled toggles a rule and announces only the changed field.
func (s *Store) SetRuleEnabled(name string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rules {
		if s.rules[i].Name == name {
			if s.rules[i].Enabled == enabled {
				return nil
			}
			s.rules[i].Enabled = enabled
			s.broadcast(notify.RuleUpdated, rulePayload{Rule: ruleToggle{Name: name, Enabled: enabled}})
			return nil
		}
	}
	return notFound("rule", name)
}

func (s *Store) DeleteRule(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.rules {
		if r.Name == name {
			s.rules = append(s.rules[:i:i], s.rules[i+1:]...)
			s.broadcast(notify.RuleDeleted, rulePayload{Rule: r})
			return nil
		}
	}
	return notFound("rule", name)
}

// RuleRecordingName is the recording an automated rule keeps on each target.
func RuleRecordingName(rule string) string {
	return "auto_" + rule
}

// triggerRule makes sure the rule's recording runs on the target and
// archives a copy of it.
func (s *Store) triggerRule(jvmID, rule string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var r *models.Rule
	for i := range s.rules {
		if s.rules[i].Name == rule {
			r = &s.rules[i]
		}
	}
	if r == nil || !r.Enabled {
		return notFound("rule", rule)
	}
	name := RuleRecordingName(rule)
	if _, err := s.findRecording(jvmID, name); err != nil {
		if _, ok := s.targets[jvmID]; !ok {
			return err
		}
		_, err := s.startRecording(jvmID, api.RecordingOptions{
			Name:     name,
			Template: r.EventSpecifier,
			Labels:   []models.Label{{Key: "rule", Value: rule}},
		})
		return err
	}
	_, err := s.archiveRecording(jvmID, name)
	return err
}

// Seed adds n simulated targets.
func (s *Store) Seed(n int) {
	for i := 1; i <= n; i++ {
		s.AddTarget(SimulatedTarget(i))
	}
}

// SimulatedTarget describes the i-th simulated JVM.
func SimulatedTarget(i int) models.Target {
	alias := fmt.Sprintf("app-%d", i)
	return models.Target{
		JvmID:      fmt.Sprintf("jvm-%04d", i),
		ConnectURL: fmt.Sprintf("service:jmx:rmi:///jndi/rmi://%s:9091/jmxrmi", alias),
		Alias:      alias,
		Labels:     []models.Label{{Key: "app", Value: alias}},
		Annotations: models.Annotations{
			Platform: []models.Label{{Key: "NAMESPACE", Value: "default"}},
			Cryostat: []models.Label{{Key: "REALM", Value: "Simulated"}},
		},
	}
}
