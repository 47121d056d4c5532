package collections

import (
	"context"
	"time"

	"github.com/grovetools/cryoview/pkg/api"
	"github.com/grovetools/cryoview/pkg/filter"
	"github.com/grovetools/cryoview/pkg/keys"
	"github.com/grovetools/cryoview/pkg/live"
	"github.com/grovetools/cryoview/pkg/loader"
	"github.com/grovetools/cryoview/pkg/models"
	"github.com/grovetools/cryoview/pkg/notify"
)

// ExpandAll is the target-archives scope that also loads every archive,
// making each target's count exact.
const ExpandAll = "all"

type recordingPayload struct {
	JvmID     string                 `json:"jvmId"`
	Recording models.ActiveRecording `json:"recording"`
}

type archivePayload struct {
	JvmID     string                   `json:"jvmId"`
	Recording models.ArchivedRecording `json:"recording"`
}

var recordingLabels = func(r models.ActiveRecording) []models.Label { return r.Metadata.Labels }

var archiveLabels = func(r models.ArchivedRecording) []models.Label { return r.Metadata.Labels }

// ActiveRecordings lists the flight recordings inside one target.
func ActiveRecordings() Collection {
	return &site[models.ActiveRecording]{
		name:        "active-recordings",
		description: "Flight recordings running or stopped inside a target JVM",
		scoped:      true,
		columns:     []string{"NAME", "STATE", "STARTED", "DURATION", "LABELS"},
		cells: func(r models.ActiveRecording) []string {
			duration := "continuous"
			if !r.Continuous {
				duration = (time.Duration(r.Duration) * time.Millisecond).String()
			}
			return []string{r.Name, string(r.State), formatMillis(r.StartTime), duration, models.FormatLabels(r.Metadata.Labels)}
		},
		adapter: live.Adapter[models.ActiveRecording]{
			Key:   keys.ActiveRecording,
			Merge: models.MergeFields[models.ActiveRecording],
		},
		query: func(c *api.Client) loader.Query[models.ActiveRecording] {
			return func(ctx context.Context, scope string) (live.Snapshot[models.ActiveRecording], error) {
				recs, err := c.ActiveRecordings(ctx, scope)
				if err != nil {
					return live.Snapshot[models.ActiveRecording]{}, err
				}
				for i := range recs {
					recs[i].JvmID = scope
				}
				return live.Snapshot[models.ActiveRecording]{Records: recs}, nil
			}
		},
		parsers: func(scope string) map[string]notify.Parser[models.ActiveRecording] {
			return map[string]notify.Parser[models.ActiveRecording]{
				notify.ActiveRecordingCreated:   activeParser(scope, live.Created, false),
				notify.SnapshotCreated:          activeParser(scope, live.Created, false),
				notify.ActiveRecordingStopped:   activeParser(scope, live.Updated, true),
				notify.ActiveRecordingDeleted:   activeParser(scope, live.Deleted, false),
				notify.RecordingMetadataUpdated: activeParser(scope, live.Updated, true),
			}
		},
		categories: []filter.Category[models.ActiveRecording]{
			{Name: "Name", Match: filter.Substring(func(r models.ActiveRecording) string { return r.Name })},
			{Name: "Label", Match: filter.Labels(recordingLabels), Search: filter.LabelText(recordingLabels)},
			{Name: "State", Match: filter.Exact(func(r models.ActiveRecording) string { return string(r.State) })},
			{Name: "StartedBeforeDate", Match: filter.Before(models.ActiveRecording.Started)},
			{Name: "StartedAfterDate", Match: filter.After(models.ActiveRecording.Started)},
			{Name: "DurationSeconds", Match: filter.AtLeastSeconds(func(r models.ActiveRecording) int64 { return r.Duration / 1000 })},
		},
		transient: func(r models.ActiveRecording) bool { return r.State.Transient() },
		actions: map[string]RecordAction[models.ActiveRecording]{
			"stop": func(ctx context.Context, c *api.Client, scope string, r models.ActiveRecording) error {
				return c.StopRecording(ctx, r.JvmID, r.Name)
			},
			"archive": func(ctx context.Context, c *api.Client, scope string, r models.ActiveRecording) error {
				_, err := c.ArchiveRecording(ctx, r.JvmID, r.Name)
				return err
			},
			"delete": func(ctx context.Context, c *api.Client, scope string, r models.ActiveRecording) error {
				return c.DeleteRecording(ctx, r.JvmID, r.Name)
			},
		},
	}
}

// activeParser decodes a recording notification. Notifications for other
// targets produce no events. A partial parser masks the merge to the
// recording fields present in the payload.
func activeParser(scope string, kind live.Kind, partial bool) notify.Parser[models.ActiveRecording] {
	return func(msg notify.Message) ([]live.Event[models.ActiveRecording], error) {
		p, err := decode[recordingPayload](msg)
		if err != nil {
			return nil, err
		}
		if p.JvmID == "" || p.JvmID != scope {
			return nil, nil
		}
		rec := p.Recording
		rec.JvmID = p.JvmID
		ev := live.Event[models.ActiveRecording]{Kind: kind, Record: rec}
		if partial {
			if ev.Fields, err = notify.PresentFields(msg.Payload, "recording"); err != nil {
				return nil, err
			}
		}
		return []live.Event[models.ActiveRecording]{ev}, nil
	}
}

func archiveCells(r models.ArchivedRecording) []string {
	return []string{r.Name, r.JvmID, models.FormatBytes(r.Size), formatMillis(r.ArchivedTime), models.FormatLabels(r.Metadata.Labels)}
}

var archiveColumns = []string{"NAME", "TARGET", "SIZE", "ARCHIVED", "LABELS"}

var archiveCategories = []filter.Category[models.ArchivedRecording]{
	{Name: "Name", Match: filter.Substring(func(r models.ArchivedRecording) string { return r.Name })},
	{Name: "Label", Match: filter.Labels(archiveLabels), Search: filter.LabelText(archiveLabels)},
}

func archiveSize(r models.ArchivedRecording) int64 { return r.Size }

// ArchivedRecordings lists archives copied out of one target, or every
// archive when opened without a target.
func ArchivedRecordings() Collection {
	return &site[models.ArchivedRecording]{
		name:        "archived-recordings",
		description: "Recordings archived from a target, or every archive without --target",
		columns:     archiveColumns,
		cells:       archiveCells,
		adapter: live.Adapter[models.ArchivedRecording]{
			Key:   keys.ArchivedRecording,
			Merge: models.MergeFields[models.ArchivedRecording],
			Size:  archiveSize,
		},
		query: func(c *api.Client) loader.Query[models.ArchivedRecording] {
			return func(ctx context.Context, scope string) (live.Snapshot[models.ArchivedRecording], error) {
				recs, err := c.ArchivedRecordings(ctx, scope)
				if err != nil {
					return live.Snapshot[models.ArchivedRecording]{}, err
				}
				if scope != "" {
					for i := range recs {
						recs[i].JvmID = scope
					}
				}
				return live.Snapshot[models.ArchivedRecording]{Records: recs}, nil
			}
		},
		parsers: func(scope string) map[string]notify.Parser[models.ArchivedRecording] {
			return map[string]notify.Parser[models.ArchivedRecording]{
				notify.ArchivedRecordingCreated: archiveParser(scope, live.Created, false),
				notify.ActiveRecordingSaved:     archiveParser(scope, live.Created, false),
				notify.ArchivedRecordingDeleted: archiveParser(scope, live.Deleted, false),
				notify.RecordingMetadataUpdated: archiveParser(scope, live.Updated, true),
			}
		},
		categories: archiveCategories,
		actions: map[string]RecordAction[models.ArchivedRecording]{
			"delete": deleteArchive,
		},
	}
}

func deleteArchive(ctx context.Context, c *api.Client, scope string, r models.ArchivedRecording) error {
	return c.DeleteArchivedRecording(ctx, r.JvmID, r.Name)
}

// archiveParser decodes an archive notification. An empty scope accepts
// every target.
func archiveParser(scope string, kind live.Kind, partial bool) notify.Parser[models.ArchivedRecording] {
	return func(msg notify.Message) ([]live.Event[models.ArchivedRecording], error) {
		p, err := decode[archivePayload](msg)
		if err != nil {
			return nil, err
		}
		if !inScope(scope, p.JvmID) {
			return nil, nil
		}
		rec := p.Recording
		if p.JvmID != "" {
			rec.JvmID = p.JvmID
		}
		ev := live.Event[models.ArchivedRecording]{Kind: kind, Record: rec}
		if partial {
			if ev.Fields, err = notify.PresentFields(msg.Payload, "recording"); err != nil {
				return nil, err
			}
		}
		return []live.Event[models.ArchivedRecording]{ev}, nil
	}
}

// TargetArchives shows every target with its archive count. Opened with the
// ExpandAll scope it also caches every archive and counts them exactly;
// otherwise counts start from the server summary and follow notifications.
func TargetArchives() Collection {
	return &site[models.ArchivedRecording]{
		name:          "target-archives",
		description:   "Archive counts for every target (scope \"all\" loads the archives too)",
		columns:       archiveColumns,
		cells:         archiveCells,
		parentColumns: []string{"TARGET", "ARCHIVES"},
		adapter: live.Adapter[models.ArchivedRecording]{
			Key:                  keys.ArchivedRecording,
			Merge:                models.MergeFields[models.ArchivedRecording],
			Parent:               func(r models.ArchivedRecording) string { return r.JvmID },
			Size:                 archiveSize,
			CascadeParentRemoval: true,
		},
		query: func(c *api.Client) loader.Query[models.ArchivedRecording] {
			return func(ctx context.Context, scope string) (live.Snapshot[models.ArchivedRecording], error) {
				summaries, err := c.ArchiveSummaries(ctx)
				if err != nil {
					return live.Snapshot[models.ArchivedRecording]{}, err
				}
				snap := live.Snapshot[models.ArchivedRecording]{
					Parents: make([]live.ParentRow, 0, len(summaries)),
				}
				for _, s := range summaries {
					snap.Parents = append(snap.Parents, live.ParentRow{Key: keys.ArchiveSummary(s), Count: s.Count})
				}
				if scope != ExpandAll {
					return snap, nil
				}
				if snap.Records, err = c.ArchivedRecordings(ctx, ""); err != nil {
					return live.Snapshot[models.ArchivedRecording]{}, err
				}
				snap.TrackAll = true
				return snap, nil
			}
		},
		parsers: func(string) map[string]notify.Parser[models.ArchivedRecording] {
			return map[string]notify.Parser[models.ArchivedRecording]{
				notify.TargetJvmDiscovery:       targetParentParser,
				notify.ArchivedRecordingCreated: archiveParser("", live.Created, false),
				notify.ActiveRecordingSaved:     archiveParser("", live.Created, false),
				notify.ArchivedRecordingDeleted: archiveParser("", live.Deleted, false),
			}
		},
		categories: archiveCategories,
		actions: map[string]RecordAction[models.ArchivedRecording]{
			"delete": deleteArchive,
		},
	}
}

// targetParentParser turns discovery into parent row lifecycle events.
func targetParentParser(msg notify.Message) ([]live.Event[models.ArchivedRecording], error) {
	p, err := decode[discoveryPayload](msg)
	if err != nil {
		return nil, err
	}
	key := keys.Target(p.Event.ServiceRef)
	switch p.Event.Kind {
	case discoveryFound:
		return []live.Event[models.ArchivedRecording]{{Kind: live.ParentAdded, ParentKey: key}}, nil
	case discoveryModified:
		old, ok := placeholder(p.Event.ServiceRef)
		if !ok {
			return nil, nil
		}
		return []live.Event[models.ArchivedRecording]{
			{Kind: live.ParentRemoved, ParentKey: keys.Target(old)},
			{Kind: live.ParentAdded, ParentKey: key},
		}, nil
	case discoveryLost:
		return []live.Event[models.ArchivedRecording]{{Kind: live.ParentRemoved, ParentKey: key}}, nil
	}
	return nil, nil
}
