package collections

import (
	"context"

	"github.com/grovetools/cryoview/pkg/api"
	"github.com/grovetools/cryoview/pkg/filter"
	"github.com/grovetools/cryoview/pkg/keys"
	"github.com/grovetools/cryoview/pkg/live"
	"github.com/grovetools/cryoview/pkg/loader"
	"github.com/grovetools/cryoview/pkg/models"
	"github.com/grovetools/cryoview/pkg/notify"
)

var dumpColumns = []string{"ID", "SIZE", "MODIFIED"}

type threadDumpPayload struct {
	JvmID        string            `json:"jvmId"`
	ThreadDump   models.ThreadDump `json:"threadDump"`
	ThreadDumpID string            `json:"threadDumpId"`
}

type heapDumpPayload struct {
	JvmID      string          `json:"jvmId"`
	HeapDump   models.HeapDump `json:"heapDump"`
	HeapDumpID string          `json:"heapDumpId"`
}

func ThreadDumps() Collection {
	return &site[models.ThreadDump]{
		name:        "thread-dumps",
		description: "Thread dumps captured from a target JVM",
		scoped:      true,
		columns:     dumpColumns,
		cells: func(d models.ThreadDump) []string {
			return []string{d.ThreadDumpID, models.FormatBytes(d.Size), formatMillis(d.LastModified)}
		},
		adapter: live.Adapter[models.ThreadDump]{
			Key:  keys.ThreadDump,
			Size: func(d models.ThreadDump) int64 { return d.Size },
		},
		query: func(c *api.Client) loader.Query[models.ThreadDump] {
			return func(ctx context.Context, scope string) (live.Snapshot[models.ThreadDump], error) {
				dumps, err := c.ThreadDumps(ctx, scope)
				if err != nil {
					return live.Snapshot[models.ThreadDump]{}, err
				}
				for i := range dumps {
					dumps[i].JvmID = scope
				}
				return live.Snapshot[models.ThreadDump]{Records: dumps}, nil
			}
		},
		parsers: func(scope string) map[string]notify.Parser[models.ThreadDump] {
			parse := func(kind live.Kind) notify.Parser[models.ThreadDump] {
				return func(msg notify.Message) ([]live.Event[models.ThreadDump], error) {
					p, err := decode[threadDumpPayload](msg)
					if err != nil || p.JvmID != scope {
						return nil, err
					}
					d := p.ThreadDump
					if kind == live.Deleted {
						d = models.ThreadDump{ThreadDumpID: p.ThreadDumpID}
					}
					d.JvmID = p.JvmID
					return []live.Event[models.ThreadDump]{{Kind: kind, Record: d}}, nil
				}
			}
			return map[string]notify.Parser[models.ThreadDump]{
				notify.ThreadDumpSuccess: parse(live.Created),
				notify.ThreadDumpDeleted: parse(live.Deleted),
			}
		},
		categories: []filter.Category[models.ThreadDump]{
			{Name: "Name", Match: filter.Substring(func(d models.ThreadDump) string { return d.ThreadDumpID })},
		},
		actions: map[string]RecordAction[models.ThreadDump]{
			"delete": func(ctx context.Context, c *api.Client, scope string, d models.ThreadDump) error {
				return c.DeleteThreadDump(ctx, d.JvmID, d.ThreadDumpID)
			},
		},
	}
}

func HeapDumps() Collection {
	return &site[models.HeapDump]{
		name:        "heap-dumps",
		description: "Heap dumps captured from or uploaded for a target JVM",
		scoped:      true,
		columns:     dumpColumns,
		cells: func(d models.HeapDump) []string {
			return []string{d.HeapDumpID, models.FormatBytes(d.Size), formatMillis(d.LastModified)}
		},
		adapter: live.Adapter[models.HeapDump]{
			Key:  keys.HeapDump,
			Size: func(d models.HeapDump) int64 { return d.Size },
		},
		query: func(c *api.Client) loader.Query[models.HeapDump] {
			return func(ctx context.Context, scope string) (live.Snapshot[models.HeapDump], error) {
				dumps, err := c.HeapDumps(ctx, scope)
				if err != nil {
					return live.Snapshot[models.HeapDump]{}, err
				}
				for i := range dumps {
					dumps[i].JvmID = scope
				}
				return live.Snapshot[models.HeapDump]{Records: dumps}, nil
			}
		},
		parsers: func(scope string) map[string]notify.Parser[models.HeapDump] {
			parse := func(kind live.Kind) notify.Parser[models.HeapDump] {
				return func(msg notify.Message) ([]live.Event[models.HeapDump], error) {
					p, err := decode[heapDumpPayload](msg)
					if err != nil || p.JvmID != scope {
						return nil, err
					}
					d := p.HeapDump
					if kind == live.Deleted {
						d = models.HeapDump{HeapDumpID: p.HeapDumpID}
					}
					d.JvmID = p.JvmID
					return []live.Event[models.HeapDump]{{Kind: kind, Record: d}}, nil
				}
			}
			return map[string]notify.Parser[models.HeapDump]{
				notify.HeapDumpSuccess:  parse(live.Created),
				notify.HeapDumpUploaded: parse(live.Created),
				notify.HeapDumpDeleted:  parse(live.Deleted),
			}
		},
		categories: []filter.Category[models.HeapDump]{
			{Name: "Name", Match: filter.Substring(func(d models.HeapDump) string { return d.HeapDumpID })},
		},
		actions: map[string]RecordAction[models.HeapDump]{
			"delete": func(ctx context.Context, c *api.Client, scope string, d models.HeapDump) error {
				return c.DeleteHeapDump(ctx, d.JvmID, d.HeapDumpID)
			},
		},
	}
}
