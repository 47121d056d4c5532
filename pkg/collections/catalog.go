package collections

import (
	"context"
	"strconv"

	"github.com/grovetools/cryoview/errors"
	"github.com/grovetools/cryoview/pkg/api"
	"github.com/grovetools/cryoview/pkg/filter"
	"github.com/grovetools/cryoview/pkg/keys"
	"github.com/grovetools/cryoview/pkg/live"
	"github.com/grovetools/cryoview/pkg/loader"
	"github.com/grovetools/cryoview/pkg/models"
	"github.com/grovetools/cryoview/pkg/notify"
)

type templatePayload struct {
	Template models.EventTemplate `json:"template"`
}

type rulePayload struct {
	Rule models.Rule `json:"rule"`
}

// EventTemplates lists JFR event templates known to the service.
func EventTemplates() Collection {
	return &site[models.EventTemplate]{
		name:        "event-templates",
		description: "JFR event templates: target, preset and uploaded",
		columns:     []string{"NAME", "TYPE", "PROVIDER", "DESCRIPTION"},
		cells: func(t models.EventTemplate) []string {
			return []string{t.Name, string(t.Type), t.Provider, t.Description}
		},
		adapter: live.Adapter[models.EventTemplate]{Key: keys.EventTemplate},
		query: func(c *api.Client) loader.Query[models.EventTemplate] {
			return func(ctx context.Context, _ string) (live.Snapshot[models.EventTemplate], error) {
				templates, err := c.EventTemplates(ctx)
				return live.Snapshot[models.EventTemplate]{Records: templates}, err
			}
		},
		parsers: func(string) map[string]notify.Parser[models.EventTemplate] {
			parse := func(kind live.Kind) notify.Parser[models.EventTemplate] {
				return func(msg notify.Message) ([]live.Event[models.EventTemplate], error) {
					p, err := decode[templatePayload](msg)
					if err != nil {
						return nil, err
					}
					return []live.Event[models.EventTemplate]{{Kind: kind, Record: p.Template}}, nil
				}
			}
			return map[string]notify.Parser[models.EventTemplate]{
				notify.TemplateUploaded: parse(live.Created),
				notify.TemplateDeleted:  parse(live.Deleted),
			}
		},
		categories: []filter.Category[models.EventTemplate]{
			{Name: "Name", Match: filter.Substring(func(t models.EventTemplate) string { return t.Name })},
			{Name: "Type", Match: filter.Exact(func(t models.EventTemplate) string { return string(t.Type) })},
		},
		actions: map[string]RecordAction[models.EventTemplate]{
			"delete": func(ctx context.Context, c *api.Client, _ string, t models.EventTemplate) error {
				if t.Type != models.TemplateCustom {
					return errors.New(errors.ErrCodeInvalidInput, "only uploaded templates can be deleted").
						WithDetail("template", t.Name)
				}
				return c.DeleteEventTemplate(ctx, t.Name)
			},
		},
	}
}

// Rules lists automated recording rules.
func Rules() Collection {
	return &site[models.Rule]{
		name:        "rules",
		description: "Automated recording rules",
		columns:     []string{"NAME", "ENABLED", "MATCH", "EVENTS"},
		cells: func(r models.Rule) []string {
			return []string{r.Name, strconv.FormatBool(r.Enabled), r.MatchExpression, r.EventSpecifier}
		},
		adapter: live.Adapter[models.Rule]{
			Key:   keys.Rule,
			Merge: models.MergeFields[models.Rule],
		},
		query: func(c *api.Client) loader.Query[models.Rule] {
			return func(ctx context.Context, _ string) (live.Snapshot[models.Rule], error) {
				rules, err := c.Rules(ctx)
				return live.Snapshot[models.Rule]{Records: rules}, err
			}
		},
		parsers: func(string) map[string]notify.Parser[models.Rule] {
			parse := func(kind live.Kind, partial bool) notify.Parser[models.Rule] {
				return func(msg notify.Message) ([]live.Event[models.Rule], error) {
					p, err := decode[rulePayload](msg)
					if err != nil {
						return nil, err
					}
					ev := live.Event[models.Rule]{Kind: kind, Record: p.Rule}
					if partial {
						if ev.Fields, err = notify.PresentFields(msg.Payload, "rule"); err != nil {
							return nil, err
						}
					}
					return []live.Event[models.Rule]{ev}, nil
				}
			}
			return map[string]notify.Parser[models.Rule]{
				notify.RuleCreated: parse(live.Created, false),
				notify.RuleUpdated: parse(live.Updated, true),
				notify.RuleDeleted: parse(live.Deleted, false),
			}
		},
		categories: []filter.Category[models.Rule]{
			{Name: "Name", Match: filter.Substring(func(r models.Rule) string { return r.Name })},
			{Name: "Enabled", Match: filter.Bool(func(r models.Rule) bool { return r.Enabled })},
		},
		actions: map[string]RecordAction[models.Rule]{
			"enable": func(ctx context.Context, c *api.Client, _ string, r models.Rule) error {
				return c.SetRuleEnabled(ctx, r.Name, true)
			},
			"disable": func(ctx context.Context, c *api.Client, _ string, r models.Rule) error {
				return c.SetRuleEnabled(ctx, r.Name, false)
			},
			"delete": func(ctx context.Context, c *api.Client, _ string, r models.Rule) error {
				return c.DeleteRule(ctx, r.Name)
			},
		},
	}
}

func targetLabels(t models.Target) []models.Label { return t.Labels }

func targetAnnotations(t models.Target) []models.Label {
	out := make([]models.Label, 0, len(t.Annotations.Platform)+len(t.Annotations.Cryostat))
	out = append(out, t.Annotations.Platform...)
	return append(out, t.Annotations.Cryostat...)
}

// Targets lists discovered JVMs.
func Targets() Collection {
	return &site[models.Target]{
		name:        "targets",
		description: "JVMs discovered by the diagnostics service",
		columns:     []string{"ALIAS", "JVM ID", "CONNECT URL", "LABELS"},
		cells: func(t models.Target) []string {
			return []string{t.Alias, t.JvmID, t.ConnectURL, models.FormatLabels(t.Labels)}
		},
		adapter: live.Adapter[models.Target]{Key: keys.Target},
		query: func(c *api.Client) loader.Query[models.Target] {
			return func(ctx context.Context, _ string) (live.Snapshot[models.Target], error) {
				targets, err := c.Targets(ctx)
				return live.Snapshot[models.Target]{Records: targets}, err
			}
		},
		parsers: func(string) map[string]notify.Parser[models.Target] {
			return map[string]notify.Parser[models.Target]{
				notify.TargetJvmDiscovery: func(msg notify.Message) ([]live.Event[models.Target], error) {
					p, err := decode[discoveryPayload](msg)
					if err != nil {
						return nil, err
					}
					ref := p.Event.ServiceRef
					switch p.Event.Kind {
					case discoveryFound:
						return []live.Event[models.Target]{{Kind: live.Created, Record: ref}}, nil
					case discoveryModified:
						// A target identified since it was listed moves from its
						// connect URL key to its JVM id.
						if old, ok := placeholder(ref); ok {
							return []live.Event[models.Target]{
								{Kind: live.Deleted, Record: old},
								{Kind: live.Created, Record: ref},
							}, nil
						}
						return []live.Event[models.Target]{{Kind: live.Updated, Record: ref}}, nil
					case discoveryLost:
						return []live.Event[models.Target]{{Kind: live.Deleted, Record: ref}}, nil
					}
					return nil, nil
				},
			}
		},
		categories: []filter.Category[models.Target]{
			{Name: "Alias", Match: filter.Substring(func(t models.Target) string { return t.Alias })},
			{Name: "ConnectUrl", Match: filter.Substring(func(t models.Target) string { return t.ConnectURL })},
			{Name: "Label", Match: filter.Labels(targetLabels), Search: filter.LabelText(targetLabels)},
			{Name: "Annotation", Match: filter.Labels(targetAnnotations), Search: filter.LabelText(targetAnnotations)},
		},
	}
}
