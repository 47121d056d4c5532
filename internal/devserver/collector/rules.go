package collector

import (
	"context"
	"strings"
	"time"

	"github.com/grovetools/cryoview/internal/devserver/store"
	"github.com/grovetools/cryoview/pkg/models"
)

// RuleCollector fires enabled rules against matching targets. The first
// firing starts the rule's recording, later ones archive it.
type RuleCollector struct {
	interval time.Duration
}

func NewRuleCollector(interval time.Duration) *RuleCollector {
	return &RuleCollector{interval: interval}
}

func (c *RuleCollector) Name() string { return "rules" }

func (c *RuleCollector) Run(ctx context.Context, st *store.Store, updates chan<- store.Update) error {
	if c.interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for _, u := range c.firings(st) {
				if !emit(ctx, updates, u) {
					return nil
				}
			}
		}
	}
}

func (c *RuleCollector) firings(st *store.Store) []store.Update {
	var out []store.Update
	targets := st.Targets()
	for _, r := range st.Rules() {
		if !r.Enabled {
			continue
		}
		for _, t := range targets {
			if Matches(r.MatchExpression, t) {
				out = append(out, store.Update{Type: store.UpdateRuleTriggered, Source: c.Name(), JvmID: t.JvmID, Name: r.Name})
			}
		}
	}
	return out
}

// Matches evaluates a simplified match expression: "true" matches every
// target, anything else matches targets whose alias, JVM id or connect URL
// contains it.
func Matches(expr string, t models.Target) bool {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return false
	}
	if expr == "true" {
		return true
	}
	return strings.Contains(t.Alias, expr) || strings.Contains(t.JvmID, expr) || strings.Contains(t.ConnectURL, expr)
}
