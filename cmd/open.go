package cmd

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/grovetools/cryoview/cli"
	"github.com/grovetools/cryoview/config"
	"github.com/grovetools/cryoview/errors"
	"github.com/grovetools/cryoview/pkg/api"
	"github.com/grovetools/cryoview/pkg/collections"
	"github.com/grovetools/cryoview/pkg/filter"
	"github.com/grovetools/cryoview/pkg/live"
	"github.com/grovetools/cryoview/pkg/notify"
	"github.com/grovetools/cryoview/state"
)

// viewFlags are shared by list and watch.
type viewFlags struct {
	target  string
	filters []string
	save    bool
}

func (f *viewFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.target, "target", "t", "", "Target JVM id for per-target collections")
	cmd.Flags().StringArrayVarP(&f.filters, "filter", "f", nil, "Filter as Category=value (repeatable)")
	cmd.Flags().BoolVar(&f.save, "save", false, "Remember the given filters for this collection")
}

// session is an opened collection with everything it depends on.
type session struct {
	cfg        *config.Config
	collection collections.Collection
	handle     collections.Handle
	channel    notify.Channel
	state      *state.Store
	// explicit is set when filters came from flags, saved when they came
	// from the state file.
	explicit bool
	saved    bool
	logger   *logrus.Entry
	closers  []func()
}

func (s *session) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// resolveFilters picks flag filters, then saved filters. Nil leaves the
// configured defaults in effect.
func resolveFilters(c collections.Collection, f *viewFlags, st *state.Store) (filter.PredicateSet, bool, error) {
	if len(f.filters) > 0 {
		set, err := filter.Parse(f.filters)
		if err != nil {
			return nil, false, err
		}
		known := make(map[string]bool)
		for _, cat := range c.Categories() {
			known[cat] = true
		}
		for cat := range set {
			if !known[cat] {
				return nil, false, errors.UnknownCategory(cat)
			}
		}
		return set, true, nil
	}
	saved, err := st.Filters(c.Name(), f.target)
	if err != nil {
		return nil, false, err
	}
	return saved, false, nil
}

// openSession opens a collection. With subscribe set, it subscribes to the
// service's websocket notifications; otherwise an idle in-process hub is used.
func openSession(cmd *cobra.Command, name string, f *viewFlags, subscribe bool, metrics *live.Metrics) (*session, error) {
	cfg, err := cli.LoadConfig(cmd)
	if err != nil {
		return nil, err
	}
	c, err := collections.Default().Get(name)
	if err != nil {
		return nil, err
	}

	s := &session{
		cfg:        cfg,
		collection: c,
		state:      state.Default(),
		logger:     cli.GetLogger(cmd, "cryoview"),
	}
	set, explicit, err := resolveFilters(c, f, s.state)
	if err != nil {
		return nil, err
	}
	s.explicit = explicit
	s.saved = !explicit && set != nil
	if explicit && f.save {
		if err := s.state.SaveFilters(name, f.target, set); err != nil {
			s.logger.WithError(err).Warn("Failed to save filters")
		}
	}

	client := api.FromConfig(cfg.Server, cli.GetLogger(cmd, "api"))
	validator, err := notify.NewValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to load notification schemas: %w", err)
	}

	if subscribe {
		ws := notify.NewWebsocketChannel(notify.WebsocketOptions{
			URL:    client.NotificationsURL(),
			Token:  cfg.Server.Token,
			Logger: cli.GetLogger(cmd, "notify"),
		})
		ws.Start(context.Background())
		s.channel = ws
		s.closers = append(s.closers, func() { ws.Close() })
	} else {
		hub := notify.NewHub()
		s.channel = hub
		s.closers = append(s.closers, func() { hub.Close() })
	}

	h, err := c.Open(collections.Deps{
		Client:    client,
		Channel:   s.channel,
		Validator: validator,
		Metrics:   metrics,
		Logger:    cli.GetLogger(cmd, "view"),
		Views:     cfg.Views,
	}, f.target, set)
	if err != nil {
		s.Close()
		return nil, err
	}
	if err := h.Start(cmd.Context()); err != nil {
		s.Close()
		return nil, err
	}
	s.handle = h
	s.closers = append(s.closers, h.Stop)
	return s, nil
}
