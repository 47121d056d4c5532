package cmd

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/grovetools/cryoview/cli"
	"github.com/grovetools/cryoview/config"
	"github.com/grovetools/cryoview/logging"
	"github.com/grovetools/cryoview/pkg/filter"
	"github.com/grovetools/cryoview/pkg/live"
	"github.com/grovetools/cryoview/tui"
	"github.com/grovetools/cryoview/tui/keymap"
	"github.com/grovetools/cryoview/tui/watch"
)

// NewWatchCmd opens the interactive view of a collection.
func NewWatchCmd() *cobra.Command {
	var (
		flags       viewFlags
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "watch <collection>",
		Short: "Interactively watch a collection as it changes",
		Long: `Opens a live view that stays consistent with the service through
websocket notifications. Filters, search and bulk actions are available from
the keyboard; press ? for help.`,
		Example: `cryoview watch active-recordings -t jvm-0001
cryoview watch archived-recordings --metrics-addr 127.0.0.1:9101`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tui.InitializeTUI()

			var metrics *live.Metrics
			reg := prometheus.NewRegistry()
			if metricsAddr != "" {
				metrics = live.NewMetrics(reg)
			}

			// Log lines would tear the alternate screen.
			prev := logging.SetGlobalOutput(io.Discard)
			defer logging.SetGlobalOutput(prev)

			s, err := openSession(cmd, args[0], &flags, true, metrics)
			if err != nil {
				return err
			}
			defer s.Close()

			keys := keymap.NewWatch()
			overrides, err := keymap.FromConfig(s.cfg)
			if err != nil {
				s.logger.WithError(err).Warn("Ignoring invalid keybindings")
			} else {
				keymap.ApplyOverrides(&keys, overrides)
			}

			model := watch.New(s.handle, watch.Options{
				Keys:   &keys,
				State:  s.state,
				Logger: s.logger,
			})
			defer model.Close()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			g, gctx := errgroup.WithContext(ctx)

			program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(gctx))
			g.Go(func() error {
				defer cancel()
				_, err := program.Run()
				if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
					return nil
				}
				return err
			})

			if metricsAddr != "" {
				mux := http.NewServeMux()
				mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
				srv := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
				g.Go(func() error {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						return err
					}
					return nil
				})
				g.Go(func() error {
					<-gctx.Done()
					shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
					defer done()
					return srv.Shutdown(shutdownCtx)
				})
			}

			if !s.explicit && !s.saved && cli.GetOptions(cmd).ConfigFile == "" {
				startWatcher(gctx, g, s, args[0])
			}

			return g.Wait()
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve reconciler metrics on this address")
	return cmd
}

// startWatcher reapplies configured default filters when the config changes.
func startWatcher(ctx context.Context, g *errgroup.Group, s *session, name string) {
	cwd, err := os.Getwd()
	if err != nil {
		return
	}
	w, err := config.NewWatcher(cwd, 0, s.logger, func(cfg *config.Config) {
		logging.Reset()
		s.handle.SetFilters(filter.PredicateSet(cfg.Views.Filters[name]))
	})
	if err != nil {
		s.logger.WithError(err).Debug("Config watcher unavailable")
		return
	}
	g.Go(func() error {
		w.Start(ctx)
		return nil
	})
}
