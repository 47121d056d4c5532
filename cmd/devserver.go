package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/grovetools/cryoview/cli"
	"github.com/grovetools/cryoview/config"
	"github.com/grovetools/cryoview/internal/devserver/collector"
	"github.com/grovetools/cryoview/internal/devserver/engine"
	"github.com/grovetools/cryoview/internal/devserver/pidfile"
	"github.com/grovetools/cryoview/internal/devserver/server"
	"github.com/grovetools/cryoview/internal/devserver/store"
	"github.com/grovetools/cryoview/logging"
	"github.com/grovetools/cryoview/pkg/api"
	"github.com/grovetools/cryoview/pkg/paths"
	"github.com/grovetools/cryoview/pkg/process"
)

// NewDevserverCmd manages the simulated diagnostics service.
func NewDevserverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devserver",
		Short: "Run a simulated diagnostics service for local development",
		Long: `The devserver serves the same REST and notification API as the real
service, backed by an in-memory world of simulated JVM targets that appear,
disappear and finish recordings on their own.`,
	}
	cmd.AddCommand(newDevserverStartCmd(), newDevserverStopCmd(), newDevserverStatusCmd())
	return cmd
}

func newDevserverStartCmd() *cobra.Command {
	var (
		addr    string
		targets int
		token   string
	)
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the devserver in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}
			logger := cli.GetLogger(cmd, "devserver")

			dc := cfg.Devserver
			if cmd.Flags().Changed("addr") {
				dc.Addr = addr
			}
			if cmd.Flags().Changed("targets") {
				dc.Targets = targets
			}
			if cmd.Flags().Changed("auth-token") {
				dc.Token = token
			}

			if err := paths.EnsureDirs(); err != nil {
				return err
			}
			pidPath := paths.PidFilePath()
			if err := pidfile.Acquire(pidPath, dc.Addr); err != nil {
				return err
			}
			defer pidfile.Release(pidPath)

			st := store.New()
			st.Seed(dc.Targets)

			discovery := config.Duration(dc.DiscoveryInterval, 20*time.Second)
			recording := config.Duration(dc.RecordingInterval, time.Second)
			rules := config.Duration(dc.RuleInterval, 30*time.Second)

			eng := engine.New(st, cli.GetLogger(cmd, "engine"))
			eng.Register(collector.NewDiscoveryCollector(discovery, dc.Targets*2, dc.Targets))
			eng.Register(collector.NewRecordingCollector(recording))
			eng.Register(collector.NewRuleCollector(rules))

			srv := server.New(logger, dc.Token)
			srv.SetEngine(eng)
			srv.SetRunningConfig(&server.RunningConfig{
				Targets:           dc.Targets,
				DiscoveryInterval: discovery,
				RecordingInterval: recording,
				RuleInterval:      rules,
				AuthRequired:      dc.Token != "",
				StartedAt:         time.Now(),
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			g, gctx := errgroup.WithContext(ctx)

			g.Go(func() error { return eng.Start(gctx) })
			g.Go(func() error {
				logger.WithField("addr", dc.Addr).Info("Devserver listening")
				if err := srv.ListenAndServe(dc.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				logger.Info("Shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", config.DefaultDevserverAddr, "Listen address")
	cmd.Flags().IntVar(&targets, "targets", config.DefaultTargets, "Number of simulated JVM targets")
	cmd.Flags().StringVar(&token, "auth-token", "", "Bearer token required by the API")
	return cmd
}

func newDevserverStopCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop a running devserver",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			running, info, err := pidfile.IsRunning(paths.PidFilePath())
			if err != nil {
				return err
			}
			pretty := logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout())
			if !running {
				pretty.InfoPretty("devserver is not running")
				return nil
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			if err := process.Terminate(ctx, info.PID); err != nil {
				return fmt.Errorf("failed to stop devserver (PID %d): %w", info.PID, err)
			}
			pretty.Success(fmt.Sprintf("Stopped devserver (PID %d)", info.PID))
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "How long to wait for the process to exit")
	return cmd
}

func newDevserverStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether a devserver is running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			running, info, err := pidfile.IsRunning(paths.PidFilePath())
			if err != nil {
				return err
			}
			pretty := logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout())
			if !running {
				pretty.Field("status", "stopped")
				return errors.New("devserver is not running")
			}
			pretty.Field("status", "running")
			pretty.Field("pid", info.PID)
			pretty.Path("addr", info.Addr)

			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Second)
			defer cancel()
			client := api.NewClient("http://"+info.Addr, "", api.WithRetries(0))
			if err := client.Health(ctx); err != nil {
				pretty.ErrorPretty("health check failed", err)
			} else {
				pretty.Field("health", "ok")
			}
			return nil
		},
	}
}
