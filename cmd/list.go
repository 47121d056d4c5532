package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/grovetools/cryoview/cli"
	"github.com/grovetools/cryoview/config"
	"github.com/grovetools/cryoview/pkg/profiling"
	"github.com/grovetools/cryoview/tui/components/table"
	"github.com/grovetools/cryoview/tui/theme"
)

// NewListCmd prints one snapshot of a collection.
func NewListCmd() *cobra.Command {
	var flags viewFlags
	cmd := &cobra.Command{
		Use:   "list <collection>",
		Short: "Print the current contents of a collection",
		Long:  "Loads a snapshot of the collection through a live view, applies filters and prints it.",
		Example: `# Recordings on one JVM
cryoview list active-recordings --target jvm-0001

# Only running recordings labelled env=prod, as JSON
cryoview list active-recordings -t jvm-0001 -f State=RUNNING -f Label=env=prod --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stopOpen := profiling.Start("open")
			s, err := openSession(cmd, args[0], &flags, false, nil)
			stopOpen()
			if err != nil {
				return err
			}
			defer s.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), config.Duration(s.cfg.Server.Timeout, config.DefaultTimeout))
			defer cancel()
			stopLoad := profiling.Start("load")
			tbl, err := s.handle.WaitLoaded(ctx)
			stopLoad()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if cli.GetOptions(cmd).JSONOutput {
				records := tbl.Records
				if records == nil {
					records = []interface{}{}
				}
				data, err := json.MarshalIndent(records, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
				return nil
			}

			if parents := table.RenderParents(tbl, theme.DefaultTheme); parents != "" {
				fmt.Fprintln(out, parents)
			}
			if len(tbl.Rows) > 0 {
				fmt.Fprintln(out, table.Render(tbl, table.DefaultOptions()))
			}
			fmt.Fprintln(out, table.StatusLine(tbl, theme.DefaultTheme))
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}
