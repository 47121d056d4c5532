package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/grovetools/cryoview/cli"
	"github.com/grovetools/cryoview/pkg/collections"
	"github.com/grovetools/cryoview/tui/components/table"
	"github.com/grovetools/cryoview/tui/theme"
)

type collectionInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Scoped      bool     `json:"scoped"`
	Categories  []string `json:"categories"`
	Actions     []string `json:"actions"`
}

// NewCollectionsCmd lists the registered collections.
func NewCollectionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "collections",
		Short: "List the collections that can be viewed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := collections.Default()
			var infos []collectionInfo
			for _, name := range reg.Names() {
				c, _ := reg.Get(name)
				infos = append(infos, collectionInfo{
					Name:        c.Name(),
					Description: c.Description(),
					Scoped:      c.Scoped(),
					Categories:  c.Categories(),
					Actions:     c.Actions(),
				})
			}

			if cli.GetOptions(cmd).JSONOutput {
				data, err := json.MarshalIndent(infos, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}

			t := table.NewStyledTable(theme.DefaultTheme).Headers("NAME", "TARGET", "FILTERS", "ACTIONS", "DESCRIPTION")
			for _, info := range infos {
				scoped := ""
				if info.Scoped {
					scoped = "required"
				}
				t.Row(info.Name, scoped, strings.Join(info.Categories, ","), strings.Join(info.Actions, ","), info.Description)
			}
			fmt.Fprintln(cmd.OutOrStdout(), t.String())
			return nil
		},
	}
}
