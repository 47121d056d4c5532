package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/grovetools/cryoview/config"
)

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the cryoview configuration",
	}
	cmd.AddCommand(newConfigLayersCmd(), newConfigSchemaCmd())
	return cmd
}

func newConfigLayersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "layers",
		Short: "Display the layered configuration for the current directory",
		Long: `Shows how the final configuration is built by merging layers:
1. Global config (~/.config/cryoview/cryoview.yml)
2. Project config (cryoview.yml)
3. Override files (cryoview.override.yml)
This is useful for debugging configuration issues.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get current directory: %w", err)
			}

			layered, err := config.LoadLayered(cwd)
			if err != nil {
				return fmt.Errorf("failed to load layered config: %w", err)
			}

			out := cmd.OutOrStdout()
			printLayer(out, "GLOBAL CONFIG", layered.FilePaths[config.SourceGlobal], layered.Global)
			printLayer(out, "PROJECT CONFIG", layered.FilePaths[config.SourceProject], layered.Project)
			for _, override := range layered.Overrides {
				printLayer(out, "OVERRIDE CONFIG", override.Path, override.Config)
			}
			printLayer(out, "FINAL MERGED CONFIG", "", layered.Final)
			return nil
		},
	}
}

func printLayer(w io.Writer, title, path string, cfg *config.Config) {
	if cfg == nil {
		return
	}
	fmt.Fprintf(w, "--- # %s\n", title)
	if path != "" {
		fmt.Fprintf(w, "# Source: %s\n", path)
	}
	data, _ := yaml.Marshal(cfg)
	fmt.Fprintln(w, string(data))
}

func newConfigSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema for cryoview.yml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := config.GenerateSchema()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}
