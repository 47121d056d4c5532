// Package cli holds the pieces shared by every cryoview command: standard
// flags, config loading, styled help and error reporting.
package cli

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/grovetools/cryoview/config"
	"github.com/grovetools/cryoview/logging"
)

// CommandOptions holds common options for cryoview commands
type CommandOptions struct {
	ConfigFile string
	Verbose    bool
	JSONOutput bool
	ServerURL  string
	Token      string
}

// NewStandardCommand creates a new command with the standard flags.
func NewStandardCommand(use, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           use,
		Short:         short,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("json", false, "Output in JSON format")
	cmd.PersistentFlags().StringP("config", "c", "", "Path to a cryoview.yml config file")
	cmd.PersistentFlags().String("url", "", "Diagnostics service URL (overrides server.url)")
	cmd.PersistentFlags().String("token", "", "Bearer token (overrides server.token)")

	return cmd
}

// GetOptions extracts common options from a command
func GetOptions(cmd *cobra.Command) CommandOptions {
	configFile, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	url, _ := cmd.Flags().GetString("url")
	token, _ := cmd.Flags().GetString("token")

	return CommandOptions{
		ConfigFile: configFile,
		Verbose:    verbose,
		JSONOutput: jsonOutput,
		ServerURL:  url,
		Token:      token,
	}
}

// GetLogger returns the component logger, at debug level with --verbose.
func GetLogger(cmd *cobra.Command, component string) *logrus.Entry {
	entry := logging.NewLogger(component)
	if GetOptions(cmd).Verbose {
		entry.Logger.SetLevel(logrus.DebugLevel)
	}
	return entry
}

// LoadConfig loads the file named by --config, or the layered
// configuration from the working directory, then applies flag overrides.
func LoadConfig(cmd *cobra.Command) (*config.Config, error) {
	opts := GetOptions(cmd)

	var (
		cfg *config.Config
		err error
	)
	if opts.ConfigFile != "" {
		cfg, err = config.Load(opts.ConfigFile)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		return nil, err
	}

	if opts.ServerURL != "" {
		cfg.Server.URL = opts.ServerURL
	}
	if opts.Token != "" {
		cfg.Server.Token = opts.Token
	}
	return cfg, nil
}
