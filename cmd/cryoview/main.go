package main

import (
	"os"

	"github.com/grovetools/cryoview/cli"
	"github.com/grovetools/cryoview/cmd"
	"github.com/grovetools/cryoview/pkg/profiling"
)

func main() {
	root := cli.NewStandardCommand("cryoview", "Live views of JVM diagnostics")
	root.Long = `cryoview keeps live, filterable views of a diagnostics service's
recordings, archives, dumps, templates and rules. Views load a snapshot over
REST and stay current through the service's websocket notifications.`

	var prof profiling.Flags
	prof.AddFlags(root)
	root.PersistentPreRunE = prof.PreRun
	root.PersistentPostRun = prof.PostRun

	root.AddCommand(
		cmd.NewListCmd(),
		cmd.NewWatchCmd(),
		cmd.NewCollectionsCmd(),
		cmd.NewDevserverCmd(),
		cmd.NewConfigCmd(),
		cli.NewVersionCommand(),
	)
	cli.ApplyStyledHelpRecursive(root)

	if err := root.Execute(); err != nil {
		verbose, _ := root.PersistentFlags().GetBool("verbose")
		cli.NewErrorHandler(verbose).Handle(err)
		os.Exit(1)
	}
}
