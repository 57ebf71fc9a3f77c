package main

import (
	"github.com/spf13/cobra"
)

var version = "dev"

type globalOptions struct {
	logLevel string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:          "vrtq",
		Short:        "Priority job queue with time-sliced execution",
		Version:      version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level for console and demo (trace, debug, info, warn, error)")

	root.AddCommand(
		newServeCmd(),
		newConsoleCmd(opts),
		newDemoCmd(opts),
	)
	return root
}
