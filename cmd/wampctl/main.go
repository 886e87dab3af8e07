// File: cmd/wampctl/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// wampctl is a command line WAMP client: call procedures, publish events,
// and follow topics on a router.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/momentics/hioload-wamp/internal/logging"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	logging.ConfigureRuntime()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	rootCmd := &cobra.Command{
		Use:   "wampctl",
		Short: "Talk to a WAMP router from the command line",
		Long: `wampctl opens a WAMP session over WebSocket and performs one action.

The shared secret for ticket or wampcra authentication is read from the
environment variable named by secret_env in the config file
(WAMPYSECRET by default).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	opts.bind(rootCmd)

	rootCmd.AddCommand(
		callCmd(opts),
		publishCmd(opts),
		subscribeCmd(opts),
		versionCmd(),
	)
	return rootCmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "wampctl %s (%s)\n", version, commit)
		},
	}
}
