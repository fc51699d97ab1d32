package main

import (
	"github.com/spf13/cobra"
)

const defaultServer = "http://localhost:8080"

func newRootCmd() *cobra.Command {
	var server string

	root := &cobra.Command{
		Use:           "heartbeat",
		Short:         "Periodic HTTP heartbeats with retry escalation",
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.HelpFunc()(cmd, args)
		},
	}

	root.PersistentFlags().StringVar(&server, "server", defaultServer, "Admin API of a running daemon")

	root.AddCommand(serveCmd())
	root.AddCommand(
		clientCmd(&server, "add <name> <interval-seconds> <method> <url>", "Schedule a heartbeat", 4),
		clientCmd(&server, "delete <name>", "Cancel a heartbeat", 1),
		clientCmd(&server, "setretries <name> <num-retries> <seconds-per-retry>", "Attach a retry policy", 3),
		clientCmd(&server, "list", "List scheduled heartbeats", 0),
	)

	return root
}
