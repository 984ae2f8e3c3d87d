// Command boardctl talks to a kanban relay from the terminal: it mirrors the
// board, watches live changes, and sends create/update/move/delete events.
//
// Usage:
//
//	BOARD_RELAY_URL=ws://localhost:4000/ws boardctl list
//	boardctl create --title "Write docs" --priority High
//	boardctl move 1700000000000 done
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var Version = "dev"

// rootOptions are flags shared by every subcommand.
type rootOptions struct {
	url     string
	timeout time.Duration
	jsonOut bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "boardctl",
		Short:         "boardctl - command-line client for the kanban relay",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.url, "url", "", "relay WebSocket URL (default $BOARD_RELAY_URL)")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "how long to wait for the relay")
	rootCmd.PersistentFlags().BoolVarP(&opts.jsonOut, "json", "j", false, "output as JSON")

	rootCmd.AddCommand(listCmd(opts))
	rootCmd.AddCommand(watchCmd(opts))
	rootCmd.AddCommand(createCmd(opts))
	rootCmd.AddCommand(updateCmd(opts))
	rootCmd.AddCommand(moveCmd(opts))
	rootCmd.AddCommand(deleteCmd(opts))
	rootCmd.AddCommand(pingCmd(opts))

	return rootCmd
}
