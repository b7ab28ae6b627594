// Command onerpc runs the JSON-RPC server and talks to it.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:           "onerpc",
		Short:         "JSON-RPC project and task server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default: onerpc.yaml in the search paths)")

	root.AddCommand(
		newServeCmd(&cfgPath),
		newCallCmd(),
		newMethodsCmd(),
		newTokenCmd(&cfgPath),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "onerpc:", err)
		os.Exit(1)
	}
}
