package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mnehpets/onerpc/internal/rpcs"
)

func newMethodsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "methods",
		Short: "List the methods the server registers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, m := range rpcs.Router().Methods() {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), m); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
