package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/mnehpets/onerpc/internal/app"
)

func newServeCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := fx.New(app.Module(*cfgPath))
			if err := a.Err(); err != nil {
				return err
			}
			a.Run()
			return nil
		},
	}
}
