package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mnehpets/onerpc/client"
)

func newCallCmd() *cobra.Command {
	var (
		url   string
		token string
	)
	cmd := &cobra.Command{
		Use:   "call <method> [params-json]",
		Short: "Call a method on a running server",
		Example: `  onerpc call list_projects
  onerpc call create_project '{"data":{"name":"demo"}}'`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var params json.RawMessage
			if len(args) == 2 {
				if !json.Valid([]byte(args[1])) {
					return fmt.Errorf("params are not valid JSON")
				}
				params = json.RawMessage(args[1])
			}

			if token == "" {
				token = os.Getenv("ONERPC_TOKEN")
			}
			var opts []client.Option
			if token != "" {
				opts = append(opts, client.WithStaticToken(token))
			}

			var result json.RawMessage
			if err := client.New(url, opts...).Call(cmd.Context(), args[0], params, &result); err != nil {
				if code, ok := client.Code(err); ok {
					return fmt.Errorf("%s (code %d)", err, code)
				}
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
	cmd.Flags().StringVar(&url, "url", "http://localhost:8080/rpc", "server endpoint")
	cmd.Flags().StringVar(&token, "token", "", "bearer token (default $ONERPC_TOKEN)")
	return cmd
}
