package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var enableException bool

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Get a bearer token for the configured environment",
		Long: `Run the client credentials grant and print the Authorization header value.

The output can be passed back to other commands with --token to skip the grant.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return opts.fail(enableException, err)
			}

			header, err := opts.newClient(cfg).Authorization(cmd.Context())
			if err != nil {
				return opts.fail(enableException, err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), header)
			return err
		},
	}

	cmd.Flags().BoolVar(&enableException, "enable-exception", false, "fail with an error instead of logging a warning")
	return cmd
}
