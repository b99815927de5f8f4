package commands

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"d365odata/pkg/config"
)

func newConfigCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage stored connection configurations",
	}
	cmd.AddCommand(
		newConfigAddCmd(opts),
		newConfigListCmd(opts),
		newConfigShowCmd(opts),
		newConfigSetActiveCmd(opts),
		newConfigRemoveCmd(opts),
	)
	return cmd
}

func newConfigAddCmd(opts *rootOptions) *cobra.Command {
	var (
		name  string
		force bool
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Save the connection flags under a name",
		Example: `  d365odata config add --name uat --tenant <tenant-id> \
    --url https://uat.sandbox.operations.dynamics.com \
    --client-id <app-id> --client-secret <app-secret>`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f := cmd.Flags()
			var p config.Profile
			p.Tenant, _ = f.GetString("tenant")
			p.URL, _ = f.GetString("url")
			p.SystemURL, _ = f.GetString("system-url")
			p.ClientID, _ = f.GetString("client-id")
			p.ClientSecret, _ = f.GetString("client-secret")
			p.Authority, _ = f.GetString("authority")

			store := config.NewStore(opts.storePath)
			if err := store.Add(name, p, force); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "Saved configuration %q to %s\n", name, store.Path)
			return err
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "name of the configuration")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing configuration with the same name")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newConfigListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored configurations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			profiles, err := config.NewStore(opts.storePath).List()
			if err != nil {
				return err
			}

			rows := make([]table.Row, 0, len(profiles))
			for _, p := range profiles {
				active := ""
				if p.Active {
					active = "*"
				}
				m := p.Masked()
				rows = append(rows, table.Row{active, p.Name, m.URL, m.SystemURL, m.Tenant, m.ClientID, m.ClientSecret})
			}
			renderTable(cmd.OutOrStdout(), table.Row{"Active", "Name", "Url", "SystemUrl", "Tenant", "ClientId", "ClientSecret"}, rows)
			return nil
		},
	}
}

func newConfigShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the configuration the metadata commands would use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}

			conn := cfg.Connection().Normalize()
			token := ""
			if cfg.Token != "" {
				token = "(set)"
			}
			rows := []table.Row{
				{"ConfigName", cfg.ConfigName},
				{"Tenant", cfg.Tenant},
				{"Url", conn.BaseURL},
				{"SystemUrl", conn.SystemURL},
				{"ClientId", cfg.ClientID},
				{"ClientSecret", config.Profile{ClientSecret: cfg.ClientSecret}.Masked().ClientSecret},
				{"Token", token},
				{"Authority", cfg.Authority},
				{"Timeout", cfg.Timeout.String()},
			}
			renderTable(cmd.OutOrStdout(), table.Row{"Setting", "Value"}, rows)
			return nil
		},
	}
}

func newConfigSetActiveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set-active NAME",
		Short: "Make a stored configuration the default",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.NewStore(opts.storePath).SetActive(args[0]); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "Configuration %q is now active\n", args[0])
			return err
		},
	}
}

func newConfigRemoveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove NAME",
		Short: "Delete a stored configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.NewStore(opts.storePath).Remove(args[0]); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "Removed configuration %q\n", args[0])
			return err
		},
	}
}
