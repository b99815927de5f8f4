package commands

import (
	"context"

	"github.com/spf13/cobra"

	"d365odata/pkg/dynamics"
)

type searchFunc func(ctx context.Context, client *dynamics.D365) (*dynamics.Result, error)

// runSearch is the shared body of the metadata commands.
func (o *rootOptions) runSearch(cmd *cobra.Command, enableException bool, search searchFunc) error {
	cfg, err := o.loadConfig(cmd)
	if err != nil {
		return o.fail(enableException, err)
	}

	result, err := search(cmd.Context(), o.newClient(cfg))
	if err != nil {
		return o.fail(enableException, err)
	}
	return render(cmd.OutOrStdout(), result)
}

func newPublicEntityCmd(opts *rootOptions) *cobra.Command {
	var (
		search          dynamics.SearchOptions
		rawOutput       bool
		namesOnly       bool
		keysOnly        bool
		enableException bool
	)

	cmd := &cobra.Command{
		Use:     "public-entity",
		Aliases: []string{"entity"},
		Short:   "Get public OData data entities and their metadata",
		Long: `Get the public data entities exposed by metadata/PublicEntities.

Entities are matched case-insensitively on Name or EntitySetName, either exactly
(--entity-name) or as a substring (--entity-name-contains). Results are sorted by
Name.`,
		Example: `  d365odata public-entity --entity-name CustomersV3
  d365odata public-entity --entity-name-contains customer --out-names-only
  d365odata public-entity --odata-query '$top=10' --output-as-json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			switch {
			case rawOutput:
				search.Mode = dynamics.ModeRaw
			case namesOnly:
				search.Mode = dynamics.ModeEntityNamesOnly
			case keysOnly:
				search.Mode = dynamics.ModeEntityKeys
			default:
				search.Mode = dynamics.ModeEntityList
			}
			return opts.runSearch(cmd, enableException, func(ctx context.Context, client *dynamics.D365) (*dynamics.Result, error) {
				return client.SearchPublicEntities(ctx, search)
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&search.Name, "entity-name", "", "exact name of the entity (Name or EntitySetName)")
	f.StringVar(&search.NameContains, "entity-name-contains", "", "text the entity Name or EntitySetName must contain")
	f.StringVar(&search.ODataQuery, "odata-query", "", "raw OData query options appended to the request, e.g. '$top=1'")
	f.BoolVar(&rawOutput, "raw-output", false, "output the response document exactly as returned")
	f.BoolVar(&namesOnly, "out-names-only", false, "output only the entity name and entity set name")
	f.BoolVar(&keysOnly, "keys-only", false, "output the key fields of each entity")
	f.BoolVar(&search.AsJSON, "output-as-json", false, "output the result as JSON")
	f.BoolVar(&enableException, "enable-exception", false, "fail with an error instead of logging a warning")
	cmd.MarkFlagsMutuallyExclusive("entity-name", "entity-name-contains")
	cmd.MarkFlagsMutuallyExclusive("out-names-only", "keys-only")

	return cmd
}

func newPublicEnumCmd(opts *rootOptions) *cobra.Command {
	var (
		search          dynamics.SearchOptions
		rawOutput       bool
		enableException bool
	)

	cmd := &cobra.Command{
		Use:     "public-enum",
		Aliases: []string{"enum"},
		Short:   "Get public OData enumerations and their members",
		Long: `Get the public enumerations exposed by metadata/PublicEnumerations.

Enums are matched case-insensitively on Name or LabelId. Each enum member is
output as its own record: enums sorted by name, members by value.`,
		Example: `  d365odata public-enum --enum-name NoYes
  d365odata public-enum --enum-name-contains status --output-as-json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if rawOutput {
				search.Mode = dynamics.ModeRaw
			} else {
				search.Mode = dynamics.ModeEnumFlattened
			}
			return opts.runSearch(cmd, enableException, func(ctx context.Context, client *dynamics.D365) (*dynamics.Result, error) {
				return client.SearchPublicEnums(ctx, search)
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&search.Name, "enum-name", "", "exact name of the enum (Name or LabelId)")
	f.StringVar(&search.NameContains, "enum-name-contains", "", "text the enum Name or LabelId must contain")
	f.StringVar(&search.ODataQuery, "odata-query", "", "raw OData query options appended to the request, e.g. '$top=1'")
	f.BoolVar(&rawOutput, "raw-output", false, "output the response document exactly as returned")
	f.BoolVar(&search.AsJSON, "output-as-json", false, "output the result as JSON")
	f.BoolVar(&enableException, "enable-exception", false, "fail with an error instead of logging a warning")
	cmd.MarkFlagsMutuallyExclusive("enum-name", "enum-name-contains")

	return cmd
}
