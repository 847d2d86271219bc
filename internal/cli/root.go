package cli

import (
	"github.com/spf13/cobra"

	"fieldcrm/internal/buildinfo"
)

// RootCmd assembles fieldctl and its subcommands.
func RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "fieldctl",
		Short:   "Operate the field CRM routing service",
		Version: buildinfo.String(),
		Long: `fieldctl runs maintenance tasks against the same database, Redis and
provider configuration as the API server: schema migrations, batch
geocoding, route resequencing, token issuance and live event tailing.`,
		SilenceUsage: true,
	}
	root.AddCommand(MigrateCmd())
	root.AddCommand(GeocodeCmd())
	root.AddCommand(ReorderCmd())
	root.AddCommand(NormalizeCmd())
	root.AddCommand(TokenCmd())
	root.AddCommand(WatchCmd())
	return root
}
