package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"fieldcrm/internal/geocode"
)

// NormalizeCmd returns the normalize command
func NormalizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "normalize <address>...",
		Short: "Print the address text sent to geocoding providers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), geocode.Normalize(strings.Join(args, " ")))
			return nil
		},
	}
}
