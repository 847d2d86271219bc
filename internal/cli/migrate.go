package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"fieldcrm/internal/config"
)

// MigrateCmd returns the migrate command
func MigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database schema migrations",
		Long: `Connect to DATABASE_URL and apply the embedded migrations for its driver.
Postgres and SQLite (sqlite:// or file: URLs) are supported.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), func(c *config.Config) error {
				if c.Database.URL == "" {
					return errors.New("DATABASE_URL is not set")
				}
				c.Database.Migrate = true
				return nil
			})
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			fmt.Fprintf(cmd.OutOrStdout(), "%s schema up to date\n", okMark)
			return nil
		},
	}
}
