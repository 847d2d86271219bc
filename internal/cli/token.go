package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"fieldcrm/internal/auth"
)

// TokenCmd returns the token command
func TokenCmd() *cobra.Command {
	var (
		role string
		ttl  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token <userId>",
		Short: "Issue an HS256 bearer token signed with AUTH_HMAC_SECRET",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			tok, err := auth.NewVerifier(cfg.Auth).Sign(auth.Principal{UserID: args[0], Role: role}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", auth.RoleRep, "admin, dispatcher or rep")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	return cmd
}
