package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"fieldcrm/internal/config"
)

// GeocodeCmd returns the geocode command
func GeocodeCmd() *cobra.Command {
	var (
		batch int
		delay time.Duration
	)
	cmd := &cobra.Command{
		Use:   "geocode",
		Short: "Run one batch of pending geocode jobs",
		Long: `Geocode up to --batch pending targets through the configured provider
chain, waiting --delay between targets. Failures count toward each
target's attempt limit exactly as worker-reported failures do.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), func(c *config.Config) error {
				if batch < 0 || delay < 0 {
					return fmt.Errorf("--batch and --delay must not be negative")
				}
				if batch == 0 {
					batch = c.Geocode.BatchSize
				}
				return nil
			})
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			res, err := a.Tracker.BulkGeocode(cmd.Context(), batch, delay)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %d geocoded\n", okMark, res.Success)
			fmt.Fprintf(out, "%s %d failed\n", failMark, res.Failed)
			fmt.Fprintf(out, "  %d processed\n", res.Processed)
			return err
		},
	}
	cmd.Flags().IntVar(&batch, "batch", 0, "max targets to process (default GEOCODE_BATCH_SIZE)")
	cmd.Flags().DurationVar(&delay, "delay", time.Second, "pause between targets")
	return cmd
}
