package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"fieldcrm/internal/model"
)

// ReorderCmd returns the reorder command
func ReorderCmd() *cobra.Command {
	var strategy string
	cmd := &cobra.Command{
		Use:   "reorder <routeId>",
		Short: "Resequence a route's stops",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := model.ParseStrategy(strategy)
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			res, err := a.Sequencer.Reorder(cmd.Context(), args[0], s)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !res.Changed {
				fmt.Fprintf(out, "%s order unchanged (%s)\n", okMark, res.Strategy)
				return nil
			}
			fmt.Fprintf(out, "%s reordered with %s: %.0fm -> %.0fm\n", okMark, res.Strategy, res.DistanceBeforeM, res.DistanceAfterM)
			for i, id := range res.StopIDs {
				fmt.Fprintf(out, "  %s %s\n", color.New(color.FgCyan).Sprintf("%3d", i+1), id)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&strategy, "strategy", string(model.StrategyNearestNeighbor), "nearestNeighbor or externalOptimizer")
	return cmd
}
