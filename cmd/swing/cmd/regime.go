package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newRegimeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "regime",
		Short: "Classify the market from the benchmark's stored bars",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.run(cmd, func(ctx context.Context, s *session) error {
				state, err := s.container.RegimeDetector.Refresh(ctx)
				if err != nil {
					return err
				}
				if root.json {
					return writeJSON(cmd.OutOrStdout(), state)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: trend=%s volatility=%s (%.1f%% annualized)\n",
					state.Benchmark, state.Trend, state.Volatility, state.AnnualizedVol)
				return nil
			})
		},
	}
}
