package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/aristath/swingsentinel/internal/domain"
	"github.com/spf13/cobra"
)

func newExpectancyCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "expectancy",
		Short: "Show the expectancy table built from closed trades",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.run(cmd, func(ctx context.Context, s *session) error {
				slices, err := s.container.ExpectancyRepo.GetAll(ctx)
				if err != nil {
					return err
				}
				return printSlices(cmd.OutOrStdout(), root.json, slices)
			})
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "rebuild",
		Short: "Recompute the expectancy table from every closed position",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.run(cmd, func(ctx context.Context, s *session) error {
				slices, err := s.container.ExpectancyService.Rebuild(ctx)
				if err != nil {
					return err
				}
				return printSlices(cmd.OutOrStdout(), root.json, slices)
			})
		},
	})
	return cmd
}

func printSlices(w io.Writer, asJSON bool, slices []domain.ExpectancySlice) error {
	if slices == nil {
		slices = []domain.ExpectancySlice{}
	}
	if asJSON {
		return writeJSON(w, slices)
	}
	if len(slices) == 0 {
		fmt.Fprintln(w, "no closed trades yet")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SLEEVE\tATR\tREGIME\tTRADES\tWIN%\tAVG WIN\tAVG LOSS\tEXPECTANCY")
	for _, s := range slices {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%.0f\t%.2fR\t%.2fR\t%+.2fR\n",
			s.Key.Sleeve, s.Key.ATRBucket, s.Key.Regime, s.TradeCount,
			s.WinRate*100, s.AvgWinR, s.AvgLossR, s.ExpectancyR)
	}
	return tw.Flush()
}
