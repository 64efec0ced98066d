package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newTrailCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "trail",
		Short: "Run one stop pass over every open position",
		Long: `Mark each open position to its latest close, advance the protection
level (breakeven, +0.5R lock, 1R lock with ATR trail) and ratchet trailing
stops. Stops only ever move up; every change is written to the stop history.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.run(cmd, func(ctx context.Context, s *session) error {
				report, err := s.container.StopManager.RunPass(ctx)
				if err != nil {
					return err
				}
				if root.json {
					return writeJSON(cmd.OutOrStdout(), report)
				}

				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "evaluated=%d updates=%d failures=%d\n", report.Evaluated, len(report.Updates), len(report.Failures))
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "POSITION\tLEVEL\tOLD STOP\tNEW STOP\tREASON")
				for _, u := range report.Updates {
					fmt.Fprintf(tw, "%d\t%s\t%.2f\t%.2f\t%s\n", u.PositionID, u.Level, u.OldStop, u.NewStop, u.Reason)
				}
				if err := tw.Flush(); err != nil {
					return err
				}
				for _, f := range report.Failures {
					fmt.Fprintf(w, "skipped %s (#%d): %s\n", f.Ticker, f.PositionID, f.Reason)
				}
				return nil
			})
		},
	}
}
