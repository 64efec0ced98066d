package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/aristath/swingsentinel/internal/domain"
	"github.com/aristath/swingsentinel/internal/modules/scanning"
	"github.com/spf13/cobra"
)

func newScanCmd(root *rootOptions) *cobra.Command {
	var (
		profile string
		equity  float64
		all     bool
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan the active universe and rank candidates",
		Long: `Run the full pipeline once: classification, BPS scoring, ranking,
anti-chase and pullback guards, sizing and risk gates.

By default only READY and WAIT_PULLBACK candidates are listed; --all shows
every classified ticker.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.run(cmd, func(ctx context.Context, s *session) error {
				if profile == "" {
					profile = s.cfg.RiskProfile
				}
				p, err := s.container.Profiles.Get(profile)
				if err != nil {
					return err
				}
				if equity == 0 {
					equity = s.cfg.Equity
				}

				res, err := s.container.Scanner.Run(ctx, scanning.Options{Profile: p, Equity: equity})
				if err != nil {
					return err
				}
				if root.json {
					return writeJSON(cmd.OutOrStdout(), res)
				}
				return printScan(cmd.OutOrStdout(), res, all)
			})
		},
	}

	cmd.Flags().StringVar(&profile, "profile", "", "risk profile (default SWING_RISK_PROFILE)")
	cmd.Flags().Float64Var(&equity, "equity", 0, "account equity (default SWING_EQUITY)")
	cmd.Flags().BoolVar(&all, "all", false, "list every candidate, not only actionable ones")
	return cmd
}

func printScan(w io.Writer, res *scanning.Result, all bool) error {
	counts := res.Counts()
	fmt.Fprintf(w, "scan %s  profile=%s equity=%.2f regime=%s/%s universe=%d\n",
		res.ID, res.Profile, res.Equity, res.Regime, res.VolRegime, res.Universe)
	fmt.Fprintf(w, "READY=%d WAIT_PULLBACK=%d WATCH=%d FAR=%d BLOCKED=%d failures=%d\n\n",
		counts[domain.StatusReady], counts[domain.StatusWaitPullback], counts[domain.StatusWatch],
		counts[domain.StatusFar], counts[domain.StatusBlocked], len(res.Failures))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TICKER\tSLEEVE\tSTATUS\tBPS\tEV\tSCORE\tENTRY\tSTOP\tSHARES\tREASONS")
	for _, c := range res.Candidates {
		if !all && c.Status != domain.StatusReady && c.Status != domain.StatusWaitPullback {
			continue
		}
		shares := "-"
		if c.Sizing != nil {
			shares = fmt.Sprintf("%g", c.Sizing.Shares)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%+d\t%.1f\t%.2f\t%.2f\t%s\t%s\n",
			c.Ticker, c.Sleeve, c.Status, c.BPS.Total, c.EV.Modifier, c.Score,
			c.Entry, c.Stop, shares, strings.Join(c.Reasons, ","))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, f := range res.Failures {
		fmt.Fprintf(w, "skipped %s at %s: %s\n", f.Ticker, f.Stage, f.Reason)
	}
	return nil
}
