package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/aristath/swingsentinel/internal/domain"
	"github.com/aristath/swingsentinel/internal/modules/risk"
	"github.com/aristath/swingsentinel/internal/modules/sizing"
	"github.com/spf13/cobra"
)

func newSizeCmd(root *rootOptions) *cobra.Command {
	var (
		entry, stop, equity float64
		profile             string
		sleeve              string
		currency            string
	)

	cmd := &cobra.Command{
		Use:   "size <ticker>",
		Short: "Size a position and run it through the risk gates",
		Long: `Size a position from entry and stop under a risk profile, then check it
against the current book. Sleeve, sector, cluster and currency come from the
universe unless given as flags.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.run(cmd, func(ctx context.Context, s *session) error {
				c := s.container
				ticker := strings.ToUpper(args[0])

				candidate := risk.GateCandidate{Ticker: ticker, Sleeve: domain.Sleeve(strings.ToUpper(sleeve))}
				sec, err := c.SecurityRepo.GetByTicker(ctx, ticker)
				if err != nil {
					return err
				}
				if sec != nil {
					if candidate.Sleeve == "" {
						candidate.Sleeve = sec.Sleeve
					}
					candidate.Sector, candidate.Cluster = sec.Sector, sec.Cluster
					if currency == "" {
						currency = sec.Currency
					}
				}
				if !candidate.Sleeve.Valid() {
					return fmt.Errorf("unknown sleeve %q: pass --sleeve or import the security first", candidate.Sleeve)
				}

				if profile == "" {
					profile = s.cfg.RiskProfile
				}
				p, err := c.Profiles.Get(profile)
				if err != nil {
					return err
				}
				if equity == 0 {
					equity = s.cfg.Equity
				}

				result, err := c.Sizer.Size(ctx, p, strings.ToUpper(currency), sizing.Request{
					Ticker: ticker,
					Sleeve: candidate.Sleeve,
					Entry:  entry,
					Stop:   stop,
					Equity: equity,
				})
				if err != nil {
					return err
				}
				candidate.PositionValue, candidate.RiskDollars = result.PositionValue, result.RiskDollars

				gate, err := c.RiskValidator.Validate(ctx, p, candidate, equity)
				if err != nil {
					return err
				}

				if root.json {
					return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
						"ticker": ticker, "profile": p.Name, "sizing": result, "gate": gate,
					})
				}

				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "%s %s profile=%s equity=%.2f\n", ticker, candidate.Sleeve, p.Name, equity)
				fmt.Fprintf(w, "shares=%g value=%.2f (%.1f%%) risk=%.2f (%.2f%%)\n",
					result.Shares, result.PositionValue, result.PositionPct, result.RiskDollars, result.RiskPercent)
				if len(result.LimitedBy) > 0 {
					fmt.Fprintf(w, "limited by: %s\n", strings.Join(result.LimitedBy, ", "))
				}
				for _, g := range gate.Gates {
					verdict := "pass"
					if !g.Passed {
						verdict = "FAIL"
					}
					fmt.Fprintf(w, "  %-20s %s  %.2f / %.2f\n", g.Name, verdict, g.Current, g.Limit)
				}
				if !gate.Passed {
					fmt.Fprintln(w, "BLOCKED by risk gates")
				}
				return nil
			})
		},
	}

	cmd.Flags().Float64Var(&entry, "entry", 0, "entry price")
	cmd.Flags().Float64Var(&stop, "stop", 0, "initial stop price")
	cmd.Flags().Float64Var(&equity, "equity", 0, "account equity (default SWING_EQUITY)")
	cmd.Flags().StringVar(&profile, "profile", "", "risk profile (default SWING_RISK_PROFILE)")
	cmd.Flags().StringVar(&sleeve, "sleeve", "", "sleeve override")
	cmd.Flags().StringVar(&currency, "currency", "", "instrument currency override")
	_ = cmd.MarkFlagRequired("entry")
	_ = cmd.MarkFlagRequired("stop")
	return cmd
}
