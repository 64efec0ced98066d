package cmd

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/swingsentinel/internal/domain"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const barDateLayout = "2006-01-02"

func newImportCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load securities and daily bars into the history database",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "securities <file.yaml>",
			Short: "Upsert securities from a YAML list",
			Long: `Upsert securities from a YAML file:

  securities:
    - ticker: AAPL
      name: Apple Inc.
      sleeve: CORE
      sector: Technology
      cluster: MEGA_TECH
      currency: USD      # default USD
      active: true       # default true`,
			Args: cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()

				secs, err := parseSecurities(f)
				if err != nil {
					return fmt.Errorf("%s: %w", args[0], err)
				}
				return root.run(cmd, func(ctx context.Context, s *session) error {
					for _, sec := range secs {
						if err := s.container.SecurityRepo.Upsert(ctx, sec); err != nil {
							return err
						}
					}
					fmt.Fprintf(cmd.OutOrStdout(), "imported %d securities\n", len(secs))
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "bars <ticker> <file.csv>",
			Short: "Upsert daily bars from CSV (date,open,high,low,close,volume)",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				f, err := os.Open(args[1])
				if err != nil {
					return err
				}
				defer f.Close()

				bars, err := parseBarsCSV(f)
				if err != nil {
					return fmt.Errorf("%s: %w", args[1], err)
				}
				return root.run(cmd, func(ctx context.Context, s *session) error {
					written, skipped, err := s.container.HistoryBars.UpsertBars(ctx, args[0], bars)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s: wrote %d bars, skipped %d invalid\n",
						strings.ToUpper(args[0]), written, skipped)
					return nil
				})
			},
		},
	)
	return cmd
}

type securityFile struct {
	Securities []struct {
		Ticker   string `yaml:"ticker"`
		Name     string `yaml:"name"`
		Sleeve   string `yaml:"sleeve"`
		Sector   string `yaml:"sector"`
		Cluster  string `yaml:"cluster"`
		Currency string `yaml:"currency"`
		Active   *bool  `yaml:"active"`
	} `yaml:"securities"`
}

// parseSecurities decodes a securities YAML document. Missing active flags default
// to true.
func parseSecurities(r io.Reader) ([]domain.Security, error) {
	var doc securityFile
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode securities: %w", err)
	}

	out := make([]domain.Security, 0, len(doc.Securities))
	for i, s := range doc.Securities {
		sec := domain.Security{
			Ticker:   strings.ToUpper(strings.TrimSpace(s.Ticker)),
			Name:     s.Name,
			Sleeve:   domain.Sleeve(strings.ToUpper(s.Sleeve)),
			Sector:   s.Sector,
			Cluster:  s.Cluster,
			Currency: strings.ToUpper(s.Currency),
			Active:   s.Active == nil || *s.Active,
		}
		if sec.Ticker == "" {
			return nil, fmt.Errorf("entry %d: ticker is required", i+1)
		}
		if !sec.Sleeve.Valid() {
			return nil, fmt.Errorf("%s: unknown sleeve %q", sec.Ticker, s.Sleeve)
		}
		out = append(out, sec)
	}
	return out, nil
}

// parseBarsCSV reads date,open,high,low,close,volume rows in any order. A header row
// is skipped when its first field is not a date. Volume may be omitted.
func parseBarsCSV(r io.Reader) ([]domain.Bar, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var bars []domain.Bar
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(rec) == 0 || strings.TrimSpace(rec[0]) == "" {
			continue
		}

		date, err := time.Parse(barDateLayout, strings.TrimSpace(rec[0]))
		if err != nil {
			if line == 1 {
				continue
			}
			return nil, fmt.Errorf("line %d: bad date %q", line, rec[0])
		}
		if len(rec) < 5 {
			return nil, fmt.Errorf("line %d: want at least 5 fields, got %d", line, len(rec))
		}

		vals := make([]float64, 5)
		for i := 1; i < len(rec) && i <= 5; i++ {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[i]), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: field %d: %w", line, i+1, err)
			}
			vals[i-1] = v
		}
		bars = append(bars, domain.Bar{
			Date: date, Open: vals[0], High: vals[1], Low: vals[2], Close: vals[3], Volume: vals[4],
		})
	}
	return bars, nil
}
