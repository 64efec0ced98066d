// Package cmd holds the cobra commands of the swing CLI.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/aristath/swingsentinel/internal/config"
	"github.com/aristath/swingsentinel/internal/di"
	"github.com/aristath/swingsentinel/pkg/logger"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	dataDir  string
	logLevel string
	json     bool
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "swing",
		Short: "Rules-based swing trade scanner and position manager",
		Long: `swing runs the swing-trade pipeline against the local databases.

Configuration comes from SWING_* environment variables (or a .env file),
the same settings the server uses. The scheduler never runs from the CLI.

Examples:
  swing import securities universe.yaml
  swing import bars AAPL aapl.csv
  swing scan --profile CONSERVATIVE
  swing size AAPL --entry 187.5 --stop 181
  swing trail`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.dataDir, "data-dir", "", "database directory (overrides SWING_DATA_DIR)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (overrides SWING_LOG_LEVEL)")
	cmd.PersistentFlags().BoolVar(&opts.json, "json", false, "print JSON instead of tables")

	cmd.AddCommand(
		newScanCmd(opts),
		newTrailCmd(opts),
		newSizeCmd(opts),
		newExpectancyCmd(opts),
		newImportCmd(opts),
		newRegimeCmd(opts),
	)
	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// session is an open container for one command invocation.
type session struct {
	cfg       *config.Config
	container *di.Container
	jobs      *di.JobInstances
	log       zerolog.Logger
}

func (s *session) Close() {
	s.container.Close()
}

// open loads configuration, applies flag overrides and wires the container with
// the scheduler disabled.
func (o *rootOptions) open(cmd *cobra.Command) (*session, error) {
	if o.dataDir != "" {
		if err := os.Setenv(config.EnvPrefix+"_DATA_DIR", o.dataDir); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	cfg.SchedulerEnabled = false
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: true, Output: cmd.ErrOrStderr()})
	container, jobs, err := di.Wire(cfg, log)
	if err != nil {
		return nil, err
	}
	return &session{cfg: cfg, container: container, jobs: jobs, log: log}, nil
}

// run opens a session, calls fn and always closes the session.
func (o *rootOptions) run(cmd *cobra.Command, fn func(ctx context.Context, s *session) error) error {
	s, err := o.open(cmd)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(cmd.Context(), s)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
