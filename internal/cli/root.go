// Package cli implements the accumulus command line.
package cli

import (
	"fmt"
	"path/filepath"
	"slices"

	"github.com/spf13/cobra"

	"Accumulus/internal/logger"
)

// DefaultParamsFile is the params file name inside the data directory.
const DefaultParamsFile = "params.yaml"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	DataDir    string
	ParamsPath string // ParamsPath defaults to DefaultParamsFile in DataDir
	LogLevel   string
	Format     string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// paramsPath resolves the params file location.
func (o *RootOptions) paramsPath() string {
	if o.ParamsPath != "" {
		return o.ParamsPath
	}
	return filepath.Join(o.DataDir, DefaultParamsFile)
}

// NewRootCommand creates the root command for the accumulus CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "accumulus",
		Short: "Tamper-evident event anchoring with an RSA accumulator",
		Long: `Anchor event identifiers in a dynamic RSA accumulator backed by an
append-only ledger, and issue, check and refresh membership proofs.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}

			level, err := logger.ParseLevel(opts.LogLevel)
			if err != nil {
				return err
			}

			logger.Init(level)

			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.DataDir, "data", "./data", "data directory holding the ledger and registry")
	cmd.PersistentFlags().StringVar(&opts.ParamsPath, "params", "", "params file (default <data>/params.yaml)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "info", "log level (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewAddCommand(opts))
	cmd.AddCommand(NewRemoveCommand(opts))
	cmd.AddCommand(NewCheckCommand(opts))
	cmd.AddCommand(NewVerifyCommand(opts))
	cmd.AddCommand(NewRefreshCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewInspectCommand(opts))
	cmd.AddCommand(NewRestoreCommand(opts))

	return cmd
}
