package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"Accumulus/internal/anchor"
	"Accumulus/internal/backup"
)

// ArchiveResult describes a ledger archive.
type ArchiveResult struct {
	Path         string `json:"path"`
	Entries      uint64 `json:"entries"`
	LastSequence uint64 `json:"last_sequence"`
	LastValue    string `json:"last_value,omitempty"`
	Checksum     string `json:"checksum"`
	LedgerBytes  int    `json:"ledger_bytes"`
}

func newArchiveResult(path string, s backup.Summary) ArchiveResult {
	return ArchiveResult{
		Path:         path,
		Entries:      s.Entries,
		LastSequence: s.LastSequence,
		LastValue:    hexInt(s.LastValue),
		Checksum:     fmt.Sprintf("%x", s.Checksum),
		LedgerBytes:  s.LedgerBytes,
	}
}

func (r ArchiveResult) String() string {
	return fmt.Sprintf("%s\n  entries:  %d\n  last seq: %d\n  bytes:    %d\n  blake3:   %s",
		r.Path, r.Entries, r.LastSequence, r.LedgerBytes, r.Checksum)
}

// ledgerPath returns the ledger file in the data directory.
func ledgerPath(opts *RootOptions) string {
	return filepath.Join(opts.DataDir, anchor.LedgerFile)
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export <archive>",
		Short: "Write a compressed, checksummed archive of the ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, rootOpts, args[0])
		},
	}
}

func runExport(cmd *cobra.Command, rootOpts *RootOptions, path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create archive:\n%w", err)
	}

	sum, err := backup.Export(ledgerPath(rootOpts), f)
	if err != nil {
		f.Close()
		os.Remove(path)
		return err
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("close archive:\n%w", err)
	}

	return newFormatter(rootOpts, cmd.OutOrStdout()).Success(newArchiveResult(path, sum))
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <archive>",
		Short: "Verify an archive and summarize it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd, rootOpts, args[0])
		},
	}
}

func runInspect(cmd *cobra.Command, rootOpts *RootOptions, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open archive:\n%w", err)
	}
	defer f.Close()

	sum, err := backup.Inspect(f)
	if err != nil {
		return &ExitError{Code: ExitFailure, Message: "archive rejected", Err: err}
	}

	return newFormatter(rootOpts, cmd.OutOrStdout()).Success(newArchiveResult(path, sum))
}

// NewRestoreCommand creates the restore command.
func NewRestoreCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <archive>",
		Short: "Restore the ledger from an archive into an empty data directory",
		Long: `Restore the ledger from an archive into the data directory.

The ledger file must not exist yet. Registry history is not part of the
archive, so stored proofs are not restored.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRestore(cmd, rootOpts, args[0])
		},
	}
}

func runRestore(cmd *cobra.Command, rootOpts *RootOptions, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open archive:\n%w", err)
	}
	defer f.Close()

	if err := os.MkdirAll(rootOpts.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir:\n%w", err)
	}

	target := ledgerPath(rootOpts)

	sum, err := backup.Restore(f, target)
	if err != nil {
		return err
	}

	return newFormatter(rootOpts, cmd.OutOrStdout()).Success(newArchiveResult(target, sum))
}
