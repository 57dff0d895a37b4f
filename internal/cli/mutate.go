package cli

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"Accumulus/internal/accumulator"
	"Accumulus/internal/anchor"
	"Accumulus/internal/primes"
)

// EventOptions holds flags shared by commands taking an event argument.
type EventOptions struct {
	Hex bool // Hex decodes the argument as hex bytes
}

// bind registers the event flags on cmd.
func (o *EventOptions) bind(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&o.Hex, "hex", false, "decode the event argument as hex")
}

// event converts the command argument to event bytes.
func (o *EventOptions) event(arg string) ([]byte, error) {
	if !o.Hex {
		return []byte(arg), nil
	}

	b, err := hex.DecodeString(arg)
	if err != nil {
		return nil, &ExitError{Code: ExitCommandError, Message: "invalid hex event", Err: err}
	}
	return b, nil
}

// openService loads the params file and opens the data directory.
func openService(ctx context.Context, opts *RootOptions) (*anchor.Service, error) {
	genesis, err := LoadParams(opts.paramsPath())
	if err != nil {
		return nil, err
	}

	return anchor.Open(ctx, anchor.Config{
		DataDir:  opts.DataDir,
		Provider: accumulator.NewStaticProvider(genesis),
	})
}

// AddResult is the outcome of anchoring an event.
type AddResult struct {
	Tag   string    `json:"tag"`
	Value string    `json:"value"`
	Proof ProofView `json:"proof"`
}

func (r AddResult) String() string {
	return fmt.Sprintf("anchored %s at seq %d\n  value:       %s\n%s", r.Tag, r.Proof.Sequence, r.Value, r.Proof)
}

// NewAddCommand creates the add command.
func NewAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EventOptions{}

	cmd := &cobra.Command{
		Use:   "add <event>",
		Short: "Anchor an event in the accumulator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			event, err := opts.event(args[0])
			if err != nil {
				return err
			}
			return runAdd(cmd, rootOpts, event)
		},
	}

	opts.bind(cmd)

	return cmd
}

func runAdd(cmd *cobra.Command, rootOpts *RootOptions, event []byte) error {
	svc, err := openService(cmd.Context(), rootOpts)
	if err != nil {
		return err
	}
	defer svc.Close()

	receipt, err := svc.Anchor(cmd.Context(), event)
	if err != nil {
		return err
	}

	return newFormatter(rootOpts, cmd.OutOrStdout()).Success(AddResult{
		Tag:   primes.Tag(event),
		Value: hexInt(receipt.Value),
		Proof: newProofView(receipt.Proof),
	})
}

// RemoveResult is the outcome of revoking an event.
type RemoveResult struct {
	Tag   string `json:"tag"`
	Value string `json:"value"`
}

func (r RemoveResult) String() string {
	return fmt.Sprintf("revoked %s\n  value: %s", r.Tag, r.Value)
}

// NewRemoveCommand creates the remove command.
func NewRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EventOptions{}

	cmd := &cobra.Command{
		Use:   "remove <event>",
		Short: "Revoke an event from the accumulator",
		Long: `Revoke an event from the accumulator.

Proofs for other events stop verifying against the new value and have to
be reissued with "refresh --reissue".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			event, err := opts.event(args[0])
			if err != nil {
				return err
			}
			return runRemove(cmd, rootOpts, event)
		},
	}

	opts.bind(cmd)

	return cmd
}

func runRemove(cmd *cobra.Command, rootOpts *RootOptions, event []byte) error {
	svc, err := openService(cmd.Context(), rootOpts)
	if err != nil {
		return err
	}
	defer svc.Close()

	value, err := svc.Revoke(cmd.Context(), event)
	if err != nil {
		return err
	}

	return newFormatter(rootOpts, cmd.OutOrStdout()).Success(RemoveResult{
		Tag:   primes.Tag(event),
		Value: hexInt(value),
	})
}
