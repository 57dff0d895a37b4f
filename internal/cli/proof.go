package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"Accumulus/internal/accumulator"
	"Accumulus/internal/primes"
	"Accumulus/internal/registry"
)

// CheckResult is the outcome of checking a stored proof.
type CheckResult struct {
	Tag     string    `json:"tag"`
	Valid   bool      `json:"valid"`
	Current bool      `json:"current"`
	Proof   ProofView `json:"proof"`
}

func (r CheckResult) String() string {
	state := "invalid"
	switch {
	case r.Current:
		state = "valid, current"
	case r.Valid:
		state = "valid, stale (run refresh)"
	}
	return fmt.Sprintf("%s: %s\n%s", r.Tag, state, r.Proof)
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EventOptions{}

	cmd := &cobra.Command{
		Use:   "check <event>",
		Short: "Check the stored proof for an event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			event, err := opts.event(args[0])
			if err != nil {
				return err
			}
			return runCheck(cmd, rootOpts, event)
		},
	}

	opts.bind(cmd)

	return cmd
}

func runCheck(cmd *cobra.Command, rootOpts *RootOptions, event []byte) error {
	svc, err := openService(cmd.Context(), rootOpts)
	if err != nil {
		return err
	}
	defer svc.Close()

	res, err := svc.Check(event)
	if err != nil {
		return err
	}

	result := CheckResult{
		Tag:     primes.Tag(event),
		Valid:   res.Valid,
		Current: res.Current,
		Proof:   newProofView(res.Proof),
	}

	if err := newFormatter(rootOpts, cmd.OutOrStdout()).Success(result); err != nil {
		return err
	}

	if !res.Valid {
		return &ExitError{Code: ExitFailure, Message: "stored proof does not verify"}
	}
	return nil
}

// VerifyOptions holds flags for the verify command.
type VerifyOptions struct {
	Witness     string
	Accumulator string
	Prime       string
}

// VerifyResult is the outcome of a stateless proof check.
type VerifyResult struct {
	Valid bool `json:"valid"`
}

func (r VerifyResult) String() string {
	if r.Valid {
		return "proof valid"
	}
	return "proof invalid"
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyOptions{}

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify a proof with the public parameters only",
		Long: `Verify that witness^prime = accumulator mod N.

Only the params file is read, so this works from a public params file on
a machine with no ledger. It does not tell whether the accumulator value
is the current one.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd, rootOpts, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Witness, "witness", "", "witness (hex)")
	cmd.Flags().StringVar(&opts.Accumulator, "accumulator", "", "accumulator value (hex)")
	cmd.Flags().StringVar(&opts.Prime, "prime", "", "element prime (hex)")
	cmd.MarkFlagRequired("witness")
	cmd.MarkFlagRequired("accumulator")
	cmd.MarkFlagRequired("prime")

	return cmd
}

func runVerify(cmd *cobra.Command, rootOpts *RootOptions, opts *VerifyOptions) error {
	genesis, err := LoadParams(rootOpts.paramsPath())
	if err != nil {
		return err
	}

	v, err := accumulator.NewVerifier(genesis.Params)
	if err != nil {
		return err
	}

	var proof accumulator.Proof

	if proof.Witness, err = parseHexInt("witness", opts.Witness); err != nil {
		return &ExitError{Code: ExitCommandError, Message: "bad proof", Err: err}
	}
	if proof.Accumulator, err = parseHexInt("accumulator", opts.Accumulator); err != nil {
		return &ExitError{Code: ExitCommandError, Message: "bad proof", Err: err}
	}
	if proof.Prime, err = parseHexInt("prime", opts.Prime); err != nil {
		return &ExitError{Code: ExitCommandError, Message: "bad proof", Err: err}
	}

	valid := v.Verify(proof)

	if err := newFormatter(rootOpts, cmd.OutOrStdout()).Success(VerifyResult{Valid: valid}); err != nil {
		return err
	}

	if !valid {
		return &ExitError{Code: ExitFailure, Message: "proof does not verify"}
	}
	return nil
}

// RefreshOptions holds flags for the refresh command.
type RefreshOptions struct {
	EventOptions
	Reissue bool
}

// RefreshResult is the outcome of bringing a proof up to date.
type RefreshResult struct {
	Tag      string    `json:"tag"`
	Reissued bool      `json:"reissued"`
	Proof    ProofView `json:"proof"`
}

func (r RefreshResult) String() string {
	how := "refreshed"
	if r.Reissued {
		how = "reissued"
	}
	return fmt.Sprintf("%s %s to seq %d\n%s", how, r.Tag, r.Proof.Sequence, r.Proof)
}

// NewRefreshCommand creates the refresh command.
func NewRefreshCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RefreshOptions{}

	cmd := &cobra.Command{
		Use:   "refresh <event>",
		Short: "Bring the stored proof for an event up to the current value",
		Long: `Bring the stored proof for an event up to the current value.

Additions since the proof was issued are folded in without the trapdoor.
A removal since then, or a registry missing history, needs a fresh
witness from the manager; pass --reissue to fall back to that.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			event, err := opts.event(args[0])
			if err != nil {
				return err
			}
			return runRefresh(cmd, rootOpts, opts, event)
		},
	}

	opts.bind(cmd)
	cmd.Flags().BoolVar(&opts.Reissue, "reissue", false, "reissue with the trapdoor when an update is impossible")

	return cmd
}

func runRefresh(cmd *cobra.Command, rootOpts *RootOptions, opts *RefreshOptions, event []byte) error {
	svc, err := openService(cmd.Context(), rootOpts)
	if err != nil {
		return err
	}
	defer svc.Close()

	result := RefreshResult{Tag: primes.Tag(event)}

	proof, err := svc.Refresh(event)
	if opts.Reissue && (errors.Is(err, registry.ErrRemovalSince) || errors.Is(err, registry.ErrHistoryGap)) {
		proof, err = svc.Reissue(event)
		result.Reissued = true
	}
	if err != nil {
		return err
	}

	result.Proof = newProofView(proof)

	return newFormatter(rootOpts, cmd.OutOrStdout()).Success(result)
}
