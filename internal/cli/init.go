package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"Accumulus/internal/accumulator"
)

// InitOptions holds flags for the init command.
type InitOptions struct {
	Bits      int
	Force     bool
	PublicOut string // PublicOut, when set, also receives the params without phi
}

// InitResult describes freshly generated genesis material.
type InitResult struct {
	ParamsPath  string `json:"params_path"`
	PublicPath  string `json:"public_path,omitempty"`
	Bits        int    `json:"bits"`
	Generator   string `json:"generator"`
	Attestation string `json:"attestation"`
}

func (r InitResult) String() string {
	s := fmt.Sprintf("genesis written to %s\n  bits:        %d\n  generator:   %s\n  attestation: %s",
		r.ParamsPath, r.Bits, r.Generator, r.Attestation)
	if r.PublicPath != "" {
		s += "\n  public:      " + r.PublicPath
	}
	return s
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InitOptions{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Generate genesis parameters",
		Long: `Generate an RSA modulus and write the params file.

The modulus is generated in process memory (soft mode), so the params
file holds the trapdoor phi(N) and is recorded with the attestation
` + accumulator.SoftModeAttestation + `. Use --public-out to also write a
copy without phi for verifier-only deployments.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, rootOpts, opts)
		},
	}

	cmd.Flags().IntVar(&opts.Bits, "bits", accumulator.DefaultModulusBits, "modulus size in bits")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "replace an existing params file")
	cmd.Flags().StringVar(&opts.PublicOut, "public-out", "", "also write public params (no phi) to this path")

	return cmd
}

func runInit(cmd *cobra.Command, rootOpts *RootOptions, opts *InitOptions) error {
	path := rootOpts.paramsPath()

	if !opts.Force {
		if _, err := os.Stat(path); err == nil {
			return &ExitError{Code: ExitCommandError, Message: fmt.Sprintf("params file %s exists (use --force to replace)", path)}
		}
	}

	genesis, err := accumulator.SoftProvider{Bits: opts.Bits}.Genesis(cmd.Context())
	if err != nil {
		return err
	}

	if err := SaveParams(path, genesis, opts.Force); err != nil {
		return err
	}

	result := InitResult{
		ParamsPath:  path,
		Bits:        genesis.Params.N.BitLen(),
		Generator:   hexInt(genesis.Params.G),
		Attestation: genesis.Attestation,
	}

	if opts.PublicOut != "" {
		public := accumulator.Genesis{Params: genesis.Params, Attestation: genesis.Attestation}
		if err := SaveParams(opts.PublicOut, public, opts.Force); err != nil {
			return err
		}
		result.PublicPath = opts.PublicOut
	}

	return newFormatter(rootOpts, cmd.OutOrStdout()).Success(result)
}
