package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// StatusResult summarizes a deployment.
type StatusResult struct {
	Sequence         uint64 `json:"sequence"`
	Value            string `json:"value"`
	LastTag          string `json:"last_tag,omitempty"`
	RegistrySequence uint64 `json:"registry_sequence"`
	Mode             string `json:"mode"` // "manager" | "verifier"
	Attestation      string `json:"attestation"`
	Halted           bool   `json:"halted"`
	HaltReason       string `json:"halt_reason,omitempty"`
}

func (r StatusResult) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "mode:        %s\n", r.Mode)
	fmt.Fprintf(&b, "sequence:    %d\n", r.Sequence)
	fmt.Fprintf(&b, "value:       %s\n", r.Value)
	if r.LastTag != "" {
		fmt.Fprintf(&b, "last tag:    %s\n", r.LastTag)
	}
	fmt.Fprintf(&b, "registry:    %d", r.RegistrySequence)
	if r.RegistrySequence != r.Sequence {
		b.WriteString(" (behind ledger)")
	}
	fmt.Fprintf(&b, "\nattestation: %s", r.Attestation)
	if r.Halted {
		fmt.Fprintf(&b, "\nhalted:      %s", r.HaltReason)
	}

	return b.String()
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the accumulator state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, rootOpts)
		},
	}
}

func runStatus(cmd *cobra.Command, rootOpts *RootOptions) error {
	svc, err := openService(cmd.Context(), rootOpts)
	if err != nil {
		return err
	}
	defer svc.Close()

	st, err := svc.Status()
	if err != nil {
		return err
	}

	mode := "verifier"
	if st.Manager {
		mode = "manager"
	}

	return newFormatter(rootOpts, cmd.OutOrStdout()).Success(StatusResult{
		Sequence:         st.Sequence,
		Value:            hexInt(st.Value),
		LastTag:          st.LastTag,
		RegistrySequence: st.RegistrySequence,
		Mode:             mode,
		Attestation:      st.Attestation,
		Halted:           st.Halted,
		HaltReason:       st.HaltReason,
	})
}
