package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"

	"Accumulus/internal/accumulator"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // A proof or archive did not check out
	ExitCommandError = 2 // Bad arguments, missing files, storage errors
)

// ExitError carries an exit code out of a command.
type ExitError struct {
	Code    int
	Message string
	Err     error // Err is optional
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// GetExitCode extracts the exit code from an error.
// Errors that are not ExitErrors map to ExitCommandError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitCommandError
}

// Response is the JSON envelope for command output.
type Response struct {
	Status string `json:"status"` // "ok"
	Data   any    `json:"data,omitempty"`
}

// OutputFormatter writes command results as text or JSON.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

// newFormatter creates a formatter for opts writing to w.
func newFormatter(opts *RootOptions, w io.Writer) *OutputFormatter {
	return &OutputFormatter{Format: opts.Format, Writer: w}
}

// Success outputs a result in the configured format.
// Text output relies on the result's String method.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(Response{Status: "ok", Data: data})
	}

	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// hexInt renders x as lowercase hex, empty for nil.
func hexInt(x *big.Int) string {
	if x == nil {
		return ""
	}
	return x.Text(16)
}

// parseHexInt parses a hex integer with an optional 0x prefix.
func parseHexInt(name, s string) (*big.Int, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")

	x, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return nil, fmt.Errorf("%s: invalid hex integer %q", name, s)
	}
	return x, nil
}

// ProofView is the printable form of a membership proof.
type ProofView struct {
	Witness     string `json:"witness"`
	Accumulator string `json:"accumulator"`
	Prime       string `json:"prime"`
	Sequence    uint64 `json:"sequence"`
}

func newProofView(p accumulator.Proof) ProofView {
	return ProofView{
		Witness:     hexInt(p.Witness),
		Accumulator: hexInt(p.Accumulator),
		Prime:       hexInt(p.Prime),
		Sequence:    p.Sequence,
	}
}

func (p ProofView) String() string {
	return fmt.Sprintf("  sequence:    %d\n  witness:     %s\n  accumulator: %s\n  prime:       %s",
		p.Sequence, p.Witness, p.Accumulator, p.Prime)
}
