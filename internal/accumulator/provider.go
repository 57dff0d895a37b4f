package accumulator

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"math/big"

	"Accumulus/internal/logger"
)

const (
	// DefaultGenerator is the fixed public generator.
	DefaultGenerator = 65537

	// DefaultModulusBits is the modulus size used by SoftProvider.
	DefaultModulusBits = 2048

	// SoftModeAttestation marks genesis material produced outside a trusted boundary.
	SoftModeAttestation = "SOFT_MODE_NO_ATTESTATION"
)

// Genesis is the material a deployment starts from. A nil Trapdoor means
// a verifier-only deployment.
type Genesis struct {
	Params      Params
	Trapdoor    *Trapdoor
	Attestation string
}

// ModulusProvider supplies genesis material once at startup.
type ModulusProvider interface {
	Genesis(ctx context.Context) (Genesis, error)
}

// StaticProvider returns fixed genesis material, typically loaded from a
// params file produced by a key ceremony.
type StaticProvider struct {
	genesis Genesis
}

// NewStaticProvider creates a provider returning g.
func NewStaticProvider(g Genesis) *StaticProvider {
	return &StaticProvider{genesis: g}
}

// Genesis returns the configured material after validating it.
func (s *StaticProvider) Genesis(_ context.Context) (Genesis, error) {
	if err := s.genesis.Params.Validate(); err != nil {
		return Genesis{}, err
	}
	return s.genesis, nil
}

// SoftProvider generates a fresh modulus in process memory. The trapdoor
// is exposed in RAM, so it is only meant for development and tests.
type SoftProvider struct {
	Bits int // Bits is the modulus size, DefaultModulusBits when zero
}

// Genesis generates an RSA modulus and derives phi(N) from its factors.
func (s SoftProvider) Genesis(ctx context.Context) (Genesis, error) {
	if err := ctx.Err(); err != nil {
		return Genesis{}, err
	}

	bits := s.Bits
	if bits == 0 {
		bits = DefaultModulusBits
	}

	logger.Warn("trusted boundary unavailable, generating modulus in soft mode", "bits", bits)

	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return Genesis{}, fmt.Errorf("generate modulus:\n%w", err)
	}

	phi := big.NewInt(1)
	for _, p := range key.Primes {
		phi.Mul(phi, new(big.Int).Sub(p, one))
	}

	return Genesis{
		Params:      Params{N: new(big.Int).Set(key.N), G: big.NewInt(DefaultGenerator)},
		Trapdoor:    &Trapdoor{Phi: phi},
		Attestation: SoftModeAttestation,
	}, nil
}
