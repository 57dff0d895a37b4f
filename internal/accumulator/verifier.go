package accumulator

import (
	"math/big"
)

// Verifier checks membership proofs with public parameters only.
// It holds no mutable state and is safe for any number of goroutines.
type Verifier struct {
	params Params
}

// NewVerifier creates a verifier for params.
func NewVerifier(params Params) (*Verifier, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	return &Verifier{
		params: Params{N: cloneInt(params.N), G: cloneInt(params.G)},
	}, nil
}

// Params returns a copy of the public parameters.
func (v *Verifier) Params() Params {
	return Params{N: cloneInt(v.params.N), G: cloneInt(v.params.G)}
}

// Verify reports whether proof.Witness^proof.Prime = proof.Accumulator mod N.
// It does not check that proof.Accumulator is the current value.
func (v *Verifier) Verify(proof Proof) bool {
	if proof.Witness == nil || proof.Accumulator == nil || proof.Prime == nil {
		return false
	}

	if proof.Prime.Cmp(one) <= 0 || proof.Witness.Sign() <= 0 {
		return false
	}

	if proof.Accumulator.Sign() <= 0 || proof.Accumulator.Cmp(v.params.N) >= 0 {
		return false
	}

	computed := new(big.Int).Exp(proof.Witness, proof.Prime, v.params.N)

	return computed.Cmp(proof.Accumulator) == 0
}

// BatchVerify reports whether every proof verifies on its own.
// Proofs may have been issued against different accumulator values.
func (v *Verifier) BatchVerify(proofs []Proof) bool {
	for _, p := range proofs {
		if !v.Verify(p) {
			return false
		}
	}
	return true
}

// UpdateWitness folds primes added after proof.Sequence into the witness.
// Each added prime q raises both the witness and the recorded accumulator
// to q, so the result verifies against the accumulator value reached after
// those additions. Every intervening addition must be supplied; their
// order does not matter. Intervening removals cannot be absorbed this way
// and need Manager.IssueWitness.
func (v *Verifier) UpdateWitness(proof Proof, added []*big.Int) Proof {
	out := proof.Clone()
	if out.Witness == nil || out.Accumulator == nil {
		return out
	}

	for _, q := range added {
		out.Witness.Exp(out.Witness, q, v.params.N)
		out.Accumulator.Exp(out.Accumulator, q, v.params.N)
		out.Sequence++
	}

	return out
}
