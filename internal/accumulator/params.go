// Package accumulator implements a dynamic RSA accumulator.
//
// Two capability types share the algebra. A Verifier holds only the public
// modulus and generator; it can check proofs and fold later additions into
// a witness. A Manager additionally holds the trapdoor phi(N), which it
// needs to add, remove and issue witnesses. Every Manager mutation is
// durably journaled before it becomes visible.
package accumulator

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	// ErrNonInvertible is returned when an element prime shares a factor with phi(N).
	ErrNonInvertible = errors.New("element prime not invertible mod phi(N)")

	// ErrMissingTrapdoor is returned when a manager is built without phi(N).
	ErrMissingTrapdoor = errors.New("trapdoor required")

	// ErrHalted is returned when a mutation is attempted through a closed gate.
	ErrHalted = errors.New("accumulator halted")

	// ErrInvalidParams is returned for an unusable modulus or generator.
	ErrInvalidParams = errors.New("invalid accumulator parameters")

	// ErrAlreadyInitialized is returned when recovered state arrives after a mutation.
	ErrAlreadyInitialized = errors.New("accumulator already initialized")
)

var one = big.NewInt(1)

// Params are the public accumulator parameters.
type Params struct {
	N *big.Int // N is the RSA modulus
	G *big.Int // G is the generator, the value at genesis
}

// Validate checks that N is a usable modulus and G a unit mod N.
func (p Params) Validate() error {
	if p.N == nil || p.G == nil {
		return fmt.Errorf("modulus and generator required:\n%w", ErrInvalidParams)
	}

	if p.N.Cmp(big.NewInt(3)) <= 0 {
		return fmt.Errorf("modulus too small:\n%w", ErrInvalidParams)
	}

	if p.G.Cmp(one) <= 0 || p.G.Cmp(p.N) >= 0 {
		return fmt.Errorf("generator outside (1, N):\n%w", ErrInvalidParams)
	}

	if new(big.Int).GCD(nil, nil, p.G, p.N).Cmp(one) != 0 {
		return fmt.Errorf("generator shares a factor with N:\n%w", ErrInvalidParams)
	}

	return nil
}

// Trapdoor is the private totient of N.
type Trapdoor struct {
	Phi *big.Int
}

// Snapshot is a committed accumulator state.
type Snapshot struct {
	Value    *big.Int // Value is G raised to the product of included primes
	Sequence uint64   // Sequence counts mutations since genesis
}

// Proof is a membership witness for one element prime.
// It verifies when Witness^Prime = Accumulator mod N.
type Proof struct {
	Witness     *big.Int
	Accumulator *big.Int // Accumulator is the value the witness was issued against
	Prime       *big.Int
	Sequence    uint64 // Sequence is the accumulator sequence at issuance
}

// Clone returns a deep copy of the proof.
func (p Proof) Clone() Proof {
	return Proof{
		Witness:     cloneInt(p.Witness),
		Accumulator: cloneInt(p.Accumulator),
		Prime:       cloneInt(p.Prime),
		Sequence:    p.Sequence,
	}
}

func cloneInt(x *big.Int) *big.Int {
	if x == nil {
		return nil
	}
	return new(big.Int).Set(x)
}
