// Package primes maps element digests to prime exponents.
//
// An element is hashed with a 256-bit digest function, the digest is read as
// a big-endian integer and the first probable prime at or above it is
// returned. Two elements whose digests collide map to the same prime, so the
// mapping is exactly as collision resistant as the digest.
package primes

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"

	"github.com/zeebo/blake3"
)

const (
	// DefaultRounds is the number of Miller-Rabin rounds per candidate.
	// A composite passes all rounds with probability at most 4^-20 (2^-40);
	// Go's ProbablyPrime also runs a Baillie-PSW test, which has no known
	// counterexample.
	DefaultRounds = 20

	// DefaultMaxProbes bounds the upward search from the seed. Prime gaps
	// near 2^256 average about 177, so hitting this limit means the digest
	// function is broken.
	DefaultMaxProbes = 1 << 16

	// MinDigestSize is the smallest accepted digest size in bytes.
	MinDigestSize = 32

	// tagLen is the number of hex characters kept in an element tag.
	tagLen = 8
)

var (
	// ErrEncodingFailure is returned when no prime is found within the probe bound.
	ErrEncodingFailure = errors.New("prime encoding failed")

	// ErrShortDigest is returned when a digest function yields fewer than MinDigestSize bytes.
	ErrShortDigest = errors.New("digest shorter than 256 bits")
)

// DigestFunc hashes an element into a fixed-size digest.
type DigestFunc func(data []byte) []byte

// Blake3 is the default digest function.
func Blake3(data []byte) []byte {
	sum := blake3.Sum256(data)
	return sum[:]
}

// SHA256 is an alternative digest function.
func SHA256(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

// Encoder deterministically maps elements to primes.
type Encoder struct {
	digest    DigestFunc
	rounds    int
	maxProbes int
}

// Option configures an Encoder.
type Option func(*Encoder)

// WithDigest sets the digest function.
func WithDigest(fn DigestFunc) Option {
	return func(e *Encoder) { e.digest = fn }
}

// WithRounds sets the Miller-Rabin round count.
func WithRounds(n int) Option {
	return func(e *Encoder) { e.rounds = n }
}

// WithMaxProbes sets the upper bound on candidates tested per element.
func WithMaxProbes(n int) Option {
	return func(e *Encoder) { e.maxProbes = n }
}

// NewEncoder creates an encoder using BLAKE3 and DefaultRounds unless overridden.
func NewEncoder(opts ...Option) *Encoder {
	e := &Encoder{
		digest:    Blake3,
		rounds:    DefaultRounds,
		maxProbes: DefaultMaxProbes,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Rounds returns the configured Miller-Rabin round count.
func (e *Encoder) Rounds() int {
	return e.rounds
}

// Encode returns the prime exponent for element.
func (e *Encoder) Encode(element []byte) (*big.Int, error) {
	sum := e.digest(element)
	if len(sum) < MinDigestSize {
		return nil, fmt.Errorf("digest of %d bytes:\n%w", len(sum), ErrShortDigest)
	}

	return e.nextPrime(new(big.Int).SetBytes(sum))
}

// nextPrime probes seed, seed+1, ... for the first probable prime.
func (e *Encoder) nextPrime(seed *big.Int) (*big.Int, error) {
	candidate := new(big.Int).Set(seed)
	one := big.NewInt(1)

	for i := 0; i < e.maxProbes; i++ {
		if candidate.ProbablyPrime(e.rounds) {
			return candidate, nil
		}
		candidate.Add(candidate, one)
	}

	return nil, fmt.Errorf("no prime within %d of seed %s:\n%w", e.maxProbes, seed.Text(16), ErrEncodingFailure)
}

// Tag returns the truncated hex tag recorded in the ledger for element.
func Tag(element []byte) string {
	s := hex.EncodeToString(element)
	if len(s) > tagLen {
		return s[:tagLen]
	}
	return s
}
