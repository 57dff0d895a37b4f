// Package registry indexes committed mutations and stores issued proofs.
//
// The ledger stays the source of truth. The registry is a derived index
// that keeps what the ledger deliberately omits: the full prime of every
// mutation, so witnesses can be brought forward, and the latest proof per
// element. It is written after the ledger commits and may lag it after a
// crash; callers detect that through ErrHistoryGap.
package registry

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sync"

	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/zeebo/blake3"

	"Accumulus/internal/accumulator"
	"Accumulus/internal/ledger"
	"Accumulus/internal/storage"
	"Accumulus/internal/types"
)

// Key prefixes for storage.
var (
	prefixMutation = []byte("m:")          // m:<seq> -> Mutation
	prefixProof    = []byte("p:")          // p:<blake3(element)> -> StoredProof
	keyLatest      = []byte("meta:latest") // meta:latest -> uint64
)

var (
	// ErrNotFound is returned when no proof is stored for an element.
	ErrNotFound = errors.New("not found")

	// ErrRemovalSince is returned when a removal lies in a refresh range.
	ErrRemovalSince = errors.New("removal since proof issuance")

	// ErrHistoryGap is returned when a mutation record is missing from a range.
	ErrHistoryGap = errors.New("mutation history gap")
)

// Mutation is the registry record of one committed mutation.
type Mutation struct {
	Sequence uint64
	Op       ledger.Op
	Prime    *big.Int
	Tag      string
}

// Registry is the mutation index and proof store.
type Registry struct {
	db *storage.Storage
	mu sync.Mutex // mu serializes Record so latest never moves backwards
}

// New creates a registry over db.
func New(db *storage.Storage) *Registry {
	return &Registry{db: db}
}

// Record stores a committed mutation and advances the latest sequence.
func (r *Registry) Record(m Mutation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	latest, err := r.LatestSequence()
	if err != nil {
		return err
	}

	pairs := []storage.KeyValue{{Key: mutationKey(m.Sequence), Value: encodeMutation(m)}}

	if m.Sequence > latest {
		pairs = append(pairs, storage.KeyValue{Key: keyLatest, Value: encodeUint64(m.Sequence)})
	}

	if err := r.db.Apply(pairs); err != nil {
		return fmt.Errorf("record seq %d:\n%w", m.Sequence, err)
	}

	return nil
}

// LatestSequence returns the highest recorded sequence, 0 when empty.
func (r *Registry) LatestSequence() (uint64, error) {
	data, err := r.db.Get(keyLatest)
	if err != nil {
		return 0, fmt.Errorf("read latest sequence:\n%w", err)
	}

	if len(data) != 8 {
		return 0, nil
	}

	return binary.BigEndian.Uint64(data), nil
}

// Mutations returns the recorded mutations with sequence in (from, to].
func (r *Registry) Mutations(from, to uint64) ([]Mutation, error) {
	if to <= from {
		return nil, nil
	}

	var out []Mutation
	expected := from + 1

	err := r.db.Range(mutationKey(from+1), mutationKey(to+1), func(_, value []byte) error {
		m, err := decodeMutation(value)
		if err != nil {
			return err
		}

		if m.Sequence != expected {
			return fmt.Errorf("missing seq %d:\n%w", expected, ErrHistoryGap)
		}

		out = append(out, m)
		expected++

		return nil
	})
	if err != nil {
		return nil, err
	}

	if expected != to+1 {
		return nil, fmt.Errorf("missing seq %d:\n%w", expected, ErrHistoryGap)
	}

	return out, nil
}

// AddedSince returns the primes added with sequence in (from, to], in order.
// It fails with ErrRemovalSince when any mutation in range is a removal.
func (r *Registry) AddedSince(from, to uint64) ([]*big.Int, error) {
	muts, err := r.Mutations(from, to)
	if err != nil {
		return nil, err
	}

	added := make([]*big.Int, 0, len(muts))
	for _, m := range muts {
		if m.Op == ledger.OpRemove {
			return nil, fmt.Errorf("seq %d removed %s:\n%w", m.Sequence, m.Tag, ErrRemovalSince)
		}
		added = append(added, m.Prime)
	}

	return added, nil
}

// SaveProof stores proof as the latest proof for element.
func (r *Registry) SaveProof(element []byte, proof accumulator.Proof) error {
	if err := r.db.Set(proofKey(element), encodeProof(element, proof)); err != nil {
		return fmt.Errorf("save proof:\n%w", err)
	}
	return nil
}

// LoadProof returns the stored proof for element.
func (r *Registry) LoadProof(element []byte) (accumulator.Proof, error) {
	data, err := r.db.Get(proofKey(element))
	if err != nil {
		return accumulator.Proof{}, fmt.Errorf("load proof:\n%w", err)
	}

	if data == nil {
		return accumulator.Proof{}, ErrNotFound
	}

	return decodeProof(data)
}

// DeleteProof removes the stored proof for element.
func (r *Registry) DeleteProof(element []byte) error {
	return r.db.Delete(proofKey(element))
}

// encodeMutation serializes a mutation as a FlatBuffers table.
func encodeMutation(m Mutation) []byte {
	builder := flatbuffers.NewBuilder(128)

	primeOffset := builder.CreateByteVector(m.Prime.Bytes())
	tagOffset := builder.CreateString(m.Tag)

	types.MutationStart(builder)
	types.MutationAddSequence(builder, m.Sequence)
	types.MutationAddOp(builder, byte(m.Op))
	types.MutationAddPrime(builder, primeOffset)
	types.MutationAddTag(builder, tagOffset)
	types.FinishMutationBuffer(builder, types.MutationEnd(builder))

	return builder.FinishedBytes()
}

// decodeMutation parses a stored mutation, copying out of data.
func decodeMutation(data []byte) (Mutation, error) {
	if len(data) < flatbuffers.SizeUOffsetT {
		return Mutation{}, fmt.Errorf("mutation record of %d bytes", len(data))
	}

	fb := types.GetRootAsMutation(data, 0)

	return Mutation{
		Sequence: fb.Sequence(),
		Op:       ledger.Op(fb.Op()),
		Prime:    new(big.Int).SetBytes(fb.PrimeBytes()),
		Tag:      string(fb.Tag()),
	}, nil
}

// encodeProof serializes a proof as a FlatBuffers table.
func encodeProof(element []byte, p accumulator.Proof) []byte {
	builder := flatbuffers.NewBuilder(512)

	witnessOffset := builder.CreateByteVector(p.Witness.Bytes())
	accOffset := builder.CreateByteVector(p.Accumulator.Bytes())
	primeOffset := builder.CreateByteVector(p.Prime.Bytes())
	elementOffset := builder.CreateByteVector(element)

	types.StoredProofStart(builder)
	types.StoredProofAddWitness(builder, witnessOffset)
	types.StoredProofAddAccumulator(builder, accOffset)
	types.StoredProofAddPrime(builder, primeOffset)
	types.StoredProofAddSequence(builder, p.Sequence)
	types.StoredProofAddElement(builder, elementOffset)
	types.FinishStoredProofBuffer(builder, types.StoredProofEnd(builder))

	return builder.FinishedBytes()
}

// decodeProof parses a stored proof.
func decodeProof(data []byte) (accumulator.Proof, error) {
	if len(data) < flatbuffers.SizeUOffsetT {
		return accumulator.Proof{}, fmt.Errorf("proof record of %d bytes", len(data))
	}

	fb := types.GetRootAsStoredProof(data, 0)

	return accumulator.Proof{
		Witness:     new(big.Int).SetBytes(fb.WitnessBytes()),
		Accumulator: new(big.Int).SetBytes(fb.AccumulatorBytes()),
		Prime:       new(big.Int).SetBytes(fb.PrimeBytes()),
		Sequence:    fb.Sequence(),
	}, nil
}

// mutationKey creates a storage key for a mutation record.
func mutationKey(seq uint64) []byte {
	key := make([]byte, len(prefixMutation)+8)
	copy(key, prefixMutation)
	binary.BigEndian.PutUint64(key[len(prefixMutation):], seq)
	return key
}

// proofKey creates a storage key for an element's proof.
func proofKey(element []byte) []byte {
	sum := blake3.Sum256(element)

	key := make([]byte, len(prefixProof)+len(sum))
	copy(key, prefixProof)
	copy(key[len(prefixProof):], sum[:])
	return key
}

func encodeUint64(v uint64) []byte {
	data := make([]byte, 8)
	binary.BigEndian.PutUint64(data, v)
	return data
}
