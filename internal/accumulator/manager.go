package accumulator

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"

	"Accumulus/internal/ledger"
	"Accumulus/internal/logger"
	"Accumulus/internal/primes"
)

// Journal durably records mutations. Append must return nil only after the
// entry is on stable storage, and must write nothing when it fails.
type Journal interface {
	Append(ctx context.Context, e ledger.Entry) error
}

// Manager is the trapdoor-holding accumulator. Mutations are serialized by
// one lock; the new value is published only after the journal append
// succeeds. Reads load the last published snapshot without locking.
type Manager struct {
	*Verifier

	phi     *big.Int
	enc     *primes.Encoder
	journal Journal
	gate    *Gate

	mu      sync.Mutex               // mu serializes mutations
	current atomic.Pointer[Snapshot] // current is the last committed state
}

// NewManager creates a manager at genesis (value G, sequence 0).
// Call Initialize with recovered ledger state before the first mutation.
func NewManager(params Params, trapdoor *Trapdoor, enc *primes.Encoder, journal Journal, gate *Gate) (*Manager, error) {
	if trapdoor == nil || trapdoor.Phi == nil || trapdoor.Phi.Sign() <= 0 {
		return nil, ErrMissingTrapdoor
	}

	if journal == nil {
		return nil, fmt.Errorf("journal required")
	}

	v, err := NewVerifier(params)
	if err != nil {
		return nil, err
	}

	if enc == nil {
		enc = primes.NewEncoder()
	}

	if gate == nil {
		gate = NewGate()
	}

	m := &Manager{
		Verifier: v,
		phi:      cloneInt(trapdoor.Phi),
		enc:      enc,
		journal:  journal,
		gate:     gate,
	}

	m.current.Store(&Snapshot{Value: cloneInt(v.params.G), Sequence: 0})

	return m, nil
}

// Initialize loads recovered ledger state. An empty ledger leaves the
// manager at genesis.
func (m *Manager) Initialize(st ledger.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.Load().Sequence != 0 {
		return ErrAlreadyInitialized
	}

	if st.Empty() {
		m.current.Store(&Snapshot{Value: cloneInt(m.params.G), Sequence: 0})
		return nil
	}

	if st.Value == nil || st.Value.Sign() <= 0 || st.Value.Cmp(m.params.N) >= 0 {
		return fmt.Errorf("recovered value outside [1, N) at seq %d:\n%w", st.Sequence, ErrInvalidParams)
	}

	m.current.Store(&Snapshot{Value: cloneInt(st.Value), Sequence: st.Sequence})

	logger.Info("accumulator initialized", "seq", st.Sequence, "tag", st.Tag)

	return nil
}

// Add includes element and returns the new value with a proof for it.
func (m *Manager) Add(ctx context.Context, element []byte) (*big.Int, Proof, error) {
	prime, inv, err := m.encode(element)
	if err != nil {
		return nil, Proof{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.gate.check(); err != nil {
		return nil, Proof{}, err
	}

	cur := m.current.Load()
	next := new(big.Int).Exp(cur.Value, prime, m.params.N)

	// The witness is the prime-th root of the new value, which is the old
	// value; extracting it takes the trapdoor.
	witness := new(big.Int).Exp(next, inv, m.params.N)

	snap, err := m.commit(ctx, cur, ledger.OpAdd, next, element)
	if err != nil {
		return nil, Proof{}, err
	}

	proof := Proof{
		Witness:     witness,
		Accumulator: cloneInt(snap.Value),
		Prime:       prime,
		Sequence:    snap.Sequence,
	}

	return cloneInt(snap.Value), proof, nil
}

// Remove excludes element and returns the new value.
func (m *Manager) Remove(ctx context.Context, element []byte) (*big.Int, error) {
	snap, err := m.RemoveSnapshot(ctx, element)
	if err != nil {
		return nil, err
	}
	return snap.Value, nil
}

// RemoveSnapshot excludes element and returns the state it committed.
func (m *Manager) RemoveSnapshot(ctx context.Context, element []byte) (Snapshot, error) {
	_, inv, err := m.encode(element)
	if err != nil {
		return Snapshot{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.gate.check(); err != nil {
		return Snapshot{}, err
	}

	cur := m.current.Load()
	next := new(big.Int).Exp(cur.Value, inv, m.params.N)

	snap, err := m.commit(ctx, cur, ledger.OpRemove, next, element)
	if err != nil {
		return Snapshot{}, err
	}

	return Snapshot{Value: cloneInt(snap.Value), Sequence: snap.Sequence}, nil
}

// commit journals the mutation and then publishes it. Caller holds mu.
func (m *Manager) commit(ctx context.Context, cur *Snapshot, op ledger.Op, next *big.Int, element []byte) (*Snapshot, error) {
	entry := ledger.Entry{
		Sequence: cur.Sequence + 1,
		Op:       op,
		Value:    next,
		Tag:      primes.Tag(element),
	}

	if err := m.journal.Append(ctx, entry); err != nil {
		return nil, fmt.Errorf("%s %s at seq %d:\n%w", op, entry.Tag, entry.Sequence, err)
	}

	snap := &Snapshot{Value: next, Sequence: entry.Sequence}
	m.current.Store(snap)

	logger.Debug("accumulator mutated", "op", op, "seq", snap.Sequence, "tag", entry.Tag)

	return snap, nil
}

// IssueWitness returns a fresh proof for element against the current value.
// This is how a witness is recovered after removals. The trapdoor can
// extract a root of any value, so the caller must know element is included.
func (m *Manager) IssueWitness(element []byte) (Proof, error) {
	prime, inv, err := m.encode(element)
	if err != nil {
		return Proof{}, err
	}

	cur := m.current.Load()

	return Proof{
		Witness:     new(big.Int).Exp(cur.Value, inv, m.params.N),
		Accumulator: cloneInt(cur.Value),
		Prime:       prime,
		Sequence:    cur.Sequence,
	}, nil
}

// encode maps element to its prime and the prime's inverse mod phi(N).
func (m *Manager) encode(element []byte) (*big.Int, *big.Int, error) {
	prime, err := m.enc.Encode(element)
	if err != nil {
		return nil, nil, fmt.Errorf("encode %s:\n%w", primes.Tag(element), err)
	}

	if new(big.Int).GCD(nil, nil, prime, m.phi).Cmp(one) != 0 {
		return nil, nil, fmt.Errorf("prime for %s:\n%w", primes.Tag(element), ErrNonInvertible)
	}

	return prime, new(big.Int).ModInverse(prime, m.phi), nil
}

// Snapshot returns a copy of the last committed state.
func (m *Manager) Snapshot() Snapshot {
	cur := m.current.Load()
	return Snapshot{Value: cloneInt(cur.Value), Sequence: cur.Sequence}
}

// Value returns the current accumulator value.
func (m *Manager) Value() *big.Int {
	return cloneInt(m.current.Load().Value)
}

// Sequence returns the number of committed mutations.
func (m *Manager) Sequence() uint64 {
	return m.current.Load().Sequence
}

// Gate returns the manager's write capability.
func (m *Manager) Gate() *Gate {
	return m.gate
}

// Encoder returns the prime encoder.
func (m *Manager) Encoder() *primes.Encoder {
	return m.enc
}
