package accumulator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"Accumulus/internal/ledger"
	"Accumulus/internal/primes"
)

// Small modulus with known factorization: N = 1000000007 * 998244353.
var (
	testP = big.NewInt(1000000007)
	testQ = big.NewInt(998244353)
)

// testGenesis returns the small test parameters and trapdoor.
func testGenesis() (Params, *Trapdoor) {
	n := new(big.Int).Mul(testP, testQ)
	phi := new(big.Int).Mul(new(big.Int).Sub(testP, one), new(big.Int).Sub(testQ, one))

	return Params{N: n, G: big.NewInt(DefaultGenerator)}, &Trapdoor{Phi: phi}
}

// memJournal is an in-memory Journal that can be told to fail.
type memJournal struct {
	mu      sync.Mutex
	entries []ledger.Entry
	fail    error
}

func (j *memJournal) Append(ctx context.Context, e ledger.Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if j.fail != nil {
		return j.fail
	}
	if want := uint64(len(j.entries)) + 1; e.Sequence != want {
		return fmt.Errorf("seq %d, want %d: %w", e.Sequence, want, ledger.ErrOutOfOrder)
	}

	j.entries = append(j.entries, e)
	return nil
}

func (j *memJournal) snapshot() []ledger.Entry {
	j.mu.Lock()
	defer j.mu.Unlock()

	return append([]ledger.Entry(nil), j.entries...)
}

// newTestManager creates a manager over the small modulus and a memory journal.
func newTestManager(t *testing.T) (*Manager, *memJournal) {
	t.Helper()

	params, trapdoor := testGenesis()
	journal := &memJournal{}

	m, err := NewManager(params, trapdoor, primes.NewEncoder(), journal, NewGate())
	require.NoError(t, err)
	require.NoError(t, m.Initialize(ledger.State{}))

	return m, journal
}

// mustPrime encodes element with the default encoder.
func mustPrime(t *testing.T, element []byte) *big.Int {
	t.Helper()

	p, err := primes.NewEncoder().Encode(element)
	require.NoError(t, err)
	return p
}

func TestNewManagerRequiresTrapdoor(t *testing.T) {
	params, _ := testGenesis()

	_, err := NewManager(params, nil, nil, &memJournal{}, nil)
	require.ErrorIs(t, err, ErrMissingTrapdoor)

	_, err = NewManager(params, &Trapdoor{}, nil, &memJournal{}, nil)
	require.ErrorIs(t, err, ErrMissingTrapdoor)
}

func TestNewManagerRejectsBadParams(t *testing.T) {
	_, trapdoor := testGenesis()

	bad := []Params{
		{},
		{N: big.NewInt(3), G: big.NewInt(2)},
		{N: big.NewInt(15), G: big.NewInt(1)},
		{N: big.NewInt(15), G: big.NewInt(5)},
		{N: big.NewInt(15), G: big.NewInt(15)},
	}

	for _, p := range bad {
		_, err := NewManager(p, trapdoor, nil, &memJournal{}, nil)
		require.ErrorIs(t, err, ErrInvalidParams, "params %+v", p)
	}
}

func TestGenesisState(t *testing.T) {
	m, _ := newTestManager(t)

	require.Equal(t, uint64(0), m.Sequence())
	require.Equal(t, 0, m.Value().Cmp(big.NewInt(DefaultGenerator)))
}

func TestFreshAddVerifies(t *testing.T) {
	m, journal := newTestManager(t)

	value, proof, err := m.Add(context.Background(), []byte("event"))
	require.NoError(t, err)

	require.True(t, m.Verify(proof))
	require.Equal(t, 0, value.Cmp(proof.Accumulator))
	require.Equal(t, uint64(1), proof.Sequence)
	require.Equal(t, 0, proof.Prime.Cmp(mustPrime(t, []byte("event"))))

	// The witness is the pre-add value.
	require.Equal(t, 0, proof.Witness.Cmp(big.NewInt(DefaultGenerator)))

	entries := journal.snapshot()
	require.Len(t, entries, 1)
	require.Equal(t, ledger.OpAdd, entries[0].Op)
	require.Equal(t, primes.Tag([]byte("event")), entries[0].Tag)
	require.Equal(t, 0, entries[0].Value.Cmp(value))
}

func TestAddRemoveRoundTrip(t *testing.T) {
	m, journal := newTestManager(t)
	before := m.Value()

	_, _, err := m.Add(context.Background(), []byte("transient"))
	require.NoError(t, err)

	after, err := m.Remove(context.Background(), []byte("transient"))
	require.NoError(t, err)

	require.Equal(t, 0, after.Cmp(before))
	require.Equal(t, uint64(2), m.Sequence())

	entries := journal.snapshot()
	require.Len(t, entries, 2)
	require.Equal(t, ledger.OpRemove, entries[1].Op)
}

func TestAddCommutes(t *testing.T) {
	m1, _ := newTestManager(t)
	m2, _ := newTestManager(t)
	ctx := context.Background()

	_, proof1, err := m1.Add(ctx, []byte("e1"))
	require.NoError(t, err)
	v1, _, err := m1.Add(ctx, []byte("e2"))
	require.NoError(t, err)

	_, _, err = m2.Add(ctx, []byte("e2"))
	require.NoError(t, err)
	v2, _, err := m2.Add(ctx, []byte("e1"))
	require.NoError(t, err)

	require.Equal(t, 0, v1.Cmp(v2))

	// proof1 is stale until e2's prime is folded in.
	require.NotEqual(t, 0, proof1.Accumulator.Cmp(v1))

	updated := m1.UpdateWitness(proof1, []*big.Int{mustPrime(t, []byte("e2"))})
	require.True(t, m1.Verify(updated))
	require.Equal(t, 0, updated.Accumulator.Cmp(v1))
	require.Equal(t, uint64(2), updated.Sequence)
}

func TestTwoElementScenario(t *testing.T) {
	m, _ := newTestManager(t)
	params, _ := testGenesis()
	ctx := context.Background()

	p1 := mustPrime(t, []byte("a"))
	p2 := mustPrime(t, []byte("b"))

	_, proofA, err := m.Add(ctx, []byte("a"))
	require.NoError(t, err)
	final, proofB, err := m.Add(ctx, []byte("b"))
	require.NoError(t, err)

	exp := new(big.Int).Mul(p1, p2)
	want := new(big.Int).Exp(params.G, exp, params.N)
	require.Equal(t, 0, final.Cmp(want))

	refreshedA := m.UpdateWitness(proofA, []*big.Int{p2})
	refreshedB := m.UpdateWitness(proofB, nil)

	require.True(t, m.BatchVerify([]Proof{refreshedA, refreshedB}))
	require.Equal(t, 0, refreshedA.Accumulator.Cmp(final))
	require.Equal(t, 0, refreshedB.Accumulator.Cmp(final))
}

func TestRemovalNeedsReissue(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, proofA, err := m.Add(ctx, []byte("a"))
	require.NoError(t, err)
	_, _, err = m.Add(ctx, []byte("b"))
	require.NoError(t, err)
	current, err := m.Remove(ctx, []byte("b"))
	require.NoError(t, err)

	// Folding in b's prime does not undo b's removal.
	stale := m.UpdateWitness(proofA, []*big.Int{mustPrime(t, []byte("b"))})
	require.NotEqual(t, 0, stale.Accumulator.Cmp(current))

	fresh, err := m.IssueWitness([]byte("a"))
	require.NoError(t, err)
	require.True(t, m.Verify(fresh))
	require.Equal(t, 0, fresh.Accumulator.Cmp(current))
	require.Equal(t, uint64(3), fresh.Sequence)
}

func TestNonInvertiblePrime(t *testing.T) {
	params, trapdoor := testGenesis()

	// A digest of 2 maps to the prime 2, which divides phi(N).
	two := func([]byte) []byte {
		d := make([]byte, 32)
		d[31] = 2
		return d
	}

	journal := &memJournal{}
	m, err := NewManager(params, trapdoor, primes.NewEncoder(primes.WithDigest(two)), journal, nil)
	require.NoError(t, err)

	_, _, err = m.Add(context.Background(), []byte("x"))
	require.ErrorIs(t, err, ErrNonInvertible)

	_, err = m.Remove(context.Background(), []byte("x"))
	require.ErrorIs(t, err, ErrNonInvertible)

	_, err = m.IssueWitness([]byte("x"))
	require.ErrorIs(t, err, ErrNonInvertible)

	require.Equal(t, uint64(0), m.Sequence())
	require.Empty(t, journal.snapshot())
}

func TestFailedAppendLeavesStateUnchanged(t *testing.T) {
	m, journal := newTestManager(t)
	ctx := context.Background()

	_, _, err := m.Add(ctx, []byte("kept"))
	require.NoError(t, err)
	before := m.Snapshot()

	journal.fail = fmt.Errorf("disk gone: %w", ledger.ErrLedgerIO)

	_, _, err = m.Add(ctx, []byte("lost"))
	require.ErrorIs(t, err, ledger.ErrLedgerIO)

	_, err = m.Remove(ctx, []byte("kept"))
	require.ErrorIs(t, err, ledger.ErrLedgerIO)

	after := m.Snapshot()
	require.Equal(t, before.Sequence, after.Sequence)
	require.Equal(t, 0, before.Value.Cmp(after.Value))

	// The next successful mutation takes the next sequence.
	journal.fail = nil
	_, proof, err := m.Add(ctx, []byte("lost"))
	require.NoError(t, err)
	require.Equal(t, uint64(2), proof.Sequence)
}

func TestCancelledAddLeavesStateUnchanged(t *testing.T) {
	m, journal := newTestManager(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := m.Add(ctx, []byte("cancelled"))
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, uint64(0), m.Sequence())
	require.Empty(t, journal.snapshot())
}

func TestGateHaltsMutations(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, proof, err := m.Add(ctx, []byte("before"))
	require.NoError(t, err)

	m.Gate().Halt("operator review")

	_, _, err = m.Add(ctx, []byte("during"))
	require.ErrorIs(t, err, ErrHalted)
	require.Contains(t, err.Error(), "operator review")

	_, err = m.Remove(ctx, []byte("before"))
	require.ErrorIs(t, err, ErrHalted)

	// Verification keeps working while halted.
	require.True(t, m.Verify(proof))

	m.Gate().Resume()

	_, _, err = m.Add(ctx, []byte("during"))
	require.NoError(t, err)
	require.Equal(t, uint64(2), m.Sequence())
}

func TestConcurrentAdds(t *testing.T) {
	m, journal := newTestManager(t)
	params, _ := testGenesis()

	const workers = 32

	var wg sync.WaitGroup
	errs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, proof, err := m.Add(context.Background(), []byte(fmt.Sprintf("concurrent-%d", i)))
			if err == nil && !m.Verify(proof) {
				err = errors.New("proof did not verify")
			}
			errs <- err
		}(i)
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	entries := journal.snapshot()
	require.Len(t, entries, workers)
	for i, e := range entries {
		require.Equal(t, uint64(i+1), e.Sequence)
	}

	want := new(big.Int).Set(params.G)
	for i := 0; i < workers; i++ {
		want.Exp(want, mustPrime(t, []byte(fmt.Sprintf("concurrent-%d", i))), params.N)
	}

	require.Equal(t, 0, m.Value().Cmp(want))
	require.Equal(t, uint64(workers), m.Sequence())
}

func TestInitializeFromLedger(t *testing.T) {
	params, trapdoor := testGenesis()
	path := filepath.Join(t.TempDir(), "accumulator.wal")
	ctx := context.Background()

	l, err := ledger.Open(path)
	require.NoError(t, err)

	m, err := NewManager(params, trapdoor, nil, l, nil)
	require.NoError(t, err)
	require.NoError(t, m.Initialize(l.State()))

	_, proofA, err := m.Add(ctx, []byte("a"))
	require.NoError(t, err)
	_, _, err = m.Add(ctx, []byte("b"))
	require.NoError(t, err)
	want := m.Snapshot()
	require.NoError(t, l.Close())

	st, err := ledger.Recover(path)
	require.NoError(t, err)

	l2, err := ledger.Open(path)
	require.NoError(t, err)
	defer l2.Close()

	restored, err := NewManager(params, trapdoor, nil, l2, nil)
	require.NoError(t, err)
	require.NoError(t, restored.Initialize(st))

	require.Equal(t, want.Sequence, restored.Sequence())
	require.Equal(t, 0, want.Value.Cmp(restored.Value()))

	// Proofs issued before the restart still refresh against the new instance.
	updated := restored.UpdateWitness(proofA, []*big.Int{mustPrime(t, []byte("b"))})
	require.True(t, restored.Verify(updated))
	require.Equal(t, 0, updated.Accumulator.Cmp(restored.Value()))

	_, proofC, err := restored.Add(ctx, []byte("c"))
	require.NoError(t, err)
	require.Equal(t, uint64(3), proofC.Sequence)
}

func TestInitializeRejectsBadState(t *testing.T) {
	m, _ := newTestManager(t)
	params, _ := testGenesis()

	err := m.Initialize(ledger.State{Sequence: 4, Value: params.N})
	require.ErrorIs(t, err, ErrInvalidParams)

	err = m.Initialize(ledger.State{Sequence: 4})
	require.ErrorIs(t, err, ErrInvalidParams)

	_, _, err = m.Add(context.Background(), []byte("x"))
	require.NoError(t, err)

	err = m.Initialize(ledger.State{Sequence: 9, Value: big.NewInt(2)})
	require.ErrorIs(t, err, ErrAlreadyInitialized)
}
