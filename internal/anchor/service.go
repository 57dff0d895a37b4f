// Package anchor exposes the accumulator to embedding systems.
//
// A Service owns one data directory holding the ledger and the registry.
// Callers hand it an event identifier and get back the accumulator value
// and a membership proof to keep with their record; later they check or
// refresh that proof. A deployment whose genesis carries no trapdoor runs
// verifier-only and rejects every operation that needs phi(N).
package anchor

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"Accumulus/internal/accumulator"
	"Accumulus/internal/ledger"
	"Accumulus/internal/logger"
	"Accumulus/internal/primes"
	"Accumulus/internal/registry"
	"Accumulus/internal/storage"
)

const (
	// LedgerFile is the ledger file name inside the data directory.
	LedgerFile = "accumulator.wal"

	// registryDir is the Pebble directory inside the data directory.
	registryDir = "registry"
)

var (
	// ErrReadOnly is returned for trapdoor operations in a verifier-only deployment.
	ErrReadOnly = errors.New("verifier-only deployment")

	// ErrStaleProof is returned when a refreshed proof still misses the live value.
	ErrStaleProof = errors.New("proof does not reach current value")
)

// Config configures a Service.
type Config struct {
	DataDir  string                      // DataDir holds the ledger and registry
	Provider accumulator.ModulusProvider // Provider supplies genesis material
	Encoder  *primes.Encoder             // Encoder defaults to primes.NewEncoder()
	Gate     *accumulator.Gate           // Gate defaults to an open gate
}

// Receipt is returned to the caller for an anchored event.
type Receipt struct {
	Value *big.Int
	Proof accumulator.Proof
}

// CheckResult is the outcome of checking a stored proof.
type CheckResult struct {
	Proof   accumulator.Proof
	Valid   bool // Valid means the proof is self-consistent
	Current bool // Current means it was issued against the live value
}

// Status summarizes a deployment.
type Status struct {
	Sequence         uint64
	Value            *big.Int
	LastTag          string
	RegistrySequence uint64
	Manager          bool
	Attestation      string
	Halted           bool
	HaltReason       string
}

// Service binds the accumulator, its ledger and the registry.
type Service struct {
	params      accumulator.Params
	verifier    *accumulator.Verifier
	manager     *accumulator.Manager // manager is nil when verifier-only
	ledger      *ledger.Ledger       // ledger is nil when verifier-only
	ledgerPath  string
	db          *storage.Storage
	registry    *registry.Registry
	enc         *primes.Encoder
	attestation string
}

// Open resolves genesis, recovers the ledger and opens the registry.
func Open(ctx context.Context, cfg Config) (*Service, error) {
	start := time.Now()

	genesis, err := cfg.Provider.Genesis(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve genesis:\n%w", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir:\n%w", err)
	}

	enc := cfg.Encoder
	if enc == nil {
		enc = primes.NewEncoder()
	}

	db, err := storage.New(filepath.Join(cfg.DataDir, registryDir))
	if err != nil {
		return nil, fmt.Errorf("open registry:\n%w", err)
	}

	s := &Service{
		params:      genesis.Params,
		ledgerPath:  filepath.Join(cfg.DataDir, LedgerFile),
		db:          db,
		registry:    registry.New(db),
		enc:         enc,
		attestation: genesis.Attestation,
	}

	if genesis.Trapdoor != nil {
		err = s.openManager(genesis, cfg.Gate)
	} else {
		s.verifier, err = accumulator.NewVerifier(genesis.Params)
	}
	if err != nil {
		db.Close()
		return nil, err
	}

	st, err := s.Status()
	if err != nil {
		s.Close()
		return nil, err
	}

	if st.RegistrySequence != st.Sequence {
		logger.Warn("registry out of step with ledger",
			"ledger_seq", st.Sequence,
			"registry_seq", st.RegistrySequence,
		)
	}

	logger.Info("accumulator service opened",
		"dir", cfg.DataDir,
		"manager", st.Manager,
		"seq", st.Sequence,
		"attestation", st.Attestation,
		logger.Timed(start),
	)

	return s, nil
}

// openManager opens the ledger for writing and restores the manager.
func (s *Service) openManager(genesis accumulator.Genesis, gate *accumulator.Gate) error {
	l, err := ledger.Open(s.ledgerPath)
	if err != nil {
		return fmt.Errorf("open ledger:\n%w", err)
	}

	m, err := accumulator.NewManager(genesis.Params, genesis.Trapdoor, s.enc, l, gate)
	if err != nil {
		l.Close()
		return err
	}

	if err := m.Initialize(l.State()); err != nil {
		l.Close()
		return fmt.Errorf("initialize from ledger:\n%w", err)
	}

	s.ledger = l
	s.manager = m
	s.verifier = m.Verifier

	return nil
}

// Anchor adds event to the accumulator and stores its proof.
func (s *Service) Anchor(ctx context.Context, event []byte) (Receipt, error) {
	if s.manager == nil {
		return Receipt{}, ErrReadOnly
	}

	value, proof, err := s.manager.Add(ctx, event)
	if err != nil {
		return Receipt{}, err
	}

	s.index(registry.Mutation{Sequence: proof.Sequence, Op: ledger.OpAdd, Prime: proof.Prime, Tag: primes.Tag(event)})

	if err := s.registry.SaveProof(event, proof); err != nil {
		logger.Warn("proof not stored", "tag", primes.Tag(event), "error", err)
	}

	return Receipt{Value: value, Proof: proof}, nil
}

// Revoke removes event from the accumulator and drops its stored proof.
func (s *Service) Revoke(ctx context.Context, event []byte) (*big.Int, error) {
	if s.manager == nil {
		return nil, ErrReadOnly
	}

	prime, err := s.enc.Encode(event)
	if err != nil {
		return nil, err
	}

	snap, err := s.manager.RemoveSnapshot(ctx, event)
	if err != nil {
		return nil, err
	}

	s.index(registry.Mutation{Sequence: snap.Sequence, Op: ledger.OpRemove, Prime: prime, Tag: primes.Tag(event)})

	if err := s.registry.DeleteProof(event); err != nil {
		logger.Warn("stale proof not deleted", "tag", primes.Tag(event), "error", err)
	}

	return snap.Value, nil
}

// index records a committed mutation. The ledger already holds it, so a
// failure here only leaves the registry behind.
func (s *Service) index(m registry.Mutation) {
	if err := s.registry.Record(m); err != nil {
		logger.Error("registry record failed", "seq", m.Sequence, "op", m.Op, "error", err)
	}
}

// Check verifies the stored proof for event and reports whether it was
// issued against the live value.
func (s *Service) Check(event []byte) (CheckResult, error) {
	proof, err := s.registry.LoadProof(event)
	if err != nil {
		return CheckResult{}, err
	}

	cur, err := s.current()
	if err != nil {
		return CheckResult{}, err
	}

	valid := s.verifier.Verify(proof)

	return CheckResult{
		Proof:   proof,
		Valid:   valid,
		Current: valid && proof.Accumulator.Cmp(cur.Value) == 0,
	}, nil
}

// Verify checks a caller-held proof without consulting stored state.
func (s *Service) Verify(proof accumulator.Proof) bool {
	return s.verifier.Verify(proof)
}

// Refresh brings the stored proof for event up to the live value by
// folding in every prime added since it was issued. It fails with
// registry.ErrRemovalSince when a removal intervened; Reissue handles that.
func (s *Service) Refresh(event []byte) (accumulator.Proof, error) {
	proof, err := s.registry.LoadProof(event)
	if err != nil {
		return accumulator.Proof{}, err
	}

	cur, err := s.current()
	if err != nil {
		return accumulator.Proof{}, err
	}

	added, err := s.registry.AddedSince(proof.Sequence, cur.Sequence)
	if err != nil {
		return accumulator.Proof{}, fmt.Errorf("refresh %s from seq %d:\n%w", primes.Tag(event), proof.Sequence, err)
	}

	updated := s.verifier.UpdateWitness(proof, added)

	if updated.Accumulator.Cmp(cur.Value) != 0 || !s.verifier.Verify(updated) {
		return accumulator.Proof{}, fmt.Errorf("refresh %s to seq %d:\n%w", primes.Tag(event), cur.Sequence, ErrStaleProof)
	}

	if err := s.registry.SaveProof(event, updated); err != nil {
		return accumulator.Proof{}, err
	}

	return updated, nil
}

// Reissue issues a new proof for an anchored event with the trapdoor.
// Only events that still have a stored proof qualify, since the trapdoor
// would otherwise produce a proof for anything.
func (s *Service) Reissue(event []byte) (accumulator.Proof, error) {
	if s.manager == nil {
		return accumulator.Proof{}, ErrReadOnly
	}

	if _, err := s.registry.LoadProof(event); err != nil {
		return accumulator.Proof{}, err
	}

	proof, err := s.manager.IssueWitness(event)
	if err != nil {
		return accumulator.Proof{}, err
	}

	if err := s.registry.SaveProof(event, proof); err != nil {
		return accumulator.Proof{}, err
	}

	return proof, nil
}

// Status reports the current deployment state.
func (s *Service) Status() (Status, error) {
	cur, err := s.current()
	if err != nil {
		return Status{}, err
	}

	regSeq, err := s.registry.LatestSequence()
	if err != nil {
		return Status{}, err
	}

	st := Status{
		Sequence:         cur.Sequence,
		Value:            cur.Value,
		RegistrySequence: regSeq,
		Manager:          s.manager != nil,
		Attestation:      s.attestation,
	}

	if s.ledger != nil {
		st.LastTag = s.ledger.State().Tag
		st.Halted, st.HaltReason = s.manager.Gate().Halted()
	} else {
		rec, err := ledger.Recover(s.ledgerPath)
		if err != nil {
			return Status{}, err
		}
		st.LastTag = rec.Tag
	}

	return st, nil
}

// current returns the live accumulator state. Without a manager it is
// read back from the ledger file.
func (s *Service) current() (accumulator.Snapshot, error) {
	if s.manager != nil {
		return s.manager.Snapshot(), nil
	}

	st, err := ledger.Recover(s.ledgerPath)
	if err != nil {
		return accumulator.Snapshot{}, err
	}

	if st.Empty() {
		return accumulator.Snapshot{Value: new(big.Int).Set(s.params.G)}, nil
	}

	return accumulator.Snapshot{Value: st.Value, Sequence: st.Sequence}, nil
}

// Gate returns the write capability, nil when verifier-only.
func (s *Service) Gate() *accumulator.Gate {
	if s.manager == nil {
		return nil
	}
	return s.manager.Gate()
}

// Params returns the public parameters.
func (s *Service) Params() accumulator.Params {
	return s.verifier.Params()
}

// LedgerPath returns the path of the ledger file.
func (s *Service) LedgerPath() string {
	return s.ledgerPath
}

// Close closes the ledger and the registry.
func (s *Service) Close() error {
	var errs []error

	if s.ledger != nil {
		errs = append(errs, s.ledger.Close())
	}

	errs = append(errs, s.db.Close())

	return errors.Join(errs...)
}
