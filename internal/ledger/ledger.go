// Package ledger implements the accumulator write-ahead log.
//
// The ledger is a line-oriented text file. Each line records one committed
// mutation as sequence:operation:value:timestamp:tag, and an append only
// returns after the line has been fsynced. Recovery tolerates a torn final
// line left by a crash mid-append and rejects any other damage.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"Accumulus/internal/logger"
)

var (
	// ErrLedgerIO is returned when the ledger cannot reach stable storage.
	ErrLedgerIO = errors.New("ledger io failure")

	// ErrLedgerCorruption is returned when a non-tail line cannot be trusted.
	ErrLedgerCorruption = errors.New("ledger corruption")

	// ErrOutOfOrder is returned when an appended sequence does not follow the last one.
	ErrOutOfOrder = errors.New("ledger sequence out of order")
)

// Ledger is an open, append-only ledger file.
// Only one Ledger may have a given file open at a time.
type Ledger struct {
	path string
	now  func() time.Time

	mu     sync.Mutex
	f      *os.File
	offset int64 // offset is the end of the committed prefix
	state  State // state is the last committed entry
	broken error // broken is set when a failed append could not be rolled back
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock sets the clock used to stamp entries.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// Open opens or creates the ledger at path and recovers its state.
// A torn trailing line is truncated away before the ledger accepts appends.
func Open(path string, opts ...Option) (*Ledger, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w:\n%w", path, err, ErrLedgerIO)
	}

	l := &Ledger{path: path, now: time.Now, f: f}
	for _, opt := range opts {
		opt(l)
	}

	if err := l.load(); err != nil {
		f.Close()
		return nil, err
	}

	return l, nil
}

// load replays the open file, repairs a torn tail and writes the header
// into an empty file.
func (l *Ledger) load() error {
	data, err := io.ReadAll(l.f)
	if err != nil {
		return fmt.Errorf("read %s: %w:\n%w", l.path, err, ErrLedgerIO)
	}

	res, err := scan(data, nil)
	if err != nil {
		return err
	}

	if res.torn {
		logger.Warn("discarding torn ledger tail",
			"path", l.path,
			"bytes", int64(len(data))-res.validLen,
			"seq", res.state.Sequence,
		)

		if err := l.truncate(res.validLen); err != nil {
			return err
		}
	}

	l.offset = res.validLen
	l.state = res.state

	if l.offset == 0 {
		return l.writeHeader()
	}

	return nil
}

// writeHeader writes the comment header into an empty file.
func (l *Ledger) writeHeader() error {
	n, err := l.f.WriteAt([]byte(header), 0)
	if err == nil {
		err = l.f.Sync()
	}
	if err != nil {
		return fmt.Errorf("write header: %w:\n%w", err, ErrLedgerIO)
	}

	l.offset = int64(n)

	return syncDir(filepath.Dir(l.path))
}

// Append durably writes e. The entry sequence must be exactly one past the
// last committed sequence. Nothing is committed when an error is returned.
//
// ctx is only consulted before the write starts; once bytes hit the file
// the append runs to completion so the caller never sees an entry that is
// durable but reported as failed.
func (l *Ledger) Append(ctx context.Context, e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.broken != nil {
		return l.broken
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if e.Sequence != l.state.Sequence+1 {
		return fmt.Errorf("append seq %d after %d:\n%w", e.Sequence, l.state.Sequence, ErrOutOfOrder)
	}

	if err := e.validate(); err != nil {
		return fmt.Errorf("append seq %d: %w", e.Sequence, err)
	}

	if e.Timestamp.IsZero() {
		e.Timestamp = l.now()
	}

	line := e.encode()

	n, err := l.f.WriteAt(line, l.offset)
	if err == nil {
		err = l.f.Sync()
	}
	if err != nil {
		l.rollback()
		return fmt.Errorf("append seq %d: %w:\n%w", e.Sequence, err, ErrLedgerIO)
	}

	l.offset += int64(n)
	l.state = State{Sequence: e.Sequence, Value: e.Value, Tag: e.Tag}

	return nil
}

// rollback removes a partially written line. If that fails the ledger is
// poisoned so no later entry is written after garbage.
func (l *Ledger) rollback() {
	if err := l.truncate(l.offset); err != nil {
		l.broken = fmt.Errorf("ledger unusable after failed rollback: %v:\n%w", err, ErrLedgerIO)
		logger.Error("ledger rollback failed", "path", l.path, "error", err)
	}
}

// truncate cuts the file to size and syncs it.
func (l *Ledger) truncate(size int64) error {
	if err := l.f.Truncate(size); err != nil {
		return fmt.Errorf("truncate %s: %w:\n%w", l.path, err, ErrLedgerIO)
	}

	if err := l.f.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w:\n%w", l.path, err, ErrLedgerIO)
	}

	return nil
}

// State returns the last committed state.
func (l *Ledger) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.state
}

// Path returns the ledger file path.
func (l *Ledger) Path() string {
	return l.path
}

// Close syncs and closes the ledger file.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.f.Sync(); err != nil {
		l.f.Close()
		return fmt.Errorf("sync on close: %w:\n%w", err, ErrLedgerIO)
	}

	return l.f.Close()
}

// syncDir fsyncs a directory so a newly created file survives a crash.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open dir %s: %w:\n%w", dir, err, ErrLedgerIO)
	}
	defer d.Close()

	if err := d.Sync(); err != nil {
		return fmt.Errorf("sync dir %s: %w:\n%w", dir, err, ErrLedgerIO)
	}

	return nil
}
