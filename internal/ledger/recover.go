package ledger

import (
	"bytes"
	"errors"
	"fmt"
	"os"
)

// scanResult describes a replayed ledger image.
type scanResult struct {
	state    State
	validLen int64 // validLen is the byte length of the trusted prefix
	torn     bool  // torn is set when an unterminated trailing line was dropped
}

// scan replays a ledger image, calling fn for every entry in order.
// An unterminated trailing line is a torn write and is excluded from the
// trusted prefix. Every other malformed line is corruption.
func scan(data []byte, fn func(Entry) error) (scanResult, error) {
	var res scanResult

	pos := 0
	lineNo := 0

	for pos < len(data) {
		idx := bytes.IndexByte(data[pos:], '\n')
		if idx < 0 {
			res.torn = true
			break
		}

		line := string(data[pos : pos+idx])
		pos += idx + 1
		lineNo++

		if line == "" {
			continue
		}

		if line[0] == '#' {
			v, ok, err := parseVersion(line)
			if err != nil {
				return res, fmt.Errorf("line %d: %v:\n%w", lineNo, err, ErrLedgerCorruption)
			}
			if ok && v > FormatVersion {
				return res, fmt.Errorf("line %d: format version %d, supported %d:\n%w", lineNo, v, FormatVersion, ErrLedgerCorruption)
			}
			continue
		}

		entry, err := parseEntry(line)
		if err != nil {
			return res, fmt.Errorf("line %d: %v:\n%w", lineNo, err, ErrLedgerCorruption)
		}

		if entry.Sequence != res.state.Sequence+1 {
			return res, fmt.Errorf("line %d: sequence %d follows %d:\n%w", lineNo, entry.Sequence, res.state.Sequence, ErrLedgerCorruption)
		}

		if fn != nil {
			if err := fn(entry); err != nil {
				return res, err
			}
		}

		res.state = State{Sequence: entry.Sequence, Value: entry.Value, Tag: entry.Tag}
	}

	res.validLen = int64(pos)

	return res, nil
}

// Decode replays a ledger image held in memory. It returns the final state
// and the length of the trusted prefix, which excludes a torn tail.
func Decode(data []byte, fn func(Entry) error) (State, int64, error) {
	res, err := scan(data, fn)
	if err != nil {
		return State{}, 0, err
	}
	return res.state, res.validLen, nil
}

// Recover replays the ledger at path and returns the last consistent state.
// A missing file recovers to the empty state. The file is not modified.
func Recover(path string) (State, error) {
	data, err := readLedger(path)
	if err != nil {
		return State{}, err
	}

	res, err := scan(data, nil)
	if err != nil {
		return State{}, err
	}

	return res.state, nil
}

// Replay calls fn with every committed entry of the ledger at path.
// A torn trailing line is skipped. The file is not modified.
func Replay(path string, fn func(Entry) error) error {
	data, err := readLedger(path)
	if err != nil {
		return err
	}

	_, err = scan(data, fn)
	return err
}

// readLedger reads a ledger image, treating a missing file as empty.
func readLedger(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w:\n%w", path, err, ErrLedgerIO)
	}

	return data, nil
}
