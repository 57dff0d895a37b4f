package ledger

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"
)

const (
	// FormatVersion is the ledger line format written by this package.
	// Newer fields may only be appended after the tag; readers of an older
	// version ignore them. Any incompatible change bumps this number.
	FormatVersion = 1

	// timeLayout is UTC basic ISO-8601; it carries no colons so it never
	// collides with the field separator.
	timeLayout = "20060102T150405.000000000Z"

	// versionPrefix introduces the format version comment in the header.
	versionPrefix = "# format-version:"

	// minFields is the number of fields in a v1 entry.
	minFields = 5
)

// header is written when a ledger file is created.
var header = "# ACCUMULATOR WAL\n" +
	versionPrefix + " " + strconv.Itoa(FormatVersion) + "\n" +
	"# seq:operation:value:timestamp:tag\n"

// Op is a ledger operation.
type Op uint8

const (
	OpAdd Op = iota + 1
	OpRemove
)

// String returns the on-disk name of the operation.
func (o Op) String() string {
	switch o {
	case OpAdd:
		return "ADD"
	case OpRemove:
		return "REMOVE"
	default:
		return "UNKNOWN"
	}
}

// parseOp converts an on-disk operation name.
func parseOp(s string) (Op, error) {
	switch s {
	case "ADD":
		return OpAdd, nil
	case "REMOVE":
		return OpRemove, nil
	default:
		return 0, fmt.Errorf("unknown operation %q", s)
	}
}

// Entry is one committed mutation.
type Entry struct {
	Sequence  uint64    // Sequence is 1 for the first mutation after genesis
	Op        Op        // Op is the mutation kind
	Value     *big.Int  // Value is the accumulator value after the mutation
	Timestamp time.Time // Timestamp is stamped by the ledger when zero
	Tag       string    // Tag is a truncated hex identifier of the element
}

// State is the result of replaying a ledger.
type State struct {
	Sequence uint64   // Sequence of the last entry, 0 when empty
	Value    *big.Int // Value of the last entry, nil when empty
	Tag      string   // Tag of the last entry
}

// Empty reports whether no entries were replayed.
func (s State) Empty() bool {
	return s.Sequence == 0
}

// encode renders the entry as one newline-terminated line.
func (e Entry) encode() []byte {
	var b strings.Builder

	b.WriteString(strconv.FormatUint(e.Sequence, 10))
	b.WriteByte(':')
	b.WriteString(e.Op.String())
	b.WriteByte(':')
	b.WriteString(e.Value.Text(10))
	b.WriteByte(':')
	b.WriteString(e.Timestamp.UTC().Format(timeLayout))
	b.WriteByte(':')
	b.WriteString(e.Tag)
	b.WriteByte('\n')

	return []byte(b.String())
}

// validate checks that the entry can be written and read back.
func (e Entry) validate() error {
	if e.Op != OpAdd && e.Op != OpRemove {
		return fmt.Errorf("invalid operation %d", e.Op)
	}

	if e.Value == nil || e.Value.Sign() < 0 {
		return fmt.Errorf("invalid value")
	}

	for _, c := range e.Tag {
		if !isHex(c) {
			return fmt.Errorf("tag %q is not lowercase hex", e.Tag)
		}
	}

	return nil
}

// parseEntry parses one line without its trailing newline.
func parseEntry(line string) (Entry, error) {
	fields := strings.Split(line, ":")
	if len(fields) < minFields {
		return Entry{}, fmt.Errorf("expected %d fields, got %d", minFields, len(fields))
	}

	seq, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("sequence: %w", err)
	}

	op, err := parseOp(fields[1])
	if err != nil {
		return Entry{}, err
	}

	value, ok := new(big.Int).SetString(fields[2], 10)
	if !ok || value.Sign() < 0 {
		return Entry{}, fmt.Errorf("value %q is not a non-negative integer", fields[2])
	}

	ts, err := time.Parse(timeLayout, fields[3])
	if err != nil {
		return Entry{}, fmt.Errorf("timestamp: %w", err)
	}

	return Entry{
		Sequence:  seq,
		Op:        op,
		Value:     value,
		Timestamp: ts,
		Tag:       fields[4],
	}, nil
}

// parseVersion extracts the version from a header comment, if it is one.
func parseVersion(line string) (int, bool, error) {
	if !strings.HasPrefix(line, versionPrefix) {
		return 0, false, nil
	}

	v, err := strconv.Atoi(strings.TrimSpace(line[len(versionPrefix):]))
	if err != nil {
		return 0, true, fmt.Errorf("format version: %w", err)
	}

	return v, true, nil
}

func isHex(c rune) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')
}
