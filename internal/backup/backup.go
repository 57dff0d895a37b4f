// Package backup exports and inspects compressed ledger archives.
//
// An archive is a zstd stream holding a fixed header followed by the
// trusted prefix of a ledger file. The header carries the entry count, the
// last sequence and a BLAKE3 checksum of the ledger bytes, so an archive
// can be checked without the running accumulator.
package backup

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"Accumulus/internal/ledger"
)

const (
	// archiveVersion is the current archive format version.
	archiveVersion = 1

	// headerSize is magic(8) + version(4) + entries(8) + lastSeq(8) + checksum(32).
	headerSize = 8 + 4 + 8 + 8 + 32

	// maxArchiveSize bounds decompressed archive size.
	maxArchiveSize = 1 << 30
)

var magic = [8]byte{'A', 'C', 'C', 'W', 'A', 'L', 'B', 'K'}

var (
	// ErrBadArchive is returned for archives that fail structural checks.
	ErrBadArchive = errors.New("bad archive")

	// ErrChecksum is returned when ledger bytes do not match the archived checksum.
	ErrChecksum = errors.New("archive checksum mismatch")
)

// Summary describes an archive's contents.
type Summary struct {
	Entries      uint64
	LastSequence uint64
	LastValue    *big.Int // LastValue is nil for an empty ledger
	Checksum     [32]byte
	LedgerBytes  int
}

// Export writes a compressed archive of the ledger at ledgerPath to w.
// The ledger file is only read; a torn tail is left out of the archive.
func Export(ledgerPath string, w io.Writer) (Summary, error) {
	data, err := os.ReadFile(ledgerPath)
	if err != nil {
		return Summary{}, fmt.Errorf("read ledger:\n%w", err)
	}

	var entries uint64
	st, trusted, err := ledger.Decode(data, func(ledger.Entry) error {
		entries++
		return nil
	})
	if err != nil {
		return Summary{}, fmt.Errorf("decode ledger:\n%w", err)
	}

	data = data[:trusted]

	sum := Summary{
		Entries:      entries,
		LastSequence: st.Sequence,
		LastValue:    st.Value,
		Checksum:     blake3.Sum256(data),
		LedgerBytes:  len(data),
	}

	encoder, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return Summary{}, fmt.Errorf("create encoder:\n%w", err)
	}

	if _, err := encoder.Write(encodeHeader(sum)); err != nil {
		encoder.Close()
		return Summary{}, fmt.Errorf("write header:\n%w", err)
	}

	if _, err := encoder.Write(data); err != nil {
		encoder.Close()
		return Summary{}, fmt.Errorf("write ledger:\n%w", err)
	}

	if err := encoder.Close(); err != nil {
		return Summary{}, fmt.Errorf("flush archive:\n%w", err)
	}

	return sum, nil
}

// Inspect decompresses an archive, verifies it and summarizes it.
func Inspect(r io.Reader) (Summary, error) {
	sum, _, err := open(r)
	return sum, err
}

// Restore verifies an archive and writes its ledger to path.
// It refuses to overwrite an existing file.
func Restore(r io.Reader, path string) (Summary, error) {
	sum, data, err := open(r)
	if err != nil {
		return Summary{}, err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return Summary{}, fmt.Errorf("create %s:\n%w", path, err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		return Summary{}, fmt.Errorf("write %s:\n%w", path, err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		return Summary{}, fmt.Errorf("sync %s:\n%w", path, err)
	}

	return sum, f.Close()
}

// open decompresses and verifies an archive, returning the ledger bytes.
func open(r io.Reader) (Summary, []byte, error) {
	decoder, err := zstd.NewReader(r)
	if err != nil {
		return Summary{}, nil, fmt.Errorf("create decoder:\n%w", err)
	}
	defer decoder.Close()

	raw, err := io.ReadAll(io.LimitReader(decoder, maxArchiveSize+1))
	if err != nil {
		return Summary{}, nil, fmt.Errorf("decompress:\n%w", err)
	}

	if len(raw) > maxArchiveSize {
		return Summary{}, nil, fmt.Errorf("archive exceeds %d bytes:\n%w", maxArchiveSize, ErrBadArchive)
	}

	want, err := decodeHeader(raw)
	if err != nil {
		return Summary{}, nil, err
	}

	data := raw[headerSize:]

	if blake3.Sum256(data) != want.Checksum {
		return Summary{}, nil, ErrChecksum
	}

	var entries uint64
	st, trusted, err := ledger.Decode(data, func(ledger.Entry) error {
		entries++
		return nil
	})
	if err != nil {
		return Summary{}, nil, fmt.Errorf("decode archived ledger:\n%w", err)
	}

	if trusted != int64(len(data)) || entries != want.Entries || st.Sequence != want.LastSequence {
		return Summary{}, nil, fmt.Errorf("header does not match archived ledger:\n%w", ErrBadArchive)
	}

	want.LastValue = st.Value
	want.LedgerBytes = len(data)

	return want, data, nil
}

// encodeHeader serializes the archive header.
func encodeHeader(s Summary) []byte {
	buf := make([]byte, headerSize)

	copy(buf[0:8], magic[:])
	binary.BigEndian.PutUint32(buf[8:12], archiveVersion)
	binary.BigEndian.PutUint64(buf[12:20], s.Entries)
	binary.BigEndian.PutUint64(buf[20:28], s.LastSequence)
	copy(buf[28:60], s.Checksum[:])

	return buf
}

// decodeHeader parses the archive header.
func decodeHeader(raw []byte) (Summary, error) {
	if len(raw) < headerSize {
		return Summary{}, fmt.Errorf("archive of %d bytes:\n%w", len(raw), ErrBadArchive)
	}

	if !bytes.Equal(raw[0:8], magic[:]) {
		return Summary{}, fmt.Errorf("bad magic:\n%w", ErrBadArchive)
	}

	if v := binary.BigEndian.Uint32(raw[8:12]); v != archiveVersion {
		return Summary{}, fmt.Errorf("archive version %d, supported %d:\n%w", v, archiveVersion, ErrBadArchive)
	}

	var s Summary
	s.Entries = binary.BigEndian.Uint64(raw[12:20])
	s.LastSequence = binary.BigEndian.Uint64(raw[20:28])
	copy(s.Checksum[:], raw[28:60])

	return s, nil
}
