package cli

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Accumulus/internal/accumulator"
	"Accumulus/internal/anchor"
	"Accumulus/internal/primes"
	"Accumulus/internal/registry"
)

func TestAddCheckRefreshStatus(t *testing.T) {
	dir := setupDataDir(t)

	out, err := execute(t, "--data", dir, "--format", "json", "add", "incident-a")
	require.NoError(t, err)
	first := decode[AddResult](t, out)
	assert.Equal(t, primes.Tag([]byte("incident-a")), first.Tag)
	assert.Equal(t, uint64(1), first.Proof.Sequence)

	out, err = execute(t, "--data", dir, "--format", "json", "add", "incident-b")
	require.NoError(t, err)
	second := decode[AddResult](t, out)

	out, err = execute(t, "--data", dir, "--format", "json", "check", "incident-a")
	require.NoError(t, err)
	check := decode[CheckResult](t, out)
	assert.True(t, check.Valid)
	assert.False(t, check.Current)

	out, err = execute(t, "--data", dir, "--format", "json", "refresh", "incident-a")
	require.NoError(t, err)
	refreshed := decode[RefreshResult](t, out)
	assert.False(t, refreshed.Reissued)
	assert.Equal(t, second.Value, refreshed.Proof.Accumulator)

	out, err = execute(t, "--data", dir, "--format", "json", "status")
	require.NoError(t, err)
	st := decode[StatusResult](t, out)
	assert.Equal(t, uint64(2), st.Sequence)
	assert.Equal(t, uint64(2), st.RegistrySequence)
	assert.Equal(t, second.Value, st.Value)
	assert.Equal(t, "manager", st.Mode)
	assert.Equal(t, second.Tag, st.LastTag)
}

func TestTextOutput(t *testing.T) {
	dir := setupDataDir(t)

	out, err := execute(t, "--data", dir, "add", "incident-a")
	require.NoError(t, err)
	assert.Contains(t, out, "anchored "+primes.Tag([]byte("incident-a"))+" at seq 1")

	out, err = execute(t, "--data", dir, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "mode:        manager")
	assert.Contains(t, out, "sequence:    1")
	assert.NotContains(t, out, "behind ledger")
}

func TestRemoveNeedsReissue(t *testing.T) {
	dir := setupDataDir(t)

	_, err := execute(t, "--data", dir, "add", "a")
	require.NoError(t, err)
	_, err = execute(t, "--data", dir, "add", "b")
	require.NoError(t, err)

	out, err := execute(t, "--data", dir, "--format", "json", "remove", "b")
	require.NoError(t, err)
	removed := decode[RemoveResult](t, out)

	_, err = execute(t, "--data", dir, "refresh", "a")
	require.ErrorIs(t, err, registry.ErrRemovalSince)

	out, err = execute(t, "--data", dir, "--format", "json", "refresh", "--reissue", "a")
	require.NoError(t, err)
	refreshed := decode[RefreshResult](t, out)
	assert.True(t, refreshed.Reissued)
	assert.Equal(t, removed.Value, refreshed.Proof.Accumulator)
	assert.Equal(t, uint64(3), refreshed.Proof.Sequence)

	_, err = execute(t, "--data", dir, "check", "b")
	require.ErrorIs(t, err, registry.ErrNotFound)
}

func TestVerifyCommand(t *testing.T) {
	dir := setupDataDir(t)

	out, err := execute(t, "--data", dir, "--format", "json", "add", "a")
	require.NoError(t, err)
	p := decode[AddResult](t, out).Proof

	out, err = execute(t, "--data", dir, "--format", "json", "verify",
		"--witness", p.Witness, "--accumulator", p.Accumulator, "--prime", p.Prime)
	require.NoError(t, err)
	assert.True(t, decode[VerifyResult](t, out).Valid)

	// The generator is a valid witness only for the fresh accumulator.
	_, err = execute(t, "--data", dir, "verify",
		"--witness", "0x2", "--accumulator", p.Accumulator, "--prime", p.Prime)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	_, err = execute(t, "--data", dir, "verify",
		"--witness", "zz", "--accumulator", p.Accumulator, "--prime", p.Prime)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestHexEvent(t *testing.T) {
	dir := setupDataDir(t)

	out, err := execute(t, "--data", dir, "--format", "json", "add", "--hex", "deadbeef")
	require.NoError(t, err)
	assert.Equal(t, primes.Tag([]byte{0xde, 0xad, 0xbe, 0xef}), decode[AddResult](t, out).Tag)

	_, err = execute(t, "--data", dir, "add", "--hex", "not-hex")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestVerifierOnlyParams(t *testing.T) {
	dir := setupDataDir(t)

	_, err := execute(t, "--data", dir, "add", "a")
	require.NoError(t, err)

	g := testGenesis()
	public := filepath.Join(t.TempDir(), "public.yaml")
	require.NoError(t, SaveParams(public, accumulator.Genesis{Params: g.Params, Attestation: g.Attestation}, false))

	_, err = execute(t, "--data", dir, "--params", public, "add", "b")
	require.ErrorIs(t, err, anchor.ErrReadOnly)

	out, err := execute(t, "--data", dir, "--params", public, "--format", "json", "status")
	require.NoError(t, err)
	st := decode[StatusResult](t, out)
	assert.Equal(t, "verifier", st.Mode)
	assert.Equal(t, uint64(1), st.Sequence)

	out, err = execute(t, "--data", dir, "--params", public, "--format", "json", "check", "a")
	require.NoError(t, err)
	assert.True(t, decode[CheckResult](t, out).Current)
}

func TestMissingParams(t *testing.T) {
	_, err := execute(t, "--data", t.TempDir(), "status")
	require.Error(t, err)
}

func TestExportInspectRestore(t *testing.T) {
	dir := setupDataDir(t)

	for _, e := range []string{"a", "b", "c"} {
		_, err := execute(t, "--data", dir, "add", e)
		require.NoError(t, err)
	}

	archive := filepath.Join(t.TempDir(), "ledger.zst")

	out, err := execute(t, "--data", dir, "--format", "json", "export", archive)
	require.NoError(t, err)
	exported := decode[ArchiveResult](t, out)
	assert.Equal(t, uint64(3), exported.Entries)

	// An existing archive is not overwritten.
	_, err = execute(t, "--data", dir, "export", archive)
	require.Error(t, err)

	out, err = execute(t, "--format", "json", "inspect", archive)
	require.NoError(t, err)
	inspected := decode[ArchiveResult](t, out)
	assert.Equal(t, exported.Checksum, inspected.Checksum)
	assert.Equal(t, uint64(3), inspected.LastSequence)

	restored := t.TempDir()
	params := filepath.Join(dir, DefaultParamsFile)

	_, err = execute(t, "--data", restored, "restore", archive)
	require.NoError(t, err)

	_, err = execute(t, "--data", restored, "restore", archive)
	require.Error(t, err)

	out, err = execute(t, "--data", restored, "--params", params, "--format", "json", "status")
	require.NoError(t, err)
	st := decode[StatusResult](t, out)
	assert.Equal(t, uint64(3), st.Sequence)
	assert.Equal(t, exported.LastValue, st.Value)
	assert.Equal(t, uint64(0), st.RegistrySequence)
}

func TestInspectRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.zst")
	require.NoError(t, SaveParams(path, testGenesis(), false))

	_, err := execute(t, "inspect", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestInitGeneratesParams(t *testing.T) {
	if testing.Short() {
		t.Skip("modulus generation is slow")
	}

	dir := t.TempDir()
	public := filepath.Join(dir, "public.yaml")

	out, err := execute(t, "--data", dir, "--format", "json", "init", "--bits", "1024", "--public-out", public)
	require.NoError(t, err)
	res := decode[InitResult](t, out)
	assert.Equal(t, 1024, res.Bits)
	assert.Equal(t, accumulator.SoftModeAttestation, res.Attestation)

	g, err := LoadParams(filepath.Join(dir, DefaultParamsFile))
	require.NoError(t, err)
	require.NotNil(t, g.Trapdoor)

	pub, err := LoadParams(public)
	require.NoError(t, err)
	assert.Nil(t, pub.Trapdoor)
	assert.Equal(t, 0, g.Params.N.Cmp(pub.Params.N))

	_, err = execute(t, "--data", dir, "init", "--bits", "1024")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var exitErr *ExitError
	assert.True(t, errors.As(err, &exitErr))
}
